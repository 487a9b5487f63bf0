package toc

import (
	"fmt"

	"github.com/jackzampolin/distill/internal/llm"
)

var detectSchema = llm.MustSchema("toc_detection", `{
  "type": "object",
  "required": ["has_toc", "confidence"],
  "properties": {
    "has_toc": {"type": "boolean"},
    "confidence": {"type": "string", "enum": ["high", "medium", "low"]},
    "toc_start_page": {"type": "integer"},
    "toc_end_page": {"type": "integer"},
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "level"],
        "properties": {
          "title": {"type": "string"},
          "normalized_title": {"type": "string"},
          "page_number": {"type": "integer"},
          "level": {"type": "integer"}
        }
      }
    }
  }
}`)

func buildDetectPrompt(sample string) string {
	return fmt.Sprintf(`Examine the opening pages of a book and determine whether they contain a table of contents.

If a table of contents is present, list every entry you can read. For each entry give:
- title: the entry text as printed, without dot leaders or page numbers
- normalized_title: the title lowercased with punctuation removed
- page_number: the printed page number, if legible
- level: 1 for parts, 2 for chapters, 3 for subsections

Report confidence as "high" when the TOC is clearly formatted, "medium" when partially readable, "low" when you are guessing. If no table of contents appears, set has_toc to false and leave entries empty.

Opening pages (page breaks marked):

%s`, sample)
}
