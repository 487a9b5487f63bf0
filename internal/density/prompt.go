package density

import (
	"fmt"

	"github.com/jackzampolin/distill/internal/llm"
)

var analysisSchema = llm.MustSchema("density_analysis", `{
  "type": "object",
  "required": ["density_score", "recommended_compression", "recommended_context_size"],
  "properties": {
    "density_score": {"type": "integer", "minimum": 1, "maximum": 10},
    "characteristics": {"type": "array", "items": {"type": "string"}},
    "recommended_compression": {"type": "number"},
    "recommended_context_size": {"type": "integer"},
    "analysis_notes": {"type": "string"}
  }
}`)

func buildAnalysisPrompt(sample string) string {
	return fmt.Sprintf(`Rate the information density of this non-fiction book from representative excerpts.

Score from 1 to 10:
- 1-3: padded, anecdote-heavy, a few core ideas stretched thin
- 4-6: typical trade non-fiction, ideas mixed with stories and repetition
- 7-10: dense, technical, or argument-per-paragraph writing

Also give:
- characteristics: short tags describing the writing (e.g. "anecdote_driven", "research_heavy", "repetitive")
- recommended_compression: what fraction of each chapter's words a faithful condensation should keep
- recommended_context_size: words of framing context worth carrying between chapters
- analysis_notes: one or two sentences of reasoning

Excerpts (separated by ---):

%s`, sample)
}
