package epub

import (
	"fmt"
	"regexp"
	"strings"
)

// generateChapterXHTML converts a chapter's markdown to XHTML.
func (b *Builder) generateChapterXHTML(ch Chapter) string {
	var sb strings.Builder

	// XHTML header
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>`)
	sb.WriteString(escapeXML(ch.Title))
	sb.WriteString(`</title>
  <link rel="stylesheet" type="text/css" href="../styles/style.css"/>
</head>
<body>
`)

	sb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", escapeXML(ch.Title)))
	sb.WriteString(markdownToXHTML(ch.Markdown))

	sb.WriteString("\n</body>\n</html>\n")

	return sb.String()
}

// markdownToXHTML converts markdown-formatted text to XHTML.
// This is a simple converter that handles the cases distilled output
// actually produces: headings, paragraphs, lists, blockquotes, rules.
func markdownToXHTML(md string) string {
	if md == "" {
		return ""
	}

	lines := strings.Split(md, "\n")
	var result strings.Builder
	var inParagraph, inList bool

	closeBlocks := func() {
		if inParagraph {
			result.WriteString("</p>\n")
			inParagraph = false
		}
		if inList {
			result.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Empty line closes any open block
		if trimmed == "" {
			closeBlocks()
			continue
		}

		// Headers (## inside a section renders one level down)
		if heading, ok := strings.CutPrefix(trimmed, "### "); ok {
			closeBlocks()
			result.WriteString("<h3>" + escapeXML(heading) + "</h3>\n")
			continue
		}
		if heading, ok := strings.CutPrefix(trimmed, "## "); ok {
			closeBlocks()
			result.WriteString("<h2>" + escapeXML(heading) + "</h2>\n")
			continue
		}
		if heading, ok := strings.CutPrefix(trimmed, "# "); ok {
			closeBlocks()
			result.WriteString("<h2>" + escapeXML(heading) + "</h2>\n")
			continue
		}

		// Blockquote
		if quoted, ok := strings.CutPrefix(trimmed, "> "); ok {
			closeBlocks()
			result.WriteString("<blockquote><p>")
			result.WriteString(processInlineFormatting(quoted))
			result.WriteString("</p></blockquote>\n")
			continue
		}

		// Bulleted list item
		if item, ok := cutListMarker(trimmed); ok {
			if inParagraph {
				result.WriteString("</p>\n")
				inParagraph = false
			}
			if !inList {
				result.WriteString("<ul>\n")
				inList = true
			}
			result.WriteString("  <li>" + processInlineFormatting(item) + "</li>\n")
			continue
		}

		// Horizontal rule
		if trimmed == "---" || trimmed == "***" || trimmed == "___" {
			closeBlocks()
			result.WriteString("<hr/>\n")
			continue
		}

		// Regular paragraph text
		if inList {
			result.WriteString("</ul>\n")
			inList = false
		}
		if !inParagraph {
			result.WriteString("<p>")
			inParagraph = true
		} else {
			result.WriteString(" ")
		}
		result.WriteString(processInlineFormatting(trimmed))
	}

	closeBlocks()

	return result.String()
}

// cutListMarker strips a leading "- " or "* " list marker.
func cutListMarker(line string) (string, bool) {
	if item, ok := strings.CutPrefix(line, "- "); ok {
		return item, true
	}
	if item, ok := strings.CutPrefix(line, "* "); ok {
		// A lone "*" pair is italic, not a list; require text after marker
		return item, true
	}
	return "", false
}

var (
	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	italicRe = regexp.MustCompile(`\*([^*]+)\*|_([^_]+)_`)
)

// processInlineFormatting handles bold, italic, and other inline markdown.
func processInlineFormatting(text string) string {
	// Escape XML first
	text = escapeXML(text)

	// Bold: **text** or __text__
	text = boldRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := strings.Trim(match, "*_")
		return "<strong>" + inner + "</strong>"
	})

	// Italic: *text* or _text_
	text = italicRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := strings.Trim(match, "*_")
		return "<em>" + inner + "</em>"
	})

	return text
}
