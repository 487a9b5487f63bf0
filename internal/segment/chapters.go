package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackzampolin/distill/internal/toc"
)

const (
	// MaxChapterTokens caps a single chapter's estimated size; larger
	// chapters are split into parts before compression.
	MaxChapterTokens = 6000

	// artificialTargetTokens is the per-chapter target when no structure
	// is detected and the text is packed into artificial sections.
	artificialTargetTokens = 3000

	// minChapterBody rejects TOC matches whose body is too small to be a
	// real chapter.
	minChapterBody = 100
)

// Extraction methods, recorded on the Book.
const (
	MethodTOC        = "toc"
	MethodRegex      = "regex"
	MethodArtificial = "artificial"
)

// ExtractedChapter is one structural chapter of the book.
type ExtractedChapter struct {
	Index      int
	Title      string
	Text       string
	TokenCount int
}

// Extraction is the chapter extractor's result.
type Extraction struct {
	Chapters             []ExtractedChapter
	Method               string
	HasDetectedStructure bool
}

// ExtractChapters segments book text into chapters. Methods are tried
// in priority order: TOC-guided when the detection's entries match back
// into the body, then regex heading scan, then artificial fixed-size
// sections. Oversized chapters are split into parts afterwards.
func ExtractChapters(text string, detection toc.Detection) Extraction {
	if chapters, ok := extractByTOC(text, detection); ok {
		return finish(chapters, MethodTOC, true)
	}
	if chapters, ok := extractByRegex(text); ok {
		return finish(chapters, MethodRegex, true)
	}
	return finish(extractArtificial(text), MethodArtificial, false)
}

func finish(chapters []ExtractedChapter, method string, detected bool) Extraction {
	chapters = splitLargeChapters(chapters)
	for i := range chapters {
		chapters[i].Index = i
		chapters[i].TokenCount = EstimateTokens(chapters[i].Text)
	}
	return Extraction{Chapters: chapters, Method: method, HasDetectedStructure: detected}
}

// extractByTOC resolves TOC entries of level 1 and 2 back into the body.
// The method succeeds when at least half the entries match and the
// matches yield either three chapters or one chapter per entry.
func extractByTOC(text string, detection toc.Detection) ([]ExtractedChapter, bool) {
	if !detection.HasTOC {
		return nil, false
	}

	var entries []toc.Entry
	for _, e := range detection.Entries {
		if e.Level <= 2 && e.NormalizedTitle != "" {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil, false
	}

	type located struct {
		entry toc.Entry
		pos   int
	}
	var found []located
	startFrom := 0
	for _, e := range entries {
		pos := toc.FuzzyMatchTitle(text, e.NormalizedTitle, startFrom)
		if pos < 0 {
			continue
		}
		found = append(found, located{entry: e, pos: pos})
		startFrom = pos + 1
	}

	if float64(len(found)) < 0.5*float64(len(entries)) {
		return nil, false
	}

	var chapters []ExtractedChapter
	for i, loc := range found {
		end := len(text)
		if i+1 < len(found) {
			end = found[i+1].pos
		}
		body := strings.TrimSpace(text[loc.pos:end])
		if len(body) <= minChapterBody {
			continue
		}
		chapters = append(chapters, ExtractedChapter{Title: loc.entry.Title, Text: body})
	}

	// Three resolved chapters is convincing on its own; below that the
	// result is only trusted when every matched entry produced one.
	if len(chapters) < 3 && (len(chapters) < len(entries) || len(chapters) < 2) {
		return nil, false
	}
	return chapters, true
}

// Heading pattern families for the regex scan.
var (
	numberedHeading = regexp.MustCompile(`(?i)^(chapter|part|section)\s+(\d+|[ivxlcdm]+)\b[:.\-]?\s*(.*)$`)
	decimalHeading  = regexp.MustCompile(`^(\d{1,3})\.\s+(\S.*)$`)
	allCapsHeading  = regexp.MustCompile(`^[A-Z][A-Z0-9 ,:'\-]{3,}$`)
)

// titleCaseHeading reports whether a short line reads as a Title-Case
// subsection heading: two to eight words, each capitalized or a small
// connective.
func titleCaseHeading(line string) bool {
	if len(line) >= 80 || strings.HasSuffix(line, ".") {
		return false
	}
	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 8 {
		return false
	}
	connectives := map[string]bool{"of": true, "the": true, "a": true, "an": true, "and": true, "in": true, "to": true, "for": true, "on": true}
	for i, w := range words {
		if i > 0 && connectives[w] {
			continue
		}
		r := rune(w[0])
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// headingLevel classifies a trimmed line: 1 for parts, 2 for chapters
// and major sections, 3 for inline subsections, 0 for prose.
func headingLevel(line string) int {
	if len(line) == 0 || len(line) >= 120 {
		return 0
	}
	if m := numberedHeading.FindStringSubmatch(line); m != nil {
		if strings.EqualFold(m[1], "part") {
			return 1
		}
		return 2
	}
	if decimalHeading.MatchString(line) {
		return 2
	}
	if allCapsHeading.MatchString(line) {
		return 2
	}
	if titleCaseHeading(line) {
		return 3
	}
	return 0
}

// extractByRegex scans line by line for heading patterns. Level 1 and 2
// headings start new chapters; level 3 headings become inline markdown
// headers. At least three chapter-starting headings are required.
func extractByRegex(text string) ([]ExtractedChapter, bool) {
	lines := strings.Split(text, "\n")

	var chapters []ExtractedChapter
	var title string
	var body []string

	flush := func() {
		if title == "" && len(body) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if title == "" {
			title = "Introduction"
		}
		if text != "" {
			chapters = append(chapters, ExtractedChapter{Title: title, Text: text})
		}
		title = ""
		body = nil
	}

	headings := 0
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch headingLevel(line) {
		case 1, 2:
			flush()
			title = line
			body = append(body, line)
			headings++
		case 3:
			body = append(body, "### "+line)
		default:
			body = append(body, raw)
		}
	}
	flush()

	if headings < 3 {
		return nil, false
	}
	return chapters, true
}

// extractArtificial greedily packs paragraphs into fixed-size sections.
func extractArtificial(text string) []ExtractedChapter {
	var chapters []ExtractedChapter
	var current []string
	currentTokens := 0

	emit := func() {
		if len(current) == 0 {
			return
		}
		chapters = append(chapters, ExtractedChapter{
			Title: fmt.Sprintf("Section %d", len(chapters)+1),
			Text:  strings.Join(current, "\n\n"),
		})
		current = nil
		currentTokens = 0
	}

	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		tokens := EstimateTokens(para)
		if currentTokens > 0 && currentTokens+tokens > artificialTargetTokens {
			emit()
		}
		current = append(current, para)
		currentTokens += tokens
	}
	emit()

	return chapters
}

// splitLargeChapters breaks any chapter above MaxChapterTokens into
// "(Part k)" sub-chapters, each within the cap.
func splitLargeChapters(chapters []ExtractedChapter) []ExtractedChapter {
	var out []ExtractedChapter
	for _, ch := range chapters {
		if EstimateTokens(ch.Text) <= MaxChapterTokens {
			out = append(out, ch)
			continue
		}
		parts := SplitText(ch.Text, MaxChapterTokens)
		for k, part := range parts {
			out = append(out, ExtractedChapter{
				Title: fmt.Sprintf("%s (Part %d)", ch.Title, k+1),
				Text:  part,
			})
		}
	}
	return out
}

// SplitText splits text into pieces of at most maxTokens, breaking on
// paragraph boundaries and hard-splitting paragraphs that alone exceed
// the cap. The compression stage uses it to re-split chapters too big
// for one model call.
func SplitText(text string, maxTokens int) []string {
	maxChars := maxTokens * 4

	var pieces []string
	var current []string
	currentTokens := 0

	emit := func() {
		if len(current) == 0 {
			return
		}
		pieces = append(pieces, strings.Join(current, "\n\n"))
		current = nil
		currentTokens = 0
	}

	add := func(para string) {
		tokens := EstimateTokens(para)
		if currentTokens > 0 && currentTokens+tokens > maxTokens {
			emit()
		}
		current = append(current, para)
		currentTokens += tokens
	}

	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for EstimateTokens(para) > maxTokens {
			cut := maxChars
			if idx := strings.LastIndexAny(para[:cut], " \t\n"); idx > maxChars/2 {
				cut = idx
			}
			add(strings.TrimSpace(para[:cut]))
			emit()
			para = strings.TrimSpace(para[cut:])
		}
		if para != "" {
			add(para)
		}
	}
	emit()

	return pieces
}
