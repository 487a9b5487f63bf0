package segment

import (
	"regexp"
	"strings"
)

// Chunk is a contiguous text segment with its token estimate.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

// ChunkOptions bounds chunk sizes in estimated tokens.
type ChunkOptions struct {
	MinTokens int
	MaxTokens int
}

// DefaultChunkOptions matches the claims pipeline defaults.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{MinTokens: 800, MaxTokens: 1500}
}

// paragraphSplit matches two or more newlines.
var paragraphSplit = regexp.MustCompile(`\n{2,}`)

// sentenceSplit matches sentence-ending punctuation followed by
// whitespace and an uppercase letter. English-biased; other languages
// just produce larger or smaller chunks.
var sentenceSplit = regexp.MustCompile(`([.!?]["')\]]?)\s+([A-Z])`)

// breakPhrases mark natural section endings; a chunk inside the
// acceptable window is emitted early when its last paragraph contains one.
var breakPhrases = []string{
	"in conclusion",
	"to summarize",
	"to sum up",
	"the key takeaway",
	"the bottom line",
	"moving on",
	"in the next chapter",
}

// ChunkText splits cleaned book text into token-budgeted chunks.
// Paragraph boundaries are preferred; paragraphs larger than the budget
// are sentence-split and packed by the same rule. A trailing chunk below
// MinTokens is merged back when the combined size stays within
// 1.2 x MaxTokens.
func ChunkText(text string, opts ChunkOptions) []Chunk {
	if opts.MinTokens <= 0 || opts.MaxTokens <= 0 {
		def := DefaultChunkOptions()
		if opts.MinTokens <= 0 {
			opts.MinTokens = def.MinTokens
		}
		if opts.MaxTokens <= 0 {
			opts.MaxTokens = def.MaxTokens
		}
	}

	var texts []string
	var current []string
	currentTokens := 0

	emit := func() {
		if len(current) == 0 {
			return
		}
		texts = append(texts, strings.Join(current, "\n\n"))
		current = nil
		currentTokens = 0
	}

	addPiece := func(piece string) {
		tokens := EstimateTokens(piece)
		if currentTokens+tokens > opts.MaxTokens && currentTokens >= opts.MinTokens {
			emit()
		}
		current = append(current, piece)
		currentTokens += tokens
	}

	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if EstimateTokens(para) > opts.MaxTokens {
			for _, sentence := range splitSentences(para) {
				addPiece(sentence)
			}
		} else {
			addPiece(para)
		}

		// Natural break inside the acceptable window ends the chunk early.
		if currentTokens >= opts.MinTokens && currentTokens <= opts.MaxTokens && hasBreakPhrase(para) {
			emit()
		}
	}
	emit()

	// Merge an undersized trailing chunk into its predecessor when the
	// combined size is still acceptable.
	if n := len(texts); n > 1 {
		lastTokens := EstimateTokens(texts[n-1])
		prevTokens := EstimateTokens(texts[n-2])
		limit := opts.MaxTokens + opts.MaxTokens/5
		if lastTokens < opts.MinTokens && prevTokens+lastTokens <= limit {
			texts[n-2] = texts[n-2] + "\n\n" + texts[n-1]
			texts = texts[:n-1]
		}
	}

	texts = capOversized(texts, opts)

	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Index: i, Text: t, TokenCount: EstimateTokens(t)}
	}
	return chunks
}

// capOversized hard-splits any chunk above 1.2 x MaxTokens. Pathological
// inputs (one enormous sentence) can defeat the greedy packer; the size
// invariant holds regardless.
func capOversized(texts []string, opts ChunkOptions) []string {
	limit := opts.MaxTokens + opts.MaxTokens/5
	limitChars := limit * 4

	var out []string
	for _, t := range texts {
		for EstimateTokens(t) > limit {
			cut := limitChars
			// Prefer a whitespace boundary near the cut point.
			if idx := strings.LastIndexAny(t[:cut], " \t\n"); idx > limitChars/2 {
				cut = idx
			}
			out = append(out, strings.TrimSpace(t[:cut]))
			t = strings.TrimSpace(t[cut:])
		}
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitSentences breaks a paragraph on sentence boundaries.
func splitSentences(para string) []string {
	marked := sentenceSplit.ReplaceAllString(para, "$1\x00$2")
	parts := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

func hasBreakPhrase(para string) bool {
	lower := strings.ToLower(para)
	for _, phrase := range breakPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
