package segment

import (
	"strings"
	"testing"
)

// para builds a paragraph of roughly n estimated tokens.
func para(n int) string {
	word := "word "
	count := n * 4 / len(word)
	return strings.TrimSpace(strings.Repeat(word, count))
}

func TestChunkTextRespectsBudget(t *testing.T) {
	var paras []string
	for i := 0; i < 40; i++ {
		paras = append(paras, para(200))
	}
	text := strings.Join(paras, "\n\n")

	opts := DefaultChunkOptions()
	chunks := ChunkText(text, opts)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}

	limit := opts.MaxTokens + opts.MaxTokens/5
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.TokenCount > limit {
			t.Errorf("chunk %d has %d tokens, limit %d", i, c.TokenCount, limit)
		}
		if i < len(chunks)-1 && c.TokenCount < opts.MinTokens {
			t.Errorf("non-final chunk %d has %d tokens, min %d", i, c.TokenCount, opts.MinTokens)
		}
	}
}

func TestChunkTextPreservesContent(t *testing.T) {
	var paras []string
	for i := 0; i < 25; i++ {
		paras = append(paras, para(300))
	}
	text := strings.Join(paras, "\n\n")

	chunks := ChunkText(text, DefaultChunkOptions())

	var got, want strings.Builder
	for _, c := range chunks {
		got.WriteString(strings.Join(strings.Fields(c.Text), " "))
		got.WriteString(" ")
	}
	want.WriteString(strings.Join(strings.Fields(text), " "))
	if strings.TrimSpace(got.String()) != want.String() {
		t.Error("concatenated chunks do not reproduce the input text")
	}
}

func TestChunkTextSentenceSplitsHugeParagraph(t *testing.T) {
	// One paragraph far over budget, made of many sentences.
	var b strings.Builder
	for i := 0; i < 400; i++ {
		b.WriteString("This sentence carries a couple of dozen characters of prose. ")
	}

	opts := DefaultChunkOptions()
	chunks := ChunkText(b.String(), opts)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	limit := opts.MaxTokens + opts.MaxTokens/5
	for i, c := range chunks {
		if c.TokenCount > limit {
			t.Errorf("chunk %d has %d tokens, limit %d", i, c.TokenCount, limit)
		}
	}
}

func TestChunkTextBreakPhraseEndsChunkEarly(t *testing.T) {
	// Three paragraphs: budget-filling, break phrase inside window, more text.
	parts := []string{
		para(900),
		"In conclusion, the argument stands on its own merits and needs no restatement.",
		para(900),
	}
	chunks := ChunkText(strings.Join(parts, "\n\n"), DefaultChunkOptions())
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want a break after the conclusion", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "In conclusion") {
		t.Error("first chunk should end with the break-phrase paragraph")
	}
	if strings.Contains(chunks[0].Text, chunks[1].Text[:40]) {
		t.Error("second chunk text leaked into the first")
	}
}

func TestChunkTextMergesShortTail(t *testing.T) {
	// A tail under minTokens merges back when combined size allows.
	parts := []string{para(1450), para(100)}
	opts := DefaultChunkOptions()
	chunks := ChunkText(strings.Join(parts, "\n\n"), opts)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want merged single chunk", len(chunks))
	}
}

func TestChunkTextHardCapsPathologicalInput(t *testing.T) {
	// One enormous "sentence" with no boundaries the splitter recognizes.
	text := strings.Repeat("wordswithoutboundaries ", 2000)
	opts := DefaultChunkOptions()
	chunks := ChunkText(text, opts)
	limit := opts.MaxTokens + opts.MaxTokens/5
	for i, c := range chunks {
		if c.TokenCount > limit {
			t.Errorf("chunk %d has %d tokens, limit %d", i, c.TokenCount, limit)
		}
	}
}

func TestChunkTextEmptyAndTiny(t *testing.T) {
	if got := ChunkText("", DefaultChunkOptions()); len(got) != 0 {
		t.Errorf("empty text produced %d chunks", len(got))
	}
	chunks := ChunkText("Just one short paragraph.", DefaultChunkOptions())
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "Just one short paragraph." {
		t.Errorf("chunk text = %q", chunks[0].Text)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 100), 25},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount("one  two\nthree"); got != 3 {
		t.Errorf("WordCount = %d, want 3", got)
	}
}
