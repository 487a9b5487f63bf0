package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackzampolin/distill/internal/llm"
	"github.com/jackzampolin/distill/internal/parallel"
	"github.com/jackzampolin/distill/internal/segment"
	"github.com/jackzampolin/distill/internal/store"
)

const (
	// compressConcurrency bounds parallel chapter-compression calls.
	// Lower than extraction: these are reasoning-tier calls.
	compressConcurrency = 3

	// maxChapterInsights caps the takeaways kept per chapter.
	maxChapterInsights = 5

	// defaultCompressionRatio applies when density analysis left no
	// recommendation on the book.
	defaultCompressionRatio = 0.35

	// compressionContextWords is how much framing context a compressed
	// chapter carries so it stands alone.
	compressionContextWords = 180
)

// runChapters executes the chapters pipeline: compress every chapter,
// then assemble the compressed chapters into one document. Compression
// results checkpoint per chapter, so a retried run only compresses what
// the previous run did not finish.
func (o *Orchestrator) runChapters(ctx context.Context, book *store.Book, logger *slog.Logger) error {
	chapters, err := o.compressChapters(ctx, book, logger)
	if err != nil {
		return err
	}

	if err := o.assemble(ctx, book, chapters, logger); err != nil {
		return err
	}

	return o.complete(ctx, book.ID)
}

// compressChapters compresses each chapter with a reasoning call.
// Chapters above the per-call token cap are re-split, compressed in
// parts, and joined. A chapter whose call fails keeps its original
// content; assembly falls back to it.
func (o *Orchestrator) compressChapters(ctx context.Context, book *store.Book, logger *slog.Logger) ([]store.Chapter, error) {
	if err := o.enterStage(ctx, book.ID, store.StatusCompressingChapters, bandCompress); err != nil {
		return nil, err
	}

	chapters, err := o.store.ListChapters(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	if len(chapters) == 0 {
		return nil, errors.New("book has no chapters to compress")
	}

	ratio := book.RecommendedCompression
	if ratio <= 0 {
		ratio = defaultCompressionRatio
	}

	results := parallel.Map(ctx, chapters, func(ctx context.Context, ch store.Chapter, _ int) (compression, error) {
		if ch.CompressedContent != "" {
			// Already compressed by a previous run.
			return compression{CompressedContent: ch.CompressedContent, KeyInsights: ch.KeyInsights}, nil
		}
		return o.compressOne(ctx, book, ch, ratio)
	}, parallel.Options{
		Concurrency: compressConcurrency,
		OnProgress:  o.progressFn(ctx, book.ID, bandCompress, logger),
	})

	failed := 0
	for _, r := range results {
		ch := &chapters[r.Index]
		if r.Err != nil {
			failed++
			logger.Warn("chapter compression failed, keeping original", "chapter", ch.Title, "error", r.Err)
			continue
		}
		content := strings.TrimSpace(r.Value.CompressedContent)
		if content == "" || content == ch.CompressedContent {
			continue
		}
		insights := dedupeInsights(r.Value.KeyInsights, maxChapterInsights)
		tokens := segment.EstimateTokens(content)
		if err := o.store.UpdateChapter(ctx, ch.ID, store.ChapterUpdate{
			CompressedContent:    &content,
			KeyInsights:          &insights,
			CompressedTokenCount: &tokens,
		}); err != nil {
			return nil, err
		}
		ch.CompressedContent = content
		ch.KeyInsights = insights
		ch.CompressedTokenCount = tokens
	}
	if failed == len(chapters) {
		return nil, fmt.Errorf("all %d chapter compressions failed", failed)
	}
	logger.Info("chapters compressed", "chapters", len(chapters), "failed", failed)

	return chapters, nil
}

// compressOne compresses a single chapter, re-splitting it when it
// exceeds the per-call token cap and joining the compressed parts.
func (o *Orchestrator) compressOne(ctx context.Context, book *store.Book, ch store.Chapter, ratio float64) (compression, error) {
	isFirst := ch.Index == 0

	parts := []string{ch.OriginalContent}
	if segment.EstimateTokens(ch.OriginalContent) > segment.MaxChapterTokens {
		parts = segment.SplitText(ch.OriginalContent, segment.MaxChapterTokens)
	}

	var bodies []string
	var insights []string
	for i, part := range parts {
		prompt := buildCompressPrompt(book.Title, ch, isFirst && i == 0, ratio, compressionContextWords, part)
		reply, err := llm.Invoke[compression](ctx, o.llm, compressSchema, prompt, llm.TierReasoning, nil)
		if err != nil {
			return compression{}, err
		}
		if body := strings.TrimSpace(reply.CompressedContent); body != "" {
			bodies = append(bodies, body)
		}
		insights = append(insights, reply.KeyInsights...)
	}
	if len(bodies) == 0 {
		return compression{}, errors.New("compression returned empty content")
	}

	return compression{
		CompressedContent: strings.Join(bodies, "\n\n"),
		KeyInsights:       insights,
	}, nil
}

// dedupeInsights keeps the first occurrence of each insight, up to max.
func dedupeInsights(insights []string, max int) []string {
	seen := make(map[string]bool, len(insights))
	out := make([]string, 0, max)
	for _, in := range insights {
		in = strings.TrimSpace(in)
		key := strings.ToLower(in)
		if in == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, in)
		if len(out) == max {
			break
		}
	}
	return out
}

// assemble joins the compressed chapters into the final document with a
// single text call and upserts it as the book's output. Chapters whose
// compression failed contribute their original content.
func (o *Orchestrator) assemble(ctx context.Context, book *store.Book, chapters []store.Chapter, logger *slog.Logger) error {
	if err := o.enterStage(ctx, book.ID, store.StatusAssembling, bandAssemble); err != nil {
		return err
	}

	input := make([]store.Chapter, len(chapters))
	copy(input, chapters)
	for i := range input {
		if input[i].CompressedContent == "" {
			input[i].CompressedContent = input[i].OriginalContent
		}
	}

	markdown, err := llm.InvokeText(ctx, o.llm, buildAssemblePrompt(book.Title, input), llm.TierReasoning, nil)
	if err != nil {
		return fmt.Errorf("assembling output: %w", err)
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return errors.New("assembly produced an empty document")
	}

	words := len(strings.Fields(markdown))
	ratio := 0.0
	if book.OriginalWordCount > 0 {
		ratio = float64(words) / float64(book.OriginalWordCount)
	}

	out := &store.FinalOutput{
		BookID:           book.ID,
		Markdown:         markdown,
		WordCount:        words,
		ChapterCount:     len(chapters),
		CompressionRatio: ratio,
	}
	if err := o.store.UpsertFinalOutput(ctx, out); err != nil {
		return err
	}
	logger.Info("output assembled", "words", words, "chapters", len(chapters), "ratio", ratio)
	return nil
}
