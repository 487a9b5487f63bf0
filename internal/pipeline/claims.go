package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackzampolin/distill/internal/llm"
	"github.com/jackzampolin/distill/internal/parallel"
	"github.com/jackzampolin/distill/internal/store"
)

const (
	// extractConcurrency bounds parallel claim-extraction calls.
	extractConcurrency = 5

	// filterBatchSize is how many claims a single filter call judges.
	filterBatchSize = 20

	// expandConcurrency bounds parallel idea-expansion calls.
	expandConcurrency = 5
)

// errNoValuableClaims is the user-facing failure for a book where
// nothing survives filtering.
var errNoValuableClaims = errors.New("No valuable claims found in this book")

// runClaims executes the claims pipeline: extract claims per chunk,
// filter, cluster into ideas, expand each idea, reconstruct markdown.
// Each stage checkpoints to the store, so a failed run resumes past the
// stages that already persisted their output.
func (o *Orchestrator) runClaims(ctx context.Context, book *store.Book, logger *slog.Logger) error {
	claims, err := o.extractClaims(ctx, book, logger)
	if err != nil {
		return err
	}

	claims, err = o.filterClaims(ctx, book, claims, logger)
	if err != nil {
		return err
	}

	ideas, err := o.clusterIdeas(ctx, book, claims, logger)
	if err != nil {
		return err
	}

	if err := o.reconstruct(ctx, book, ideas, logger); err != nil {
		return err
	}

	return o.complete(ctx, book.ID)
}

// extractClaims runs one extraction call per chunk. A chunk whose call
// fails is logged and skipped; the stage only fails when the store does.
// Extraction is skipped entirely when a previous run already persisted
// claims.
func (o *Orchestrator) extractClaims(ctx context.Context, book *store.Book, logger *slog.Logger) ([]store.Claim, error) {
	if err := o.enterStage(ctx, book.ID, store.StatusExtractingClaims, bandExtract); err != nil {
		return nil, err
	}

	existing, err := o.store.ListClaims(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		logger.Info("claims already extracted, skipping", "claims", len(existing))
		return existing, nil
	}

	chunks, err := o.store.ListChunks(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("book has no chunks to extract claims from")
	}

	results := parallel.Map(ctx, chunks, func(ctx context.Context, chunk store.Chunk, _ int) ([]store.Claim, error) {
		reply, err := llm.Invoke[claimExtraction](ctx, o.llm, extractSchema, buildExtractPrompt(chunk.Text), llm.TierExtraction, nil)
		if err != nil {
			return nil, err
		}
		var claims []store.Claim
		for _, item := range reply.Claims {
			text := strings.TrimSpace(item.Claim)
			if text == "" {
				continue
			}
			claims = append(claims, store.Claim{
				BookID:  book.ID,
				ChunkID: chunk.ID,
				Text:    text,
				Type:    item.Type,
			})
		}
		return claims, nil
	}, parallel.Options{
		Concurrency: extractConcurrency,
		OnProgress:  o.progressFn(ctx, book.ID, bandExtract, logger),
	})

	var claims []store.Claim
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Warn("chunk extraction failed, skipping", "chunk", chunks[r.Index].Index, "error", r.Err)
			continue
		}
		claims = append(claims, r.Value...)
	}
	logger.Info("claims extracted", "claims", len(claims), "chunks", len(chunks), "failed_chunks", failed)

	if len(claims) > 0 {
		if err := o.store.CreateClaims(ctx, claims); err != nil {
			return nil, err
		}
	}
	if err := o.setStep(ctx, book.ID, "Claims extracted"); err != nil {
		return nil, err
	}

	// Re-read so every claim carries its store ID for the filter stage.
	return o.store.ListClaims(ctx, book.ID)
}

// filterClaims judges unlabeled claims in batches. Duplicate texts
// within a batch are sent once and the verdict fans out to every claim
// sharing the text. A batch whose call fails leaves its claims
// unlabeled; they simply do not survive into clustering.
func (o *Orchestrator) filterClaims(ctx context.Context, book *store.Book, claims []store.Claim, logger *slog.Logger) ([]store.Claim, error) {
	if err := o.enterStage(ctx, book.ID, store.StatusFilteringClaims, bandFilter); err != nil {
		return nil, err
	}

	var pending []store.Claim
	for _, c := range claims {
		if !c.Filtered() {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		logger.Info("all claims already filtered, skipping")
		return claims, nil
	}

	type verdictSet map[string]evaluation

	results := parallel.MapBatch(ctx, pending, filterBatchSize, func(ctx context.Context, batch []store.Claim, _ int) (verdictSet, error) {
		// One entry per distinct text; the verdict applies to every
		// claim in the batch with that text.
		seen := make(map[string]bool, len(batch))
		var unique []store.Claim
		for _, c := range batch {
			if seen[c.Text] {
				continue
			}
			seen[c.Text] = true
			unique = append(unique, c)
		}

		reply, err := llm.Invoke[filterVerdicts](ctx, o.llm, filterSchema, buildFilterPrompt(unique), llm.TierFiltering, nil)
		if err != nil {
			return nil, err
		}

		verdicts := make(verdictSet, len(reply.Evaluations))
		for _, ev := range reply.Evaluations {
			verdicts[strings.TrimSpace(ev.Claim)] = ev
		}
		return verdicts, nil
	}, parallel.Options{
		Concurrency: extractConcurrency,
		OnProgress:  o.progressFn(ctx, book.ID, bandFilter, logger),
	})

	batches := parallel.Batch(pending, filterBatchSize)
	kept, discarded, unmatched := 0, 0, 0
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("filter batch failed, skipping", "batch", r.Index, "error", r.Err)
			continue
		}
		for _, c := range batches[r.Index] {
			ev, ok := r.Value[c.Text]
			if !ok {
				unmatched++
				logger.Warn("no verdict for claim, leaving unlabeled", "claim_id", c.ID)
				continue
			}
			label, score, reason := ev.Label, ev.Score, ev.Reason
			if err := o.store.UpdateClaim(ctx, c.ID, store.ClaimUpdate{Label: &label, Score: &score, Reason: &reason}); err != nil {
				return nil, err
			}
			if (store.Claim{Label: label}).Kept() {
				kept++
			} else {
				discarded++
			}
		}
	}
	logger.Info("claims filtered", "kept", kept, "discarded", discarded, "unmatched", unmatched)

	return o.store.ListClaims(ctx, book.ID)
}

// clusterIdeas merges the surviving claims into 7-12 ideas with one
// reasoning call, then expands each idea in parallel. Ideas are
// replaced wholesale (delete then insert) so a replayed run never
// duplicates them.
func (o *Orchestrator) clusterIdeas(ctx context.Context, book *store.Book, claims []store.Claim, logger *slog.Logger) ([]store.Idea, error) {
	if err := o.enterStage(ctx, book.ID, store.StatusClusteringIdeas, bandCluster); err != nil {
		return nil, err
	}

	var kept []store.Claim
	for _, c := range claims {
		if c.Kept() {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, errNoValuableClaims
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	reply, err := llm.Invoke[clusterResult](ctx, o.llm, clusterSchema, buildClusterPrompt(kept), llm.TierReasoning, nil)
	if err != nil {
		return nil, fmt.Errorf("clustering claims: %w", err)
	}
	if len(reply.Ideas) == 0 {
		return nil, fmt.Errorf("clustering produced no ideas")
	}
	logger.Info("claims clustered", "kept_claims", len(kept), "ideas", len(reply.Ideas))

	ideas := make([]store.Idea, len(reply.Ideas))
	for i, cluster := range reply.Ideas {
		ideas[i] = store.Idea{
			BookID:       book.ID,
			Index:        i,
			Title:        cluster.IdeaTitle,
			MergedClaims: cluster.MergedClaims,
		}
	}

	// Expansion shares the clustering band; progress advances through
	// its upper half as ideas finish.
	expandBand := band{lo: (bandCluster.lo + bandCluster.hi) / 2, hi: bandCluster.hi}
	results := parallel.Map(ctx, ideas, func(ctx context.Context, idea store.Idea, i int) (expansion, error) {
		return llm.Invoke[expansion](ctx, o.llm, expandSchema, buildExpandPrompt(idea, reply.Ideas[i].Summary), llm.TierReasoning, nil)
	}, parallel.Options{
		Concurrency: expandConcurrency,
		OnProgress:  o.progressFn(ctx, book.ID, expandBand, logger),
	})

	for _, r := range results {
		if r.Err != nil {
			logger.Warn("idea expansion failed, keeping bare idea", "idea", ideas[r.Index].Title, "error", r.Err)
			continue
		}
		ideas[r.Index].Principle = r.Value.Principle
		ideas[r.Index].BehaviorDelta = r.Value.BehaviorDelta
	}

	if err := o.store.DeleteIdeas(ctx, book.ID); err != nil {
		return nil, err
	}
	if err := o.store.CreateIdeas(ctx, ideas); err != nil {
		return nil, err
	}
	return o.store.ListIdeas(ctx, book.ID)
}

// reconstruct turns the ideas into the final markdown document and
// upserts it as the book's output.
func (o *Orchestrator) reconstruct(ctx context.Context, book *store.Book, ideas []store.Idea, logger *slog.Logger) error {
	if err := o.enterStage(ctx, book.ID, store.StatusReconstructing, bandReconstruct); err != nil {
		return err
	}

	markdown, err := llm.InvokeText(ctx, o.llm, buildReconstructPrompt(book.Title, ideas), llm.TierReasoning, nil)
	if err != nil {
		return fmt.Errorf("reconstructing output: %w", err)
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return fmt.Errorf("reconstruction produced an empty document")
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
		IdeaCount:        len(ideas),
		CompressionRatio: ratio,
	}
	if err := o.store.UpsertFinalOutput(ctx, out); err != nil {
		return err
	}
	logger.Info("output reconstructed", "words", words, "ideas", len(ideas), "ratio", ratio)
	return nil
}
