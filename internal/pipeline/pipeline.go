// Package pipeline runs the two distillation pipelines — claims and
// chapters — as detached background jobs, checkpointing every stage
// through the store and reporting progress on the Book record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/distill/internal/llm"
	"github.com/jackzampolin/distill/internal/store"
)

// ErrAlreadyProcessing is returned when a trigger arrives for a book
// that is neither uploaded nor failed.
var ErrAlreadyProcessing = errors.New("book is already being processed")

// Orchestrator owns pipeline execution. One book runs one stage at a
// time; different books run independently.
type Orchestrator struct {
	store  store.Store
	llm    llm.Client
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// NewOrchestrator wires the orchestrator to its store and model client.
func NewOrchestrator(st store.Store, client llm.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:  st,
		llm:    client,
		logger: logger.With("component", "pipeline"),
		active: make(map[string]struct{}),
	}
}

// Trigger starts processing the book in a detached task and returns
// immediately. Accepted only from uploaded or failed; on a re-trigger
// the previous error and completion timestamp are cleared.
func (o *Orchestrator) Trigger(ctx context.Context, bookID string) error {
	// Reserve the book before reading its status, so two concurrent
	// triggers cannot both observe a triggerable status and start
	// duplicate runs.
	o.mu.Lock()
	if _, running := o.active[bookID]; running {
		o.mu.Unlock()
		return ErrAlreadyProcessing
	}
	o.active[bookID] = struct{}{}
	o.mu.Unlock()

	book, err := o.store.GetBook(ctx, bookID)
	if err != nil {
		o.release(bookID)
		return err
	}
	if book.Status != store.StatusUploaded && book.Status != store.StatusFailed {
		o.release(bookID)
		return ErrAlreadyProcessing
	}

	now := time.Now().UTC()
	if err := o.store.UpdateBook(ctx, bookID, store.BookUpdate{
		ProcessingStartedAt:  &now,
		ClearProcessingTimes: true,
	}); err != nil {
		o.release(bookID)
		return err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(bookID)
		// Detached from the request context: client disconnect must not
		// cancel the run.
		o.run(context.Background(), book)
	}()
	return nil
}

func (o *Orchestrator) release(bookID string) {
	o.mu.Lock()
	delete(o.active, bookID)
	o.mu.Unlock()
}

// Wait blocks until all in-flight runs finish. Used on shutdown and in
// tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, book *store.Book) {
	logger := o.logger.With("book_id", book.ID, "variant", string(book.Variant))
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, book.ID, fmt.Errorf("panic: %v", r), logger)
		}
	}()

	var err error
	switch book.Variant {
	case store.VariantChapters:
		err = o.runChapters(ctx, book, logger)
	default:
		err = o.runClaims(ctx, book, logger)
	}

	if err != nil {
		// The book vanishing mid-run means it was deleted; there is
		// nothing left to mark failed.
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("book deleted during processing, exiting")
			return
		}
		o.fail(ctx, book.ID, err, logger)
		return
	}

	logger.Info("pipeline completed", "duration", time.Since(started))
}

// fail marks the book failed with the captured message. Never
// propagates: the run is a background task.
func (o *Orchestrator) fail(ctx context.Context, bookID string, cause error, logger *slog.Logger) {
	logger.Error("pipeline failed", "error", cause)

	status := store.StatusFailed
	step := status.Step()
	msg := cause.Error()
	now := time.Now().UTC()
	err := o.store.UpdateBook(ctx, bookID, store.BookUpdate{
		Status:                &status,
		CurrentStep:           &step,
		ErrorMessage:          &msg,
		ProcessingCompletedAt: &now,
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Error("recording failure state", "error", err)
	}
}

// complete marks the book done at progress 100.
func (o *Orchestrator) complete(ctx context.Context, bookID string) error {
	status := store.StatusCompleted
	step := status.Step()
	progress := 100
	now := time.Now().UTC()
	return o.store.UpdateBook(ctx, bookID, store.BookUpdate{
		Status:                &status,
		CurrentStep:           &step,
		Progress:              &progress,
		ProcessingCompletedAt: &now,
	})
}

// band is a stage's progress range. Stage boundaries never overlap, so
// progress is monotone across a run.
type band struct {
	lo, hi int
}

// Progress bands per stage.
var (
	bandExtract     = band{5, 20}
	bandFilter      = band{20, 40}
	bandCluster     = band{40, 70}
	bandReconstruct = band{70, 100}
	bandCompress    = band{5, 70}
	bandAssemble    = band{75, 95}
)

// at maps item completion into the band.
func (b band) at(completed, total int) int {
	if total <= 0 {
		return b.lo
	}
	return b.lo + (b.hi-b.lo)*completed/total
}

// enterStage moves the book to a stage's status and opening progress.
func (o *Orchestrator) enterStage(ctx context.Context, bookID string, status store.Status, b band) error {
	step := status.Step()
	progress := b.lo
	return o.store.UpdateBook(ctx, bookID, store.BookUpdate{
		Status:      &status,
		CurrentStep: &step,
		Progress:    &progress,
	})
}

// progressFn returns an onProgress callback writing band-mapped
// progress. Write failures are logged, not fatal: progress is
// best-effort while the stage result is not.
func (o *Orchestrator) progressFn(ctx context.Context, bookID string, b band, logger *slog.Logger) func(completed, total int) {
	return func(completed, total int) {
		progress := b.at(completed, total)
		if err := o.store.UpdateBook(ctx, bookID, store.BookUpdate{Progress: &progress}); err != nil {
			logger.Debug("progress update skipped", "error", err)
		}
	}
}

// setStep updates only the human-readable step text.
func (o *Orchestrator) setStep(ctx context.Context, bookID, step string) error {
	return o.store.UpdateBook(ctx, bookID, store.BookUpdate{CurrentStep: &step})
}
