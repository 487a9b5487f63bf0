package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/distill/internal/llm"
	"github.com/jackzampolin/distill/internal/store"
)

// recordingStore wraps a Store and records every book update, so tests
// can assert on status and progress ordering.
type recordingStore struct {
	store.Store

	mu      sync.Mutex
	updates []store.BookUpdate
}

func (r *recordingStore) UpdateBook(ctx context.Context, id string, upd store.BookUpdate) error {
	r.mu.Lock()
	r.updates = append(r.updates, upd)
	r.mu.Unlock()
	return r.Store.UpdateBook(ctx, id, upd)
}

func (r *recordingStore) progressSeen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, u := range r.updates {
		if u.Progress != nil {
			out = append(out, *u.Progress)
		}
	}
	return out
}

func (r *recordingStore) statusesSeen() []store.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Status
	for _, u := range r.updates {
		if u.Status != nil {
			out = append(out, *u.Status)
		}
	}
	return out
}

var claimLine = regexp.MustCompile(`(?m)^\d+\. (.+)$`)

// echoFilter builds a filter reply that labels every claim listed in the
// prompt, echoing each text exactly.
func echoFilter(prompt string, label func(text string) string) string {
	var evals []string
	for _, m := range claimLine.FindAllStringSubmatch(prompt, -1) {
		text := m[1]
		evals = append(evals, fmt.Sprintf(
			`{"claim": %q, "label": %q, "score": 0.8, "reason": "judged"}`, text, label(text)))
	}
	return `{"evaluations": [` + strings.Join(evals, ",") + `]}`
}

func runAndWait(t *testing.T, o *Orchestrator, bookID string) {
	t.Helper()
	if err := o.Trigger(context.Background(), bookID); err != nil {
		t.Fatal(err)
	}
	o.Wait()
}

func seedClaimsBook(t *testing.T, s store.Store, chunks ...string) string {
	t.Helper()
	ctx := context.Background()
	id, err := s.CreateBook(ctx, &store.Book{
		UserID:            "user-1",
		Title:             "Deep Focus",
		Variant:           store.VariantClaims,
		Status:            store.StatusUploaded,
		OriginalWordCount: 50000,
	})
	if err != nil {
		t.Fatal(err)
	}
	var records []store.Chunk
	for i, text := range chunks {
		records = append(records, store.Chunk{BookID: id, Index: i, Text: text})
	}
	if err := s.CreateChunks(ctx, records); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestClaimsPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	rec := &recordingStore{Store: store.NewMemoryStore()}
	id := seedClaimsBook(t, rec, "alpha chunk body", "beta chunk body")

	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		p := req.Prompt
		switch {
		case strings.Contains(p, "Extract every atomic claim") && strings.Contains(p, "alpha"):
			return `{"claims": [{"claim": "Deep work compounds", "type": "principle"}]}`, nil
		case strings.Contains(p, "Extract every atomic claim"):
			return `{"claims": [{"claim": "Shallow work fragments attention", "type": "causal"}]}`, nil
		case strings.Contains(p, "Judge each claim"):
			return echoFilter(p, func(text string) string {
				if strings.Contains(text, "Shallow") {
					return store.LabelFiller
				}
				return store.LabelCoreInsight
			}), nil
		case strings.Contains(p, "Cluster these claims"):
			return `{"ideas": [{"idea_title": "Protect Focus", "merged_claims": ["Deep work compounds"], "summary": "focus wins"}]}`, nil
		case strings.Contains(p, "Write two things for this idea"):
			return `{"principle": "Focus is a multiplier.", "behavior_delta": "Block two hours daily."}`, nil
		case strings.Contains(p, "Reconstruct the distilled core"):
			return "Intro.\n\n## Idea 1: Protect Focus\n\n### Core Principle\nFocus is a multiplier.\n\n### What This Changes\nBlock two hours daily.\n", nil
		}
		return "", fmt.Errorf("unexpected prompt: %.60s", p)
	}}

	o := NewOrchestrator(rec, client, nil)
	runAndWait(t, o, id)

	book, err := rec.GetBook(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if book.Status != store.StatusCompleted {
		t.Fatalf("status = %s, error = %q", book.Status, book.ErrorMessage)
	}
	if book.Progress != 100 || book.ProcessingCompletedAt == nil {
		t.Errorf("progress = %d, completed at = %v", book.Progress, book.ProcessingCompletedAt)
	}

	claims, _ := rec.ListClaims(ctx, id)
	if len(claims) != 2 {
		t.Fatalf("claims = %d", len(claims))
	}
	for _, c := range claims {
		if !c.Filtered() {
			t.Errorf("claim %q left unlabeled", c.Text)
		}
	}

	ideas, _ := rec.ListIdeas(ctx, id)
	if len(ideas) != 1 || ideas[0].Principle != "Focus is a multiplier." {
		t.Fatalf("ideas = %+v", ideas)
	}

	out, err := rec.GetFinalOutput(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.Markdown, "## Idea 1: Protect Focus") {
		t.Errorf("markdown = %q", out.Markdown)
	}
	if out.IdeaCount != 1 || out.WordCount == 0 || out.CompressionRatio <= 0 {
		t.Errorf("output = %+v", out)
	}

	// Progress only moves forward and statuses arrive in stage order.
	progress := rec.progressSeen()
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress went backwards: %v", progress)
			break
		}
	}
	statuses := rec.statusesSeen()
	for i := 1; i < len(statuses); i++ {
		if statuses[i].Rank() < statuses[i-1].Rank() {
			t.Errorf("statuses out of order: %v", statuses)
			break
		}
	}
}

func TestClaimsPipelineNoValuableClaims(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	id := seedClaimsBook(t, s, "only filler here")

	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		p := req.Prompt
		switch {
		case strings.Contains(p, "Extract every atomic claim"):
			return `{"claims": [{"claim": "Water is wet", "type": "principle"}]}`, nil
		case strings.Contains(p, "Judge each claim"):
			return echoFilter(p, func(string) string { return store.LabelFiller }), nil
		}
		return "", fmt.Errorf("unexpected prompt: %.60s", p)
	}}

	o := NewOrchestrator(s, client, nil)
	runAndWait(t, o, id)

	book, _ := s.GetBook(ctx, id)
	if book.Status != store.StatusFailed {
		t.Fatalf("status = %s", book.Status)
	}
	if !strings.Contains(book.ErrorMessage, "No valuable claims") {
		t.Errorf("error = %q", book.ErrorMessage)
	}
	if book.ProcessingCompletedAt == nil {
		t.Error("failed book has no completion timestamp")
	}
}

func TestTriggerGate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	id := seedClaimsBook(t, s, "text")

	status := store.StatusExtractingClaims
	if err := s.UpdateBook(ctx, id, store.BookUpdate{Status: &status}); err != nil {
		t.Fatal(err)
	}

	o := NewOrchestrator(s, llm.NewMockClient(), nil)
	if err := o.Trigger(ctx, id); !errors.Is(err, ErrAlreadyProcessing) {
		t.Errorf("err = %v, want ErrAlreadyProcessing", err)
	}
	if err := o.Trigger(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// A second trigger for a book with a run in flight is rejected even
// before that run has moved the status off uploaded.
func TestTriggerDuplicateWhileInFlight(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	id := seedClaimsBook(t, s, "alpha chunk body")

	release := make(chan struct{})
	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		<-release
		return "", errors.New("model unavailable")
	}}

	o := NewOrchestrator(s, client, nil)
	if err := o.Trigger(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := o.Trigger(ctx, id); !errors.Is(err, ErrAlreadyProcessing) {
		t.Errorf("duplicate trigger err = %v, want ErrAlreadyProcessing", err)
	}
	close(release)
	o.Wait()

	// The run finished and released the book, so a re-trigger from
	// failed is accepted again.
	if err := o.Trigger(ctx, id); err != nil {
		t.Fatalf("re-trigger after release: %v", err)
	}
	o.Wait()
}

// A failed run resumes: extraction and filtering are skipped because
// their output is already persisted, clustering replays without
// duplicating ideas, and the book completes.
func TestRetryAfterLateFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	id := seedClaimsBook(t, s, "alpha chunk body")

	var mu sync.Mutex
	extractCalls := 0
	failReconstruct := true

	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		p := req.Prompt
		switch {
		case strings.Contains(p, "Extract every atomic claim"):
			mu.Lock()
			extractCalls++
			mu.Unlock()
			return `{"claims": [{"claim": "Deep work compounds", "type": "principle"}]}`, nil
		case strings.Contains(p, "Judge each claim"):
			return echoFilter(p, func(string) string { return store.LabelCoreInsight }), nil
		case strings.Contains(p, "Cluster these claims"):
			return `{"ideas": [{"idea_title": "Protect Focus", "merged_claims": ["Deep work compounds"]}]}`, nil
		case strings.Contains(p, "Write two things for this idea"):
			return `{"principle": "P.", "behavior_delta": "B."}`, nil
		case strings.Contains(p, "Reconstruct the distilled core"):
			mu.Lock()
			fail := failReconstruct
			mu.Unlock()
			if fail {
				return "", errors.New("model unavailable")
			}
			return "Intro.\n\n## Idea 1: Protect Focus\n", nil
		}
		return "", fmt.Errorf("unexpected prompt: %.60s", p)
	}}

	o := NewOrchestrator(s, client, nil)
	runAndWait(t, o, id)

	book, _ := s.GetBook(ctx, id)
	if book.Status != store.StatusFailed {
		t.Fatalf("first run status = %s", book.Status)
	}

	mu.Lock()
	failReconstruct = false
	mu.Unlock()
	runAndWait(t, o, id)

	book, _ = s.GetBook(ctx, id)
	if book.Status != store.StatusCompleted {
		t.Fatalf("retry status = %s, error = %q", book.Status, book.ErrorMessage)
	}
	if book.ErrorMessage != "" {
		t.Errorf("retry did not clear the error: %q", book.ErrorMessage)
	}

	mu.Lock()
	if extractCalls != 1 {
		t.Errorf("extraction ran %d times, checkpoint not honored", extractCalls)
	}
	mu.Unlock()

	ideas, _ := s.ListIdeas(ctx, id)
	if len(ideas) != 1 {
		t.Errorf("replayed clustering duplicated ideas: %d", len(ideas))
	}
	claims, _ := s.ListClaims(ctx, id)
	if len(claims) != 1 {
		t.Errorf("claims duplicated on retry: %d", len(claims))
	}
}

// One bad chunk is skipped; the other nine still yield claims.
func TestExtractionIsolatesChunkFailures(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	var texts []string
	for i := 0; i < 10; i++ {
		texts = append(texts, fmt.Sprintf("chunk-%d body", i))
	}
	texts[3] = "poison chunk"
	id := seedClaimsBook(t, s, texts...)

	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		p := req.Prompt
		switch {
		case strings.Contains(p, "poison"):
			return "", errors.New("rate limited")
		case strings.Contains(p, "Extract every atomic claim"):
			return `{"claims": [{"claim": "` + uniqueClaim(p) + `", "type": "rule"}]}`, nil
		case strings.Contains(p, "Judge each claim"):
			return echoFilter(p, func(string) string { return store.LabelCoreInsight }), nil
		case strings.Contains(p, "Cluster these claims"):
			return `{"ideas": [{"idea_title": "One Idea", "merged_claims": ["x"]}]}`, nil
		case strings.Contains(p, "Write two things for this idea"):
			return `{"principle": "P.", "behavior_delta": "B."}`, nil
		case strings.Contains(p, "Reconstruct the distilled core"):
			return "Intro.\n\n## Idea 1: One Idea\n", nil
		}
		return "", fmt.Errorf("unexpected prompt: %.60s", p)
	}}

	o := NewOrchestrator(s, client, nil)
	runAndWait(t, o, id)

	book, _ := s.GetBook(ctx, id)
	if book.Status != store.StatusCompleted {
		t.Fatalf("status = %s, error = %q", book.Status, book.ErrorMessage)
	}
	claims, _ := s.ListClaims(ctx, id)
	if len(claims) != 9 {
		t.Errorf("claims = %d, want 9 with one chunk skipped", len(claims))
	}
}

var chunkMarker = regexp.MustCompile(`chunk-(\d+)`)

// uniqueClaim derives a distinct claim text from the chunk number in
// the prompt so extracted claims never collide across chunks.
func uniqueClaim(prompt string) string {
	if m := chunkMarker.FindStringSubmatch(prompt); m != nil {
		return "Claim from chunk " + m[1]
	}
	return "Claim from unknown chunk"
}

func TestBookDeletedMidRun(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	id := seedClaimsBook(t, s, "alpha chunk body")

	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		p := req.Prompt
		switch {
		case strings.Contains(p, "Extract every atomic claim"):
			return `{"claims": [{"claim": "Deep work compounds", "type": "principle"}]}`, nil
		case strings.Contains(p, "Judge each claim"):
			// Delete the book while the run is mid-flight.
			if err := s.DeleteBook(ctx, id); err != nil {
				return "", err
			}
			return echoFilter(p, func(string) string { return store.LabelCoreInsight }), nil
		}
		return "", fmt.Errorf("unexpected prompt: %.60s", p)
	}}

	o := NewOrchestrator(s, client, nil)
	runAndWait(t, o, id)

	// The run exits silently; nothing resurrects the book.
	if _, err := s.GetBook(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func seedChaptersBook(t *testing.T, s store.Store, chapters ...store.Chapter) string {
	t.Helper()
	ctx := context.Background()
	id, err := s.CreateBook(ctx, &store.Book{
		UserID:                 "user-1",
		Title:                  "Deep Focus",
		Variant:                store.VariantChapters,
		Status:                 store.StatusUploaded,
		OriginalWordCount:      50000,
		RecommendedCompression: 0.3,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := range chapters {
		chapters[i].BookID = id
		chapters[i].Index = i
	}
	if err := s.CreateChapters(ctx, chapters); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestChaptersPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	id := seedChaptersBook(t, s,
		store.Chapter{Title: "The Hook", OriginalContent: "opening chapter text"},
		store.Chapter{Title: "The Method", OriginalContent: "method chapter text"},
	)

	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		p := req.Prompt
		switch {
		case strings.Contains(p, "Compress a chapter"):
			name := "method"
			if strings.Contains(p, "The Hook") {
				name = "hook"
				if !strings.Contains(p, "opening chapter") {
					return "", errors.New("first-chapter flag missing")
				}
			}
			return fmt.Sprintf(
				`{"compressed_content": "compressed %s", "key_insights": ["Insight A", "insight a", "Insight B"]}`, name), nil
		case strings.Contains(p, "Assemble the compressed chapters"):
			if !strings.Contains(p, "compressed hook") || !strings.Contains(p, "compressed method") {
				return "", errors.New("assembly prompt missing compressed bodies")
			}
			return "# Deep Focus\n\nOverview.\n\n## The Hook\ncompressed hook\n\n## The Method\ncompressed method\n\n## Key Takeaways\n- Insight A\n", nil
		}
		return "", fmt.Errorf("unexpected prompt: %.60s", p)
	}}

	o := NewOrchestrator(s, client, nil)
	runAndWait(t, o, id)

	book, _ := s.GetBook(ctx, id)
	if book.Status != store.StatusCompleted {
		t.Fatalf("status = %s, error = %q", book.Status, book.ErrorMessage)
	}

	chapters, _ := s.ListChapters(ctx, id)
	if chapters[0].CompressedContent != "compressed hook" {
		t.Errorf("chapter 0 = %+v", chapters[0])
	}
	// "Insight A" and "insight a" collapse to one.
	if len(chapters[0].KeyInsights) != 2 {
		t.Errorf("insights = %v, duplicates not collapsed", chapters[0].KeyInsights)
	}
	if chapters[0].CompressedTokenCount == 0 {
		t.Error("compressed token count not recorded")
	}

	out, err := s.GetFinalOutput(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if out.ChapterCount != 2 || !strings.Contains(out.Markdown, "## Key Takeaways") {
		t.Errorf("output = %+v", out)
	}
}

// Already-compressed chapters are not re-sent to the model on retry.
func TestChaptersSkipCompressed(t *testing.T) {
	s := store.NewMemoryStore()
	id := seedChaptersBook(t, s,
		store.Chapter{Title: "Done", OriginalContent: "long original", CompressedContent: "already compressed"},
		store.Chapter{Title: "Pending", OriginalContent: "pending original"},
	)

	var mu sync.Mutex
	compressCalls := 0
	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		p := req.Prompt
		switch {
		case strings.Contains(p, "Compress a chapter"):
			mu.Lock()
			compressCalls++
			mu.Unlock()
			return `{"compressed_content": "compressed pending", "key_insights": []}`, nil
		case strings.Contains(p, "Assemble the compressed chapters"):
			return "# Deep Focus\n\nassembled\n", nil
		}
		return "", fmt.Errorf("unexpected prompt: %.60s", p)
	}}

	o := NewOrchestrator(s, client, nil)
	runAndWait(t, o, id)

	mu.Lock()
	defer mu.Unlock()
	if compressCalls != 1 {
		t.Errorf("compress calls = %d, want 1", compressCalls)
	}
}

// A chapter above the token cap is re-split and compressed in parts.
func TestChaptersResplitsOversized(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	para := strings.Repeat("steady words fill the page here. ", 100) // ~800 tokens
	var parts []string
	for i := 0; i < 10; i++ {
		parts = append(parts, para)
	}
	big := strings.Join(parts, "\n\n") // ~8000 tokens, above the cap

	id := seedChaptersBook(t, s, store.Chapter{Title: "Giant", OriginalContent: big})

	var mu sync.Mutex
	compressCalls := 0
	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		p := req.Prompt
		switch {
		case strings.Contains(p, "Compress a chapter"):
			mu.Lock()
			compressCalls++
			n := compressCalls
			mu.Unlock()
			return fmt.Sprintf(`{"compressed_content": "part %d", "key_insights": []}`, n), nil
		case strings.Contains(p, "Assemble the compressed chapters"):
			return "# Deep Focus\n\nassembled\n", nil
		}
		return "", fmt.Errorf("unexpected prompt: %.60s", p)
	}}

	o := NewOrchestrator(s, client, nil)
	runAndWait(t, o, id)

	mu.Lock()
	calls := compressCalls
	mu.Unlock()
	if calls < 2 {
		t.Fatalf("compress calls = %d, oversized chapter was not split", calls)
	}

	chapters, _ := s.ListChapters(ctx, id)
	if !strings.Contains(chapters[0].CompressedContent, "part 1") || !strings.Contains(chapters[0].CompressedContent, "part 2") {
		t.Errorf("compressed parts not joined: %q", chapters[0].CompressedContent)
	}
}

func TestProcessingTimestamps(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	id := seedClaimsBook(t, s, "alpha chunk body")

	client := &llm.MockClient{Handler: func(req *llm.ChatRequest) (string, error) {
		p := req.Prompt
		switch {
		case strings.Contains(p, "Extract every atomic claim"):
			return `{"claims": [{"claim": "C", "type": "principle"}]}`, nil
		case strings.Contains(p, "Judge each claim"):
			return echoFilter(p, func(string) string { return store.LabelCoreInsight }), nil
		case strings.Contains(p, "Cluster these claims"):
			return `{"ideas": [{"idea_title": "I", "merged_claims": ["C"]}]}`, nil
		case strings.Contains(p, "Write two things for this idea"):
			return `{"principle": "P.", "behavior_delta": "B."}`, nil
		case strings.Contains(p, "Reconstruct the distilled core"):
			return "Intro.\n", nil
		}
		return "", fmt.Errorf("unexpected prompt: %.60s", p)
	}}

	before := time.Now().UTC().Add(-time.Second)
	o := NewOrchestrator(s, client, nil)
	runAndWait(t, o, id)

	book, _ := s.GetBook(ctx, id)
	if book.ProcessingStartedAt == nil || book.ProcessingStartedAt.Before(before) {
		t.Errorf("started at = %v", book.ProcessingStartedAt)
	}
	if book.ProcessingCompletedAt == nil || book.ProcessingCompletedAt.Before(*book.ProcessingStartedAt) {
		t.Errorf("completed at = %v", book.ProcessingCompletedAt)
	}
}
