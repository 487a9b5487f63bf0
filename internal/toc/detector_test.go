package toc

import (
	"context"
	"strings"
	"testing"

	"github.com/jackzampolin/distill/internal/llm"
)

func TestDetectShortInputSkipsModel(t *testing.T) {
	mock := llm.NewMockClient()
	d := NewDetector(mock, nil)

	got, err := d.Detect(context.Background(), []string{"tiny"})
	if err != nil {
		t.Fatal(err)
	}
	if got.HasTOC || got.Confidence != "low" {
		t.Errorf("got %+v, want no TOC at low confidence", got)
	}
	if mock.CallCount() != 0 {
		t.Errorf("model called %d times for short input", mock.CallCount())
	}
}

func TestDetectParsesEntries(t *testing.T) {
	mock := llm.NewMockClient()
	mock.ResponseText = `{
		"has_toc": true,
		"confidence": "high",
		"toc_start_page": 2,
		"toc_end_page": 3,
		"entries": [
			{"title": "Part One", "level": 1},
			{"title": "Chapter 1: Alpha", "normalized_title": "alpha", "page_number": 5, "level": 2},
			{"title": "Chapter 2: Beta", "normalized_title": "beta", "page_number": 20, "level": 2}
		]
	}`
	d := NewDetector(mock, nil)

	pages := []string{strings.Repeat("Contents and front matter text. ", 20)}
	got, err := d.Detect(context.Background(), pages)
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasTOC || got.Confidence != "high" {
		t.Fatalf("got %+v", got)
	}
	if len(got.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(got.Entries))
	}
	// Missing normalized_title is filled from the title.
	if got.Entries[0].NormalizedTitle != "part one" {
		t.Errorf("normalized = %q, want %q", got.Entries[0].NormalizedTitle, "part one")
	}
	if !got.Reliable() {
		t.Error("detection should be reliable")
	}
}

func TestDetectLimitsPages(t *testing.T) {
	mock := llm.NewMockClient()
	mock.ResponseText = `{"has_toc": false, "confidence": "low"}`
	d := NewDetector(mock, nil)

	pages := make([]string, 30)
	for i := range pages {
		pages[i] = strings.Repeat("page text ", 10)
	}
	if _, err := d.Detect(context.Background(), pages); err != nil {
		t.Fatal(err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls", len(calls))
	}
	if n := strings.Count(calls[0].Prompt, "--- PAGE BREAK ---"); n != detectPages-1 {
		t.Errorf("prompt has %d page breaks, want %d", n, detectPages-1)
	}
}

func TestDetectCoercesConfidenceDrift(t *testing.T) {
	mock := llm.NewMockClient()
	mock.ResponseText = "```json\n{\"has_toc\": \"high\", \"confidence\": \"High\"}\n```"
	d := NewDetector(mock, nil)

	pages := []string{strings.Repeat("front matter text here. ", 20)}
	got, err := d.Detect(context.Background(), pages)
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasTOC {
		t.Error("has_toc string should coerce to true")
	}
	if got.Confidence != "high" {
		t.Errorf("confidence = %q, want %q", got.Confidence, "high")
	}
}

func TestReliable(t *testing.T) {
	base := Detection{
		HasTOC:     true,
		Confidence: "medium",
		Entries: []Entry{
			{NormalizedTitle: "part one", Level: 1},
			{NormalizedTitle: "alpha", Level: 2},
			{NormalizedTitle: "beta", Level: 2},
		},
	}
	if !base.Reliable() {
		t.Error("base detection should be reliable")
	}

	noTOC := base
	noTOC.HasTOC = false
	if noTOC.Reliable() {
		t.Error("has_toc=false should not be reliable")
	}

	low := base
	low.Confidence = "low"
	if low.Reliable() {
		t.Error("low confidence should not be reliable")
	}

	few := base
	few.Entries = base.Entries[:2]
	if few.Reliable() {
		t.Error("two entries should not be reliable")
	}

	noChapters := base
	noChapters.Entries = []Entry{
		{NormalizedTitle: "a", Level: 1},
		{NormalizedTitle: "b", Level: 1},
		{NormalizedTitle: "c", Level: 3},
	}
	if noChapters.Reliable() {
		t.Error("detection without chapter-level entries should not be reliable")
	}
}
