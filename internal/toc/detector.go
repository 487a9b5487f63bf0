package toc

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jackzampolin/distill/internal/llm"
)

const (
	// detectPages is how many leading pages are shown to the model.
	// A TOC past page 15 is rare enough to ignore.
	detectPages = 15

	// minSampleChars below which detection is skipped entirely.
	minSampleChars = 200

	pageBreakMarker = "\n\n--- PAGE BREAK ---\n\n"
)

// Entry is one table-of-contents line. Level 1 is a part, level 2 a
// chapter, level 3 a subsection.
type Entry struct {
	Title           string `json:"title"`
	NormalizedTitle string `json:"normalized_title"`
	PageNumber      int    `json:"page_number,omitempty"`
	Level           int    `json:"level"`
}

// Detection is the structured result of a TOC scan.
type Detection struct {
	HasTOC       bool    `json:"has_toc"`
	Entries      []Entry `json:"entries"`
	TOCStartPage int     `json:"toc_start_page,omitempty"`
	TOCEndPage   int     `json:"toc_end_page,omitempty"`
	Confidence   string  `json:"confidence"`
}

// Reliable reports whether the detection is trustworthy enough to drive
// chapter segmentation on its own: a found TOC with at least three
// entries, at least two of them chapter-level, and better than low
// confidence.
func (d Detection) Reliable() bool {
	if !d.HasTOC || d.Confidence == "low" || len(d.Entries) < 3 {
		return false
	}
	chapters := 0
	for _, e := range d.Entries {
		if e.Level == 2 {
			chapters++
		}
	}
	return chapters >= 2
}

// Detector runs TOC detection against the extraction-tier model.
type Detector struct {
	Client llm.Client
	Logger *slog.Logger
}

func NewDetector(client llm.Client, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{Client: client, Logger: logger.With("component", "toc")}
}

// Detect scans the book's leading pages for a table of contents.
// Inputs shorter than minSampleChars skip the model call and report no
// TOC at low confidence.
func (d *Detector) Detect(ctx context.Context, pages []string) (Detection, error) {
	if len(pages) > detectPages {
		pages = pages[:detectPages]
	}
	sample := strings.Join(pages, pageBreakMarker)

	if len(sample) < minSampleChars {
		d.Logger.Debug("sample too short for toc detection", "chars", len(sample))
		return Detection{HasTOC: false, Confidence: "low"}, nil
	}

	detection, err := llm.Invoke[Detection](ctx, d.Client, detectSchema, buildDetectPrompt(sample), llm.TierExtraction, &llm.InvokeOptions{
		Logger: d.Logger,
	})
	if err != nil {
		return Detection{}, err
	}

	for i := range detection.Entries {
		e := &detection.Entries[i]
		if e.NormalizedTitle == "" {
			e.NormalizedTitle = NormalizeTitle(e.Title)
		}
		if e.Level < 1 || e.Level > 3 {
			e.Level = 2
		}
	}

	d.Logger.Info("toc detection finished",
		"has_toc", detection.HasTOC,
		"entries", len(detection.Entries),
		"confidence", detection.Confidence,
	)
	return detection, nil
}
