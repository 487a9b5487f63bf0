// Package density estimates how information-dense a book is and derives
// per-chapter compression targets from the estimate.
package density

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jackzampolin/distill/internal/llm"
	"github.com/jackzampolin/distill/internal/segment"
)

const (
	// sampleTargetChars is the total sample size shown to the model.
	sampleTargetChars = 6000

	// minSampleChars below which analysis is skipped and defaults used.
	minSampleChars = 500

	sampleSeparator = "\n\n---\n\n"
)

// Analysis is the density verdict driving chapter compression.
type Analysis struct {
	DensityScore           int      `json:"density_score"`
	Characteristics        []string `json:"characteristics"`
	RecommendedCompression float64  `json:"recommended_compression"`
	RecommendedContextSize int      `json:"recommended_context_size"`
	AnalysisNotes          string   `json:"analysis_notes,omitempty"`
}

// Defaults returns the analysis used when no reliable verdict exists.
func Defaults(reason string) Analysis {
	return Analysis{
		DensityScore:           5,
		Characteristics:        []string{reason},
		RecommendedCompression: 0.35,
		RecommendedContextSize: 180,
	}
}

// Analyzer runs density analysis against the extraction-tier model.
type Analyzer struct {
	Client llm.Client
	Logger *slog.Logger
}

func NewAnalyzer(client llm.Client, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{Client: client, Logger: logger.With("component", "density")}
}

// Analyze samples the book's chapters and asks the model for a density
// score. Failures never stop a pipeline run: too little sample text or
// a bad reply both fall back to defaults.
func (a *Analyzer) Analyze(ctx context.Context, chapters []segment.ExtractedChapter) Analysis {
	sample := BuildSample(chapters, sampleTargetChars)
	if len(sample) < minSampleChars {
		a.Logger.Warn("sample too small for density analysis", "chars", len(sample))
		return Defaults("insufficient_sample")
	}

	analysis, err := llm.Invoke[Analysis](ctx, a.Client, analysisSchema, buildAnalysisPrompt(sample), llm.TierExtraction, &llm.InvokeOptions{
		Logger: a.Logger,
	})
	if err != nil {
		a.Logger.Warn("density analysis failed, using defaults", "error", err)
		return Defaults("analysis_failed")
	}

	analysis = clamp(analysis)
	a.Logger.Info("density analysis finished",
		"score", analysis.DensityScore,
		"compression", analysis.RecommendedCompression,
		"context_size", analysis.RecommendedContextSize,
	)
	return analysis
}

// BuildSample assembles a representative sample: up to 40% of target
// from the first chapter, up to 30% from the middle one, and the
// remainder from a chapter three quarters in.
func BuildSample(chapters []segment.ExtractedChapter, target int) string {
	if len(chapters) == 0 {
		return ""
	}

	var parts []string
	used := 0
	take := func(ch segment.ExtractedChapter, budget int) {
		if budget <= 0 {
			return
		}
		text := strings.TrimSpace(ch.Text)
		if len(text) > budget {
			text = text[:budget]
		}
		if text == "" {
			return
		}
		parts = append(parts, text)
		used += len(text)
	}

	take(chapters[0], target*40/100)
	if len(chapters) > 1 {
		take(chapters[len(chapters)/2], target*30/100)
	}
	if len(chapters) > 2 {
		take(chapters[len(chapters)*3/4], target-used)
	}

	return strings.Join(parts, sampleSeparator)
}

// clamp bounds the model's recommendation and pins the compression
// ratio inside the band its own density score implies.
func clamp(a Analysis) Analysis {
	if a.DensityScore < 1 {
		a.DensityScore = 1
	}
	if a.DensityScore > 10 {
		a.DensityScore = 10
	}

	var lo, hi float64
	switch {
	case a.DensityScore <= 3:
		lo, hi = 0.20, 0.30
	case a.DensityScore <= 6:
		lo, hi = 0.30, 0.40
	default:
		lo, hi = 0.40, 0.55
	}
	if a.RecommendedCompression < lo {
		a.RecommendedCompression = lo
	}
	if a.RecommendedCompression > hi {
		a.RecommendedCompression = hi
	}
	if a.RecommendedCompression < 0.15 {
		a.RecommendedCompression = 0.15
	}
	if a.RecommendedCompression > 0.60 {
		a.RecommendedCompression = 0.60
	}

	if a.RecommendedContextSize < 100 {
		a.RecommendedContextSize = 100
	}
	if a.RecommendedContextSize > 350 {
		a.RecommendedContextSize = 350
	}
	return a
}
