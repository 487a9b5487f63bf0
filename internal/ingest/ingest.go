// Package ingest turns an uploaded PDF into a Book record with its
// pipeline inputs: text chunks for the claims pipeline, or structural
// chapters plus a density verdict for the chapters pipeline. The book
// always lands in uploaded status; processing is triggered separately.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/distill/internal/density"
	"github.com/jackzampolin/distill/internal/llm"
	"github.com/jackzampolin/distill/internal/segment"
	"github.com/jackzampolin/distill/internal/store"
	"github.com/jackzampolin/distill/internal/toc"
)

// Request contains the parameters for ingesting a book PDF.
type Request struct {
	FilePath string        // uploaded PDF on disk
	FileName string        // original upload name
	Title    string        // optional, derived from FileName if empty
	Author   string        // optional
	Variant  store.Variant // claims (default) or chapters
	UserID   string
}

// Result describes the created book.
type Result struct {
	BookID           string        `json:"book_id"`
	Title            string        `json:"title"`
	Author           string        `json:"author,omitempty"`
	Variant          store.Variant `json:"variant"`
	PageCount        int           `json:"page_count"`
	WordCount        int           `json:"word_count"`
	TotalChunks      int           `json:"total_chunks,omitempty"`
	TotalChapters    int           `json:"total_chapters,omitempty"`
	ExtractionMethod string        `json:"extraction_method,omitempty"`
}

// ProgressFunc receives preprocessing progress. step matches the
// preprocessing step names; pct is 0-100.
type ProgressFunc func(step string, pct int)

// Preprocessing step names reported through ProgressFunc.
const (
	StageExtracting        = "extracting"
	StageDetectingChapters = "detecting_chapters"
	StageSaving            = "saving"
)

// Ingestor preprocesses uploads into pipeline-ready records.
type Ingestor struct {
	store  store.Store
	llm    llm.Client
	logger *slog.Logger
}

func New(st store.Store, client llm.Client, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: st, llm: client, logger: logger.With("component", "ingest")}
}

// IngestPDF extracts text from the PDF at req.FilePath and preprocesses
// it into a Book.
func (in *Ingestor) IngestPDF(ctx context.Context, req Request, emit ProgressFunc) (*Result, error) {
	if emit == nil {
		emit = func(string, int) {}
	}

	pageCount, err := PageCount(req.FilePath)
	if err != nil {
		return nil, err
	}
	emit(StageExtracting, 5)

	pages, err := ExtractPages(req.FilePath)
	if err != nil {
		return nil, err
	}
	emit(StageExtracting, 30)

	return in.Preprocess(ctx, req, pages, pageCount, emit)
}

// Preprocess builds the Book and its child records from extracted page
// text. Split out from IngestPDF so callers with text already in hand
// (and tests) can skip PDF parsing.
func (in *Ingestor) Preprocess(ctx context.Context, req Request, pages []string, pageCount int, emit ProgressFunc) (*Result, error) {
	if emit == nil {
		emit = func(string, int) {}
	}
	variant := req.Variant
	if variant == "" {
		variant = store.VariantClaims
	}

	text := joinPages(pages)
	if len(strings.TrimSpace(text)) == 0 {
		return nil, errors.New("PDF contains no extractable text")
	}
	words := segment.WordCount(text)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DeriveTitle(req.FileName)
	}

	log := in.logger.With("title", title, "variant", string(variant))
	log.Info("preprocessing upload", "pages", pageCount, "words", words)

	book := &store.Book{
		UserID:            req.UserID,
		Title:             title,
		Author:            req.Author,
		FileName:          req.FileName,
		PageCount:         pageCount,
		OriginalWordCount: words,
		Variant:           variant,
		Status:            store.StatusUploaded,
		CreatedAt:         time.Now().UTC(),
	}

	switch variant {
	case store.VariantChapters:
		return in.preprocessChapters(ctx, book, pages, text, log, emit)
	default:
		return in.preprocessClaims(ctx, book, text, log, emit)
	}
}

// preprocessClaims chunks the full text and persists book + chunks.
func (in *Ingestor) preprocessClaims(ctx context.Context, book *store.Book, text string, log *slog.Logger, emit ProgressFunc) (*Result, error) {
	chunks := segment.ChunkText(text, segment.DefaultChunkOptions())
	if len(chunks) == 0 {
		return nil, errors.New("chunking produced no text segments")
	}
	book.TotalChunks = len(chunks)
	emit(StageSaving, 80)

	bookID, err := in.store.CreateBook(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}

	records := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		records[i] = store.Chunk{
			BookID:     bookID,
			Index:      i,
			Text:       c.Text,
			TokenCount: c.TokenCount,
		}
	}
	if err := in.store.CreateChunks(ctx, records); err != nil {
		return nil, fmt.Errorf("creating chunks: %w", err)
	}
	emit(StageSaving, 100)
	log.Info("upload preprocessed", "book_id", bookID, "chunks", len(chunks))

	return &Result{
		BookID:      bookID,
		Title:       book.Title,
		Author:      book.Author,
		Variant:     book.Variant,
		PageCount:   book.PageCount,
		WordCount:   book.OriginalWordCount,
		TotalChunks: len(chunks),
	}, nil
}

// preprocessChapters detects structure, extracts chapters, scores
// density, and persists book + chapters. TOC detection failures fall
// back to the structural extractor's own heuristics.
func (in *Ingestor) preprocessChapters(ctx context.Context, book *store.Book, pages []string, text string, log *slog.Logger, emit ProgressFunc) (*Result, error) {
	emit(StageDetectingChapters, 40)

	detection, err := toc.NewDetector(in.llm, log).Detect(ctx, pages)
	if err != nil {
		log.Warn("toc detection failed, relying on heading scan", "error", err)
		detection = toc.Detection{}
	}

	extraction := segment.ExtractChapters(text, detection)
	if len(extraction.Chapters) == 0 {
		return nil, errors.New("chapter extraction produced no chapters")
	}
	emit(StageDetectingChapters, 60)

	analysis := density.NewAnalyzer(in.llm, log).Analyze(ctx, extraction.Chapters)

	book.TotalChapters = len(extraction.Chapters)
	book.ExtractionMethod = extraction.Method
	book.DensityScore = analysis.DensityScore
	book.RecommendedCompression = analysis.RecommendedCompression
	emit(StageSaving, 80)

	bookID, err := in.store.CreateBook(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}

	records := make([]store.Chapter, len(extraction.Chapters))
	for i, ch := range extraction.Chapters {
		records[i] = store.Chapter{
			BookID:             bookID,
			Index:              ch.Index,
			Title:              ch.Title,
			OriginalContent:    ch.Text,
			OriginalTokenCount: ch.TokenCount,
		}
	}
	if err := in.store.CreateChapters(ctx, records); err != nil {
		return nil, fmt.Errorf("creating chapters: %w", err)
	}
	emit(StageSaving, 100)
	log.Info("upload preprocessed",
		"book_id", bookID,
		"chapters", len(records),
		"method", extraction.Method,
		"density", analysis.DensityScore,
	)

	return &Result{
		BookID:           bookID,
		Title:            book.Title,
		Author:           book.Author,
		Variant:          book.Variant,
		PageCount:        book.PageCount,
		WordCount:        book.OriginalWordCount,
		TotalChapters:    len(records),
		ExtractionMethod: extraction.Method,
	}, nil
}

func joinPages(pages []string) string {
	var nonEmpty []string
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
