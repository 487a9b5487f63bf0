// Package endpoints defines every HTTP route of the distill API and its
// matching CLI command, one file per resource.
package endpoints

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackzampolin/distill/internal/store"
)

// Book is the API representation of a book record.
type Book struct {
	ID                     string     `json:"id"`
	Title                  string     `json:"title"`
	Author                 string     `json:"author,omitempty"`
	FileName               string     `json:"file_name,omitempty"`
	Variant                string     `json:"variant"`
	Status                 string     `json:"status"`
	CurrentStep            string     `json:"current_step,omitempty"`
	Progress               int        `json:"progress"`
	ErrorMessage           string     `json:"error_message,omitempty"`
	PageCount              int        `json:"page_count,omitempty"`
	OriginalWordCount      int        `json:"original_word_count,omitempty"`
	TotalChunks            int        `json:"total_chunks,omitempty"`
	TotalChapters          int        `json:"total_chapters,omitempty"`
	DensityScore           int        `json:"density_score,omitempty"`
	RecommendedCompression float64    `json:"recommended_compression,omitempty"`
	ExtractionMethod       string     `json:"extraction_method,omitempty"`
	ProcessingStartedAt    *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt  *time.Time `json:"processing_completed_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

func bookResponse(b *store.Book) Book {
	return Book{
		ID:                     b.ID,
		Title:                  b.Title,
		Author:                 b.Author,
		FileName:               b.FileName,
		Variant:                string(b.Variant),
		Status:                 string(b.Status),
		CurrentStep:            b.CurrentStep,
		Progress:               b.Progress,
		ErrorMessage:           b.ErrorMessage,
		PageCount:              b.PageCount,
		OriginalWordCount:      b.OriginalWordCount,
		TotalChunks:            b.TotalChunks,
		TotalChapters:          b.TotalChapters,
		DensityScore:           b.DensityScore,
		RecommendedCompression: b.RecommendedCompression,
		ExtractionMethod:       b.ExtractionMethod,
		ProcessingStartedAt:    b.ProcessingStartedAt,
		ProcessingCompletedAt:  b.ProcessingCompletedAt,
		CreatedAt:              b.CreatedAt,
	}
}

// Output is the API representation of a book's distilled document.
type Output struct {
	BookID           string  `json:"book_id"`
	Markdown         string  `json:"markdown"`
	WordCount        int     `json:"word_count"`
	IdeaCount        int     `json:"idea_count,omitempty"`
	ChapterCount     int     `json:"chapter_count,omitempty"`
	CompressionRatio float64 `json:"compression_ratio"`
}

func outputResponse(o *store.FinalOutput) Output {
	return Output{
		BookID:           o.BookID,
		Markdown:         o.Markdown,
		WordCount:        o.WordCount,
		IdeaCount:        o.IdeaCount,
		ChapterCount:     o.ChapterCount,
		CompressionRatio: o.CompressionRatio,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
