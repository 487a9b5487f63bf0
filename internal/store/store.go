// Package store is the typed persistence layer over DefraDB. It owns
// the record types and hides the GraphQL plumbing from the pipelines.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// BookUpdate is a partial update; nil fields are left untouched.
type BookUpdate struct {
	Title                  *string
	Author                 *string
	PageCount              *int
	OriginalWordCount      *int
	Status                 *Status
	CurrentStep            *string
	Progress               *int
	ErrorMessage           *string
	ProcessingStartedAt    *time.Time
	ProcessingCompletedAt  *time.Time
	// ClearProcessingTimes nulls processing_completed_at and clears the
	// error message, used when a run is re-triggered.
	ClearProcessingTimes   bool
	TotalChunks            *int
	TotalChapters          *int
	DensityScore           *int
	RecommendedCompression *float64
	ExtractionMethod       *string
}

// ClaimUpdate sets a claim's filter verdict.
type ClaimUpdate struct {
	Label  *string
	Score  *float64
	Reason *string
}

// ChapterUpdate records a chapter's compression result.
type ChapterUpdate struct {
	CompressedContent    *string
	KeyInsights          *[]string
	CompressedTokenCount *int
}

// Store persists books and everything derived from them.
type Store interface {
	CreateUser(ctx context.Context, u *User) (string, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	CreateBook(ctx context.Context, b *Book) (string, error)
	GetBook(ctx context.Context, id string) (*Book, error)
	ListBooks(ctx context.Context, userID string) ([]Book, error)
	UpdateBook(ctx context.Context, id string, upd BookUpdate) error
	// DeleteBook removes the book and cascades to all child records.
	DeleteBook(ctx context.Context, id string) error

	CreateChunks(ctx context.Context, chunks []Chunk) error
	ListChunks(ctx context.Context, bookID string) ([]Chunk, error)

	CreateChapters(ctx context.Context, chapters []Chapter) error
	ListChapters(ctx context.Context, bookID string) ([]Chapter, error)
	UpdateChapter(ctx context.Context, id string, upd ChapterUpdate) error

	CreateClaims(ctx context.Context, claims []Claim) error
	ListClaims(ctx context.Context, bookID string) ([]Claim, error)
	UpdateClaim(ctx context.Context, id string, upd ClaimUpdate) error

	CreateIdeas(ctx context.Context, ideas []Idea) error
	ListIdeas(ctx context.Context, bookID string) ([]Idea, error)
	// DeleteIdeas removes every idea of the book. Clustering re-runs
	// delete-then-insert so replays never duplicate ideas.
	DeleteIdeas(ctx context.Context, bookID string) error

	UpsertFinalOutput(ctx context.Context, out *FinalOutput) error
	GetFinalOutput(ctx context.Context, bookID string) (*FinalOutput, error)
}
