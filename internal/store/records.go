package store

import "time"

// User is an account identity.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	ExternalID   string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Book is the distillation job record. All child records reference it
// by BookID and die with it.
type Book struct {
	ID                     string
	UserID                 string
	Title                  string
	Author                 string
	FileName               string
	PageCount              int
	OriginalWordCount      int
	Variant                Variant
	Status                 Status
	CurrentStep            string
	Progress               int
	ErrorMessage           string
	ProcessingStartedAt    *time.Time
	ProcessingCompletedAt  *time.Time
	TotalChunks            int
	TotalChapters          int
	DensityScore           int
	RecommendedCompression float64
	ExtractionMethod       string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Chunk is a contiguous text segment (claims pipeline).
type Chunk struct {
	ID         string
	BookID     string
	Index      int
	Text       string
	TokenCount int
}

// Chapter is a structural unit (chapters pipeline). Compressed fields
// are filled in during the compression stage.
type Chapter struct {
	ID                   string
	BookID               string
	Index                int
	Title                string
	Level                int
	OriginalContent      string
	OriginalTokenCount   int
	CompressedContent    string
	KeyInsights          []string
	CompressedTokenCount int
}

// Claim types.
const (
	ClaimPrinciple      = "principle"
	ClaimRule           = "rule"
	ClaimRecommendation = "recommendation"
	ClaimConstraint     = "constraint"
	ClaimCausal         = "causal"
)

// Claim labels assigned by the filter stage.
const (
	LabelCoreInsight       = "core_insight"
	LabelSupportingInsight = "supporting_insight"
	LabelRedundant         = "redundant"
	LabelFiller            = "filler"
)

// Claim is an atomic assertion extracted from a chunk. A claim is
// filtered once Label is set; it is kept when the label marks it an
// insight.
type Claim struct {
	ID      string
	BookID  string
	ChunkID string
	Text    string
	Type    string
	Label   string
	Score   float64
	Reason  string
}

// Filtered reports whether the filter stage has labeled this claim.
func (c Claim) Filtered() bool { return c.Label != "" }

// Kept reports whether the claim survives filtering.
func (c Claim) Kept() bool {
	return c.Label == LabelCoreInsight || c.Label == LabelSupportingInsight
}

// Example illustrates an idea; Reason says why it earns its words.
type Example struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Idea is a cluster of claims carrying one decision-changing insight.
type Idea struct {
	ID            string
	BookID        string
	Index         int
	Title         string
	MergedClaims  []string
	Principle     string
	BehaviorDelta string
	Examples      []Example
}

// FinalOutput is the reconstructed markdown, one per book.
type FinalOutput struct {
	ID               string
	BookID           string
	Markdown         string
	WordCount        int
	IdeaCount        int
	ChapterCount     int
	CompressionRatio float64
}
