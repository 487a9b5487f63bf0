package store

import "strings"

// Status is a Book's position in its pipeline.
type Status string

const (
	StatusUploaded            Status = "uploaded"
	StatusExtracting          Status = "extracting"
	StatusDetectingChapters   Status = "detecting_chapters"
	StatusExtractingClaims    Status = "extracting_claims"
	StatusFilteringClaims     Status = "filtering_claims"
	StatusClusteringIdeas     Status = "clustering_ideas"
	StatusReconstructing      Status = "reconstructing"
	StatusCompressingChapters Status = "compressing_chapters"
	StatusAssembling          Status = "assembling"
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
)

// statusRank orders statuses for monotonicity checks. The two pipelines
// share the early and terminal ranks and diverge in the middle.
var statusRank = map[Status]int{
	StatusUploaded:            0,
	StatusExtracting:          1,
	StatusDetectingChapters:   2,
	StatusExtractingClaims:    3,
	StatusFilteringClaims:     4,
	StatusClusteringIdeas:     5,
	StatusReconstructing:      6,
	StatusCompressingChapters: 3,
	StatusAssembling:          4,
	StatusCompleted:           10,
	StatusFailed:              10,
}

// Rank returns the status's position in pipeline order; unknown
// statuses sort first.
func (s Status) Rank() int {
	return statusRank[s]
}

// Terminal reports whether no further transitions happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step renders the status as a human-readable current step.
func (s Status) Step() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// Pipeline variants.
type Variant string

const (
	VariantClaims   Variant = "claims"
	VariantChapters Variant = "chapters"
)
