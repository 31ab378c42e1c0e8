package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Topic is a completable learning unit of a syllabus that takes part in
// spaced-repetition review once it has been scheduled.
type Topic struct {
	ID             uuid.UUID   `json:"id"`
	OwnerKey       string      `json:"owner_key"`
	Syllabus       string      `json:"syllabus"`
	Name           string      `json:"name"`
	Completed      bool        `json:"completed"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	NextReviewDate *civil.Date `json:"next_review_date,omitempty"` // nil until first scheduled
	IntervalDays   int         `json:"interval_days"`
	EaseFactor     float64     `json:"ease_factor"`
	ReviewCount    int         `json:"review_count"`
	LastReviewedAt *time.Time  `json:"last_reviewed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// IsScheduled reports whether the topic has entered review scheduling.
func (t *Topic) IsScheduled() bool {
	return t.NextReviewDate != nil
}

// ReviewFields is the set of columns written atomically after a review.
type ReviewFields struct {
	NextReviewDate civil.Date
	IntervalDays   int
	EaseFactor     float64
	ReviewCount    int
	LastReviewedAt *time.Time
}
