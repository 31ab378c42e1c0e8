// Package review implements SM-2 style spaced-repetition scheduling.
package review

import (
	"errors"
	"fmt"
	"math"

	"cloud.google.com/go/civil"
)

const (
	MinQuality  = 0
	MaxQuality  = 5
	PassQuality = 3

	// MinEaseFactor is the floor every ease factor is clamped to.
	MinEaseFactor = 1.3

	// DefaultEaseFactor is the ease a topic starts with when first scheduled.
	DefaultEaseFactor = 2.5

	firstInterval  = 1
	secondInterval = 6
)

var (
	ErrInvalidQuality = errors.New("recall quality must be between 0 and 5")
	ErrInvalidState   = errors.New("invalid review state")
)

// Input is a topic's scheduling state at the moment a review is submitted.
type Input struct {
	Quality      int
	IntervalDays int
	EaseFactor   float64
	ReviewCount  int
}

type Result struct {
	IntervalDays   int
	EaseFactor     float64
	NextReviewDate civil.Date
}

// ComputeNextReview applies one review of the given quality. Failed recalls
// (quality below 3) reset the interval to one day. Neither the interval nor
// the ease factor has an upper bound.
//
// The caller increments the review count and persists the result as a single
// update.
func ComputeNextReview(in Input, today civil.Date) (Result, error) {
	if in.Quality < MinQuality || in.Quality > MaxQuality {
		return Result{}, fmt.Errorf("quality %d: %w", in.Quality, ErrInvalidQuality)
	}
	if in.IntervalDays < 1 || in.EaseFactor < MinEaseFactor || in.ReviewCount < 0 {
		return Result{}, fmt.Errorf("interval %d, ease %.2f, count %d: %w",
			in.IntervalDays, in.EaseFactor, in.ReviewCount, ErrInvalidState)
	}

	ease := NextEaseFactor(in.EaseFactor, in.Quality)

	var interval int
	switch {
	case in.Quality < PassQuality:
		interval = firstInterval
	case in.ReviewCount == 0:
		interval = firstInterval
	case in.ReviewCount == 1:
		interval = secondInterval
	default:
		interval = int(math.Round(float64(in.IntervalDays) * ease))
	}

	return Result{
		IntervalDays:   interval,
		EaseFactor:     ease,
		NextReviewDate: today.AddDays(interval),
	}, nil
}

// NextEaseFactor returns the ease factor after a review of the given quality.
func NextEaseFactor(ease float64, quality int) float64 {
	miss := float64(MaxQuality - quality)
	return math.Max(MinEaseFactor, ease+(0.1-miss*(0.08+miss*0.02)))
}

// Initial returns the state of a topic scheduled for the first time today.
func Initial(today civil.Date) Result {
	return Result{
		IntervalDays:   firstInterval,
		EaseFactor:     DefaultEaseFactor,
		NextReviewDate: today.AddDays(firstInterval),
	}
}
