// Package study manages syllabus topics and their review schedule.
package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/internal/keylock"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/mcclellann/lifeledger/pkg/review"
	"github.com/mcclellann/lifeledger/pkg/store"
	"go.uber.org/zap"
)

var (
	ErrTopicNotCompleted = errors.New("topic has not been completed")
	ErrTopicNotScheduled = errors.New("topic is not scheduled for review")
	ErrInvalidTopic      = errors.New("topic needs a syllabus and a name")
)

// Service handles topic lifecycle and review submission. Writes to one topic
// are serialised.
type Service struct {
	topics store.TopicRepository
	logger *zap.Logger
	now    func() time.Time
	locks  *keylock.Locks[uuid.UUID]
}

type Option func(*Service)

// WithClock replaces time.Now, which decides what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. A nil logger disables logging.
func NewService(topics store.TopicRepository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{topics: topics, logger: logger, now: time.Now, locks: keylock.New[uuid.UUID]()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the service's current date.
func (s *Service) Today() civil.Date {
	return civil.DateOf(s.now())
}

// AddTopic creates an incomplete, unscheduled topic.
func (s *Service) AddTopic(ctx context.Context, ownerKey, syllabus, name string) (*models.Topic, error) {
	syllabus, name = strings.TrimSpace(syllabus), strings.TrimSpace(name)
	if syllabus == "" || name == "" {
		return nil, ErrInvalidTopic
	}

	now := s.now().UTC()
	topic := &models.Topic{
		ID:         uuid.New(),
		OwnerKey:   ownerKey,
		Syllabus:   syllabus,
		Name:       name,
		EaseFactor: review.DefaultEaseFactor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.topics.CreateTopic(ctx, topic); err != nil {
		return nil, fmt.Errorf("failed to store topic: %w", err)
	}
	return topic, nil
}

func (s *Service) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	return s.topics.GetTopic(ctx, id)
}

// ListTopics lists the owner's topics, all syllabuses when syllabus is empty.
func (s *Service) ListTopics(ctx context.Context, ownerKey, syllabus string) ([]*models.Topic, error) {
	return s.topics.ListTopics(ctx, ownerKey, syllabus)
}

func (s *Service) DeleteTopic(ctx context.Context, id uuid.UUID) error {
	defer s.locks.Lock(id)()
	return s.topics.DeleteTopic(ctx, id)
}

// CompleteTopic marks a topic as studied. Completing twice is a no-op.
func (s *Service) CompleteTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	defer s.locks.Lock(id)()

	topic, err := s.topics.GetTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if topic.Completed {
		return topic, nil
	}

	now := s.now().UTC()
	topic.Completed = true
	topic.CompletedAt = &now
	topic.UpdatedAt = now
	if err := s.topics.UpdateTopic(ctx, topic); err != nil {
		return nil, fmt.Errorf("failed to complete topic: %w", err)
	}
	return topic, nil
}

// ScheduleTopic enters a completed topic into review with a first review due
// tomorrow. Scheduling an already scheduled topic leaves it unchanged.
func (s *Service) ScheduleTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	defer s.locks.Lock(id)()

	topic, err := s.topics.GetTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if !topic.Completed {
		return nil, ErrTopicNotCompleted
	}
	if topic.IsScheduled() {
		return topic, nil
	}

	initial := review.Initial(s.Today())
	topic.NextReviewDate = &initial.NextReviewDate
	topic.IntervalDays = initial.IntervalDays
	topic.EaseFactor = initial.EaseFactor
	topic.ReviewCount = 0
	topic.UpdatedAt = s.now().UTC()
	if err := s.topics.UpdateTopic(ctx, topic); err != nil {
		return nil, fmt.Errorf("failed to schedule topic: %w", err)
	}

	s.logger.Info("topic scheduled",
		zap.String("op", "study.ScheduleTopic"),
		zap.String("topic_id", id.String()),
		zap.String("next_review", initial.NextReviewDate.String()))
	return topic, nil
}

// SubmitReview records a review of the given recall quality and moves the
// topic's next review date.
func (s *Service) SubmitReview(ctx context.Context, id uuid.UUID, quality int) (*models.Topic, error) {
	defer s.locks.Lock(id)()

	topic, err := s.topics.GetTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if !topic.IsScheduled() {
		return nil, ErrTopicNotScheduled
	}

	result, err := review.ComputeNextReview(review.Input{
		Quality:      quality,
		IntervalDays: topic.IntervalDays,
		EaseFactor:   topic.EaseFactor,
		ReviewCount:  topic.ReviewCount,
	}, s.Today())
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	fields := models.ReviewFields{
		NextReviewDate: result.NextReviewDate,
		IntervalDays:   result.IntervalDays,
		EaseFactor:     result.EaseFactor,
		ReviewCount:    topic.ReviewCount + 1,
		LastReviewedAt: &now,
	}
	if err := s.topics.UpdateReview(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to record review: %w", err)
	}

	topic.NextReviewDate = &fields.NextReviewDate
	topic.IntervalDays = fields.IntervalDays
	topic.EaseFactor = fields.EaseFactor
	topic.ReviewCount = fields.ReviewCount
	topic.LastReviewedAt = fields.LastReviewedAt
	topic.UpdatedAt = now

	s.logger.Info("review recorded",
		zap.String("op", "study.SubmitReview"),
		zap.String("topic_id", id.String()),
		zap.Int("quality", quality),
		zap.Int("interval_days", fields.IntervalDays),
		zap.Float64("ease_factor", fields.EaseFactor))
	return topic, nil
}

// DueTopics returns the owner's topics due for review on or before on. An
// empty ownerKey returns every owner's due topics.
func (s *Service) DueTopics(ctx context.Context, ownerKey string, on civil.Date) ([]*models.Topic, error) {
	return s.topics.ListDueTopics(ctx, ownerKey, on)
}
