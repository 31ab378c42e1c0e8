package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/models"
)

// ErrNotFound is returned when a loan, schedule entry or topic does not exist.
var ErrNotFound = errors.New("not found")

// LoanRepository persists loans.
type LoanRepository interface {
	// CreateLoan stores a loan together with its initial schedule.
	CreateLoan(ctx context.Context, loan *models.Loan, schedule []models.ScheduleEntry) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	DeleteLoan(ctx context.Context, id uuid.UUID) error
	ListLoans(ctx context.Context, ownerKey string) ([]*models.Loan, error)
	ListActiveLoans(ctx context.Context) ([]*models.Loan, error)
}

// ScheduleRepository persists amortization schedules.
type ScheduleRepository interface {
	// SaveSchedule replaces every entry of the loan's schedule with entries.
	SaveSchedule(ctx context.Context, loanID uuid.UUID, entries []models.ScheduleEntry) error
	GetSchedule(ctx context.Context, loanID uuid.UUID) ([]models.ScheduleEntry, error)
	// SavePayment updates one entry and its loan in a single transaction.
	SavePayment(ctx context.Context, loan *models.Loan, entry *models.ScheduleEntry) error
	// ListDueEntries returns Pending entries of active loans due within [from, to].
	ListDueEntries(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error)
}

// EventRepository reads the append-only adjustment history. Events are only
// written through ApplyAdjustment.
type EventRepository interface {
	ListEvents(ctx context.Context, loanID uuid.UUID) ([]*models.AdjustmentEvent, error)
}

// TopicRepository persists syllabus topics and their review state.
type TopicRepository interface {
	CreateTopic(ctx context.Context, topic *models.Topic) error
	GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error)
	UpdateTopic(ctx context.Context, topic *models.Topic) error
	DeleteTopic(ctx context.Context, id uuid.UUID) error
	ListTopics(ctx context.Context, ownerKey, syllabus string) ([]*models.Topic, error)
	// ListDueTopics returns scheduled topics whose next review is on or before on.
	// An empty ownerKey matches every owner.
	ListDueTopics(ctx context.Context, ownerKey string, on civil.Date) ([]*models.Topic, error)
	// UpdateReview writes the review fields of one topic as a single update.
	UpdateReview(ctx context.Context, id uuid.UUID, fields models.ReviewFields) error
}

// Storage defines the interface for database operations.
type Storage interface {
	LoanRepository
	ScheduleRepository
	EventRepository
	TopicRepository

	// ApplyAdjustment replaces the loan's schedule, updates the loan and
	// appends event, all or nothing.
	ApplyAdjustment(ctx context.Context, loan *models.Loan, entries []models.ScheduleEntry, event *models.AdjustmentEvent) error

	Close() error
}
