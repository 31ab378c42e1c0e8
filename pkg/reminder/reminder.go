// Package reminder periodically notifies owners about upcoming instalments
// and topics due for review.
package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/ledger"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/mcclellann/lifeledger/pkg/notify"
	"go.uber.org/zap"
)

// Report counts the reminders sent by one sweep.
type Report struct {
	Instalments int
	Reviews     int
}

type Option func(*Reminder)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Reminder) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reminder) { r.now = now }
}

// WithLeadDays sets how many days before the due date an instalment
// reminder is sent.
func WithLeadDays(days int) Option {
	return func(r *Reminder) { r.leadDays = days }
}

// Reminder sweeps due instalments and reviews. Each reminder is sent once;
// a failed delivery is retried on the next sweep.
type Reminder struct {
	ledger   *ledger.Ledger
	topics   TopicSource
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
	leadDays int

	mu   sync.Mutex
	sent map[string]civil.Date // reminder key -> date after which it can be forgotten
}

// TopicSource lists topics due for review. An empty owner means every owner.
type TopicSource interface {
	DueTopics(ctx context.Context, ownerKey string, on civil.Date) ([]*models.Topic, error)
}

func New(l *ledger.Ledger, topics TopicSource, notifier notify.Notifier, opts ...Option) *Reminder {
	r := &Reminder{
		ledger:   l,
		topics:   topics,
		notifier: notifier,
		logger:   zap.NewNop(),
		now:      time.Now,
		sent:     make(map[string]civil.Date),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	return r
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (r *Reminder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.logger.Debug("running reminder sweep", zap.String("op", "reminder.Run"))
		report, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("reminder sweep failed", zap.String("op", "reminder.Run"), zap.Error(err))
		} else if report.Instalments > 0 || report.Reviews > 0 {
			r.logger.Info("reminders sent",
				zap.String("op", "reminder.Run"),
				zap.Int("instalments", report.Instalments),
				zap.Int("reviews", report.Reviews))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep.
func (r *Reminder) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	today := civil.DateOf(r.now())
	r.forget(today)

	n, err := r.remindInstalments(ctx, today)
	report.Instalments = n
	if err != nil {
		return report, err
	}

	n, err = r.remindReviews(ctx, today)
	report.Reviews = n
	return report, err
}

func (r *Reminder) remindInstalments(ctx context.Context, today civil.Date) (int, error) {
	entries, err := r.ledger.DueInstalments(ctx, today, today.AddDays(r.leadDays))
	if err != nil {
		return 0, fmt.Errorf("failed to list due instalments: %w", err)
	}

	loans := make(map[uuid.UUID]*models.Loan)
	sent := 0
	for i := range entries {
		entry := &entries[i]
		key := fmt.Sprintf("emi:%s:%d:%s", entry.LoanID, entry.Month, entry.DueDate)
		if r.wasSent(key) {
			continue
		}

		loan, ok := loans[entry.LoanID]
		if !ok {
			loan, err = r.ledger.GetLoan(ctx, entry.LoanID)
			if err != nil {
				return sent, fmt.Errorf("failed to load loan %s: %w", entry.LoanID, err)
			}
			loans[entry.LoanID] = loan
		}

		if err := r.notifier.Notify(ctx, notify.InstalmentDue(loan, entry)); err != nil {
			r.logger.Warn("instalment reminder failed",
				zap.String("op", "reminder.remindInstalments"),
				zap.String("loan_id", entry.LoanID.String()),
				zap.Int("month", entry.Month),
				zap.Error(err))
			continue
		}
		r.markSent(key, entry.DueDate)
		sent++
	}
	return sent, nil
}

// remindReviews sends one digest per owner per day.
func (r *Reminder) remindReviews(ctx context.Context, today civil.Date) (int, error) {
	topics, err := r.topics.DueTopics(ctx, "", today)
	if err != nil {
		return 0, fmt.Errorf("failed to list due topics: %w", err)
	}

	byOwner := make(map[string][]*models.Topic)
	for _, t := range topics {
		byOwner[t.OwnerKey] = append(byOwner[t.OwnerKey], t)
	}
	owners := make([]string, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	sent := 0
	for _, owner := range owners {
		key := fmt.Sprintf("review:%s:%s", owner, today)
		if r.wasSent(key) {
			continue
		}
		if err := r.notifier.Notify(ctx, notify.ReviewsDue(byOwner[owner])); err != nil {
			r.logger.Warn("review reminder failed",
				zap.String("op", "reminder.remindReviews"),
				zap.String("owner", owner),
				zap.Error(err))
			continue
		}
		r.markSent(key, today)
		sent++
	}
	return sent, nil
}

func (r *Reminder) wasSent(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sent[key]
	return ok
}

func (r *Reminder) markSent(key string, until civil.Date) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[key] = until
}

// forget drops reminders whose date has passed.
func (r *Reminder) forget(today civil.Date) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, until := range r.sent {
		if until.Before(today) {
			delete(r.sent, key)
		}
	}
}
