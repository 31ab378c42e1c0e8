// Package ledger ties the amortization and adjustment engines to persistence.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/internal/keylock"
	"github.com/mcclellann/lifeledger/pkg/adjustment"
	"github.com/mcclellann/lifeledger/pkg/amortization"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/mcclellann/lifeledger/pkg/notify"
	"github.com/mcclellann/lifeledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrEntryNotPending is returned when paying an instalment that is already
// Paid or Cancelled.
var ErrEntryNotPending = errors.New("instalment is not pending")

// Ledger handles the business logic for loans and their schedules.
type Ledger struct {
	storage  store.Storage
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
	locks    *keylock.Locks[uuid.UUID]
}

type Option func(*Ledger)

func WithNotifier(n notify.Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage:  s,
		notifier: notify.Nop{},
		logger:   zap.NewNop(),
		now:      time.Now,
		locks:    keylock.New[uuid.UUID](),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.notifier == nil {
		l.notifier = notify.Nop{}
	}
	return l
}

func (l *Ledger) today() civil.Date {
	return civil.DateOf(l.now())
}

// notify never fails the calling operation; delivery problems are logged.
func (l *Ledger) notify(ctx context.Context, op string, msg notify.Message) {
	if err := l.notifier.Notify(ctx, msg); err != nil {
		l.logger.Warn("notification failed", zap.String("op", op), zap.Error(err))
	}
}

// mutate runs fn while holding loanID's lock and sends the messages fn returns
// once the lock is released, so a slow notifier never blocks other writers.
func (l *Ledger) mutate(ctx context.Context, op string, loanID uuid.UUID, fn func() ([]notify.Message, error)) error {
	msgs, err := func() ([]notify.Message, error) {
		defer l.locks.Lock(loanID)()
		return fn()
	}()
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		l.notify(ctx, op, msg)
	}
	return nil
}

// NewLoan is the input for CreateLoan.
type NewLoan struct {
	OwnerKey     string
	Name         string
	Principal    decimal.Decimal
	AnnualRate   decimal.Decimal
	TenureMonths int
	StartDate    civil.Date
	EMI          *decimal.Decimal // Overrides the calculated EMI when set
}

// CreateLoan computes the EMI (unless overridden), generates the schedule and
// stores both.
func (l *Ledger) CreateLoan(ctx context.Context, req NewLoan) (*models.Loan, error) {
	emi, err := amortization.CalculateEMI(req.Principal, req.AnnualRate, req.TenureMonths)
	if err != nil {
		return nil, err
	}
	overridden := req.EMI != nil
	if overridden {
		emi = *req.EMI
	}

	now := l.now().UTC()
	loan := &models.Loan{
		ID:            uuid.New(),
		OwnerKey:      req.OwnerKey,
		Name:          req.Name,
		Principal:     req.Principal,
		AnnualRate:    req.AnnualRate,
		TenureMonths:  req.TenureMonths,
		EMI:           emi,
		EMIOverridden: overridden,
		StartDate:     req.StartDate,
		Status:        models.LoanStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	schedule, err := amortization.GenerateSchedule(amortization.Params{
		LoanID:       loan.ID,
		Principal:    loan.Principal,
		AnnualRate:   loan.AnnualRate,
		TenureMonths: loan.TenureMonths,
		EMI:          loan.EMI,
		StartDate:    loan.StartDate,
	})
	if err != nil {
		return nil, err
	}
	// An overridden EMI can clear the loan early.
	loan.TenureMonths = len(schedule)

	if err := l.storage.CreateLoan(ctx, loan, schedule); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.logger.Info("loan created",
		zap.String("op", "ledger.CreateLoan"),
		zap.String("loan_id", loan.ID.String()),
		zap.String("emi", loan.EMI.StringFixed(amortization.MoneyPlaces)),
		zap.Bool("emi_overridden", overridden))
	l.notify(ctx, "ledger.CreateLoan", notify.LoanCreated(loan))

	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(ctx, id)
}

// ListLoans retrieves every loan of one owner.
func (l *Ledger) ListLoans(ctx context.Context, ownerKey string) ([]*models.Loan, error) {
	return l.storage.ListLoans(ctx, ownerKey)
}

// DeleteLoan deletes a loan along with its schedule and history.
func (l *Ledger) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	unlock := l.locks.Lock(id)
	defer unlock()

	if err := l.storage.DeleteLoan(ctx, id); err != nil {
		return err
	}
	l.logger.Info("loan deleted", zap.String("op", "ledger.DeleteLoan"), zap.String("loan_id", id.String()))
	return nil
}

// GetSchedule returns the loan's schedule ordered by month.
func (l *Ledger) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]models.ScheduleEntry, error) {
	if _, err := l.storage.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.storage.GetSchedule(ctx, loanID)
}

// ListEvents returns the loan's adjustment history.
func (l *Ledger) ListEvents(ctx context.Context, loanID uuid.UUID) ([]*models.AdjustmentEvent, error) {
	if _, err := l.storage.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.storage.ListEvents(ctx, loanID)
}

func (l *Ledger) load(ctx context.Context, loanID uuid.UUID) (*models.Loan, []models.ScheduleEntry, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	schedule, err := l.storage.GetSchedule(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	return loan, schedule, nil
}

// RecordEMIPayment marks the instalment for month as paid. Paying the last
// pending instalment closes the loan.
func (l *Ledger) RecordEMIPayment(ctx context.Context, loanID uuid.UUID, month int, paidOn civil.Date, method string) (*models.ScheduleEntry, error) {
	var entry *models.ScheduleEntry
	err := l.mutate(ctx, "ledger.RecordEMIPayment", loanID, func() ([]notify.Message, error) {
		loan, schedule, err := l.load(ctx, loanID)
		if err != nil {
			return nil, err
		}
		if loan.IsClosed() {
			return nil, adjustment.ErrLoanClosed
		}

		pending := 0
		for i := range schedule {
			if schedule[i].Month == month {
				entry = &schedule[i]
			}
			if schedule[i].IsPending() {
				pending++
			}
		}
		if entry == nil {
			return nil, fmt.Errorf("instalment %d of loan %s: %w", month, loanID, store.ErrNotFound)
		}
		if !entry.IsPending() {
			return nil, fmt.Errorf("instalment %d is %s: %w", month, entry.Status, ErrEntryNotPending)
		}

		if paidOn.IsZero() {
			paidOn = l.today()
		}
		entry.Status = models.EntryStatusPaid
		entry.PaidDate = &paidOn
		entry.PaymentMethod = method

		loan.UpdatedAt = l.now().UTC()
		closed := pending == 1
		if closed {
			loan.Status = models.LoanStatusClosed
			loan.ClosedOn = &paidOn
		}

		if err := l.storage.SavePayment(ctx, loan, entry); err != nil {
			return nil, fmt.Errorf("failed to record payment: %w", err)
		}

		l.logger.Info("emi paid",
			zap.String("op", "ledger.RecordEMIPayment"),
			zap.String("loan_id", loanID.String()),
			zap.Int("month", month),
			zap.Bool("loan_closed", closed))
		if closed {
			return []notify.Message{notify.LoanClosed(loan)}, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PartPayment applies an extra principal payment and persists the rebuilt
// schedule, the updated loan and the event in one transaction.
func (l *Ledger) PartPayment(ctx context.Context, loanID uuid.UUID, req adjustment.PartPayment) (*adjustment.PartPaymentResult, error) {
	var result *adjustment.PartPaymentResult
	err := l.mutate(ctx, "ledger.PartPayment", loanID, func() ([]notify.Message, error) {
		loan, schedule, err := l.load(ctx, loanID)
		if err != nil {
			return nil, err
		}
		if req.AsOf.IsZero() {
			req.AsOf = l.today()
		}

		result, err = adjustment.ApplyPartPayment(*loan, schedule, req)
		if err != nil {
			return nil, err
		}

		now := l.now().UTC()
		updated := *loan
		updated.UpdatedAt = now
		if result.Closed {
			closedOn := req.AsOf
			updated.Status = models.LoanStatusClosed
			updated.ClosedOn = &closedOn
		} else {
			updated.TenureMonths = result.Schedule[len(result.Schedule)-1].Month
			if req.Mode == models.ReductionModeEMI {
				updated.EMI = result.NewEMI
				updated.EMIOverridden = false
			}
		}

		result.Event.CreatedAt = now
		if err := l.storage.ApplyAdjustment(ctx, &updated, result.Schedule, &result.Event); err != nil {
			return nil, fmt.Errorf("failed to apply part-payment: %w", err)
		}

		l.logger.Info("part-payment applied",
			zap.String("op", "ledger.PartPayment"),
			zap.String("loan_id", loanID.String()),
			zap.String("amount", req.Amount.StringFixed(amortization.MoneyPlaces)),
			zap.String("mode", string(req.Mode)),
			zap.Int("new_tenure", result.NewTenure),
			zap.String("interest_saved", result.InterestSaved.StringFixed(amortization.MoneyPlaces)))

		msgs := []notify.Message{notify.AdjustmentApplied(&updated, &result.Event)}
		if result.Closed {
			msgs = append(msgs, notify.LoanClosed(&updated))
		}
		return msgs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Foreclose settles the loan early, cancelling every instalment due on or
// after req.AsOf.
func (l *Ledger) Foreclose(ctx context.Context, loanID uuid.UUID, req adjustment.Foreclosure) (*adjustment.ForeclosureResult, error) {
	var result *adjustment.ForeclosureResult
	err := l.mutate(ctx, "ledger.Foreclose", loanID, func() ([]notify.Message, error) {
		loan, schedule, err := l.load(ctx, loanID)
		if err != nil {
			return nil, err
		}
		if req.AsOf.IsZero() {
			req.AsOf = l.today()
		}

		result, err = adjustment.Foreclose(*loan, schedule, req)
		if err != nil {
			return nil, err
		}

		now := l.now().UTC()
		result.Loan.UpdatedAt = now
		result.Event.CreatedAt = now
		if err := l.storage.ApplyAdjustment(ctx, &result.Loan, result.Schedule, &result.Event); err != nil {
			return nil, fmt.Errorf("failed to apply foreclosure: %w", err)
		}

		l.logger.Info("loan foreclosed",
			zap.String("op", "ledger.Foreclose"),
			zap.String("loan_id", loanID.String()),
			zap.Int("cancelled", result.Cancelled),
			zap.String("amount", result.Amount.StringFixed(amortization.MoneyPlaces)))
		return []notify.Message{notify.AdjustmentApplied(&result.Loan, &result.Event)}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DueInstalments returns pending instalments of active loans due within
// [from, to].
func (l *Ledger) DueInstalments(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("window %s..%s is empty", from, to)
	}
	return l.storage.ListDueEntries(ctx, from, to)
}
