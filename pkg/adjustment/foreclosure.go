package adjustment

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
)

// Foreclosure is a full early repayment of the remaining balance.
type Foreclosure struct {
	AsOf    civil.Date
	Method  string
	EntryID *uuid.UUID
}

type ForeclosureResult struct {
	Loan          models.Loan            // Closed copy of the input loan
	Schedule      []models.ScheduleEntry // Full schedule with cancelled rows
	Cancelled     int
	Amount        decimal.Decimal // Principal settled by the foreclosure
	InterestSaved decimal.Decimal
	Event         models.AdjustmentEvent
}

// Foreclose cancels every Pending instalment due on or after req.AsOf and
// closes the loan. The interest saved is the interest those instalments
// would have charged. Instalments due before req.AsOf must be paid first.
func Foreclose(loan models.Loan, schedule []models.ScheduleEntry, req Foreclosure) (*ForeclosureResult, error) {
	if loan.IsClosed() {
		return nil, ErrLoanClosed
	}

	entries := sortedCopy(schedule)
	overdue := 0
	for _, e := range entries {
		if e.IsPending() && e.DueDate.Before(req.AsOf) {
			overdue++
		}
	}
	if overdue > 0 {
		return nil, fmt.Errorf("%d instalments due before %s are unpaid: %w", overdue, req.AsOf, ErrOverdueInstalments)
	}

	saved := decimal.Zero
	amount := decimal.Zero
	cancelled := 0

	for i := range entries {
		e := &entries[i]
		if !e.IsPending() || e.DueDate.Before(req.AsOf) {
			continue
		}
		if cancelled == 0 {
			amount = balanceBefore(loan, entries, i)
		}
		e.Status = models.EntryStatusCancelled
		saved = saved.Add(e.InterestComponent)
		cancelled++
	}

	closedOn := req.AsOf
	loan.Status = models.LoanStatusClosed
	loan.ClosedOn = &closedOn

	return &ForeclosureResult{
		Loan:          loan,
		Schedule:      entries,
		Cancelled:     cancelled,
		Amount:        amount,
		InterestSaved: saved,
		Event: models.AdjustmentEvent{
			ID:              uuid.New(),
			LoanID:          loan.ID,
			Type:            models.EventTypeForeclosure,
			Amount:          amount,
			EventDate:       req.AsOf,
			NewEMI:          decimal.Zero,
			NewTenure:       0,
			InterestSaved:   saved,
			PaymentMethod:   req.Method,
			ScheduleEntryID: req.EntryID,
		},
	}, nil
}
