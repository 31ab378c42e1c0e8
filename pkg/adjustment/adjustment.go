// Package adjustment recalculates a loan's schedule after a part-payment or a
// foreclosure. Functions here never mutate their inputs; callers persist the
// returned schedule and event together or not at all.
package adjustment

import (
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/amortization"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid payment amount")
	ErrLoanClosed    = errors.New("loan is closed")
	ErrInvalidMode   = errors.New("invalid reduction mode")

	// ErrOverdueInstalments is returned when settling a loan that still has
	// unpaid instalments due on or before the settlement date.
	ErrOverdueInstalments = errors.New("overdue instalments must be paid first")
)

// Outstanding returns the principal still owed ahead of the first future
// instalment, together with that instalment's index in the month-ordered
// schedule (-1 when nothing is left to pay).
//
// The first future instalment is the first Pending row due strictly after
// asOf that is not followed by any Paid or Cancelled row.
func Outstanding(loan models.Loan, schedule []models.ScheduleEntry, asOf civil.Date) (decimal.Decimal, int) {
	entries := sortedCopy(schedule)
	first := firstFuture(entries, asOf)
	if first < 0 {
		return decimal.Zero, -1
	}
	return balanceBefore(loan, entries, first), first
}

func firstFuture(entries []models.ScheduleEntry, asOf civil.Date) int {
	floor := 0
	for i, e := range entries {
		if !e.IsPending() {
			floor = i + 1
		}
	}
	for i := floor; i < len(entries); i++ {
		if entries[i].IsPending() && entries[i].DueDate.After(asOf) {
			return i
		}
	}
	return -1
}

// balanceBefore returns the opening balance of entries[index]. A row rebuilt
// by an earlier part-payment carries its own opening balance; the row before
// it still holds the balance from before that payment.
func balanceBefore(loan models.Loan, entries []models.ScheduleEntry, index int) decimal.Decimal {
	if e := entries[index]; e.IsAdjusted {
		return e.RemainingPrincipal.Add(e.PrincipalComponent)
	}
	if index == 0 {
		return loan.Principal
	}
	return entries[index-1].RemainingPrincipal
}

func sortedCopy(schedule []models.ScheduleEntry) []models.ScheduleEntry {
	entries := make([]models.ScheduleEntry, len(schedule))
	copy(entries, schedule)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Month < entries[j].Month })
	return entries
}

func countPending(entries []models.ScheduleEntry) int {
	n := 0
	for _, e := range entries {
		if e.IsPending() {
			n++
		}
	}
	return n
}

func sumInterest(entries []models.ScheduleEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.InterestComponent)
	}
	return total
}

// PartPayment is an extra principal payment outside the regular EMI schedule.
type PartPayment struct {
	Amount  decimal.Decimal
	AsOf    civil.Date
	Mode    models.ReductionMode
	Method  string
	EntryID *uuid.UUID
}

type PartPaymentResult struct {
	Schedule      []models.ScheduleEntry // Full schedule, past rows first
	NewEMI        decimal.Decimal
	NewTenure     int // Future instalments left
	InterestSaved decimal.Decimal
	Closed        bool // The payment cleared the whole outstanding principal
	Event         models.AdjustmentEvent
}

// ApplyPartPayment reduces the outstanding principal by req.Amount from the
// instalment immediately following req.AsOf and rebuilds every future
// Pending row.
//
// In tenure mode the loan's EMI is kept and trailing instalments that are no
// longer needed are dropped; the last remaining instalment absorbs whatever
// principal is left. In emi mode the number of future instalments is kept
// and a lower EMI is computed for the reduced principal.
//
// An amount within CurrencyTolerance of the outstanding principal settles the loan: every future
// instalment is Cancelled. Settling is refused while earlier instalments are
// still Pending.
func ApplyPartPayment(loan models.Loan, schedule []models.ScheduleEntry, req PartPayment) (*PartPaymentResult, error) {
	if loan.IsClosed() {
		return nil, ErrLoanClosed
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%q: %w", req.Mode, ErrInvalidMode)
	}

	entries := sortedCopy(schedule)
	first := firstFuture(entries, req.AsOf)
	if first < 0 {
		return nil, fmt.Errorf("no pending instalments after %s: %w", req.AsOf, ErrInvalidAmount)
	}

	outstanding := balanceBefore(loan, entries, first)
	if !req.Amount.IsPositive() || req.Amount.GreaterThan(outstanding) {
		return nil, fmt.Errorf("amount %s outside (0, %s]: %w", req.Amount, outstanding.StringFixed(2), ErrInvalidAmount)
	}

	past, future := entries[:first], entries[first:]
	reduced := outstanding.Sub(req.Amount)
	if reduced.LessThan(amortization.CurrencyTolerance) {
		if overdue := countPending(past); overdue > 0 {
			return nil, fmt.Errorf("%d instalments due by %s are unpaid: %w", overdue, req.AsOf, ErrOverdueInstalments)
		}
		return settle(loan, past, future, req), nil
	}
	rate := amortization.MonthlyRate(loan.AnnualRate)
	slots := slotsOf(future)

	var (
		rebuilt []models.ScheduleEntry
		newEMI  decimal.Decimal
		err     error
	)
	switch {
	case req.Mode == models.ReductionModeTenure:
		newEMI = loan.EMI
		rebuilt, err = shortenTenure(loan.ID, reduced, rate, loan.EMI, slots)
	default:
		newEMI, err = amortization.CalculateEMI(reduced, loan.AnnualRate, len(slots))
		if err == nil {
			rebuilt = amortization.BuildEntries(loan.ID, reduced, rate, newEMI, slots)
		}
	}
	if err != nil {
		return nil, err
	}

	for i := range rebuilt {
		rebuilt[i].ID = future[i].ID
		rebuilt[i].IsAdjusted = true
	}

	saved := sumInterest(future).Sub(sumInterest(rebuilt))
	return partPaymentResult(loan, req, append(append([]models.ScheduleEntry{}, past...), rebuilt...), newEMI, len(rebuilt), saved), nil
}

// settle cancels every future instalment of a fully repaid loan.
func settle(loan models.Loan, past, future []models.ScheduleEntry, req PartPayment) *PartPaymentResult {
	schedule := append([]models.ScheduleEntry{}, past...)
	for _, e := range future {
		e.Status = models.EntryStatusCancelled
		schedule = append(schedule, e)
	}
	result := partPaymentResult(loan, req, schedule, decimal.Zero, 0, sumInterest(future))
	result.Closed = true
	return result
}

func partPaymentResult(loan models.Loan, req PartPayment, schedule []models.ScheduleEntry, newEMI decimal.Decimal, tenure int, saved decimal.Decimal) *PartPaymentResult {
	return &PartPaymentResult{
		Schedule:      schedule,
		NewEMI:        newEMI,
		NewTenure:     tenure,
		InterestSaved: saved,
		Event: models.AdjustmentEvent{
			ID:              uuid.New(),
			LoanID:          loan.ID,
			Type:            models.EventTypePartPayment,
			Amount:          req.Amount,
			EventDate:       req.AsOf,
			ReductionMode:   req.Mode,
			NewEMI:          newEMI,
			NewTenure:       tenure,
			InterestSaved:   saved,
			PaymentMethod:   req.Method,
			ScheduleEntryID: req.EntryID,
		},
	}
}

func slotsOf(entries []models.ScheduleEntry) []amortization.Slot {
	slots := make([]amortization.Slot, len(entries))
	for i, e := range entries {
		slots[i] = amortization.Slot{Month: e.Month, DueDate: e.DueDate}
	}
	return slots
}

// shortenTenure amortizes balance at a fixed emi, using as few of slots as
// needed.
func shortenTenure(loanID uuid.UUID, balance, rate, emi decimal.Decimal, slots []amortization.Slot) ([]models.ScheduleEntry, error) {
	if !emi.GreaterThan(amortization.InterestFor(balance, rate)) {
		return nil, fmt.Errorf("emi %s does not cover monthly interest: %w", emi.StringFixed(2), amortization.ErrArithmeticDegenerate)
	}
	return amortization.BuildEntries(loanID, balance, rate, emi, slots), nil
}
