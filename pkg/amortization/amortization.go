// Package amortization computes fixed-rate EMIs and month-by-month
// amortization schedules.
package amortization

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	// MonthsPerYear is the number of instalments in a year.
	MonthsPerYear = 12

	// PercentageMultiplier converts a percentage rate into a fraction.
	PercentageMultiplier = 100

	// InternalPlaces is the number of decimal places money is carried at
	// between instalments. Presentation rounds to MoneyPlaces.
	InternalPlaces = 10

	// MoneyPlaces is the precision amounts are shown with.
	MoneyPlaces = 2

	ratePlaces = 20
)

var (
	// CurrencyTolerance is the largest residual balance treated as fully repaid.
	CurrencyTolerance = decimal.New(1, -MoneyPlaces)

	monthlyDivisor = decimal.NewFromInt(MonthsPerYear * PercentageMultiplier)
	one            = decimal.NewFromInt(1)
)

// ErrArithmeticDegenerate is returned when the inputs cannot produce a finite,
// positive instalment (non-positive principal, zero tenure, negative rate).
var ErrArithmeticDegenerate = errors.New("degenerate loan arithmetic")

// MonthlyRate converts an annual percentage rate into the periodic monthly rate.
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.DivRound(monthlyDivisor, ratePlaces)
}

// InterestFor returns one month of interest on balance.
func InterestFor(balance, monthlyRate decimal.Decimal) decimal.Decimal {
	return balance.Mul(monthlyRate).Round(InternalPlaces)
}

// CalculateEMI returns the equated monthly instalment that repays principal
// over tenureMonths at annualRatePercent.
func CalculateEMI(principal, annualRatePercent decimal.Decimal, tenureMonths int) (decimal.Decimal, error) {
	if !principal.IsPositive() {
		return decimal.Zero, fmt.Errorf("principal %s must be positive: %w", principal, ErrArithmeticDegenerate)
	}
	if tenureMonths < 1 {
		return decimal.Zero, fmt.Errorf("tenure %d must be at least one month: %w", tenureMonths, ErrArithmeticDegenerate)
	}
	if annualRatePercent.IsNegative() {
		return decimal.Zero, fmt.Errorf("rate %s must not be negative: %w", annualRatePercent, ErrArithmeticDegenerate)
	}

	n := decimal.NewFromInt(int64(tenureMonths))
	if annualRatePercent.IsZero() {
		return principal.DivRound(n, InternalPlaces), nil
	}

	r := MonthlyRate(annualRatePercent)
	factor := one.Add(r).Pow(n).Round(ratePlaces)
	denominator := factor.Sub(one)
	if !denominator.IsPositive() {
		return decimal.Zero, fmt.Errorf("compounding factor collapsed for rate %s over %d months: %w",
			annualRatePercent, tenureMonths, ErrArithmeticDegenerate)
	}

	return principal.Mul(r).Mul(factor).DivRound(denominator, InternalPlaces), nil
}

// Params describes the loan a schedule is generated for.
type Params struct {
	LoanID       uuid.UUID
	Principal    decimal.Decimal
	AnnualRate   decimal.Decimal
	TenureMonths int
	EMI          decimal.Decimal // Calculated or user-overridden
	StartDate    civil.Date
}

// GenerateSchedule builds the amortization schedule for p. Every entry starts
// Pending and falls due StartDate plus its month index in calendar months.
//
// The instalment that clears the balance pays exactly the remaining principal
// plus its interest, and the schedule ends there; with a calculated EMI that
// is the last month. An overridden EMI larger than needed therefore yields a
// shorter schedule. The final row's remaining balance is clamped to zero when
// it is within CurrencyTolerance. An EMI too small to amortize the loan leaves
// its residual visible on the last row.
func GenerateSchedule(p Params) ([]models.ScheduleEntry, error) {
	if !p.Principal.IsPositive() || p.TenureMonths < 1 || p.AnnualRate.IsNegative() {
		return nil, fmt.Errorf("invalid schedule parameters: %w", ErrArithmeticDegenerate)
	}
	if !p.EMI.IsPositive() {
		return nil, fmt.Errorf("emi %s must be positive: %w", p.EMI, ErrArithmeticDegenerate)
	}

	return BuildEntries(p.LoanID, p.Principal, MonthlyRate(p.AnnualRate), p.EMI, Months(p.StartDate, 1, p.TenureMonths)), nil
}

// Slot positions an instalment within a schedule.
type Slot struct {
	Month   int
	DueDate civil.Date
}

// Months returns count consecutive slots starting at month index first, each
// due first..first+count-1 calendar months after start.
func Months(start civil.Date, first, count int) []Slot {
	slots := make([]Slot, count)
	for i := range slots {
		month := first + i
		slots[i] = Slot{Month: month, DueDate: models.AddMonths(start, month)}
	}
	return slots
}

// BuildEntries amortizes balance across slots with a fixed emi, using only as
// many slots as it takes to clear the balance. Rows keep
// remaining = previous remaining - principal throughout.
func BuildEntries(loanID uuid.UUID, balance, monthlyRate, emi decimal.Decimal, slots []Slot) []models.ScheduleEntry {
	entries := make([]models.ScheduleEntry, 0, len(slots))
	remaining := balance

	for i, slot := range slots {
		interest := InterestFor(remaining, monthlyRate)
		principal := emi.Sub(interest)
		payment := emi

		last := i == len(slots)-1
		switch after := remaining.Sub(principal); {
		case after.IsNegative(), !last && after.LessThan(CurrencyTolerance):
			principal = remaining
			payment = principal.Add(interest)
			last = true
		}
		remaining = remaining.Sub(principal)
		if last && remaining.LessThan(CurrencyTolerance) {
			remaining = decimal.Zero
		}

		entries = append(entries, models.ScheduleEntry{
			ID:                 uuid.New(),
			LoanID:             loanID,
			Month:              slot.Month,
			DueDate:            slot.DueDate,
			EMIAmount:          payment,
			PrincipalComponent: principal,
			InterestComponent:  interest,
			RemainingPrincipal: remaining,
			Status:             models.EntryStatusPending,
		})
		if last {
			break
		}
	}

	return entries
}
