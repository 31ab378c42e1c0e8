package adjustment

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/amortization"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = civil.Date{Year: 2024, Month: 1, Day: 10}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newLoan(t *testing.T, principal, rate string, tenure int) (models.Loan, []models.ScheduleEntry) {
	t.Helper()

	loan := models.Loan{
		ID:           uuid.New(),
		Principal:    dec(principal),
		AnnualRate:   dec(rate),
		TenureMonths: tenure,
		StartDate:    start,
		Status:       models.LoanStatusActive,
	}
	emi, err := amortization.CalculateEMI(loan.Principal, loan.AnnualRate, tenure)
	require.NoError(t, err)
	loan.EMI = emi

	entries, err := amortization.GenerateSchedule(amortization.Params{
		LoanID:       loan.ID,
		Principal:    loan.Principal,
		AnnualRate:   loan.AnnualRate,
		TenureMonths: tenure,
		EMI:          emi,
		StartDate:    start,
	})
	require.NoError(t, err)
	return loan, entries
}

func markPaid(entries []models.ScheduleEntry, upTo int) {
	for i := 0; i < upTo; i++ {
		paid := entries[i].DueDate
		entries[i].Status = models.EntryStatusPaid
		entries[i].PaidDate = &paid
	}
}

func sumPrincipal(entries []models.ScheduleEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.PrincipalComponent)
	}
	return total
}

func TestOutstanding(t *testing.T) {
	loan, entries := newLoan(t, "400000", "10", 120)

	balance, index := Outstanding(loan, entries, start)
	assert.Equal(t, 0, index)
	assert.True(t, balance.Equal(loan.Principal))

	markPaid(entries, 12)
	balance, index = Outstanding(loan, entries, entries[11].DueDate)
	assert.Equal(t, 12, index)
	assert.True(t, balance.Equal(entries[11].RemainingPrincipal))

	// A row paid out of order pushes the first future instalment past it.
	entries[20].Status = models.EntryStatusPaid
	_, index = Outstanding(loan, entries, entries[11].DueDate)
	assert.Equal(t, 21, index)

	_, index = Outstanding(loan, entries, entries[119].DueDate)
	assert.Equal(t, -1, index)
}

func TestApplyPartPayment_TenureMode(t *testing.T) {
	loan, entries := newLoan(t, "400000", "10", 120)

	result, err := ApplyPartPayment(loan, entries, PartPayment{
		Amount: dec("100000"),
		AsOf:   start,
		Mode:   models.ReductionModeTenure,
		Method: "bank_transfer",
	})
	require.NoError(t, err)

	assert.Less(t, len(result.Schedule), 120)
	assert.Equal(t, 78, result.NewTenure)
	assert.True(t, result.NewEMI.Equal(loan.EMI))
	assert.False(t, result.Closed)

	for _, e := range result.Schedule[:len(result.Schedule)-1] {
		assert.True(t, e.EMIAmount.Equal(loan.EMI), "month %d keeps the EMI", e.Month)
	}
	last := result.Schedule[len(result.Schedule)-1]
	assert.True(t, last.RemainingPrincipal.IsZero())
	assert.True(t, last.EMIAmount.LessThanOrEqual(loan.EMI))
	assert.True(t, sumPrincipal(result.Schedule).Equal(dec("300000")))

	for i, e := range result.Schedule {
		assert.True(t, e.IsAdjusted)
		assert.Equal(t, entries[i].ID, e.ID)
		assert.Equal(t, entries[i].DueDate, e.DueDate)
	}

	assert.True(t, result.InterestSaved.IsPositive())
	assert.Equal(t, models.EventTypePartPayment, result.Event.Type)
	assert.Equal(t, models.ReductionModeTenure, result.Event.ReductionMode)
	assert.Equal(t, 78, result.Event.NewTenure)
	assert.True(t, result.Event.InterestSaved.Equal(result.InterestSaved))
	assert.Equal(t, "bank_transfer", result.Event.PaymentMethod)
}

func TestApplyPartPayment_EMIMode(t *testing.T) {
	loan, entries := newLoan(t, "400000", "10", 120)

	result, err := ApplyPartPayment(loan, entries, PartPayment{
		Amount: dec("100000"),
		AsOf:   start,
		Mode:   models.ReductionModeEMI,
	})
	require.NoError(t, err)

	assert.Len(t, result.Schedule, 120)
	assert.Equal(t, 120, result.NewTenure)
	assert.True(t, result.NewEMI.LessThan(loan.EMI))
	assert.Equal(t, "3964.52", result.NewEMI.StringFixed(2))

	last := result.Schedule[len(result.Schedule)-1]
	assert.True(t, last.RemainingPrincipal.IsZero())
	assert.True(t, sumPrincipal(result.Schedule).Sub(dec("300000")).Abs().LessThan(amortization.CurrencyTolerance))

	// Interest falls by the same quarter the principal did.
	originalInterest := sumInterest(entries)
	expectedSaved := originalInterest.Div(decimal.NewFromInt(4))
	assert.True(t, result.InterestSaved.Sub(expectedSaved).Abs().LessThan(dec("0.05")),
		"saved %s, expected about %s", result.InterestSaved, expectedSaved)
}

func TestApplyPartPayment_PaidRowsUntouched(t *testing.T) {
	loan, entries := newLoan(t, "400000", "10", 120)
	markPaid(entries, 12)
	asOf := entries[11].DueDate

	for _, mode := range []models.ReductionMode{models.ReductionModeTenure, models.ReductionModeEMI} {
		t.Run(string(mode), func(t *testing.T) {
			result, err := ApplyPartPayment(loan, entries, PartPayment{Amount: dec("50000"), AsOf: asOf, Mode: mode})
			require.NoError(t, err)

			assert.Equal(t, entries[:12], result.Schedule[:12])
			for _, e := range result.Schedule[12:] {
				assert.True(t, e.IsAdjusted)
				assert.Equal(t, models.EntryStatusPending, e.Status)
			}

			outstanding := entries[11].RemainingPrincipal.Sub(dec("50000"))
			assert.True(t, sumPrincipal(result.Schedule[12:]).Sub(outstanding).Abs().LessThan(amortization.CurrencyTolerance))
		})
	}
}

func TestApplyPartPayment_FullSettlement(t *testing.T) {
	loan, entries := newLoan(t, "120000", "9", 24)
	markPaid(entries, 6)
	asOf := entries[5].DueDate

	result, err := ApplyPartPayment(loan, entries, PartPayment{
		Amount: entries[5].RemainingPrincipal,
		AsOf:   asOf,
		Mode:   models.ReductionModeTenure,
	})
	require.NoError(t, err)

	assert.True(t, result.Closed)
	assert.Equal(t, 0, result.NewTenure)
	assert.True(t, result.NewEMI.IsZero())
	require.Len(t, result.Schedule, 24)
	assert.Equal(t, entries[:6], result.Schedule[:6])
	for i, e := range result.Schedule[6:] {
		assert.Equal(t, models.EntryStatusCancelled, e.Status, "month %d", e.Month)
		assert.Equal(t, entries[6+i].ID, e.ID)
	}
	assert.True(t, result.InterestSaved.Equal(sumInterest(entries[6:])))
}

func TestApplyPartPayment_SettlementWithOverdueInstalments(t *testing.T) {
	loan, entries := newLoan(t, "12000", "12", 12)
	asOf := entries[2].DueDate

	outstanding, index := Outstanding(loan, entries, asOf)
	require.Equal(t, 3, index)

	result, err := ApplyPartPayment(loan, entries, PartPayment{Amount: outstanding, AsOf: asOf, Mode: models.ReductionModeTenure})
	assert.ErrorIs(t, err, ErrOverdueInstalments)
	assert.Nil(t, result)

	// A partial payment leaves the overdue rows payable.
	partial, err := ApplyPartPayment(loan, entries, PartPayment{Amount: dec("1000"), AsOf: asOf, Mode: models.ReductionModeTenure})
	require.NoError(t, err)
	assert.False(t, partial.Closed)
	for _, e := range partial.Schedule[:3] {
		assert.Equal(t, models.EntryStatusPending, e.Status)
	}
}

func TestApplyPartPayment_Rejections(t *testing.T) {
	loan, entries := newLoan(t, "400000", "10", 120)
	closed := loan
	closed.Status = models.LoanStatusClosed

	tests := []struct {
		name   string
		loan   models.Loan
		req    PartPayment
		expect error
	}{
		{name: "zero amount", loan: loan, req: PartPayment{Amount: decimal.Zero, AsOf: start, Mode: models.ReductionModeEMI}, expect: ErrInvalidAmount},
		{name: "negative amount", loan: loan, req: PartPayment{Amount: dec("-1"), AsOf: start, Mode: models.ReductionModeEMI}, expect: ErrInvalidAmount},
		{name: "exceeds outstanding", loan: loan, req: PartPayment{Amount: dec("400000.01"), AsOf: start, Mode: models.ReductionModeTenure}, expect: ErrInvalidAmount},
		{name: "nothing left to pay", loan: loan, req: PartPayment{Amount: dec("10"), AsOf: civil.Date{Year: 2040, Month: 1, Day: 1}, Mode: models.ReductionModeEMI}, expect: ErrInvalidAmount},
		{name: "closed loan", loan: closed, req: PartPayment{Amount: dec("10"), AsOf: start, Mode: models.ReductionModeEMI}, expect: ErrLoanClosed},
		{name: "unknown mode", loan: loan, req: PartPayment{Amount: dec("10"), AsOf: start, Mode: "rate"}, expect: ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ApplyPartPayment(tt.loan, entries, tt.req)
			assert.ErrorIs(t, err, tt.expect)
			assert.Nil(t, result)
		})
	}
}

func TestApplyPartPayment_Consecutive(t *testing.T) {
	loan, entries := newLoan(t, "400000", "10", 120)
	markPaid(entries, 12)
	asOf := entries[11].DueDate

	first, err := ApplyPartPayment(loan, entries, PartPayment{Amount: dec("50000"), AsOf: asOf, Mode: models.ReductionModeTenure})
	require.NoError(t, err)

	balance, index := Outstanding(loan, first.Schedule, asOf)
	assert.Equal(t, 12, index)
	assert.True(t, balance.Equal(entries[11].RemainingPrincipal.Sub(dec("50000"))), "got %s", balance)

	second, err := ApplyPartPayment(loan, first.Schedule, PartPayment{Amount: dec("25000"), AsOf: asOf, Mode: models.ReductionModeTenure})
	require.NoError(t, err)
	assert.Less(t, second.NewTenure, first.NewTenure)

	outstanding := entries[11].RemainingPrincipal.Sub(dec("75000"))
	assert.True(t, sumPrincipal(second.Schedule[12:]).Sub(outstanding).Abs().LessThan(amortization.CurrencyTolerance))

	// Settling exactly what is left closes the loan.
	rest, _ := Outstanding(loan, second.Schedule, asOf)
	final, err := ApplyPartPayment(loan, second.Schedule, PartPayment{Amount: rest, AsOf: asOf, Mode: models.ReductionModeEMI})
	require.NoError(t, err)
	assert.True(t, final.Closed)
	assert.Len(t, final.Schedule, len(second.Schedule))
	assert.Equal(t, 0, countPending(final.Schedule))
}

func TestApplyPartPayment_DoesNotMutateInput(t *testing.T) {
	loan, entries := newLoan(t, "400000", "10", 120)
	before := make([]models.ScheduleEntry, len(entries))
	copy(before, entries)

	_, err := ApplyPartPayment(loan, entries, PartPayment{Amount: dec("100000"), AsOf: start, Mode: models.ReductionModeTenure})
	require.NoError(t, err)
	assert.Equal(t, before, entries)
}

func TestForeclose(t *testing.T) {
	loan, entries := newLoan(t, "100000", "12", 10)

	result, err := Foreclose(loan, entries, Foreclosure{AsOf: start, Method: "cheque"})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Cancelled)
	for _, e := range result.Schedule {
		assert.Equal(t, models.EntryStatusCancelled, e.Status)
	}
	assert.Equal(t, models.LoanStatusClosed, result.Loan.Status)
	require.NotNil(t, result.Loan.ClosedOn)
	assert.Equal(t, start, *result.Loan.ClosedOn)
	assert.True(t, result.InterestSaved.Equal(sumInterest(entries)))
	assert.True(t, result.Amount.Equal(loan.Principal))
	assert.Equal(t, models.EventTypeForeclosure, result.Event.Type)
	assert.Equal(t, "cheque", result.Event.PaymentMethod)

	// The input loan is left as it was.
	assert.Equal(t, models.LoanStatusActive, loan.Status)

	_, err = Foreclose(result.Loan, result.Schedule, Foreclosure{AsOf: start})
	assert.ErrorIs(t, err, ErrLoanClosed)

	_, err = ApplyPartPayment(result.Loan, result.Schedule, PartPayment{Amount: dec("1"), AsOf: start, Mode: models.ReductionModeEMI})
	assert.ErrorIs(t, err, ErrLoanClosed)
}

func TestForeclose_AfterSomePayments(t *testing.T) {
	loan, entries := newLoan(t, "100000", "12", 10)
	markPaid(entries, 4)

	result, err := Foreclose(loan, entries, Foreclosure{AsOf: entries[4].DueDate})
	require.NoError(t, err)

	assert.Equal(t, 6, result.Cancelled)
	assert.Equal(t, entries[:4], result.Schedule[:4])
	assert.True(t, result.Amount.Equal(entries[3].RemainingPrincipal))
	assert.True(t, result.InterestSaved.Equal(sumInterest(entries[4:])))
}

func TestForeclose_RejectsOverdueInstalments(t *testing.T) {
	loan, entries := newLoan(t, "12000", "12", 12)
	markPaid(entries, 1)

	result, err := Foreclose(loan, entries, Foreclosure{AsOf: entries[3].DueDate})
	assert.ErrorIs(t, err, ErrOverdueInstalments)
	assert.Nil(t, result)

	markPaid(entries, 3)
	result, err = Foreclose(loan, entries, Foreclosure{AsOf: entries[3].DueDate})
	require.NoError(t, err)
	assert.Equal(t, 9, result.Cancelled)
	assert.Equal(t, 0, countPending(result.Schedule))
}
