package amortization

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateEMI(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		tenure    int
		expected  string // rounded to 2 places
	}{
		{name: "home loan 20 years", principal: "500000", rate: "9.5", tenure: 240, expected: "4660.66"},
		{name: "zero interest", principal: "100000", rate: "0", tenure: 10, expected: "10000.00"},
		{name: "single month", principal: "1000", rate: "12", tenure: 1, expected: "1010.00"},
		{name: "car loan", principal: "400000", rate: "10", tenure: 120, expected: "5286.03"},
		{name: "high interest", principal: "10000", rate: "18", tenure: 36, expected: "361.52"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emi, err := CalculateEMI(dec(tt.principal), dec(tt.rate), tt.tenure)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, emi.StringFixed(MoneyPlaces))
		})
	}
}

func TestCalculateEMI_ZeroInterestIsExactDivision(t *testing.T) {
	emi, err := CalculateEMI(dec("100000"), decimal.Zero, 10)
	require.NoError(t, err)
	assert.True(t, emi.Equal(decimal.NewFromInt(10000)), "got %s", emi)
}

func TestCalculateEMI_RejectsDegenerateInputs(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		tenure    int
	}{
		{name: "zero principal", principal: "0", rate: "9", tenure: 12},
		{name: "negative principal", principal: "-5", rate: "9", tenure: 12},
		{name: "zero tenure", principal: "1000", rate: "9", tenure: 0},
		{name: "negative rate", principal: "1000", rate: "-1", tenure: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CalculateEMI(dec(tt.principal), dec(tt.rate), tt.tenure)
			assert.ErrorIs(t, err, ErrArithmeticDegenerate)
		})
	}
}

func TestGenerateSchedule_AmortizesToZero(t *testing.T) {
	cases := []struct {
		principal string
		rate      string
		tenure    int
	}{
		{"500000", "9.5", 240},
		{"100000", "0", 10},
		{"2500", "7.25", 7},
		{"1", "36", 360},
		{"99999.99", "0.01", 1},
	}

	start := civil.Date{Year: 2024, Month: 1, Day: 15}
	for _, c := range cases {
		emi, err := CalculateEMI(dec(c.principal), dec(c.rate), c.tenure)
		require.NoError(t, err)

		entries, err := GenerateSchedule(Params{
			LoanID:       uuid.New(),
			Principal:    dec(c.principal),
			AnnualRate:   dec(c.rate),
			TenureMonths: c.tenure,
			EMI:          emi,
			StartDate:    start,
		})
		require.NoError(t, err)
		require.Len(t, entries, c.tenure)

		last := entries[len(entries)-1]
		assert.True(t, last.RemainingPrincipal.LessThan(CurrencyTolerance), "residual %s", last.RemainingPrincipal)
		assert.False(t, last.RemainingPrincipal.IsNegative())

		sum := decimal.Zero
		for _, e := range entries {
			sum = sum.Add(e.PrincipalComponent)
		}
		assert.True(t, sum.Sub(dec(c.principal)).Abs().LessThan(CurrencyTolerance),
			"principal components sum to %s, want %s", sum, c.principal)
	}
}

func TestGenerateSchedule_RowInvariants(t *testing.T) {
	principal := dec("250000")
	rate := dec("8.75")
	emi, err := CalculateEMI(principal, rate, 60)
	require.NoError(t, err)

	entries, err := GenerateSchedule(Params{
		Principal:    principal,
		AnnualRate:   rate,
		TenureMonths: 60,
		EMI:          emi,
		StartDate:    civil.Date{Year: 2024, Month: 3, Day: 1},
	})
	require.NoError(t, err)

	previous := principal
	for i, e := range entries {
		assert.Equal(t, i+1, e.Month)
		assert.Equal(t, models.EntryStatusPending, e.Status)
		assert.False(t, e.IsAdjusted)
		assert.True(t, e.PrincipalComponent.Add(e.InterestComponent).Equal(e.EMIAmount), "row %d", e.Month)
		if i < len(entries)-1 {
			assert.True(t, previous.Sub(e.PrincipalComponent).Equal(e.RemainingPrincipal), "row %d", e.Month)
		}
		previous = e.RemainingPrincipal
	}
}

func TestGenerateSchedule_CalendarMonthDueDates(t *testing.T) {
	entries, err := GenerateSchedule(Params{
		Principal:    dec("1200"),
		AnnualRate:   decimal.Zero,
		TenureMonths: 3,
		EMI:          dec("400"),
		StartDate:    civil.Date{Year: 2023, Month: 11, Day: 30},
	})
	require.NoError(t, err)

	assert.Equal(t, civil.Date{Year: 2023, Month: 12, Day: 30}, entries[0].DueDate)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 30}, entries[1].DueDate)
	// February overflow normalises into March.
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 1}, entries[2].DueDate)
}

func TestGenerateSchedule_OverriddenEMI(t *testing.T) {
	principal := dec("12000")
	rate := dec("12")

	t.Run("too small leaves residual on last row", func(t *testing.T) {
		entries, err := GenerateSchedule(Params{
			Principal:    principal,
			AnnualRate:   rate,
			TenureMonths: 12,
			EMI:          dec("1000"),
			StartDate:    civil.Date{Year: 2024, Month: 1, Day: 1},
		})
		require.NoError(t, err)

		last := entries[len(entries)-1]
		assert.True(t, last.RemainingPrincipal.IsPositive())
		assert.True(t, last.EMIAmount.Equal(dec("1000")))
	})

	t.Run("too large clamps to zero", func(t *testing.T) {
		entries, err := GenerateSchedule(Params{
			Principal:    principal,
			AnnualRate:   rate,
			TenureMonths: 12,
			EMI:          dec("1100"),
			StartDate:    civil.Date{Year: 2024, Month: 1, Day: 1},
		})
		require.NoError(t, err)

		for _, e := range entries {
			assert.False(t, e.RemainingPrincipal.IsNegative(), "row %d", e.Month)
		}
		assert.True(t, entries[len(entries)-1].RemainingPrincipal.IsZero())
	})

	t.Run("far too large ends the schedule early", func(t *testing.T) {
		emi := dec("5000")
		entries, err := GenerateSchedule(Params{
			Principal:    principal,
			AnnualRate:   rate,
			TenureMonths: 12,
			EMI:          emi,
			StartDate:    civil.Date{Year: 2024, Month: 1, Day: 1},
		})
		require.NoError(t, err)
		require.Len(t, entries, 3)

		previous := principal
		sum := decimal.Zero
		for _, e := range entries {
			assert.True(t, previous.Sub(e.PrincipalComponent).Equal(e.RemainingPrincipal), "row %d", e.Month)
			assert.True(t, e.PrincipalComponent.Add(e.InterestComponent).Equal(e.EMIAmount), "row %d", e.Month)
			sum = sum.Add(e.PrincipalComponent)
			previous = e.RemainingPrincipal
		}
		assert.True(t, sum.Equal(principal), "principal components sum to %s", sum)

		last := entries[len(entries)-1]
		assert.True(t, last.RemainingPrincipal.IsZero())
		assert.True(t, last.EMIAmount.LessThan(emi))
		assert.True(t, entries[0].EMIAmount.Equal(emi))
	})
}

func TestGenerateSchedule_RejectsNonPositiveEMI(t *testing.T) {
	_, err := GenerateSchedule(Params{
		Principal:    dec("1000"),
		AnnualRate:   dec("5"),
		TenureMonths: 12,
		EMI:          decimal.Zero,
	})
	assert.ErrorIs(t, err, ErrArithmeticDegenerate)
}

func TestSummarize(t *testing.T) {
	entries := []models.ScheduleEntry{
		{EMIAmount: dec("110"), PrincipalComponent: dec("100"), InterestComponent: dec("10"), Status: models.EntryStatusPaid},
		{EMIAmount: dec("110"), PrincipalComponent: dec("105"), InterestComponent: dec("5"), Status: models.EntryStatusPending},
		{EMIAmount: dec("110"), PrincipalComponent: dec("108"), InterestComponent: dec("2"), Status: models.EntryStatusCancelled},
	}

	s := Summarize(entries)
	assert.Equal(t, 3, s.Instalments)
	assert.Equal(t, 1, s.PaidCount)
	assert.Equal(t, 1, s.PendingCount)
	assert.Equal(t, 1, s.CancelledCount)
	assert.Equal(t, "205", s.TotalPrincipal.String())
	assert.Equal(t, "15", s.TotalInterest.String())
	assert.Equal(t, "5", s.PendingInterest.String())
}
