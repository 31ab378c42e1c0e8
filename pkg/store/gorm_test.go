package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanRecordMapping(t *testing.T) {
	closed := civil.Date{Year: 2025, Month: 3, Day: 1}
	loan, _ := testLoan("alice")
	loan.Status = models.LoanStatusClosed
	loan.ClosedOn = &closed

	rec := toLoanRecord(loan)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), rec.StartDate)
	assert.Equal(t, "closed", rec.Status)

	back := rec.model()
	assert.Equal(t, loan.StartDate, back.StartDate)
	require.NotNil(t, back.ClosedOn)
	assert.Equal(t, closed, *back.ClosedOn)
	assert.True(t, loan.EMI.Equal(back.EMI))
	assert.Equal(t, loan.OwnerKey, back.OwnerKey)
}

func TestEntryRecordMapping(t *testing.T) {
	paid := civil.Date{Year: 2024, Month: 3, Day: 1}
	entries := []models.ScheduleEntry{
		{
			ID:                 uuid.New(),
			LoanID:             uuid.New(),
			Month:              1,
			DueDate:            civil.Date{Year: 2024, Month: 3, Day: 2},
			EMIAmount:          decimal.RequireFromString("4660.6600000000"),
			PrincipalComponent: decimal.RequireFromString("702.33"),
			InterestComponent:  decimal.RequireFromString("3958.33"),
			RemainingPrincipal: decimal.RequireFromString("499297.67"),
			Status:             models.EntryStatusPaid,
			PaidDate:           &paid,
			PaymentMethod:      "upi",
		},
		{Month: 2, DueDate: civil.Date{Year: 2024, Month: 4, Day: 2}, Status: models.EntryStatusPending},
	}

	back := entryModels(toEntryRecords(entries))
	require.Len(t, back, 2)
	assert.Equal(t, entries[0].DueDate, back[0].DueDate)
	require.NotNil(t, back[0].PaidDate)
	assert.Equal(t, paid, *back[0].PaidDate)
	assert.Equal(t, models.EntryStatusPaid, back[0].Status)
	assert.True(t, entries[0].EMIAmount.Equal(back[0].EMIAmount))
	assert.Nil(t, back[1].PaidDate)
}

func TestTopicRecordMapping(t *testing.T) {
	next := civil.Date{Year: 2024, Month: 6, Day: 2}
	topic := &models.Topic{ID: uuid.New(), OwnerKey: "alice", Syllabus: "algorithms", Name: "graphs", EaseFactor: 2.5}

	assert.Nil(t, toTopicRecord(topic).model().NextReviewDate)

	topic.NextReviewDate = &next
	back := toTopicRecord(topic).model()
	require.NotNil(t, back.NextReviewDate)
	assert.Equal(t, next, *back.NextReviewDate)
	assert.Equal(t, 2.5, back.EaseFactor)
}

// TestGormStore_Postgres runs against a live database when
// LIFELEDGER_TEST_POSTGRES_DSN is set.
func TestGormStore_Postgres(t *testing.T) {
	dsn := os.Getenv("LIFELEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LIFELEDGER_TEST_POSTGRES_DSN not set")
	}

	s, err := NewGormStore(dsn, nil)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	loan, schedule := testLoan("pg-" + uuid.NewString())
	require.NoError(t, s.CreateLoan(ctx, loan, schedule))
	defer s.DeleteLoan(ctx, loan.ID)

	got, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StartDate, got.StartDate)

	entries, err := s.GetSchedule(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, entries, len(schedule))

	_, err = s.GetLoan(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}
