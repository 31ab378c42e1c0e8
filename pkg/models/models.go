package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusActive LoanStatus = "active"
	LoanStatusClosed LoanStatus = "closed"
)

type Loan struct {
	ID            uuid.UUID       `json:"id"`
	OwnerKey      string          `json:"owner_key"` // Subject of the caller's auth token
	Name          string          `json:"name"`
	Principal     decimal.Decimal `json:"principal"`
	AnnualRate    decimal.Decimal `json:"annual_rate"` // Percent, e.g. 9.5
	TenureMonths  int             `json:"tenure_months"`
	EMI           decimal.Decimal `json:"emi"`
	EMIOverridden bool            `json:"emi_overridden"` // EMI was supplied by the user rather than calculated
	StartDate     civil.Date      `json:"start_date"`
	Status        LoanStatus      `json:"status"`
	ClosedOn      *civil.Date     `json:"closed_on,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsClosed reports whether the loan accepts no further payments or adjustments.
func (l *Loan) IsClosed() bool {
	return l.Status == LoanStatusClosed
}

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "Pending"
	EntryStatusPaid      EntryStatus = "Paid"
	EntryStatusCancelled EntryStatus = "Cancelled"
)

// ScheduleEntry is one instalment row of a loan's amortization schedule.
type ScheduleEntry struct {
	ID                 uuid.UUID       `json:"id"`
	LoanID             uuid.UUID       `json:"loan_id"`
	Month              int             `json:"month"`
	DueDate            civil.Date      `json:"due_date"`
	EMIAmount          decimal.Decimal `json:"emi_amount"`
	PrincipalComponent decimal.Decimal `json:"principal_component"`
	InterestComponent  decimal.Decimal `json:"interest_component"`
	RemainingPrincipal decimal.Decimal `json:"remaining_principal"`
	Status             EntryStatus     `json:"status"`
	PaidDate           *civil.Date     `json:"paid_date,omitempty"`
	PaymentMethod      string          `json:"payment_method,omitempty"`
	IsAdjusted         bool            `json:"is_adjusted"` // Rewritten by a part-payment
}

func (e *ScheduleEntry) IsPending() bool {
	return e.Status == EntryStatusPending
}

type EventType string

const (
	EventTypePartPayment EventType = "part_payment"
	EventTypeForeclosure EventType = "foreclosure"
)

type ReductionMode string

const (
	ReductionModeTenure ReductionMode = "tenure"
	ReductionModeEMI    ReductionMode = "emi"
)

// Valid reports whether m is one of the supported part-payment modes.
func (m ReductionMode) Valid() bool {
	return m == ReductionModeTenure || m == ReductionModeEMI
}

// AdjustmentEvent is the append-only audit record of a part-payment or foreclosure.
type AdjustmentEvent struct {
	ID              uuid.UUID       `json:"id"`
	LoanID          uuid.UUID       `json:"loan_id"`
	Type            EventType       `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	EventDate       civil.Date      `json:"event_date"`
	ReductionMode   ReductionMode   `json:"reduction_mode,omitempty"`
	NewEMI          decimal.Decimal `json:"new_emi"`
	NewTenure       int             `json:"new_tenure"` // Remaining months after the event
	InterestSaved   decimal.Decimal `json:"interest_saved"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	ScheduleEntryID *uuid.UUID      `json:"schedule_entry_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AddMonths moves d forward by n calendar months. Day overflow normalises
// the same way time.AddDate does (Jan 31 + 1 month = Mar 2 or 3).
func AddMonths(d civil.Date, n int) civil.Date {
	return civil.DateOf(d.In(time.UTC).AddDate(0, n, 0))
}
