package httpapi

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/adjustment"
	"github.com/mcclellann/lifeledger/pkg/amortization"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
)

type createLoanRequest struct {
	Name         string           `json:"name" validate:"max=120"`
	Principal    decimal.Decimal  `json:"principal" validate:"required,gt=0"`
	AnnualRate   decimal.Decimal  `json:"annual_rate" validate:"gte=0,lte=100"`
	TenureMonths int              `json:"tenure_months" validate:"required,gte=1,lte=600"`
	StartDate    string           `json:"start_date" validate:"required,datetime=2006-01-02"`
	EMI          *decimal.Decimal `json:"emi,omitempty" validate:"omitempty,gt=0"`
}

type quoteRequest struct {
	Principal    decimal.Decimal  `json:"principal" validate:"required,gt=0"`
	AnnualRate   decimal.Decimal  `json:"annual_rate" validate:"gte=0,lte=100"`
	TenureMonths int              `json:"tenure_months" validate:"required,gte=1,lte=600"`
	StartDate    string           `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EMI          *decimal.Decimal `json:"emi,omitempty" validate:"omitempty,gt=0"`
}

type payInstalmentRequest struct {
	PaidOn string `json:"paid_on" validate:"omitempty,datetime=2006-01-02"`
	Method string `json:"method" validate:"max=40"`
}

type partPaymentRequest struct {
	Amount  decimal.Decimal `json:"amount" validate:"required,gt=0"`
	AsOf    string          `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
	Mode    string          `json:"mode" validate:"required,oneof=tenure emi"`
	Method  string          `json:"method" validate:"max=40"`
	EntryID string          `json:"entry_id" validate:"omitempty,uuid"`
}

type foreclosureRequest struct {
	AsOf    string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
	Method  string `json:"method" validate:"max=40"`
	EntryID string `json:"entry_id" validate:"omitempty,uuid"`
}

type createTopicRequest struct {
	Syllabus string `json:"syllabus" validate:"required,max=200"`
	Name     string `json:"name" validate:"required,max=200"`
}

// Quality is a pointer so that 0 is distinguishable from a missing field.
// Its range is checked by the review package.
type reviewRequest struct {
	Quality *int `json:"quality" validate:"required"`
}

// parseDate parses an optional YYYY-MM-DD value that already passed
// validation. The zero date means "not given".
func parseDate(s string) (civil.Date, error) {
	if s == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, badRequest("invalid date " + s)
	}
	return d, nil
}

func parseEntryID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, badRequest("invalid entry_id " + s)
	}
	return &id, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(amortization.MoneyPlaces)
}

type loanResponse struct {
	ID            uuid.UUID         `json:"id"`
	Name          string            `json:"name"`
	Principal     string            `json:"principal"`
	AnnualRate    string            `json:"annual_rate"`
	TenureMonths  int               `json:"tenure_months"`
	EMI           string            `json:"emi"`
	EMIOverridden bool              `json:"emi_overridden"`
	StartDate     civil.Date        `json:"start_date"`
	Status        models.LoanStatus `json:"status"`
	ClosedOn      *civil.Date       `json:"closed_on,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func newLoanResponse(l *models.Loan) loanResponse {
	return loanResponse{
		ID:            l.ID,
		Name:          l.Name,
		Principal:     money(l.Principal),
		AnnualRate:    l.AnnualRate.String(),
		TenureMonths:  l.TenureMonths,
		EMI:           money(l.EMI),
		EMIOverridden: l.EMIOverridden,
		StartDate:     l.StartDate,
		Status:        l.Status,
		ClosedOn:      l.ClosedOn,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

type entryResponse struct {
	ID                 uuid.UUID          `json:"id"`
	Month              int                `json:"month"`
	DueDate            civil.Date         `json:"due_date"`
	EMIAmount          string             `json:"emi_amount"`
	PrincipalComponent string             `json:"principal_component"`
	InterestComponent  string             `json:"interest_component"`
	RemainingPrincipal string             `json:"remaining_principal"`
	Status             models.EntryStatus `json:"status"`
	PaidDate           *civil.Date        `json:"paid_date,omitempty"`
	PaymentMethod      string             `json:"payment_method,omitempty"`
	IsAdjusted         bool               `json:"is_adjusted"`
}

func newEntryResponse(e models.ScheduleEntry) entryResponse {
	return entryResponse{
		ID:                 e.ID,
		Month:              e.Month,
		DueDate:            e.DueDate,
		EMIAmount:          money(e.EMIAmount),
		PrincipalComponent: money(e.PrincipalComponent),
		InterestComponent:  money(e.InterestComponent),
		RemainingPrincipal: money(e.RemainingPrincipal),
		Status:             e.Status,
		PaidDate:           e.PaidDate,
		PaymentMethod:      e.PaymentMethod,
		IsAdjusted:         e.IsAdjusted,
	}
}

func newEntryResponses(entries []models.ScheduleEntry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newEntryResponse(e))
	}
	return out
}

type summaryResponse struct {
	Instalments     int    `json:"instalments"`
	TotalPrincipal  string `json:"total_principal"`
	TotalInterest   string `json:"total_interest"`
	TotalPayable    string `json:"total_payable"`
	PaidCount       int    `json:"paid_count"`
	PaidAmount      string `json:"paid_amount"`
	PendingCount    int    `json:"pending_count"`
	PendingAmount   string `json:"pending_amount"`
	PendingInterest string `json:"pending_interest"`
	CancelledCount  int    `json:"cancelled_count"`
}

func newSummaryResponse(s amortization.Summary) summaryResponse {
	return summaryResponse{
		Instalments:     s.Instalments,
		TotalPrincipal:  money(s.TotalPrincipal),
		TotalInterest:   money(s.TotalInterest),
		TotalPayable:    money(s.TotalPayable),
		PaidCount:       s.PaidCount,
		PaidAmount:      money(s.PaidAmount),
		PendingCount:    s.PendingCount,
		PendingAmount:   money(s.PendingAmount),
		PendingInterest: money(s.PendingInterest),
		CancelledCount:  s.CancelledCount,
	}
}

type scheduleResponse struct {
	Summary summaryResponse `json:"summary"`
	Entries []entryResponse `json:"entries"`
}

func newScheduleResponse(entries []models.ScheduleEntry) scheduleResponse {
	return scheduleResponse{
		Summary: newSummaryResponse(amortization.Summarize(entries)),
		Entries: newEntryResponses(entries),
	}
}

type quoteResponse struct {
	EMI string `json:"emi"`
	scheduleResponse
}

type eventResponse struct {
	ID              uuid.UUID            `json:"id"`
	Type            models.EventType     `json:"type"`
	Amount          string               `json:"amount"`
	EventDate       civil.Date           `json:"event_date"`
	ReductionMode   models.ReductionMode `json:"reduction_mode,omitempty"`
	NewEMI          string               `json:"new_emi"`
	NewTenure       int                  `json:"new_tenure"`
	InterestSaved   string               `json:"interest_saved"`
	PaymentMethod   string               `json:"payment_method,omitempty"`
	ScheduleEntryID *uuid.UUID           `json:"schedule_entry_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

func newEventResponse(e models.AdjustmentEvent) eventResponse {
	return eventResponse{
		ID:              e.ID,
		Type:            e.Type,
		Amount:          money(e.Amount),
		EventDate:       e.EventDate,
		ReductionMode:   e.ReductionMode,
		NewEMI:          money(e.NewEMI),
		NewTenure:       e.NewTenure,
		InterestSaved:   money(e.InterestSaved),
		PaymentMethod:   e.PaymentMethod,
		ScheduleEntryID: e.ScheduleEntryID,
		CreatedAt:       e.CreatedAt,
	}
}

type partPaymentResponse struct {
	NewEMI        string          `json:"new_emi"`
	NewTenure     int             `json:"new_tenure"`
	InterestSaved string          `json:"interest_saved"`
	Closed        bool            `json:"closed"`
	Event         eventResponse   `json:"event"`
	Entries       []entryResponse `json:"entries"`
}

func newPartPaymentResponse(res *adjustment.PartPaymentResult) partPaymentResponse {
	return partPaymentResponse{
		NewEMI:        money(res.NewEMI),
		NewTenure:     res.NewTenure,
		InterestSaved: money(res.InterestSaved),
		Closed:        res.Closed,
		Event:         newEventResponse(res.Event),
		Entries:       newEntryResponses(res.Schedule),
	}
}

type foreclosureResponse struct {
	Loan          loanResponse  `json:"loan"`
	Cancelled     int           `json:"cancelled"`
	Amount        string        `json:"amount"`
	InterestSaved string        `json:"interest_saved"`
	Event         eventResponse `json:"event"`
}

func newForeclosureResponse(res *adjustment.ForeclosureResult) foreclosureResponse {
	return foreclosureResponse{
		Loan:          newLoanResponse(&res.Loan),
		Cancelled:     res.Cancelled,
		Amount:        money(res.Amount),
		InterestSaved: money(res.InterestSaved),
		Event:         newEventResponse(res.Event),
	}
}
