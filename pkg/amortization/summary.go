package amortization

import (
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
)

// Summary aggregates a schedule by status.
type Summary struct {
	Instalments     int             `json:"instalments"`
	TotalPrincipal  decimal.Decimal `json:"total_principal"`
	TotalInterest   decimal.Decimal `json:"total_interest"`
	TotalPayable    decimal.Decimal `json:"total_payable"`
	PaidCount       int             `json:"paid_count"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	PendingCount    int             `json:"pending_count"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
	PendingInterest decimal.Decimal `json:"pending_interest"`
	CancelledCount  int             `json:"cancelled_count"`
}

// Summarize totals entries. Cancelled rows count towards neither the payable
// totals nor the pending amounts.
func Summarize(entries []models.ScheduleEntry) Summary {
	s := Summary{Instalments: len(entries)}

	for _, e := range entries {
		switch e.Status {
		case models.EntryStatusPaid:
			s.PaidCount++
			s.PaidAmount = s.PaidAmount.Add(e.EMIAmount)
		case models.EntryStatusPending:
			s.PendingCount++
			s.PendingAmount = s.PendingAmount.Add(e.EMIAmount)
			s.PendingInterest = s.PendingInterest.Add(e.InterestComponent)
		case models.EntryStatusCancelled:
			s.CancelledCount++
			continue
		}
		s.TotalPrincipal = s.TotalPrincipal.Add(e.PrincipalComponent)
		s.TotalInterest = s.TotalInterest.Add(e.InterestComponent)
		s.TotalPayable = s.TotalPayable.Add(e.EMIAmount)
	}

	return s
}
