package notify

import (
	"fmt"
	"strings"

	"github.com/mcclellann/lifeledger/pkg/models"
)

const moneyPlaces = 2

func loanLabel(loan *models.Loan) string {
	if loan.Name != "" {
		return loan.Name
	}
	return loan.ID.String()
}

func LoanCreated(loan *models.Loan) Message {
	return Message{
		Subject: fmt.Sprintf("Loan %s created", loanLabel(loan)),
		Body: fmt.Sprintf("Principal: %s\nAnnual rate: %s%%\nTenure: %d months\nEMI: %s\nFirst instalment due: %s\n",
			loan.Principal.StringFixed(moneyPlaces), loan.AnnualRate.String(), loan.TenureMonths,
			loan.EMI.StringFixed(moneyPlaces), models.AddMonths(loan.StartDate, 1)),
	}
}

func LoanClosed(loan *models.Loan) Message {
	closedOn := "today"
	if loan.ClosedOn != nil {
		closedOn = loan.ClosedOn.String()
	}
	return Message{
		Subject: fmt.Sprintf("Loan %s closed", loanLabel(loan)),
		Body:    fmt.Sprintf("Loan %s was closed on %s. No further instalments are due.\n", loanLabel(loan), closedOn),
	}
}

func AdjustmentApplied(loan *models.Loan, event *models.AdjustmentEvent) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Amount: %s\nDate: %s\n", event.Amount.StringFixed(moneyPlaces), event.EventDate)
	if event.Type == models.EventTypePartPayment {
		fmt.Fprintf(&b, "Reduction: %s\nNew EMI: %s\nRemaining instalments: %d\n",
			event.ReductionMode, event.NewEMI.StringFixed(moneyPlaces), event.NewTenure)
	}
	fmt.Fprintf(&b, "Interest saved: %s\n", event.InterestSaved.StringFixed(moneyPlaces))

	kind := "Part-payment"
	if event.Type == models.EventTypeForeclosure {
		kind = "Foreclosure"
	}
	return Message{
		Subject: fmt.Sprintf("%s recorded for loan %s", kind, loanLabel(loan)),
		Body:    b.String(),
	}
}

func InstalmentDue(loan *models.Loan, entry *models.ScheduleEntry) Message {
	return Message{
		Subject: fmt.Sprintf("EMI of %s due on %s", entry.EMIAmount.StringFixed(moneyPlaces), entry.DueDate),
		Body: fmt.Sprintf("Loan: %s\nInstalment: %d of %d\nAmount: %s\nDue: %s\n",
			loanLabel(loan), entry.Month, loan.TenureMonths, entry.EMIAmount.StringFixed(moneyPlaces), entry.DueDate),
	}
}

func ReviewsDue(topics []*models.Topic) Message {
	var b strings.Builder
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s / %s (due %s)\n", t.Syllabus, t.Name, t.NextReviewDate)
	}
	noun := "topics"
	if len(topics) == 1 {
		noun = "topic"
	}
	return Message{
		Subject: fmt.Sprintf("%d %s due for review", len(topics), noun),
		Body:    b.String(),
	}
}
