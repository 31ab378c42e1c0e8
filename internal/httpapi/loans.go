package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/lifeledger/pkg/adjustment"
	"github.com/mcclellann/lifeledger/pkg/amortization"
	"github.com/mcclellann/lifeledger/pkg/ledger"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/mcclellann/lifeledger/pkg/store"
)

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, badRequest("invalid id " + mux.Vars(r)["id"])
	}
	return id, nil
}

// ownedLoan loads the loan named in the path. A loan of another owner is
// reported as not found.
func (s *Server) ownedLoan(ctx context.Context, r *http.Request) (*models.Loan, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	loan, err := s.ledger.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if loan.OwnerKey != OwnerFrom(ctx) {
		return nil, store.ErrNotFound
	}
	return loan, nil
}

func (s *Server) quoteHandler(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "httpapi.quote", err)
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		s.writeError(w, r, "httpapi.quote", err)
		return
	}
	if start.IsZero() {
		start = civil.DateOf(time.Now().UTC())
	}

	emi, err := amortization.CalculateEMI(req.Principal, req.AnnualRate, req.TenureMonths)
	if err != nil {
		s.writeError(w, r, "httpapi.quote", err)
		return
	}
	if req.EMI != nil {
		emi = *req.EMI
	}

	entries, err := amortization.GenerateSchedule(amortization.Params{
		Principal:    req.Principal,
		AnnualRate:   req.AnnualRate,
		TenureMonths: req.TenureMonths,
		EMI:          emi,
		StartDate:    start,
	})
	if err != nil {
		s.writeError(w, r, "httpapi.quote", err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		EMI:              money(emi),
		scheduleResponse: newScheduleResponse(entries),
	})
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "httpapi.createLoan", err)
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		s.writeError(w, r, "httpapi.createLoan", err)
		return
	}

	loan, err := s.ledger.CreateLoan(r.Context(), ledger.NewLoan{
		OwnerKey:     OwnerFrom(r.Context()),
		Name:         req.Name,
		Principal:    req.Principal,
		AnnualRate:   req.AnnualRate,
		TenureMonths: req.TenureMonths,
		StartDate:    start,
		EMI:          req.EMI,
	})
	if err != nil {
		s.writeError(w, r, "httpapi.createLoan", err)
		return
	}

	writeJSON(w, http.StatusCreated, newLoanResponse(loan))
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.ListLoans(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, "httpapi.listLoans", err)
		return
	}

	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, newLoanResponse(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ownedLoan(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.getLoan", err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponse(loan))
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ownedLoan(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.deleteLoan", err)
		return
	}
	if err := s.ledger.DeleteLoan(r.Context(), loan.ID); err != nil {
		s.writeError(w, r, "httpapi.deleteLoan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ownedLoan(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.schedule", err)
		return
	}
	entries, err := s.ledger.GetSchedule(r.Context(), loan.ID)
	if err != nil {
		s.writeError(w, r, "httpapi.schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduleResponse(entries))
}

func (s *Server) payInstalmentHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ownedLoan(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.payInstalment", err)
		return
	}
	month, err := strconv.Atoi(mux.Vars(r)["month"])
	if err != nil {
		s.writeError(w, r, "httpapi.payInstalment", badRequest("invalid month"))
		return
	}

	var req payInstalmentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "httpapi.payInstalment", err)
		return
	}
	paidOn, err := parseDate(req.PaidOn)
	if err != nil {
		s.writeError(w, r, "httpapi.payInstalment", err)
		return
	}

	entry, err := s.ledger.RecordEMIPayment(r.Context(), loan.ID, month, paidOn, req.Method)
	if err != nil {
		s.writeError(w, r, "httpapi.payInstalment", err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryResponse(*entry))
}

func (s *Server) partPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ownedLoan(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.partPayment", err)
		return
	}

	var req partPaymentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "httpapi.partPayment", err)
		return
	}
	asOf, err := parseDate(req.AsOf)
	if err != nil {
		s.writeError(w, r, "httpapi.partPayment", err)
		return
	}
	entryID, err := parseEntryID(req.EntryID)
	if err != nil {
		s.writeError(w, r, "httpapi.partPayment", err)
		return
	}

	res, err := s.ledger.PartPayment(r.Context(), loan.ID, adjustment.PartPayment{
		Amount:  req.Amount,
		AsOf:    asOf,
		Mode:    models.ReductionMode(req.Mode),
		Method:  req.Method,
		EntryID: entryID,
	})
	if err != nil {
		s.writeError(w, r, "httpapi.partPayment", err)
		return
	}
	writeJSON(w, http.StatusOK, newPartPaymentResponse(res))
}

func (s *Server) foreclosureHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ownedLoan(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.foreclosure", err)
		return
	}

	var req foreclosureRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, "httpapi.foreclosure", err)
		return
	}
	asOf, err := parseDate(req.AsOf)
	if err != nil {
		s.writeError(w, r, "httpapi.foreclosure", err)
		return
	}
	entryID, err := parseEntryID(req.EntryID)
	if err != nil {
		s.writeError(w, r, "httpapi.foreclosure", err)
		return
	}

	res, err := s.ledger.Foreclose(r.Context(), loan.ID, adjustment.Foreclosure{
		AsOf:    asOf,
		Method:  req.Method,
		EntryID: entryID,
	})
	if err != nil {
		s.writeError(w, r, "httpapi.foreclosure", err)
		return
	}
	writeJSON(w, http.StatusOK, newForeclosureResponse(res))
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ownedLoan(r.Context(), r)
	if err != nil {
		s.writeError(w, r, "httpapi.events", err)
		return
	}
	events, err := s.ledger.ListEvents(r.Context(), loan.ID)
	if err != nil {
		s.writeError(w, r, "httpapi.events", err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, newEventResponse(*e))
	}
	writeJSON(w, http.StatusOK, out)
}
