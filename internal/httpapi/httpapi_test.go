package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/mcclellann/lifeledger/pkg/ledger"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/mcclellann/lifeledger/pkg/store"
	"github.com/mcclellann/lifeledger/pkg/study"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)

const testSecret = "test-secret"

func newTestRouter(t *testing.T, opts ...Option) *mux.Router {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := func() time.Time { return fixedNow }
	l := ledger.NewLedger(s, ledger.WithClock(clock))
	st := study.NewService(s, nil, study.WithClock(clock))
	return NewServer(l, st, opts...).Router()
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

const homeLoan = `{"name":"home","principal":500000,"annual_rate":9.5,"tenure_months":240,"start_date":"2024-01-10"}`

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, WithJWTSecret(testSecret))

	rr := do(t, router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestQuote(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/emi/quote",
		`{"principal":"500000","annual_rate":"9.5","tenure_months":240,"start_date":"2024-01-10"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var quote quoteResponse
	decodeBody(t, rr, &quote)
	assert.Equal(t, "4660.66", quote.EMI)
	assert.Equal(t, 240, quote.Summary.Instalments)
	require.Len(t, quote.Entries, 240)
	assert.Equal(t, "2024-02-10", quote.Entries[0].DueDate.String())
	assert.Equal(t, "0.00", quote.Entries[239].RemainingPrincipal)
}

func TestQuote_ZeroRate(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/emi/quote", `{"principal":1200,"annual_rate":0,"tenure_months":12}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var quote quoteResponse
	decodeBody(t, rr, &quote)
	assert.Equal(t, "100.00", quote.EMI)
	assert.Equal(t, "0.00", quote.Summary.TotalInterest)
}

func TestQuote_Validation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "zero principal", body: `{"principal":0,"annual_rate":9,"tenure_months":12}`, wantMsg: "field Principal is required"},
		{name: "negative principal", body: `{"principal":-5,"annual_rate":9,"tenure_months":12}`, wantMsg: "field Principal must be greater than 0"},
		{name: "missing tenure", body: `{"principal":1000,"annual_rate":9}`, wantMsg: "field TenureMonths is required"},
		{name: "negative rate", body: `{"principal":1000,"annual_rate":-1,"tenure_months":12}`, wantMsg: "field AnnualRate must be at least 0"},
		{name: "bad date", body: `{"principal":1000,"annual_rate":9,"tenure_months":12,"start_date":"10/01/2024"}`, wantMsg: "YYYY-MM-DD"},
		{name: "malformed json", body: `{"principal":`, wantMsg: "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, http.MethodPost, "/emi/quote", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var resp errorResponse
			decodeBody(t, rr, &resp)
			assert.Contains(t, resp.Error, tt.wantMsg)
		})
	}
}

func TestLoanLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/loans", homeLoan, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var loan loanResponse
	decodeBody(t, rr, &loan)
	assert.Equal(t, "4660.66", loan.EMI)
	assert.Equal(t, models.LoanStatusActive, loan.Status)
	base := "/loans/" + loan.ID.String()

	rr = do(t, router, http.MethodGet, "/loans", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var loans []loanResponse
	decodeBody(t, rr, &loans)
	require.Len(t, loans, 1)
	assert.Equal(t, loan.ID, loans[0].ID)

	rr = do(t, router, http.MethodGet, base+"/schedule", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var schedule scheduleResponse
	decodeBody(t, rr, &schedule)
	assert.Len(t, schedule.Entries, 240)
	assert.Equal(t, 240, schedule.Summary.PendingCount)

	rr = do(t, router, http.MethodPost, base+"/schedule/1/pay", `{"paid_on":"2024-02-09","method":"upi"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var paid entryResponse
	decodeBody(t, rr, &paid)
	assert.Equal(t, models.EntryStatusPaid, paid.Status)
	assert.Equal(t, "upi", paid.PaymentMethod)

	rr = do(t, router, http.MethodPost, base+"/schedule/1/pay", `{}`, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/schedule/999/pay", `{}`, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/part-payments",
		`{"amount":"100000","as_of":"2024-02-15","mode":"tenure","method":"neft"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var part partPaymentResponse
	decodeBody(t, rr, &part)
	assert.Equal(t, "4660.66", part.NewEMI)
	assert.Less(t, part.NewTenure, 239)
	assert.False(t, part.Closed)
	assert.Equal(t, models.EventTypePartPayment, part.Event.Type)

	rr = do(t, router, http.MethodPost, base+"/part-payments", `{"amount":"1","mode":"sideways"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/part-payments", `{"amount":"99999999","mode":"emi"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/foreclosure", `{"method":"cheque"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var closure foreclosureResponse
	decodeBody(t, rr, &closure)
	assert.Equal(t, models.LoanStatusClosed, closure.Loan.Status)
	assert.Greater(t, closure.Cancelled, 0)

	rr = do(t, router, http.MethodGet, base+"/events", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var events []eventResponse
	decodeBody(t, rr, &events)
	assert.Len(t, events, 2)

	rr = do(t, router, http.MethodPost, base+"/part-payments", `{"amount":"1000","mode":"emi"}`, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodDelete, base, "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, router, http.MethodGet, base, "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestForeclosure_OverdueInstalments(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/loans",
		`{"principal":12000,"annual_rate":12,"tenure_months":12,"start_date":"2024-01-10"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var loan loanResponse
	decodeBody(t, rr, &loan)
	base := "/loans/" + loan.ID.String()

	rr = do(t, router, http.MethodPost, base+"/foreclosure", `{"as_of":"2024-04-15"}`, "")
	assert.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &loan)
	assert.Equal(t, models.LoanStatusActive, loan.Status)
}

func TestCreateLoan_EMIOverride(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/loans",
		`{"principal":500000,"annual_rate":9.5,"tenure_months":240,"start_date":"2024-01-10","emi":"6000"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var loan loanResponse
	decodeBody(t, rr, &loan)
	assert.Equal(t, "6000.00", loan.EMI)
	assert.True(t, loan.EMIOverridden)
}

func TestInvalidPathID(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/loans/not-a-uuid", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/topics/not-a-uuid", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuth(t *testing.T) {
	router := newTestRouter(t, WithJWTSecret(testSecret))
	alice := signToken(t, testSecret, "alice")
	bob := signToken(t, testSecret, "bob")

	rr := do(t, router, http.MethodGet, "/loans", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, router, http.MethodGet, "/loans", "", signToken(t, "other-secret", "alice"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, router, http.MethodGet, "/loans", "", signToken(t, testSecret, ""))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, router, http.MethodPost, "/loans", homeLoan, alice)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var loan loanResponse
	decodeBody(t, rr, &loan)

	rr = do(t, router, http.MethodGet, "/loans/"+loan.ID.String(), "", alice)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, "/loans/"+loan.ID.String(), "", bob)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodDelete, "/loans/"+loan.ID.String(), "", bob)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodGet, "/loans", "", bob)
	require.Equal(t, http.StatusOK, rr.Code)
	var loans []loanResponse
	decodeBody(t, rr, &loans)
	assert.Empty(t, loans)
}

func TestAuth_RejectsOtherAlgorithms(t *testing.T) {
	router := newTestRouter(t, WithJWTSecret(testSecret))

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "alice"})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	rr := do(t, router, http.MethodGet, "/loans", "", signed)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTopicFlow(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/topics", `{"syllabus":"algorithms","name":"graphs"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var topic models.Topic
	decodeBody(t, rr, &topic)
	base := "/topics/" + topic.ID.String()

	rr = do(t, router, http.MethodPost, base+"/schedule", "", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/reviews", `{"quality":4}`, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/complete", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/schedule", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &topic)
	require.NotNil(t, topic.NextReviewDate)
	assert.Equal(t, "2024-01-11", topic.NextReviewDate.String())

	rr = do(t, router, http.MethodPost, base+"/reviews", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/reviews", `{"quality":7}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/reviews", `{"quality":0}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decodeBody(t, rr, &topic)
	assert.Equal(t, 1, topic.ReviewCount)
	assert.Equal(t, 1, topic.IntervalDays)

	rr = do(t, router, http.MethodGet, "/topics?syllabus=algorithms", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var topics []models.Topic
	decodeBody(t, rr, &topics)
	assert.Len(t, topics, 1)

	rr = do(t, router, http.MethodGet, "/topics?due=today", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &topics)
	assert.Empty(t, topics)

	rr = do(t, router, http.MethodGet, "/topics?due=2024-01-11", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &topics)
	assert.Len(t, topics, 1)

	rr = do(t, router, http.MethodGet, "/topics?due=2024-01-11&syllabus=algorithms", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &topics)
	assert.Len(t, topics, 1)

	rr = do(t, router, http.MethodGet, "/topics?due=2024-01-11&syllabus=physics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &topics)
	assert.Empty(t, topics)

	rr = do(t, router, http.MethodGet, "/topics?due=soon", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodDelete, base, "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, router, http.MethodGet, base, "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateTopic_Validation(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/topics", `{"syllabus":"algorithms"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/topics", `{"syllabus":"algorithms","name":"   "}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
