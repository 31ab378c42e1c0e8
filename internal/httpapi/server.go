// Package httpapi exposes loans, schedules and study topics over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/mcclellann/lifeledger/pkg/ledger"
	"github.com/mcclellann/lifeledger/pkg/study"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// LocalOwner is the owner key used for every request when auth is disabled.
const LocalOwner = "local"

// Server holds the services the handlers call into.
type Server struct {
	ledger    *ledger.Ledger
	study     *study.Service
	logger    *zap.Logger
	validator *validator.Validate
	jwtSecret []byte
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithJWTSecret enables bearer-token auth with HS256 tokens signed by secret.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.jwtSecret = []byte(secret)
		}
	}
}

func NewServer(l *ledger.Ledger, st *study.Service, opts ...Option) *Server {
	s := &Server{
		ledger:    l,
		study:     st,
		logger:    zap.NewNop(),
		validator: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// newValidator returns a validator that checks decimal fields numerically,
// so tags such as gt=0 work on money.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.recoveryMiddleware, s.loggingMiddleware)

	router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/emi/quote", s.quoteHandler).Methods(http.MethodPost)

	api.HandleFunc("/loans", s.listLoansHandler).Methods(http.MethodGet)
	api.HandleFunc("/loans", s.createLoanHandler).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}", s.getLoanHandler).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods(http.MethodDelete)
	api.HandleFunc("/loans/{id}/schedule", s.scheduleHandler).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id}/schedule/{month:[0-9]+}/pay", s.payInstalmentHandler).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/part-payments", s.partPaymentHandler).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/foreclosure", s.foreclosureHandler).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/events", s.eventsHandler).Methods(http.MethodGet)

	api.HandleFunc("/topics", s.listTopicsHandler).Methods(http.MethodGet)
	api.HandleFunc("/topics", s.createTopicHandler).Methods(http.MethodPost)
	api.HandleFunc("/topics/{id}", s.getTopicHandler).Methods(http.MethodGet)
	api.HandleFunc("/topics/{id}", s.deleteTopicHandler).Methods(http.MethodDelete)
	api.HandleFunc("/topics/{id}/complete", s.completeTopicHandler).Methods(http.MethodPost)
	api.HandleFunc("/topics/{id}/schedule", s.scheduleTopicHandler).Methods(http.MethodPost)
	api.HandleFunc("/topics/{id}/reviews", s.reviewTopicHandler).Methods(http.MethodPost)

	return router
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return s.validateRequest(dst)
}
