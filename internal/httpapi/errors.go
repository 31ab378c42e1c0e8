package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mcclellann/lifeledger/pkg/adjustment"
	"github.com/mcclellann/lifeledger/pkg/amortization"
	"github.com/mcclellann/lifeledger/pkg/ledger"
	"github.com/mcclellann/lifeledger/pkg/review"
	"github.com/mcclellann/lifeledger/pkg/store"
	"github.com/mcclellann/lifeledger/pkg/study"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

// requestError is a client mistake caught before any service is called.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

// validateRequest runs struct validation and turns the failures into one
// readable message.
func (s *Server) validateRequest(req interface{}) error {
	err := s.validator.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return badRequest(err.Error())
	}

	var messages []string
	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("field %s is required", field))
		case "gt":
			messages = append(messages, fmt.Sprintf("field %s must be greater than %s", field, e.Param()))
		case "gte":
			messages = append(messages, fmt.Sprintf("field %s must be at least %s", field, e.Param()))
		case "lte", "max":
			messages = append(messages, fmt.Sprintf("field %s must be at most %s", field, e.Param()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("field %s must be one of: %s", field, e.Param()))
		case "datetime":
			messages = append(messages, fmt.Sprintf("field %s must be a date in YYYY-MM-DD format", field))
		case "uuid":
			messages = append(messages, fmt.Sprintf("field %s must be a UUID", field))
		default:
			messages = append(messages, fmt.Sprintf("field %s is invalid", field))
		}
	}
	return badRequest(strings.Join(messages, "; "))
}

func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, adjustment.ErrLoanClosed),
		errors.Is(err, adjustment.ErrOverdueInstalments),
		errors.Is(err, ledger.ErrEntryNotPending),
		errors.Is(err, study.ErrTopicNotCompleted),
		errors.Is(err, study.ErrTopicNotScheduled):
		return http.StatusConflict
	case errors.Is(err, adjustment.ErrInvalidAmount),
		errors.Is(err, adjustment.ErrInvalidMode),
		errors.Is(err, amortization.ErrArithmeticDegenerate),
		errors.Is(err, review.ErrInvalidQuality),
		errors.Is(err, review.ErrInvalidState),
		errors.Is(err, study.ErrInvalidTopic):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code. Internal failures are logged and
// reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("op", op),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
