package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/repository"
	"github.com/nzoschke/dreamsaver/internal/service"
	"github.com/nzoschke/dreamsaver/internal/service/payment"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

type apiError struct {
	status    int
	code      string
	retryable bool
}

// classify maps service errors to their HTTP status and error code.
func classify(err error) apiError {
	switch {
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, model.ErrAmountNotPositive), errors.Is(err, model.ErrAmountPrecision),
		errors.Is(err, model.ErrAmountTooLarge):
		return apiError{http.StatusBadRequest, "InvalidAmount", false}
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, service.ErrAllocationMismatch):
		return apiError{http.StatusBadRequest, "InvalidArgument", false}
	case errors.Is(err, service.ErrGoalNotFound):
		return apiError{http.StatusNotFound, "GoalNotFound", false}
	case errors.Is(err, repository.ErrDepositNotFound):
		return apiError{http.StatusNotFound, "ReceiptNotFound", false}
	case errors.Is(err, repository.ErrNotificationNotFound):
		return apiError{http.StatusNotFound, "NotificationNotFound", false}
	case errors.Is(err, service.ErrGoalLocked):
		return apiError{http.StatusConflict, "GoalLocked", false}
	case errors.Is(err, service.ErrGoalNotDeletable):
		return apiError{http.StatusConflict, "GoalNotDeletable", false}
	case errors.Is(err, service.ErrGoalLimitReached):
		return apiError{http.StatusForbidden, "GoalLimitReached", false}
	case errors.Is(err, service.ErrFeatureUnavailable):
		return apiError{http.StatusForbidden, "FeatureUnavailable", false}
	case errors.Is(err, payment.ErrGateway):
		return apiError{http.StatusBadGateway, "PaymentGatewayError", true}
	case errors.Is(err, context.DeadlineExceeded):
		return apiError{http.StatusGatewayTimeout, "Timeout", true}
	default:
		return apiError{http.StatusInternalServerError, "Internal", true}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError logs err and writes its taxonomy entry. Internal errors never leak their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)

	message := err.Error()
	if e.status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path, "code", e.code)
		if e.status == http.StatusInternalServerError {
			message = "internal error"
		}
	}

	writeJSON(w, e.status, ErrorResponse{
		Error:     message,
		Code:      e.code,
		Retryable: e.retryable,
	})
}

// decode reads a JSON body into v and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err != nil {
		return fmt.Errorf("%w: malformed request body: %w", service.ErrInvalidArgument, err)
	}

	err = validate.Struct(v)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", service.ErrInvalidArgument, describe(verrs))
		}
		return fmt.Errorf("%w: %w", service.ErrInvalidArgument, err)
	}

	return nil
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}
