package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/config"
	"github.com/MJE43/idleforge/internal/editor"
	"github.com/MJE43/idleforge/internal/runtime"
	"github.com/MJE43/idleforge/internal/store"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause adds the underlying cause error
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final APIError
func (eb *ErrorBuilder) Build() APIError {
	return APIError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps a domain error onto an error type and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, editor.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, runtime.ErrSessionNotFound):
		return ErrTypeNotFound, http.StatusNotFound
	case errors.Is(err, editor.ErrInUse):
		return ErrTypeInUse, http.StatusConflict
	case errors.Is(err, blueprint.ErrDuplicateID):
		return ErrTypeDuplicateID, http.StatusConflict
	case errors.Is(err, blueprint.ErrInvalidID):
		return ErrTypeInvalidID, http.StatusBadRequest
	case errors.Is(err, blueprint.ErrUnknownReference):
		return ErrTypeUnknownReference, http.StatusUnprocessableEntity
	case errors.Is(err, blueprint.ErrInvalidValue):
		return ErrTypeInvalidValue, http.StatusBadRequest
	case errors.Is(err, blueprint.ErrUnsupportedVersion):
		return ErrTypeUnsupported, http.StatusBadRequest
	default:
		return ErrTypeInternal, http.StatusInternalServerError
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *log.Logger
	audit  *AuditLogger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *log.Logger, audit *AuditLogger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
		audit:  audit,
	}
}

// HandleError classifies err and writes the matching response.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	var apiErr APIError
	if errors.As(err, &apiErr) {
		eh.logError(r, apiErr, http.StatusInternalServerError)
		eh.writeErrorResponse(w, http.StatusInternalServerError, apiErr)
		return
	}

	errType, status := classify(err)
	b := NewError(errType, err.Error()).
		WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method)

	var verr *blueprint.ValidationError
	if errors.As(err, &verr) {
		problems := make([]string, 0, len(verr.Problems))
		for _, p := range verr.Problems {
			problems = append(problems, p.Error())
		}
		b.WithContext("problems", problems)
	}

	apiErr = b.Build()
	eh.logError(r, apiErr, status)
	eh.writeErrorResponse(w, status, apiErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	requestID := middleware.GetReqID(r.Context())

	apiErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(requestID).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.audit.LogSecurityEvent(
		requestID,
		"validation_failure",
		message,
		map[string]interface{}{
			"field": field,
			"path":  r.URL.Path,
		},
		r.RemoteAddr,
	)

	eh.logError(r, apiErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, apiErr)
}

// HandleUnauthorized rejects a request without a valid bearer token.
func (eh *ErrorHandler) HandleUnauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	requestID := middleware.GetReqID(r.Context())

	apiErr := NewError(ErrTypeUnauthorized, "Missing or invalid bearer token").
		WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.audit.LogSecurityEvent(requestID, "auth_failure", reason, map[string]interface{}{
		"path": r.URL.Path,
	}, r.RemoteAddr)

	w.Header().Set("WWW-Authenticate", `Bearer realm="idleforge"`)
	eh.logError(r, apiErr, http.StatusUnauthorized)
	eh.writeErrorResponse(w, http.StatusUnauthorized, apiErr)
}

// HandleNotFound reports a missing route or entity.
func (eh *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request, what string) {
	apiErr := NewError(ErrTypeNotFound, fmt.Sprintf("%s not found", what)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		Build()
	eh.logError(r, apiErr, http.StatusNotFound)
	eh.writeErrorResponse(w, http.StatusNotFound, apiErr)
}

// logError logs the error with appropriate level and context
func (eh *ErrorHandler) logError(r *http.Request, apiErr APIError, status int) {
	category := GetErrorCategory(apiErr.Type)

	logLevel := "ERROR"
	if category == CategoryValidation || category == CategoryResource || category == CategoryAuth {
		logLevel = "WARN"
	}

	eh.logger.Printf(
		"error_occurred level=%s type=%s category=%s status=%d request_id=%s path=%s message=%q context=%+v",
		logLevel, apiErr.Type, category, status, apiErr.RequestID, r.URL.Path, apiErr.Message, apiErr.Context,
	)
}

// writeErrorResponse writes the error response as JSON
func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, apiErr APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", config.Version)
	w.Header().Set("X-Error-Type", apiErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(apiErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		eh.logger.Printf("error_encode_failed request_id=%s error=%v", apiErr.RequestID, err)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())

				eh.logger.Printf(
					"panic_recovered request_id=%s path=%s method=%s panic=%v",
					requestID, r.URL.Path, r.Method, rvr,
				)

				apiErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("panic", fmt.Sprintf("%v", rvr)).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, apiErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
