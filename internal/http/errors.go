package http

import (
	"context"
	"errors"
	"net/http"

	"bizdash/internal/core"
	"bizdash/internal/log"
	"bizdash/internal/services"
	"bizdash/internal/storage"
)

type errorBody struct {
	Error string `json:"error"`
}

// classify maps a handler error to a status, a client-safe message and
// the log error type.
func classify(err error) (int, string, string) {
	var fieldErr *FieldError
	var integrity *core.IntegrityError
	switch {
	case errors.As(err, &fieldErr):
		return http.StatusUnprocessableEntity, "Invalid " + fieldErr.Field, log.ErrorTypeValidation
	case core.IsValidationError(err), services.IsReferenceError(err):
		return http.StatusUnprocessableEntity, err.Error(), log.ErrorTypeValidation
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Record not found", log.ErrorTypeNotFound
	case errors.As(err, &integrity):
		return http.StatusConflict, integrity.Error(), log.ErrorTypeIntegrity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The data store did not answer in time", log.ErrorTypeTimeout
	default:
		return http.StatusInternalServerError, "Something went wrong, please retry", log.ErrorTypeInternal
	}
}

// writeError logs err and answers with the matching status: JSON for API
// clients, an error fragment plus notification otherwise.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, operation, collection string) {
	status, msg := s.logError(r, err, operation, collection)
	if wantsJSON(r) {
		writeJSON(w, status, errorBody{Error: msg})
		return
	}
	ErrorResponse(status, msg).Write(w)
}

// logError logs a failed request at Warn for client errors and Error
// otherwise, returning the status and message to answer with.
func (s *Server) logError(r *http.Request, err error, operation, collection string) (int, string) {
	status, msg, errType := classify(err)

	logger := log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
	fields := log.NewFields().
		WithError(err).
		WithErrorType(errType).
		WithOperation(operation)
	if collection != "" {
		fields[log.FieldCollection] = collection
	}
	fields[log.FieldStatusCode] = status
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	return status, msg
}
