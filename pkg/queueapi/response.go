package queueapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/docqueue/pkg/logger"
	"github.com/dmitrymomot/docqueue/pkg/queue"
	"github.com/dmitrymomot/docqueue/pkg/requestid"
)

// Response is the envelope of every JSON body.
type Response struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

// writeError maps err onto a status code. Unexpected errors are logged and
// hidden behind a generic message.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		a.log.ErrorContext(r.Context(), "request failed",
			logger.Component("queueapi"),
			logger.Error(err))
		message = http.StatusText(status)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: &ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: requestid.FromContext(r.Context()),
	}})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrQueueNotFound):
		return http.StatusNotFound, "queue_not_found"
	case errors.Is(err, ErrRouteNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, "method_not_allowed"
	case errors.Is(err, queue.ErrUnknownLease):
		return http.StatusConflict, "unknown_lease"
	case errors.Is(err, ErrUnsupportedMediaType), errors.Is(err, ErrMissingContentType):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, ErrInvalidJSON):
		return http.StatusBadRequest, "invalid_json"
	case errors.Is(err, queue.ErrInvalidArgument),
		errors.Is(err, ErrPayloadRequired),
		errors.Is(err, ErrAmbiguousPayload),
		errors.Is(err, ErrNegativeDuration),
		errors.Is(err, ErrDurationTooLarge):
		return http.StatusBadRequest, "invalid_argument"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
