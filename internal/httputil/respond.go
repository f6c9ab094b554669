// Package httputil shapes the response envelopes and carries request
// correlation identifiers.
package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/modgate/modgate/internal/errors"
)

// RequestIDHeader carries the request id back to the caller.
const RequestIDHeader = "X-Request-ID"

// NewRequestID returns a fresh request identifier, honouring one supplied by
// the caller.
func NewRequestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

// Envelope is the success response body.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	RequestID string `json:"requestId"`
	Version   string `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
	Meta      *Meta  `json:"meta,omitempty"`
}

// Meta carries per-response diagnostics.
type Meta struct {
	ResponseTime string `json:"responseTime"`
	Instance     string `json:"instance"`
}

// ErrorEnvelope is the failure response body.
type ErrorEnvelope struct {
	Success   bool       `json:"success"`
	Error     *ErrorBody `json:"error"`
	RequestID string     `json:"requestId"`
	Timestamp string     `json:"timestamp"`
	Debug     *DebugBody `json:"debug,omitempty"`
}

// ErrorBody is the structured error payload.
type ErrorBody struct {
	Code             string              `json:"code"`
	Message          string              `json:"message"`
	ValidationErrors []errors.FieldError `json:"validationErrors,omitempty"`
	Details          map[string]any      `json:"details,omitempty"`
}

// DebugBody is attached only outside production.
type DebugBody struct {
	Cause    string `json:"cause,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// WriteSuccess emits the success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any, requestID, version, instanceID string, start time.Time) {
	writeJSON(w, requestID, status, Envelope{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Meta: &Meta{
			ResponseTime: time.Since(start).String(),
			Instance:     instanceID,
		},
	})
}

// WriteError emits the error envelope for err. Non-operational failures get a
// generic message in production; full detail is kept for non-production
// debugging.
func WriteError(w http.ResponseWriter, err error, requestID string, production bool) {
	rec := errors.Classify(err)

	body := &ErrorBody{
		Code:    errors.CodeInternal,
		Message: "internal server error",
	}
	var debug *DebugBody

	if ae := errors.GetAppError(err); ae != nil {
		body.Code = ae.Code
		body.Message = ae.Message
		body.ValidationErrors = ae.Fields
		body.Details = ae.Details
		if !rec.Operational && production {
			body.Message = "internal server error"
			body.Details = nil
		}
	} else if !production && err != nil {
		body.Message = err.Error()
	}

	if !production && err != nil {
		debug = &DebugBody{
			Cause:    err.Error(),
			Kind:     string(rec.Kind),
			Severity: string(rec.Severity),
		}
	}

	if rec.Kind == errors.KindRateLimit {
		if retry, ok := retryAfterSeconds(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
	}

	writeJSON(w, requestID, rec.HTTPStatus, ErrorEnvelope{
		Success:   false,
		Error:     body,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Debug:     debug,
	})
}

func retryAfterSeconds(err error) (int, bool) {
	ae := errors.GetAppError(err)
	if ae == nil {
		return 0, false
	}
	if v, ok := ae.Details["retryAfter"].(int); ok {
		return v, true
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, requestID string, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(RequestIDHeader, requestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
