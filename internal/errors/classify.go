package errors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Category groups kinds for alerting and dashboards. Fixed mapping from Kind.
type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryClient         Category = "client"
	CategorySecurity       Category = "security"
	CategoryProtection     Category = "protection"
	CategoryApplication    Category = "application"
)

// Severity orders failures for escalation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ErrorRecord is the classification result. Never persisted; it shapes the
// response and feeds the frequency tracker.
type ErrorRecord struct {
	Kind        Kind
	Category    Category
	Severity    Severity
	Operational bool
	HTTPStatus  int
}

// Classify maps an arbitrary failure into the fixed taxonomy. Pure: no side
// effects, same input always yields the same record.
func Classify(err error) ErrorRecord {
	kind := kindOf(err)
	rec := ErrorRecord{
		Kind:        kind,
		Category:    categoryOf(kind),
		Severity:    severityOf(kind, err),
		Operational: operationalOf(kind),
		HTTPStatus:  http.StatusInternalServerError,
	}
	if ae := GetAppError(err); ae != nil {
		rec.HTTPStatus = ae.HTTPStatus
		// An explicit operational flag on the value wins over the kind
		// default, so translated constraint violations surface verbatim.
		rec.Operational = ae.Operational
	}
	return rec
}

func kindOf(err error) Kind {
	if ae := GetAppError(err); ae != nil {
		return ae.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindAuthentication
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	if err != nil && strings.Contains(err.Error(), "connection refused") {
		return KindNetwork
	}
	return KindUnknown
}

func categoryOf(kind Kind) Category {
	switch kind {
	case KindDatabase, KindNetwork, KindUpstream:
		return CategoryInfrastructure
	case KindValidation, KindNotFound:
		return CategoryClient
	case KindAuthentication, KindAuthorization:
		return CategorySecurity
	case KindRateLimit:
		return CategoryProtection
	default:
		return CategoryApplication
	}
}

func severityOf(kind Kind, err error) Severity {
	switch kind {
	case KindDatabase:
		if ae := GetAppError(err); ae != nil {
			// Schema-level faults mean broken code, not bad input.
			if ae.Code == CodeUnknownColumn || ae.Code == CodeUnknownTable {
				return SeverityCritical
			}
		}
		return SeverityMedium
	case KindUpstream:
		return SeverityCritical
	case KindAuthentication, KindAuthorization:
		return SeverityHigh
	case KindValidation, KindNetwork:
		return SeverityMedium
	case KindNotFound, KindRateLimit:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

func operationalOf(kind Kind) bool {
	switch kind {
	case KindValidation, KindNotFound, KindRateLimit, KindAuthentication, KindAuthorization:
		return true
	default:
		return false
	}
}
