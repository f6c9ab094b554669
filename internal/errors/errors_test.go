package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMissingToken(t *testing.T) {
	err := MissingToken()

	if err.Code != CodeMissingToken {
		t.Errorf("expected code %q, got %q", CodeMissingToken, err.Code)
	}
	if err.HTTPStatus != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", err.HTTPStatus)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Error("expected error to match ErrUnauthorized")
	}
	if !IsUnauthorized(err) {
		t.Error("IsUnauthorized should return true")
	}
}

func TestTokenFailuresAreDifferentiated(t *testing.T) {
	tests := []struct {
		err  *AppError
		code string
	}{
		{TokenExpired(), CodeTokenExpired},
		{MalformedToken(nil), CodeMalformedToken},
		{InvalidToken(nil), CodeInvalidToken},
	}

	for _, tc := range tests {
		if tc.err.Code != tc.code {
			t.Errorf("expected code %q, got %q", tc.code, tc.err.Code)
		}
		if tc.err.HTTPStatus != http.StatusUnauthorized {
			t.Errorf("%s: status should always be 401, got %d", tc.code, tc.err.HTTPStatus)
		}
	}
}

func TestValidationError(t *testing.T) {
	err := Validation("bad input", FieldError{Field: "name", Message: "too short"})

	if !IsValidation(err) {
		t.Error("IsValidation should return true")
	}
	if len(err.Fields) != 1 || err.Fields[0].Field != "name" {
		t.Errorf("unexpected field errors: %+v", err.Fields)
	}
}

func TestRequired(t *testing.T) {
	err := Required("owner_id")

	if err.Message != "owner_id is required" {
		t.Errorf("unexpected message: %s", err.Message)
	}
	if !IsValidation(err) {
		t.Error("IsValidation should return true for Required")
	}
}

func TestForbiddenWithDetails(t *testing.T) {
	err := Forbidden("insufficient role").
		WithDetails("requiredRoles", []string{"admin"}).
		WithDetails("userRoles", []string{"viewer"})

	if !IsForbidden(err) {
		t.Error("IsForbidden should return true")
	}
	roles, ok := err.Details["requiredRoles"].([]string)
	if !ok || len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("unexpected requiredRoles detail: %v", err.Details["requiredRoles"])
	}
}

func TestDatabaseDuplicateIsConflict(t *testing.T) {
	err := Database(CodeDuplicateEntry, "duplicate entry", http.StatusConflict, nil)

	if !IsConflict(err) {
		t.Error("duplicate entry should match ErrConflict")
	}
	if !err.Operational {
		t.Error("constraint violations are operational")
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("broken pipe")
	err := Internal("something failed", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}

func TestGetAppError(t *testing.T) {
	inner := NotFound("record not found")
	wrapped := fmt.Errorf("lookup: %w", inner)

	ae := GetAppError(wrapped)
	if ae == nil {
		t.Fatal("expected AppError through wrap chain")
	}
	if ae.Code != CodeNotFound {
		t.Errorf("expected %q, got %q", CodeNotFound, ae.Code)
	}

	if GetAppError(errors.New("plain")) != nil {
		t.Error("plain error should not yield an AppError")
	}
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := RateLimited(100, "1m0s", 42)

	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", err.HTTPStatus)
	}
	if got, _ := err.Details["retryAfter"].(int); got != 42 {
		t.Errorf("expected retryAfter 42, got %v", err.Details["retryAfter"])
	}
}
