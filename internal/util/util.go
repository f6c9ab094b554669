// Package util holds the pure helper functions exposed on the execution
// context: rule-based validation, sanitization, and id/time generation.
// Nothing here carries state.
package util

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/modgate/modgate/internal/errors"
)

// Rule describes validation constraints for one field. Field paths use dot
// notation for nested payloads ("address.city").
type Rule struct {
	Required  bool
	Type      string // "string", "number", "bool", "array", "object"
	MinLength int
	MaxLength int
	Pattern   string
}

// Validate checks a raw JSON payload against a rule set and returns one
// FieldError per violation. An empty slice means the payload passed.
func Validate(payload []byte, rules map[string]Rule) []errors.FieldError {
	var failures []errors.FieldError

	for field, rule := range rules {
		value := gjson.GetBytes(payload, field)

		if !value.Exists() {
			if rule.Required {
				failures = append(failures, errors.FieldError{Field: field, Message: "is required"})
			}
			continue
		}

		if rule.Type != "" && !typeMatches(value, rule.Type) {
			failures = append(failures, errors.FieldError{
				Field:   field,
				Message: fmt.Sprintf("must be of type %s", rule.Type),
			})
			continue
		}

		if value.Type == gjson.String {
			s := value.String()
			if rule.MinLength > 0 && len(s) < rule.MinLength {
				failures = append(failures, errors.FieldError{
					Field:   field,
					Message: fmt.Sprintf("must be at least %d characters", rule.MinLength),
				})
			}
			if rule.MaxLength > 0 && len(s) > rule.MaxLength {
				failures = append(failures, errors.FieldError{
					Field:   field,
					Message: fmt.Sprintf("must be at most %d characters", rule.MaxLength),
				})
			}
			if rule.Pattern != "" {
				if re, err := regexp.Compile(rule.Pattern); err == nil && !re.MatchString(s) {
					failures = append(failures, errors.FieldError{Field: field, Message: "has invalid format"})
				}
			}
		}
	}
	return failures
}

func typeMatches(value gjson.Result, want string) bool {
	switch want {
	case "string":
		return value.Type == gjson.String
	case "number":
		return value.Type == gjson.Number
	case "bool":
		return value.Type == gjson.True || value.Type == gjson.False
	case "array":
		return value.IsArray()
	case "object":
		return value.IsObject()
	default:
		return true
	}
}

// Sanitize strips control characters and escapes HTML metacharacters.
func Sanitize(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return html.EscapeString(strings.TrimSpace(cleaned))
}

// TrimAndValidate trims a string and rejects empties. The most common
// validation pattern in module code.
func TrimAndValidate(value, fieldName string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", errors.Required(fieldName)
	}
	return trimmed, nil
}

// NewID returns a fresh UUID string.
func NewID() string {
	return uuid.NewString()
}

// Timestamp returns the current UTC time in RFC3339.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
