package util

import (
	"testing"
	"time"
)

func TestValidateRequired(t *testing.T) {
	rules := map[string]Rule{
		"name":  {Required: true, Type: "string"},
		"count": {Required: true, Type: "number"},
	}

	failures := Validate([]byte(`{"name":"widget"}`), rules)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d: %+v", len(failures), failures)
	}
	if failures[0].Field != "count" {
		t.Errorf("expected failure on count, got %s", failures[0].Field)
	}
}

func TestValidateTypes(t *testing.T) {
	rules := map[string]Rule{
		"name":    {Type: "string"},
		"count":   {Type: "number"},
		"active":  {Type: "bool"},
		"tags":    {Type: "array"},
		"details": {Type: "object"},
	}

	payload := []byte(`{"name":1,"count":"x","active":"yes","tags":{},"details":[]}`)
	failures := Validate(payload, rules)
	if len(failures) != 5 {
		t.Errorf("expected 5 type failures, got %d: %+v", len(failures), failures)
	}

	good := []byte(`{"name":"a","count":2,"active":true,"tags":[1],"details":{"k":1}}`)
	if failures := Validate(good, rules); len(failures) != 0 {
		t.Errorf("expected no failures, got %+v", failures)
	}
}

func TestValidateLengthAndPattern(t *testing.T) {
	rules := map[string]Rule{
		"code": {Type: "string", MinLength: 3, MaxLength: 5, Pattern: `^[A-Z]+$`},
	}

	if f := Validate([]byte(`{"code":"AB"}`), rules); len(f) != 1 {
		t.Errorf("too short: expected 1 failure, got %+v", f)
	}
	if f := Validate([]byte(`{"code":"ABCDEF"}`), rules); len(f) != 1 {
		t.Errorf("too long: expected 1 failure, got %+v", f)
	}
	if f := Validate([]byte(`{"code":"abc"}`), rules); len(f) != 1 {
		t.Errorf("pattern: expected 1 failure, got %+v", f)
	}
	if f := Validate([]byte(`{"code":"ABC"}`), rules); len(f) != 0 {
		t.Errorf("valid: expected no failures, got %+v", f)
	}
}

func TestValidateNestedPath(t *testing.T) {
	rules := map[string]Rule{
		"address.city": {Required: true, Type: "string"},
	}

	if f := Validate([]byte(`{"address":{"city":"Oslo"}}`), rules); len(f) != 0 {
		t.Errorf("expected nested path to pass, got %+v", f)
	}
	if f := Validate([]byte(`{"address":{}}`), rules); len(f) != 1 {
		t.Errorf("expected nested path to fail, got %+v", f)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  plain  ", "plain"},
		{"<script>x</script>", "&lt;script&gt;x&lt;/script&gt;"},
		{"a\x00b\x1fc", "abc"},
		{"keep\nnewline", "keep\nnewline"},
	}

	for _, tc := range tests {
		if got := Sanitize(tc.in); got != tc.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTrimAndValidate(t *testing.T) {
	if _, err := TrimAndValidate("  ", "name"); err == nil {
		t.Error("blank value should fail")
	}
	got, err := TrimAndValidate(" value ", "name")
	if err != nil || got != "value" {
		t.Errorf("expected trimmed value, got %q err %v", got, err)
	}
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Error("ids should be unique")
	}
	if len(a) != 36 {
		t.Errorf("expected UUID format, got %q", a)
	}
}

func TestTimestampFormat(t *testing.T) {
	if _, err := time.Parse(time.RFC3339, Timestamp()); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}
}
