package auth

import (
	"testing"
	"time"

	"github.com/modgate/modgate/internal/errors"
)

func testVerifier() *Verifier {
	return NewVerifier([]byte("test-secret-at-least-32-bytes-long"))
}

func TestRoundTrip(t *testing.T) {
	v := testVerifier()

	token, err := v.GenerateToken(Principal{
		ID:          "user-1",
		Roles:       []string{"admin", "editor"},
		Permissions: []string{"records:write"},
	}, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	p, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.ID != "user-1" {
		t.Errorf("expected id user-1, got %s", p.ID)
	}
	if !p.HasRole("admin") || !p.HasRole("EDITOR") {
		t.Error("roles should match case-insensitively")
	}
	if !p.HasPermission("records:write") {
		t.Error("permission missing after round trip")
	}
}

func TestExpiredToken(t *testing.T) {
	v := testVerifier()

	token, err := v.GenerateToken(Principal{ID: "user-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = v.VerifyToken(token)
	ae := errors.GetAppError(err)
	if ae == nil {
		t.Fatal("expected AppError")
	}
	if ae.Code != errors.CodeTokenExpired {
		t.Errorf("expected %s, got %s", errors.CodeTokenExpired, ae.Code)
	}
	if ae.HTTPStatus != 401 {
		t.Errorf("expired tokens still return 401, got %d", ae.HTTPStatus)
	}
}

func TestMalformedToken(t *testing.T) {
	v := testVerifier()

	_, err := v.VerifyToken("not-a-jwt")
	ae := errors.GetAppError(err)
	if ae == nil {
		t.Fatal("expected AppError")
	}
	if ae.Code != errors.CodeMalformedToken {
		t.Errorf("expected %s, got %s", errors.CodeMalformedToken, ae.Code)
	}
}

func TestWrongSecret(t *testing.T) {
	token, err := NewVerifier([]byte("other-secret-that-is-long-enough")).
		GenerateToken(Principal{ID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = testVerifier().VerifyToken(token)
	ae := errors.GetAppError(err)
	if ae == nil {
		t.Fatal("expected AppError")
	}
	if ae.Code != errors.CodeInvalidToken {
		t.Errorf("expected %s, got %s", errors.CodeInvalidToken, ae.Code)
	}
}

func TestPrincipalRoleHelpers(t *testing.T) {
	p := &Principal{ID: "u", Roles: []string{"editor", "viewer"}}

	if !p.HasAnyRole("admin", "viewer") {
		t.Error("HasAnyRole should match viewer")
	}
	if p.HasAnyRole("admin", "owner") {
		t.Error("HasAnyRole should not match")
	}
	if !p.HasAllRoles("editor", "viewer") {
		t.Error("HasAllRoles should match both")
	}
	if p.HasAllRoles("editor", "admin") {
		t.Error("HasAllRoles should fail on admin")
	}

	var nilP *Principal
	if nilP.HasRole("any") {
		t.Error("nil principal holds no roles")
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"Basic dXNlcg==", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tc := range tests {
		if got := ExtractBearer(tc.header); got != tc.want {
			t.Errorf("ExtractBearer(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
