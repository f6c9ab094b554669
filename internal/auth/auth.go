// Package auth verifies bearer credentials and exposes the decoded principal.
package auth

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/modgate/modgate/internal/errors"
)

// Principal is the authenticated caller decoded from a bearer token.
type Principal struct {
	ID          string
	Roles       []string
	Permissions []string
}

// HasRole reports whether the principal holds role (case-insensitive).
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of roles.
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the principal holds every one of roles.
func (p *Principal) HasAllRoles(roles ...string) bool {
	if p == nil {
		return false
	}
	for _, role := range roles {
		if !p.HasRole(role) {
			return false
		}
	}
	return true
}

// HasPermission reports whether the principal carries the named permission.
func (p *Principal) HasPermission(perm string) bool {
	if p == nil {
		return false
	}
	for _, have := range p.Permissions {
		if strings.EqualFold(have, perm) {
			return true
		}
	}
	return false
}

// Claims is the token payload: a principal on top of registered claims.
type Claims struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Verifier signs and verifies HS256 principal tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier with the shared signing secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret, issuer: "modgate"}
}

// GenerateToken issues a signed bearer token for p, valid for ttl.
func (v *Verifier) GenerateToken(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Roles:       p.Roles,
		Permissions: p.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and verifies a bearer token. Failures are differentiated
// for the error message only: expired, malformed, or generic invalid. The
// status is always 401.
func (v *Verifier) VerifyToken(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		switch {
		case stderrors.Is(err, jwt.ErrTokenExpired):
			return nil, errors.TokenExpired()
		case stderrors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.MalformedToken(err)
		default:
			return nil, errors.InvalidToken(err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.InvalidToken(nil)
	}
	if claims.Subject == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}

	return &Principal{
		ID:          claims.Subject,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}, nil
}

// ExtractBearer pulls the credential out of an Authorization header value.
// Empty return means no usable bearer credential was supplied.
func ExtractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
