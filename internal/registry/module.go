// Package registry discovers modules and resolves routes to callables with
// their effective policy. Built-in "core" modules and user modules share one
// namespace; displacement rules decide conflicts.
package registry

import (
	"context"
	"strings"

	"github.com/modgate/modgate/internal/execctx"
	"github.com/modgate/modgate/internal/ratelimit"
)

// DefaultVersion applies when a manifest omits its version.
const DefaultVersion = "v1"

// reservedPrefix marks method names that denote configuration or internal
// helpers, never routes.
const reservedPrefix = "_"

// Handler is one module method. It receives the request context and the
// capability object, fully built before invocation.
type Handler func(ctx context.Context, req *execctx.Request, ec *execctx.Context) (any, error)

// Policy is the module-level default policy.
type Policy struct {
	AuthRequired bool
	Roles        []string
	Permissions  []string
	RateLimit    *ratelimit.Limit
}

// MethodConfig is a per-method policy override. Nil pointer fields inherit
// the module default; the method wins field-by-field.
type MethodConfig struct {
	Public       *bool
	AuthRequired *bool
	Roles        []string
	Permissions  []string
	RateLimit    *ratelimit.Limit
}

// MethodPolicy is the resolved, effective policy for one method.
type MethodPolicy struct {
	Public       bool
	AuthRequired bool
	Roles        []string
	Permissions  []string
	RateLimit    *ratelimit.Limit
}

// Manifest is the static description a module registers under.
type Manifest struct {
	Name        string
	Version     string
	Description string
	Defaults    Policy
	// Methods holds per-method overrides; entries are optional and keyed by
	// method name.
	Methods map[string]MethodConfig
}

// Module is the contract business modules implement.
type Module interface {
	Manifest() Manifest
	Methods() map[string]Handler
}

// RouteKey identifies one registered module.
type RouteKey struct {
	Module  string
	Version string
}

func (k RouteKey) String() string {
	return k.Module + "/" + k.Version
}

// Record is one registered module. Immutable once registered; Reload swaps
// the whole record pointer.
type Record struct {
	Key      RouteKey
	Core     bool
	Source   string
	manifest Manifest
	methods  map[string]Handler
}

// Info is the introspection view served by the info endpoint.
type Info struct {
	Module      string   `json:"module"`
	Version     string   `json:"version"`
	Core        bool     `json:"core"`
	Description string   `json:"description"`
	Methods     []string `json:"methods"`
}

// routable reports whether name may be exposed as a route.
func routable(name string, h Handler) bool {
	return h != nil && name != "" && !strings.HasPrefix(name, reservedPrefix)
}
