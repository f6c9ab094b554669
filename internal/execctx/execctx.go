// Package execctx builds the capability object handed to a module method.
// One Context per request, fully constructed before the method runs, never
// reused.
package execctx

import (
	"net/http"
	"time"

	"github.com/modgate/modgate/internal/auth"
	"github.com/modgate/modgate/internal/cache"
	"github.com/modgate/modgate/internal/errors"
	"github.com/modgate/modgate/internal/logging"
	"github.com/modgate/modgate/internal/storage"
	"github.com/modgate/modgate/internal/util"
)

// Request is the per-request value object threaded through the pipeline and
// into module code. Created at pipeline entry; never shared across requests.
type Request struct {
	ID         string
	InstanceID string
	Module     string
	Method     string
	Version    string
	Principal  *auth.Principal
	Start      time.Time
	RawBody    []byte
	Data       map[string]any
	Remote     string
	HTTP       *http.Request
}

// Context is the capability set a module method runs against: data access,
// cache, logging, principal introspection, and pure utilities.
type Context struct {
	Data  *storage.DataAccess
	Cache cache.Cache
	Log   *logging.Logger

	req *Request
}

// Builder constructs per-request Contexts from process-lifetime dependencies.
type Builder struct {
	data *storage.DataAccess
	log  *logging.Logger
}

// NewBuilder wires the builder with its process-scoped dependencies.
func NewBuilder(data *storage.DataAccess, log *logging.Logger) *Builder {
	return &Builder{data: data, log: log}
}

// Build returns a fresh Context scoped to req.
func (b *Builder) Build(req *Request) *Context {
	return &Context{
		Data:  b.data,
		Cache: b.data.Cache(),
		Log:   b.log.WithRequest(req.ID, req.Module, req.Method),
		req:   req,
	}
}

// Request returns the request this context is scoped to.
func (c *Context) Request() *Request {
	return c.req
}

// Principal returns the authenticated caller, or nil.
func (c *Context) Principal() *auth.Principal {
	return c.req.Principal
}

// --- Role and ownership predicates ------------------------------------------

// HasRole reports whether the caller holds role.
func (c *Context) HasRole(role string) bool {
	return c.req.Principal.HasRole(role)
}

// HasAnyRole reports whether the caller holds at least one of roles.
func (c *Context) HasAnyRole(roles ...string) bool {
	return c.req.Principal.HasAnyRole(roles...)
}

// HasAllRoles reports whether the caller holds all of roles.
func (c *Context) HasAllRoles(roles ...string) bool {
	return c.req.Principal.HasAllRoles(roles...)
}

// OwnsResource reports whether the caller's id matches a resource's owning id.
func (c *Context) OwnsResource(ownerID string) bool {
	return c.req.Principal != nil && ownerID != "" && c.req.Principal.ID == ownerID
}

// --- Enforcement helpers ----------------------------------------------------

// RequireAuthenticated fails with a typed 401 when no principal is attached.
func (c *Context) RequireAuthenticated() error {
	if c.req.Principal == nil {
		return errors.AuthRequired()
	}
	return nil
}

// RequireRole fails with a typed 403 when the caller lacks role.
func (c *Context) RequireRole(role string) error {
	if err := c.RequireAuthenticated(); err != nil {
		return err
	}
	if !c.HasRole(role) {
		return errors.Forbidden("insufficient role").
			WithDetails("requiredRoles", []string{role}).
			WithDetails("userRoles", c.req.Principal.Roles)
	}
	return nil
}

// RequireAnyRole fails with a typed 403 when the caller holds none of roles.
func (c *Context) RequireAnyRole(roles ...string) error {
	if err := c.RequireAuthenticated(); err != nil {
		return err
	}
	if !c.HasAnyRole(roles...) {
		return errors.Forbidden("insufficient role").
			WithDetails("requiredRoles", roles).
			WithDetails("userRoles", c.req.Principal.Roles)
	}
	return nil
}

// RequireOwnership fails with a typed 403 when the caller does not own the
// resource.
func (c *Context) RequireOwnership(ownerID, resource string) error {
	if err := c.RequireAuthenticated(); err != nil {
		return err
	}
	if !c.OwnsResource(ownerID) {
		return errors.Forbidden(resource + " does not belong to caller")
	}
	return nil
}

// --- Utilities --------------------------------------------------------------

// NewID returns a fresh unique id.
func (c *Context) NewID() string { return util.NewID() }

// Timestamp returns the current UTC time in RFC3339.
func (c *Context) Timestamp() string { return util.Timestamp() }

// Sanitize strips control characters and escapes HTML metacharacters.
func (c *Context) Sanitize(s string) string { return util.Sanitize(s) }

// Validate checks the request's raw body against a rule set and returns a
// typed validation error when any rule fails.
func (c *Context) Validate(rules map[string]util.Rule) error {
	if failures := util.Validate(c.req.RawBody, rules); len(failures) > 0 {
		return errors.Validation("validation failed", failures...)
	}
	return nil
}
