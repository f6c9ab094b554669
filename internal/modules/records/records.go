// Package records is the built-in generic record store module. Reads are
// cache-aside; writes invalidate the collection pattern.
package records

import (
	"context"
	"fmt"
	"strconv"

	"github.com/modgate/modgate/internal/errors"
	"github.com/modgate/modgate/internal/execctx"
	"github.com/modgate/modgate/internal/registry"
	"github.com/modgate/modgate/internal/storage"
	"github.com/modgate/modgate/internal/util"
)

const (
	table        = "records"
	defaultLimit = 50
	maxLimit     = 200
)

// Module is a CRUD surface over the records table.
type Module struct{}

// New returns the records module.
func New() *Module { return &Module{} }

func (m *Module) Manifest() registry.Manifest {
	public := true
	return registry.Manifest{
		Name:        "records",
		Version:     registry.DefaultVersion,
		Description: "generic record storage",
		Defaults: registry.Policy{
			AuthRequired: true,
		},
		Methods: map[string]registry.MethodConfig{
			"list": {Public: &public},
			"get":  {Public: &public},
		},
	}
}

func (m *Module) Methods() map[string]registry.Handler {
	return map[string]registry.Handler{
		"list":   m.list,
		"get":    m.get,
		"create": m.create,
		"update": m.update,
		"delete": m.remove,
	}
}

func (m *Module) list(ctx context.Context, req *execctx.Request, ec *execctx.Context) (any, error) {
	limit := intParam(req.Data, "limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		return nil, errors.Validation(fmt.Sprintf("limit must be between 1 and %d", maxLimit))
	}
	offset := intParam(req.Data, "offset", 0)
	if offset < 0 {
		return nil, errors.Validation("offset must not be negative")
	}

	result, err := ec.Data.Query(ctx,
		"SELECT id, name, payload, created_at, updated_at FROM records ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		[]any{limit, offset},
		storage.WithCacheKey(fmt.Sprintf("records:list:%d:%d", limit, offset)))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"records":   result.Rows,
		"count":     result.Count,
		"fromCache": result.FromCache,
	}, nil
}

func (m *Module) get(ctx context.Context, req *execctx.Request, ec *execctx.Context) (any, error) {
	id, ok := req.Data["id"].(string)
	if !ok || id == "" {
		return nil, errors.Required("id")
	}

	result, err := ec.Data.Query(ctx,
		"SELECT id, name, payload, created_at, updated_at FROM records WHERE id = $1",
		[]any{id},
		storage.WithCacheKey("records:"+id))
	if err != nil {
		return nil, err
	}
	if result.Count == 0 {
		return nil, errors.NotFound("record not found")
	}
	return map[string]any{
		"record":    result.Rows[0],
		"fromCache": result.FromCache,
	}, nil
}

func (m *Module) create(ctx context.Context, req *execctx.Request, ec *execctx.Context) (any, error) {
	if err := ec.Validate(map[string]util.Rule{
		"name": {Required: true, Type: "string", MinLength: 1, MaxLength: 255},
	}); err != nil {
		return nil, err
	}

	name, _ := req.Data["name"].(string)
	record := map[string]any{
		"id":         ec.NewID(),
		"name":       ec.Sanitize(name),
		"created_at": ec.Timestamp(),
		"updated_at": ec.Timestamp(),
	}
	if payload, ok := req.Data["payload"].(string); ok {
		record["payload"] = ec.Sanitize(payload)
	}
	if req.Principal != nil {
		record["owner_id"] = req.Principal.ID
	}

	if _, err := ec.Data.Insert(ctx, table, record); err != nil {
		return nil, err
	}
	return map[string]any{"id": record["id"], "created": true}, nil
}

func (m *Module) update(ctx context.Context, req *execctx.Request, ec *execctx.Context) (any, error) {
	id, ok := req.Data["id"].(string)
	if !ok || id == "" {
		return nil, errors.Required("id")
	}

	changes := map[string]any{"updated_at": ec.Timestamp()}
	if name, ok := req.Data["name"].(string); ok {
		if name == "" {
			return nil, errors.Validation("name must not be empty")
		}
		changes["name"] = ec.Sanitize(name)
	}
	if payload, ok := req.Data["payload"].(string); ok {
		changes["payload"] = ec.Sanitize(payload)
	}
	if len(changes) == 1 {
		return nil, errors.Validation("no updatable fields supplied")
	}

	affected, err := ec.Data.Update(ctx, table, changes, "id = $1", id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, errors.NotFound("record not found")
	}
	return map[string]any{"id": id, "updated": true}, nil
}

func (m *Module) remove(ctx context.Context, req *execctx.Request, ec *execctx.Context) (any, error) {
	id, ok := req.Data["id"].(string)
	if !ok || id == "" {
		return nil, errors.Required("id")
	}

	affected, err := ec.Data.Delete(ctx, table, "id = $1", id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, errors.NotFound("record not found")
	}
	return map[string]any{"id": id, "deleted": true}, nil
}

// intParam reads a numeric parameter that may arrive as a query string or a
// JSON number.
func intParam(data map[string]any, key string, fallback int) int {
	switch v := data[key].(type) {
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		return fallback
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
