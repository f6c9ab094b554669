package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/modgate/modgate/internal/errors"
	"github.com/modgate/modgate/internal/logging"
)

// Registry maps RouteKeys to module records. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	records map[RouteKey]*Record
	log     *logging.Logger
}

// New creates an empty registry.
func New(log *logging.Logger) *Registry {
	return &Registry{
		records: make(map[RouteKey]*Record),
		log:     log,
	}
}

// Register adds a module. Conflict rules:
//   - user module over core module: the user module replaces it;
//   - core module over user module: the registration is skipped;
//   - same origin over same origin: rejected, the first registration wins.
func (r *Registry) Register(m Module, core bool) error {
	rec, err := buildRecord(m, core)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[rec.Key]
	if ok {
		switch {
		case existing.Core && !core:
			r.log.WithFields(map[string]any{
				"route": rec.Key.String(),
			}).Info("user module replaces core module")
		case !existing.Core && core:
			r.log.WithFields(map[string]any{
				"route": rec.Key.String(),
			}).Info("core registration skipped, user module already present")
			return nil
		default:
			r.log.WithFields(map[string]any{
				"route": rec.Key.String(),
				"core":  core,
			}).Warn("duplicate module registration rejected")
			return fmt.Errorf("module %s already registered", rec.Key)
		}
	}

	r.records[rec.Key] = rec
	return nil
}

// Resolve returns the callable and effective policy for a route. Unknown
// module and unknown method both come back as the same generic not-found;
// callers cannot distinguish which level missed.
func (r *Registry) Resolve(module, method, version string) (Handler, MethodPolicy, error) {
	r.mu.RLock()
	rec, ok := r.records[RouteKey{Module: module, Version: version}]
	r.mu.RUnlock()

	if !ok {
		return nil, MethodPolicy{}, errors.NotFound(notFoundMessage(module, method, version))
	}

	h, ok := rec.methods[method]
	if !ok {
		return nil, MethodPolicy{}, errors.NotFound(notFoundMessage(module, method, version))
	}

	return h, rec.policyFor(method), nil
}

// Reload atomically swaps the record for (module, version) with a record
// built from newModule. In-flight requests keep the record they resolved.
func (r *Registry) Reload(module, version string, newModule Module) error {
	rec, err := buildRecord(newModule, false)
	if err != nil {
		return err
	}

	key := RouteKey{Module: module, Version: version}
	if rec.Key != key {
		return fmt.Errorf("reload: module manifest is %s, not %s", rec.Key, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.records[key]
	if !ok {
		return errors.NotFound(fmt.Sprintf("module %s not registered", key))
	}
	rec.Core = old.Core

	r.records[key] = rec
	r.log.WithFields(map[string]any{"route": key.String()}).Info("module reloaded")
	return nil
}

// List returns introspection info for every registered module, sorted by
// route key.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.records))
	for _, rec := range r.records {
		methods := make([]string, 0, len(rec.methods))
		for name := range rec.methods {
			methods = append(methods, name)
		}
		sort.Strings(methods)

		out = append(out, Info{
			Module:      rec.Key.Module,
			Version:     rec.Key.Version,
			Core:        rec.Core,
			Description: rec.manifest.Description,
			Methods:     methods,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// Count returns the number of registered modules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func buildRecord(m Module, core bool) (*Record, error) {
	manifest := m.Manifest()

	if manifest.Name == "" {
		return nil, errors.Validation("module manifest has no name")
	}
	if manifest.Version == "" {
		manifest.Version = DefaultVersion
	}

	methods := make(map[string]Handler)
	for name, h := range m.Methods() {
		if routable(name, h) {
			methods[name] = h
		}
	}
	if len(methods) == 0 {
		return nil, errors.Validation(fmt.Sprintf("module %q exposes no routable methods", manifest.Name))
	}

	return &Record{
		Key:      RouteKey{Module: manifest.Name, Version: manifest.Version},
		Core:     core,
		Source:   manifest.Name,
		manifest: manifest,
		methods:  methods,
	}, nil
}

func notFoundMessage(module, method, version string) string {
	return fmt.Sprintf("no route for %s/%s/%s", version, module, method)
}

// policyFor merges module defaults with the method override, method fields
// winning. Public bypasses authentication only; rate limits still apply.
func (rec *Record) policyFor(method string) MethodPolicy {
	defaults := rec.manifest.Defaults
	policy := MethodPolicy{
		AuthRequired: defaults.AuthRequired,
		Roles:        defaults.Roles,
		Permissions:  defaults.Permissions,
		RateLimit:    defaults.RateLimit,
	}

	override, ok := rec.manifest.Methods[method]
	if !ok {
		return policy
	}

	if override.Public != nil {
		policy.Public = *override.Public
	}
	if override.AuthRequired != nil {
		policy.AuthRequired = *override.AuthRequired
	}
	if override.Roles != nil {
		policy.Roles = override.Roles
	}
	if override.Permissions != nil {
		policy.Permissions = override.Permissions
	}
	if override.RateLimit != nil {
		policy.RateLimit = override.RateLimit
	}
	return policy
}
