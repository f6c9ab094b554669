package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modgate/modgate/internal/ratelimit"
	"github.com/modgate/modgate/internal/registry"
)

// ModulePolicies maps module name to operator-supplied policy overrides.
// Overrides win over the defaults a module declares in its manifest.
type ModulePolicies map[string]ModulePolicy

// ModulePolicy overrides a module's declared policy. Nil pointer fields
// leave the manifest value untouched.
type ModulePolicy struct {
	AuthRequired *bool                   `yaml:"authRequired"`
	Roles        []string                `yaml:"roles"`
	Permissions  []string                `yaml:"permissions"`
	RateLimit    string                  `yaml:"rateLimit"`
	Methods      map[string]MethodPolicy `yaml:"methods"`

	// Limit is the parsed form of RateLimit, populated by LoadModulePolicies.
	Limit *ratelimit.Limit `yaml:"-"`
}

// MethodPolicy overrides a single method's policy.
type MethodPolicy struct {
	Public       *bool    `yaml:"public"`
	AuthRequired *bool    `yaml:"authRequired"`
	Roles        []string `yaml:"roles"`
	Permissions  []string `yaml:"permissions"`
	RateLimit    string   `yaml:"rateLimit"`

	Limit *ratelimit.Limit `yaml:"-"`
}

type policyFile struct {
	Modules ModulePolicies `yaml:"modules"`
}

// LoadModulePolicies reads the policy file at path and parses every rate
// limit specification up front, so a malformed file fails at startup
// rather than on the first request.
func LoadModulePolicies(path string) (ModulePolicies, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing module policy file: %w", err)
	}

	for name, mod := range file.Modules {
		if mod.RateLimit != "" {
			lim, err := ratelimit.Parse(mod.RateLimit)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", name, err)
			}
			mod.Limit = &lim
		}
		for method, mc := range mod.Methods {
			if mc.RateLimit != "" {
				lim, err := ratelimit.Parse(mc.RateLimit)
				if err != nil {
					return nil, fmt.Errorf("module %s method %s: %w", name, method, err)
				}
				mc.Limit = &lim
			}
			mod.Methods[method] = mc
		}
		file.Modules[name] = mod
	}
	return file.Modules, nil
}

// Apply merges the overrides for the named module into its manifest and
// returns the result. Unknown module names are a no-op.
func (p ModulePolicies) Apply(m registry.Manifest) registry.Manifest {
	mod, ok := p[m.Name]
	if !ok {
		return m
	}
	if mod.AuthRequired != nil {
		m.Defaults.AuthRequired = *mod.AuthRequired
	}
	if mod.Roles != nil {
		m.Defaults.Roles = mod.Roles
	}
	if mod.Permissions != nil {
		m.Defaults.Permissions = mod.Permissions
	}
	if mod.Limit != nil {
		m.Defaults.RateLimit = mod.Limit
	}
	if len(mod.Methods) == 0 {
		return m
	}
	if m.Methods == nil {
		m.Methods = make(map[string]registry.MethodConfig, len(mod.Methods))
	}
	for name, mc := range mod.Methods {
		cur := m.Methods[name]
		if mc.Public != nil {
			cur.Public = mc.Public
		}
		if mc.AuthRequired != nil {
			cur.AuthRequired = mc.AuthRequired
		}
		if mc.Roles != nil {
			cur.Roles = mc.Roles
		}
		if mc.Permissions != nil {
			cur.Permissions = mc.Permissions
		}
		if mc.Limit != nil {
			cur.RateLimit = mc.Limit
		}
		m.Methods[name] = cur
	}
	return m
}
