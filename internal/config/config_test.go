package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modgate/modgate/internal/registry"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d, want 25", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.ConnMaxLifetime != 30*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want 30m", cfg.Database.ConnMaxLifetime)
	}
	if got := cfg.SupportedVersions; len(got) != 2 || got[0] != "v1" || got[1] != "v2" {
		t.Errorf("SupportedVersions = %v, want [v1 v2]", got)
	}
	if cfg.Production() {
		t.Error("Production() = true for development environment")
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")
	t.Setenv("DB_CONN_MAX_LIFETIME", "5m")
	t.Setenv("SUPPORTED_VERSIONS", "v1, v2 ,v3")
	t.Setenv("CACHE_ADDRS", "redis-0:6379,redis-1:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Production() {
		t.Error("Production() = false, want true")
	}
	if cfg.Database.MaxOpenConns != 50 {
		t.Errorf("MaxOpenConns = %d, want 50", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want 5m", cfg.Database.ConnMaxLifetime)
	}
	if got := cfg.SupportedVersions; len(got) != 3 || got[2] != "v3" {
		t.Errorf("SupportedVersions = %v, want [v1 v2 v3]", got)
	}
	if len(cfg.Cache.Addrs) != 2 {
		t.Errorf("Cache.Addrs = %v, want two entries", cfg.Cache.Addrs)
	}
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	os.Clearenv()
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without JWT_SECRET in production")
	}
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d, want default 25", cfg.Database.MaxOpenConns)
	}
}

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}
	return path
}

func TestLoadModulePolicies(t *testing.T) {
	path := writePolicyFile(t, `
modules:
  records:
    authRequired: true
    rateLimit: 100/hour
    methods:
      list:
        public: true
        rateLimit: 10/minute
      delete:
        roles: [admin]
`)

	policies, err := LoadModulePolicies(path)
	if err != nil {
		t.Fatalf("LoadModulePolicies: %v", err)
	}

	mod, ok := policies["records"]
	if !ok {
		t.Fatal("records policy missing")
	}
	if mod.AuthRequired == nil || !*mod.AuthRequired {
		t.Error("authRequired not parsed")
	}
	if mod.Limit == nil || mod.Limit.Count != 100 || mod.Limit.Window != time.Hour {
		t.Errorf("module limit = %+v, want 100/hour", mod.Limit)
	}
	list := mod.Methods["list"]
	if list.Public == nil || !*list.Public {
		t.Error("list.public not parsed")
	}
	if list.Limit == nil || list.Limit.Count != 10 || list.Limit.Window != time.Minute {
		t.Errorf("list limit = %+v, want 10/minute", list.Limit)
	}
	if got := policies["records"].Methods["delete"].Roles; len(got) != 1 || got[0] != "admin" {
		t.Errorf("delete roles = %v, want [admin]", got)
	}
}

func TestLoadModulePoliciesBadRateLimit(t *testing.T) {
	path := writePolicyFile(t, `
modules:
  records:
    rateLimit: lots/hour
`)

	if _, err := LoadModulePolicies(path); err == nil {
		t.Fatal("LoadModulePolicies accepted a malformed rate limit")
	}
}

func TestApplyOverridesManifest(t *testing.T) {
	authOn := true
	public := true
	policies := ModulePolicies{
		"records": {
			AuthRequired: &authOn,
			Roles:        []string{"editor"},
			Methods: map[string]MethodPolicy{
				"list": {Public: &public},
			},
		},
	}

	m := registry.Manifest{
		Name: "records",
		Defaults: registry.Policy{
			AuthRequired: false,
			Roles:        []string{"viewer"},
		},
	}

	out := policies.Apply(m)
	if !out.Defaults.AuthRequired {
		t.Error("AuthRequired override not applied")
	}
	if len(out.Defaults.Roles) != 1 || out.Defaults.Roles[0] != "editor" {
		t.Errorf("Roles = %v, want [editor]", out.Defaults.Roles)
	}
	if mc := out.Methods["list"]; mc.Public == nil || !*mc.Public {
		t.Error("method public override not applied")
	}

	// Unknown module is untouched.
	other := registry.Manifest{Name: "system"}
	if got := policies.Apply(other); got.Defaults.AuthRequired {
		t.Error("unrelated manifest modified")
	}
}
