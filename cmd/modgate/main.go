// Command modgate runs the pluggable module gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modgate/modgate/internal/auth"
	"github.com/modgate/modgate/internal/cache"
	"github.com/modgate/modgate/internal/config"
	"github.com/modgate/modgate/internal/errors"
	"github.com/modgate/modgate/internal/execctx"
	"github.com/modgate/modgate/internal/logging"
	"github.com/modgate/modgate/internal/metrics"
	"github.com/modgate/modgate/internal/modules/records"
	"github.com/modgate/modgate/internal/modules/system"
	"github.com/modgate/modgate/internal/pipeline"
	"github.com/modgate/modgate/internal/ratelimit"
	"github.com/modgate/modgate/internal/registry"
	"github.com/modgate/modgate/internal/server"
	"github.com/modgate/modgate/internal/storage"
)

// version is set at build time.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault("modgate").WithError(err).Error("configuration invalid")
		os.Exit(1)
	}

	log := logging.New("modgate", logging.Config{
		Level:      cfg.Logging.Level,
		Production: cfg.Production(),
	})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	if cfg.Database.MigrationsDir != "" {
		if err := storage.Migrate(cfg.Database.MigrationsDir, cfg.Database.URL); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	db, err := storage.Open(storage.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Production:      cfg.Production(),
	})
	if err != nil {
		return err
	}
	defer db.Close()

	var c cache.Cache = cache.Noop{}
	if len(cfg.Cache.Addrs) > 0 {
		redisCache := cache.NewRedis(cache.Config{
			Addrs:     cfg.Cache.Addrs,
			Password:  cfg.Cache.Password,
			Namespace: cfg.Cache.Namespace,
		}, log)
		c = redisCache
		defer redisCache.Close()
	}

	m := metrics.New()
	data := storage.New(db, c, log,
		storage.WithRecorder(m),
		storage.WithProductionMode(cfg.Production()))

	reg := registry.New(log)
	if err := registerBuiltins(cfg, reg, log); err != nil {
		return err
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "modgate-dev-secret"
		log.Warn("JWT_SECRET not set, using development secret")
	}

	limiter := ratelimit.NewTable()
	p := pipeline.New(pipeline.Config{
		Registry:          reg,
		Verifier:          auth.NewVerifier([]byte(secret)),
		Limiter:           limiter,
		Builder:           execctx.NewBuilder(data, log),
		Tracker:           errors.NewTracker(cfg.Errors.WarnThreshold, cfg.Errors.CriticalThreshold),
		Metrics:           m,
		Log:               log,
		SupportedVersions: cfg.SupportedVersions,
		InstanceID:        cfg.InstanceID,
		Production:        cfg.Production(),
	})

	srv := server.New(server.Deps{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Data:     data,
		Cache:    c,
		Metrics:  m,
		Limiter:  limiter,
		Pipeline: p,
		Version:  version,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// registerBuiltins installs the core modules, applying operator policy
// overrides when a policy file is configured.
func registerBuiltins(cfg *config.Config, reg *registry.Registry, log *logging.Logger) error {
	var policies config.ModulePolicies
	if cfg.ModulesFile != "" {
		var err error
		policies, err = config.LoadModulePolicies(cfg.ModulesFile)
		if err != nil {
			return err
		}
		log.WithField("modules", len(policies)).Info("module policy overrides loaded")
	}

	builtins := []registry.Module{
		system.New(version),
		records.New(),
	}
	for _, mod := range builtins {
		m := mod
		if policies != nil {
			m = &policyModule{Module: mod, manifest: policies.Apply(mod.Manifest())}
		}
		if err := reg.Register(m, true); err != nil {
			return err
		}
	}
	return nil
}

// policyModule wraps a module with its manifest after policy overrides.
type policyModule struct {
	registry.Module
	manifest registry.Manifest
}

func (m *policyModule) Manifest() registry.Manifest { return m.manifest }
