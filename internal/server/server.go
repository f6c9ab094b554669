// Package server assembles the HTTP surface: module routes through the
// request pipeline, plus the operational endpoints that live outside it.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/modgate/modgate/internal/cache"
	"github.com/modgate/modgate/internal/config"
	"github.com/modgate/modgate/internal/logging"
	"github.com/modgate/modgate/internal/metrics"
	"github.com/modgate/modgate/internal/pipeline"
	"github.com/modgate/modgate/internal/ratelimit"
	"github.com/modgate/modgate/internal/registry"
	"github.com/modgate/modgate/internal/storage"
)

// Deps are the process-lifetime components the server serves.
type Deps struct {
	Config   *config.Config
	Log      *logging.Logger
	Registry *registry.Registry
	Data     *storage.DataAccess
	Cache    cache.Cache
	Metrics  *metrics.Metrics
	Limiter  *ratelimit.Table
	Pipeline *pipeline.Pipeline
	Version  string
}

// Server owns the listener and the maintenance scheduler.
type Server struct {
	deps    Deps
	log     *logging.Logger
	http    *http.Server
	cron    *cron.Cron
	started time.Time
}

// New builds the router and the maintenance schedule.
func New(deps Deps) *Server {
	s := &Server{
		deps:    deps,
		log:     deps.Log.Named("server"),
		cron:    cron.New(),
		started: time.Now(),
	}

	r := mux.NewRouter()
	r.Use(s.observe)
	deps.Pipeline.Mount(r)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/info", s.handleInfo).Methods(http.MethodGet)
	r.Handle("/api/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         deps.Config.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Periodic maintenance: expired limiter windows accumulate between
	// requests for a key; sweeping keeps the table bounded.
	s.cron.AddFunc("@every 1m", func() {
		if swept := deps.Limiter.Sweep(); swept > 0 {
			s.log.WithField("swept", swept).Debug("rate limiter windows swept")
		}
	})
	s.cron.AddFunc("@every 30s", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if !deps.Cache.Healthy(ctx) {
			s.log.Warn("cache health check failed")
		}
	})

	return s
}

// Start runs the listener until Shutdown is called.
func (s *Server) Start() error {
	s.cron.Start()
	s.log.WithField("addr", s.http.Addr).Info("listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the scheduler and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cron.Stop()
	return s.http.Shutdown(ctx)
}

// Handler exposes the router, used by the end-to-end tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// observe wraps every request with in-flight and latency metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.deps.Metrics.InFlight(1)
		defer s.deps.Metrics.InFlight(-1)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		s.deps.Metrics.HTTPRequest(r.Method, strconv.Itoa(sw.status), time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type healthStatus struct {
	Status   string            `json:"status"`
	Instance string            `json:"instance"`
	Uptime   string            `json:"uptime"`
	Checks   map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok", "cache": "ok"}
	status := http.StatusOK
	overall := "healthy"

	if !s.deps.Data.Healthy(ctx) {
		checks["store"] = "unreachable"
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	// Cache loss degrades, it does not fail.
	if !s.deps.Cache.Healthy(ctx) {
		checks["cache"] = "unreachable"
		if overall == "healthy" {
			overall = "degraded"
		}
	}

	writeJSON(w, status, healthStatus{
		Status:   overall,
		Instance: s.deps.Config.InstanceID,
		Uptime:   time.Since(s.started).String(),
		Checks:   checks,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	info := map[string]any{
		"version":           s.deps.Version,
		"instance":          s.deps.Config.InstanceID,
		"environment":       s.deps.Config.Environment,
		"uptime":            time.Since(s.started).String(),
		"supportedVersions": s.deps.Config.SupportedVersions,
		"modules":           s.deps.Registry.List(),
		"storage":           s.deps.Data.Stats(),
		"goroutines":        runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info["hostMemoryUsedPercent"] = vm.UsedPercent
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		info["hostUptimeSeconds"] = up
	}

	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
