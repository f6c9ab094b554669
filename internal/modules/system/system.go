// Package system is the built-in diagnostics module: ping, time, and
// process/host information. All methods are public.
package system

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/modgate/modgate/internal/execctx"
	"github.com/modgate/modgate/internal/registry"
	"github.com/modgate/modgate/internal/util"
)

// Module answers liveness and environment queries.
type Module struct {
	version string
	started time.Time
}

// New returns the system module. version is the build version string.
func New(version string) *Module {
	return &Module{version: version, started: time.Now()}
}

func (m *Module) Manifest() registry.Manifest {
	public := true
	return registry.Manifest{
		Name:        "system",
		Version:     registry.DefaultVersion,
		Description: "built-in diagnostics",
		Methods: map[string]registry.MethodConfig{
			"ping": {Public: &public},
			"time": {Public: &public},
			"info": {Public: &public},
		},
	}
}

func (m *Module) Methods() map[string]registry.Handler {
	return map[string]registry.Handler{
		"ping": m.ping,
		"time": m.now,
		"info": m.info,
	}
}

func (m *Module) ping(context.Context, *execctx.Request, *execctx.Context) (any, error) {
	return map[string]any{"pong": true}, nil
}

func (m *Module) now(context.Context, *execctx.Request, *execctx.Context) (any, error) {
	return map[string]any{"time": util.Timestamp()}, nil
}

func (m *Module) info(ctx context.Context, req *execctx.Request, _ *execctx.Context) (any, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	out := map[string]any{
		"version":    m.version,
		"instance":   req.InstanceID,
		"uptime":     time.Since(m.started).String(),
		"goroutines": runtime.NumGoroutine(),
		"heapBytes":  ms.HeapAlloc,
	}

	// Host statistics are best effort; a restricted environment only loses
	// this detail.
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out["hostMemoryUsedPercent"] = vm.UsedPercent
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		out["hostUptimeSeconds"] = up
	}
	return out, nil
}
