// Package pipeline runs inbound requests through the ordered gate chain:
// route extraction, existence, version support, rate limiting,
// authentication, authorization, input validation, and data extraction.
// The first failing gate halts the request with a typed response.
package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/modgate/modgate/internal/auth"
	"github.com/modgate/modgate/internal/errors"
	"github.com/modgate/modgate/internal/execctx"
	"github.com/modgate/modgate/internal/httputil"
	"github.com/modgate/modgate/internal/logging"
	"github.com/modgate/modgate/internal/metrics"
	"github.com/modgate/modgate/internal/ratelimit"
	"github.com/modgate/modgate/internal/registry"
)

// maxBodyBytes bounds the request body read by the input gates.
const maxBodyBytes = 1 << 20

// Config wires the pipeline's process-lifetime dependencies.
type Config struct {
	Registry          *registry.Registry
	Verifier          *auth.Verifier
	Limiter           *ratelimit.Table
	Builder           *execctx.Builder
	Tracker           *errors.Tracker
	Metrics           *metrics.Metrics
	Log               *logging.Logger
	SupportedVersions []string
	InstanceID        string
	Production        bool
}

// Pipeline is the request entry point for all module routes.
type Pipeline struct {
	registry  *registry.Registry
	verifier  *auth.Verifier
	limiter   *ratelimit.Table
	builder   *execctx.Builder
	tracker   *errors.Tracker
	metrics   *metrics.Metrics
	log       *logging.Logger
	supported map[string]struct{}
	versions  []string
	instance  string
	prod      bool
}

// New builds a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	supported := make(map[string]struct{}, len(cfg.SupportedVersions))
	for _, v := range cfg.SupportedVersions {
		supported[v] = struct{}{}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NewTable()
	}
	return &Pipeline{
		registry:  cfg.Registry,
		verifier:  cfg.Verifier,
		limiter:   limiter,
		builder:   cfg.Builder,
		tracker:   cfg.Tracker,
		metrics:   cfg.Metrics,
		log:       cfg.Log.Named("pipeline"),
		supported: supported,
		versions:  cfg.SupportedVersions,
		instance:  cfg.InstanceID,
		prod:      cfg.Production,
	}
}

// Mount registers the module routes on r. Partial paths get a 400, not the
// router's default 404, so a caller who forgot the method learns what the
// route shape is.
func (p *Pipeline) Mount(r *mux.Router) {
	r.HandleFunc("/api/{version}/{module}/{method}", p.Handle)
	r.HandleFunc("/api/{version}/{module}", p.handleIncomplete)
	r.HandleFunc("/api/{version}", p.handleIncomplete)
	r.HandleFunc("/api/{version}/", p.handleIncomplete)
	r.HandleFunc("/api/{version}/{module}/", p.handleIncomplete)
}

// Handle runs one request through the gate chain and dispatches the resolved
// module method.
func (p *Pipeline) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := httputil.NewRequestID(r)
	vars := mux.Vars(r)

	req := &execctx.Request{
		ID:         requestID,
		InstanceID: p.instance,
		Module:     vars["module"],
		Method:     vars["method"],
		Version:    vars["version"],
		Start:      start,
		Remote:     clientIP(r),
		HTTP:       r,
	}

	defer func() {
		if rec := recover(); rec != nil {
			p.log.WithRequest(requestID, req.Module, req.Method).
				WithField("panic", fmt.Sprint(rec)).
				Error("gate chain panic")
			err := errors.Internal("internal middleware error", fmt.Errorf("panic: %v", rec))
			err.Code = errors.CodeMiddlewareFailure
			p.fail(w, req, start, err)
		}
	}()

	handler, err := p.runGates(r, req)
	if err != nil {
		p.fail(w, req, start, err)
		return
	}

	ec := p.builder.Build(req)
	result, err := handler(r.Context(), req, ec)
	if err != nil {
		p.fail(w, req, start, err)
		return
	}

	p.metrics.Dispatch(req.Module, req.Method, "success", time.Since(start))
	httputil.WriteSuccess(w, http.StatusOK, result, requestID, req.Version, p.instance, start)
}

// handleIncomplete answers partial routes: the path shape is wrong, which is
// the caller's mistake, not a missing resource.
func (p *Pipeline) handleIncomplete(w http.ResponseWriter, r *http.Request) {
	requestID := httputil.NewRequestID(r)
	err := errors.Validation("incomplete route: expected /api/{version}/{module}/{method}")
	httputil.WriteError(w, err, requestID, p.prod)
}

// runGates executes gates 2 through 8 (route extraction happened in the
// router). On success the request carries its principal and extracted data.
func (p *Pipeline) runGates(r *http.Request, req *execctx.Request) (registry.Handler, error) {
	// Existence. An unknown route under an unsupported version falls through
	// to the version gate so the caller sees 400 instead of 404.
	handler, policy, err := p.registry.Resolve(req.Module, req.Method, req.Version)
	if err != nil {
		if !p.versionSupported(req.Version) {
			return nil, p.unsupportedVersion(req.Version)
		}
		return nil, err
	}

	// Version support.
	if !p.versionSupported(req.Version) {
		return nil, p.unsupportedVersion(req.Version)
	}

	// One up-front credential check feeds both the limiter key and the
	// authentication gate.
	principal, authErr := p.verifyCredential(r)

	// Rate limiting. Applies to public methods too.
	if policy.RateLimit != nil {
		key := req.Module + ":" + req.Method + ":" + req.Version + ":" + req.Remote
		if principal != nil {
			key += ":" + principal.ID
		}
		decision := p.limiter.Allow(key, *policy.RateLimit)
		if !decision.Allowed {
			retry := int(decision.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			return nil, errors.RateLimited(
				policy.RateLimit.Count, policy.RateLimit.Window.String(), retry)
		}
	}

	// Authentication.
	if policy.Public || !policy.AuthRequired {
		// Best effort: a valid credential still identifies the caller.
		if principal != nil {
			req.Principal = principal
		}
	} else {
		if !hasCredential(r) {
			return nil, errors.MissingToken()
		}
		if authErr != nil {
			return nil, authErr
		}
		req.Principal = principal
	}

	// Authorization. Roles can be configured even when authRequired is off,
	// so this gate demands a principal of its own accord.
	if !policy.Public && len(policy.Roles) > 0 {
		if req.Principal == nil {
			return nil, errors.AuthRequired()
		}
		if !req.Principal.HasAnyRole(policy.Roles...) {
			return nil, errors.Forbidden("insufficient role").
				WithDetails("requiredRoles", policy.Roles).
				WithDetails("userRoles", req.Principal.Roles)
		}
	}
	if !policy.Public && len(policy.Permissions) > 0 && req.Principal != nil {
		for _, perm := range policy.Permissions {
			if !req.Principal.HasPermission(perm) {
				return nil, errors.Forbidden("missing permission: " + perm)
			}
		}
	}

	// Input validation and data extraction.
	if err := p.extractData(r, req); err != nil {
		return nil, err
	}

	return handler, nil
}

func (p *Pipeline) versionSupported(v string) bool {
	_, ok := p.supported[v]
	return ok
}

func (p *Pipeline) unsupportedVersion(v string) error {
	return errors.Validation(fmt.Sprintf("unsupported API version %q; supported versions: %s",
		v, strings.Join(p.versions, ", "))).
		WithDetails("supportedVersions", p.versions)
}

// verifyCredential decodes the bearer credential if one is present. The
// error, if any, is surfaced only when the authentication gate requires it.
func (p *Pipeline) verifyCredential(r *http.Request) (*auth.Principal, error) {
	if p.verifier == nil {
		return nil, nil
	}
	token := auth.ExtractBearer(r.Header.Get("Authorization"))
	if token == "" {
		return nil, nil
	}
	return p.verifier.VerifyToken(token)
}

func hasCredential(r *http.Request) bool {
	return auth.ExtractBearer(r.Header.Get("Authorization")) != ""
}

// extractData fills req.Data from query parameters for read/delete verbs and
// from the JSON body for write verbs.
func (p *Pipeline) extractData(r *http.Request, req *execctx.Request) error {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		ct := r.Header.Get("Content-Type")
		if ct != "" {
			media, _, err := mime.ParseMediaType(ct)
			if err != nil || media != "application/json" {
				return errors.Validation("content type must be application/json")
			}
		}
		body, err := readBody(r)
		if err != nil {
			return errors.Validation("failed to read request body")
		}
		if len(body) == 0 {
			return errors.Validation("request body is required")
		}
		data := make(map[string]any)
		if err := json.Unmarshal(body, &data); err != nil {
			return errors.Validation("request body must be a JSON object")
		}
		req.RawBody = body
		req.Data = data
	default:
		data := make(map[string]any)
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				data[key] = values[0]
			}
		}
		req.Data = data
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// fail classifies err, records it in the frequency tracker, and writes the
// typed error response.
func (p *Pipeline) fail(w http.ResponseWriter, req *execctx.Request, start time.Time, err error) {
	record := errors.Classify(err)
	log := p.log.WithRequest(req.ID, req.Module, req.Method).
		WithFields(map[string]any{
			"kind":     string(record.Kind),
			"category": string(record.Category),
			"severity": string(record.Severity),
			"status":   record.HTTPStatus,
		})

	if record.Operational {
		log.WithError(err).Info("request rejected")
	} else {
		log.WithError(err).Error("request failed")
	}
	if record.Severity == errors.SeverityCritical {
		log.WithError(err).Error("critical failure escalation")
	}

	switch p.tracker.Record(record.Kind, req.Module, req.Method) {
	case errors.EscalationWarning:
		log.WithField("count", p.tracker.Count(record.Kind, req.Module, req.Method)).
			Warn("error frequency warning threshold crossed")
	case errors.EscalationCritical:
		log.WithField("count", p.tracker.Count(record.Kind, req.Module, req.Method)).
			Error("error frequency critical threshold crossed")
	}

	p.metrics.Dispatch(req.Module, req.Method, "error", time.Since(start))
	httputil.WriteError(w, err, req.ID, p.prod)
}

// clientIP resolves the caller's network origin, honoring proxy headers.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
