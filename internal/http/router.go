// Package httpx exposes the deployment API over HTTP.
package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/service/deploy"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/service/logs"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/ws"
	jwtpkg "github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/jwt"
)

// DeployService is the deployment surface served by the router.
type DeployService interface {
	Submit(ctx context.Context, req deploy.DeployRequest) (*domain.Deployment, error)
	Get(ctx context.Context, id string) (*domain.Deployment, error)
	List(ctx context.Context, projectID string, limit int) ([]domain.Deployment, error)
	Stop(ctx context.Context, id string) (*domain.Deployment, error)
	Restart(ctx context.Context, id string) (*domain.Deployment, error)
	Remove(ctx context.Context, id string) (*domain.Deployment, error)
	Health(ctx context.Context, id string) (domain.Health, error)
	Logs(ctx context.Context, id string, tail int) ([]string, error)
	BuildLogs(ctx context.Context, id string, limit int) ([]domain.LogLine, error)
}

// Options configures a Router.
type Options struct {
	Logger    *slog.Logger
	Deploy    DeployService
	Hub       *ws.Hub
	Limiter   RateLimiter
	JWTSecret string
	// Checks are run by /healthz, keyed by component name.
	Checks     map[string]func(context.Context) error
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	deploy   DeployService
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	signer   *jwtpkg.Signer
	checks   map[string]func(context.Context) error

	gatherer prometheus.Gatherer
	metrics  *apiMetrics
}

const (
	healthCheckTimeout = 2 * time.Second
	maxDeployBody      = 32 << 20
	defaultListLimit   = 20
	maxListLimit       = 100
	wsReplayLines      = 100
)

// NewRouter assembles routes with dependencies.
func NewRouter(opts Options) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: opts.Logger,
		deploy: opts.Deploy,
		hub:    opts.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  opts.Limiter,
		signer:   jwtpkg.NewSigner(opts.JWTSecret),
		checks:   opts.Checks,
		gatherer: opts.Gatherer,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if r.gatherer == nil {
		r.gatherer = prometheus.DefaultGatherer
	}
	r.metrics = newAPIMetrics(registerer)
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("GET /metrics", r.metricsHandler())

	routes := []struct {
		pattern string
		name    string
		policy  ratePolicy
		handler http.HandlerFunc
	}{
		{"POST /deployments", "deployments.create", writePolicy, r.handleCreateDeployment},
		{"GET /deployments/{id}", "deployments.get", readPolicy, r.handleGetDeployment},
		{"DELETE /deployments/{id}", "deployments.remove", writePolicy, r.handleLifecycle(r.deploy.Remove)},
		{"POST /deployments/{id}/stop", "deployments.stop", writePolicy, r.handleLifecycle(r.deploy.Stop)},
		{"POST /deployments/{id}/restart", "deployments.restart", writePolicy, r.handleLifecycle(r.deploy.Restart)},
		{"GET /deployments/{id}/health", "deployments.health", readPolicy, r.handleHealth},
		{"GET /deployments/{id}/logs", "deployments.logs", readPolicy, r.handleLogs},
		{"GET /projects/{id}/deployments", "projects.deployments", readPolicy, r.handleListDeployments},
		{"GET /ws/deployments/{id}/logs", "deployments.logs.ws", streamPolicy, r.handleLogsWS},
	}
	for _, rt := range routes {
		r.mux.HandleFunc(rt.pattern, r.audit(rt.name, r.guarded(rt.policy, rt.handler)))
	}
}

func (r *Router) handleCreateDeployment(w http.ResponseWriter, req *http.Request) {
	var payload deploy.DeployRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxDeployBody))
	if err := decoder.Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	dep, err := r.deploy.Submit(req.Context(), payload)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dep)
}

func (r *Router) handleGetDeployment(w http.ResponseWriter, req *http.Request) {
	dep, err := r.deploy.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, dep)
}

func (r *Router) handleListDeployments(w http.ResponseWriter, req *http.Request) {
	limit := queryInt(req, "limit", defaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	deps, err := r.deploy.List(req.Context(), req.PathValue("id"), limit)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if deps == nil {
		deps = []domain.Deployment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deployments": deps})
}

func (r *Router) handleLifecycle(op func(context.Context, string) (*domain.Deployment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		dep, err := op(req.Context(), req.PathValue("id"))
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, dep)
	}
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	health, err := r.deploy.Health(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (r *Router) handleLogs(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	tail := queryInt(req, "tail", 0)
	switch source := req.URL.Query().Get("source"); source {
	case "", "build":
		entries, err := r.deploy.BuildLogs(req.Context(), id, tail)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		if entries == nil {
			entries = []domain.LogLine{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"deployment_id": id, "source": "build", "entries": entries})
	case "runtime":
		lines, err := r.deploy.Logs(req.Context(), id, tail)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		if lines == nil {
			lines = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"deployment_id": id, "source": "runtime", "lines": lines})
	default:
		writeError(w, http.StatusBadRequest, "source must be build or runtime")
	}
}

func (r *Router) handleLogsWS(w http.ResponseWriter, req *http.Request) {
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "log streaming unavailable")
		return
	}
	id := req.PathValue("id")
	backlog, err := r.deploy.BuildLogs(req.Context(), id, wsReplayLines)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	for _, line := range backlog {
		payload, err := logs.MarshalLine(line)
		if err != nil {
			continue
		}
		if err := client.Send(payload); err != nil {
			client.Close()
			return
		}
	}
	r.hub.Register(id, client)
	go func() {
		defer r.hub.Unregister(id, client)
		client.Listen()
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any, len(r.checks))
	status := "ok"
	for name, check := range r.checks {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = map[string]any{"status": "down", "error": err.Error()}
			continue
		}
		components[name] = map[string]any{"status": "up"}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// audit records metrics and one access log line per request.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		r.metrics.inFlight.Inc()
		next(recorder, req)
		r.metrics.inFlight.Dec()

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.metrics.observe(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if recorder.caller != "" {
			fields = append(fields, "user_id", recorder.caller)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	caller string
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func queryInt(req *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(req.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
