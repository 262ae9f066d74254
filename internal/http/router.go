package httpx

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/livelog/internal/service/ingest"
	"github.com/splax/livelog/internal/service/session"
	"github.com/splax/livelog/internal/stream"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	hub      *stream.Hub
	ingest   *ingest.Service
	sessions *session.Service
	upgrader websocket.Upgrader
	limiter  RateLimiter
	opts     Options
	started  time.Time

	metricsOnce         sync.Once
	metricsInitialized  bool
	registry            *prometheus.Registry
	requestTotal        *prometheus.CounterVec
	requestLatency      *prometheus.HistogramVec
	rateLimitHits       *prometheus.CounterVec
	errorsIngested      prometheus.Counter
	persistenceFailures prometheus.Counter
}

// Options tunes limits and health probes.
type Options struct {
	StreamRateLimit  int
	StreamRateWindow time.Duration
	IngestRateLimit  int
	IngestRateWindow time.Duration
	StorageName      string
	StorageHealth    func(context.Context) error
}

const (
	rateWindowDefault      = time.Minute
	rateLimitStreamDefault = 20
	rateLimitIngestDefault = 600
	rateLimitSession       = 60
	maxReportBytes         = 64 << 10
	recentDefaultLimit     = 50
	healthCheckTimeout     = 2 * time.Second

	streamRateLimitMessage = "Too many connection attempts. Please wait."
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, hub *stream.Hub, ingestSvc *ingest.Service, sessionSvc *session.Service, limiter RateLimiter, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StreamRateLimit == 0 {
		opts.StreamRateLimit = rateLimitStreamDefault
	}
	if opts.StreamRateWindow <= 0 {
		opts.StreamRateWindow = rateWindowDefault
	}
	if opts.IngestRateLimit == 0 {
		opts.IngestRateLimit = rateLimitIngestDefault
	}
	if opts.IngestRateWindow <= 0 {
		opts.IngestRateWindow = rateWindowDefault
	}
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		hub:      hub,
		ingest:   ingestSvc,
		sessions: sessionSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter: limiter,
		opts:    opts,
		started: time.Now(),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
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
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/api/health", r.audit("/api/health", r.handleHealthz))
	r.mux.HandleFunc("/api/status", r.audit("/api/status", r.handleStatus))
	r.mux.HandleFunc("/events", r.audit("/events", r.withStreamLimit(r.handleSSE)))
	r.mux.HandleFunc("/live", r.audit("/live", r.withStreamLimit(r.handleSSE)))
	r.mux.HandleFunc("/ws", r.audit("/ws", r.withStreamLimit(r.handleWS)))
	r.mux.HandleFunc("/api/error", r.audit("/api/error", r.withCORS(r.withRateLimit("/api/error", r.opts.IngestRateLimit, r.opts.IngestRateWindow, ingestKey, r.handleReport))))
	r.mux.HandleFunc("/archive", r.audit("/archive", r.handleArchive))
	r.mux.HandleFunc("/api/errors/recent", r.audit("/api/errors/recent", r.handleRecent))
	r.mux.HandleFunc("/api/sessions", r.audit("/api/sessions", r.withRateLimit("/api/sessions", rateLimitSession, rateWindowDefault, sessionKey, r.handleSessions)))
	r.mux.HandleFunc("/api/sessions/", r.audit("/api/sessions/{token}", r.withRateLimit("/api/sessions/{token}", rateLimitSession, rateWindowDefault, sessionKey, r.handleSessionSubroutes)))
	r.mux.Handle("/metrics", r.metricsHandler())
}

func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxReportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "report too large")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	in, err := ingest.ParseInput(body)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	receipt := r.ingest.Report(req.Context(), in, clientIP(req))
	r.recordIngest(receipt.PersistErr)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": receipt.Event.ID})
}

func (r *Router) handleArchive(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	archived, err := r.ingest.Archive(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, archived)
}

func (r *Router) handleRecent(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	limit := recentDefaultLimit
	if raw := strings.TrimSpace(req.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, r.ingest.Recent(limit))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := r.checkStorage(req.Context(), components)
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	storageStatus := r.checkStorage(req.Context(), components)
	stats := r.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"clients":        stats.Clients,
		"buffered":       stats.Buffered,
		"evicted":        stats.Evicted,
		"reaped":         stats.Reaped,
		"recent":         r.ingest.RecentCount(),
		"uptime_seconds": int64(time.Since(r.started).Seconds()),
		"storage":        storageStatus,
		"components":     components,
		"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) checkStorage(ctx context.Context, components map[string]any) string {
	if r.opts.StorageHealth == nil {
		return "ok"
	}
	name := r.opts.StorageName
	if name == "" {
		name = "storage"
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := r.opts.StorageHealth(ctx); err != nil {
		components[name] = map[string]any{
			"status": "down",
			"error":  err.Error(),
		}
		return "degraded"
	}
	components[name] = map[string]any{"status": "up"}
	return "ok"
}

// withCORS lets browser pages on other origins report errors.
func (r *Router) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		headers := w.Header()
		headers.Set("Access-Control-Allow-Origin", "*")
		headers.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		headers.Set("Access-Control-Allow-Headers", "Content-Type")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, req)
	}
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
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
		if scope := strings.TrimSpace(req.URL.Query().Get("session")); scope != "" {
			fields = append(fields, "session", scope)
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
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
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
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// supportsFlush looks through statusRecorder wrappers for a real flusher.
func supportsFlush(w http.ResponseWriter) bool {
	for {
		switch t := w.(type) {
		case *statusRecorder:
			w = t.ResponseWriter
		case http.Flusher:
			return true
		default:
			return false
		}
	}
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
		if !decision.allowed {
			retry := int(time.Until(decision.windowEnd).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			headers.Set("Retry-After", strconv.Itoa(retry))
		}
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
