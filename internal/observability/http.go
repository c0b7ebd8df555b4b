package observability

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// maxTraceIDLength bounds caller-supplied trace IDs so a client cannot stuff
// arbitrary payloads into log lines through the trace header.
const maxTraceIDLength = 64

// TraceMiddleware attaches a trace ID to every request, reusing a sane
// incoming X-Trace-ID and minting a fresh UUID otherwise. The ID is echoed
// back on the response so callers can quote it when reporting a failed ask.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := strings.TrimSpace(r.Header.Get(traceHeader))
		if traceID == "" || len(traceID) > maxTraceIDLength {
			traceID = uuid.NewString()
		}
		ctx := ContextWithTraceID(r.Context(), traceID)
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware writes one line per request. Successful probe hits
// (health, ready, metrics scrapes) log at debug so steady-state polling does
// not drown the query traffic in the log stream.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tap := &responseTap{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(tap, r)

			level := slog.LevelInfo
			if isProbePath(r.URL.Path) && tap.status < http.StatusBadRequest {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "request completed",
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", tap.status),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0),
				slog.Int("response_bytes", tap.written),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// MetricsMiddleware records request counts and latencies. The path label is
// collapsed through metricRoute; per-table schema lookups would otherwise
// mint one label value for each of the rental schema's tables.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tap := &responseTap{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(tap, r)

		status := strconv.Itoa(tap.status)
		route := metricRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// metricRoute maps a request path onto a bounded route label.
func metricRoute(path string) string {
	if strings.HasPrefix(path, "/v1/schema/tables/") {
		return "/v1/schema/tables/{table}"
	}
	return path
}

func isProbePath(path string) bool {
	switch path {
	case "/v1/health", "/v1/ready", "/v1/metrics":
		return true
	default:
		return false
	}
}

// responseTap captures the status code and body size handlers write, since
// http.ResponseWriter offers no way to read them back.
type responseTap struct {
	http.ResponseWriter
	status  int
	written int
}

func (t *responseTap) WriteHeader(status int) {
	t.status = status
	t.ResponseWriter.WriteHeader(status)
}

func (t *responseTap) Write(body []byte) (int, error) {
	n, err := t.ResponseWriter.Write(body)
	t.written += n
	return n, err
}
