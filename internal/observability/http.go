package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const traceHeader = "X-Trace-ID"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tollgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tollgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds)
}

// requestScope is shared between the middleware and the handlers below
// it. Handlers annotate it through MarkEngine so the access log can say
// which warehouse served a query.
type requestScope struct {
	engine string
}

type scopeKey struct{}

// MarkEngine records the warehouse engine that served the current
// request. Outside an instrumented request it is a no-op, so engines
// reached through the MCP stdio transport can call it unconditionally.
func MarkEngine(ctx context.Context, engine string) {
	if scope, ok := ctx.Value(scopeKey{}).(*requestScope); ok {
		scope.engine = engine
	}
}

// TraceMiddleware propagates an incoming X-Trace-ID or mints one, and
// seeds the request scope the access log reads from.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = newTraceID()
		}
		ctx := ContextWithTraceID(r.Context(), traceID)
		ctx = context.WithValue(ctx, scopeKey{}, &requestScope{})
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestMiddleware observes the HTTP metrics and, when a logger is
// supplied, writes one access-log line per request. The line carries
// the trace ID and the warehouse engine when a handler marked one.
func RequestMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			status := strconv.Itoa(recorder.status)
			httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			httpRequestDurationSeconds.WithLabelValues(r.Method, r.URL.Path, status).Observe(elapsed.Seconds())

			if logger == nil {
				return
			}
			attrs := []any{
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", recorder.status),
				slog.String("duration", elapsed.String()),
				slog.Int("bytes", recorder.bytes),
			}
			if scope, ok := r.Context().Value(scopeKey{}).(*requestScope); ok && scope.engine != "" {
				attrs = append(attrs, slog.String("engine", scope.engine))
			}
			logger.InfoContext(r.Context(), "http_request", attrs...)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}

func newTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
