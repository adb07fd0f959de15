package apihttp

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"kinobot/internal/metrics"
)

// responseRecorder captures what the wrapped handler wrote.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *responseRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *responseRecorder) Write(p []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(p)
	rec.written += n
	return n, err
}

// loggingMiddleware emits one line per request. Query text is never logged
// here; the search handler logs its normalized form instead.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		rec := newResponseRecorder(w)
		next.ServeHTTP(rec, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", normalizeRoute(r.URL.Path)),
			slog.Int("status", rec.status),
			slog.Int("bytes", rec.written),
			slog.Duration("elapsed", time.Since(began)),
			slog.String("client", clientIP(r)),
		}
		if owner := r.URL.Query().Get("owner"); owner != "" {
			attrs = append(attrs, slog.String("owner", owner))
		}
		logger.LogAttrs(r.Context(), requestLogLevel(r.URL.Path, rec.status), "http request", attrs...)
	})
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			logger.Error("handler panic",
				slog.Any("panic", recovered),
				slog.String("route", normalizeRoute(r.URL.Path)),
				slog.String("stack", string(debug.Stack())),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isInfraPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		began := time.Now()
		rec := newResponseRecorder(w)
		next.ServeHTTP(rec, r)

		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
	})
}

const maxTrackedClients = 4096

// clientLimiters hands out one token bucket per client address. The set is
// bounded; the least recently seen client loses its bucket first.
type clientLimiters struct {
	limit   rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

func newClientLimiters(rps float64, burst int, size int) *clientLimiters {
	if size <= 0 {
		size = maxTrackedClients
	}
	buckets, _ := lru.New[string, *rate.Limiter](size)
	return &clientLimiters{limit: rate.Limit(rps), burst: burst, buckets: buckets}
}

func (c *clientLimiters) allow(client string) bool {
	limiter, ok := c.buckets.Get(client)
	if !ok {
		limiter = rate.NewLimiter(c.limit, c.burst)
		if prev, loaded, _ := c.buckets.PeekOrAdd(client, limiter); loaded {
			limiter = prev
		}
	}
	return limiter.Allow()
}

// rateLimitMiddleware throttles each client separately; over-limit requests
// get 429 with Retry-After.
func rateLimitMiddleware(rps float64, burst int, next http.Handler) http.Handler {
	limiters := newClientLimiters(rps, burst, maxTrackedClients)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isInfraPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !limiters.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isInfraPath(path string) bool {
	return path == "/health" || path == "/metrics"
}

func normalizeRoute(path string) string {
	switch path {
	case "/health", "/metrics", "/search", "/search/page", "/search/select", "/catalog/stats":
		return path
	default:
		return "/other"
	}
}

func requestLogLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case isInfraPath(path):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

// clip shortens s to at most n bytes for log attributes.
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
