package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultRateLimitRequests is the default request budget per client IP and window.
	DefaultRateLimitRequests = 60

	// DefaultRateLimitWindow is the default throttle window.
	DefaultRateLimitWindow = time.Minute
)

const (
	securityHeaderNoSniff = "nosniff"
	securityHeaderNoFrame = "DENY"
	securityHeaderCSP     = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	cacheControlNoStore   = "no-store"
)

type ipWindow struct {
	start time.Time
	count int
}

type ipRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]ipWindow
}

func newIPRateLimiter(limit int, window time.Duration, now func() time.Time) *ipRateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitRequests
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if now == nil {
		now = time.Now
	}

	return &ipRateLimiter{
		limit:   limit,
		window:  window,
		now:     now,
		windows: make(map[string]ipWindow),
	}
}

func (l *ipRateLimiter) allow(clientIP string) bool {
	now := l.now()
	if clientIP == "" {
		clientIP = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop stale windows so the map stays bounded.
	for ip, w := range l.windows {
		if now.Sub(w.start) >= 2*l.window {
			delete(l.windows, ip)
		}
	}

	w := l.windows[clientIP]
	if w.start.IsZero() || now.Sub(w.start) >= l.window {
		l.windows[clientIP] = ipWindow{start: now, count: 1}
		return true
	}
	if w.count >= l.limit {
		return false
	}

	w.count++
	l.windows[clientIP] = w
	return true
}

// SecurityHeaders sets baseline hardening headers. Reports describe the
// state of a code base, so responses are never cached.
func SecurityHeaders(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", securityHeaderNoSniff)
		w.Header().Set("X-Frame-Options", securityHeaderNoFrame)
		w.Header().Set("Content-Security-Policy", securityHeaderCSP)
		w.Header().Set("Cache-Control", cacheControlNoStore)
		next.ServeHTTP(w, r)
	})
}

// ReadOnly rejects every method except GET and HEAD.
func ReadOnly(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitPerIP throttles requests by client IP.
func RateLimitPerIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return rateLimitPerIPWithClock(limit, window, time.Now)
}

func rateLimitPerIPWithClock(limit int, window time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	limiter := newIPRateLimiter(limit, window, now)

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.allow(clientIPFromRequest(r)) {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(limiter.window.Seconds())
			if retryAfter <= 0 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one debug line per request.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Str("client", clientIPFromRequest(r)).
				Msg("request")
		})
	}
}

func clientIPFromRequest(r *http.Request) string {
	if forwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}

	remoteAddr := strings.TrimSpace(r.RemoteAddr)
	if remoteAddr == "" {
		return "unknown"
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}
	return remoteAddr
}
