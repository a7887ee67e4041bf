package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

const (
	// DefaultRequestBodyLimitBytes fits a 2 MiB base64 asset body plus its envelope.
	DefaultRequestBodyLimitBytes int64 = 3 << 20 // 3 MiB

	// DefaultRateLimitRequests is the default request budget per client IP and window.
	// Asset scanning sends one message per fetched script, so the budget is generous.
	DefaultRateLimitRequests = 600

	// DefaultRateLimitWindow is the default throttle window.
	DefaultRateLimitWindow = time.Minute
)

const (
	securityHeaderNoSniff = "nosniff"
	securityHeaderNoFrame = "DENY"
	securityHeaderCSP     = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
)

// extensionSchemes are the origins a browser extension calls the bridge from
var extensionSchemes = []string{"chrome-extension://", "moz-extension://", "safari-web-extension://"}

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

	l.mu.Lock()
	defer l.mu.Unlock()

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

// SecurityHeaders adds baseline hardening headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", securityHeaderNoSniff)
		h.Set("X-Frame-Options", securityHeaderNoFrame)
		h.Set("Content-Security-Policy", securityHeaderCSP)
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// BodySizeLimit caps request body size before handler processing.
func BodySizeLimit(limitBytes int64) func(http.Handler) http.Handler {
	if limitBytes <= 0 {
		limitBytes = DefaultRequestBodyLimitBytes
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitPerIP throttles requests by the connecting address. Forwarding
// headers are ignored because the bridge is never behind a proxy.
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
			if limiter.allow(remoteIP(r)) {
				next.ServeHTTP(w, r)
				return
			}
			retryAfter := max(int(limiter.window.Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}

// ExtensionOrigins rejects cross-origin requests from web pages. Requests
// without an Origin header (CLI, curl) and extension or loopback origins
// pass; allowed origins get CORS headers and preflights are answered here.
func ExtensionOrigins(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !allowedOrigin(origin) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Add("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowedOrigin(origin string) bool {
	for _, scheme := range extensionSchemes {
		if strings.HasPrefix(origin, scheme) {
			return true
		}
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	if host == origin {
		return false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	switch host {
	case "localhost", "127.0.0.1", "[::1]", "::1":
		return true
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLogger logs one line per request at V(1)
func RequestLogger(logger logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.V(1).Info("request", "method", r.Method, "path", r.URL.Path,
				"status", rec.status, "duration", time.Since(start).String())
		})
	}
}

func remoteIP(r *http.Request) string {
	remoteAddr := strings.TrimSpace(r.RemoteAddr)
	if remoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	return remoteAddr
}
