package server

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/auth"
	"stockwatch/internal/license"
)

// GzipResponseWriter wraps http.ResponseWriter to support gzip compression.
type GzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w GzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// GzipMiddleware compresses responses when client supports gzip. The
// websocket endpoint is never wrapped since it must hijack the connection.
func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Range") != "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		gzw := GzipResponseWriter{Writer: gz, ResponseWriter: w}
		next.ServeHTTP(gzw, r)
	})
}

// LoggingMiddleware logs request method, path, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		csp := "default-src 'self'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; " +
			"form-action 'self'; " +
			"connect-src 'self'"
		w.Header().Set("Content-Security-Policy", csp)
		w.Header().Set("Referrer-Policy", "no-referrer")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, code int, msg, errCode string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": errCode})
}

// LicenseMiddleware resolves the Pro gate once per request and stores it in
// the request context.
func LicenseMiddleware(m *license.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f := m.Resolve(r.Context())
			next.ServeHTTP(w, r.WithContext(license.WithFeatures(r.Context(), f)))
		})
	}
}

// Features returns the gate resolved by LicenseMiddleware, closed if absent.
func Features(r *http.Request) license.Features {
	if f, ok := license.FromContext(r.Context()); ok {
		return f
	}
	return license.Free
}

// RequireSession authenticates the session cookie or a Bearer session token
// and stores the user in the request context.
func RequireSession(m *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			} else if c, err := r.Cookie(SessionCookie); err == nil {
				token = c.Value
			}
			u, err := m.Lookup(r.Context(), token)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequirePermission rejects users whose role may not perform action.
func RequirePermission(action string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.Can(Role(r.Context()), action) {
			writeJSONError(w, http.StatusForbidden, "Permission denied", "FORBIDDEN")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ActionFor maps an admin request to the permission it needs: reads need
// view, settings and license changes need admin, everything else manage.
func ActionFor(r *http.Request) string {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return auth.PermView
	}
	p := r.URL.Path
	for _, prefix := range []string{"/api/v1/admin/settings", "/api/v1/admin/templates", "/api/v1/admin/license", "/api/v1/admin/users"} {
		if strings.HasPrefix(p, prefix) {
			return auth.PermAdmin
		}
	}
	return auth.PermManage
}

// RequireRBAC applies RequirePermission with ActionFor.
func RequireRBAC(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RequirePermission(ActionFor(r), next).ServeHTTP(w, r)
	})
}

// RateLimiter tracks request rates per key.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	now      func() time.Time
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Reset clears all rate limit state (for testing).
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	rl.requests = make(map[string][]time.Time)
	rl.mu.Unlock()
}

func (rl *RateLimiter) cleanupOldRequests(key string, window time.Duration) {
	cutoff := rl.now().Add(-window)

	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) > 0 {
		rl.requests[key] = valid
	} else {
		delete(rl.requests, key)
	}
}

// CheckRateLimit records a hit for key and reports whether the limit was
// exceeded, the remaining allowance and when the window resets.
func (rl *RateLimiter) CheckRateLimit(key string, limit int, window time.Duration) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanupOldRequests(key, window)

	requests := rl.requests[key]
	resetTime := now.Add(window)
	if len(requests) > 0 {
		resetTime = requests[0].Add(window)
	}
	if len(requests) >= limit {
		return true, 0, resetTime
	}
	rl.requests[key] = append(requests, now)
	return false, limit - len(requests) - 1, resetTime
}

// rateLimitFor returns the bucket for a path. Storefront signups and the
// unauthenticated supplier pages get tight limits.
func rateLimitFor(path string) (string, int, time.Duration) {
	switch {
	case path == "/api/v1/auth/login":
		return "login", 5, time.Minute
	case path == "/api/v1/waitlist":
		return "signup", 20, time.Minute
	case strings.HasPrefix(path, "/supplier/"):
		return "supplier", 30, time.Minute
	case strings.HasPrefix(path, "/api/"):
		return "api", 300, time.Minute
	}
	return "", 0, 0
}

// RateLimitMiddleware implements rate limiting per IP address.
func RateLimitMiddleware(rl *RateLimiter, clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket, limit, window := rateLimitFor(r.URL.Path)
			if bucket == "" {
				next.ServeHTTP(w, r)
				return
			}

			exceeded, remaining, resetTime := rl.CheckRateLimit(bucket+":"+clientIP(r), limit, window)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

			if exceeded {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(resetTime).Seconds())+1))
				writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded", "RATE_LIMIT_EXCEEDED")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
