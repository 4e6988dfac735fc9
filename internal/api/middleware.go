// Package api implements the pathnote HTTP interface using chi.
package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/auth"
	"github.com/starford/pathnote/internal/metrics"
)

// Authenticator verifies admin bearer tokens.
type Authenticator interface {
	Authenticate(token string) (*auth.Claims, error)
}

// AuthMiddleware rejects requests without a valid
// "Authorization: Bearer <token>" header.
func AuthMiddleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody(apperr.ErrUnauthorized.Error()))
				return
			}
			if _, err := a.Authenticate(strings.TrimSpace(token)); err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody(apperr.ErrUnauthorized.Error()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per client IP with the given
// burst. Buckets idle for ten minutes are dropped.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// Allow reports whether a request from ip may proceed.
func (l *RateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Middleware answers 429 once a client exhausts its bucket.
func (l *RateLimiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientIP(r)) {
				metrics.RateLimited.WithLabelValues(route).Inc()
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, errorBody("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr, which middleware.RealIP has
// already rewritten when a proxy header is present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Instrument records request latency by chi route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveRequest(route, r.Method, status, time.Since(start))
	})
}

func limited(l *RateLimiter, route string) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Middleware(route)
}
