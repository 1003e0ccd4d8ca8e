package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"bookshelf/internal/response"
)

const methodOverrideKey = "_method"

var overridable = map[string]struct{}{
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// MethodOverride lets HTML forms, which can only POST, reach PUT and DELETE routes.
// The verb is taken from the _method query parameter, falling back to a form field.
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		method := r.URL.Query().Get(methodOverrideKey)
		if method == "" {
			// parsed here so the body is still readable after the method becomes DELETE
			if err := r.ParseForm(); err == nil {
				method = r.PostForm.Get(methodOverrideKey)
			}
		} else {
			_ = r.ParseForm()
		}

		method = strings.ToUpper(strings.TrimSpace(method))
		if _, ok := overridable[method]; ok {
			r.Method = method
		}

		next.ServeHTTP(w, r)
	})
}

var errRateLimited = errors.New("too many requests")

// WriteLimiter throttles state changing requests per client address. Reads pass through.
type WriteLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration
	lastGC   time.Time
	rr       *response.Responder
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewWriteLimiter(rps float64, burst int, rr *response.Responder) *WriteLimiter {
	if burst < 1 {
		burst = 1
	}

	return &WriteLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     5 * time.Minute,
		lastGC:   time.Now(),
		rr:       rr,
	}
}

func (wl *WriteLimiter) allow(key string, now time.Time) bool {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	if now.Sub(wl.lastGC) > wl.idle {
		for k, cl := range wl.limiters {
			if now.Sub(cl.lastSeen) > wl.idle {
				delete(wl.limiters, k)
			}
		}
		wl.lastGC = now
	}

	cl, ok := wl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(wl.limit, wl.burst)}
		wl.limiters[key] = cl
	}
	cl.lastSeen = now

	return cl.limiter.AllowN(now, 1)
}

func (wl *WriteLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}

		if !wl.allow(key, time.Now()) {
			wl.rr.RespondAndLogCustom(w, r.Context(), errRateLimited, slog.LevelWarn, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
