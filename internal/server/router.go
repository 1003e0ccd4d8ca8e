package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookshelf/internal/flash"
	"bookshelf/internal/response"
	"bookshelf/internal/storage/books"
)

type Config struct {
	Books     books.Repository
	Notices   *flash.Notices
	Responder *response.Responder

	// optional
	Metrics      *Metrics
	Gatherer     prometheus.Gatherer
	WriteLimiter *WriteLimiter
	StaticDir    string

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only set it behind a proxy that overwrites those headers, the write
	// limiter keys on that address.
	TrustProxy bool
}

// Router assembles the whole application: middleware, probes, metrics, static assets and pages.
func Router(c Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if c.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	if c.Metrics != nil {
		r.Use(c.Metrics.Middleware)
	}
	r.Use(MethodOverride)
	if c.WriteLimiter != nil {
		r.Use(c.WriteLimiter.Middleware)
	}

	Probes(r, c.Books)

	if c.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{}))
	}

	if c.StaticDir != "" {
		Static(r, c.StaticDir)
	}

	r.Mount("/", Handler(c.Books, c.Notices, c.Responder, c.Metrics))

	return r
}

func Probes(r chi.Router, br books.Repository) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := br.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store not ready"))
			return
		}

		_, _ = w.Write([]byte("ready"))
	})
}

// Static serves files below webDir under /public/
func Static(r chi.Router, webDir string) {
	fs := http.StripPrefix("/public", http.FileServer(http.Dir(strings.TrimSuffix(webDir, "/"))))

	r.Get("/public/*", func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	})
}
