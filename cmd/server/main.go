package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"
	"time"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bookshelf/internal/flash"
	"bookshelf/internal/logger"
	"bookshelf/internal/response"
	"bookshelf/internal/server"
	"bookshelf/internal/storage/books"
	"bookshelf/internal/view"
)

func getEnvOrDefault(key, default_ string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}

	return default_
}

func getBoolEnv(key string) bool {
	if val := strings.ToLower(os.Getenv(key)); val == "yes" || val == "on" || val == "true" {
		return true
	}

	return false
}

func getFloatEnv(key string) float64 {
	val, err := strconv.ParseFloat(getEnvOrDefault(key, "0"), 64)
	if err != nil {
		slog.Error("Invalid number in " + key + ": " + err.Error())
		os.Exit(1)
	}

	return val
}

var (
	logLevel     = strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	logFormat    = getEnvOrDefault("LOG_FORMAT", logger.FormatText)
	storage      = strings.ToLower(getEnvOrDefault("STORAGE", "postgres"))
	dbConnStr    = os.Getenv("DATABASE_URL")
	bindAddr     = getEnvOrDefault("BIND_ADDR", ":8000")
	debugMode    = getBoolEnv("DEBUG_MODE")
	flashSecret  = os.Getenv("FLASH_SECRET")
	secureCookie = getBoolEnv("SECURE_COOKIES")
	staticDir    = os.Getenv("STATIC_DIR")
	trustProxy   = getBoolEnv("TRUST_PROXY")
)

func main() {
	_, thisFile, _, _ := runtime.Caller(0)

	var lvl slog.Level
	lvlErr := lvl.UnmarshalText([]byte(logLevel))
	if lvlErr != nil {
		lvl = slog.LevelDebug
	}

	err := logger.SetupSLog(os.Stderr, logFormat, lvl, path.Dir(path.Dir(path.Dir(thisFile))), middleware.RequestIDKey)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	if lvlErr != nil {
		slog.Error("Invalid log level specified in LOG_LEVEL, one of debug, info, warn or error expected")
		os.Exit(1)
	}

	notices, err := flash.New([]byte(flashSecret), flash.DefaultTTL, secureCookie)
	if err != nil {
		slog.Error("You need to specify FLASH_SECRET env var: " + err.Error())
		os.Exit(1)
	}

	views, err := view.New()
	if err != nil {
		slog.Error("Failed to load templates: " + err.Error())
		os.Exit(1)
	}

	var br books.Repository
	switch storage {
	case "postgres":
		br = openPostgres()
	case "memory":
		slog.Warn("Using in-memory storage, books are lost on restart")
		br = books.NewMemoryRepository()
	default:
		slog.Error("STORAGE must be postgres or memory")
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rr := &response.Responder{DebugMode: debugMode, Views: views}

	var limiter *server.WriteLimiter
	if rps := getFloatEnv("RATE_LIMIT_RPS"); rps > 0 {
		limiter = server.NewWriteLimiter(rps, int(getFloatEnv("RATE_LIMIT_BURST")), rr)
	}

	h := server.Router(server.Config{
		Books:        br,
		Notices:      notices,
		Responder:    rr,
		Metrics:      server.NewMetrics(reg),
		Gatherer:     reg,
		WriteLimiter: limiter,
		StaticDir:    staticDir,
		TrustProxy:   trustProxy,
	})

	srv := &http.Server{
		Addr:              bindAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("Application running on " + bindAddr)
	slog.Error("aborting: " + srv.ListenAndServe().Error())
	os.Exit(1)
}

func openPostgres() books.Repository {
	cfg, err := pgxpool.ParseConfig(dbConnStr)
	if err != nil {
		slog.Error("Failed to parse DATABASE_URL: " + err.Error())
		os.Exit(1)
	}

	cfg.ConnConfig.Tracer = logger.NewPGXTracer(slog.Default())

	pg, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to create postgres pool: " + err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = books.EnsureSchema(ctx, pg); err != nil {
		slog.Error("failed to prepare book table: " + err.Error())
		os.Exit(1)
	}

	return books.NewPGXRepository(pg, slog.Default())
}
