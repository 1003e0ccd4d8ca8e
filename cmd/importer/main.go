package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strings"
	"time"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"

	"bookshelf/internal/importer"
	"bookshelf/internal/logger"
	"bookshelf/internal/storage/books"
)

func getEnvOrDefault(key, default_ string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}

	return default_
}

var (
	feedUrl   = os.Getenv("FEED_URL")
	logLevel  = strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	logFormat = getEnvOrDefault("LOG_FORMAT", logger.FormatText)
	dbConnStr = os.Getenv("DATABASE_URL")
)

func main() {
	_, thisFile, _, _ := runtime.Caller(0)

	var lvl slog.Level
	invalidLvl := lvl.UnmarshalText([]byte(logLevel)) != nil

	err := logger.SetupSLog(os.Stderr, logFormat, lvl, path.Dir(path.Dir(path.Dir(thisFile))), nil)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	if invalidLvl {
		slog.Error("Invalid log level specified in LOG_LEVEL, one of debug, info, warn or error expected")
		os.Exit(1)
	}

	if feedUrl == "" {
		slog.Error("You need to specify FEED_URL env var")
		os.Exit(1)
	}

	feed, err := url.Parse(feedUrl)
	if err != nil {
		slog.Error("Invalid URL in FEED_URL: " + err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := pgxpool.ParseConfig(dbConnStr)
	if err != nil {
		slog.Error("Failed to parse DATABASE_URL: " + err.Error())
		os.Exit(1)
	}

	cfg.ConnConfig.Tracer = logger.NewPGXTracer(slog.Default())

	pg, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		slog.Error("failed to create postgres pool: " + err.Error())
		os.Exit(1)
	}
	defer pg.Close()

	if err = books.EnsureSchema(ctx, pg); err != nil {
		slog.Error("failed to prepare book table: " + err.Error())
		os.Exit(1)
	}

	im := importer.Importer{
		Client: &http.Client{Timeout: 30 * time.Second},
		Logger: slog.Default(),
		Books:  books.NewPGXRepository(pg, slog.Default()),
	}

	rep, err := im.Import(ctx, feed)
	if err != nil {
		slog.Error("Import failed: " + err.Error())
		os.Exit(1)
	}

	slog.Info("Import finished",
		slog.Int("pages", rep.Pages),
		slog.Int("added", rep.Added),
		slog.Int("rejected", rep.Rejected))
}
