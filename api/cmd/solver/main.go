package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"homework-mentor/api/internal/config"
	"homework-mentor/api/internal/handle"
	"homework-mentor/api/internal/httpserver"
	"homework-mentor/api/internal/llm"
	"homework-mentor/api/internal/llm/gemini"
	"homework-mentor/api/internal/llm/openai"
	"homework-mentor/api/internal/logger"
	"homework-mentor/api/internal/store"
)

func main() {
	cfg := config.LoadServer()
	log := logger.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)
	for _, w := range cfg.Warnings {
		log.Warn("config", "problem", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var engs []llm.Engine
	if cfg.OpenAIAPIKey != "" {
		engs = append(engs, openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel))
	} else {
		log.Warn("OPENAI_API_KEY not set")
	}
	if cfg.GeminiAPIKey != "" {
		engs = append(engs, gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel))
	}
	if len(engs) == 0 {
		// keep serving so /api/test can report the missing key
		engs = append(engs, openai.New("", cfg.OpenAIModel))
	}
	engines := llm.NewEngines(cfg.DefaultEngine, engs...)
	log.Info("engines ready", "available", strings.Join(engines.Names(), ","), "default", engines.Default().Name())

	opts := []handle.Option{handle.WithMaxUpload(cfg.MaxUploadBytes)}
	var db *sql.DB
	if cfg.DSN != "" {
		var err error
		db, err = openDB(ctx, cfg.DSN)
		if err != nil {
			log.Error("database unavailable, solution cache disabled", "dsn", config.SafeDSNSummary(cfg.DSN), "err", err)
			db = nil
		} else {
			defer db.Close()
			log.Info("db connected", "dsn", config.SafeDSNSummary(cfg.DSN))
			opts = append(opts, handle.WithCache(store.NewSolutionRepo(db), cfg.SolutionCacheTTL))
		}
	}

	h := handle.New(engines, opts...)
	srvOpts := httpserver.Options{
		CORSOrigins: cfg.CORSOrigins,
		LogLevel:    logger.ParseLevel(cfg.LogLevel),
		JSONLogs:    strings.EqualFold(cfg.LogFormat, "json"),
	}
	if db != nil {
		srvOpts.DB = db
	}
	router := httpserver.NewRouter(h, srvOpts)

	addr := ":" + cfg.Port
	log.Info("solving service listening", "addr", addr)
	if err := httpserver.Serve(ctx, addr, router); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.NewSolutionRepo(db).EnsureSchema(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
