package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"homework-mentor/api/internal/config"
	"homework-mentor/api/internal/httpserver"
	"homework-mentor/api/internal/i18n"
	"homework-mentor/api/internal/logger"
	"homework-mentor/api/internal/solver"
	"homework-mentor/api/internal/telegram"
)

func main() {
	cfg := config.LoadBot()
	log := logger.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)
	for _, w := range cfg.Warnings {
		log.Warn("config", "problem", w)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("config invalid", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("telegram login failed", "err", err)
		os.Exit(1)
	}
	bot.Debug = false
	log.Info("telegram bot authorised", "username", bot.Self.UserName)

	client := solver.New(cfg.APIURL, solver.WithEngine(cfg.Engine), solver.WithLogger(log))
	sessions := telegram.NewSessions(bot, client, i18n.MustLoadCatalog(), cfg.Language, log)
	router := telegram.NewRouter(bot, sessions, log)
	defer router.Wait()

	mux := chi.NewRouter()
	mux.Get("/healthz", httpserver.Healthz(nil))
	addr := "0.0.0.0:" + cfg.Port

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(ctx, log, addr, mux, bot, router, webhookURL)
		return
	}
	startPollingMode(ctx, log, addr, mux, bot, router)
}

func startWebhookMode(ctx context.Context, log *slog.Logger, addr string, mux *chi.Mux, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string) {
	path := telegram.WebhookPath(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		log.Error("webhook config", "err", err)
		os.Exit(1)
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		log.Error("set webhook", "err", err)
		os.Exit(1)
	}

	mux.Post(path, func(w http.ResponseWriter, req *http.Request) {
		upd, err := bot.HandleUpdate(req)
		if err != nil {
			log.Warn("bad webhook update", "err", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		r.HandleUpdate(ctx, *upd)
	})

	log.Info("webhook listening", "addr", addr, "path", path)
	if err := httpserver.Serve(ctx, addr, mux); err != nil {
		log.Error("server stopped", "err", err)
	}
}

func startPollingMode(ctx context.Context, log *slog.Logger, addr string, mux *chi.Mux, bot *tgbotapi.BotAPI, r *telegram.Router) {
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Warn("delete webhook", "err", err)
	}
	go func() {
		log.Info("health server listening", "addr", addr)
		if err := httpserver.Serve(ctx, addr, mux); err != nil {
			log.Error("health server stopped", "err", err)
		}
	}()

	telegram.RunPolling(ctx, bot, log, func(upd tgbotapi.Update) {
		r.HandleUpdate(ctx, upd)
	})
}
