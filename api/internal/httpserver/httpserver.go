package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"homework-mentor/api/internal/handle"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	ServiceName string
	CORSOrigins []string
	LogLevel    slog.Level
	JSONLogs    bool
	// DB is pinged by /healthz when set.
	DB Pinger
}

func NewRouter(h *handle.Handle, opts Options) *chi.Mux {
	if opts.ServiceName == "" {
		opts.ServiceName = "homework-solver"
	}
	router := chi.NewRouter()

	logger := httplog.NewLogger(opts.ServiceName, httplog.Options{
		LogLevel:         opts.LogLevel,
		JSON:             opts.JSONLogs,
		Concise:          true,
		MessageFieldName: "message",
	})
	router.Use(middleware.Recoverer)
	router.Use(httplog.RequestLogger(logger))

	router.Get("/healthz", Healthz(opts.DB))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", handle.EngineHeader, handle.RequestIDHeader},
			ExposedHeaders: []string{handle.RequestIDHeader},
			MaxAge:         300,
		}))
		r.Post("/homework", h.Homework)
		r.Get("/test", h.Test)
	})
	return router
}

// Healthz answers "ok", or 503 when db is set and does not answer a ping.
func Healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
