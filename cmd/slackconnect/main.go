package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"slackconnect/internal/api"
	"slackconnect/internal/cache"
	"slackconnect/internal/client"
	"slackconnect/internal/config"
	"slackconnect/internal/repo"
	"slackconnect/internal/scheduler"
	"slackconnect/internal/service"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadAll()
	if err != nil {
		return err
	}

	db, err := repo.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Bootstrap(ctx); err != nil {
		return err
	}

	slackc := client.NewSlackClient(cfg.Slack.APIBase, cfg.Slack.ClientID, cfg.Slack.ClientSecret)
	messages := repo.NewSQLMessageRepo(db)
	tokens := repo.NewSQLTokenRepo(db)
	resolver := service.NewTokenResolver(tokens, slackc)

	dispatcher := service.NewDispatcher(messages, resolver, slackc, cfg.Scheduler.Concurrency)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		dispatcher.WithReceipts(cache.NewRedisCache(rdb, cfg.Redis.TTL))
	}

	sched, err := scheduler.New(cfg.Scheduler.Interval, dispatcher.Tick)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(sched, slackc, tokens, messages, resolver, api.SlackAuthConfig{
		ClientID:     cfg.Slack.ClientID,
		RedirectURI:  cfg.Slack.RedirectURI,
		AuthorizeURL: cfg.Slack.AuthorizeURL,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler)),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.Address, "interval", cfg.Scheduler.Interval.String(), "redis", cfg.Redis.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
