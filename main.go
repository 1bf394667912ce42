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

	"learnadoodle/src-server/metric"
	"learnadoodle/src-server/route"
	"learnadoodle/src-server/scheduler"
	"learnadoodle/src-server/utils"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	config, err := utils.NewConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rawDB, err := utils.OpenDatabase(config.GetDatabasePath())
	if err != nil {
		slog.Error("cannot open sqlite database", "error", err)
		os.Exit(1)
	}

	// AppState owns the database, the cron and one calendar session per family
	as, err := utils.NewAppState(config, rawDB)
	if err != nil {
		slog.Error("can't initialize the app", "error", err)
		os.Exit(1)
	}
	as.CacheObserver = metric.NewCacheObserver(prometheus.DefaultRegisterer)

	go metric.Init(as)

	if err := scheduler.Start(as); err != nil {
		slog.Error("can't schedule background jobs", "error", err)
		os.Exit(1)
	}

	// http server
	muxer := http.NewServeMux()
	muxer.Handle("GET /metrics", promhttp.Handler())
	route.Family(muxer, as)
	route.Calendar(muxer, as)
	route.Ical(muxer, as)
	server := &http.Server{
		Addr:              ":" + as.Config.GetPort(),
		Handler:           muxer,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("cannot start HTTP server", "error", err)
			as.AppCloseSignalChan <- syscall.SIGTERM
		}
	}()

	slog.Info("app is now running, press Ctrl+C to exit", "port", as.Config.GetPort())

	signal.Notify(as.AppCloseSignalChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-as.AppCloseSignalChan
	slog.Info("Gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("HTTP server didn't stop cleanly", "error", err)
	}
	as.GracefulShutdown()
}
