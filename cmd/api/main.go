package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-compass-go/internal/app"
	"call-compass-go/internal/config"
	"call-compass-go/internal/httpapi"
	"call-compass-go/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().WithError(err).Fatal("invalid configuration")
	}
	logger.Configure(cfg.Environment, cfg.LogLevel)

	log := logger.New()
	log.WithField("service", "call-compass").Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build client core")
	}
	defer a.Close()

	if err := a.WatchRules(ctx); err != nil {
		log.WithError(err).Warn("alert rules will not hot-reload")
	}

	// initial load; the backend may still be starting, so failure is not fatal
	if _, err := a.Processor.LoadCalls(ctx, a.State.DataSource()); err != nil {
		log.WithError(err).Warn("initial call load failed")
	}

	s, hub := a.Server()
	defer hub.Close()
	srv := httpapi.NewHTTPServer(cfg.ListenAddr, s.Handler())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", cfg.ListenAddr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server terminated")
	}
	log.Info("server stopped")
}
