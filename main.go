package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"money-exchange/internal/api"
	"money-exchange/internal/config"
	"money-exchange/internal/logger"
	"money-exchange/internal/metrics"
	"money-exchange/internal/platform"
	"money-exchange/internal/ratelimit"
	"money-exchange/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)

	shutdownCtx, stop := platform.NewShutdownContext(context.Background())
	defer stop()

	ratesMetrics := metrics.NewRatesMetrics()
	ratesService := service.NewRatesService(cfg, logger, ratesMetrics)

	// The session starts with one fetch. A failure leaves the service
	// degraded until POST /api/v1/rates/refresh succeeds.
	initialCtx, cancelInitial := context.WithTimeout(shutdownCtx, cfg.Rates.Timeout)
	if _, err := ratesService.Refresh(initialCtx); err != nil {
		logger.Warnf("Initial rates fetch failed, starting degraded: %v", err)
	}
	cancelInitial()

	ratesService.StartAutoRefresh(shutdownCtx, cfg.Rates.RefreshInterval)

	rateLimiter := ratelimit.NewLimiter(cfg, logger)
	defer rateLimiter.Stop()

	handlers := api.NewHandlers(api.HandlerConfig{
		Logger:       logger,
		RatesService: ratesService,
		RateLimiter:  rateLimiter,
		Metrics:      ratesMetrics,

		TrustedProxies: cfg.TrustedProxies,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second + cfg.Rates.Timeout,
	}

	go func() {
		logger.Info("Starting money-exchange on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return
	}

	logger.Info("Server exited")
}
