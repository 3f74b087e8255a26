package testutils

import (
	"io"
	"time"

	"money-exchange/internal/config"
	"money-exchange/internal/logger"
	"money-exchange/internal/models"
)

// MockLogger creates a logger that discards output
func MockLogger() *logger.Logger {
	return logger.NewWithOutput("debug", io.Discard)
}

// MockConfig creates a configuration pointing at feedURL
func MockConfig(feedURL string) *config.Config {
	return &config.Config{
		Port:            "0",
		LogLevel:        "error",
		ShutdownTimeout: 5 * time.Second,

		Rates: config.RatesFeed{
			Name:         "test-provider",
			URL:          feedURL,
			BaseCurrency: "usd",
			Timeout:      2 * time.Second,
		},
		Currencies: []string{"rub", "usd", "eur"},

		RateLimitEnabled:  false,
		RateLimitRequests: 100,
		RateLimitWindow:   60 * time.Second,
		RateLimitBurst:    10,
	}
}

// MockRates is the reference mapping used across tests
func MockRates() map[string]float64 {
	return map[string]float64{
		"usd": 1.0,
		"eur": 0.9,
		"rub": 90.0,
	}
}

// MockSnapshot wraps MockRates in a snapshot
func MockSnapshot() *models.RateSnapshot {
	return models.NewRateSnapshot("usd", "2025-03-17", "test-provider", time.Now(), MockRates())
}

// MockFeedBody is a well-formed feed document for MockRates
const MockFeedBody = `{
	"date": "2025-03-17",
	"usd": {
		"usd": 1,
		"eur": 0.9,
		"rub": 90,
		"gbp": 0.77
	}
}`
