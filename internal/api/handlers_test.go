package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"money-exchange/internal/metrics"
	"money-exchange/internal/models"
	"money-exchange/internal/ratelimit"
	"money-exchange/internal/service"
	"money-exchange/internal/testutils"
)

type testEnv struct {
	feed         *testutils.MockFeedServer
	ratesService *service.RatesService
	router       *gin.Engine
}

// newTestEnv wires handlers to a mock feed; load controls the initial refresh
func newTestEnv(t *testing.T, load bool) *testEnv {
	t.Helper()

	feed := testutils.NewMockFeedServer()
	t.Cleanup(feed.Close)

	logger := testutils.MockLogger()
	ratesMetrics := metrics.NewRatesMetrics()
	ratesService := service.NewRatesService(testutils.MockConfig(feed.URL()), logger, ratesMetrics)
	if load {
		_, err := ratesService.Refresh(context.Background())
		require.NoError(t, err)
	}

	handlers := NewHandlers(HandlerConfig{
		Logger:       logger,
		RatesService: ratesService,
		Metrics:      ratesMetrics,
	})
	router := handlers.SetupRoutes()
	gin.SetMode(gin.TestMode)

	return &testEnv{feed: feed, ratesService: ratesService, router: router}
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var request *http.Request
	if body != "" {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	} else {
		request = httptest.NewRequest(method, target, nil)
	}
	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var errorResponse models.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &errorResponse))
	assert.Equal(t, "error", errorResponse.Error)
	assert.Equal(t, recorder.Code, errorResponse.Code)
	return errorResponse
}

func TestNewHandlers(t *testing.T) {
	logger := testutils.MockLogger()
	handlers := NewHandlers(HandlerConfig{Logger: logger})

	require.NotNil(t, handlers)
	assert.Same(t, logger, handlers.logger)
	assert.Nil(t, handlers.ratesService)
}

func TestHandlers_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		load           bool
		expectedStatus string
	}{
		{"rates loaded", true, "healthy"},
		{"no rates yet", false, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.load)

			recorder := env.do(http.MethodGet, "/health", "")
			require.Equal(t, http.StatusOK, recorder.Code)

			var health models.HealthCheck
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
			assert.Equal(t, tt.expectedStatus, health.Status)
			assert.Equal(t, Version, health.Version)
			assert.NotEmpty(t, health.Uptime)
			if tt.load {
				assert.Equal(t, "2025-03-17", health.AsOf)
			}
		})
	}
}

func TestHandlers_HealthCheck_ReportsLastError(t *testing.T) {
	env := newTestEnv(t, true)
	env.feed.SetResponse(http.StatusInternalServerError, "boom")
	_, err := env.ratesService.Refresh(context.Background())
	require.Error(t, err)

	var health models.HealthCheck
	recorder := env.do(http.MethodGet, "/health", "")
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.LastError, "transport")
}

func TestHandlers_GetCurrencies(t *testing.T) {
	env := newTestEnv(t, false)

	recorder := env.do(http.MethodGet, "/api/v1/currencies", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var currencies models.CurrenciesResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &currencies))
	assert.Equal(t, "usd", currencies.Base)
	assert.Equal(t, []string{"rub", "usd", "eur"}, currencies.Currencies)
}

func TestHandlers_GetRates(t *testing.T) {
	t.Run("no snapshot", func(t *testing.T) {
		env := newTestEnv(t, false)

		recorder := env.do(http.MethodGet, "/api/v1/rates", "")
		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
		decodeError(t, recorder)
	})

	t.Run("restricted to selectable currencies", func(t *testing.T) {
		env := newTestEnv(t, true)

		recorder := env.do(http.MethodGet, "/api/v1/rates", "")
		require.Equal(t, http.StatusOK, recorder.Code)

		var rates models.RatesResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &rates))
		assert.Equal(t, "usd", rates.Base)
		assert.Equal(t, "2025-03-17", rates.AsOf)
		assert.Equal(t, "test-provider", rates.Provider)
		assert.Equal(t, testutils.MockRates(), rates.Rates)
		assert.NotContains(t, rates.Rates, "gbp")
	})
}

func TestHandlers_RefreshRates(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t, false)

		recorder := env.do(http.MethodPost, "/api/v1/rates/refresh", "")
		require.Equal(t, http.StatusOK, recorder.Code)
		assert.NotNil(t, env.ratesService.Snapshot())
	})

	t.Run("feed failure keeps previous snapshot", func(t *testing.T) {
		env := newTestEnv(t, true)
		previous := env.ratesService.Snapshot()
		env.feed.SetResponse(http.StatusServiceUnavailable, "down")

		recorder := env.do(http.MethodPost, "/api/v1/rates/refresh", "")
		assert.Equal(t, http.StatusBadGateway, recorder.Code)
		assert.Equal(t, "transport", decodeError(t, recorder).Kind)
		assert.Same(t, previous, env.ratesService.Snapshot())
	})

	t.Run("malformed feed", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.feed.SetResponse(http.StatusOK, "<html>")

		recorder := env.do(http.MethodPost, "/api/v1/rates/refresh", "")
		assert.Equal(t, http.StatusBadGateway, recorder.Code)
		assert.Equal(t, "decode", decodeError(t, recorder).Kind)
	})

	t.Run("bad feed URL", func(t *testing.T) {
		logger := testutils.MockLogger()
		ratesService := service.NewRatesService(testutils.MockConfig("not a url"), logger, nil)
		router := NewHandlers(HandlerConfig{Logger: logger, RatesService: ratesService}).SetupRoutes()

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/rates/refresh", nil))
		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
		assert.Equal(t, "configuration", decodeError(t, recorder).Kind)
	})
}

func TestHandlers_Convert(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		target         string
		body           string
		expectedStatus int
		expectedKind   string
		expected       string
	}{
		{"usd to eur", http.MethodGet, "/api/v1/convert?amount=100&from=usd&to=eur", "", http.StatusOK, "", "90.00"},
		{"eur to rub", http.MethodGet, "/api/v1/convert?amount=9&from=EUR&to=rub", "", http.StatusOK, "", "900.00"},
		{"identity", http.MethodGet, "/api/v1/convert?amount=12.345&from=rub&to=rub", "", http.StatusOK, "", "12.35"},
		{"decimal comma", http.MethodGet, "/api/v1/convert?amount=1,5&from=usd&to=rub", "", http.StatusOK, "", "135.00"},
		{"json body", http.MethodPost, "/api/v1/convert", `{"amount":"100","from":"usd","to":"eur"}`, http.StatusOK, "", "90.00"},
		{"empty amount", http.MethodGet, "/api/v1/convert?from=usd&to=eur", "", http.StatusBadRequest, "parse", ""},
		{"non-numeric amount", http.MethodGet, "/api/v1/convert?amount=abc&from=usd&to=eur", "", http.StatusBadRequest, "parse", ""},
		{"negative amount", http.MethodGet, "/api/v1/convert?amount=-1&from=usd&to=eur", "", http.StatusBadRequest, "parse", ""},
		{"malformed json", http.MethodPost, "/api/v1/convert", `{"amount":`, http.StatusBadRequest, "parse", ""},
		{"json numeric amount", http.MethodPost, "/api/v1/convert", `{"amount":100,"from":"usd","to":"eur"}`, http.StatusOK, "", "90.00"},
		{"json boolean amount", http.MethodPost, "/api/v1/convert", `{"amount":true,"from":"usd","to":"eur"}`, http.StatusBadRequest, "parse", ""},
		{"thousands comma", http.MethodGet, "/api/v1/convert?amount=1,000&from=usd&to=eur", "", http.StatusBadRequest, "parse", ""},
		{"hex float", http.MethodGet, "/api/v1/convert?amount=0x1p4&from=usd&to=eur", "", http.StatusBadRequest, "parse", ""},
		{"feed currency not selectable", http.MethodGet, "/api/v1/convert?amount=1&from=usd&to=gbp", "", http.StatusUnprocessableEntity, "unknown_currency", ""},
		{"unknown currency", http.MethodGet, "/api/v1/convert?amount=1&from=xyz&to=eur", "", http.StatusUnprocessableEntity, "unknown_currency", ""},
	}

	env := newTestEnv(t, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := env.do(tt.method, tt.target, tt.body)
			require.Equal(t, tt.expectedStatus, recorder.Code, recorder.Body.String())

			if tt.expectedKind != "" {
				errorResponse := decodeError(t, recorder)
				assert.Equal(t, tt.expectedKind, errorResponse.Kind)
				assert.NotEmpty(t, errorResponse.Message)
				return
			}

			var result models.ConversionResult
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
			assert.Equal(t, tt.expected, result.Formatted)
			assert.Equal(t, "2025-03-17", result.AsOf)
		})
	}
}

func TestHandlers_Convert_NoSnapshot(t *testing.T) {
	env := newTestEnv(t, false)

	recorder := env.do(http.MethodGet, "/api/v1/convert?amount=1&from=usd&to=eur", "")
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.Equal(t, "unknown_currency", decodeError(t, recorder).Kind)
}

func TestHandlers_WithoutRatesService(t *testing.T) {
	router := NewHandlers(HandlerConfig{Logger: testutils.MockLogger()}).SetupRoutes()

	for _, target := range []string{"/api/v1/currencies", "/api/v1/rates", "/api/v1/convert?amount=1&from=usd&to=eur"} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code, target)
	}
}

func TestHandlers_Metrics(t *testing.T) {
	env := newTestEnv(t, true)
	env.do(http.MethodGet, "/api/v1/convert?amount=1&from=usd&to=eur", "")

	recorder := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "rates_fetch_total")
	assert.Contains(t, recorder.Body.String(), `conversions_total{result="success"} 1`)
}

func TestHandlers_Middleware(t *testing.T) {
	env := newTestEnv(t, true)

	recorder := env.do(http.MethodGet, "/health", "")
	assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))

	preflight := env.do(http.MethodOptions, "/api/v1/convert", "")
	assert.Equal(t, http.StatusNoContent, preflight.Code)
}

func TestHandlers_RateLimitIgnoresUntrustedForwardedFor(t *testing.T) {
	cfg := testutils.MockConfig("http://feed.test/usd.json")
	cfg.RateLimitEnabled = true
	cfg.RateLimitBurst = 1
	cfg.RateLimitRequests = 1
	cfg.RateLimitWindow = time.Hour

	logger := testutils.MockLogger()
	rateLimiter := ratelimit.NewLimiter(cfg, logger)
	defer rateLimiter.Stop()
	router := NewHandlers(HandlerConfig{Logger: logger, RateLimiter: rateLimiter}).SetupRoutes()

	codes := make([]int, 0, 2)
	for _, forwardedFor := range []string{"203.0.113.1", "203.0.113.2"} {
		request := httptest.NewRequest(http.MethodGet, "/health", nil)
		request.RemoteAddr = "198.51.100.7:4000"
		request.Header.Set("X-Forwarded-For", forwardedFor)
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)
		codes = append(codes, recorder.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
