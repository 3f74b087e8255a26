package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"money-exchange/internal/exchange"
	"money-exchange/internal/logger"
	"money-exchange/internal/metrics"
	"money-exchange/internal/middleware"
	"money-exchange/internal/models"
	"money-exchange/internal/ratelimit"
	"money-exchange/internal/service"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	logger       *logger.Logger
	startTime    time.Time
	ratesService *service.RatesService
	rateLimiter  *ratelimit.Limiter
	metrics      *metrics.RatesMetrics

	trustedProxies []string
}

// HandlerConfig holds dependencies for the handlers
type HandlerConfig struct {
	Logger       *logger.Logger
	RatesService *service.RatesService
	RateLimiter  *ratelimit.Limiter
	Metrics      *metrics.RatesMetrics

	// TrustedProxies may set X-Forwarded-For; nil trusts no one
	TrustedProxies []string
}

// NewHandlers creates a new handlers instance
func NewHandlers(handlerConfig HandlerConfig) *Handlers {
	return &Handlers{
		logger:       handlerConfig.Logger,
		startTime:    time.Now(),
		ratesService: handlerConfig.RatesService,
		rateLimiter:  handlerConfig.RateLimiter,
		metrics:      handlerConfig.Metrics,

		trustedProxies: handlerConfig.TrustedProxies,
	}
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	if err := router.SetTrustedProxies(handlers.trustedProxies); err != nil {
		handlers.logger.Errorf("Invalid trusted proxies, trusting none: %v", err)
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(middleware.Recovery(handlers.logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())

	if handlers.rateLimiter != nil {
		router.Use(handlers.rateLimiter.GinMiddleware())
	}

	router.GET("/health", handlers.HealthCheck)
	if handlers.metrics != nil {
		router.GET("/metrics", gin.WrapH(handlers.metrics.Handler()))
	}

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/currencies", handlers.GetCurrencies)
		apiV1.GET("/rates", handlers.GetRates)
		apiV1.POST("/rates/refresh", handlers.RefreshRates)
		apiV1.GET("/convert", handlers.Convert)
		apiV1.POST("/convert", handlers.Convert)
	}

	return router
}

// HealthCheck reports healthy once a snapshot has loaded
func (handlers *Handlers) HealthCheck(c *gin.Context) {
	healthCheckResponse := models.HealthCheck{
		Status:    "degraded",
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(handlers.startTime).String(),
	}

	if handlers.ratesService != nil {
		status := handlers.ratesService.Status()
		if status.Loaded {
			healthCheckResponse.Status = "healthy"
		}
		healthCheckResponse.AsOf = status.AsOf
		healthCheckResponse.LastError = status.LastError
	}

	c.JSON(http.StatusOK, healthCheckResponse)
}

// GetCurrencies returns the selectable currencies
func (handlers *Handlers) GetCurrencies(c *gin.Context) {
	if !handlers.requireRates(c) {
		return
	}

	c.JSON(http.StatusOK, models.CurrenciesResponse{
		Base:       handlers.ratesService.Base(),
		Currencies: handlers.ratesService.Currencies(),
	})
}

// GetRates returns the current snapshot restricted to the selectable currencies
func (handlers *Handlers) GetRates(c *gin.Context) {
	if !handlers.requireRates(c) {
		return
	}

	ratesResponse, loaded := handlers.ratesService.SelectableRates()
	if !loaded {
		handlers.writeErrorResponse(c, http.StatusServiceUnavailable, "unavailable", "rates have not been loaded")
		return
	}

	c.JSON(http.StatusOK, ratesResponse)
}

// RefreshRates fetches a new snapshot; the previous one is kept on failure
func (handlers *Handlers) RefreshRates(c *gin.Context) {
	if !handlers.requireRates(c) {
		return
	}

	if _, refreshError := handlers.ratesService.Refresh(c.Request.Context()); refreshError != nil {
		_ = c.Error(refreshError)
		statusCode := http.StatusBadGateway
		if errors.Is(refreshError, exchange.ErrConfiguration) {
			statusCode = http.StatusInternalServerError
		}
		handlers.writeErrorResponse(c, statusCode, errorKind(refreshError), refreshError.Error())
		return
	}

	ratesResponse, _ := handlers.ratesService.SelectableRates()
	c.JSON(http.StatusOK, ratesResponse)
}

// Convert handles GET with query parameters and POST with a JSON body
func (handlers *Handlers) Convert(c *gin.Context) {
	if !handlers.requireRates(c) {
		return
	}

	var conversionRequest models.ConversionRequest
	if bindError := c.ShouldBind(&conversionRequest); bindError != nil {
		handlers.writeErrorResponse(c, http.StatusBadRequest, exchange.ErrorTypeParse.String(), "malformed request: "+bindError.Error())
		return
	}

	amount, parseError := exchange.ParseAmount(string(conversionRequest.Amount))
	if parseError != nil {
		handlers.writeErrorResponse(c, http.StatusBadRequest, errorKind(parseError), parseError.Error())
		return
	}

	conversionResult, convertError := handlers.ratesService.Convert(amount, conversionRequest.From, conversionRequest.To)
	if convertError != nil {
		handlers.writeErrorResponse(c, statusFor(convertError), errorKind(convertError), convertError.Error())
		return
	}

	c.JSON(http.StatusOK, conversionResult)
}

func (handlers *Handlers) requireRates(c *gin.Context) bool {
	if handlers.ratesService == nil {
		handlers.writeErrorResponse(c, http.StatusServiceUnavailable, "unavailable", "rates service not configured")
		return false
	}
	return true
}

// writeErrorResponse writes the error body; Error is always the literal "error"
func (handlers *Handlers) writeErrorResponse(c *gin.Context, statusCode int, kind, message string) {
	c.AbortWithStatusJSON(statusCode, models.ErrorResponse{
		Error:   "error",
		Kind:    kind,
		Message: message,
		Code:    statusCode,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, exchange.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, exchange.ErrUnknownCurrency), errors.Is(err, exchange.ErrInvalidRate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, exchange.ErrTransport), errors.Is(err, exchange.ErrDecode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	if errorType, ok := exchange.TypeOf(err); ok {
		return errorType.String()
	}
	return "internal"
}
