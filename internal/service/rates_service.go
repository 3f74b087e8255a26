package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"money-exchange/internal/config"
	"money-exchange/internal/exchange"
	"money-exchange/internal/logger"
	"money-exchange/internal/metrics"
	"money-exchange/internal/models"
)

const refreshKey = "rates"

// RatesService owns the session's rate snapshot. The snapshot is replaced
// wholesale on each successful refresh and left untouched on failure.
type RatesService struct {
	configuration *config.Config
	logger        *logger.Logger
	provider      RateProvider
	metrics       *metrics.RatesMetrics

	currencies   []string
	isSelectable map[string]struct{}

	snapshotMutex sync.RWMutex
	snapshot      *models.RateSnapshot
	lastAttempt   time.Time
	lastError     error

	singleFlightGroup singleflight.Group
}

// ProviderStatus describes the last refresh outcome
type ProviderStatus struct {
	Name        string    `json:"name"`
	Loaded      bool      `json:"loaded"`
	AsOf        string    `json:"as_of,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
	LastAttempt time.Time `json:"last_attempt"`
	RateCount   int       `json:"rate_count"`
	LastError   string    `json:"last_error,omitempty"`
}

// NewRatesService creates a service backed by the configured HTTP feed
func NewRatesService(configuration *config.Config, logger *logger.Logger, ratesMetrics *metrics.RatesMetrics) *RatesService {
	provider := NewHTTPRateProvider(configuration.Rates, logger)
	return NewRatesServiceWithProvider(configuration, provider, logger, ratesMetrics)
}

// NewRatesServiceWithProvider creates a service around any RateProvider
func NewRatesServiceWithProvider(configuration *config.Config, provider RateProvider, logger *logger.Logger, ratesMetrics *metrics.RatesMetrics) *RatesService {
	if ratesMetrics == nil {
		ratesMetrics = metrics.NewRatesMetrics()
	}

	currencies := make([]string, 0, len(configuration.Currencies))
	isSelectable := make(map[string]struct{}, len(configuration.Currencies))
	for _, code := range configuration.Currencies {
		code = exchange.NormalizeCode(code)
		if _, ok := isSelectable[code]; ok || code == "" {
			continue
		}
		isSelectable[code] = struct{}{}
		currencies = append(currencies, code)
	}

	return &RatesService{
		configuration: configuration,
		logger:        logger,
		provider:      provider,
		metrics:       ratesMetrics,
		currencies:    currencies,
		isSelectable:  isSelectable,
	}
}

// Refresh fetches a new snapshot. Concurrent callers share one in-flight
// fetch. The fetch is detached from any single caller's cancellation and is
// bounded by the provider's own timeout; a caller whose context ends first
// returns early while the shared fetch carries on for the others.
func (ratesService *RatesService) Refresh(requestContext context.Context) (*models.RateSnapshot, error) {
	resultChannel := ratesService.singleFlightGroup.DoChan(refreshKey, func() (interface{}, error) {
		return ratesService.fetch(context.WithoutCancel(requestContext))
	})

	select {
	case result := <-resultChannel:
		if result.Shared {
			ratesService.logger.Debug("Joined in-flight rates refresh")
		}
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*models.RateSnapshot), nil
	case <-requestContext.Done():
		return nil, exchange.NewError(exchange.ErrorTypeTransport, requestContext.Err(), "refresh abandoned by caller")
	}
}

func (ratesService *RatesService) fetch(requestContext context.Context) (*models.RateSnapshot, error) {
	providerName := ratesService.provider.Name()
	startTime := time.Now()

	snapshot, err := ratesService.provider.FetchRates(requestContext)

	ratesService.metrics.FetchDuration.WithLabelValues(providerName).Observe(time.Since(startTime).Seconds())

	ratesService.snapshotMutex.Lock()
	ratesService.lastAttempt = startTime
	if err != nil {
		ratesService.lastError = err
		ratesService.snapshotMutex.Unlock()

		ratesService.metrics.FetchTotal.WithLabelValues(providerName, resultLabel(err)).Inc()
		ratesService.logger.WithField("provider", providerName).Errorf("Failed to fetch rates: %v", err)
		return nil, err
	}
	ratesService.snapshot = snapshot
	ratesService.lastError = nil
	ratesService.snapshotMutex.Unlock()

	ratesService.metrics.FetchTotal.WithLabelValues(providerName, metrics.ResultSuccess).Inc()
	ratesService.metrics.SnapshotSize.Set(float64(snapshot.Len()))
	ratesService.metrics.SnapshotFetchedAt.Set(float64(snapshot.FetchedAt().Unix()))

	ratesService.logger.WithField("provider", providerName).
		WithField("as_of", snapshot.AsOf()).
		Infof("Loaded %d rates", snapshot.Len())

	for _, code := range ratesService.currencies {
		if _, ok := snapshot.Rate(code); !ok {
			ratesService.logger.Warnf("Selectable currency %q is missing from the feed", code)
		}
	}
	return snapshot, nil
}

// Snapshot returns the current snapshot, or nil when none has loaded
func (ratesService *RatesService) Snapshot() *models.RateSnapshot {
	ratesService.snapshotMutex.RLock()
	defer ratesService.snapshotMutex.RUnlock()
	return ratesService.snapshot
}

// Convert converts amount between two selectable currencies using the
// current snapshot. Without a snapshot every conversion fails with
// exchange.ErrUnknownCurrency.
func (ratesService *RatesService) Convert(amount float64, from, to string) (models.ConversionResult, error) {
	source := exchange.NormalizeCode(from)
	target := exchange.NormalizeCode(to)

	result, err := ratesService.convert(amount, source, target)
	if err != nil {
		ratesService.metrics.ConversionsTotal.WithLabelValues(resultLabel(err)).Inc()
		return models.ConversionResult{}, err
	}
	ratesService.metrics.ConversionsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return result, nil
}

func (ratesService *RatesService) convert(amount float64, source, target string) (models.ConversionResult, error) {
	for _, code := range []string{source, target} {
		if !ratesService.IsSelectable(code) {
			return models.ConversionResult{}, exchange.NewError(exchange.ErrorTypeUnknownCurrency, nil, "currency %q is not selectable", code)
		}
	}

	snapshot := ratesService.Snapshot()
	if snapshot == nil {
		return models.ConversionResult{}, exchange.NewError(exchange.ErrorTypeUnknownCurrency, nil, "no rates loaded")
	}

	rates := make(exchange.Rates, 2)
	for _, code := range []string{source, target} {
		if rate, ok := snapshot.Rate(code); ok {
			rates[code] = rate
		}
	}

	converted, err := exchange.Convert(amount, source, target, rates)
	if err != nil {
		return models.ConversionResult{}, err
	}

	return models.ConversionResult{
		From:      source,
		To:        target,
		Amount:    amount,
		Result:    converted,
		Formatted: exchange.FormatAmount(converted),
		AsOf:      snapshot.AsOf(),
	}, nil
}

// IsSelectable reports whether code is in the configured allow-list
func (ratesService *RatesService) IsSelectable(code string) bool {
	_, ok := ratesService.isSelectable[exchange.NormalizeCode(code)]
	return ok
}

// Currencies returns the allow-list in configured order
func (ratesService *RatesService) Currencies() []string {
	currencies := make([]string, len(ratesService.currencies))
	copy(currencies, ratesService.currencies)
	return currencies
}

// Base returns the feed's base currency
func (ratesService *RatesService) Base() string {
	return ratesService.configuration.Rates.BaseCurrency
}

// SelectableRates returns the current rates restricted to the allow-list
func (ratesService *RatesService) SelectableRates() (models.RatesResponse, bool) {
	snapshot := ratesService.Snapshot()
	if snapshot == nil {
		return models.RatesResponse{}, false
	}

	rates := make(map[string]float64, len(ratesService.currencies))
	for _, code := range ratesService.currencies {
		if rate, ok := snapshot.Rate(code); ok {
			rates[code] = rate
		}
	}
	return models.RatesResponse{
		Base:      snapshot.Base(),
		AsOf:      snapshot.AsOf(),
		FetchedAt: snapshot.FetchedAt(),
		Provider:  snapshot.Provider(),
		Rates:     rates,
	}, true
}

// Status returns the outcome of the most recent refresh
func (ratesService *RatesService) Status() ProviderStatus {
	ratesService.snapshotMutex.RLock()
	defer ratesService.snapshotMutex.RUnlock()

	status := ProviderStatus{
		Name:        ratesService.provider.Name(),
		Loaded:      ratesService.snapshot != nil,
		LastAttempt: ratesService.lastAttempt,
		RateCount:   ratesService.snapshot.Len(),
	}
	if ratesService.snapshot != nil {
		status.AsOf = ratesService.snapshot.AsOf()
		status.FetchedAt = ratesService.snapshot.FetchedAt()
	}
	if ratesService.lastError != nil {
		status.LastError = ratesService.lastError.Error()
	}
	return status
}

// StartAutoRefresh refreshes every interval until ctx is done. A zero
// interval disables it.
func (ratesService *RatesService) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// failures are logged and recorded by fetch
				_, _ = ratesService.Refresh(ctx)
			}
		}
	}()
}

func resultLabel(err error) string {
	if errorType, ok := exchange.TypeOf(err); ok {
		return errorType.String()
	}
	return "error"
}
