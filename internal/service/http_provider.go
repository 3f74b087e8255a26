package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"money-exchange/internal/config"
	"money-exchange/internal/exchange"
	"money-exchange/internal/logger"
	"money-exchange/internal/models"
)

// maxBodyBytes caps how much of a feed response is read
const maxBodyBytes = 5 << 20

// RateProvider fetches a complete rate snapshot
type RateProvider interface {
	Name() string
	FetchRates(ctx context.Context) (*models.RateSnapshot, error)
}

// HTTPRateProvider reads the {"date": ..., "<base>": {...}} feed over HTTP
type HTTPRateProvider struct {
	configuration config.RatesFeed
	logger        *logger.Logger
	httpClient    *http.Client
	now           func() time.Time
}

// NewHTTPRateProvider creates a provider for the configured feed
func NewHTTPRateProvider(configuration config.RatesFeed, logger *logger.Logger) *HTTPRateProvider {
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRateProvider{
		configuration: configuration,
		logger:        logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Name returns the provider name
func (provider *HTTPRateProvider) Name() string {
	return provider.configuration.Name
}

// FetchRates issues one GET to the feed and decodes it. It never retries and
// never returns a partial snapshot.
func (provider *HTTPRateProvider) FetchRates(ctx context.Context) (*models.RateSnapshot, error) {
	feedURL := provider.configuration.URL
	if err := config.ValidateFeedURL(feedURL); err != nil {
		return nil, exchange.NewError(exchange.ErrorTypeConfiguration, err, "invalid feed endpoint")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, exchange.NewError(exchange.ErrorTypeConfiguration, err, "failed to create request")
	}
	request.Header.Set("Accept", "application/json")

	provider.logger.WithField("url", feedURL).Debug("Fetching rates")

	response, err := provider.httpClient.Do(request)
	if err != nil {
		return nil, exchange.NewError(exchange.ErrorTypeTransport, err, "failed to make request")
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, exchange.NewError(exchange.ErrorTypeTransport, nil, "feed returned status %d", response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes+1))
	if err != nil {
		return nil, exchange.NewError(exchange.ErrorTypeTransport, err, "failed to read response body")
	}
	if len(body) > maxBodyBytes {
		return nil, exchange.NewError(exchange.ErrorTypeDecode, nil, "response body exceeds %d bytes", maxBodyBytes)
	}

	return provider.parseResponse(body)
}

// parseResponse validates the feed schema strictly: "date" must be a string,
// the base key an object, and every entry in it a number. Unknown top-level
// keys are ignored.
func (provider *HTTPRateProvider) parseResponse(body []byte) (*models.RateSnapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, exchange.NewError(exchange.ErrorTypeDecode, nil, "response body is not valid JSON")
	}

	document := gjson.ParseBytes(body)
	if !document.IsObject() {
		return nil, exchange.NewError(exchange.ErrorTypeDecode, nil, "response body is not a JSON object")
	}

	base := exchange.NormalizeCode(provider.configuration.BaseCurrency)

	var date, ratesNode gjson.Result
	document.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "date":
			date = value
		case base:
			ratesNode = value
		}
		return true
	})

	if !date.Exists() || date.Type != gjson.String {
		return nil, exchange.NewError(exchange.ErrorTypeDecode, nil, `field "date" is missing or not a string`)
	}
	if !ratesNode.Exists() || !ratesNode.IsObject() {
		return nil, exchange.NewError(exchange.ErrorTypeDecode, nil, "field %q is missing or not an object", base)
	}

	rates := make(map[string]float64)
	var schemaErr error
	var dropped []string
	ratesNode.ForEach(func(key, value gjson.Result) bool {
		code := exchange.NormalizeCode(key.String())
		if value.Type != gjson.Number {
			schemaErr = exchange.NewError(exchange.ErrorTypeDecode, nil, "rate for %q is not a number", key.String())
			return false
		}
		rate := value.Float()
		if code == "" || !exchange.ValidRate(rate) {
			dropped = append(dropped, key.String())
			return true
		}
		rates[code] = rate
		return true
	})
	if schemaErr != nil {
		return nil, schemaErr
	}

	if len(dropped) > 0 {
		provider.logger.WithField("codes", strings.Join(dropped, ",")).Warn("Dropped non-positive rates from feed")
	}
	if len(rates) == 0 {
		return nil, exchange.NewError(exchange.ErrorTypeDecode, nil, "feed contains no usable rates")
	}
	if _, ok := rates[base]; !ok {
		rates[base] = 1.0
	}

	return models.NewRateSnapshot(base, date.String(), provider.Name(), provider.now(), rates), nil
}

