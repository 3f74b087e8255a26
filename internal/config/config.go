package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultRatesURL serves {"date": "...", "usd": {"eur": 0.9, ...}}
const DefaultRatesURL = "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies/usd.json"

// RatesFeed describes the single remote rate feed
type RatesFeed struct {
	Name            string        `envconfig:"RATES_PROVIDER_NAME" default:"currency-api"`
	URL             string        `envconfig:"RATES_URL" default:"https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies/usd.json"`
	BaseCurrency    string        `envconfig:"RATES_BASE" default:"usd"`
	Timeout         time.Duration `envconfig:"RATES_TIMEOUT" default:"10s"`
	RefreshInterval time.Duration `envconfig:"RATES_REFRESH_INTERVAL" default:"0s"`
}

// Config holds all configuration for the application
type Config struct {
	Port            string        `envconfig:"PORT" default:"8081"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	Rates RatesFeed

	// Currencies is the selectable allow-list, lowercase
	Currencies []string `envconfig:"CURRENCIES" default:"rub,usd,eur"`

	// Rate limiting
	RateLimitEnabled  bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"100"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitBurst    int           `envconfig:"RATE_LIMIT_BURST" default:"10"`

	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers are
	// believed; empty trusts none and uses the connection address
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// Load reads an optional .env file, then the process environment
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() {
	cfg.Rates.BaseCurrency = strings.ToLower(strings.TrimSpace(cfg.Rates.BaseCurrency))

	currencies := make([]string, 0, len(cfg.Currencies))
	seen := make(map[string]struct{}, len(cfg.Currencies))
	for _, code := range cfg.Currencies {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		currencies = append(currencies, code)
	}
	cfg.Currencies = currencies

	proxies := make([]string, 0, len(cfg.TrustedProxies))
	for _, proxy := range cfg.TrustedProxies {
		if proxy = strings.TrimSpace(proxy); proxy != "" {
			proxies = append(proxies, proxy)
		}
	}
	cfg.TrustedProxies = proxies
}

// Validate checks values that envconfig cannot express as tags.
// The feed URL itself is checked on every fetch so a bad URL surfaces as a
// configuration error from the provider rather than a startup failure.
func (cfg *Config) Validate() error {
	var errs []error
	if len(cfg.Currencies) == 0 {
		errs = append(errs, errors.New("CURRENCIES must list at least one currency"))
	}
	if cfg.Rates.BaseCurrency == "" {
		errs = append(errs, errors.New("RATES_BASE must not be empty"))
	}
	if cfg.Rates.Timeout <= 0 {
		errs = append(errs, errors.New("RATES_TIMEOUT must be positive"))
	}
	if cfg.Rates.RefreshInterval < 0 {
		errs = append(errs, errors.New("RATES_REFRESH_INTERVAL must not be negative"))
	}
	if cfg.RateLimitEnabled && (cfg.RateLimitRequests <= 0 || cfg.RateLimitWindow <= 0 || cfg.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("rate limit requests, window and burst must be positive when enabled"))
	}
	for _, proxy := range cfg.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func validProxy(proxy string) bool {
	if strings.Contains(proxy, "/") {
		_, _, err := net.ParseCIDR(proxy)
		return err == nil
	}
	return net.ParseIP(proxy) != nil
}

// ValidateFeedURL reports whether raw is an absolute http(s) URL with a host
func ValidateFeedURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("rates URL is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("rates URL is malformed: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("rates URL scheme %q is not http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("rates URL has no host")
	}
	return nil
}
