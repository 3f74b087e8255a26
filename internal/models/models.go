package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// RateSnapshot is an immutable set of rates relative to Base, replaced
// wholesale on every successful fetch.
type RateSnapshot struct {
	base      string
	asOf      string
	provider  string
	fetchedAt time.Time

	rates map[string]float64
}

// NewRateSnapshot copies rates into a new snapshot
func NewRateSnapshot(base, asOf, provider string, fetchedAt time.Time, rates map[string]float64) *RateSnapshot {
	copied := make(map[string]float64, len(rates))
	for code, rate := range rates {
		copied[code] = rate
	}
	return &RateSnapshot{
		base:      base,
		asOf:      asOf,
		provider:  provider,
		fetchedAt: fetchedAt,
		rates:     copied,
	}
}

// Base returns the currency the rates are relative to
func (snapshot *RateSnapshot) Base() string {
	if snapshot == nil {
		return ""
	}
	return snapshot.base
}

// AsOf returns the feed's own date for the rates
func (snapshot *RateSnapshot) AsOf() string {
	if snapshot == nil {
		return ""
	}
	return snapshot.asOf
}

// Provider returns the name of the provider that produced the snapshot
func (snapshot *RateSnapshot) Provider() string {
	if snapshot == nil {
		return ""
	}
	return snapshot.provider
}

// FetchedAt returns when the snapshot was fetched
func (snapshot *RateSnapshot) FetchedAt() time.Time {
	if snapshot == nil {
		return time.Time{}
	}
	return snapshot.fetchedAt
}

// Rate returns the rate for a lowercase code
func (snapshot *RateSnapshot) Rate(code string) (float64, bool) {
	if snapshot == nil {
		return 0, false
	}
	rate, ok := snapshot.rates[code]
	return rate, ok
}

// Rates returns a copy of the rate mapping
func (snapshot *RateSnapshot) Rates() map[string]float64 {
	if snapshot == nil {
		return map[string]float64{}
	}
	copied := make(map[string]float64, len(snapshot.rates))
	for code, rate := range snapshot.rates {
		copied[code] = rate
	}
	return copied
}

// Len returns the number of currencies in the snapshot
func (snapshot *RateSnapshot) Len() int {
	if snapshot == nil {
		return 0
	}
	return len(snapshot.rates)
}

// Codes returns the currency codes in sorted order
func (snapshot *RateSnapshot) Codes() []string {
	if snapshot == nil {
		return nil
	}
	codes := make([]string, 0, len(snapshot.rates))
	for code := range snapshot.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Amount is the user's free-text amount. In JSON it may be a string or a
// number; a number keeps its literal text so both go through the same parser.
type Amount string

func (amount *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*amount = ""
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*amount = Amount(text)
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("amount must be a string or a number, got %s", trimmed)
	}
	*amount = Amount(number.String())
	return nil
}

type ConversionRequest struct {
	Amount Amount `json:"amount" form:"amount"`
	From   string `json:"from" form:"from"`
	To     string `json:"to" form:"to"`
}

type ConversionResult struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Result    float64 `json:"result"`
	Formatted string  `json:"formatted"`
	AsOf      string  `json:"as_of"`
}

type RatesResponse struct {
	Base      string             `json:"base"`
	AsOf      string             `json:"as_of"`
	FetchedAt time.Time          `json:"fetched_at"`
	Provider  string             `json:"provider"`
	Rates     map[string]float64 `json:"rates"`
}

type CurrenciesResponse struct {
	Base       string   `json:"base"`
	Currencies []string `json:"currencies"`
}

// ErrorResponse always carries Error "error", the opaque indicator the UI
// renders; Kind and Message differentiate the failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type HealthCheck struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	AsOf      string    `json:"as_of,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}
