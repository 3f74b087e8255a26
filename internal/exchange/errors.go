package exchange

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures of the rate feed and of conversions
type ErrorType int

const (
	ErrorTypeConfiguration ErrorType = iota
	ErrorTypeTransport
	ErrorTypeDecode
	ErrorTypeUnknownCurrency
	ErrorTypeInvalidRate
	ErrorTypeParse
)

// Sentinels for errors.Is; every *Error unwraps to the one matching its Type.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrTransport       = errors.New("transport error")
	ErrDecode          = errors.New("decode error")
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrInvalidRate     = errors.New("invalid rate")
	ErrParse           = errors.New("parse error")
)

// String returns a stable kind name, used in API error bodies and metric labels
func (errorType ErrorType) String() string {
	switch errorType {
	case ErrorTypeConfiguration:
		return "configuration"
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeUnknownCurrency:
		return "unknown_currency"
	case ErrorTypeInvalidRate:
		return "invalid_rate"
	case ErrorTypeParse:
		return "parse"
	default:
		return "unknown"
	}
}

func (errorType ErrorType) sentinel() error {
	switch errorType {
	case ErrorTypeConfiguration:
		return ErrConfiguration
	case ErrorTypeTransport:
		return ErrTransport
	case ErrorTypeDecode:
		return ErrDecode
	case ErrorTypeUnknownCurrency:
		return ErrUnknownCurrency
	case ErrorTypeInvalidRate:
		return ErrInvalidRate
	default:
		return ErrParse
	}
}

// Error is a typed failure with an optional cause
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// NewError builds an *Error; message is formatted with args
func NewError(errorType ErrorType, cause error, message string, args ...any) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf(message, args...),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type.sentinel(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type.sentinel(), e.Message)
}

// Unwrap exposes both the type sentinel and the cause
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Type.sentinel(), e.Cause}
	}
	return []error{e.Type.sentinel()}
}

// TypeOf returns the ErrorType carried by err, if any
func TypeOf(err error) (ErrorType, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type, true
	}
	return 0, false
}
