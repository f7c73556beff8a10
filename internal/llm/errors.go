package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category classifies a completion failure.
type Category string

const (
	CategoryTimeout    Category = "timeout"
	CategoryRateLimit  Category = "rate_limit"
	CategoryNoAPIKey   Category = "no_api_key"
	CategoryNoProvider Category = "no_provider"
	CategoryAuth       Category = "auth"
	CategoryNetwork    Category = "network"
	CategoryProvider   Category = "provider"
	CategoryEmpty      Category = "empty"
	CategoryUnknown    Category = "unknown"
)

// Error is a categorized provider failure.
type Error struct {
	Category   Category
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Category)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoAPIKey returns an error for a provider with no configured key.
func ErrNoAPIKey(provider string) error {
	return &Error{Category: CategoryNoAPIKey, Provider: provider}
}

// ErrNoProvider returns an error for an unregistered provider name.
func ErrNoProvider(provider string) error {
	return &Error{Category: CategoryNoProvider, Provider: provider}
}

// ErrEmptyResponse returns an error for a completion with no text.
func ErrEmptyResponse(provider string) error {
	return &Error{Category: CategoryEmpty, Provider: provider}
}

// FromStatus categorizes an HTTP status returned by provider.
func FromStatus(provider string, status int, err error) error {
	cat := CategoryProvider
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		cat = CategoryAuth
	case http.StatusTooManyRequests:
		cat = CategoryRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		cat = CategoryTimeout
	}
	return &Error{Category: cat, Provider: provider, StatusCode: status, Err: err}
}

// Categorize returns the category of err.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		// A wrapped deadline beats whatever the provider reported.
		if le.Category != CategoryTimeout && errors.Is(le.Err, context.DeadlineExceeded) {
			return CategoryTimeout
		}
		return le.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}
	return CategoryUnknown
}

// Reason returns the short text shown in an inline error marker.
func Reason(err error) string {
	var le *Error
	provider := "provider"
	if errors.As(err, &le) && le.Provider != "" {
		provider = le.Provider
	}
	switch Categorize(err) {
	case CategoryTimeout:
		return provider + " timed out"
	case CategoryRateLimit:
		return provider + " rate limit reached"
	case CategoryNoAPIKey:
		return "no API key for " + provider
	case CategoryNoProvider:
		return "unknown provider " + provider
	case CategoryAuth:
		return provider + " rejected the API key"
	case CategoryNetwork:
		return provider + " unreachable"
	case CategoryProvider:
		if le != nil && le.StatusCode != 0 {
			return fmt.Sprintf("%s error (HTTP %d)", provider, le.StatusCode)
		}
		return provider + " error"
	case CategoryEmpty:
		return provider + " returned no text"
	case "":
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "unexpected error"
}
