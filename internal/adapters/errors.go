package adapters

import (
	"errors"
	"fmt"
)

// ErrorClass classifies provider failures for failover decisions.
type ErrorClass string

const (
	// ErrTransient covers timeouts and transport failures; the cascade moves
	// to the next candidate within the same request.
	ErrTransient ErrorClass = "transient"
	// ErrRateLimit is provider-reported throttling; besides failover it
	// short-circuits the local rate window for the provider.
	ErrRateLimit ErrorClass = "rate_limit"
	// ErrAuth means credentials are invalid; the provider is disabled until
	// configuration changes rather than silently failed over forever.
	ErrAuth ErrorClass = "auth"
	// ErrNotAvailable means the provider has no data for the symbol.
	ErrNotAvailable ErrorClass = "not_available"
	// ErrNormalization means the response shape did not match the provider's
	// field mapping; treated like any other provider failure.
	ErrNormalization ErrorClass = "normalization"
)

// ProviderError is the typed failure returned by adapters and the normalizer.
type ProviderError struct {
	Provider string
	Symbol   string
	Class    ErrorClass
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s error for %s: %s (%v)", e.Provider, e.Class, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s error for %s: %s", e.Provider, e.Class, e.Symbol, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// ClassOf extracts the error class, defaulting to transient so unknown
// failures stay eligible for failover.
func ClassOf(err error) ErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ErrTransient
}

func NewTransientError(provider, symbol, message string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Symbol: symbol, Class: ErrTransient, Message: message, Cause: cause}
}

func NewRateLimitError(provider, symbol, message string) *ProviderError {
	return &ProviderError{Provider: provider, Symbol: symbol, Class: ErrRateLimit, Message: message}
}

func NewAuthError(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Class: ErrAuth, Message: message}
}

func NewNotAvailableError(provider, symbol, message string) *ProviderError {
	return &ProviderError{Provider: provider, Symbol: symbol, Class: ErrNotAvailable, Message: message}
}

func NewNormalizationError(provider, symbol, message string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Symbol: symbol, Class: ErrNormalization, Message: message, Cause: cause}
}
