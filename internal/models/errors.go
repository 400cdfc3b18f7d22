package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRateLimitExhausted is returned once every rate-limit retry has failed.
var ErrRateLimitExhausted = errors.New("provider rate limit persists after retries")

// ProviderError is a non-2xx response from the provider.
type ProviderError struct {
	Status  int
	Type    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error %d: %s - %s", e.Status, e.Type, e.Message)
}

// IsRateLimit reports whether the provider throttled the request.
func (e *ProviderError) IsRateLimit() bool {
	return e.Status == http.StatusTooManyRequests || e.Type == "rate_limit_error"
}

// IsRateLimit reports whether err is, or wraps, a provider rate-limit error.
func IsRateLimit(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.IsRateLimit()
}
