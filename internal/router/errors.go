package router

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoProvidersConfigured = errors.New("no providers configured")
	ErrAllProvidersExhausted = errors.New("all providers failed")
)

// FailureKind classifies a failed attempt.
type FailureKind string

const (
	// FailureHTTP is a non-2xx upstream status.
	FailureHTTP FailureKind = "http"
	// FailureTimeout means the attempt timeout fired before the headers, or
	// before the end of a body buffered for translation.
	FailureTimeout FailureKind = "timeout"
	// FailureNetwork covers connection, DNS and TLS errors.
	FailureNetwork FailureKind = "network"
	// FailureResponse is a 2xx response whose body could not be translated.
	FailureResponse FailureKind = "response"
	// FailureConfig is a provider record the router cannot use.
	FailureConfig FailureKind = "config"
)

// UpstreamError describes why one provider attempt failed.
type UpstreamError struct {
	Kind       FailureKind
	ProviderID string
	StatusCode int
	// Body holds the start of an error response, for logs only.
	Body string
	Err  error
}

func (e *UpstreamError) Error() string {
	switch e.Kind {
	case FailureHTTP:
		return fmt.Sprintf("provider %s: upstream returned %d", e.ProviderID, e.StatusCode)
	case FailureTimeout:
		return fmt.Sprintf("provider %s: upstream timeout", e.ProviderID)
	default:
		return fmt.Sprintf("provider %s: %s error: %v", e.ProviderID, e.Kind, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every candidate failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			parts = append(parts, a.Err.Error())
		}
	}
	return fmt.Sprintf("%s after %d attempts: %s", ErrAllProvidersExhausted, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *ExhaustedError) Unwrap() error {
	return ErrAllProvidersExhausted
}
