// Package provider holds the upstream provider model, its health policy and the
// store contract the router consumes.
package provider

import (
	"context"
	"errors"
	"time"
)

// Format is the wire protocol an upstream provider speaks.
type Format string

const (
	FormatAuto      Format = "auto"
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
)

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	switch f {
	case FormatAuto, FormatOpenAI, FormatAnthropic:
		return true
	}
	return false
}

// HealthStatus is a coarse availability classification derived from the
// consecutive failure counter.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
	HealthUnknown  HealthStatus = "unknown"
)

// ErrNotFound is returned by stores when a provider id does not exist.
var ErrNotFound = errors.New("provider: not found")

// Provider is a user-configured upstream (BYOK credentials + endpoint).
type Provider struct {
	ID                  string
	UserID              string
	Name                string
	BaseURL             string
	APIKey              string
	Model               string
	APIFormat           Format
	Priority            int
	IsActive            bool
	HealthStatus        HealthStatus
	ConsecutiveFailures uint
	LastUsedAt          *time.Time
}

// Store is the persistence collaborator for providers.
type Store interface {
	// ListActiveForFailover returns the user's active providers ordered by
	// ascending priority.
	ListActiveForFailover(ctx context.Context, userID string) ([]Provider, error)
	UpdateHealth(ctx context.Context, id string, status HealthStatus, failures uint) error
	MarkUsed(ctx context.Context, id string, at time.Time) error
}
