// Package usage records one telemetry entry per upstream attempt,
// asynchronously and on a best-effort basis.
package usage

import (
	"time"

	"github.com/mixaill76/byok_router/internal/provider"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry describes a single upstream attempt.
type Entry struct {
	UserID        string
	ProviderID    string
	ProviderName  string
	RequestFormat provider.Format
	TargetFormat  provider.Format
	Model         string
	InputTokens   int
	OutputTokens  int
	LatencyMs     int64
	Status        Status
	ErrorMessage  string
	CreatedAt     time.Time
}

// Recorder accepts entries without blocking the caller. Entries may be
// dropped under load.
type Recorder interface {
	Record(entry Entry)
}

// Discard is a Recorder that drops everything.
type Discard struct{}

func (Discard) Record(Entry) {}
