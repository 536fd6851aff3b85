package router

import (
	"cmp"
	"slices"
	"time"

	"github.com/mixaill76/byok_router/internal/provider"
)

// Candidates returns the active providers ordered by priority (lower first).
// Providers with equal priority keep their input order.
func Candidates(providers []provider.Provider) []provider.Provider {
	out := make([]provider.Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsActive {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b provider.Provider) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return out
}

type State int

const (
	StateTrying State = iota
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateTrying:
		return "trying"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Attempt records one try against one provider.
type Attempt struct {
	Provider provider.Provider
	Outcome  string
	Err      error
	Latency  time.Duration
}

// Failover walks an ordered candidate list exactly once. Each candidate is
// tried at most one time; there is no retry of the whole list.
//
//	Trying(i) --Fail--> Trying(i+1) | Exhausted
//	Trying(i) --Succeed--> Succeeded
type Failover struct {
	candidates []provider.Provider
	index      int
	state      State
	attempts   []Attempt
}

func NewFailover(candidates []provider.Provider) *Failover {
	f := &Failover{candidates: candidates, index: -1}
	if len(candidates) == 0 {
		f.state = StateExhausted
	}
	return f
}

// Next advances to the next candidate. It returns false once the list is
// exhausted or an attempt has succeeded.
func (f *Failover) Next() (*provider.Provider, bool) {
	if f.state != StateTrying {
		return nil, false
	}
	f.index++
	if f.index >= len(f.candidates) {
		f.state = StateExhausted
		return nil, false
	}
	return &f.candidates[f.index], true
}

// Fail records a failure of the current candidate.
func (f *Failover) Fail(kind FailureKind, err error, latency time.Duration) {
	if f.state != StateTrying || f.index < 0 {
		return
	}
	f.attempts = append(f.attempts, Attempt{
		Provider: f.candidates[f.index],
		Outcome:  string(kind),
		Err:      err,
		Latency:  latency,
	})
}

// Succeed records success of the current candidate and ends the walk.
func (f *Failover) Succeed(latency time.Duration) {
	if f.state != StateTrying || f.index < 0 {
		return
	}
	f.attempts = append(f.attempts, Attempt{
		Provider: f.candidates[f.index],
		Outcome:  "success",
		Latency:  latency,
	})
	f.state = StateSucceeded
}

func (f *Failover) State() State {
	return f.state
}

// Index is the position of the current candidate, -1 before the first Next.
func (f *Failover) Index() int {
	return f.index
}

func (f *Failover) Attempts() []Attempt {
	return f.attempts
}
