// Package retry decides whether a failed lookup attempt is re-run and
// how long to wait before it. The per-identifier lifecycle is an
// explicit state machine so attempt counting and backoff stay testable
// in isolation.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/hazyhaar/regscan/internal/lookup"
)

// Policy holds the knobs shared by all identifiers in a run.
type Policy struct {
	// MaxRetries is the number of re-attempts after the first try.
	// An identifier sees at most MaxRetries+1 attempts.
	MaxRetries int
	// Base is the first backoff step. Default 3s, matching the
	// portal's tolerance for rapid re-submission.
	Base time.Duration
	// MaxBackoff caps the exponential growth. Default 60s.
	MaxBackoff time.Duration
}

func (p Policy) defaults() Policy {
	if p.Base <= 0 {
		p.Base = 3 * time.Second
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 60 * time.Second
	}
	return p
}

// Backoff returns base * 2^(attempt-1) plus up to 50% jitter, capped at
// MaxBackoff. attempt is 1-based.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.defaults()
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	if d+jitter > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d + jitter
}

// State is the per-identifier retry lifecycle.
type State int

const (
	Pending State = iota
	Attempting
	Succeeded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Attempting:
		return "attempting"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Machine tracks one identifier through its attempts.
type Machine struct {
	policy  Policy
	state   State
	attempt int
}

// NewMachine returns a Machine in Pending.
func NewMachine(p Policy) *Machine {
	return &Machine{policy: p.defaults()}
}

// State returns the current lifecycle state.
func (m *Machine) State() State { return m.state }

// Attempt returns the index of the attempt in flight (1-based), or the
// last attempt once terminal.
func (m *Machine) Attempt() int { return m.attempt }

// Begin transitions Pending/Attempting → Attempting(next) and returns
// the new attempt index.
func (m *Machine) Begin() int {
	m.attempt++
	m.state = Attempting
	return m.attempt
}

// Succeed marks the identifier resolved.
func (m *Machine) Succeed() { m.state = Succeeded }

// Fail consumes the attempt's failure and decides the next transition.
// Non-retryable failures exhaust immediately regardless of remaining
// budget; retryable failures re-attempt with backoff until the ceiling.
func (m *Machine) Fail(f *lookup.Failure) (again bool, backoff time.Duration) {
	if !f.Retryable || m.attempt > m.policy.MaxRetries {
		m.state = Exhausted
		return false, 0
	}
	return true, m.policy.Backoff(m.attempt)
}

// Sleep waits for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
