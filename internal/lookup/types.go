// Package lookup holds the per-identifier resolution engine: the domain
// types shared across the pipeline and the state machine that drives a
// single lookup attempt against the portal.
package lookup

import (
	"fmt"
	"time"
)

// Identifier is a CMP registry code, the unit of work.
type Identifier string

// maxCodeLen matches the portal's VARCHAR(10) field.
const maxCodeLen = 10

// Validate checks the code format before any browser interaction.
// The portal accepts numeric codes up to ten digits.
func (id Identifier) Validate() error {
	if id == "" {
		return fmt.Errorf("lookup: empty identifier")
	}
	if len(id) > maxCodeLen {
		return fmt.Errorf("lookup: identifier %q exceeds %d characters", id, maxCodeLen)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("lookup: identifier %q contains non-digit %q", id, r)
		}
	}
	return nil
}

// Status is the registration status extracted from a result page.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusNotFound Status = "not_found"
	StatusUnknown  Status = "unknown"
)

// Result is a successfully parsed page outcome.
type Result struct {
	Status      Status
	RawStatus   string // portal wording, e.g. "HABIL"
	Specialties []string
}

// Attempt is one finalized lookup attempt. Exactly one of Result and
// Failure is set.
type Attempt struct {
	Identifier Identifier
	Index      int // 1-based
	Start      time.Time
	End        time.Time
	Result     *Result
	Failure    *Failure
}

// Elapsed returns the attempt duration.
func (a *Attempt) Elapsed() time.Duration { return a.End.Sub(a.Start) }

// Outcome is the terminal state of one identifier for this run: either a
// Result or the Failure of the last attempt.
type Outcome struct {
	Identifier Identifier
	Attempts   int
	Result     *Result
	Failure    *Failure
}

// Succeeded reports whether the identifier resolved to a Result.
func (o *Outcome) Succeeded() bool { return o.Result != nil }
