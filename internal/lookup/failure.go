package lookup

import "fmt"

// Kind classifies why an attempt did not produce a Result. The retry
// policy's decision table is keyed on it.
type Kind string

const (
	// KindInfra: automation engine or store unavailable. Fatal at
	// startup, never produced by a running attempt.
	KindInfra Kind = "infra"
	// KindNetwork: navigation, DNS, or connection failure.
	KindNetwork Kind = "network"
	// KindChallengeTimeout: no terminal render before the challenge
	// wait deadline.
	KindChallengeTimeout Kind = "challenge_timeout"
	// KindChallengeRejected: the portal re-showed the form without a
	// no-match message; the anti-automation score rejected us.
	KindChallengeRejected Kind = "challenge_rejected"
	// KindInteraction: an expected page element is missing.
	KindInteraction Kind = "interaction"
	// KindParse: the result page had an unexpected shape.
	KindParse Kind = "parse"
	// KindNotFound: the portal explicitly reported no match.
	KindNotFound Kind = "not_found"
	// KindMalformedInput: the identifier failed the format check.
	KindMalformedInput Kind = "malformed_input"
	// KindStoreWrite: persisting an outcome failed after sink retries.
	KindStoreWrite Kind = "store_write"
	// KindMail: digest delivery failed. Logged only.
	KindMail Kind = "mail"
)

// Failure describes one non-Result attempt ending.
type Failure struct {
	Kind      Kind
	Message   string
	Retryable bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Failf builds a Failure with a formatted message. Retryability follows
// the taxonomy default for the kind.
func Failf(kind Kind, format string, args ...any) *Failure {
	return &Failure{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: kindRetryable(kind),
	}
}

func kindRetryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindChallengeTimeout, KindChallengeRejected,
		KindInteraction, KindParse:
		return true
	default:
		return false
	}
}
