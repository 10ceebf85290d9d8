package lookup

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Session is the browser surface one attempt drives. Implemented by
// browser.LookupTab; faked in tests.
type Session interface {
	// Navigate loads the portal's lookup form.
	Navigate(ctx context.Context) error
	// FillIdentifier types the code into the form with human cadence.
	FillIdentifier(ctx context.Context, code string) error
	// TriggerChallenge runs the site's own challenge flow and injects
	// the resulting token into the form.
	TriggerChallenge(ctx context.Context) error
	// Submit sends the form.
	Submit(ctx context.Context) error
	// AwaitOutcome blocks until the page reaches a terminal state and
	// returns the final HTML snapshot.
	AwaitOutcome(ctx context.Context) ([]byte, error)
	// DumpDebug saves page artifacts for diagnosis. Best-effort.
	DumpDebug(label string)
	// Close releases the page. Safe to call on every exit path.
	Close()
}

// SessionFactory opens a fresh Session for one attempt.
type SessionFactory func(ctx context.Context) (Session, error)

// Classifier maps a final page snapshot to a Result or a Failure.
type Classifier func(html []byte) (*Result, *Failure)

// state tracks where the attempt is in its page interaction.
type state int

const (
	stateIdle state = iota
	stateNavigated
	stateFormFilled
	stateSubmitted
	stateChallengeWait
	stateDone
)

// Machine drives one identifier through one attempt. It owns no browser
// resources between calls; each RunAttempt acquires and releases its own
// Session.
type Machine struct {
	Sessions SessionFactory
	Classify Classifier
	// ChallengeWait bounds the time between submit and a terminal
	// render. Default 45s.
	ChallengeWait time.Duration
	Logger        *slog.Logger
}

func (m *Machine) defaults() {
	if m.ChallengeWait <= 0 {
		m.ChallengeWait = 45 * time.Second
	}
	if m.Logger == nil {
		m.Logger = slog.Default()
	}
}

// RunAttempt performs one attempt for id and returns the finalized
// Attempt. Malformed identifiers short-circuit before a Session is
// opened. The Session is closed on every path out of the loop.
func (m *Machine) RunAttempt(ctx context.Context, id Identifier, index int) *Attempt {
	m.defaults()
	att := &Attempt{Identifier: id, Index: index, Start: time.Now()}

	if err := id.Validate(); err != nil {
		att.Failure = Failf(KindMalformedInput, "%v", err)
		att.End = time.Now()
		return att
	}

	sess, err := m.Sessions(ctx)
	if err != nil {
		att.Failure = Failf(KindInfra, "open session: %v", err)
		att.End = time.Now()
		return att
	}
	defer sess.Close()

	res, fail := m.drive(ctx, sess, string(id))
	if fail != nil && fail.Kind != KindNotFound {
		sess.DumpDebug(string(fail.Kind))
	}
	att.Result = res
	att.Failure = fail
	att.End = time.Now()

	m.Logger.Debug("lookup: attempt finalized",
		"cmp", string(id), "index", index,
		"ok", res != nil, "elapsed", att.Elapsed())
	return att
}

// drive walks the interaction states. Each step maps its error to the
// failure kind the retry policy understands.
func (m *Machine) drive(ctx context.Context, sess Session, code string) (*Result, *Failure) {
	st := stateIdle

	if err := sess.Navigate(ctx); err != nil {
		return nil, classifyStepErr(st, err)
	}
	st = stateNavigated

	if err := sess.FillIdentifier(ctx, code); err != nil {
		return nil, classifyStepErr(st, err)
	}
	st = stateFormFilled

	if err := sess.TriggerChallenge(ctx); err != nil {
		return nil, classifyStepErr(st, err)
	}

	if err := sess.Submit(ctx); err != nil {
		return nil, classifyStepErr(st, err)
	}
	st = stateSubmitted

	waitCtx, cancel := context.WithTimeout(ctx, m.ChallengeWait)
	defer cancel()
	st = stateChallengeWait

	html, err := sess.AwaitOutcome(waitCtx)
	if err != nil {
		return nil, classifyStepErr(st, err)
	}

	return m.Classify(html)
}

// classifyStepErr maps a step error to a Failure based on which state
// the attempt was leaving. A Failure returned by the Session passes
// through untouched.
func classifyStepErr(st state, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	switch st {
	case stateIdle:
		return Failf(KindNetwork, "navigate: %v", err)
	case stateNavigated, stateFormFilled:
		return Failf(KindInteraction, "%v", err)
	case stateSubmitted, stateChallengeWait:
		if errors.Is(err, context.DeadlineExceeded) {
			return Failf(KindChallengeTimeout, "no terminal render: %v", err)
		}
		return Failf(KindInteraction, "%v", err)
	default:
		return Failf(KindNetwork, "%v", err)
	}
}
