package lookup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeSession struct {
	navErr   error
	fillErr  error
	chalErr  error
	subErr   error
	awaitRet []byte
	awaitErr error

	closed bool
	dumps  []string
}

func (s *fakeSession) Navigate(context.Context) error               { return s.navErr }
func (s *fakeSession) FillIdentifier(context.Context, string) error { return s.fillErr }
func (s *fakeSession) TriggerChallenge(context.Context) error       { return s.chalErr }
func (s *fakeSession) Submit(context.Context) error                 { return s.subErr }
func (s *fakeSession) AwaitOutcome(context.Context) ([]byte, error) { return s.awaitRet, s.awaitErr }
func (s *fakeSession) DumpDebug(label string)                       { s.dumps = append(s.dumps, label) }
func (s *fakeSession) Close()                                       { s.closed = true }

func okClassifier(res *Result, fail *Failure) Classifier {
	return func([]byte) (*Result, *Failure) { return res, fail }
}

func TestRunAttemptSuccess(t *testing.T) {
	sess := &fakeSession{awaitRet: []byte("<html>")}
	m := &Machine{
		Sessions: func(context.Context) (Session, error) { return sess, nil },
		Classify: okClassifier(&Result{Status: StatusActive, RawStatus: "HABIL"}, nil),
	}

	att := m.RunAttempt(context.Background(), "12345", 1)
	if att.Result == nil {
		t.Fatalf("expected result, got failure %v", att.Failure)
	}
	if att.Result.Status != StatusActive {
		t.Errorf("status = %s", att.Result.Status)
	}
	if !sess.closed {
		t.Error("session not closed on success path")
	}
	if att.Index != 1 || att.End.Before(att.Start) {
		t.Errorf("attempt bookkeeping wrong: %+v", att)
	}
}

func TestRunAttemptMalformedSkipsBrowser(t *testing.T) {
	opened := 0
	m := &Machine{
		Sessions: func(context.Context) (Session, error) {
			opened++
			return &fakeSession{}, nil
		},
		Classify: okClassifier(nil, nil),
	}

	att := m.RunAttempt(context.Background(), "bad-code", 1)
	if att.Failure == nil || att.Failure.Kind != KindMalformedInput {
		t.Fatalf("failure = %+v, want malformed_input", att.Failure)
	}
	if att.Failure.Retryable {
		t.Error("malformed input must not be retryable")
	}
	if opened != 0 {
		t.Errorf("browser session opened %d times for malformed input", opened)
	}
}

func TestRunAttemptSessionOpenFailure(t *testing.T) {
	m := &Machine{
		Sessions: func(context.Context) (Session, error) {
			return nil, errors.New("chrome gone")
		},
		Classify: okClassifier(nil, nil),
	}

	att := m.RunAttempt(context.Background(), "12345", 1)
	if att.Failure == nil || att.Failure.Kind != KindInfra {
		t.Fatalf("failure = %+v, want infra", att.Failure)
	}
}

func TestRunAttemptStepMapping(t *testing.T) {
	cases := []struct {
		name string
		sess *fakeSession
		want Kind
	}{
		{"navigate", &fakeSession{navErr: errors.New("dns")}, KindNetwork},
		{"fill", &fakeSession{fillErr: errors.New("no field")}, KindInteraction},
		{"submit", &fakeSession{subErr: errors.New("no button")}, KindInteraction},
		{"await deadline", &fakeSession{awaitErr: fmt.Errorf("wait: %w", context.DeadlineExceeded)}, KindChallengeTimeout},
		{"await other", &fakeSession{awaitErr: errors.New("tab crashed")}, KindInteraction},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &Machine{
				Sessions: func(context.Context) (Session, error) { return tc.sess, nil },
				Classify: okClassifier(nil, nil),
			}
			att := m.RunAttempt(context.Background(), "12345", 1)
			if att.Failure == nil || att.Failure.Kind != tc.want {
				t.Fatalf("failure = %+v, want kind %s", att.Failure, tc.want)
			}
			if !tc.sess.closed {
				t.Error("session not closed on failure path")
			}
		})
	}
}

func TestRunAttemptFailurePassesThrough(t *testing.T) {
	// A typed Failure from the session (e.g. challenge rejected) wins
	// over the positional mapping.
	sess := &fakeSession{chalErr: Failf(KindChallengeRejected, "empty token")}
	m := &Machine{
		Sessions: func(context.Context) (Session, error) { return sess, nil },
		Classify: okClassifier(nil, nil),
	}

	att := m.RunAttempt(context.Background(), "12345", 1)
	if att.Failure == nil || att.Failure.Kind != KindChallengeRejected {
		t.Fatalf("failure = %+v, want challenge_rejected", att.Failure)
	}
}

func TestRunAttemptClassifierFailureDumpsDebug(t *testing.T) {
	sess := &fakeSession{awaitRet: []byte("<garbage>")}
	m := &Machine{
		Sessions: func(context.Context) (Session, error) { return sess, nil },
		Classify: okClassifier(nil, Failf(KindParse, "odd shape")),
	}

	att := m.RunAttempt(context.Background(), "12345", 2)
	if att.Failure == nil || att.Failure.Kind != KindParse {
		t.Fatalf("failure = %+v, want parse", att.Failure)
	}
	if len(sess.dumps) != 1 {
		t.Errorf("dumps = %v, want one entry", sess.dumps)
	}
	if !sess.closed {
		t.Error("session not closed after classifier failure")
	}
}

func TestRunAttemptNotFoundSkipsDump(t *testing.T) {
	sess := &fakeSession{awaitRet: []byte("<html>")}
	m := &Machine{
		Sessions: func(context.Context) (Session, error) { return sess, nil },
		Classify: okClassifier(nil, Failf(KindNotFound, "no match")),
	}

	m.RunAttempt(context.Background(), "12345", 1)
	if len(sess.dumps) != 0 {
		t.Errorf("no-match outcome dumped debug artifacts: %v", sess.dumps)
	}
}

func TestRunAttemptElapsed(t *testing.T) {
	sess := &fakeSession{awaitRet: []byte("x")}
	m := &Machine{
		Sessions: func(context.Context) (Session, error) { return sess, nil },
		Classify: okClassifier(&Result{Status: StatusUnknown}, nil),
	}
	att := m.RunAttempt(context.Background(), "1", 1)
	if att.Elapsed() < 0 || att.Elapsed() > time.Minute {
		t.Errorf("elapsed = %v", att.Elapsed())
	}
}
