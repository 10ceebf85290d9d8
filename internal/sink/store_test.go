package sink

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/regscan/internal/lookup"
)

type execCall struct {
	query string
	args  []any
}

// flakyExec fails the first n writes, then succeeds.
type flakyExec struct {
	failures int
	calls    []execCall
}

type noResult struct{}

func (noResult) LastInsertId() (int64, error) { return 0, nil }
func (noResult) RowsAffected() (int64, error) { return 1, nil }

func (e *flakyExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	e.calls = append(e.calls, execCall{query, args})
	if len(e.calls) <= e.failures {
		return nil, errors.New("conn reset")
	}
	return noResult{}, nil
}

func testStore(exec execer) *Store {
	return &Store{exec: exec, logger: discardLogger()}
}

func TestUpsertArgs(t *testing.T) {
	exec := &flakyExec{}
	s := testStore(exec)

	res := &lookup.Result{
		Status:      lookup.StatusActive,
		RawStatus:   "HABIL",
		Specialties: []string{"CARDIOLOGÍA", "MEDICINA INTERNA"},
	}
	if err := s.UpsertResult(context.Background(), "12345", res); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(exec.calls))
	}
	call := exec.calls[0]
	if !strings.Contains(call.query, "ON CONFLICT (cmp) DO UPDATE") {
		t.Errorf("statement is not an upsert: %q", call.query)
	}
	want := []any{"12345", "active", "HABIL", `["CARDIOLOGÍA","MEDICINA INTERNA"]`}
	if len(call.args) != len(want) {
		t.Fatalf("args = %v", call.args)
	}
	for i := range want {
		if call.args[i] != want[i] {
			t.Errorf("args[%d] = %v, want %v", i, call.args[i], want[i])
		}
	}
}

func TestUpsertNilSpecialtiesSerializeEmpty(t *testing.T) {
	exec := &flakyExec{}
	s := testStore(exec)

	res := &lookup.Result{Status: lookup.StatusInactive, RawStatus: "INHABIL"}
	if err := s.UpsertResult(context.Background(), "67890", res); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}

	// A status-only page leaves the slice nil; the column must still
	// hold a JSON array, never the literal null.
	if got := exec.calls[0].args[3]; got != "[]" {
		t.Errorf("specialties arg = %v, want []", got)
	}
}

func TestUpsertRetriesTransientFailure(t *testing.T) {
	exec := &flakyExec{failures: 1}
	s := testStore(exec)

	res := &lookup.Result{Status: lookup.StatusActive, RawStatus: "HABIL"}
	if err := s.UpsertResult(context.Background(), "12345", res); err != nil {
		t.Fatalf("UpsertResult after transient failure: %v", err)
	}
	if len(exec.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(exec.calls))
	}
}

func TestUpsertBoundedRetries(t *testing.T) {
	exec := &flakyExec{failures: 100}
	s := testStore(exec)

	res := &lookup.Result{Status: lookup.StatusActive, RawStatus: "HABIL"}
	err := s.UpsertResult(context.Background(), "12345", res)
	if err == nil {
		t.Fatal("expected error after persistent write failure")
	}
	if len(exec.calls) != storeWriteRetries {
		t.Errorf("calls = %d, want %d", len(exec.calls), storeWriteRetries)
	}
}
