// Package regscan resolves the registration status and specialty list
// of CMP registry codes by driving the public lookup portal through a
// stealth Chrome session. It orchestrates per-identifier attempts under
// a bounded retry policy, streams terminal outcomes to the store and
// audit artifacts, and emits a digest at the end of the run.
//
// regscan triggers the portal's own challenge flow with human-like
// interaction timing; it does not bypass or disable the challenge.
package regscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/regscan/internal/browser"
	"github.com/hazyhaar/regscan/internal/classify"
	"github.com/hazyhaar/regscan/internal/config"
	"github.com/hazyhaar/regscan/internal/lookup"
	"github.com/hazyhaar/regscan/internal/notify"
	"github.com/hazyhaar/regscan/internal/retry"
	"github.com/hazyhaar/regscan/internal/sink"
)

// Options configures a run.
type Options struct {
	Config config.Config

	// Retries per identifier after the first attempt. Default 1.
	Retries int
	// Workers drawing from the shared queue. Default 1.
	Workers int
	// Headed renders the browser visibly (mitigation knob only).
	Headed bool
	// FailedCSV and ErrorLog are the audit artifact paths.
	FailedCSV string
	ErrorLog  string
	// DebugDir receives page dumps on failures. Empty disables.
	DebugDir string

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.FailedCSV == "" {
		o.FailedCSV = "failed_cmp.csv"
	}
	if o.ErrorLog == "" {
		o.ErrorLog = "scrap.logs"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// outcomeSink receives attempt failures and terminal outcomes.
// Satisfied by sink.Router; faked in tests. An OutcomeFinal error means
// the result was lost to a store failure and must count as failed.
type outcomeSink interface {
	AttemptFailed(id lookup.Identifier, attempt int, f *lookup.Failure)
	OutcomeFinal(ctx context.Context, o *lookup.Outcome) error
}

// Runner is the top-level orchestrator. Create one per run.
type Runner struct {
	opts   Options
	runID  string
	mgr    *browser.Manager
	router outcomeSink
	logger *slog.Logger

	// newMachine builds the per-identifier attempt machine. Defaults
	// to the browser-backed machine.
	newMachine func(lookup.Identifier) *lookup.Machine
	policy     retry.Policy

	mu      sync.Mutex
	summary notify.Summary
}

// NewRunner builds a Runner. Call Run to execute.
func NewRunner(opts Options) *Runner {
	opts.defaults()
	return &Runner{
		opts:   opts,
		runID:  uuid.NewString(),
		logger: opts.Logger,
		policy: retry.Policy{MaxRetries: opts.Retries},
	}
}

// Run resolves every identifier and returns the run summary. Only
// startup failures (store unreachable, Chrome unavailable) return an
// error; per-identifier problems end up in the audit artifacts. The
// store is verified before any browser work begins, and a stop signal
// on ctx drains in-flight attempts instead of aborting them.
func (r *Runner) Run(ctx context.Context, ids []lookup.Identifier) (notify.Summary, error) {
	r.mu.Lock()
	r.summary = notify.Summary{
		RunID:        r.runID,
		Start:        time.Now(),
		Total:        len(ids),
		FailedByKind: make(map[lookup.Kind]int),
	}
	r.mu.Unlock()

	cfg := r.opts.Config

	// Store first: unreachable store aborts before any browser work
	// and before the audit files are touched.
	store, err := sink.OpenStore(ctx, cfg.DB.DSN(), r.logger)
	if err != nil {
		return r.snapshotSummary(), err
	}

	r.mgr = browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Headed:          r.opts.Headed,
		UserAgent:       cfg.Browser.UserAgent,
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleInterval.Std(),
		XvfbDisplay:     cfg.Browser.XvfbDisplay,
		Logger:          r.logger,
	})
	if err := r.mgr.Start(ctx); err != nil {
		store.Close()
		return r.snapshotSummary(), fmt.Errorf("regscan: automation engine: %w", err)
	}
	defer r.mgr.Close()

	audit, err := sink.OpenAudit(r.opts.FailedCSV, r.opts.ErrorLog, r.runID, r.logger)
	if err != nil {
		store.Close()
		return r.snapshotSummary(), err
	}

	router := &sink.Router{Store: store, Audit: audit, Logger: r.logger}
	defer router.Close()
	r.router = router
	if r.newMachine == nil {
		r.newMachine = r.browserMachine
	}

	r.logger.Info("regscan: run starting",
		"run_id", r.runID, "identifiers", len(ids),
		"retries", r.opts.Retries, "workers", r.opts.Workers)

	r.process(ctx, ids)

	r.mu.Lock()
	r.summary.End = time.Now()
	out := r.summary
	r.mu.Unlock()

	r.logger.Info("regscan: run finished",
		"run_id", r.runID,
		"elapsed", out.End.Sub(out.Start).Round(time.Millisecond),
		"succeeded", out.Succeeded, "failed", out.Failed)
	return out, nil
}

// process feeds the worker pool and waits for it to drain.
func (r *Runner) process(ctx context.Context, ids []lookup.Identifier) {
	queue := make(chan lookup.Identifier)
	var wg sync.WaitGroup
	for w := 0; w < r.opts.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.workerLoop(ctx, worker, queue)
		}(w)
	}

feed:
	for _, id := range ids {
		select {
		case queue <- id:
		case <-ctx.Done():
			r.logger.Info("regscan: stop signal, draining in-flight attempts")
			break feed
		}
	}
	close(queue)
	wg.Wait()
}

// workerLoop processes identifiers until the queue closes. Each worker
// serializes its own browser interaction; isolation between workers
// comes from per-attempt stealth pages.
func (r *Runner) workerLoop(ctx context.Context, worker int, queue <-chan lookup.Identifier) {
	for id := range queue {
		outcome := r.resolveOne(ctx, id)
		// Outcomes stream out the moment they are terminal, bounding
		// crash loss to the in-flight identifier.
		if err := r.router.OutcomeFinal(context.WithoutCancel(ctx), outcome); err != nil {
			// The result landed in the failed CSV instead of the
			// store; the summary must agree with the artifacts.
			outcome.Result = nil
			var f *lookup.Failure
			if !errors.As(err, &f) {
				f = lookup.Failf(lookup.KindStoreWrite, "%v", err)
			}
			outcome.Failure = f
		}
		r.record(outcome)
		r.logger.Info("regscan: identifier finalized",
			"worker", worker, "cmp", string(id),
			"attempts", outcome.Attempts, "ok", outcome.Succeeded())
	}
}

// browserMachine builds the production attempt machine for one
// identifier.
func (r *Runner) browserMachine(id lookup.Identifier) *lookup.Machine {
	cfg := r.opts.Config
	return &lookup.Machine{
		Sessions: func(context.Context) (lookup.Session, error) {
			return browser.OpenLookupTab(r.mgr, browser.TabConfig{
				BaseURL:    cfg.Portal.BaseURL,
				SiteKey:    cfg.Portal.SiteKey,
				NavTimeout: cfg.Portal.NavTimeout.Std(),
				DebugDir:   r.opts.DebugDir,
				Identifier: string(id),
			})
		},
		Classify:      classify.Classify,
		ChallengeWait: cfg.Portal.ChallengeWait.Std(),
		Logger:        r.logger,
	}
}

// resolveOne drives one identifier to a terminal outcome under the
// retry policy. Attempts run on an uncancellable child context so a
// stop signal drains rather than interrupts page interaction.
func (r *Runner) resolveOne(ctx context.Context, id lookup.Identifier) *lookup.Outcome {
	attCtx := context.WithoutCancel(ctx)
	machine := r.newMachine(id)
	rm := retry.NewMachine(r.policy)
	var last *lookup.Attempt

	for {
		idx := rm.Begin()
		last = machine.RunAttempt(attCtx, id, idx)

		if last.Result != nil {
			rm.Succeed()
			break
		}

		r.router.AttemptFailed(id, idx, last.Failure)
		r.logger.Warn("regscan: attempt failed",
			"cmp", string(id), "attempt", idx,
			"kind", string(last.Failure.Kind), "error", last.Failure.Message)

		again, backoff := rm.Fail(last.Failure)
		if !again {
			break
		}
		if ctx.Err() != nil {
			// Stop signal between attempts: keep the last failure as
			// terminal instead of starting new browser work.
			break
		}
		if err := retry.Sleep(attCtx, backoff); err != nil {
			break
		}
	}

	return &lookup.Outcome{
		Identifier: id,
		Attempts:   last.Index,
		Result:     last.Result,
		Failure:    last.Failure,
	}
}

func (r *Runner) record(o *lookup.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.Succeeded() {
		r.summary.Succeeded++
		return
	}
	r.summary.Failed++
	r.summary.FailedByKind[o.Failure.Kind]++
}

func (r *Runner) snapshotSummary() notify.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.summary
	s.End = time.Now()
	return s
}
