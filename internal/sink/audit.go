package sink

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hazyhaar/regscan/internal/lookup"
)

// appender serializes appends to one file through a single goroutine,
// so concurrent workers never interleave partial lines.
type appender struct {
	lines  chan string
	done   chan struct{}
	path   string
	logger *slog.Logger
}

func newAppender(path string, logger *slog.Logger) (*appender, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}

	a := &appender{
		lines:  make(chan string, 256),
		done:   make(chan struct{}),
		path:   path,
		logger: logger,
	}

	go func() {
		defer close(a.done)
		defer f.Close()
		for line := range a.lines {
			if _, err := f.WriteString(line + "\n"); err != nil {
				a.logger.Error("sink: append failed", "path", a.path, "error", err)
			}
		}
	}()

	return a, nil
}

func (a *appender) append(line string) {
	a.lines <- line
}

func (a *appender) close() {
	close(a.lines)
	<-a.done
}

// Audit owns the two append-only failure artifacts: the failed
// identifiers CSV (one code per line, no header) and the timestamped
// error log (one line per failed attempt).
type Audit struct {
	failed *appender
	errlog *appender
	runID  string
	mu     sync.Mutex
	closed bool
}

// OpenAudit opens (creating if needed) both artifacts for appending.
func OpenAudit(failedPath, errlogPath, runID string, logger *slog.Logger) (*Audit, error) {
	if logger == nil {
		logger = slog.Default()
	}

	failed, err := newAppender(failedPath, logger)
	if err != nil {
		return nil, err
	}
	errlog, err := newAppender(errlogPath, logger)
	if err != nil {
		failed.close()
		return nil, err
	}

	return &Audit{failed: failed, errlog: errlog, runID: runID}, nil
}

// AttemptFailed records one failed attempt in the error log.
func (a *Audit) AttemptFailed(id lookup.Identifier, attempt int, f *lookup.Failure) {
	a.errlog.append(fmt.Sprintf("%s run=%s CMP %s attempt=%d kind=%s: %s",
		time.Now().Format("2006-01-02 15:04:05"), a.runID, id, attempt, f.Kind, f.Message))
}

// Exhausted records a terminally failed identifier in the failed CSV.
func (a *Audit) Exhausted(id lookup.Identifier) {
	a.failed.append(string(id))
}

// Close flushes and closes both artifacts. Idempotent.
func (a *Audit) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.failed.close()
	a.errlog.close()
}
