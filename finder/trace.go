package finder

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type checkpoint struct {
	name string
	at   time.Time
}

// Trace owns the diagnostic log and timing checkpoints of a single run. Lines
// are only ever appended.
type Trace struct {
	mu          sync.Mutex
	id          string
	logger      *slog.Logger
	started     time.Time
	lines       []string
	checkpoints []checkpoint
	finished    bool
}

func NewTrace(logger *slog.Logger) *Trace {
	id := uuid.NewString()
	if logger != nil {
		logger = logger.With("run", id)
	}
	return &Trace{
		id:      id,
		logger:  logger,
		started: time.Now(),
	}
}

func (t *Trace) ID() string {
	return t.id
}

func (t *Trace) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)

	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Debug(line)
	}
}

func (t *Trace) Checkpoint(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkpoints = append(t.checkpoints, checkpoint{name: name, at: time.Now()})
}

func (t *Trace) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

// Finish records the final "Complete" checkpoint. Calling it more than once
// has no effect.
func (t *Trace) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.checkpoints = append(t.checkpoints, checkpoint{name: "Complete", at: time.Now()})
}

// Report finishes the trace and renders the log followed by the time spent
// between each checkpoint.
func (t *Trace) Report() string {
	t.Finish()

	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	for _, l := range t.lines {
		b.WriteString(l)
		b.WriteString("\n")
	}

	prev := t.started
	for _, cp := range t.checkpoints {
		fmt.Fprintf(&b, "%-10s %10s %10s\n", cp.name, cp.at.Sub(prev).Round(time.Microsecond), cp.at.Sub(t.started).Round(time.Microsecond))
		prev = cp.at
	}

	return b.String()
}
