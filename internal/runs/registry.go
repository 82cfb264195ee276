// Package runs tracks every in-flight pipeline run and coordinates
// cooperative cancellation and process-wide shutdown.
//
// The registry is the only shared mutable state across runs; every mutation
// and read of the run table happens under one mutex. The running pipeline
// itself never touches the registry on its hot path - it holds the run's
// context and checks ctx.Err() at stage and iteration boundaries.
package runs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Sentinel errors for registry operations.
var (
	// ErrAlreadyRegistered is returned when a run id is registered twice.
	ErrAlreadyRegistered = errors.New("run already registered")

	// ErrNotFound is returned when a run id is unknown to the registry.
	ErrNotFound = errors.New("run not found")
)

// Status is the lifecycle state of one run.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// record is the registry's private per-run bookkeeping. The registry owns
// the run id -> record mapping exclusively; pipelines only ever hold the
// derived context.
type record struct {
	id        string
	bookID    string
	startedAt time.Time
	status    Status
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{} // closed when the run reaches a terminal state
}

// Info is the externally visible view of a run.
type Info struct {
	ID          string        `json:"id"`
	BookID      string        `json:"book_id"`
	Status      Status        `json:"status"`
	Elapsed     time.Duration `json:"elapsed"`
	Cancellable bool          `json:"cancellable"`
}

// Registry tracks active runs. Construct one per process and pass it by
// reference; there is deliberately no package-level instance.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*record

	// retention is how long terminal records remain queryable before they
	// are dropped from the table.
	retention time.Duration
}

// NewRegistry creates an empty registry. retention bounds how long terminal
// runs stay visible to Status queries; zero means they are dropped
// immediately on finish.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		runs:      make(map[string]*record),
		retention: retention,
	}
}

// Register creates the run record and returns the context the pipeline must
// run under. The record exists before any stage executes, so a cancellation
// arriving before work starts is still honored: the returned context will
// already be cancelled.
func (r *Registry) Register(parent context.Context, runID, bookID string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[runID]; exists {
		return nil, ErrAlreadyRegistered
	}

	ctx, cancel := context.WithCancel(parent)
	r.runs[runID] = &record{
		id:        runID,
		bookID:    bookID,
		startedAt: time.Now(),
		status:    StatusRegistered,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	return ctx, nil
}

// Start transitions a registered run to running.
func (r *Registry) Start(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.runs[runID]; ok && rec.status == StatusRegistered {
		rec.status = StatusRunning
	}
}

// Finish moves a run to a terminal state and schedules its removal. A run
// that observed cancellation reports cancelled even if the caller passes
// completed: cancellation is not an error, and it is also not a success.
func (r *Registry) Finish(runID string, status Status) {
	if !status.Terminal() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[runID]
	if !ok || rec.status.Terminal() {
		return
	}
	if rec.cancelled {
		status = StatusCancelled
	}
	rec.status = status
	rec.cancel() // release the context resources
	close(rec.done)

	if r.retention <= 0 {
		delete(r.runs, runID)
		return
	}
	id := runID
	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if rec, ok := r.runs[id]; ok && rec.status.Terminal() {
			delete(r.runs, id)
		}
	})
}

// Cancel sets the run's cancellation signal. Idempotent. Returns true when
// the run was found and still live.
func (r *Registry) Cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[runID]
	if !ok {
		return false
	}
	live := !rec.status.Terminal()
	if live {
		rec.cancelled = true
		rec.cancel()
	}
	return live
}

// CancelAll sets the cancellation signal on every live run and returns how
// many were signalled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.runs {
		if rec.status.Terminal() {
			continue
		}
		rec.cancelled = true
		rec.cancel()
		n++
	}
	return n
}

// Status returns the lifecycle view of one run.
func (r *Registry) Status(runID string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[runID]
	if !ok {
		return Info{}, ErrNotFound
	}
	return infoOf(rec), nil
}

// List returns all currently tracked runs, newest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.runs))
	for _, rec := range r.runs {
		out = append(out, infoOf(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LiveCount returns the number of runs not yet in a terminal state.
func (r *Registry) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.runs {
		if !rec.status.Terminal() {
			n++
		}
	}
	return n
}

// Done returns a channel closed when the run reaches a terminal state, or
// nil for unknown runs.
func (r *Registry) Done(runID string) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.runs[runID]; ok {
		return rec.done
	}
	return nil
}

func infoOf(rec *record) Info {
	return Info{
		ID:          rec.id,
		BookID:      rec.bookID,
		Status:      rec.status,
		Elapsed:     time.Since(rec.startedAt),
		Cancellable: !rec.status.Terminal(),
	}
}
