package runs

import (
	"log/slog"
	"time"
)

// DefaultGracePeriod bounds how long Shutdown waits for live runs to
// observe cancellation before force-abandoning them.
const DefaultGracePeriod = 30 * time.Second

// Shutdown implements the process-wide stop protocol: cancel every live
// run, then poll liveness until all runs reach a terminal state or the
// grace period elapses. Runs still live after the grace period are
// force-abandoned: their goroutines are not guaranteed to stop, but they
// are marked cancelled and the process may exit. Bounding shutdown latency
// at the cost of a possibly leaked goroutine is the intended trade-off.
//
// Returns true when every run drained within the grace period.
func (r *Registry) Shutdown(grace time.Duration, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	n := r.CancelAll()
	logger.Info("shutdown requested", "live_runs", n, "grace", grace)
	if n == 0 {
		return true
	}

	deadline := time.Now().Add(grace)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if r.LiveCount() == 0 {
			logger.Info("all runs drained")
			return true
		}
		if time.Now().After(deadline) {
			break
		}
	}

	abandoned := r.forceAbandon()
	logger.Warn("grace period elapsed, force-abandoning runs", "count", abandoned)
	return false
}

// forceAbandon marks every still-live run cancelled without waiting for its
// goroutine to observe the signal.
func (r *Registry) forceAbandon() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.runs {
		if rec.status.Terminal() {
			continue
		}
		rec.cancelled = true
		rec.status = StatusCancelled
		rec.cancel()
		close(rec.done)
		n++
	}
	return n
}
