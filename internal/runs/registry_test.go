package runs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestRegisterAndLifecycle(t *testing.T) {
	r := NewRegistry(time.Minute)

	ctx, err := r.Register(context.Background(), "run-1", "book-1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("fresh run context should not be cancelled")
	}

	info, err := r.Status("run-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if info.Status != StatusRegistered || !info.Cancellable {
		t.Errorf("Status() = %+v", info)
	}

	r.Start("run-1")
	info, _ = r.Status("run-1")
	if info.Status != StatusRunning {
		t.Errorf("status = %s, want running", info.Status)
	}

	r.Finish("run-1", StatusCompleted)
	info, _ = r.Status("run-1")
	if info.Status != StatusCompleted || info.Cancellable {
		t.Errorf("Status() after finish = %+v", info)
	}

	t.Run("duplicate registration rejected", func(t *testing.T) {
		if _, err := r.Register(context.Background(), "run-1", "book-1"); !errors.Is(err, ErrAlreadyRegistered) {
			t.Errorf("expected ErrAlreadyRegistered, got %v", err)
		}
	})
}

func TestCancelBeforeStart(t *testing.T) {
	r := NewRegistry(time.Minute)

	ctx, err := r.Register(context.Background(), "run-1", "book-1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if !r.Cancel("run-1") {
		t.Fatal("Cancel() should report the run as live")
	}
	if ctx.Err() == nil {
		t.Fatal("run context should be cancelled before any stage started")
	}

	// The pipeline observes the signal and finishes; even though it reports
	// completed, the terminal state must be cancelled.
	r.Finish("run-1", StatusCompleted)
	info, _ := r.Status("run-1")
	if info.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", info.Status)
	}
}

func TestCancelIdempotentAndUnknown(t *testing.T) {
	r := NewRegistry(time.Minute)
	_, _ = r.Register(context.Background(), "run-1", "book-1")

	if !r.Cancel("run-1") {
		t.Error("first Cancel() should find a live run")
	}
	if !r.Cancel("run-1") {
		t.Error("second Cancel() is idempotent on a live run")
	}
	if r.Cancel("missing") {
		t.Error("Cancel() on unknown run should report not found")
	}

	r.Finish("run-1", StatusCancelled)
	if r.Cancel("run-1") {
		t.Error("Cancel() on terminal run should report not live")
	}
}

func TestCancelAllDrainsRuns(t *testing.T) {
	r := NewRegistry(time.Minute)

	var wg sync.WaitGroup
	ids := []string{"run-1", "run-2", "run-3"}
	for _, id := range ids {
		ctx, err := r.Register(context.Background(), id, "book-1")
		if err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
		r.Start(id)

		wg.Add(1)
		go func(id string, ctx context.Context) {
			defer wg.Done()
			// Simulate the cooperative loop: wait for the signal, then
			// finish cleanly.
			<-ctx.Done()
			r.Finish(id, StatusCompleted)
		}(id, ctx)
	}

	if n := r.CancelAll(); n != 3 {
		t.Fatalf("CancelAll() = %d, want 3", n)
	}
	wg.Wait()

	for _, id := range ids {
		info, err := r.Status(id)
		if err != nil {
			t.Fatalf("Status(%s) error = %v", id, err)
		}
		if info.Status != StatusCancelled {
			t.Errorf("run %s status = %s, want cancelled", id, info.Status)
		}
	}
}

func TestShutdownWithinGrace(t *testing.T) {
	r := NewRegistry(time.Minute)

	for _, id := range []string{"run-1", "run-2"} {
		ctx, _ := r.Register(context.Background(), id, "book-1")
		r.Start(id)
		go func(id string, ctx context.Context) {
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			r.Finish(id, StatusCancelled)
		}(id, ctx)
	}

	if ok := r.Shutdown(2*time.Second, slog.Default()); !ok {
		t.Fatal("Shutdown() should drain within grace period")
	}
	if n := r.LiveCount(); n != 0 {
		t.Errorf("LiveCount() = %d after shutdown", n)
	}
}

func TestShutdownForceAbandons(t *testing.T) {
	r := NewRegistry(time.Minute)

	// This run never observes its cancellation signal.
	_, _ = r.Register(context.Background(), "stuck", "book-1")
	r.Start("stuck")

	if ok := r.Shutdown(100*time.Millisecond, slog.Default()); ok {
		t.Fatal("Shutdown() should report a non-clean drain")
	}

	info, err := r.Status("stuck")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if info.Status != StatusCancelled {
		t.Errorf("force-abandoned run status = %s, want cancelled", info.Status)
	}
}

func TestTerminalRecordsExpire(t *testing.T) {
	r := NewRegistry(30 * time.Millisecond)
	_, _ = r.Register(context.Background(), "run-1", "book-1")
	r.Finish("run-1", StatusCompleted)

	// Queryable within the grace window.
	if _, err := r.Status("run-1"); err != nil {
		t.Fatalf("Status() inside retention window error = %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if _, err := r.Status("run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after retention, got %v", err)
	}
}
