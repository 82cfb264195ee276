package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rowanlight/dramatis/internal/config"
	"github.com/rowanlight/dramatis/internal/intake"
	"github.com/rowanlight/dramatis/internal/pipeline"
	"github.com/rowanlight/dramatis/internal/runs"
	"github.com/rowanlight/dramatis/internal/svcctx"
)

func newTestServer(t *testing.T) (*Server, *runs.Registry) {
	t.Helper()
	reg := runs.NewRegistry(time.Second)
	s, err := New(Config{Registry: reg})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, reg
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, reg *runs.Registry, runID string) context.Context {
	t.Helper()
	ctx, err := reg.Register(context.Background(), runID, "book-1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return ctx
}

func TestHealth(t *testing.T) {
	s, reg := newTestServer(t)
	register(t, reg, "r1")

	rec := do(t, s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.LiveRuns != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListRuns(t *testing.T) {
	s, reg := newTestServer(t)

	t.Run("empty list is an array", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/runs")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Body.String(); !json.Valid([]byte(got)) {
			t.Fatalf("invalid json: %s", got)
		}
		var resp RunListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Runs == nil || len(resp.Runs) != 0 {
			t.Errorf("runs = %v", resp.Runs)
		}
	})

	t.Run("lists registered runs", func(t *testing.T) {
		register(t, reg, "r1")
		register(t, reg, "r2")

		rec := do(t, s, http.MethodGet, "/runs")
		var resp RunListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Runs) != 2 {
			t.Errorf("runs = %d, want 2", len(resp.Runs))
		}
	})
}

func TestRunStatus(t *testing.T) {
	s, reg := newTestServer(t)
	register(t, reg, "r1")
	reg.Start("r1")

	t.Run("found", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/runs/r1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var info runs.Info
		if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if info.ID != "r1" || info.Status != runs.StatusRunning {
			t.Errorf("info = %+v", info)
		}
	})

	t.Run("unknown is 404", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/runs/nope")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestCancelRun(t *testing.T) {
	s, reg := newTestServer(t)

	t.Run("live run", func(t *testing.T) {
		ctx := register(t, reg, "r1")
		rec := do(t, s, http.MethodPost, "/runs/r1/cancel")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp CancelResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !resp.Cancelled {
			t.Error("expected cancelled=true")
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Error("run context not cancelled")
		}
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/runs/nope/cancel")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("terminal run reports not cancelled", func(t *testing.T) {
		register(t, reg, "r2")
		reg.Start("r2")
		reg.Finish("r2", runs.StatusCompleted)

		rec := do(t, s, http.MethodPost, "/runs/r2/cancel")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp CancelResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Cancelled {
			t.Error("terminal run reported cancellable")
		}
	})
}

type stubRunner struct{}

func (stubRunner) Execute(context.Context, *pipeline.State) error { return nil }

func doBody(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubmitRun(t *testing.T) {
	reg := runs.NewRegistry(time.Minute)
	launcher := intake.NewLauncher(reg, stubRunner{}, nil, nil, nil)
	s, err := New(Config{Registry: reg, Services: &svcctx.Services{Launcher: launcher}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Run("accepted", func(t *testing.T) {
		rec := doBody(t, s, http.MethodPost, "/runs", `{"bookId":"b1","chunkSource":"some text"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp SubmitResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.RunID == "" || resp.BookID != "b1" {
			t.Errorf("resp = %+v", resp)
		}
		if _, err := reg.Status(resp.RunID); err != nil {
			t.Errorf("run not registered: %v", err)
		}
	})

	t.Run("invalid payload", func(t *testing.T) {
		rec := doBody(t, s, http.MethodPost, "/runs", `{"chunkSource":"no book id"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("duplicate run id conflicts", func(t *testing.T) {
		body := `{"runId":"dup-1","bookId":"b2","chunkSource":"text"}`
		if rec := doBody(t, s, http.MethodPost, "/runs", body); rec.Code != http.StatusAccepted {
			t.Fatalf("first submit status = %d", rec.Code)
		}
		if rec := doBody(t, s, http.MethodPost, "/runs", body); rec.Code != http.StatusConflict {
			t.Errorf("second submit status = %d, want 409", rec.Code)
		}
	})

	t.Run("no launcher is 503", func(t *testing.T) {
		bare, err := New(Config{Registry: reg})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		rec := doBody(t, bare, http.MethodPost, "/runs", `{"bookId":"b3","chunkSource":"text"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestSettingsEndpoints(t *testing.T) {
	reg := runs.NewRegistry(time.Minute)
	settings := config.NewStore(filepath.Join(t.TempDir(), "settings.yaml"))
	s, err := New(Config{Registry: reg, Services: &svcctx.Services{Settings: settings}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Run("put and get", func(t *testing.T) {
		rec := doBody(t, s, http.MethodPut, "/settings/analysis.note", `{"value":"tuned"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("put status = %d, body = %s", rec.Code, rec.Body.String())
		}

		rec = do(t, s, http.MethodGet, "/settings/analysis.note")
		if rec.Code != http.StatusOK {
			t.Fatalf("get status = %d", rec.Code)
		}
		var resp SettingResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Value != "tuned" {
			t.Errorf("value = %v", resp.Value)
		}
	})

	t.Run("list", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/settings")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp SettingsListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if _, ok := resp.Settings["analysis.note"]; !ok {
			t.Errorf("settings = %v", resp.Settings)
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec := do(t, s, http.MethodDelete, "/settings/analysis.note")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete status = %d", rec.Code)
		}
		rec = do(t, s, http.MethodGet, "/settings/analysis.note")
		if rec.Code != http.StatusNotFound {
			t.Errorf("get after delete status = %d, want 404", rec.Code)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		rec := doBody(t, s, http.MethodPut, "/settings/bad%20key", `{"value":1}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("no store is 503", func(t *testing.T) {
		bare, err := New(Config{Registry: reg})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		rec := do(t, bare, http.MethodGet, "/settings")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestCancelAll(t *testing.T) {
	s, reg := newTestServer(t)
	register(t, reg, "r1")
	register(t, reg, "r2")
	register(t, reg, "r3")

	rec := do(t, s, http.MethodPost, "/runs/cancel-all")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp CancelAllResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cancelled != 3 {
		t.Errorf("cancelled = %d, want 3", resp.Cancelled)
	}
}
