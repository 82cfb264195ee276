package providers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseStructuredJSON(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		raw, err := parseStructuredJSON(`{"title": "The Cairo Trilogy"}`)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("result is not JSON: %v", err)
		}
		if doc["title"] != "The Cairo Trilogy" {
			t.Errorf("title = %v", doc["title"])
		}
	})

	t.Run("code fenced", func(t *testing.T) {
		content := "```json\n{\"names\": [\"Amina\"]}\n```"
		raw, err := parseStructuredJSON(content)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if !strings.Contains(string(raw), "Amina") {
			t.Errorf("result = %s", raw)
		}
	})

	t.Run("surrounding prose", func(t *testing.T) {
		content := `Here is the result: {"quality": 0.7} Hope that helps.`
		raw, err := parseStructuredJSON(content)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if !strings.Contains(string(raw), "0.7") {
			t.Errorf("result = %s", raw)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := parseStructuredJSON("   "); err == nil {
			t.Error("expected error for empty content")
		}
	})

	t.Run("not json", func(t *testing.T) {
		if _, err := parseStructuredJSON("no structured data here"); err == nil {
			t.Error("expected error for non-JSON content")
		}
	})
}

func TestValidateStructuredJSON(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"names": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["names"]
	}`)

	t.Run("valid", func(t *testing.T) {
		if err := validateStructuredJSON(schema, json.RawMessage(`{"names": ["Kamal"]}`)); err != nil {
			t.Errorf("unexpected validation error: %v", err)
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		if err := validateStructuredJSON(schema, json.RawMessage(`{"other": 1}`)); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		if err := validateStructuredJSON(schema, json.RawMessage(`{"names": "Kamal"}`)); err == nil {
			t.Error("expected validation error for non-array names")
		}
	})

	t.Run("empty schema skips", func(t *testing.T) {
		if err := validateStructuredJSON(nil, json.RawMessage(`{"anything": true}`)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows burst up to limit", func(t *testing.T) {
		rl := NewRateLimiter(60)
		ctx := context.Background()
		for i := 0; i < 10; i++ {
			if err := rl.Wait(ctx); err != nil {
				t.Fatalf("wait %d failed: %v", i, err)
			}
		}
		status := rl.Status()
		if status.TotalConsumed != 10 {
			t.Errorf("TotalConsumed = %d, want 10", status.TotalConsumed)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(1)
		ctx := context.Background()
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("first wait failed: %v", err)
		}

		cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if err := rl.Wait(cancelled); err == nil {
			t.Error("expected context error while waiting for refill")
		}
	})
}

func TestMockClient(t *testing.T) {
	ctx := context.Background()

	t.Run("text response", func(t *testing.T) {
		client := NewMockClient()
		client.ResponseText = "hello"

		result, err := client.Chat(ctx, &ChatRequest{
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("chat failed: %v", err)
		}
		if !result.Success || result.Content != "hello" {
			t.Errorf("result = %+v", result)
		}
		if client.RequestCount() != 1 {
			t.Errorf("RequestCount = %d", client.RequestCount())
		}
	})

	t.Run("scripted structured responses", func(t *testing.T) {
		client := NewMockClient().Script(
			json.RawMessage(`{"step": 1}`),
			json.RawMessage(`{"step": 2}`),
		)
		req := &ChatRequest{
			Messages:       []Message{{Role: "user", Content: "go"}},
			ResponseFormat: &ResponseFormat{Name: "step"},
		}

		first, err := client.Chat(ctx, req)
		if err != nil {
			t.Fatalf("chat failed: %v", err)
		}
		second, err := client.Chat(ctx, req)
		if err != nil {
			t.Fatalf("chat failed: %v", err)
		}
		if string(first.ParsedJSON) != `{"step": 1}` || string(second.ParsedJSON) != `{"step": 2}` {
			t.Errorf("scripted responses out of order: %s then %s", first.ParsedJSON, second.ParsedJSON)
		}
	})

	t.Run("fail after N", func(t *testing.T) {
		client := NewMockClient()
		client.FailAfter = 1

		if _, err := client.Chat(ctx, &ChatRequest{}); err != nil {
			t.Fatalf("first request should succeed: %v", err)
		}
		result, err := client.Chat(ctx, &ChatRequest{})
		if err == nil {
			t.Fatal("second request should fail")
		}
		if result.ErrorType != ErrorTypeServer {
			t.Errorf("ErrorType = %q", result.ErrorType)
		}
	})
}

func TestTransientError(t *testing.T) {
	transient := []string{ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServer}
	for _, typ := range transient {
		if !TransientError(typ) {
			t.Errorf("TransientError(%q) = false", typ)
		}
	}
	for _, typ := range []string{ErrorTypeBadRequest, ErrorTypeParse, ""} {
		if TransientError(typ) {
			t.Errorf("TransientError(%q) = true", typ)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter("3"); d != 3*time.Second {
		t.Errorf("parseRetryAfter(3) = %v", d)
	}
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("parseRetryAfter(empty) = %v", d)
	}
	if d := parseRetryAfter("garbage"); d != 0 {
		t.Errorf("parseRetryAfter(garbage) = %v", d)
	}
}
