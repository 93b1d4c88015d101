package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestOpenRouter(t *testing.T, handler http.Handler) *OpenRouter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewOpenRouter("key-123", "")
	if err != nil {
		t.Fatalf("new openrouter: %v", err)
	}
	c.BaseURL = srv.URL
	return c
}

func TestNewOpenRouterDefaults(t *testing.T) {
	if _, err := NewOpenRouter("", "m"); err == nil {
		t.Fatalf("expected error for missing api key")
	}
	c, err := NewOpenRouter("key", "")
	if err != nil {
		t.Fatalf("new openrouter: %v", err)
	}
	if c.Model != "openai/gpt-5" {
		t.Fatalf("default model = %q", c.Model)
	}
}

func TestCompleteSendsChatRequest(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	c := newTestOpenRouter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"message": map[string]any{"role": "assistant", "content": `{"category":"spam"}`},
			}},
		})
	}))

	got, err := c.Complete(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if got != `{"category":"spam"}` {
		t.Fatalf("content = %q", got)
	}
	if gotAuth != "Bearer key-123" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody["model"] != "openai/gpt-5" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	msgs := gotBody["messages"].([]any)
	first := msgs[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "classify this" {
		t.Fatalf("message = %v", first)
	}
}

func TestCompleteRejectsEmptyPrompt(t *testing.T) {
	c := newTestOpenRouter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	}))
	if _, err := c.Complete(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
}

func TestCompleteSurfacesHTTPError(t *testing.T) {
	c := newTestOpenRouter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"rate limited"}`)
	}))
	_, err := c.Complete(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error = %v", err)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	c := newTestOpenRouter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	if _, err := c.Complete(context.Background(), "prompt"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
