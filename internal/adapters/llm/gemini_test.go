package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiReply(text string) map[string]any {
	return map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
			"finishReason": "STOP",
		}},
	}
}

func geminiServer(t *testing.T, rec *recorded, text string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent") {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec.add(body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geminiReply(text))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestGemini_RequestsJSONOutput(t *testing.T) {
	rec := &recorded{}
	ts := geminiServer(t, rec, `{"count": 1200, "confidence": 0.7}`)

	g, err := NewGemini(context.Background(), "test-key", ts.URL, "gemini-test", 256, 0.2)
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	if g.Name() != "gemini:gemini-test" {
		t.Fatalf("Name = %q", g.Name())
	}
	got, err := g.Complete(context.Background(), "count the people")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(got, `"count": 1200`) {
		t.Fatalf("unexpected text %q", got)
	}

	reqs := rec.all()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	gc, _ := reqs[0]["generationConfig"].(map[string]any)
	if gc["responseMimeType"] != "application/json" {
		t.Fatalf("generationConfig = %v, want responseMimeType application/json", gc)
	}
	if gc["maxOutputTokens"] != float64(256) {
		t.Fatalf("maxOutputTokens = %v, want 256", gc["maxOutputTokens"])
	}
}

func TestGemini_BlankReplyIsEmptyResponse(t *testing.T) {
	ts := geminiServer(t, &recorded{}, "   ")

	g, err := NewGemini(context.Background(), "test-key", ts.URL, "gemini-test", 0, 0)
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	if _, err := g.Complete(context.Background(), "count the people"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}
