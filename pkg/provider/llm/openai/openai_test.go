package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/cantor/pkg/provider/llm"
)

const marked = "In the beginning, [pause] God created the heavens and the earth."

// chatServer answers /v1/chat/completions with the given finish reason and
// records the last request body.
func chatServer(t *testing.T, status int, finish string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"model not loaded","type":"invalid_request_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "qwen2.5",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": marked},
				"finish_reason": finish,
			}},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 20, "total_tokens": 140},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestComplete_SelfHosted(t *testing.T) {
	t.Parallel()

	srv, got := chatServer(t, http.StatusOK, "stop")
	p, err := New("", "qwen2.5", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Return the text with tags only.",
		Messages:     []llm.Message{{Role: "user", Content: "pause before God"}},
		MaxTokens:    1024,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != marked || resp.Usage.TotalTokens != 140 {
		t.Errorf("response = %+v", resp)
	}

	msgs, _ := (*got)["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want system + user", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message = %v", first)
	}
	if (*got)["model"] != "qwen2.5" || (*got)["max_completion_tokens"] != float64(1024) {
		t.Errorf("request = %v", *got)
	}
}

func TestComplete_Truncated(t *testing.T) {
	t.Parallel()

	srv, _ := chatServer(t, http.StatusOK, "length")
	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestComplete_Errors(t *testing.T) {
	t.Parallel()

	srv, _ := chatServer(t, http.StatusBadRequest, "")
	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "x"}}}); err == nil {
		t.Error("expected error for a 400 response")
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: "tool", Content: "x"}}}); err == nil {
		t.Error("expected error for an unknown role")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		opts  []Option
		want  int
	}{
		{model: "gpt-4o-mini", want: 16_384},
		{model: "GPT-4-Turbo", want: 4_096},
		{model: "o3-mini", want: 100_000},
		{model: "llama-3.1-8b", want: 2_048},
		{model: "llama-3.1-8b", opts: []Option{WithCapabilities(llm.ModelCapabilities{ContextWindow: 131_072, MaxOutputTokens: 8_192})}, want: 8_192},
	}
	for _, tt := range tests {
		p, err := New("sk-test", tt.model, tt.opts...)
		if err != nil {
			t.Fatal(err)
		}
		if got := p.Capabilities().MaxOutputTokens; got != tt.want {
			t.Errorf("%s: MaxOutputTokens = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error without key or base URL")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("", "qwen2.5", WithBaseURL("http://localhost:8000/v1")); err != nil {
		t.Errorf("self-hosted without key: %v", err)
	}
}
