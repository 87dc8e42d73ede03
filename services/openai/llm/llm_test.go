package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"voicedoc/core"
	"voicedoc/services/openai/llm"
)

func newService(t *testing.T, handler http.HandlerFunc) *llm.OpenAILLMService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := llm.NewOpenAILLMService(llm.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "qwen/qwen3-32b",
	}, core.NewDevelopmentLogger(io.Discard, core.LevelInfo))
	if err != nil {
		t.Fatalf("NewOpenAILLMService: %v", err)
	}
	return svc
}

var headache = []core.CompletionMessage{
	{Role: core.CompletionRoleSystem, Content: "You are the doctor of the city."},
	{Role: core.CompletionRoleUser, Content: "I have a headache"},
}

func TestCompleteSendsOrderedMessages(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Take rest and hydrate."},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`)
	})

	reply, err := svc.Complete(context.Background(), headache)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "Take rest and hydrate." {
		t.Errorf("reply = %q", reply)
	}
	if got.Model != "qwen/qwen3-32b" || got.MaxTokens != 500 || got.Temperature != 0.7 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "I have a headache" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestCompleteClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`, core.ErrCompletionUnavailable},
		{"server error", http.StatusBadGateway, `{"error":{"message":"upstream","type":"server_error"}}`, core.ErrCompletionUnavailable},
		{"no choices", http.StatusOK, `{"id":"c1","choices":[]}`, core.ErrCompletionMalformed},
		{"empty content", http.StatusOK, `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"  "},"finish_reason":"length"}]}`, core.ErrCompletionMalformed},
		{"garbage body", http.StatusOK, `<html>oops</html>`, core.ErrCompletionMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := svc.Complete(context.Background(), headache)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompleteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc, err := llm.NewOpenAILLMService(llm.Config{APIKey: "k", BaseURL: url}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(context.Background(), headache); !errors.Is(err, core.ErrCompletionUnavailable) {
		t.Errorf("err = %v, want ErrCompletionUnavailable", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := llm.NewOpenAILLMService(llm.Config{}, nil); err == nil {
		t.Fatal("expected error without api key")
	}
}
