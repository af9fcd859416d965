package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewProviderPresets(t *testing.T) {
	tests := []struct {
		provider    string
		baseURL     string
		model       string
		nativeEmbed bool
	}{
		{"ollama", "http://localhost:11434", "", true},
		{"openai", "https://api.openai.com", "text-embedding-3-small", false},
		{"groq", "https://api.groq.com/openai", "llama-3.3-70b-versatile", false},
		{"custom", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider})
			if err != nil {
				t.Fatalf("NewProvider(%q) returned error: %v", tt.provider, err)
			}
			c, ok := p.(*client)
			if !ok {
				t.Fatalf("NewProvider(%q) type = %T, want *llm.client", tt.provider, p)
			}
			if c.cfg.BaseURL != tt.baseURL {
				t.Errorf("BaseURL = %q, want %q", c.cfg.BaseURL, tt.baseURL)
			}
			if c.cfg.Model != tt.model {
				t.Errorf("Model = %q, want %q", c.cfg.Model, tt.model)
			}
			if c.nativeEmbed != tt.nativeEmbed {
				t.Errorf("nativeEmbed = %v, want %v", c.nativeEmbed, tt.nativeEmbed)
			}
			if c.http.Timeout != defaultTimeout {
				t.Errorf("timeout = %v, want %v", c.http.Timeout, defaultTimeout)
			}
			if c.backoff.retries != defaultMaxRetries {
				t.Errorf("retries = %d, want %d", c.backoff.retries, defaultMaxRetries)
			}
		})
	}
}

func TestNewProviderKeepsOverrides(t *testing.T) {
	p, err := NewProvider(Config{
		Provider: "groq",
		BaseURL:  "http://proxy:8080",
		Model:    "llama-3.1-8b-instant",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	c := p.(*client)
	if c.cfg.BaseURL != "http://proxy:8080" || c.cfg.Model != "llama-3.1-8b-instant" {
		t.Errorf("cfg = %+v, want overrides kept", c.cfg)
	}
	if c.http.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.http.Timeout)
	}
}

func TestNewProviderEmpty(t *testing.T) {
	_, err := NewProvider(Config{Model: "test-model"})
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v, want %v", err, ErrNoProvider)
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(Config{Provider: "gemini"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v, want %v", err, ErrUnknownProvider)
	}
	if !strings.Contains(err.Error(), "gemini") {
		t.Errorf("error %q does not name the provider", err)
	}
}

func TestChatSendsAuthAndDecodes(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request, req ChatRequest) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		if req.Model != "m" {
			t.Errorf("model = %q, want configured model", req.Model)
		}
		reply(w, "Hawthorn suits a hedge.")
	})

	p := customProvider(t, Config{BaseURL: srv.URL, Model: "m", APIKey: "sk-test"})
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	want := ChatResponse{Content: "Hawthorn suits a hedge.", Model: "m", FinishReason: "stop", PromptTokens: 9, CompletionTokens: 3}
	if *resp != want {
		t.Errorf("response = %+v, want %+v", *resp, want)
	}
}

func TestChatWithoutKeyOmitsAuth(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request, _ ChatRequest) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want none", got)
		}
		reply(w, "ok")
	})
	if _, err := customProvider(t, Config{BaseURL: srv.URL}).Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
}

func TestChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := customProvider(t, Config{BaseURL: srv.URL}).Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want %v", err, ErrEmptyResponse)
	}
}

func TestRetryOnServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request, _ ChatRequest) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		reply(w, "ok")
	})

	p := customProvider(t, Config{BaseURL: srv.URL, RetryDelay: time.Millisecond})
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want ok", resp.Content)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestNoRetryOnBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request, _ ChatRequest) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	})

	p := customProvider(t, Config{BaseURL: srv.URL, RetryDelay: time.Millisecond})
	_, err := p.Chat(context.Background(), ChatRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Body, "bad model") {
		t.Errorf("APIError = %d %q", apiErr.StatusCode, apiErr.Body)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request, _ ChatRequest) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	})

	p := customProvider(t, Config{BaseURL: srv.URL, MaxRetries: 2, RetryDelay: time.Millisecond})
	_, err := p.Chat(context.Background(), ChatRequest{})
	if err == nil || !strings.Contains(err.Error(), "retries exhausted") {
		t.Fatalf("err = %v, want retries exhausted", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
	if got := classifyError(err); got != "server" {
		t.Errorf("classifyError = %q, want server", got)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request, _ ChatRequest) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p := customProvider(t, Config{BaseURL: srv.URL, RetryDelay: time.Hour})
	_, err := p.Chat(ctx, ChatRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := backoff{retries: 3, base: time.Second}
	tooMany := func(retryAfter string) *http.Response {
		h := http.Header{}
		if retryAfter != "" {
			h.Set("Retry-After", retryAfter)
		}
		return &http.Response{StatusCode: http.StatusTooManyRequests, Header: h}
	}

	tests := []struct {
		name string
		n    int
		resp *http.Response
		want time.Duration
	}{
		{"transport error", 1, nil, time.Second},
		{"third retry", 3, nil, 4 * time.Second},
		{"bad gateway", 2, &http.Response{StatusCode: http.StatusBadGateway}, 2 * time.Second},
		{"retry after", 1, tooMany("7"), 7 * time.Second},
		{"rate limit floor", 1, tooMany(""), 5 * time.Second},
		{"unparsable retry after", 2, tooMany("soon"), 10 * time.Second},
	}
	for _, tt := range tests {
		if got := b.delay(tt.n, tt.resp); got != tt.want {
			t.Errorf("%s: delay = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	for _, code := range []int{429, 502, 503, 504} {
		if !retryable(code) {
			t.Errorf("retryable(%d) = false", code)
		}
	}
	for _, code := range []int{400, 401, 404, 500} {
		if retryable(code) {
			t.Errorf("retryable(%d) = true", code)
		}
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[2,2],"index":1},{"embedding":[1,1],"index":0}]}`))
	}))
	defer srv.Close()

	out, err := customProvider(t, Config{BaseURL: srv.URL}).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if want := [][]float32{{1, 1}, {2, 2}}; !reflect.DeepEqual(out, want) {
		t.Errorf("vectors = %v, want %v", out, want)
	}
}

func TestEmbedMissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,1],"index":0}]}`))
	}))
	defer srv.Close()

	if _, err := customProvider(t, Config{BaseURL: srv.URL}).Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected an error for a missing vector")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	out, err := customProvider(t, Config{BaseURL: "http://unused.invalid"}).Embed(context.Background(), nil)
	if err != nil || out != nil {
		t.Errorf("Embed(nil) = %v, %v; want nil, nil", out, err)
	}
}

func TestOllamaNativeEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s, want /api/embed", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.25]]}`))
	}))
	defer srv.Close()

	p, err := NewProvider(Config{Provider: "ollama", BaseURL: srv.URL, Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	out, err := p.Embed(context.Background(), []string{"kale"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if want := [][]float32{{0.5, 0.25}}; !reflect.DeepEqual(out, want) {
		t.Errorf("vectors = %v, want %v", out, want)
	}
}

func TestOllamaEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.25]]}`))
	}))
	defer srv.Close()

	p, err := NewProvider(Config{Provider: "ollama", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, err := p.Embed(context.Background(), []string{"kale", "leek"}); err == nil {
		t.Error("expected an error when fewer vectors than texts come back")
	}
}
