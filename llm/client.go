package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 120 * time.Second

// APIError is a non-200 response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: API error %d: %s", e.StatusCode, e.Body)
}

// client speaks the OpenAI chat and embedding protocol.
type client struct {
	cfg         Config
	http        *http.Client
	backoff     backoff
	nativeEmbed bool
}

func newClient(cfg Config, nativeEmbed bool) *client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		// Local servers may load the model on the first request.
		timeout = defaultTimeout
	}
	return &client{
		cfg:         cfg,
		http:        &http.Client{Timeout: timeout},
		backoff:     newBackoff(cfg),
		nativeEmbed: nativeEmbed,
	}
}

type chatCompletion struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	var out chatCompletion
	if err := c.post(ctx, "/v1/chat/completions", req, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}
	return &ChatResponse{
		Content:          out.Choices[0].Message.Content,
		Model:            out.Model,
		FinishReason:     out.Choices[0].FinishReason,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

func (c *client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := embedRequest{Model: c.cfg.Model, Input: texts}

	var vecs [][]float32
	if c.nativeEmbed {
		// Ollama's batch endpoint answers in input order.
		var out struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := c.post(ctx, "/api/embed", req, &out); err != nil {
			return nil, err
		}
		vecs = out.Embeddings
	} else {
		var out struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			} `json:"data"`
		}
		if err := c.post(ctx, "/v1/embeddings", req, &out); err != nil {
			return nil, err
		}
		// Entries may arrive out of order.
		vecs = make([][]float32, len(texts))
		for _, d := range out.Data {
			if d.Index >= 0 && d.Index < len(vecs) {
				vecs[d.Index] = d.Embedding
			}
		}
	}

	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("llm: %d embeddings for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("llm: no embedding for text %d", i)
		}
	}
	return vecs, nil
}

// post sends body as JSON to path and decodes a 200 answer into out.
// Transport errors and retryable statuses are retried with backoff.
func (c *client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := c.cfg.BaseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.backoff.retries; attempt++ {
		raw, resp, err := c.do(ctx, url, data)
		switch {
		case err == nil:
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("llm: decoding %s response: %w", path, err)
			}
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}

		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !retryable(apiErr.StatusCode) {
			return err
		}
		if attempt == c.backoff.retries {
			break
		}
		wait := c.backoff.delay(attempt+1, resp)
		slog.Warn("llm: retrying request",
			"url", url,
			"attempt", attempt+1,
			"delay", wait,
			"error", err)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("llm: retries exhausted: %w", lastErr)
}

// do performs one request. A non-200 answer is an *APIError returned with
// the response so the caller can read its headers.
func (c *client) do(ctx context.Context, url string, data []byte) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("llm: request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, fmt.Errorf("llm: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, resp, nil
}
