package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"homework-mentor/api/internal/llm"
	"homework-mentor/api/internal/util"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

func New(key, model string) *Engine {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 60 * time.Second
	rc.Logger = slog.Default()
	return &Engine{
		APIKey:  key,
		Model:   model,
		BaseURL: DefaultBaseURL,
		httpc:   rc.StandardClient(),
	}
}

// WithHTTPClient replaces the retrying client, mostly for tests.
func (e *Engine) WithHTTPClient(h *http.Client) *Engine {
	e.httpc = h
	return e
}

func (e *Engine) Name() string { return "gpt" }

func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Solve(ctx context.Context, t llm.Task) (llm.Solution, error) {
	if e.APIKey == "" {
		return llm.Solution{}, fmt.Errorf("openai: %w", llm.ErrInvalidAPIKey)
	}

	payload, err := json.Marshal(e.requestBody(t))
	if err != nil {
		return llm.Solution{}, err
	}

	url := strings.TrimRight(e.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return llm.Solution{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return llm.Solution{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return llm.Solution{}, fmt.Errorf("openai: %w", llm.ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return llm.Solution{}, fmt.Errorf("openai solve %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return llm.Solution{}, fmt.Errorf("openai solve: bad JSON: %w", err)
	}
	if len(raw.Choices) == 0 {
		return llm.Solution{}, fmt.Errorf("openai solve: empty response")
	}
	out := util.StripCodeFences(raw.Choices[0].Message.Content)
	if out == "" {
		return llm.Solution{}, fmt.Errorf("openai solve: empty content")
	}
	return llm.Solution{Text: out, Engine: e.Name(), Model: e.Model}, nil
}

func (e *Engine) requestBody(t llm.Task) map[string]any {
	content := []any{
		map[string]any{"type": "text", "text": llm.UserPrompt(t)},
	}
	if t.HasFile() {
		a := t.Attachment
		dataURL := util.MakeDataURL(a.MimeType, a.Data)
		if strings.HasPrefix(a.MimeType, "image/") {
			content = append(content, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": dataURL, "detail": "high"},
			})
		} else {
			name := a.Filename
			if name == "" {
				name = "homework.pdf"
			}
			content = append(content, map[string]any{
				"type": "file",
				"file": map[string]any{"filename": name, "file_data": dataURL},
			})
		}
	}
	return map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": llm.SystemPrompt(t.Language)},
			map[string]any{"role": "user", "content": content},
		},
		"temperature": llm.Temperature,
		"max_tokens":  llm.MaxTokens,
	}
}
