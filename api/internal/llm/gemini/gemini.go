package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"homework-mentor/api/internal/llm"
	"homework-mentor/api/internal/util"
)

const attempts = 3

var backoff = 300 * time.Millisecond

type Engine struct {
	APIKey string
	Model  string

	// extra client options, e.g. an endpoint override
	opts []option.ClientOption
}

func New(apiKey, model string, opts ...option.ClientOption) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
		opts:   opts,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Solve(ctx context.Context, t llm.Task) (llm.Solution, error) {
	if e.APIKey == "" {
		return llm.Solution{}, fmt.Errorf("gemini: %w", llm.ErrInvalidAPIKey)
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(e.APIKey)}, e.opts...)...)
	if err != nil {
		return llm.Solution{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	configure(m, t.Language)
	parts := userParts(t)

	resp, err := generate(ctx, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return m.GenerateContent(ctx, parts...)
	})
	if err != nil {
		return llm.Solution{}, fmt.Errorf("gemini solve: %w", err)
	}
	txt := util.StripCodeFences(firstText(resp))
	if txt == "" {
		return llm.Solution{}, errors.New("gemini solve: empty response")
	}
	return llm.Solution{Text: txt, Engine: e.Name(), Model: e.Model}, nil
}

// generate calls fn up to attempts times with a growing pause between tries.
// A cancelled ctx ends the wait at once.
func generate(ctx context.Context, fn func(context.Context) (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}
	return nil, lastErr
}

func configure(m *genai.GenerativeModel, lang string) {
	m.SetTemperature(llm.Temperature)
	m.SetMaxOutputTokens(llm.MaxTokens)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.SystemPrompt(lang))},
	}
}

func userParts(t llm.Task) []genai.Part {
	parts := []genai.Part{genai.Text(llm.UserPrompt(t))}
	if t.HasFile() {
		parts = append(parts, &genai.Blob{MIMEType: t.Attachment.MimeType, Data: t.Attachment.Data})
	}
	return parts
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}
