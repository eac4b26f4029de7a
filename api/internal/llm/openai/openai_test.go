package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homework-mentor/api/internal/llm"
)

func newTestEngine(url string) *Engine {
	e := New("sk-test", "gpt-4o-mini").WithHTTPClient(&http.Client{})
	e.BaseURL = url
	return e
}

func TestSolve_SendsPromptAndAttachment(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Step 1: x = 5"}}]}`))
	}))
	defer srv.Close()

	sol, err := newTestEngine(srv.URL).Solve(context.Background(), llm.Task{
		Subject:    "math",
		Language:   "es",
		Attachment: &llm.Attachment{Data: []byte{1, 2, 3}, MimeType: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, llm.Solution{Text: "Step 1: x = 5", Engine: "gpt", Model: "gpt-4o-mini"}, sol)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.EqualValues(t, 1000, body["max_tokens"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.SystemPrompt("es"), msgs[0].(map[string]any)["content"])
	parts := msgs[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	assert.Equal(t, "data:image/png;base64,AQID", img["image_url"].(map[string]any)["url"])
}

func TestSolve_PDFAsFilePart(t *testing.T) {
	e := New("k", "m")
	body := e.requestBody(llm.Task{
		Language:   "en",
		Attachment: &llm.Attachment{Data: []byte("%PDF-"), MimeType: "application/pdf", Filename: "hw.pdf"},
	})
	parts := body["messages"].([]any)[1].(map[string]any)["content"].([]any)
	file := parts[1].(map[string]any)
	assert.Equal(t, "file", file["type"])
	assert.Equal(t, "hw.pdf", file["file"].(map[string]any)["filename"])
}

func TestSolve_Errors(t *testing.T) {
	_, err := New("", "m").Solve(context.Background(), llm.Task{Text: "q"})
	assert.ErrorIs(t, err, llm.ErrInvalidAPIKey)

	status := http.StatusUnauthorized
	body := `{"error":{"message":"bad key"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err = newTestEngine(srv.URL).Solve(context.Background(), llm.Task{Text: "q"})
	assert.ErrorIs(t, err, llm.ErrInvalidAPIKey)

	status, body = http.StatusBadRequest, `{"error":{"message":"context too long"}}`
	_, err = newTestEngine(srv.URL).Solve(context.Background(), llm.Task{Text: "q"})
	assert.ErrorContains(t, err, "openai solve 400")

	status, body = http.StatusOK, `{"choices":[]}`
	_, err = newTestEngine(srv.URL).Solve(context.Background(), llm.Task{Text: "q"})
	assert.ErrorContains(t, err, "empty response")
}
