package solver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homework-mentor/api/internal/submission"
)

type captured struct {
	text, language, subject, engine string
	filename, fileType              string
	file                            []byte
	hasFile                         bool
}

func homeworkServer(t *testing.T, status int, body string, got *captured) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, HomeworkPath, r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if got != nil {
			got.text = r.FormValue(FieldText)
			got.language = r.FormValue(FieldLanguage)
			got.subject = r.FormValue(FieldSubject)
			got.engine = r.FormValue(FieldEngine)
			_, present := r.MultipartForm.Value[FieldText]
			assert.True(t, present, "text field must always be sent")
			if f, h, err := r.FormFile(FieldFile); err == nil {
				got.hasFile = true
				got.filename = h.Filename
				got.fileType = h.Header.Get("Content-Type")
				got.file, _ = io.ReadAll(f)
				f.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

func fileRequest(t *testing.T, data []byte) submission.Request {
	t.Helper()
	var sel submission.Selector
	require.NoError(t, sel.SelectFile(submission.FileInput{Bytes: data, Filename: "hw.pdf", MimeType: submission.MimePDF}))
	return submission.Request{ID: uuid.New(), Input: sel.Input(), LanguageTag: "es", Subject: "math"}
}

func textRequest(text string) submission.Request {
	var sel submission.Selector
	sel.SelectText(text)
	return submission.Request{ID: uuid.New(), Input: sel.Input(), LanguageTag: "en"}
}

type progressLog struct {
	mu    sync.Mutex
	items []submission.Progress
}

func (p *progressLog) add(pr submission.Progress) {
	p.mu.Lock()
	p.items = append(p.items, pr)
	p.mu.Unlock()
}

func TestSolve_FileUpload(t *testing.T) {
	var got captured
	srv := homeworkServer(t, http.StatusOK, `{"message":"Homework received successfully","solution":"x=5","language":"es"}`, &got)
	defer srv.Close()

	data := bytes.Repeat([]byte("%PDF-1.4 "), 4096)
	c := New(srv.URL+"/", WithEngine("gemini"))
	plog := &progressLog{}

	resp, err := c.Solve(context.Background(), fileRequest(t, data), plog.add)
	require.NoError(t, err)
	assert.Equal(t, "x=5", resp.Solution)

	assert.True(t, got.hasFile)
	assert.Equal(t, "hw.pdf", got.filename)
	assert.Equal(t, submission.MimePDF, got.fileType)
	assert.Equal(t, data, got.file)
	assert.Equal(t, "", got.text)
	assert.Equal(t, "es", got.language)
	assert.Equal(t, "math", got.subject)
	assert.Equal(t, "gemini", got.engine)

	require.NotEmpty(t, plog.items)
	last := plog.items[len(plog.items)-1]
	assert.True(t, last.Complete)
	assert.Equal(t, last.Total, last.Sent)
	var prev int64
	for _, p := range plog.items {
		assert.GreaterOrEqual(t, p.Sent, prev)
		prev = p.Sent
	}
}

func TestSolve_TextOnly(t *testing.T) {
	var got captured
	srv := homeworkServer(t, http.StatusOK, `{"solution":"2+2=4"}`, &got)
	defer srv.Close()

	resp, err := New(srv.URL).Solve(context.Background(), textRequest("what is 2+2?"), nil)
	require.NoError(t, err)
	assert.Equal(t, "2+2=4", resp.Solution)
	assert.False(t, got.hasFile)
	assert.Equal(t, "what is 2+2?", got.text)
	assert.Equal(t, "en", got.language)
	assert.Empty(t, got.subject)
	assert.Empty(t, got.engine)
}

func TestSolve_ServiceError(t *testing.T) {
	srv := homeworkServer(t, http.StatusInternalServerError, `{"error":"Error processing request: quota"}`, nil)
	defer srv.Close()

	_, err := New(srv.URL).Solve(context.Background(), textRequest("q"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, submission.ErrService)

	var se *submission.SubmitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "Error processing request: quota", se.Message)
}

func TestSolve_ServiceErrorWithoutJSON(t *testing.T) {
	srv := homeworkServer(t, http.StatusBadGateway, `<html>bad gateway</html>`, nil)
	defer srv.Close()

	_, err := New(srv.URL).Solve(context.Background(), textRequest("q"), nil)
	assert.ErrorIs(t, err, submission.ErrService)
	var se *submission.SubmitError
	require.ErrorAs(t, err, &se)
	assert.Empty(t, se.Message)
}

func TestSolve_MalformedBody(t *testing.T) {
	srv := homeworkServer(t, http.StatusOK, `not json`, nil)
	defer srv.Close()

	_, err := New(srv.URL).Solve(context.Background(), textRequest("q"), nil)
	assert.ErrorIs(t, err, submission.ErrMalformedResponse)
}

func TestSolve_MissingSolutionIsNotAnError(t *testing.T) {
	srv := homeworkServer(t, http.StatusOK, `{"message":"Homework received successfully"}`, nil)
	defer srv.Close()

	resp, err := New(srv.URL).Solve(context.Background(), textRequest("q"), nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Solution)
}

func TestSolve_TransportFailure(t *testing.T) {
	srv := homeworkServer(t, http.StatusOK, `{}`, nil)
	url := srv.URL
	srv.Close()

	_, err := New(url).Solve(context.Background(), textRequest("q"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, submission.ErrTransport)
}

func TestSolve_DrivesController(t *testing.T) {
	srv := homeworkServer(t, http.StatusOK, `{"solution":"x=5"}`, nil)
	defer srv.Close()

	ctrl := submission.NewController(New(srv.URL))
	var (
		mu       sync.Mutex
		percents []int
	)
	ctrl.Observe(func(s submission.Snapshot) {
		if s.State.Phase == submission.InProgress {
			mu.Lock()
			percents = append(percents, s.State.Percent)
			mu.Unlock()
		}
	})

	require.NoError(t, ctrl.SelectFile(submission.FileInput{
		Bytes:    bytes.Repeat([]byte{0xFF, 0xD8, 0xFF}, 50_000),
		Filename: "hw.jpg",
		MimeType: "image/jpeg",
	}))
	require.NoError(t, ctrl.Submit(context.Background(), "en"))

	assert.Equal(t, submission.State{Phase: submission.Succeeded, Solution: "x=5"}, ctrl.State())
	assert.True(t, ctrl.Input().IsEmpty())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])
	for i, p := range percents {
		if i > 0 {
			assert.GreaterOrEqual(t, p, percents[i-1])
		}
		if i < len(percents)-1 {
			assert.LessOrEqual(t, p, 99)
		}
	}
}
