package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptrace"
	"net/textproto"
	"strings"
	"time"

	"homework-mentor/api/internal/submission"
)

const (
	HomeworkPath = "/api/homework"

	FieldFile     = "file"
	FieldText     = "text"
	FieldLanguage = "language"
	FieldSubject  = "subject"
	FieldEngine   = "engine"

	maxResponseBytes = 4 << 20
)

// Client talks to the solving service. It implements submission.Solver.
type Client struct {
	BaseURL string
	Engine  string // optional engine name forwarded to the service

	httpc  *http.Client
	logger *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpc = h
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithEngine(name string) Option {
	return func(c *Client) { c.Engine = strings.TrimSpace(name) }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 180 * time.Second},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// HomeworkResponse is the JSON body of /api/homework.
type HomeworkResponse struct {
	Message  string `json:"message,omitempty"`
	Text     string `json:"text,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Solution string `json:"solution,omitempty"`
	Language string `json:"language,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

func (c *Client) Solve(ctx context.Context, req submission.Request, progress func(submission.Progress)) (submission.Response, error) {
	if progress == nil {
		progress = func(submission.Progress) {}
	}
	body, contentType, err := c.encode(req)
	if err != nil {
		return submission.Response{}, &submission.SubmitError{Kind: submission.ErrTransport, Err: err}
	}
	total := int64(len(body))

	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				progress(submission.Progress{Sent: total, Total: total, Complete: true})
			}
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	pr := &progressReader{r: bytes.NewReader(body), total: total, report: progress}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+HomeworkPath, pr)
	if err != nil {
		return submission.Response{}, &submission.SubmitError{Kind: submission.ErrTransport, Err: err}
	}
	hreq.ContentLength = total
	hreq.Header.Set("Content-Type", contentType)
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("X-Request-Id", req.ID.String())

	progress(submission.Progress{Sent: 0, Total: total})

	resp, err := c.httpc.Do(hreq)
	if err != nil {
		return submission.Response{}, &submission.SubmitError{Kind: submission.ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return submission.Response{}, &submission.SubmitError{Kind: submission.ErrTransport, Status: resp.StatusCode, Err: err}
	}

	var out HomeworkResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if decodeErr == nil {
			msg = strings.TrimSpace(out.Error)
		}
		return submission.Response{}, &submission.SubmitError{
			Kind:    submission.ErrService,
			Status:  resp.StatusCode,
			Message: msg,
			Err:     fmt.Errorf("solving service %d: %s", resp.StatusCode, snippet(raw)),
		}
	}
	if decodeErr != nil {
		return submission.Response{}, &submission.SubmitError{
			Kind:   submission.ErrMalformedResponse,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("bad JSON: %w", decodeErr),
		}
	}
	if out.Error != "" && out.Solution == "" {
		return submission.Response{}, &submission.SubmitError{
			Kind:    submission.ErrService,
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(out.Error),
			Err:     errors.New("service reported an error"),
		}
	}

	c.logger.Debug("solving service answered",
		"submission_id", req.ID.String(),
		"status", resp.StatusCode,
		"solution_len", len(out.Solution))
	return submission.Response{Solution: out.Solution}, nil
}

// encode renders the multipart body: optional file part, text (always) and
// language, plus subject/engine when set.
func (c *Client) encode(req submission.Request) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if f, ok := req.Input.File(); ok {
		h := make(textproto.MIMEHeader)
		name := f.Filename
		if name == "" {
			name = "upload"
		}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldFile, quoteEscaper.Replace(name)))
		if f.MimeType != "" {
			h.Set("Content-Type", f.MimeType)
		} else {
			h.Set("Content-Type", "application/octet-stream")
		}
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(f.Bytes); err != nil {
			return nil, "", err
		}
	}

	text, _ := req.Input.Text()
	if err := mw.WriteField(FieldText, text); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField(FieldLanguage, req.LanguageTag); err != nil {
		return nil, "", err
	}
	if req.Subject != "" {
		if err := mw.WriteField(FieldSubject, req.Subject); err != nil {
			return nil, "", err
		}
	}
	if c.Engine != "" {
		if err := mw.WriteField(FieldEngine, c.Engine); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "…"
	}
	return s
}

// progressReader reports how much of the body the transport has consumed.
type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report func(submission.Progress)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report(submission.Progress{Sent: p.sent, Total: p.total})
	}
	return n, err
}
