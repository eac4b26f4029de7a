package handle

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/httplog/v2"
	"github.com/google/uuid"

	"homework-mentor/api/internal/apperr"
	"homework-mentor/api/internal/llm"
	"homework-mentor/api/internal/logger"
	"homework-mentor/api/internal/store"
	"homework-mentor/api/internal/util"
)

const (
	EngineHeader    = "X-LLM-Engine"
	RequestIDHeader = "X-Request-Id"

	receivedMessage = "Homework received successfully"
)

type HomeworkResponse struct {
	Message  string `json:"message"`
	Text     string `json:"text"`
	Subject  string `json:"subject"`
	Solution string `json:"solution"`
	Language string `json:"language"`
}

// Homework accepts a multipart question (text and/or file) and answers with a
// step-by-step solution from the selected engine.
func (h *Handle) Homework(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get(RequestIDHeader)
	if _, err := uuid.Parse(reqID); err != nil {
		reqID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, reqID)
	reqCtx := logger.WithRequestID(logger.WithLogger(r.Context(), httplog.LogEntry(r.Context())), reqID)
	log := logger.FromContext(reqCtx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := parseForm(r, h.maxUpload); err != nil {
		if isTooLarge(err) {
			writeError(w, apperr.FileTooLarge())
			return
		}
		writeError(w, apperr.New(apperr.CodeBadRequest, "bad form: "+err.Error()).WithHTTPStatus(http.StatusBadRequest))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	task := llm.Task{
		Text:     strings.TrimSpace(r.FormValue("text")),
		Subject:  strings.TrimSpace(r.FormValue("subject")),
		Language: strings.TrimSpace(r.FormValue("language")),
	}
	if task.Language == "" {
		task.Language = "en"
	}

	if err := readUpload(r, &task); err != nil {
		log.Warn("upload rejected", "err", err)
		writeError(w, err)
		return
	}
	if task.Text == "" && !task.HasFile() {
		writeError(w, apperr.EmptySubmission())
		return
	}

	name := r.FormValue("engine")
	if name == "" {
		name = r.Header.Get(EngineHeader)
	}
	engine, err := h.engs.GetEngine(name)
	if err != nil {
		writeError(w, apperr.UnknownEngine(name).WithDebug(err))
		return
	}

	ctx, cancel := context.WithTimeout(reqCtx, h.timeout)
	defer cancel()

	solution, err := h.solve(ctx, engine, task)
	if err != nil {
		log.Error("solve failed", "engine", engine.Name(), "model", engine.GetModel(), "err", err)
		writeError(w, apperr.EngineFailure(err))
		return
	}

	log.Info("homework solved", "engine", engine.Name(), "has_file", task.HasFile(), "solution_len", len(solution))
	writeJSON(w, http.StatusOK, HomeworkResponse{
		Message:  receivedMessage,
		Text:     task.Text,
		Subject:  task.Subject,
		Solution: solution,
		Language: task.Language,
	})
}

// readUpload attaches the optional file part to t. Plain text files replace
// the text field; images and PDFs go to the model as attachments.
func readUpload(r *http.Request, t *llm.Task) error {
	if r.MultipartForm == nil {
		return nil
	}
	f, fh, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil
	}
	if err != nil {
		return apperr.New(apperr.CodeBadRequest, "bad file: "+err.Error()).WithHTTPStatus(http.StatusBadRequest)
	}
	defer f.Close()
	if fh.Filename == "" {
		return nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return apperr.Internal().WithDebug(err)
	}
	mt := util.SniffMime(data, declaredType(fh), fh.Filename)
	switch mt {
	case "text/plain":
		t.Text = strings.TrimSpace(string(data))
	case "image/png", "image/jpeg", "application/pdf":
		t.Attachment = &llm.Attachment{Data: data, MimeType: mt, Filename: fh.Filename}
	default:
		return apperr.UnsupportedFileType().WithDebug(errors.New("media type " + mt))
	}
	return nil
}

// parseForm accepts multipart bodies and, for text-only clients, urlencoded
// ones.
func parseForm(r *http.Request, maxMemory int64) error {
	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

func declaredType(fh *multipart.FileHeader) string {
	return fh.Header.Get("Content-Type")
}

// solve consults the cache before calling the engine. Cache errors are logged
// and otherwise ignored.
func (h *Handle) solve(ctx context.Context, engine llm.Engine, t llm.Task) (string, error) {
	log := logger.FromContext(ctx)
	var key store.Key
	if h.cache != nil {
		key = store.Key{
			Text:     t.Text,
			Language: t.Language,
			Subject:  t.Subject,
			Engine:   engine.Name(),
			Model:    engine.GetModel(),
		}
		if t.HasFile() {
			key.File = t.Attachment.Data
		}
		sol, ok, err := h.cache.Find(ctx, key, h.cacheTTL)
		if err != nil {
			log.Warn("solution cache lookup failed", "err", err)
		} else if ok {
			log.Debug("solution cache hit", "engine", key.Engine)
			return sol, nil
		}
	}

	out, err := engine.Solve(ctx, t)
	if err != nil {
		return "", err
	}
	if h.cache != nil && out.Text != "" {
		if err := h.cache.Upsert(ctx, key, out.Text); err != nil {
			log.Warn("solution cache store failed", "err", err)
		}
	}
	return out.Text, nil
}
