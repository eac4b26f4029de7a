package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"homework-mentor/api/internal/i18n"
	"homework-mentor/api/internal/submission"
)

// BotAPI is the part of *tgbotapi.BotAPI the router needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

const (
	callbackSolve = "solve"
	callbackClear = "clear"

	maxDownloadBytes = 20 << 20
)

type Router struct {
	Bot      BotAPI
	Sessions *Sessions
	Log      *slog.Logger

	httpc *http.Client
	wg    sync.WaitGroup
}

func NewRouter(bot BotAPI, sessions *Sessions, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		Bot:      bot,
		Sessions: sessions,
		Log:      log,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Wait blocks until submissions started by HandleUpdate have finished.
func (r *Router) Wait() { r.wg.Wait() }

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	m := upd.Message
	if m == nil || m.Chat == nil {
		return
	}
	s := r.Sessions.Get(m.Chat.ID, languageCode(m.From))

	switch {
	case m.IsCommand():
		r.handleCommand(ctx, s, m)
	case len(m.Photo) > 0:
		r.acceptPhoto(ctx, s, m)
	case m.Document != nil:
		r.acceptDocument(ctx, s, m)
	case strings.TrimSpace(m.Text) != "":
		s.Ctrl.SelectText(m.Text)
		r.askToSubmit(s)
	}
}

func (r *Router) handleCommand(ctx context.Context, s *Session, m *tgbotapi.Message) {
	loc := s.Locale()
	args := strings.Fields(m.CommandArguments())
	switch m.Command() {
	case "start", "help":
		r.send(s.ChatID, strings.Join([]string{
			loc.T(i18n.KeyTitle) + ": " + loc.T(i18n.KeySubtitle),
			loc.T(i18n.KeyDropzone) + ", " + loc.T(i18n.KeyOr),
			loc.T(i18n.KeyBotHelp),
		}, "\n\n"))
	case "solve":
		if len(args) > 0 {
			s.SetSubject(strings.ToLower(args[0]))
		}
		r.submit(ctx, s)
	case "clear":
		s.Ctrl.Clear()
		r.send(s.ChatID, loc.T(i18n.KeyBotCleared))
	case "lang":
		if len(args) == 0 || !i18n.IsSupported(args[0]) {
			r.send(s.ChatID, loc.T(i18n.KeyBotLanguageUsage))
			return
		}
		loc = loc.With(args[0])
		s.SetLocale(loc)
		r.send(s.ChatID, loc.T(i18n.KeyBotLanguageSet))
	default:
		r.send(s.ChatID, loc.T(i18n.KeyBotHelp))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	if _, err := r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		r.Log.Warn("callback ack", "err", err)
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	s := r.Sessions.Get(cb.Message.Chat.ID, languageCode(cb.From))

	// drop the button so it cannot be pressed twice
	edit := tgbotapi.NewEditMessageReplyMarkup(s.ChatID, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	_, _ = r.Bot.Send(edit)

	switch cb.Data {
	case callbackSolve:
		r.submit(ctx, s)
	case callbackClear:
		s.Ctrl.Clear()
		r.send(s.ChatID, s.Locale().T(i18n.KeyBotCleared))
	}
}

func (r *Router) acceptPhoto(ctx context.Context, s *Session, m *tgbotapi.Message) {
	// the last size is the largest
	ph := m.Photo[len(m.Photo)-1]
	data, err := r.download(ctx, ph.FileID)
	if err != nil {
		r.downloadFailed(s, err)
		return
	}
	r.selectFile(s, submission.FileInput{
		Bytes:    data,
		Filename: ph.FileUniqueID + ".jpg",
		MimeType: submission.MimeJPEG,
	})
}

func (r *Router) acceptDocument(ctx context.Context, s *Session, m *tgbotapi.Message) {
	doc := m.Document
	if doc.MimeType != "" && !submission.Accepted(doc.MimeType) {
		r.send(s.ChatID, s.Locale().T(i18n.KeyUnsupportedType))
		return
	}
	data, err := r.download(ctx, doc.FileID)
	if err != nil {
		r.downloadFailed(s, err)
		return
	}
	r.selectFile(s, submission.FileInput{Bytes: data, Filename: doc.FileName, MimeType: doc.MimeType})
}

func (r *Router) selectFile(s *Session, f submission.FileInput) {
	if err := s.Ctrl.SelectFile(f); err != nil {
		if errors.Is(err, submission.ErrUnsupportedType) {
			r.send(s.ChatID, s.Locale().T(i18n.KeyUnsupportedType))
			return
		}
		s.log.Warn("select file", "err", err)
		r.send(s.ChatID, s.Locale().T(i18n.KeyError))
		return
	}
	r.askToSubmit(s)
}

func (r *Router) downloadFailed(s *Session, err error) {
	s.log.Warn("download telegram file", "err", err)
	r.send(s.ChatID, s.Locale().T(i18n.KeyError))
}

func (r *Router) askToSubmit(s *Session) {
	msg := tgbotapi.NewMessage(s.ChatID, s.Locale().T(i18n.KeyBotReady))
	msg.ReplyMarkup = submitKeyboard(s.Locale())
	if _, err := r.Bot.Send(msg); err != nil {
		s.log.Warn("send submit prompt", "err", err)
	}
}

// submit runs the chat's submission in the background. Outcomes reach the
// chat through the session observer; only refusals are answered here.
func (r *Router) submit(ctx context.Context, s *Session) {
	loc := s.Locale()
	if !s.Ctrl.CanSubmit() {
		if s.Ctrl.State().Phase == submission.InProgress {
			r.send(s.ChatID, loc.T(i18n.KeyBotBusy))
		} else {
			r.send(s.ChatID, loc.T(i18n.KeyBotNothingToSolve))
		}
		return
	}
	subject := s.Subject()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := s.Ctrl.Submit(ctx, loc.Tag, submission.WithSubject(subject))
		switch {
		case errors.Is(err, submission.ErrInProgress):
			r.send(s.ChatID, loc.T(i18n.KeyBotBusy))
		case errors.Is(err, submission.ErrEmptyInput):
			r.send(s.ChatID, loc.T(i18n.KeyBotNothingToSolve))
		}
	}()
}

func (r *Router) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.Log.Warn("send message", "chat_id", chatID, "err", err)
	}
}

func languageCode(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return u.LanguageCode
}
