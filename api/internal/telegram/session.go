package telegram

import (
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"homework-mentor/api/internal/i18n"
	"homework-mentor/api/internal/submission"
	"homework-mentor/api/internal/util"
)

const (
	maxMessageRunes = 3900
	// progress edits closer than this many percent apart are skipped
	progressStep = 20
)

// Session is one chat: its submission controller, locale and the status
// message that shows the running submission.
type Session struct {
	ChatID int64
	Ctrl   *submission.Controller

	bot BotAPI
	log *slog.Logger

	mu      sync.Mutex
	locale  i18n.Locale
	subject string

	// touched only from the observer, which the controller serialises
	statusID  int
	lastPct   int
	rendering bool
	unobserve func()
}

func (s *Session) Locale() i18n.Locale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locale
}

func (s *Session) SetLocale(l i18n.Locale) {
	s.mu.Lock()
	s.locale = l
	s.mu.Unlock()
	s.Ctrl.SetLocalizer(l)
}

func (s *Session) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

func (s *Session) SetSubject(subject string) {
	s.mu.Lock()
	s.subject = subject
	s.mu.Unlock()
}

// render mirrors controller transitions into a single status message that is
// edited as the upload progresses and finally replaced by the outcome.
func (s *Session) render(snap submission.Snapshot) {
	loc := s.Locale()
	switch snap.State.Phase {
	case submission.InProgress:
		pct := snap.State.Percent
		if s.rendering && s.statusID != 0 && pct < 100 && pct-s.lastPct < progressStep {
			return
		}
		if s.rendering && pct == s.lastPct && s.statusID != 0 {
			return
		}
		text := fmt.Sprintf("%s %d%%", loc.T(i18n.KeyUploading), pct)
		if pct >= 100 {
			text = loc.T(i18n.KeyProcessing)
		}
		if !s.rendering {
			s.rendering = true
			s.statusID = 0
		}
		s.lastPct = pct
		s.status(text)
	case submission.Succeeded:
		if !s.rendering {
			return
		}
		s.rendering = false
		s.status(loc.T(i18n.KeySolution) + ":\n\n" + util.Truncate(snap.State.Solution, maxMessageRunes))
		s.statusID = 0
	case submission.Failed:
		if !s.rendering {
			return
		}
		s.rendering = false
		s.status("⚠️ " + snap.State.Message)
		s.statusID = 0
	case submission.Idle:
		s.rendering = false
		s.statusID = 0
	}
}

func (s *Session) status(text string) {
	if s.statusID != 0 {
		if _, err := s.bot.Send(tgbotapi.NewEditMessageText(s.ChatID, s.statusID, text)); err != nil {
			s.log.Warn("edit status message", "err", err)
		}
		return
	}
	msg, err := s.bot.Send(tgbotapi.NewMessage(s.ChatID, text))
	if err != nil {
		s.log.Warn("send status message", "err", err)
		return
	}
	s.statusID = msg.MessageID
}

// Sessions holds one Session per chat.
type Sessions struct {
	bot     BotAPI
	solver  submission.Solver
	catalog *i18n.Catalog
	log     *slog.Logger

	// fixedTag, when set, overrides the language reported by Telegram
	fixedTag string

	mu     sync.Mutex
	byChat map[int64]*Session
}

func NewSessions(bot BotAPI, solver submission.Solver, catalog *i18n.Catalog, fixedTag string, log *slog.Logger) *Sessions {
	if log == nil {
		log = slog.Default()
	}
	return &Sessions{
		bot:      bot,
		solver:   solver,
		catalog:  catalog,
		log:      log,
		fixedTag: fixedTag,
		byChat:   make(map[int64]*Session),
	}
}

// Get returns the chat's session, creating it on first contact. languageCode
// is the user's Telegram language and only matters for new sessions.
func (ss *Sessions) Get(chatID int64, languageCode string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.byChat[chatID]; ok {
		return s
	}

	tag := ss.fixedTag
	if tag == "" {
		tag = i18n.FromLanguageCode(languageCode)
	}
	loc := i18n.NewLocale(ss.catalog, tag)
	log := ss.log.With("chat_id", chatID)

	s := &Session{
		ChatID: chatID,
		bot:    ss.bot,
		log:    log,
		locale: loc,
	}
	s.Ctrl = submission.NewController(ss.solver,
		submission.WithLocalizer(loc),
		submission.WithLogger(log),
	)
	s.unobserve = s.Ctrl.Observe(s.render)
	ss.byChat[chatID] = s
	return s
}

func (ss *Sessions) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.byChat)
}

// Drop forgets the chat's session.
func (ss *Sessions) Drop(chatID int64) {
	ss.mu.Lock()
	s, ok := ss.byChat[chatID]
	delete(ss.byChat, chatID)
	ss.mu.Unlock()
	if ok && s.unobserve != nil {
		s.unobserve()
	}
}
