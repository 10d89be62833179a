// Package telegram is the chat front end: it maps Telegram commands, messages,
// documents and button presses onto the user's session and renders the results.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ragchat/internal/auth"
	"ragchat/internal/backend"
	"ragchat/internal/identity"
	"ragchat/internal/journal"
	"ragchat/internal/session"
)

// Deps are the collaborators of the bot. Journal may be nil.
type Deps struct {
	Auth        *auth.Service
	Identities  *identity.Registry
	Sessions    *session.Manager
	Backend     *backend.Service
	Journal     journal.Recorder
	AdminUserID int64
	ParseMode   string
	Logger      *zap.Logger
}

type Bot struct {
	api   *tgbotapi.BotAPI
	s     sender
	files fileLinker
	http  *http.Client

	authSvc     *auth.Service
	identities  *identity.Registry
	sessions    *session.Manager
	backend     *backend.Service
	recorder    journal.Recorder
	adminUserID int64
	parseMode   string
	log         *zap.Logger
	now         func() time.Time

	// reopen collapses concurrent session restores of one user
	reopen singleflight.Group

	wg sync.WaitGroup
}

func New(botToken string, d Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	s := botAPISender{api: api}
	b := newBot(s, s, d)
	b.api = api
	return b, nil
}

func newBot(s sender, files fileLinker, d Deps) *Bot {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		s:           s,
		files:       files,
		http:        &http.Client{Timeout: 2 * time.Minute},
		authSvc:     d.Auth,
		identities:  d.Identities,
		sessions:    d.Sessions,
		backend:     d.Backend,
		recorder:    d.Journal,
		adminUserID: d.AdminUserID,
		parseMode:   d.ParseMode,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start polls updates until ctx is done, then waits for in-flight handlers.
// Each update is handled on its own goroutine so one user's slow question does
// not hold up everyone else.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info("bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.log.Info("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic", zap.Any("panic", r), zap.Int("update_id", update.UpdateID))
		}
	}()
	switch {
	case update.Message != nil:
		b.handleIncomingMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.authSvc.IsAllowed(msg.From.ID) {
		b.handleUnauthorized(msg)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Document != nil {
		b.handleDocument(ctx, msg)
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	b.handleQuestion(ctx, msg)
}

// sessionFor returns the user's session, reopening it from the stored identity
// link after a restart or idle eviction. It reports false when the user has no
// linked identity.
func (b *Bot) sessionFor(ctx context.Context, userID int64) (*session.Session, bool) {
	if s, ok := b.sessions.Get(userID); ok {
		return s, true
	}
	v, err, _ := b.reopen.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		if s, ok := b.sessions.Get(userID); ok {
			return s, nil
		}
		token, err := b.identities.Token(userID)
		if err != nil {
			return nil, err
		}
		s := b.sessions.Open(userID, token, nil)
		if err := s.Load(ctx); err != nil {
			b.log.Warn("session load incomplete", zap.Int64("user_id", userID), zap.Error(err))
		}
		return s, nil
	})
	if err != nil {
		return nil, false
	}
	return v.(*session.Session), true
}

// requireSession replies with a login hint when the user has no session.
func (b *Bot) requireSession(ctx context.Context, msg *tgbotapi.Message) (*session.Session, bool) {
	s, ok := b.sessionFor(ctx, msg.From.ID)
	if !ok {
		b.sendMessage(msg.Chat.ID, "🔑 Link your account first: /login <token>. No account yet? /register <email> <password> [name]")
	}
	return s, ok
}

func (b *Bot) record(e journal.Entry) {
	if b.recorder == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	if err := b.recorder.Append(e); err != nil {
		b.log.Warn("journal append failed", zap.Error(err))
	}
}

// reportError shows a failed operation to the user. An expired identity token
// signs the user out so the next step is a fresh /login.
func (b *Bot) reportError(chatID, userID int64, what string, err error) {
	b.log.Warn(what+" failed", zap.Int64("user_id", userID), zap.Error(err))
	if backend.IsUnauthorized(err) {
		b.sessions.Close(userID)
		if uerr := b.identities.Unlink(userID); uerr != nil {
			b.log.Warn("unlink failed", zap.Int64("user_id", userID), zap.Error(uerr))
		}
		b.sendMessage(chatID, "🔑 Your login has expired. Send /login <token> again.")
		return
	}
	b.sendMessage(chatID, "❌ "+capitalize(what)+" failed: "+reason(err))
}

// reason is the user-facing part of an error: the backend's own message when
// there is one.
func reason(err error) string {
	var be *backend.Error
	if errors.As(err, &be) {
		return be.Reason
	}
	switch {
	case errors.Is(err, session.ErrUploadBusy):
		return "another upload is still running"
	case errors.Is(err, session.ErrUnknownSource):
		return "no such source"
	case errors.Is(err, session.ErrUnknownModel):
		return "unknown model, see /models"
	case errors.Is(err, context.DeadlineExceeded):
		return "the backend did not answer in time"
	}
	return err.Error()
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, b.escapeIfNeeded(text))
	msg.ParseMode = b.parseModeValue()
	if _, err := b.s.Send(msg); err != nil {
		b.log.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// sendFormatted sends text that is already formatted for the configured parse mode.
func (b *Bot) sendFormatted(chatID int64, text string, markup any) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = b.parseModeValue()
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := b.s.Send(msg)
	if err != nil {
		b.log.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return sent, err
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.s.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debug("delete message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
