package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ragchat/internal/backend"
	"ragchat/internal/chat"
	"ragchat/internal/journal"
	"ragchat/internal/session"
)

const (
	selectPrefix  = "sel:"
	deletePrefix  = "del:"
	modelPrefix   = "mdl:"
	approvePrefix = "approve:"
	denyPrefix    = "deny:"

	filesCmd    = "files"
	evidenceCmd = "evidence"
	clearCmd    = "clear"
)

const helpText = `Ask questions about your own documents, videos and tables.

1. /register <email> <password> [name] creates an account, then /login <token> links it.
2. Send a PDF or CSV file, or /youtube <url>, to add a source.
3. Pick a source with /files and just write your question.

Sources
/files - list sources
/select <name> - switch source
/new - start without a source
/delete <name> - delete a source
/youtube <url> - add a video transcript
/preview - open the active PDF

Chat
/history - recent messages
/sources - passages behind the last answer
/clear - clear the chat of this source

Account
/profile - account details
/apikey <key> - set your OpenRouter API key
/name <name> - set your display name
/models, /model <name> - choose a model
/logout - unlink this chat`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		_, _ = b.sendFormatted(msg.Chat.ID, b.escapeIfNeeded(helpText), b.menuKeyboard())
	case "login":
		b.handleLogin(ctx, msg, args)
	case "logout":
		b.handleLogout(msg)
	case "register":
		b.handleRegister(ctx, msg, args)
	case "files":
		b.handleFiles(ctx, msg.Chat.ID, msg.From.ID)
	case "select":
		b.handleSelect(ctx, msg, args)
	case "new":
		b.handleNew(ctx, msg)
	case "clear":
		b.handleClear(ctx, msg.Chat.ID, msg.From.ID)
	case "delete":
		b.handleDelete(ctx, msg, args)
	case "models":
		b.handleModels(ctx, msg)
	case "model":
		b.handleModel(ctx, msg, args)
	case "apikey":
		b.handleAPIKey(ctx, msg, args)
	case "name":
		b.handleName(ctx, msg, args)
	case "profile":
		b.handleProfile(ctx, msg)
	case "youtube":
		b.handleYouTube(ctx, msg, args)
	case "sources":
		b.handleEvidence(ctx, msg.Chat.ID, msg.From.ID)
	case "preview":
		b.handlePreview(ctx, msg)
	case "history":
		b.handleHistory(ctx, msg, args)
	case "allowlist", "pending", "approve", "deny", "remove", "report":
		b.handleAdminCommand(ctx, msg, args)
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command. See /help")
	}
}

// handleLogin links the chat to a backend identity token. The message carrying
// the token is deleted right away.
func (b *Bot) handleLogin(ctx context.Context, msg *tgbotapi.Message, token string) {
	b.deleteMessage(msg.Chat.ID, msg.MessageID)
	if token == "" {
		b.sendMessage(msg.Chat.ID, "Usage: /login <token>")
		return
	}
	userID := msg.From.ID
	if err := b.identities.Link(userID, token, b.now()); err != nil {
		b.reportError(msg.Chat.ID, userID, "login", err)
		return
	}
	s := b.sessions.Open(userID, token, nil)
	err := s.Load(ctx)
	if err != nil {
		if backend.IsUnauthorized(err) {
			b.reportError(msg.Chat.ID, userID, "login", err)
			return
		}
		b.log.Warn("session load incomplete", zap.Int64("user_id", userID), zap.Error(err))
	}
	snap := s.Snapshot()
	text := "✅ Signed in"
	if snap.Profile.Email != "" {
		text += " as " + snap.Profile.Email
	}
	text += fmt.Sprintf(". Sources: %d.", len(snap.Sources))
	if !snap.HasCredential {
		text += "\nSet your OpenRouter key with /apikey <key> before asking questions."
	}
	if err != nil {
		text += "\n⚠️ Some account data could not be loaded."
	}
	_, _ = b.sendFormatted(msg.Chat.ID, b.escapeIfNeeded(text), b.menuKeyboard())
}

func (b *Bot) handleLogout(msg *tgbotapi.Message) {
	userID := msg.From.ID
	b.sessions.Close(userID)
	if err := b.identities.Unlink(userID); err != nil {
		b.reportError(msg.Chat.ID, userID, "logout", err)
		return
	}
	b.sendMessage(msg.Chat.ID, "👋 Signed out.")
}

func (b *Bot) handleRegister(ctx context.Context, msg *tgbotapi.Message, args string) {
	b.deleteMessage(msg.Chat.ID, msg.MessageID)
	fields := strings.Fields(args)
	if len(fields) < 2 {
		b.sendMessage(msg.Chat.ID, "Usage: /register <email> <password> [name]")
		return
	}
	req := backend.RegisterRequest{
		Email:    fields[0],
		Password: fields[1],
		Username: strings.Join(fields[2:], " "),
	}
	resp, err := b.backend.Register(ctx, req)
	if err != nil {
		b.reportError(msg.Chat.ID, msg.From.ID, "registration", err)
		return
	}
	text := "✅ Account created."
	if resp.Message != "" {
		text = "✅ " + resp.Message
	}
	b.sendMessage(msg.Chat.ID, text+"\nSign in on the web app and send /login <token> with your ID token.")
}

func (b *Bot) handleFiles(ctx context.Context, chatID, userID int64) {
	s, ok := b.sessionFor(ctx, userID)
	if !ok {
		b.sendMessage(chatID, "🔑 Link your account first: /login <token>")
		return
	}
	if err := s.RefreshSources(ctx); err != nil {
		b.reportError(chatID, userID, "listing sources", err)
		return
	}
	text, kb := b.renderSources(s.Snapshot())
	var markup any
	if len(kb.InlineKeyboard) > 0 {
		markup = kb
	}
	_, _ = b.sendFormatted(chatID, text, markup)
}

func (b *Bot) handleSelect(ctx context.Context, msg *tgbotapi.Message, id string) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	if id == "" {
		b.sendMessage(msg.Chat.ID, "Usage: /select <name>, or pick one in /files")
		return
	}
	b.selectSource(ctx, s, msg.Chat.ID, msg.From.ID, id)
}

func (b *Bot) selectSource(ctx context.Context, s *session.Session, chatID, userID int64, id string) {
	if err := s.SelectSource(ctx, id); err != nil {
		b.reportError(chatID, userID, "loading the chat", err)
		return
	}
	snap := s.Snapshot()
	if snap.ActiveSource == nil || snap.ActiveSource.ID != id {
		// a newer selection won
		return
	}
	for _, part := range packBlocks(b.renderTranscript(snap, historyTailLimit), maxMessageRunes) {
		if _, err := b.sendFormatted(chatID, part, nil); err != nil {
			return
		}
	}
}

func (b *Bot) handleNew(ctx context.Context, msg *tgbotapi.Message) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	if err := s.SelectSource(ctx, ""); err != nil {
		b.reportError(msg.Chat.ID, msg.From.ID, "starting a new chat", err)
		return
	}
	b.sendMessage(msg.Chat.ID, "🆕 New chat. Upload a source or pick one in /files.")
}

func (b *Bot) handleClear(ctx context.Context, chatID, userID int64) {
	s, ok := b.sessionFor(ctx, userID)
	if !ok {
		b.sendMessage(chatID, "🔑 Link your account first: /login <token>")
		return
	}
	snap := s.Snapshot()
	if snap.ActiveSource == nil {
		b.sendMessage(chatID, "No source selected.")
		return
	}
	err := s.ClearHistory(ctx)
	e := journal.Entry{UserID: userID, Action: journal.ActionClear, SourceID: snap.ActiveSource.ID, SourceKind: string(snap.ActiveSource.Kind)}
	if err != nil {
		e.Error = reason(err)
		b.record(e)
		b.reportError(chatID, userID, "clearing the chat", err)
		return
	}
	b.record(e)
	b.sendMessage(chatID, "🧹 Chat cleared.")
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message, id string) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	if id == "" {
		b.sendMessage(msg.Chat.ID, "Usage: /delete <name>, or use 🗑 in /files")
		return
	}
	b.deleteSource(ctx, s, msg.Chat.ID, msg.From.ID, id)
}

func (b *Bot) deleteSource(ctx context.Context, s *session.Session, chatID, userID int64, id string) {
	var kind chat.SourceKind
	for _, src := range s.Snapshot().Sources {
		if src.ID == id {
			kind = src.Kind
		}
	}
	err := s.DeleteSource(ctx, id)
	e := journal.Entry{UserID: userID, Action: journal.ActionDelete, SourceID: id, SourceKind: string(kind)}
	if err != nil {
		e.Error = reason(err)
		b.record(e)
		b.reportError(chatID, userID, "deleting "+id, err)
		return
	}
	b.record(e)
	b.sendMessage(chatID, "🗑 Deleted "+id)
}

func (b *Bot) handleModels(ctx context.Context, msg *tgbotapi.Message) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	snap := s.Snapshot()
	var markup any
	if kb := b.modelKeyboard(snap); kb != nil {
		markup = *kb
	}
	_, _ = b.sendFormatted(msg.Chat.ID, b.renderModels(snap), markup)
}

func (b *Bot) handleModel(ctx context.Context, msg *tgbotapi.Message, model string) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	if model == "" {
		b.sendMessage(msg.Chat.ID, "Current model: "+s.Snapshot().Model+"\nUsage: /model <name>")
		return
	}
	b.setModel(s, msg.Chat.ID, msg.From.ID, model)
}

func (b *Bot) setModel(s *session.Session, chatID, userID int64, model string) {
	if err := s.SetModel(model); err != nil {
		b.reportError(chatID, userID, "switching model", err)
		return
	}
	b.sendMessage(chatID, "🤖 Model: "+model)
}

func (b *Bot) handleAPIKey(ctx context.Context, msg *tgbotapi.Message, key string) {
	b.deleteMessage(msg.Chat.ID, msg.MessageID)
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	if key == "" {
		b.sendMessage(msg.Chat.ID, "Usage: /apikey <key>")
		return
	}
	if err := s.SetCredential(ctx, key); err != nil {
		b.reportError(msg.Chat.ID, msg.From.ID, "saving the API key", err)
		return
	}
	b.sendMessage(msg.Chat.ID, "🔐 API key saved: "+s.Snapshot().Profile.CredentialHint)
}

func (b *Bot) handleName(ctx context.Context, msg *tgbotapi.Message, name string) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	if name == "" {
		b.sendMessage(msg.Chat.ID, "Usage: /name <display name>")
		return
	}
	if err := s.SetDisplayName(ctx, name); err != nil {
		b.reportError(msg.Chat.ID, msg.From.ID, "updating the name", err)
		return
	}
	b.sendMessage(msg.Chat.ID, "✅ Name updated.")
}

func (b *Bot) handleProfile(ctx context.Context, msg *tgbotapi.Message) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	_, _ = b.sendFormatted(msg.Chat.ID, b.renderProfile(s.Snapshot()), nil)
}

func (b *Bot) handleYouTube(ctx context.Context, msg *tgbotapi.Message, url string) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	if _, ok := youtubeID(url); !ok {
		b.sendMessage(msg.Chat.ID, "Usage: /youtube <url>, for example https://youtu.be/dQw4w9WgXcQ")
		return
	}
	b.sendMessage(msg.Chat.ID, "⏳ Fetching the transcript...")
	src, err := s.Uploads().UploadTranscript(ctx, url)
	b.afterIngest(s, msg.Chat.ID, msg.From.ID, chat.KindVideoTranscript, src, err)
}

// afterIngest reports an ingestion. The source may be registered even when
// loading its chat failed afterwards.
func (b *Bot) afterIngest(s *session.Session, chatID, userID int64, kind chat.SourceKind, src chat.Source, err error) {
	e := journal.Entry{UserID: userID, Action: journal.ActionIngest, SourceID: src.ID, SourceKind: string(kind)}
	if err != nil && src.ID == "" {
		e.Error = reason(err)
		b.record(e)
		b.reportError(chatID, userID, "adding the "+kind.Label(), err)
		return
	}
	b.record(e)
	b.sendMessage(chatID, fmt.Sprintf("%s Added %s. Ask away.", kindIcon(kind), src.ID))
	if err != nil {
		b.reportError(chatID, userID, "loading the chat", err)
	}
}

func (b *Bot) handleEvidence(ctx context.Context, chatID, userID int64) {
	s, ok := b.sessionFor(ctx, userID)
	if !ok {
		b.sendMessage(chatID, "🔑 Link your account first: /login <token>")
		return
	}
	for _, part := range packBlocks(b.renderEvidence(s.Snapshot().Evidence), maxMessageRunes) {
		if _, err := b.sendFormatted(chatID, part, nil); err != nil {
			return
		}
	}
}

func (b *Bot) handlePreview(ctx context.Context, msg *tgbotapi.Message) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	snap := s.Snapshot()
	switch {
	case snap.ActiveSource == nil:
		b.sendMessage(msg.Chat.ID, "No source selected.")
	case snap.ActiveSource.Kind != chat.KindDocument:
		b.sendMessage(msg.Chat.ID, "Only PDF documents have a preview.")
	case snap.Preview == "":
		b.sendMessage(msg.Chat.ID, "The preview is not available right now.")
	default:
		_, _ = b.sendFormatted(msg.Chat.ID, b.link("📄 "+snap.ActiveSource.ID, snap.Preview), nil)
	}
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message, args string) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	limit := historyTailLimit
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			b.sendMessage(msg.Chat.ID, "Usage: /history [count]")
			return
		}
		limit = n
	}
	snap := s.Snapshot()
	if snap.History == session.LoadFailed {
		b.sendMessage(msg.Chat.ID, "⚠️ The chat of this source could not be loaded. Select it again to retry.")
		return
	}
	for _, part := range packBlocks(b.renderTranscript(snap, limit), maxMessageRunes) {
		if _, err := b.sendFormatted(msg.Chat.ID, part, nil); err != nil {
			return
		}
	}
}

// handleQuestion sends free text to the active source and shows the answer.
func (b *Bot) handleQuestion(ctx context.Context, msg *tgbotapi.Message) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	// the view belongs to this send alone; a rejected send never shows it
	view := b.newProgressView(msg.Chat.ID)
	out, err := s.AskObserved(ctx, msg.Text, view)
	view.end()

	if !out.Accepted() {
		b.sendMessage(msg.Chat.ID, rejectionText(out.Rejection))
		return
	}
	e := journal.Entry{
		UserID:   msg.From.ID,
		Action:   journal.ActionAsk,
		SourceID: out.Question.SourceID,
		Model:    out.Question.Model,
		Question: out.Question.Text,
	}
	if err != nil {
		e.Error = reason(err)
		b.record(e)
		b.reportError(msg.Chat.ID, msg.From.ID, "answering", err)
		return
	}
	e.Answer = out.Answer.Text
	e.Evidence = len(out.Answer.Evidence)
	b.record(e)
	if !out.Applied {
		b.log.Debug("answer not shown, chat changed", zap.Int64("user_id", msg.From.ID))
		return
	}
	parts := b.renderAnswer(out.Answer)
	for i, part := range parts {
		var markup any
		if i == len(parts)-1 {
			markup = b.menuKeyboard()
		}
		if _, err := b.sendFormatted(msg.Chat.ID, part, markup); err != nil {
			return
		}
	}
}

func rejectionText(r session.Rejection) string {
	switch r {
	case session.RejectNoSource:
		return "📂 Pick a source first: /files, or upload a PDF or CSV."
	case session.RejectNoCredential:
		return "🔐 Set your OpenRouter API key first: /apikey <key>"
	case session.RejectBusy:
		return "⏳ Still answering your previous question."
	case session.RejectClosed:
		return "🔑 Your session has ended. Send /login <token> again."
	default:
		return "Write a question."
	}
}
