package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ragchat/internal/analytics"
	"ragchat/internal/auth"
)

var errNoJournal = errors.New("journal is not configured")

// handleUnauthorized queues an access request and notifies the admin once.
func (b *Bot) handleUnauthorized(msg *tgbotapi.Message) {
	u := auth.User{ID: msg.From.ID, Username: msg.From.UserName, FirstName: msg.From.FirstName, LastName: msg.From.LastName}
	b.log.Info("unauthorized access attempt", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	created, err := b.authSvc.RequestAccess(u, b.now())
	if err != nil {
		b.log.Warn("failed to store access request", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	if !created {
		b.sendMessage(msg.Chat.ID, "Your access request is waiting for the administrator. I will let you know once it is approved.")
		return
	}
	b.sendMessage(msg.Chat.ID, "🔒 This bot is private. Your access request has been sent to the administrator.")
	b.notifyAdminRequest(u)
}

func (b *Bot) notifyAdminRequest(u auth.User) {
	if b.adminUserID == 0 {
		return
	}
	text := fmt.Sprintf("User %s (id %d) asks for access", u.DisplayName(), u.ID)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("approve", approvePrefix+strconv.FormatInt(u.ID, 10)),
			tgbotapi.NewInlineKeyboardButtonData("deny", denyPrefix+strconv.FormatInt(u.ID, 10)),
		),
	)
	_, _ = b.sendFormatted(b.adminUserID, b.escapeIfNeeded(text), kb)
}

func (b *Bot) approveUser(userID int64) {
	u, err := b.authSvc.Approve(userID)
	if err != nil {
		b.sendMessage(b.adminUserID, fmt.Sprintf("Approve %d failed: %v", userID, err))
		return
	}
	b.sendMessage(b.adminUserID, fmt.Sprintf("User %s (id %d) approved", u.DisplayName(), userID))
	b.sendMessage(userID, "✅ Access granted. Send /help to get started.")
}

func (b *Bot) denyUser(userID int64) {
	u, err := b.authSvc.Deny(userID)
	if err != nil {
		b.sendMessage(b.adminUserID, fmt.Sprintf("Deny %d failed: %v", userID, err))
		return
	}
	b.sendMessage(b.adminUserID, fmt.Sprintf("User %s (id %d) denied", u.DisplayName(), userID))
	b.sendMessage(userID, "⛔ Access request declined.")
}

func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message, args string) {
	if msg.From.ID != b.adminUserID {
		b.sendMessage(msg.Chat.ID, "❌ This command is for the administrator only.")
		return
	}
	switch msg.Command() {
	case "allowlist":
		var bld strings.Builder
		bld.WriteString("Allowlist:\n")
		for _, u := range b.authSvc.List() {
			bld.WriteString(fmt.Sprintf("- id=%d %s\n", u.ID, u.DisplayName()))
		}
		b.sendMessage(msg.Chat.ID, bld.String())
	case "pending":
		pending := b.authSvc.Pending()
		if len(pending) == 0 {
			b.sendMessage(msg.Chat.ID, "No pending requests.")
			return
		}
		var bld strings.Builder
		bld.WriteString("Pending requests:\n")
		for _, u := range pending {
			bld.WriteString(fmt.Sprintf("- id=%d %s since %s\n", u.ID, u.DisplayName(), u.RequestedAt.Format(time.DateTime)))
		}
		b.sendMessage(msg.Chat.ID, bld.String())
	case "approve", "deny", "remove":
		uid, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Usage: /%s <user_id>", msg.Command()))
			return
		}
		switch msg.Command() {
		case "approve":
			b.approveUser(uid)
		case "deny":
			b.denyUser(uid)
		default:
			if err := b.authSvc.Remove(uid); err != nil {
				b.sendMessage(msg.Chat.ID, fmt.Sprintf("Remove failed: %v", err))
				return
			}
			b.sessions.Close(uid)
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("User %d removed from the allowlist", uid))
		}
	case "report":
		day := b.now().AddDate(0, 0, -1)
		if args != "" {
			d, err := time.ParseInLocation(time.DateOnly, args, b.now().Location())
			if err != nil {
				b.sendMessage(msg.Chat.ID, "Usage: /report [YYYY-MM-DD]")
				return
			}
			day = d
		}
		if err := b.sendReport(msg.Chat.ID, day); err != nil {
			b.log.Warn("report generation failed", zap.Error(err))
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("❌ Report failed: %v", err))
		}
	}
}

// SendDailyReport sends the statistics of day to the admin. It does nothing
// when no admin is configured.
func (b *Bot) SendDailyReport(_ context.Context, day time.Time) error {
	if b.adminUserID == 0 {
		return nil
	}
	return b.sendReport(b.adminUserID, day)
}

func (b *Bot) sendReport(chatID int64, day time.Time) error {
	if b.recorder == nil {
		return errNoJournal
	}
	entries, err := b.recorder.Load()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	stats := analytics.AnalyzeDay(entries, day)
	for _, part := range splitMessage(stats.Summary(), maxMessageRunes) {
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := b.s.Send(msg); err != nil {
			return fmt.Errorf("send report: %w", err)
		}
	}
	b.log.Info("report sent", zap.String("date", stats.Date), zap.Int("questions", stats.Questions))
	return nil
}
