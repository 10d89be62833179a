package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	b.answerCallback(cb.ID, "")
	chatID, userID := cb.Message.Chat.ID, cb.From.ID

	switch {
	case strings.HasPrefix(cb.Data, approvePrefix), strings.HasPrefix(cb.Data, denyPrefix):
		if userID != b.adminUserID {
			return
		}
		approve := strings.HasPrefix(cb.Data, approvePrefix)
		idStr := strings.TrimPrefix(strings.TrimPrefix(cb.Data, approvePrefix), denyPrefix)
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return
		}
		if approve {
			b.approveUser(id)
		} else {
			b.denyUser(id)
		}
		return
	}

	if !b.authSvc.IsAllowed(userID) {
		return
	}
	switch {
	case cb.Data == filesCmd:
		b.handleFiles(ctx, chatID, userID)
	case cb.Data == evidenceCmd:
		b.handleEvidence(ctx, chatID, userID)
	case cb.Data == clearCmd:
		b.handleClear(ctx, chatID, userID)
	case strings.HasPrefix(cb.Data, selectPrefix), strings.HasPrefix(cb.Data, deletePrefix):
		s, ok := b.sessionFor(ctx, userID)
		if !ok {
			b.sendMessage(chatID, "🔑 Link your account first: /login <token>")
			return
		}
		del := strings.HasPrefix(cb.Data, deletePrefix)
		token := strings.TrimPrefix(strings.TrimPrefix(cb.Data, selectPrefix), deletePrefix)
		src, ok := findSource(s.Snapshot().Sources, token)
		if !ok {
			b.sendMessage(chatID, "This source is gone. Refresh with /files")
			return
		}
		if del {
			b.deleteSource(ctx, s, chatID, userID, src.ID)
		} else {
			b.selectSource(ctx, s, chatID, userID, src.ID)
		}
	case strings.HasPrefix(cb.Data, modelPrefix):
		s, ok := b.sessionFor(ctx, userID)
		if !ok {
			return
		}
		i, err := strconv.Atoi(strings.TrimPrefix(cb.Data, modelPrefix))
		models := s.Snapshot().Models
		if err != nil || i < 0 || i >= len(models) {
			b.sendMessage(chatID, "This list is outdated. See /models")
			return
		}
		b.setModel(s, chatID, userID, models[i])
	default:
		b.log.Debug("unknown callback", zap.String("data", cb.Data))
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.s.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Debug("answer callback failed", zap.Error(err))
	}
}
