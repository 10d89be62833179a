package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// progressView mirrors the thinking phases of one question in a single chat
// message. The message is created on the first phase, which the session only
// reports once the question is accepted, edited on each change and removed by
// the handler that owns the send.
type progressView struct {
	b      *Bot
	chatID int64

	mu        sync.Mutex
	messageID int
	phase     int
}

func (b *Bot) newProgressView(chatID int64) *progressView {
	return &progressView{b: b, chatID: chatID}
}

// PhaseChanged implements session.Observer.
func (v *progressView) PhaseChanged(phase int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.messageID == 0 {
		sent, err := v.b.sendFormatted(v.chatID, v.b.renderPhase(phase), nil)
		if err == nil {
			v.messageID = sent.MessageID
			v.phase = phase
		}
		return
	}
	if phase == v.phase {
		return
	}
	v.phase = phase
	edit := tgbotapi.NewEditMessageText(v.chatID, v.messageID, v.b.renderPhase(phase))
	edit.ParseMode = v.b.parseModeValue()
	if _, err := v.b.s.Send(edit); err != nil {
		v.b.log.Debug("failed to update progress message", zap.Error(err))
	}
}

func (v *progressView) end() {
	v.mu.Lock()
	messageID := v.messageID
	v.messageID = 0
	v.mu.Unlock()
	if messageID != 0 {
		v.b.deleteMessage(v.chatID, messageID)
	}
}
