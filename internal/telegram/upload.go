package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ragchat/internal/chat"
)

// Telegram bots may not download files above 20 MB.
const maxUploadBytes = 20 << 20

func uploadKind(fileName string) (chat.SourceKind, bool) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return chat.KindDocument, true
	case ".csv":
		return chat.KindTabular, true
	}
	return "", false
}

// handleDocument ingests a PDF or CSV sent as a Telegram document.
func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	s, ok := b.requireSession(ctx, msg)
	if !ok {
		return
	}
	doc := msg.Document
	kind, ok := uploadKind(doc.FileName)
	if !ok {
		b.sendMessage(msg.Chat.ID, "Only PDF and CSV files are supported. For videos use /youtube <url>.")
		return
	}
	if doc.FileSize > maxUploadBytes {
		b.sendMessage(msg.Chat.ID, "The file is too large, the limit is 20 MB.")
		return
	}
	if s.Uploads().Busy() {
		b.sendMessage(msg.Chat.ID, "⏳ Another upload is still running.")
		return
	}

	data, err := b.download(ctx, doc.FileID)
	if err != nil {
		b.reportError(msg.Chat.ID, msg.From.ID, "downloading the file", err)
		return
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("⏳ Processing %s...", doc.FileName))

	var src chat.Source
	if kind == chat.KindTabular {
		src, err = s.Uploads().UploadTable(ctx, doc.FileName, data)
	} else {
		src, err = s.Uploads().UploadDocument(ctx, doc.FileName, data)
	}
	b.afterIngest(s, msg.Chat.ID, msg.From.ID, kind, src, err)
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.files.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}
	return data, nil
}
