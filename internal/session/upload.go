package session

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"ragchat/internal/chat"
)

// Coordinator hands content to the backend for ingestion and, on success,
// registers the new source and makes it active. One ingestion at a time; the
// busy flag is separate from the session's sending flag.
type Coordinator struct {
	session *Session
	busy    atomic.Bool
}

func (c *Coordinator) Busy() bool { return c.busy.Load() }

func (c *Coordinator) UploadDocument(ctx context.Context, name string, data []byte) (chat.Source, error) {
	if strings.TrimSpace(name) == "" || len(data) == 0 {
		return chat.Source{}, ErrEmptyInput
	}
	return c.ingest(ctx, chat.KindDocument, func(ctx context.Context) (string, error) {
		return c.session.backend.IngestDocument(ctx, name, data)
	})
}

func (c *Coordinator) UploadTranscript(ctx context.Context, url string) (chat.Source, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return chat.Source{}, ErrEmptyInput
	}
	return c.ingest(ctx, chat.KindVideoTranscript, func(ctx context.Context) (string, error) {
		return c.session.backend.IngestTranscript(ctx, url)
	})
}

func (c *Coordinator) UploadTable(ctx context.Context, name string, data []byte) (chat.Source, error) {
	if strings.TrimSpace(name) == "" || len(data) == 0 {
		return chat.Source{}, ErrEmptyInput
	}
	return c.ingest(ctx, chat.KindTabular, func(ctx context.Context) (string, error) {
		return c.session.backend.IngestTable(ctx, name, data)
	})
}

// ingest returns the registered source even when loading its (normally empty)
// history fails afterwards.
func (c *Coordinator) ingest(ctx context.Context, kind chat.SourceKind, call func(context.Context) (string, error)) (chat.Source, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return chat.Source{}, ErrUploadBusy
	}
	defer c.busy.Store(false)

	id, err := call(ctx)
	if err != nil {
		return chat.Source{}, fmt.Errorf("ingest %s: %w", kind.Label(), err)
	}
	src := chat.Source{ID: id, Kind: kind, CreatedAt: c.session.now()}
	if err := c.session.register(src); err != nil {
		return chat.Source{}, err
	}
	c.session.log.Info("source ingested", zap.String("source", id), zap.String("kind", string(kind)))

	if err := c.session.SelectSource(ctx, id); err != nil {
		return src, err
	}
	return src, nil
}
