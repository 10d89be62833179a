package session

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/chat"
)

type LoadState int

const (
	LoadIdle LoadState = iota
	LoadLoading
	LoadSettled
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadLoading:
		return "loading"
	case LoadSettled:
		return "settled"
	case LoadFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ticket identifies one triggered history load.
type ticket struct {
	gen      uint64
	sourceID string
}

// Synchronizer tracks which history load is the most recently triggered one.
// Every activation bumps the generation; a load may only be applied while its
// ticket still matches it.
type Synchronizer struct {
	gen   uint64
	state LoadState
}

func (h *Synchronizer) begin(sourceID string) ticket {
	h.gen++
	if sourceID == "" {
		h.state = LoadSettled
	} else {
		h.state = LoadLoading
	}
	return ticket{gen: h.gen, sourceID: sourceID}
}

func (h *Synchronizer) current(t ticket) bool { return t.gen == h.gen }

func (h *Synchronizer) settle(t ticket, failed bool) bool {
	if !h.current(t) {
		return false
	}
	if failed {
		h.state = LoadFailed
	} else {
		h.state = LoadSettled
	}
	return true
}

func (h *Synchronizer) State() LoadState { return h.state }

// fetchHistory retrieves the transcript of src and, for documents, the preview
// locator in parallel. A preview failure never fails the transcript load.
func fetchHistory(ctx context.Context, b Backend, src chat.Source, log *zap.Logger) ([]chat.Message, string, error) {
	var (
		g          errgroup.Group
		transcript []chat.Message
		preview    string
	)
	g.Go(func() error {
		msgs, err := b.Transcript(ctx, src.ID)
		if err != nil {
			return err
		}
		transcript = msgs
		return nil
	})
	if src.Kind == chat.KindDocument {
		g.Go(func() error {
			loc, err := b.PreviewLocator(ctx, src.ID)
			if err != nil {
				log.Warn("preview unavailable", zap.String("source", src.ID), zap.Error(err))
				return nil
			}
			preview = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	return transcript, preview, nil
}
