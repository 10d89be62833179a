package session

import (
	"context"

	"ragchat/internal/chat"
)

// Backend is the retrieval-augmented chat service as seen by one authenticated
// user. Every call is a single attempt.
type Backend interface {
	ListSources(ctx context.Context) ([]chat.Source, error)
	ListModels(ctx context.Context) ([]string, error)
	Profile(ctx context.Context) (chat.Profile, error)
	Credential(ctx context.Context) (string, error)
	SetCredential(ctx context.Context, key string) error
	SetDisplayName(ctx context.Context, name string) error

	Transcript(ctx context.Context, sourceID string) ([]chat.Message, error)
	ClearTranscript(ctx context.Context, sourceID string) error
	Ask(ctx context.Context, q chat.Question) (chat.Answer, error)

	DeleteSource(ctx context.Context, sourceID string) error
	IngestDocument(ctx context.Context, name string, data []byte) (string, error)
	IngestTable(ctx context.Context, name string, data []byte) (string, error)
	IngestTranscript(ctx context.Context, url string) (string, error)
	PreviewLocator(ctx context.Context, sourceID string) (string, error)
}

// Verifier checks an API credential before it is stored.
type Verifier interface {
	Verify(ctx context.Context, key string) error
}

// Observer receives progress phase changes of the in-flight send. Calls arrive
// from the simulator goroutine and must not block for long.
type Observer interface {
	PhaseChanged(phase int)
}

type ObserverFunc func(phase int)

func (f ObserverFunc) PhaseChanged(phase int) { f(phase) }
