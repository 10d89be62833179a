package session

import (
	"context"
	"errors"
	"sync"

	"ragchat/internal/chat"
)

type askCall struct {
	q     chat.Question
	reply chan askReply
}

type askReply struct {
	ans chat.Answer
	err error
}

// fakeBackend serves canned data. Transcript loads for a source listed in gates
// block until the gate is closed; asks block when manualAsk is set.
type fakeBackend struct {
	mu sync.Mutex

	sources     []chat.Source
	models      []string
	profile     chat.Profile
	credential  string
	transcripts map[string][]chat.Message
	gates       map[string]chan struct{}
	preview     map[string]string

	listErr, modelsErr, profileErr, credErr error
	transcriptErr, previewErr, clearErr     error
	deleteErr, ingestErr, setCredErr        error

	answer    chat.Answer
	askErr    error
	manualAsk bool
	asks      chan askCall

	ingested    []string
	cleared     []string
	deleted     []string
	asked       []chat.Question
	transcriptN map[string]int
	previewN    int
	ingestGate  chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		transcripts: map[string][]chat.Message{},
		gates:       map[string]chan struct{}{},
		preview:     map[string]string{},
		transcriptN: map[string]int{},
		asks:        make(chan askCall, 4),
		credential:  "sk-test",
	}
}

func (f *fakeBackend) ListSources(context.Context) ([]chat.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Source(nil), f.sources...), f.listErr
}

func (f *fakeBackend) ListModels(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.models, f.modelsErr
}

func (f *fakeBackend) Profile(context.Context) (chat.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile, f.profileErr
}

func (f *fakeBackend) Credential(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credential, f.credErr
}

func (f *fakeBackend) SetCredential(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setCredErr != nil {
		return f.setCredErr
	}
	f.credential = key
	return nil
}

func (f *fakeBackend) SetDisplayName(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile.DisplayName = name
	return nil
}

func (f *fakeBackend) Transcript(ctx context.Context, id string) ([]chat.Message, error) {
	f.mu.Lock()
	gate := f.gates[id]
	f.transcriptN[id]++
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transcriptErr != nil {
		return nil, f.transcriptErr
	}
	return append([]chat.Message(nil), f.transcripts[id]...), nil
}

func (f *fakeBackend) ClearTranscript(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, id)
	return nil
}

func (f *fakeBackend) Ask(_ context.Context, q chat.Question) (chat.Answer, error) {
	f.mu.Lock()
	f.asked = append(f.asked, q)
	manual := f.manualAsk
	ans, err := f.answer, f.askErr
	f.mu.Unlock()
	if !manual {
		return ans, err
	}
	call := askCall{q: q, reply: make(chan askReply)}
	f.asks <- call
	r := <-call.reply
	return r.ans, r.err
}

func (f *fakeBackend) DeleteSource(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) ingest(name string) (string, error) {
	f.mu.Lock()
	gate := f.ingestGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ingestErr != nil {
		return "", f.ingestErr
	}
	f.ingested = append(f.ingested, name)
	return name, nil
}

func (f *fakeBackend) IngestDocument(_ context.Context, name string, _ []byte) (string, error) {
	return f.ingest(name)
}

func (f *fakeBackend) IngestTable(_ context.Context, name string, _ []byte) (string, error) {
	return f.ingest(name)
}

func (f *fakeBackend) IngestTranscript(_ context.Context, url string) (string, error) {
	return f.ingest("youtube_" + url[len(url)-11:])
}

func (f *fakeBackend) PreviewLocator(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previewN++
	if f.previewErr != nil {
		return "", f.previewErr
	}
	return f.preview[id], nil
}

var errRateLimited = errors.New("rate limited")

func user(s string) chat.Message      { return chat.Message{Role: chat.RoleUser, Content: s} }
func assistant(s string) chat.Message { return chat.Message{Role: chat.RoleAssistant, Content: s} }
