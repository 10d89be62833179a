// Package session is the conversational controller of one signed-in user: the
// active knowledge source, its transcript, the evidence of the last answer and
// the single in-flight send.
//
// All state transitions happen under one mutex; backend calls run outside it and
// are reconciled on return. History loads use last-selection-wins: a load whose
// ticket is no longer current is discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/chat"
)

const DefaultModel = "google/gemini-2.5-flash"

var (
	ErrClosed        = errors.New("session closed")
	ErrUnknownSource = errors.New("unknown source")
	ErrUnknownModel  = errors.New("unknown model")
	ErrEmptyInput    = errors.New("empty input")
	ErrUploadBusy    = errors.New("another upload is in progress")
)

type Options struct {
	Model          string
	ThinkingPeriod time.Duration
	Observer       Observer
	Verifier       Verifier
	Logger         *zap.Logger
	Now            func() time.Time
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	ActiveSource  *chat.Source
	Sources       []chat.Source
	Transcript    []chat.Message
	Evidence      []chat.EvidenceChunk
	Sending       bool
	History       LoadState
	Phase         int
	Preview       string
	Models        []string
	Model         string
	HasCredential bool
	Profile       chat.Profile
}

type Session struct {
	backend  Backend
	verifier Verifier
	log      *zap.Logger
	now      func() time.Time
	sim      *Simulator
	uploads  *Coordinator

	mu         sync.Mutex
	closed     bool
	registry   Registry
	history    Synchronizer
	active     *chat.Source
	transcript []entry
	nextEntry  uint64
	evidence   []chat.EvidenceChunk
	sending    bool
	preview    string
	models     []string
	model      string
	credential string
	profile    chat.Profile
}

func New(b Backend, opts Options) *Session {
	s := &Session{
		backend:  b,
		verifier: opts.Verifier,
		log:      opts.Logger,
		now:      opts.Now,
		model:    opts.Model,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.model == "" {
		s.model = DefaultModel
	}
	var onPhase func(int)
	if opts.Observer != nil {
		onPhase = opts.Observer.PhaseChanged
	}
	s.sim = NewSimulator(opts.ThinkingPeriod, onPhase)
	s.uploads = &Coordinator{session: s}
	return s
}

func (s *Session) Uploads() *Coordinator { return s.uploads }

// Load fetches sources, models, profile and credential in parallel. Each failed
// part falls back to its empty value; the failures are returned joined.
func (s *Session) Load(ctx context.Context) error {
	var (
		g          errgroup.Group
		sources    []chat.Source
		models     []string
		profile    chat.Profile
		credential string
		errs       [4]error
	)
	g.Go(func() error {
		sources, errs[0] = s.backend.ListSources(ctx)
		return nil
	})
	g.Go(func() error {
		models, errs[1] = s.backend.ListModels(ctx)
		return nil
	})
	g.Go(func() error {
		profile, errs[2] = s.backend.Profile(ctx)
		return nil
	})
	g.Go(func() error {
		credential, errs[3] = s.backend.Credential(ctx)
		return nil
	})
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	var failed []error
	if errs[0] != nil {
		failed = append(failed, fmt.Errorf("list sources: %w", errs[0]))
	} else {
		s.registry.Replace(sources)
	}
	if errs[1] != nil {
		failed = append(failed, fmt.Errorf("list models: %w", errs[1]))
		models = nil
	}
	if errs[2] != nil {
		failed = append(failed, fmt.Errorf("get profile: %w", errs[2]))
		profile = chat.Profile{}
	}
	if errs[3] != nil {
		failed = append(failed, fmt.Errorf("get credential: %w", errs[3]))
		credential = ""
	}
	s.models = append([]string(nil), models...)
	s.profile = profile
	s.credential = credential
	return errors.Join(failed...)
}

// RefreshSources re-lists the sources. On failure the registry is unchanged.
// An active source that is no longer listed was deleted elsewhere; the session
// is left with no source.
func (s *Session) RefreshSources(ctx context.Context) error {
	sources, err := s.backend.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.registry.Replace(sources)
	if s.active != nil {
		if _, ok := s.registry.Lookup(s.active.ID); !ok {
			s.log.Info("active source removed elsewhere", zap.String("source", s.active.ID))
			s.activate(nil)
		}
	}
	return nil
}

// SetModels replaces the model catalog, keeping the selected model.
func (s *Session) SetModels(models []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = append([]string(nil), models...)
}

// activate switches the active source and clears everything bound to the previous
// one before any new transcript can arrive. Callers hold s.mu.
func (s *Session) activate(src *chat.Source) ticket {
	s.active = src
	s.transcript = nil
	s.evidence = nil
	s.preview = ""
	if src == nil {
		return s.history.begin("")
	}
	return s.history.begin(src.ID)
}

// SelectSource makes id the active source and loads its transcript. An empty id
// deselects. Selecting the already active source does nothing.
func (s *Session) SelectSource(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	var src *chat.Source
	if id != "" {
		found, ok := s.registry.Lookup(id)
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownSource, id)
		}
		src = &found
	}
	if (src == nil && s.active == nil) || (src != nil && s.active != nil && s.active.ID == src.ID) {
		s.mu.Unlock()
		return nil
	}
	t := s.activate(src)
	s.mu.Unlock()

	if src == nil {
		return nil
	}
	return s.loadHistory(ctx, t, *src)
}

func (s *Session) loadHistory(ctx context.Context, t ticket, src chat.Source) error {
	msgs, preview, err := fetchHistory(ctx, s.backend, src, s.log)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.history.current(t) {
		s.log.Debug("stale history discarded", zap.String("source", src.ID), zap.Error(err))
		return nil
	}
	if err != nil {
		s.history.settle(t, true)
		s.transcript = nil
		return fmt.Errorf("load history of %s: %w", src.ID, err)
	}
	// messages sent on this source while the load was in flight stay after the
	// loaded history
	loaded := make([]entry, 0, len(msgs)+len(s.transcript))
	for _, m := range msgs {
		s.nextEntry++
		loaded = append(loaded, entry{id: s.nextEntry, msg: m})
	}
	s.transcript = append(loaded, s.transcript...)
	s.preview = preview
	s.history.settle(t, false)
	return nil
}

// ClearHistory wipes the persisted transcript of the active source, then the
// local transcript and evidence. Nothing changes locally when the backend fails.
func (s *Session) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.active == nil {
		s.mu.Unlock()
		return nil
	}
	id := s.active.ID
	s.mu.Unlock()

	if err := s.backend.ClearTranscript(ctx, id); err != nil {
		return fmt.Errorf("clear history of %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.ID == id {
		s.transcript = nil
		s.evidence = nil
	}
	return nil
}

// DeleteSource removes a source on the backend and then from the registry.
// Deleting the active source leaves the session with no source.
func (s *Session) DeleteSource(ctx context.Context, id string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := s.backend.DeleteSource(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Remove(id)
	if s.active != nil && s.active.ID == id {
		s.activate(nil)
	}
	return nil
}

func (s *Session) register(src chat.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.registry.Register(src)
	return nil
}

func (s *Session) SetModel(model string) error {
	model = strings.TrimSpace(model)
	s.mu.Lock()
	defer s.mu.Unlock()
	if model == "" || (len(s.models) > 0 && !slices.Contains(s.models, model)) {
		return fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	s.model = model
	return nil
}

// SetCredential stores a new API key on the backend and then locally.
func (s *Session) SetCredential(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyInput
	}
	if s.verifier != nil {
		if err := s.verifier.Verify(ctx, key); err != nil {
			return fmt.Errorf("verify api key: %w", err)
		}
	}
	if err := s.backend.SetCredential(ctx, key); err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = key
	s.profile.HasCredential = true
	s.profile.CredentialHint = credentialHint(key)
	return nil
}

func (s *Session) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyInput
	}
	if err := s.backend.SetDisplayName(ctx, name); err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.DisplayName = name
	return nil
}

func credentialHint(key string) string {
	if len(key) <= 8 {
		return "..." + key
	}
	return "..." + key[len(key)-8:]
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Sending:       s.sending,
		History:       s.history.State(),
		Phase:         s.sim.Phase(),
		Preview:       s.preview,
		Models:        append([]string(nil), s.models...),
		Model:         s.model,
		HasCredential: s.credential != "",
		Profile:       s.profile,
		Evidence:      append([]chat.EvidenceChunk(nil), s.evidence...),
	}
	activeID := ""
	if s.active != nil {
		src := *s.active
		snap.ActiveSource = &src
		activeID = src.ID
	}
	snap.Sources = s.registry.List(activeID)
	snap.Transcript = make([]chat.Message, len(s.transcript))
	for i, e := range s.transcript {
		snap.Transcript[i] = e.msg
	}
	return snap
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down at sign-out: the state returns to its empty form
// and every later operation fails with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.activate(nil)
	s.registry.Replace(nil)
	s.models = nil
	s.credential = ""
	s.profile = chat.Profile{}
	s.sending = false
	s.mu.Unlock()

	s.sim.Stop()
}
