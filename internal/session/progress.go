package session

import (
	"context"
	"sync"
	"time"
)

// DefaultThinkingPeriod is how long each cosmetic phase is shown.
const DefaultThinkingPeriod = 1800 * time.Millisecond

type Phase struct {
	Tag   string
	Label string
}

// Phases is the fixed sequence shown while a question is in flight. It does not
// reflect what the backend is actually doing.
var Phases = []Phase{
	{Tag: "PARSE", Label: "Parsing query"},
	{Tag: "EMBED", Label: "Vectorizing input"},
	{Tag: "SEARCH", Label: "Searching document chunks"},
	{Tag: "RANK", Label: "Ranking relevant passages"},
	{Tag: "GEN", Label: "Generating response"},
}

// Simulator advances a phase pointer on a fixed period while a send is running.
// Each Start launches one ticking task that Stop cancels and waits for.
type Simulator struct {
	period  time.Duration
	onPhase func(int)

	mu     sync.Mutex
	phase  int
	extra  func(int)
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSimulator(period time.Duration, onPhase func(int)) *Simulator {
	if period <= 0 {
		period = DefaultThinkingPeriod
	}
	return &Simulator{period: period, onPhase: onPhase}
}

// Start begins a new run from the first phase. A run that is still active is
// stopped first.
func (s *Simulator) Start() { s.StartWith(nil) }

// StartWith is Start with a callback bound to this run only. It receives the
// first phase synchronously before ticking begins, then every later change.
func (s *Simulator) StartWith(onPhase func(int)) {
	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.phase = 0
	s.extra = onPhase
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	if onPhase != nil {
		onPhase(0)
	}
	go s.run(ctx, done)
}

func (s *Simulator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.phase++
		phase, extra := s.phase, s.extra
		s.mu.Unlock()

		if s.onPhase != nil {
			s.onPhase(phase)
		}
		if extra != nil {
			extra(phase)
		}
		// hold on the final phase until stopped
		if phase >= len(Phases)-1 {
			return
		}
	}
}

// Stop cancels the running task, waits for it to exit and resets the pointer to
// the first phase. It is safe to call when nothing is running.
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.extra = nil
	s.phase = 0
	if cancel != nil {
		cancel()
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Simulator) Phase() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
