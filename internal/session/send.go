package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragchat/internal/chat"
)

type entry struct {
	id  uint64
	msg chat.Message
}

// tentative is the optimistic user message of one send. It is either committed
// together with the reply or reverted, never both.
type tentative struct {
	id       uint64
	sourceID string
}

func (s *Session) appendEntry(msg chat.Message) uint64 {
	s.nextEntry++
	s.transcript = append(s.transcript, entry{id: s.nextEntry, msg: msg})
	return s.nextEntry
}

func (s *Session) indexOf(id uint64) int {
	for i := range s.transcript {
		if s.transcript[i].id == id {
			return i
		}
	}
	return -1
}

// commit appends the reply and replaces the evidence. If the transcript was
// reset under the send (source change, deletion, clear) there is nothing to
// reconcile and the reply is dropped.
func (s *Session) commit(tx tentative, ans chat.Answer) bool {
	if s.indexOf(tx.id) < 0 {
		return false
	}
	s.appendEntry(chat.Message{Role: chat.RoleAssistant, Content: ans.Text})
	if len(ans.Evidence) > 0 {
		s.evidence = append([]chat.EvidenceChunk(nil), ans.Evidence...)
	} else {
		s.evidence = nil
	}
	return true
}

// revert removes exactly the tentative message, wherever it is.
func (s *Session) revert(tx tentative) bool {
	i := s.indexOf(tx.id)
	if i < 0 {
		return false
	}
	s.transcript = append(s.transcript[:i:i], s.transcript[i+1:]...)
	return true
}

// Rejection tells why a send was not accepted.
type Rejection int

const (
	Accepted Rejection = iota
	RejectBlank
	RejectClosed
	RejectNoSource
	RejectNoCredential
	RejectBusy
)

// Outcome describes one send. Applied is false when the transcript changed under
// the send and the reply was dropped.
type Outcome struct {
	Rejection Rejection
	Question  chat.Question
	Answer    chat.Answer
	Applied   bool
}

func (o Outcome) Accepted() bool { return o.Rejection == Accepted }

// Send asks the active source a question. Sends that fail a precondition (blank
// text, no active source, no credential, a send already in flight) are ignored
// and report false with a nil error.
func (s *Session) Send(ctx context.Context, text string) (bool, error) {
	out, err := s.Ask(ctx, text)
	return out.Accepted(), err
}

// Ask is Send reporting the full outcome.
func (s *Session) Ask(ctx context.Context, text string) (Outcome, error) {
	return s.AskObserved(ctx, text, nil)
}

// AskObserved is Ask with an observer for this send only. The observer is
// called only if the send is accepted: first with phase 0, then on every
// change until the reply is in. A rejected send never reaches it.
func (s *Session) AskObserved(ctx context.Context, text string, obs Observer) (Outcome, error) {
	question := strings.TrimSpace(text)

	s.mu.Lock()
	if r := s.rejectLocked(question); r != Accepted {
		s.mu.Unlock()
		return Outcome{Rejection: r}, nil
	}
	tx := tentative{
		id:       s.appendEntry(chat.Message{Role: chat.RoleUser, Content: question}),
		sourceID: s.active.ID,
	}
	s.sending = true
	s.evidence = nil
	q := chat.Question{
		SourceID:   tx.sourceID,
		Text:       question,
		Credential: s.credential,
		Model:      s.model,
	}
	s.mu.Unlock()

	var onPhase func(int)
	if obs != nil {
		onPhase = obs.PhaseChanged
	}
	s.sim.StartWith(onPhase)
	ans, err := s.backend.Ask(ctx, q)
	s.sim.Stop()

	out := Outcome{Question: q}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if !s.closed {
			s.revert(tx)
		}
		s.sending = false
		s.log.Warn("send failed", zap.String("source", tx.sourceID), zap.Error(err))
		return out, fmt.Errorf("ask %s: %w", tx.sourceID, err)
	}
	out.Answer = ans
	out.Applied = !s.closed && s.commit(tx, ans)
	if !out.Applied {
		s.log.Info("reply dropped, transcript changed during send", zap.String("source", tx.sourceID))
	}
	s.sending = false
	return out, nil
}

func (s *Session) rejectLocked(question string) Rejection {
	switch {
	case s.closed:
		return RejectClosed
	case question == "":
		return RejectBlank
	case s.active == nil:
		return RejectNoSource
	case s.credential == "":
		return RejectNoCredential
	case s.sending:
		return RejectBusy
	}
	return Accepted
}
