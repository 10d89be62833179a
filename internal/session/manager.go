package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// BackendFactory binds a backend client to one user's identity token.
type BackendFactory func(token string) Backend

// Manager keeps one Session per Telegram user for the length of a visit. A
// session that stays idle longer than the TTL is evicted and closed, like an
// explicit sign-out.
type Manager struct {
	// mu orders Open, Get and Close against each other; the cache janitor
	// evicts on its own.
	mu         sync.Mutex
	sessions   *cache.Cache
	newBackend BackendFactory
	opts       Options
}

func NewManager(newBackend BackendFactory, opts Options, idleTTL time.Duration) *Manager {
	ttl, cleanup := cache.NoExpiration, time.Duration(0)
	if idleTTL > 0 {
		ttl, cleanup = idleTTL, idleTTL/4
		if cleanup < time.Second {
			cleanup = time.Second
		}
	}
	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(_ string, v interface{}) {
		if s, ok := v.(*Session); ok {
			s.Close()
		}
	})
	return &Manager{sessions: c, newBackend: newBackend, opts: opts}
}

func key(userID int64) string { return strconv.FormatInt(userID, 10) }

// Open creates the session of a user who just signed in, replacing any previous
// one. The observer receives the progress phases of this user's sends.
func (m *Manager) Open(userID int64, token string, obs Observer) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Delete(key(userID))
	opts := m.opts
	opts.Observer = obs
	if opts.Logger != nil {
		opts.Logger = opts.Logger.With(zap.Int64("user_id", userID))
	}
	s := New(m.newBackend(token), opts)
	m.sessions.Set(key(userID), s, cache.DefaultExpiration)
	return s
}

// Get returns the user's session and extends its idle deadline. A session the
// janitor closed meanwhile is dropped instead of being stored again.
func (m *Manager) Get(userID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sessions.Get(key(userID))
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	m.sessions.Set(key(userID), s, cache.DefaultExpiration)
	if s.Closed() {
		m.sessions.Delete(key(userID))
		return nil, false
	}
	return s, true
}

// Close signs the user out: the session is removed and torn down.
func (m *Manager) Close(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Delete(key(userID))
}

// Each calls fn for every open session.
func (m *Manager) Each(fn func(userID int64, s *Session)) {
	for k, item := range m.sessions.Items() {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		if s, ok := item.Object.(*Session); ok {
			fn(id, s)
		}
	}
}

func (m *Manager) Len() int { return m.sessions.ItemCount() }
