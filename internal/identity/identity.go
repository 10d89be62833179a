// Package identity remembers which backend identity token belongs to which
// Telegram user, so a restarted bot can reopen sessions without a new /login.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrNotLinked = errors.New("no backend identity linked")

type Link struct {
	UserID   int64     `json:"user_id"`
	Token    string    `json:"token"`
	LinkedAt time.Time `json:"linked_at"`
}

type Repository interface {
	LoadAll() ([]Link, error)
	Save(links []Link) error
}

// Registry is the in-memory view of the links, written through to the repo.
type Registry struct {
	mu    sync.RWMutex
	links map[int64]Link
	repo  Repository
}

func NewRegistry(repo Repository) (*Registry, error) {
	r := &Registry{links: make(map[int64]Link), repo: repo}
	if repo == nil {
		return r, nil
	}
	links, err := repo.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	for _, l := range links {
		r.links[l.UserID] = l
	}
	return r, nil
}

func (r *Registry) Token(userID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[userID]
	if !ok {
		return "", ErrNotLinked
	}
	return l.Token, nil
}

// Link stores token for userID, replacing any earlier link.
func (r *Registry) Link(userID int64, token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("empty token")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.links[userID]
	r.links[userID] = Link{UserID: userID, Token: token, LinkedAt: now}
	if err := r.persistLocked(); err != nil {
		if had {
			r.links[userID] = prev
		} else {
			delete(r.links, userID)
		}
		return err
	}
	return nil
}

// Unlink forgets the user's token. Unlinking an unknown user is not an error.
func (r *Registry) Unlink(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[userID]; !ok {
		return nil
	}
	delete(r.links, userID)
	return r.persistLocked()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}

func (r *Registry) persistLocked() error {
	if r.repo == nil {
		return nil
	}
	out := make([]Link, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, l)
	}
	return r.repo.Save(out)
}
