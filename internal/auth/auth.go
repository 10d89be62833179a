// Package auth is the operator allowlist: which Telegram users may use the bot,
// plus the access requests waiting for the admin's decision.
package auth

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNoRequest = errors.New("no pending access request")

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	RequestedAt time.Time `json:"requested_at,omitempty"`
}

// DisplayName is the @username when known, otherwise the first and last name.
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	return name
}

type Repository interface {
	LoadAll() ([]User, error)
	Upsert(user User) error
	Remove(userID int64) error
}

type Service struct {
	mu      sync.RWMutex
	allowed map[int64]User
	pending map[int64]User
	repo    Repository
	queue   Repository
}

// NewWithRepo loads the allowlist from repo and access requests from queue.
// Either may be nil. IDs in initial are allowed without a stored profile.
func NewWithRepo(repo, queue Repository, initial []int64) (*Service, error) {
	s := &Service{
		allowed: make(map[int64]User),
		pending: make(map[int64]User),
		repo:    repo,
		queue:   queue,
	}
	if repo != nil {
		users, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			s.allowed[u.ID] = u
		}
	}
	for _, id := range initial {
		if _, ok := s.allowed[id]; !ok {
			s.allowed[id] = User{ID: id}
		}
	}
	if queue != nil {
		users, err := queue.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if _, ok := s.allowed[u.ID]; !ok {
				s.pending[u.ID] = u
			}
		}
	}
	return s, nil
}

func (s *Service) IsAllowed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allowed[userID]
	return ok
}

func (s *Service) Upsert(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[user.ID] = user
	if s.repo != nil {
		return s.repo.Upsert(user)
	}
	return nil
}

func (s *Service) Remove(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allowed, userID)
	if s.repo != nil {
		return s.repo.Remove(userID)
	}
	return nil
}

// List returns the allowed users ordered by ID.
func (s *Service) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.allowed)
}

// RequestAccess queues user for the admin. It reports false when the user is
// already allowed or already waiting.
func (s *Service) RequestAccess(user User, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.allowed[user.ID]; ok {
		return false, nil
	}
	if _, ok := s.pending[user.ID]; ok {
		return false, nil
	}
	user.RequestedAt = now
	s.pending[user.ID] = user
	if s.queue != nil {
		return true, s.queue.Upsert(user)
	}
	return true, nil
}

// Approve moves a pending request into the allowlist.
func (s *Service) Approve(userID int64) (User, error) {
	s.mu.Lock()
	u, ok := s.pending[userID]
	if !ok {
		s.mu.Unlock()
		return User{}, ErrNoRequest
	}
	delete(s.pending, userID)
	s.allowed[userID] = u
	s.mu.Unlock()

	if s.queue != nil {
		if err := s.queue.Remove(userID); err != nil {
			return u, err
		}
	}
	if s.repo != nil {
		return u, s.repo.Upsert(u)
	}
	return u, nil
}

func (s *Service) Deny(userID int64) (User, error) {
	s.mu.Lock()
	u, ok := s.pending[userID]
	if !ok {
		s.mu.Unlock()
		return User{}, ErrNoRequest
	}
	delete(s.pending, userID)
	s.mu.Unlock()

	if s.queue != nil {
		return u, s.queue.Remove(userID)
	}
	return u, nil
}

func (s *Service) Pending() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.pending)
}

func sorted(m map[int64]User) []User {
	out := make([]User, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
