package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct{ users []User }

func (m *memRepo) LoadAll() ([]User, error) { return append([]User{}, m.users...), nil }
func (m *memRepo) Upsert(u User) error {
	for i, x := range m.users {
		if x.ID == u.ID {
			m.users[i] = u
			return nil
		}
	}
	m.users = append(m.users, u)
	return nil
}
func (m *memRepo) Remove(id int64) error {
	out := make([]User, 0, len(m.users))
	for _, x := range m.users {
		if x.ID != id {
			out = append(out, x)
		}
	}
	m.users = out
	return nil
}

func TestServiceBasic(t *testing.T) {
	repo := &memRepo{users: []User{{ID: 10, Username: "alice"}}}
	svc, err := NewWithRepo(repo, nil, []int64{20})
	require.NoError(t, err)

	assert.True(t, svc.IsAllowed(10), "repo preload")
	assert.True(t, svc.IsAllowed(20), "env list merged")
	assert.False(t, svc.IsAllowed(30))

	require.NoError(t, svc.Upsert(User{ID: 30, Username: "bob"}))
	assert.True(t, svc.IsAllowed(30))

	require.NoError(t, svc.Remove(10))
	assert.False(t, svc.IsAllowed(10))

	lst := svc.List()
	require.Len(t, lst, 2)
	assert.Equal(t, int64(20), lst[0].ID)
	assert.Equal(t, int64(30), lst[1].ID)
	assert.Len(t, repo.users, 1)
}

func TestAccessRequests(t *testing.T) {
	repo, queue := &memRepo{}, &memRepo{}
	svc, err := NewWithRepo(repo, queue, []int64{1})
	require.NoError(t, err)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	queued, err := svc.RequestAccess(User{ID: 1}, now)
	require.NoError(t, err)
	assert.False(t, queued, "already allowed")

	queued, err = svc.RequestAccess(User{ID: 5, Username: "eve"}, now)
	require.NoError(t, err)
	assert.True(t, queued)
	queued, _ = svc.RequestAccess(User{ID: 5, Username: "eve"}, now)
	assert.False(t, queued, "already waiting")

	require.Len(t, svc.Pending(), 1)
	assert.Equal(t, now, svc.Pending()[0].RequestedAt)

	u, err := svc.Approve(5)
	require.NoError(t, err)
	assert.Equal(t, "eve", u.Username)
	assert.True(t, svc.IsAllowed(5))
	assert.Empty(t, svc.Pending())
	assert.Empty(t, queue.users)
	assert.Len(t, repo.users, 1)

	_, err = svc.Approve(5)
	assert.ErrorIs(t, err, ErrNoRequest)
}

func TestDeny(t *testing.T) {
	queue := &memRepo{users: []User{{ID: 7, FirstName: "Max"}}}
	svc, err := NewWithRepo(nil, queue, nil)
	require.NoError(t, err)

	u, err := svc.Deny(7)
	require.NoError(t, err)
	assert.Equal(t, "Max", u.DisplayName())
	assert.False(t, svc.IsAllowed(7))
	assert.Empty(t, queue.users)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "@ann", User{Username: "ann", FirstName: "Ann"}.DisplayName())
	assert.Equal(t, "Ann Lee", User{FirstName: "Ann", LastName: "Lee"}.DisplayName())
	assert.Equal(t, "Lee", User{LastName: "Lee"}.DisplayName())
}

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "allowlist.json")
	repo, err := NewFileRepository(path)
	require.NoError(t, err)

	users, err := repo.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, users)

	require.NoError(t, repo.Upsert(User{ID: 1, Username: "a"}))
	require.NoError(t, repo.Upsert(User{ID: 2, Username: "b"}))
	require.NoError(t, repo.Upsert(User{ID: 1, Username: "a2"}))
	require.NoError(t, repo.Remove(2))

	reopened, err := NewFileRepository(path)
	require.NoError(t, err)
	users, err = reopened.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []User{{ID: 1, Username: "a2"}}, users)

	svc, err := NewWithRepo(reopened, nil, nil)
	require.NoError(t, err)
	assert.True(t, svc.IsAllowed(1))
}
