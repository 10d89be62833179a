package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepo struct{ err error }

func (f failingRepo) LoadAll() ([]Link, error) { return nil, nil }
func (f failingRepo) Save([]Link) error        { return f.err }

func TestRegistry_LinkAndUnlink(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err = r.Token(1)
	assert.ErrorIs(t, err, ErrNotLinked)

	require.NoError(t, r.Link(1, " tok ", now))
	tok, err := r.Token(1)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	require.NoError(t, r.Link(1, "tok2", now))
	tok, _ = r.Token(1)
	assert.Equal(t, "tok2", tok)

	assert.Error(t, r.Link(2, "  ", now))
	require.NoError(t, r.Unlink(1))
	require.NoError(t, r.Unlink(1))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_FailedSaveKeepsPreviousLink(t *testing.T) {
	r, err := NewRegistry(failingRepo{err: errors.New("disk full")})
	require.NoError(t, err)
	r.links[1] = Link{UserID: 1, Token: "old"}

	assert.Error(t, r.Link(1, "new", time.Now()))
	tok, _ := r.Token(1)
	assert.Equal(t, "old", tok)

	assert.Error(t, r.Link(2, "x", time.Now()))
	_, err = r.Token(2)
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestFileRepository_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "identities.json")
	repo, err := NewFileRepository(path)
	require.NoError(t, err)

	r, err := NewRegistry(repo)
	require.NoError(t, err)
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, r.Link(20, "b", now))
	require.NoError(t, r.Link(10, "a", now))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded, err := NewRegistry(repo)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
	tok, err := reloaded.Token(10)
	require.NoError(t, err)
	assert.Equal(t, "a", tok)

	links, err := repo.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, int64(10), links[0].UserID)
	assert.Equal(t, now, links[0].LinkedAt)
}

func TestFileRepository_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identities.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	repo, err := NewFileRepository(path)
	require.NoError(t, err)

	_, err = NewRegistry(repo)
	assert.Error(t, err)
}
