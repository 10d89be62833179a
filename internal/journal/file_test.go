package journal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecorder_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "journal.jsonl")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	ts := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	e1 := Entry{Timestamp: ts, UserID: 1, Action: ActionAsk, SourceID: "doc.pdf", Question: "q", Answer: "a", Evidence: 2}
	e2 := Entry{Timestamp: ts.Add(time.Minute), UserID: 2, Action: ActionAsk, SourceID: "doc.pdf", Question: "q2", Error: "rate limited"}
	require.NoError(t, rec.Append(e1))
	require.NoError(t, rec.Append(e2))

	got, err := rec.Load()
	require.NoError(t, err)
	assert.Equal(t, []Entry{e1, e2}, got)
	assert.False(t, got[0].Failed())
	assert.True(t, got[1].Failed())
}

func TestFileRecorder_SkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{bad\n\n{\"user_id\":3,\"action\":\"clear\"}\n"), 0o644))
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	got, err := rec.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionClear, got[0].Action)
}

func TestFileRecorder_ConcurrentAppends(t *testing.T) {
	rec, err := NewFileRecorder(filepath.Join(t.TempDir(), "journal.jsonl"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, rec.Append(Entry{UserID: int64(i), Action: ActionAsk}))
		}(i)
	}
	wg.Wait()

	got, err := rec.Load()
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestSince(t *testing.T) {
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{{Timestamp: base.Add(-time.Hour)}, {Timestamp: base}, {Timestamp: base.Add(time.Hour)}}
	assert.Len(t, Since(entries, base), 2)
}
