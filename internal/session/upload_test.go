package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/chat"
)

func TestUploadDocument_RegistersAndSelects(t *testing.T) {
	fb := newFakeBackend()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fb.sources = []chat.Source{videoSrc}
	s := New(fb, Options{Now: func() time.Time { return created }})
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.SelectSource(ctx, "video.txt"))

	src, err := s.Uploads().UploadDocument(ctx, "report.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, chat.Source{ID: "report.pdf", Kind: chat.KindDocument, CreatedAt: created}, src)

	snap := s.Snapshot()
	require.NotNil(t, snap.ActiveSource)
	assert.Equal(t, "report.pdf", snap.ActiveSource.ID)
	assert.Equal(t, []string{"report.pdf", "video.txt"}, ids(snap.Sources))
	assert.Empty(t, snap.Transcript)
	assert.False(t, s.Uploads().Busy())
}

func TestUploadTranscriptAndTable(t *testing.T) {
	fb := newFakeBackend()
	s := newTestSession(t, fb)
	ctx := context.Background()

	src, err := s.Uploads().UploadTranscript(ctx, " https://youtu.be/dQw4w9WgXcQ ")
	require.NoError(t, err)
	assert.Equal(t, "youtube_dQw4w9WgXcQ", src.ID)
	assert.Equal(t, chat.KindVideoTranscript, src.Kind)

	src, err = s.Uploads().UploadTable(ctx, "sales.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, chat.KindTabular, src.Kind)
	assert.Equal(t, "sales.csv", s.Snapshot().ActiveSource.ID)
	assert.Equal(t, []string{"youtube_dQw4w9WgXcQ", "sales.csv"}, fb.ingested)
}

func TestUpload_FailureLeavesRegistry(t *testing.T) {
	fb := newFakeBackend()
	s := newTestSession(t, fb)
	ctx := context.Background()
	require.NoError(t, s.SelectSource(ctx, "doc.pdf"))
	fb.ingestErr = errors.New("Only PDF files are allowed")

	_, err := s.Uploads().UploadDocument(ctx, "bad.pdf", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest document")
	assert.Contains(t, err.Error(), "Only PDF files are allowed")

	snap := s.Snapshot()
	assert.Len(t, snap.Sources, 3)
	assert.Equal(t, "doc.pdf", snap.ActiveSource.ID)
	assert.False(t, s.Uploads().Busy())
}

func TestUpload_OneAtATime(t *testing.T) {
	fb := newFakeBackend()
	gate := make(chan struct{})
	fb.ingestGate = gate
	s := newTestSession(t, fb)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.Uploads().UploadDocument(ctx, "slow.pdf", []byte("x"))
		done <- err
	}()
	require.Eventually(t, s.Uploads().Busy, time.Second, time.Millisecond)

	_, err := s.Uploads().UploadTable(ctx, "t.csv", []byte("a"))
	assert.ErrorIs(t, err, ErrUploadBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"slow.pdf"}, fb.ingested)
}

func TestUpload_EmptyInput(t *testing.T) {
	s := newTestSession(t, newFakeBackend())
	ctx := context.Background()

	_, err := s.Uploads().UploadDocument(ctx, "a.pdf", nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = s.Uploads().UploadTranscript(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = s.Uploads().UploadTable(ctx, "", []byte("a"))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestUpload_DoesNotBlockOnSending(t *testing.T) {
	fb := newFakeBackend()
	fb.manualAsk = true
	s := newTestSession(t, fb)
	ctx := context.Background()
	require.NoError(t, s.SelectSource(ctx, "doc.pdf"))

	sent := make(chan error, 1)
	go func() {
		_, err := s.Send(ctx, "q")
		sent <- err
	}()
	call := <-fb.asks

	src, err := s.Uploads().UploadTable(ctx, "t.csv", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "t.csv", s.Snapshot().ActiveSource.ID)

	call.reply <- askReply{ans: chat.Answer{Text: "late"}}
	require.NoError(t, <-sent)
	assert.Empty(t, s.Snapshot().Transcript)
	assert.Equal(t, "t.csv", src.ID)
}
