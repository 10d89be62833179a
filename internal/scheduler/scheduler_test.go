package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAdd_RejectsBadSpec(t *testing.T) {
	s := New(nil, nil)
	defer s.Stop()
	assert.Error(t, s.Add("report", "not a spec", func(context.Context) error { return nil }))
}

func TestAdd_Duplicate(t *testing.T) {
	s := New(nil, nil)
	defer s.Stop()
	job := func(context.Context) error { return nil }
	require.NoError(t, s.Add("report", "0 21 * * *", job))
	assert.Error(t, s.Add("report", "@every 1h", job))
}

func TestAdd_EmptySpecDisables(t *testing.T) {
	s := New(nil, nil)
	defer s.Stop()
	require.NoError(t, s.Add("models", "", func(context.Context) error { return nil }))
	_, ok := s.Next("models")
	assert.False(t, ok)
	assert.Error(t, s.RunNow("models"))
}

func TestRunNowAndNext(t *testing.T) {
	s := New(time.UTC, nil)
	calls := 0
	require.NoError(t, s.Add("report", "0 21 * * *", func(ctx context.Context) error {
		calls++
		return ctx.Err()
	}))
	s.Start()
	assert.True(t, s.IsRunning())

	require.NoError(t, s.RunNow("report"))
	assert.Equal(t, 1, calls)

	next, ok := s.Next("report")
	require.True(t, ok)
	assert.Equal(t, 21, next.Hour())
	assert.Equal(t, 0, next.Minute())

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.True(t, errors.Is(s.RunNow("report"), context.Canceled))
}

func TestScheduledRun(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a one-second tick")
	}
	s := New(nil, nil)
	done := make(chan struct{}, 1)
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}))
	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
