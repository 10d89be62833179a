package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type phaseLog struct {
	mu     sync.Mutex
	phases []int
}

func (l *phaseLog) PhaseChanged(p int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phases = append(l.phases, p)
}

func (l *phaseLog) snapshot() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.phases...)
}

func TestSimulator_AdvancesAndHoldsOnFinalPhase(t *testing.T) {
	log := &phaseLog{}
	sim := NewSimulator(time.Millisecond, log.PhaseChanged)
	sim.Start()
	defer sim.Stop()

	require.Eventually(t, func() bool { return sim.Phase() == len(Phases)-1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, len(Phases)-1, sim.Phase())
	assert.Equal(t, []int{1, 2, 3, 4}, log.snapshot())
	assert.True(t, sim.Running())
}

func TestSimulator_StopResets(t *testing.T) {
	sim := NewSimulator(time.Millisecond, nil)
	sim.Start()
	require.Eventually(t, func() bool { return sim.Phase() >= 2 }, time.Second, time.Millisecond)

	sim.Stop()
	assert.Equal(t, 0, sim.Phase())
	assert.False(t, sim.Running())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 0, sim.Phase())
}

func TestSimulator_RestartBeginsAtFirstPhase(t *testing.T) {
	log := &phaseLog{}
	sim := NewSimulator(time.Hour, log.PhaseChanged)
	sim.Start()
	sim.Start()
	assert.Equal(t, 0, sim.Phase())
	sim.Stop()
	sim.Stop()
	assert.Empty(t, log.snapshot())
}

func TestSimulator_DefaultPeriod(t *testing.T) {
	sim := NewSimulator(0, nil)
	assert.Equal(t, DefaultThinkingPeriod, sim.period)
}
