package raid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/raid-extract/internal/rules"
)

func TestRunnerCancelAbandonsRaid(t *testing.T) {
	calls := 0
	r, err := New(Config{Difficulty: rules.Medium, EntryFee: 0.05}, time.Now(),
		WithSource(fixedSource(0.99)), OnEnd(func(Outcome) { calls++ }))
	require.NoError(t, err)

	rn := NewRunner(r)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- rn.Run(ctx) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := rn.Snapshot(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, PhaseArming, snap.Phase)
		}()
	}
	wg.Wait()

	accepted, err := rn.Attack(context.Background())
	require.NoError(t, err)
	assert.False(t, accepted, "still arming")

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}

	_, err = rn.CashOut(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, calls)
}

func TestRunnerDrivesRaidToTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("runs on the wall clock")
	}

	outcomes := make(chan Outcome, 2)
	cfg := Config{
		Difficulty: rules.Easy,
		EntryFee:   0.05,
		Gear:       []Gear{{ID: "anchor", TimeBonus: -time.Minute}},
	}
	r, err := New(cfg, time.Now(), WithSource(fixedSource(0.99)), OnEnd(func(o Outcome) { outcomes <- o }))
	require.NoError(t, err)

	rn := NewRunner(r)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, rn.Run(ctx))

	require.Len(t, outcomes, 1)
	out := <-outcomes
	assert.Equal(t, ReasonTimeout, out.Reason)
	assert.Equal(t, rules.MinDuration, out.ElapsedSeconds)

	<-rn.Done()
	_, err = rn.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRunnerCatchesUpLateStart(t *testing.T) {
	start := time.Now()
	offset := 10 * time.Second
	r, err := New(Config{Difficulty: rules.Medium, EntryFee: 0.05}, start.Add(-offset), WithSource(fixedSource(0.99)))
	require.NoError(t, err)

	rn := NewRunner(r, WithClock(time.Now))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rn.Run(ctx) }()

	// The raid started 10s ago, so the first command catches it up.
	snap, err := rn.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseActive, snap.Phase)
	assert.GreaterOrEqual(t, snap.Elapsed, offset)

	accepted, err := rn.Attack(ctx)
	require.NoError(t, err)
	assert.True(t, accepted)

	accepted, err = rn.CashOut(ctx)
	require.NoError(t, err)
	assert.True(t, accepted)

	select {
	case <-rn.Done():
	case <-time.After(time.Second):
		t.Fatal("runner did not exit after cash out")
	}
}
