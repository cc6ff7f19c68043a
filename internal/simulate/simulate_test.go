package simulate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/raid-extract/internal/engine"
	"github.com/MJE43/raid-extract/internal/raid"
	"github.com/MJE43/raid-extract/internal/rules"
	"github.com/MJE43/raid-extract/internal/scripting"
)

var testSeeds = engine.Seeds{
	Server: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	Client: "raid-sim",
}

func cautious(t *testing.T) scripting.Factory {
	t.Helper()
	f, err := scripting.Builtin("cautious")
	require.NoError(t, err)
	return f
}

func TestRunIsDeterministic(t *testing.T) {
	req := Request{
		Seeds:      testSeeds,
		NonceStart: 1,
		NonceEnd:   150,
		Config:     raid.Config{Difficulty: rules.Medium, EntryFee: 0.05},
		Strategy:   cautious(t),
		KeepRaids:  true,
	}

	req.Workers = 1
	a, err := Run(context.Background(), req)
	require.NoError(t, err)
	req.Workers = 4
	b, err := Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, uint64(150), a.Summary.Raids)
	assert.Equal(t, a.Summary.Raids, a.Summary.Wins+a.Summary.Losses)
	assert.Equal(t, a.Summary.Wins, b.Summary.Wins)
	assert.Equal(t, a.Summary.LossesBy, b.Summary.LossesBy)
	assert.Equal(t, a.Summary.PointsP50, b.Summary.PointsP50)
	assert.Equal(t, a.Summary.PointsP95, b.Summary.PointsP95)
	assert.InDelta(t, a.Summary.TotalPaid, b.Summary.TotalPaid, 1e-9)
	assert.InDelta(t, 7.5, a.Summary.TotalStaked, 1e-9)

	require.Len(t, b.Raids, 150)
	for i, rec := range b.Raids {
		assert.Equal(t, uint64(i+1), rec.Nonce)
		assert.Equal(t, a.Raids[i].Outcome, rec.Outcome)
	}
}

func TestOneReplaysNonce(t *testing.T) {
	cfg := raid.Config{Difficulty: rules.Hard, EntryFee: 0.1}
	a, err := One(testSeeds, 42, cfg, cautious(t), 0)
	require.NoError(t, err)
	b, err := One(testSeeds, 42, cfg, cautious(t), 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a.Outcome.Events)
	assert.LessOrEqual(t, a.Outcome.ElapsedSeconds, rules.MaxDuration)
}

func TestHonestRaidsPassValidation(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Seeds:      testSeeds,
		NonceStart: 0,
		NonceEnd:   99,
		Config:     raid.Config{Difficulty: rules.Easy, EntryFee: 0.01},
		Strategy:   cautious(t),
		Workers:    2,
	})
	require.NoError(t, err)
	for code := range res.Summary.Rejections {
		assert.NotEqual(t, "impossible_score", string(code))
		assert.NotEqual(t, "too_long", string(code))
	}
	assert.GreaterOrEqual(t, res.Summary.PointsP95, res.Summary.PointsP50)
	assert.Empty(t, res.Raids)
}

func TestRunRejectsBadRequests(t *testing.T) {
	_, err := Run(context.Background(), Request{NonceStart: 5, NonceEnd: 1, Strategy: cautious(t)})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Run(context.Background(), Request{Config: raid.Config{Difficulty: rules.Easy, EntryFee: 0.01}})
	assert.ErrorIs(t, err, ErrNoStrategy)

	_, err = Run(context.Background(), Request{Config: raid.Config{Difficulty: "NIGHTMARE"}, Strategy: cautious(t)})
	assert.Error(t, err)
}

func TestRunStopsOnStrategyError(t *testing.T) {
	p, err := scripting.Compile("boom.js", `function decide(state) { throw new Error("boom"); }`)
	require.NoError(t, err)

	_, err = Run(context.Background(), Request{
		Seeds:      testSeeds,
		NonceStart: 0,
		NonceEnd:   500,
		Config:     raid.Config{Difficulty: rules.Easy, EntryFee: 0.01},
		Strategy:   p.Factory(),
		Workers:    2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Request{
		Seeds:    testSeeds,
		NonceEnd: 10_000,
		Config:   raid.Config{Difficulty: rules.Easy, EntryFee: 0.01},
		Strategy: cautious(t),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 0, percentile(nil, 0.5))
	assert.Equal(t, 3, percentile([]int{1, 2, 3, 4, 5}, 0.5))
	assert.Equal(t, 5, percentile([]int{1, 2, 3, 4, 5}, 0.95))
	assert.Equal(t, 1, percentile([]int{1, 2, 3, 4, 5}, 0))
}
