package raid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/raid-extract/internal/rules"
)

func liveRaid(t *testing.T, difficulty rules.Difficulty, src fixedSource, opts ...Option) *Raid {
	t.Helper()
	r := newTestRaid(t, difficulty, src, opts...)
	advanceTo(r, at(3000))
	require.Equal(t, PhaseActive, r.Phase())
	return r
}

func TestCleanWinPaysFormula(t *testing.T) {
	tests := []struct {
		name      string
		cashOutMs int
		early     bool
		elapsed   int
	}{
		{name: "after the early window", cashOutMs: 10_000, early: false, elapsed: 10},
		{name: "inside the early window", cashOutMs: 5000, early: true, elapsed: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var outcomes []Outcome
			r := liveRaid(t, rules.Medium, fixedSource(0.99), OnEnd(func(o Outcome) { outcomes = append(outcomes, o) }))

			require.True(t, r.Attack(at(3100)))
			require.True(t, r.Attack(at(3200)))
			advanceTo(r, at(tt.cashOutMs))
			require.True(t, r.CashOut(at(tt.cashOutMs)))

			require.Len(t, outcomes, 1)
			out := outcomes[0]
			assert.True(t, out.Success)
			assert.Equal(t, ReasonExtracted, out.Reason)
			assert.Equal(t, tt.elapsed, out.ElapsedSeconds)
			assert.Equal(t, tt.early, out.EarlyExitPenalty)
			assert.False(t, out.GoldenBonus)
			assert.Equal(t, r.Score(), out.Points)
			assert.Equal(t, rules.ComputeReward(out.Points, 0.026, false, tt.early, false), out.SolAmount)
			assert.Equal(t, EventExtracted, out.Events[len(out.Events)-1].Type)

			assert.False(t, r.Attack(at(tt.cashOutMs+100)), "no actions after the end")
			assert.False(t, r.CashOut(at(tt.cashOutMs+200)))
			assert.Len(t, outcomes, 1)
		})
	}
}

func TestCashOutNeedsAnAction(t *testing.T) {
	r := liveRaid(t, rules.Easy, fixedSource(0.99))
	assert.False(t, r.CashOut(at(4000)))
	assert.False(t, r.Ended())

	require.True(t, r.Defend(at(4100)))
	assert.True(t, r.CashOut(at(4200)))
}

func TestAttackStepsAndCombo(t *testing.T) {
	r := liveRaid(t, rules.Medium, fixedSource(0.99))
	score := r.Score()

	require.True(t, r.Attack(at(3100)))
	assert.InDelta(t, 1.15, r.Multiplier(), 1e-9)
	assert.Equal(t, score+rules.AttackScoreBonus, r.Score())

	// A counter defend costs 0.05, then an attack inside the combo window
	// lands the bigger step.
	require.True(t, r.Defend(at(3300)))
	assert.Equal(t, 1, countEvents(r.Events(), EventCounter))
	score = r.Score()

	require.True(t, r.Attack(at(3500)))
	assert.Equal(t, 1, countEvents(r.Events(), EventCombo))
	assert.InDelta(t, 1.10+rules.ComboMultiplierStep, r.Multiplier(), 1e-9)
	assert.Equal(t, score+rules.AttackScoreBonus+rules.ComboScoreBonus, r.Score())
}

func TestComboWindowExpires(t *testing.T) {
	r := liveRaid(t, rules.Medium, fixedSource(0.99))
	require.True(t, r.Defend(at(3100)))
	advanceTo(r, at(5400))
	require.True(t, r.Attack(at(5400)))
	assert.Zero(t, countEvents(r.Events(), EventCombo))
}

func TestAggressionEveryFifthAttack(t *testing.T) {
	t.Run("four attacks", func(t *testing.T) {
		r := liveRaid(t, rules.Medium, fixedSource(0.99))
		for ms := 3100; ms <= 3400; ms += 100 {
			require.True(t, r.Attack(at(ms)))
		}
		advanceTo(r, at(4500))
		assert.Zero(t, countEvents(r.Events(), EventAggression))
	})

	t.Run("five attacks", func(t *testing.T) {
		r := liveRaid(t, rules.Medium, fixedSource(0.99))
		for ms := 3100; ms <= 3500; ms += 100 {
			require.True(t, r.Attack(at(ms)))
		}
		advanceTo(r, at(3800))
		assert.Zero(t, countEvents(r.Events(), EventAggression), "penalty lands 400ms later")

		before := r.Risk()
		r.Advance(at(3900))
		require.Equal(t, 1, countEvents(r.Events(), EventAggression))
		assert.InDelta(t, before+aggressionRisk, r.Risk(), 1e-9)
	})

	t.Run("sixth through tenth attacks", func(t *testing.T) {
		r := liveRaid(t, rules.Medium, fixedSource(0.99))
		attack := func(ms int) {
			r.risk = 0
			require.True(t, r.Attack(at(ms)), "attack at %dms", ms)
		}

		for ms := 3100; ms <= 3500; ms += 100 {
			attack(ms)
		}
		advanceTo(r, at(4000))
		require.Equal(t, 1, countEvents(r.Events(), EventAggression))

		attack(4100)
		advanceTo(r, at(4600))
		assert.Equal(t, 1, countEvents(r.Events(), EventAggression), "sixth attack")

		for ms := 4700; ms <= 5000; ms += 100 {
			attack(ms)
		}
		advanceTo(r, at(5300))
		assert.Equal(t, 1, countEvents(r.Events(), EventAggression), "penalty lands 400ms after the tenth")
		advanceTo(r, at(5500))
		assert.Equal(t, 2, countEvents(r.Events(), EventAggression), "tenth attack")
	})

	t.Run("defend resets the count", func(t *testing.T) {
		r := liveRaid(t, rules.Medium, fixedSource(0.99))
		for ms := 3100; ms <= 3400; ms += 100 {
			r.risk = 0
			require.True(t, r.Attack(at(ms)))
		}
		require.True(t, r.Defend(at(3500)))
		r.risk = 0
		require.True(t, r.Attack(at(3600)))
		advanceTo(r, at(4500))
		assert.Zero(t, countEvents(r.Events(), EventAggression))
	})
}

func TestEndingCancelsPendingEffects(t *testing.T) {
	calls := 0
	r := liveRaid(t, rules.Medium, fixedSource(0.99), OnEnd(func(Outcome) { calls++ }))
	for ms := 3100; ms <= 3500; ms += 100 {
		require.True(t, r.Attack(at(ms)))
	}
	require.True(t, r.CashOut(at(3600)))
	events := len(r.Events())

	advanceTo(r, at(10_000))

	assert.Equal(t, 1, calls)
	assert.Zero(t, countEvents(r.Events(), EventAggression))
	assert.Len(t, r.Events(), events)
	assert.True(t, r.Outcome().EarlyExitPenalty)
}

func TestDefendLockout(t *testing.T) {
	r := liveRaid(t, rules.Hard, fixedSource(0.99))

	require.True(t, r.Defend(at(3100)))
	require.True(t, r.Defend(at(3200)))
	assert.True(t, r.Snapshot().DefendLocked)
	assert.Equal(t, 1, countEvents(r.Events(), EventLockout))

	r.Advance(at(3300))
	risk, mult, score, events := r.Risk(), r.Multiplier(), r.Score(), len(r.Events())
	assert.False(t, r.Defend(at(3300)))
	assert.Equal(t, risk, r.Risk())
	assert.Equal(t, mult, r.Multiplier())
	assert.Equal(t, score, r.Score())
	assert.Len(t, r.Events(), events)

	assert.False(t, r.Defend(at(6100)))
	assert.True(t, r.Defend(at(6200)), "lockout clears after 3s")
	assert.False(t, r.Snapshot().DefendLocked)
}

func TestDefendTierShrinks(t *testing.T) {
	r := liveRaid(t, rules.Degen, fixedSource(0))
	r.risk = 60

	require.True(t, r.Defend(at(3100)))
	assert.InDelta(t, 50, r.Risk(), 1e-9)
	require.True(t, r.Defend(at(3200)))
	assert.InDelta(t, 44, r.Risk(), 1e-9)
	assert.Equal(t, 1.0, r.Multiplier())
	assert.Equal(t, lockoutAfter, r.consecutiveDefends)

	// The first Defend after the lockout clears is back on tier 1.
	advanceTo(r, at(6300))
	require.False(t, r.Snapshot().DefendLocked)
	r.risk = 40
	require.True(t, r.Defend(at(6300)))
	assert.InDelta(t, 30, r.Risk(), 1e-9)
	assert.Equal(t, 1, r.consecutiveDefends)
}

func TestDefendTierTable(t *testing.T) {
	for i := 2; i <= maxDefendTierIndex; i++ {
		prev, cur := defendTiers[i-1], defendTiers[i]
		assert.Less(t, cur.max, prev.max, "tier %d relief", i)
		assert.Greater(t, cur.cost, prev.cost, "tier %d cost", i)
	}
}

func TestRiskCeilingOnAttack(t *testing.T) {
	t.Run("firewall reprieve", func(t *testing.T) {
		r := liveRaid(t, rules.Medium, fixedSource(0))
		r.risk = 98
		require.True(t, r.Attack(at(3100)))
		assert.False(t, r.Ended())
		assert.Equal(t, firewallResetRisk, r.Risk())
		assert.Equal(t, 1, countEvents(r.Events(), EventFirewall))
	})

	t.Run("bust", func(t *testing.T) {
		r := liveRaid(t, rules.Medium, fixedSource(0.5))
		r.risk = 98
		require.True(t, r.Attack(at(3100)))
		require.True(t, r.Ended())
		assert.Equal(t, ReasonRiskOverload, r.Outcome().Reason)
		assert.Equal(t, 100.0, r.Risk())
	})

	t.Run("critical overload", func(t *testing.T) {
		r := liveRaid(t, rules.Degen, fixedSource(0.2))
		r.risk = 84
		require.True(t, r.Attack(at(3100)))
		require.True(t, r.Ended())
		out := r.Outcome()
		assert.Equal(t, ReasonCriticalOverload, out.Reason)
		assert.False(t, out.Success)
		assert.Equal(t, EventCritical, out.Events[len(out.Events)-1].Type)
	})

	t.Run("high risk survives a good roll", func(t *testing.T) {
		r := liveRaid(t, rules.Degen, fixedSource(0.3))
		r.risk = 84
		require.True(t, r.Attack(at(3100)))
		assert.False(t, r.Ended())
		assert.Greater(t, r.Risk(), criticalRiskAbove)
	})
}
