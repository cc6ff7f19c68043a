package raid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/raid-extract/internal/rules"
)

func TestResolveModifiers(t *testing.T) {
	tests := []struct {
		name       string
		difficulty rules.Difficulty
		gear       []Gear
		boosts     []Boost
		streak     int
		want       Modifiers
	}{
		{
			name:       "bare medium",
			difficulty: rules.Medium,
			want: Modifiers{
				RiskOffset:         5,
				DriftMultiplier:    1,
				MultiplierModifier: 1,
				StartingMultiplier: 1,
				StartingTimeBudget: 30 * time.Second,
				GearRiskFactor:     1,
			},
		},
		{
			name:       "full loadout on hard",
			difficulty: rules.Hard,
			gear: []Gear{
				{ID: "visor", RiskReduction: 8, MultiplierBonus: 0.1},
				{ID: "boots", RiskReduction: 4, TimeBonus: 5 * time.Second},
			},
			boosts: []Boost{
				{ID: "stealth", Type: BoostRisk, DriftMultiplier: 0.8},
				{ID: "overclock", Type: BoostMultiplier, StartMultiplierBonus: 0.2},
			},
			streak: 3,
			want: Modifiers{
				RiskOffset:         0,
				DriftMultiplier:    1.35 * 0.8,
				MultiplierModifier: 1.25,
				StartingMultiplier: 1.45,
				StartingTimeBudget: 35 * time.Second,
				GearRiskFactor:     0.88,
			},
		},
		{
			name:       "starting multiplier clamps high",
			difficulty: rules.Easy,
			gear:       []Gear{{ID: "relic", MultiplierBonus: 5}},
			want: Modifiers{
				RiskOffset:         0,
				DriftMultiplier:    0.7,
				MultiplierModifier: 0.8,
				StartingMultiplier: 2.5,
				StartingTimeBudget: 30 * time.Second,
				GearRiskFactor:     1,
			},
		},
		{
			name:       "gear risk factor caps at thirty percent",
			difficulty: rules.Degen,
			gear:       []Gear{{ID: "bunker", RiskReduction: 50}},
			want: Modifiers{
				RiskOffset:         0,
				DriftMultiplier:    1.8,
				MultiplierModifier: 1.6,
				StartingMultiplier: 1,
				StartingTimeBudget: 30 * time.Second,
				GearRiskFactor:     0.7,
			},
		},
		{
			name:       "risk boost without drift is ignored",
			difficulty: rules.Medium,
			boosts:     []Boost{{ID: "dud", Type: BoostRisk}},
			streak:     2,
			want: Modifiers{
				RiskOffset:         5,
				DriftMultiplier:    1,
				MultiplierModifier: 1,
				StartingMultiplier: 1,
				StartingTimeBudget: 30 * time.Second,
				GearRiskFactor:     1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveModifiers(tt.difficulty, tt.gear, tt.boosts, tt.streak)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.RiskOffset, got.RiskOffset, 1e-9)
			assert.InDelta(t, tt.want.DriftMultiplier, got.DriftMultiplier, 1e-9)
			assert.InDelta(t, tt.want.MultiplierModifier, got.MultiplierModifier, 1e-9)
			assert.InDelta(t, tt.want.StartingMultiplier, got.StartingMultiplier, 1e-9)
			assert.Equal(t, tt.want.StartingTimeBudget, got.StartingTimeBudget)
			assert.InDelta(t, tt.want.GearRiskFactor, got.GearRiskFactor, 1e-9)
		})
	}
}

func TestResolveModifiersUnknownDifficulty(t *testing.T) {
	_, err := ResolveModifiers("NIGHTMARE", nil, nil, 0)
	assert.Error(t, err)
}

func TestResolveModifiersBudgetFloor(t *testing.T) {
	got, err := ResolveModifiers(rules.Medium, []Gear{{ID: "anchor", TimeBonus: -time.Minute}}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, rules.ArmingDuration, got.StartingTimeBudget)
}

func TestResolveModifiersBudgetCeiling(t *testing.T) {
	battery := Gear{ID: "extended-battery", TimeBonus: 5 * time.Second}
	stack := make([]Gear, 10)
	for i := range stack {
		stack[i] = battery
	}

	got, err := ResolveModifiers(rules.Easy, stack, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, rules.MaxTimeBudget, got.StartingTimeBudget)
	assert.Less(t, got.StartingTimeBudget, time.Duration(rules.MaxDuration)*time.Second)

	got, err = ResolveModifiers(rules.Easy, stack[:2], nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, got.StartingTimeBudget)
}

// A stacked loadout cannot stretch a raid past the duration the validator
// accepts, however the raid ends.
func TestStackedLoadoutEndsWithinMaxDuration(t *testing.T) {
	stack := make([]Gear, 20)
	for i := range stack {
		stack[i] = Gear{ID: "battery", TimeBonus: 5 * time.Second}
	}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, err := New(Config{Difficulty: rules.Easy, EntryFee: 0.01, Gear: stack}, start, WithSource(fixedSource(0)))
	require.NoError(t, err)
	assert.Equal(t, rules.MaxTimeBudget, r.Snapshot().Remaining)

	r.Advance(start.Add(2 * time.Minute))
	require.True(t, r.Ended())
	out := r.Outcome()
	assert.False(t, out.Success)
	assert.LessOrEqual(t, out.ElapsedSeconds, rules.MaxDuration)
}
