package raid

import (
	"fmt"
	"math"
	"time"

	"github.com/MJE43/raid-extract/internal/rules"
)

// maxGearRiskFactorCut caps how much gear can slow risk drift.
const maxGearRiskFactorCut = 0.30

// ResolveModifiers maps a loadout to the scalars the simulation consumes.
// It is pure and recomputed whenever the loadout changes.
func ResolveModifiers(difficulty rules.Difficulty, gear []Gear, boosts []Boost, streakWins int) (Modifiers, error) {
	spec, ok := rules.Lookup(difficulty)
	if !ok {
		return Modifiers{}, fmt.Errorf("unknown difficulty %q", difficulty)
	}

	var riskReduction, multBonus float64
	var timeBonus time.Duration
	for _, g := range gear {
		riskReduction += g.RiskReduction
		multBonus += g.MultiplierBonus
		timeBonus += g.TimeBonus
	}

	drift := spec.DriftModifier
	for _, b := range boosts {
		switch b.Type {
		case BoostRisk:
			if b.DriftMultiplier > 0 {
				drift *= b.DriftMultiplier
			}
		case BoostMultiplier:
			multBonus += b.StartMultiplierBonus
		}
	}
	if streakWins >= rules.StreakWinsForBonus {
		multBonus += rules.StreakMultiplierBonus
	}

	budget := min(max(rules.BaseTimeBudget+timeBonus, rules.ArmingDuration), rules.MaxTimeBudget)

	return Modifiers{
		RiskOffset:         math.Max(0, spec.RiskOffset-riskReduction),
		DriftMultiplier:    drift,
		MultiplierModifier: spec.MultiplierModifier,
		StartingMultiplier: clamp(1+multBonus, 1, rules.MaxStartingMultiplier),
		StartingTimeBudget: budget,
		GearRiskFactor:     1 - clamp(riskReduction/100, 0, maxGearRiskFactorCut),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
