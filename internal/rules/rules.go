// Package rules holds the arithmetic shared by the raid simulation and the
// server-side result validator. Both halves import it; a change here changes
// what the client computes and what the server accepts at the same time.
package rules

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty selects the risk/reward profile of a raid.
type Difficulty string

const (
	Easy   Difficulty = "EASY"
	Medium Difficulty = "MEDIUM"
	Hard   Difficulty = "HARD"
	Degen  Difficulty = "DEGEN"
)

// DifficultySpec is one row of the difficulty table.
type DifficultySpec struct {
	Difficulty         Difficulty `json:"difficulty" yaml:"difficulty"`
	RiskOffset         float64    `json:"risk_offset" yaml:"risk_offset"`
	DriftModifier      float64    `json:"drift_modifier" yaml:"drift_modifier"`
	MultiplierModifier float64    `json:"multiplier_modifier" yaml:"multiplier_modifier"`
	ReputationBonus    int        `json:"reputation_bonus" yaml:"reputation_bonus"`
}

var difficultyTable = map[Difficulty]DifficultySpec{
	Easy:   {Difficulty: Easy, RiskOffset: 0, DriftModifier: 0.70, MultiplierModifier: 0.80, ReputationBonus: 0},
	Medium: {Difficulty: Medium, RiskOffset: 5, DriftModifier: 1.00, MultiplierModifier: 1.00, ReputationBonus: 1},
	Hard:   {Difficulty: Hard, RiskOffset: 12, DriftModifier: 1.35, MultiplierModifier: 1.25, ReputationBonus: 2},
	Degen:  {Difficulty: Degen, RiskOffset: 20, DriftModifier: 1.80, MultiplierModifier: 1.60, ReputationBonus: 4},
}

// Difficulties lists the table in ascending order of risk.
func Difficulties() []DifficultySpec {
	return []DifficultySpec{difficultyTable[Easy], difficultyTable[Medium], difficultyTable[Hard], difficultyTable[Degen]}
}

// Lookup returns the table row for d.
func Lookup(d Difficulty) (DifficultySpec, bool) {
	spec, ok := difficultyTable[d]
	return spec, ok
}

// ParseDifficulty accepts any casing of a difficulty name.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := difficultyTable[d]; !ok {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

// Simulation constants.
const (
	TickInterval       = time.Second
	ArmingDuration     = 3 * time.Second
	BaseTimeBudget     = 30 * time.Second
	BaseYieldRate      = 25.0
	ArmingScorePerTick = 5

	AttackScoreBonus  = 10
	ComboScoreBonus   = 25
	CounterScoreBonus = 15

	AttackMultiplierStep = 0.15
	ComboMultiplierStep  = 0.25
	JackpotMultiplier    = 0.5

	MaxStartingMultiplier = 2.5

	// MaxTimeBudget leaves ClockSkewAllowance under MaxDuration so a raid
	// that runs to its budget still settles in range.
	MaxTimeBudget      = MaxDuration*time.Second - ClockSkewAllowance
	ClockSkewAllowance = 5 * time.Second

	StreakWinsForBonus    = 3
	StreakMultiplierBonus = 0.15
)

// Validator constants.
const (
	MinDuration         = 3
	MaxDuration         = 70
	MaxPayoutMultiplier = 10.0
	PayoutTolerance     = 0.20
	PayoutEpsilon       = 1e-6

	// MaxActionsPerSecond bounds how fast a human (or bot) can act.
	MaxActionsPerSecond = 4
	// EarlyExitSeconds is the cash-out age below which the early penalty applies.
	EarlyExitSeconds = 8
)

// MaxDifficultyYield is the highest per-tick yield rate across the table.
func MaxDifficultyYield() float64 {
	maxMod := 0.0
	for _, spec := range difficultyTable {
		if spec.MultiplierModifier > maxMod {
			maxMod = spec.MultiplierModifier
		}
	}
	return BaseYieldRate * maxMod
}

// MaxMultiplierAt is the highest multiplier reachable after elapsed seconds by
// a maximally geared player alternating defend/attack combos at the action
// rate ceiling and hitting a jackpot on every tick.
func MaxMultiplierAt(elapsed int) float64 {
	growth := MaxActionsPerSecond*ComboMultiplierStep + JackpotMultiplier
	return MaxStartingMultiplier + growth*float64(elapsed)
}

// MaxActionScoreBonus is the largest flat score any single action can grant.
func MaxActionScoreBonus() int {
	return AttackScoreBonus + ComboScoreBonus
}
