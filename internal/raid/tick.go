package raid

import (
	"math"
	"time"

	"github.com/MJE43/raid-extract/internal/engine"
	"github.com/MJE43/raid-extract/internal/rules"
)

const (
	riskCeiling        = 100.0
	idleWindow         = 3 * time.Second
	idleDecay          = 1.5
	hotStreakRatio     = 0.85
	hotStreakThreshold = 1.5

	goldenThreshold = 2.5
	goldenDuration  = 6 * time.Second

	jackpotAfter  = 8 * time.Second
	jackpotChance = 0.03

	ambushAfter    = 12 * time.Second
	ambushChance   = 0.10
	ambushRisk     = 8.0
	ambushDuration = 2200 * time.Millisecond

	driftMin         = 1.0
	driftMax         = 3.0
	timePenaltyScale = 1.5
	houseEdge        = 1.05
	greedHighAt      = 2.5
	greedHigh        = 1.5
	greedMidAt       = 1.8
	greedMid         = 1.25

	surgeAfter  = 5 * time.Second
	surgeChance = 0.04
	surgeRisk   = 6.0

	firewallSaveChance = 0.12
	firewallResetRisk  = 72.0

	enemySmoothing = 0.3
)

// tick runs one 1-second step of the simulation at slot time at.
func (r *Raid) tick(at time.Time) {
	r.ticks++
	elapsed := at.Sub(r.start)

	if elapsed >= r.mods.StartingTimeBudget {
		r.record(at, EventTimeout, "extraction window closed", 0, SeverityCritical)
		r.lose(at, ReasonTimeout)
		return
	}

	if r.stage == stageArming {
		r.score += rules.ArmingScorePerTick
		return
	}

	if at.Sub(r.lastActivityAt) >= idleWindow {
		r.risk = math.Max(0, r.risk-idleDecay)
	}

	r.hotStreak = r.multiplier >= hotStreakRatio*r.peakMultiplier && r.multiplier > hotStreakThreshold

	if !r.goldenLatched && r.multiplier >= goldenThreshold {
		r.openGoldenWindow(at)
	}

	if elapsed >= jackpotAfter && engine.Chance(r.src, jackpotChance) {
		r.multiplier += rules.JackpotMultiplier
		r.trackPeak()
		r.record(at, EventJackpot, "loot cache cracked", rules.JackpotMultiplier, SeverityBonus)
	}

	if elapsed >= ambushAfter && !r.ambushPending && engine.Chance(r.src, ambushChance) {
		r.startAmbush(at)
		if !r.raiseRisk(at, ambushRisk) {
			return
		}
	}

	drift := r.drift(elapsed)
	if elapsed >= surgeAfter && engine.Chance(r.src, surgeChance) {
		drift += surgeRisk
		r.record(at, EventSurge, "network surge", surgeRisk, SeverityWarning)
	}
	if !r.raiseRisk(at, drift) {
		return
	}

	r.score += int(math.Floor(rules.BaseYieldRate * r.multiplier * r.mods.MultiplierModifier))
	r.enemyPressure += (r.risk - r.enemyPressure) * enemySmoothing
}

// drift is the per-tick risk growth. It accelerates with time and with the
// multiplier (greed).
func (r *Raid) drift(elapsed time.Duration) float64 {
	base := engine.Range(r.src, driftMin, driftMax)
	timePenalty := timePenaltyScale * elapsed.Seconds() / rules.BaseTimeBudget.Seconds()

	greed := 1.0
	switch {
	case r.multiplier > greedHighAt:
		greed = greedHigh
	case r.multiplier > greedMidAt:
		greed = greedMid
	}

	return (base + timePenalty) * r.mods.DriftMultiplier * greed * houseEdge * r.mods.GearRiskFactor
}

func (r *Raid) openGoldenWindow(at time.Time) {
	r.goldenLatched = true
	r.goldenOpen = true
	r.goldenUntil = at.Add(goldenDuration)
	r.record(at, EventGolden, "golden window open", rules.GoldenMultiplier, SeverityBonus)
	r.schedule(r.goldenUntil, "golden-close", func(r *Raid, at time.Time) {
		r.goldenOpen = false
		r.record(at, EventGoldenEnd, "golden window closed", 0, SeverityInfo)
	})
}

func (r *Raid) startAmbush(at time.Time) {
	r.ambushPending = true
	r.ambushUntil = at.Add(ambushDuration)
	r.record(at, EventAmbush, "ambush", ambushRisk, SeverityWarning)
	r.schedule(r.ambushUntil, "ambush-clear", func(r *Raid, at time.Time) {
		r.ambushPending = false
		r.record(at, EventAmbushEnd, "ambush repelled", 0, SeverityInfo)
	})
}
