package raid

import (
	"math"
	"time"

	"github.com/MJE43/raid-extract/internal/engine"
	"github.com/MJE43/raid-extract/internal/rules"
)

const (
	comboWindow = 2200 * time.Millisecond

	attackRiskMin      = 4.0
	attackRiskMax      = 8.0
	comboRiskMin       = 2.0
	comboRiskMax       = 5.0
	comboRiskRelief    = 3.0
	aggressionEvery    = 5
	aggressionDelay    = 400 * time.Millisecond
	aggressionRisk     = 6.0
	criticalRiskAbove  = 85.0
	criticalChance     = 0.25
	counterRiskRelief  = 4.0
	lockoutAfter       = 2
	lockoutDuration    = 3 * time.Second
	minimumMultiplier  = 1.0
	maxDefendTierIndex = 4
)

type defendTier struct {
	min, max float64
	cost     float64
}

// defendTiers is indexed by the consecutive-defend count, capped at 4. The
// count resets when a lockout clears, so with lockoutAfter at 2 play only
// reaches tiers 1 and 2; the deeper tiers apply if the lockout is relaxed.
var defendTiers = [maxDefendTierIndex + 1]defendTier{
	1: {min: 10, max: 15, cost: 0.05},
	2: {min: 6, max: 10, cost: 0.10},
	3: {min: 3, max: 6, cost: 0.15},
	4: {min: 1, max: 3, cost: 0.20},
}

// Attack raises the multiplier and score at the cost of risk. It reports
// whether the action was accepted.
func (r *Raid) Attack(now time.Time) bool {
	r.Advance(now)
	if !r.acceptsInput() {
		return false
	}

	combo := r.lastAction == actionDefend && now.Sub(r.lastActionAt) <= comboWindow
	r.noteAction(now, actionAttack)
	r.consecutiveDefends = 0
	r.attacksSinceDefend++
	r.score += rules.AttackScoreBonus

	var delta float64
	if combo {
		r.multiplier += rules.ComboMultiplierStep
		r.score += rules.ComboScoreBonus
		delta = engine.Range(r.src, comboRiskMin, comboRiskMax) - comboRiskRelief
		r.record(now, EventCombo, "defend into attack", rules.ComboMultiplierStep, SeverityBonus)
	} else {
		r.multiplier += rules.AttackMultiplierStep
		delta = engine.Range(r.src, attackRiskMin, attackRiskMax)
	}
	r.trackPeak()

	if r.attacksSinceDefend%aggressionEvery == 0 {
		r.schedule(now.Add(aggressionDelay), "aggression", func(r *Raid, at time.Time) {
			r.record(at, EventAggression, "enemy retaliation", aggressionRisk, SeverityWarning)
			r.raiseRisk(at, aggressionRisk)
		})
	}

	if !r.raiseRisk(now, delta) {
		return true
	}
	if r.risk > criticalRiskAbove && engine.Chance(r.src, criticalChance) {
		r.record(now, EventCritical, "critical overload", r.risk, SeverityCritical)
		r.lose(now, ReasonCriticalOverload)
	}
	return true
}

// Defend trades multiplier for risk relief. Relief shrinks with every
// consecutive Defend, and the second in a row locks Defend out for 3s.
func (r *Raid) Defend(now time.Time) bool {
	r.Advance(now)
	if !r.acceptsInput() || r.defendLocked {
		return false
	}

	counter := r.lastAction == actionAttack && now.Sub(r.lastActionAt) <= comboWindow
	r.noteAction(now, actionDefend)
	r.attacksSinceDefend = 0
	r.consecutiveDefends++

	tier := defendTiers[min(r.consecutiveDefends, maxDefendTierIndex)]
	relief := engine.Range(r.src, tier.min, tier.max)
	if counter {
		relief += counterRiskRelief
		r.score += rules.CounterScoreBonus
		r.record(now, EventCounter, "counter block", -counterRiskRelief, SeverityBonus)
	}
	r.risk = math.Max(0, r.risk-relief)
	r.multiplier = math.Max(minimumMultiplier, r.multiplier-tier.cost)

	if r.consecutiveDefends == lockoutAfter {
		r.defendLocked = true
		r.lockedUntil = now.Add(lockoutDuration)
		r.record(now, EventLockout, "shields recharging", lockoutDuration.Seconds(), SeverityWarning)
		r.schedule(r.lockedUntil, "lockout-clear", func(r *Raid, at time.Time) {
			r.defendLocked = false
			r.consecutiveDefends = 0
		})
	}
	return true
}

// CashOut extracts with the current score. At least one Attack or Defend
// must precede it.
func (r *Raid) CashOut(now time.Time) bool {
	r.Advance(now)
	if !r.acceptsInput() || r.actions == 0 {
		return false
	}

	secs := r.elapsedSeconds(now)
	early := secs < rules.EarlyExitSeconds
	golden := r.goldenOpen
	sol := rules.Payout(r.score, r.cfg.EntryFee, r.cfg.TicketDiscountActive, early, golden)

	r.record(now, EventExtracted, "extraction complete", sol, SeverityBonus)
	r.finish(now, Outcome{
		Success:          true,
		SolAmount:        sol,
		Points:           r.score,
		ElapsedSeconds:   secs,
		Reason:           ReasonExtracted,
		EarlyExitPenalty: early,
		GoldenBonus:      golden,
	})
	return true
}

func (r *Raid) noteAction(now time.Time, kind actionKind) {
	r.actions++
	r.lastAction = kind
	r.lastActionAt = now
	r.lastActivityAt = now
}
