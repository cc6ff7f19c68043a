// Package validate is the server half of the raid contract: it decides
// whether a client-reported raid result is plausible and what to credit.
//
// Validation is stateless and bounds-only. The server never re-runs the
// simulation; it checks the claim against ceilings derived from the shared
// rules package.
package validate

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/raid-extract/internal/rules"
)

// Code is a machine-readable rejection reason.
type Code string

const (
	CodeTooShort           Code = "too_short"
	CodeTooLong            Code = "too_long"
	CodeImpossibleScore    Code = "impossible_score"
	CodeInflatedPayout     Code = "inflated_payout"
	CodeInconsistentPayout Code = "inconsistent_payout"
)

// Claim is the result a client reports at the end of a raid.
type Claim struct {
	Success        bool             `json:"success"`
	SolAmount      float64          `json:"solAmount" validate:"gte=0"`
	Points         int              `json:"points" validate:"gte=0"`
	ElapsedSeconds int              `json:"elapsedSeconds" validate:"gte=0"`
	Difficulty     rules.Difficulty `json:"difficulty" validate:"required,oneof=EASY MEDIUM HARD DEGEN"`
	EntryFee       float64          `json:"entryFee" validate:"gt=0"`
	Mode           string           `json:"mode,omitempty"`
}

// Rejection explains why a claim was refused.
type Rejection struct {
	Code   Code   `json:"code"`
	Reason string `json:"reason"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

func reject(code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Validate returns nil when the claim is plausible.
func Validate(c Claim) *Rejection {
	if c.ElapsedSeconds < rules.MinDuration {
		return reject(CodeTooShort, "raid lasted %ds, minimum is %ds", c.ElapsedSeconds, rules.MinDuration)
	}
	if c.ElapsedSeconds > rules.MaxDuration {
		return reject(CodeTooLong, "raid lasted %ds, maximum is %ds", c.ElapsedSeconds, rules.MaxDuration)
	}

	if c.Success && (c.SolAmount <= 0 || c.EntryFee <= 0) {
		return reject(CodeInconsistentPayout, "win with payout %g on entry fee %g", c.SolAmount, c.EntryFee)
	}

	if limit := MaxScore(c.ElapsedSeconds); c.Points > limit {
		return reject(CodeImpossibleScore, "%d points in %ds exceeds %d", c.Points, c.ElapsedSeconds, limit)
	}

	if !c.Success {
		return nil
	}

	if ceiling := c.EntryFee * rules.MaxPayoutMultiplier; c.SolAmount > ceiling {
		return reject(CodeInflatedPayout, "payout %g exceeds %gx entry fee", c.SolAmount, rules.MaxPayoutMultiplier)
	}

	lo, hi := ExpectedBand(c)
	floor := lo*(1-rules.PayoutTolerance) - rules.PayoutEpsilon
	ceil := hi*(1+rules.PayoutTolerance) + rules.PayoutEpsilon
	if c.SolAmount < floor || c.SolAmount > ceil {
		return reject(CodeInconsistentPayout, "payout %g outside [%g, %g] for %d points", c.SolAmount, floor, ceil, c.Points)
	}
	return nil
}

// MaxScore is the highest score reachable in elapsed seconds: every tick
// yields at the top difficulty and the highest multiplier reachable by then,
// and every action grants the largest flat bonus at the action rate ceiling.
func MaxScore(elapsed int) int {
	if elapsed <= 0 {
		return 0
	}
	yield := math.Ceil(rules.MaxDifficultyYield() * rules.MaxMultiplierAt(elapsed) * float64(elapsed))
	actions := rules.MaxActionsPerSecond * elapsed * rules.MaxActionScoreBonus()
	return int(yield) + actions
}

// ExpectedBand returns the lowest and highest payout the engine can settle
// for the claim's points and fee, across the modifiers the server cannot
// observe: the ticket discount, the golden window, and (only for raids
// shorter than the early-exit age) the early-exit penalty. Both ends are held
// to the payout ceiling, as the engine's settlement is.
func ExpectedBand(c Claim) (lo, hi float64) {
	earlyOptions := []bool{false}
	if c.ElapsedSeconds < rules.EarlyExitSeconds {
		earlyOptions = append(earlyOptions, true)
	}

	lo, hi = math.Inf(1), math.Inf(-1)
	for _, ticket := range []bool{false, true} {
		for _, golden := range []bool{false, true} {
			for _, early := range earlyOptions {
				v := rules.Payout(c.Points, c.EntryFee, ticket, early, golden)
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
		}
	}
	return lo, hi
}

// Award is what the server credits for an accepted claim.
type Award struct {
	Sol        decimal.Decimal `json:"sol"`
	Reputation int             `json:"reputation"`
}

// Authoritative computes the credit for an accepted claim. A win pays the
// claimed amount clamped to the formula ceiling, rounded to lamports; a loss
// pays nothing and earns a participation point.
func Authoritative(c Claim) Award {
	if !c.Success {
		return Award{Sol: decimal.Zero, Reputation: 1}
	}

	_, hi := ExpectedBand(c)
	sol := math.Max(0, math.Min(c.SolAmount, hi))

	rep := c.Points / 100
	if spec, ok := rules.Lookup(c.Difficulty); ok {
		rep += spec.ReputationBonus
	}
	return Award{Sol: rules.SOL(sol), Reputation: rep}
}
