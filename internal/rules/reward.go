package rules

import (
	"math"

	"github.com/shopspring/decimal"
)

// Reward formula constants.
const (
	ScoreDivisor     = 2500.0
	PayoutScale      = 6.0
	TicketMultiplier = 1.10
	EarlyMultiplier  = 0.5
	GoldenMultiplier = 1.05
)

// ComputeReward converts a score into a SOL payout. It is the single reward
// formula: the live preview, the final claim and the validator all call it.
func ComputeReward(score int, entryFee float64, ticketActive, earlyExitPenalty, goldenBonus bool) float64 {
	return BaseReward(score, entryFee) * RewardModifier(ticketActive, earlyExitPenalty, goldenBonus)
}

// BaseReward is the payout before any ticket/early-exit/golden modifier.
func BaseReward(score int, entryFee float64) float64 {
	return (float64(score) / ScoreDivisor) * PayoutScale * entryFee
}

// Payout is what a cash-out settles for: ComputeReward held to the treasury
// ceiling. The engine pays this amount and the validator's expected band is
// capped the same way, so a long lucky raid settles at the ceiling instead of
// being refused.
func Payout(score int, entryFee float64, ticketActive, earlyExitPenalty, goldenBonus bool) float64 {
	return CapPayout(ComputeReward(score, entryFee, ticketActive, earlyExitPenalty, goldenBonus), entryFee)
}

// CapPayout clamps sol to MaxPayoutMultiplier times the entry fee.
func CapPayout(sol, entryFee float64) float64 {
	return math.Min(sol, entryFee*MaxPayoutMultiplier)
}

// RewardModifier is the product of the active payout modifiers.
func RewardModifier(ticketActive, earlyExitPenalty, goldenBonus bool) float64 {
	m := 1.0
	if ticketActive {
		m *= TicketMultiplier
	}
	if earlyExitPenalty {
		m *= EarlyMultiplier
	}
	if goldenBonus {
		m *= GoldenMultiplier
	}
	return m
}

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// SOL rounds a float SOL amount to lamport precision.
func SOL(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Round(9)
}

// ToLamports converts a SOL amount to integer lamports, rounding half away from zero.
func ToLamports(amount decimal.Decimal) int64 {
	return amount.Shift(9).Round(0).IntPart()
}
