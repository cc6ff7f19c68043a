package api

import (
	"github.com/MJE43/raid-extract/internal/catalog"
	"github.com/MJE43/raid-extract/internal/rules"
	"github.com/MJE43/raid-extract/internal/store"
	"github.com/MJE43/raid-extract/internal/validate"
)

// ValidateResponse is the dry-run verdict for a claim.
type ValidateResponse struct {
	Valid     bool                `json:"valid"`
	Rejection *validate.Rejection `json:"rejection,omitempty"`
	Award     *validate.Award     `json:"award,omitempty"`
	Band      [2]float64          `json:"band"`
	MaxScore  int                 `json:"max_score"`
}

// Limits are the validator bounds a client can check before submitting.
type Limits struct {
	MinDuration         int     `json:"min_duration_seconds"`
	MaxDuration         int     `json:"max_duration_seconds"`
	MaxPayoutMultiplier float64 `json:"max_payout_multiplier"`
	PayoutTolerance     float64 `json:"payout_tolerance"`
	MaxActionsPerSecond int     `json:"max_actions_per_second"`
	EarlyExitSeconds    int     `json:"early_exit_seconds"`
}

// RulesResponse publishes the difficulty table, catalog and limits.
type RulesResponse struct {
	EngineVersion string                 `json:"engine_version"`
	Difficulties  []rules.DifficultySpec `json:"difficulties"`
	Catalog       *catalog.Catalog       `json:"catalog"`
	Limits        Limits                 `json:"limits"`
}

// HistoryResponse lists a player's settled raids, newest first.
type HistoryResponse struct {
	PlayerID string            `json:"player_id"`
	Raids    []store.RaidResult `json:"raids"`
}

// FeedResponse lists recent public feed entries, newest first.
type FeedResponse struct {
	Entries []store.FeedEntry `json:"entries"`
}

func currentLimits() Limits {
	return Limits{
		MinDuration:         rules.MinDuration,
		MaxDuration:         rules.MaxDuration,
		MaxPayoutMultiplier: rules.MaxPayoutMultiplier,
		PayoutTolerance:     rules.PayoutTolerance,
		MaxActionsPerSecond: rules.MaxActionsPerSecond,
		EarlyExitSeconds:    rules.EarlyExitSeconds,
	}
}
