package raid

import (
	"time"

	"github.com/MJE43/raid-extract/internal/rules"
)

// BoostType says which modifier a purchased boost feeds.
type BoostType string

const (
	BoostRisk       BoostType = "RISK"
	BoostMultiplier BoostType = "MULTIPLIER"
)

// Gear is an equipped item's contribution to the loadout.
type Gear struct {
	ID              string        `json:"id" yaml:"id"`
	Name            string        `json:"name" yaml:"name"`
	MultiplierBonus float64       `json:"multiplier_bonus" yaml:"multiplier_bonus"`
	RiskReduction   float64       `json:"risk_reduction" yaml:"risk_reduction"`
	TimeBonus       time.Duration `json:"time_bonus" yaml:"time_bonus"`
}

// Boost is a one-raid purchased modifier.
type Boost struct {
	ID                   string    `json:"id" yaml:"id"`
	Name                 string    `json:"name" yaml:"name"`
	Type                 BoostType `json:"type" yaml:"type"`
	DriftMultiplier      float64   `json:"drift_multiplier" yaml:"drift_multiplier"`
	StartMultiplierBonus float64   `json:"start_multiplier_bonus" yaml:"start_multiplier_bonus"`
}

// Modifiers are the scalars derived from a loadout.
type Modifiers struct {
	RiskOffset         float64       `json:"risk_offset"`
	DriftMultiplier    float64       `json:"drift_multiplier"`
	MultiplierModifier float64       `json:"multiplier_modifier"`
	StartingMultiplier float64       `json:"starting_multiplier"`
	StartingTimeBudget time.Duration `json:"starting_time_budget"`
	GearRiskFactor     float64       `json:"gear_risk_factor"`
}

// Config is fixed when the player commits to a raid.
type Config struct {
	Difficulty           rules.Difficulty `json:"difficulty"`
	EntryFee             float64          `json:"entry_fee"`
	Gear                 []Gear           `json:"gear,omitempty"`
	Boosts               []Boost          `json:"boosts,omitempty"`
	TicketDiscountActive bool             `json:"ticket_discount_active"`
	StreakWins           int              `json:"streak_wins"`
	Mode                 string           `json:"mode,omitempty"`
}

// Phase is the externally visible state of a raid.
type Phase string

const (
	PhaseArming       Phase = "ARMING"
	PhaseActive       Phase = "ACTIVE"
	PhaseAmbushed     Phase = "AMBUSHED"
	PhaseGoldenWindow Phase = "GOLDEN_WINDOW"
	PhaseEnding       Phase = "ENDING"
	PhaseTerminated   Phase = "TERMINATED"
)

// Reason explains why a raid ended.
type Reason string

const (
	ReasonExtracted        Reason = "EXTRACTED"
	ReasonRiskOverload     Reason = "RISK_OVERLOAD"
	ReasonCriticalOverload Reason = "CRITICAL_OVERLOAD"
	ReasonTimeout          Reason = "TIMEOUT_EXPIRED"
)

// EventType labels a ledger entry.
type EventType string

const (
	EventLive       EventType = "LIVE"
	EventJackpot    EventType = "JACKPOT"
	EventAmbush     EventType = "AMBUSH"
	EventAmbushEnd  EventType = "AMBUSH_CLEARED"
	EventFirewall   EventType = "FIREWALL"
	EventSurge      EventType = "SURGE"
	EventGolden     EventType = "GOLDEN_WINDOW"
	EventGoldenEnd  EventType = "GOLDEN_CLOSED"
	EventAggression EventType = "AGGRESSION"
	EventCombo      EventType = "COMBO"
	EventCounter    EventType = "COUNTER"
	EventLockout    EventType = "LOCKOUT"
	EventCritical   EventType = "CRITICAL_OVERLOAD"
	EventBust       EventType = "BUST"
	EventTimeout    EventType = "TIMEOUT"
	EventExtracted  EventType = "EXTRACTED"
)

// Severity grades an event for the debrief screen.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityBonus    Severity = "bonus"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one append-only ledger record.
type Event struct {
	Tick     int           `json:"tick"`
	At       time.Duration `json:"at"`
	Type     EventType     `json:"type"`
	Reason   string        `json:"reason"`
	Impact   float64       `json:"impact"`
	Severity Severity      `json:"severity"`
}

// Outcome is reported exactly once when a raid ends.
type Outcome struct {
	Success          bool    `json:"success"`
	SolAmount        float64 `json:"sol_amount"`
	Points           int     `json:"points"`
	ElapsedSeconds   int     `json:"elapsed_seconds"`
	Reason           Reason  `json:"reason"`
	EarlyExitPenalty bool    `json:"early_exit_penalty"`
	GoldenBonus      bool    `json:"golden_bonus"`
	Events           []Event `json:"events"`
}

// Snapshot is everything the presentation layer renders.
type Snapshot struct {
	Phase           Phase         `json:"phase"`
	Risk            float64       `json:"risk"`
	Multiplier      float64       `json:"multiplier"`
	PeakMultiplier  float64       `json:"peak_multiplier"`
	Score           int           `json:"score"`
	Elapsed         time.Duration `json:"elapsed"`
	Remaining       time.Duration `json:"remaining"`
	Ambushed        bool          `json:"ambushed"`
	GoldenWindow    bool          `json:"golden_window"`
	GoldenRemaining time.Duration `json:"golden_remaining"`
	HotStreak       bool          `json:"hot_streak"`
	DefendLocked    bool          `json:"defend_locked"`
	CanCashOut      bool          `json:"can_cash_out"`
	RewardPreview   float64       `json:"reward_preview"`
	EnemyPressure   float64       `json:"enemy_pressure"`
	Events          []Event       `json:"events"`
	Outcome         *Outcome      `json:"outcome,omitempty"`
}
