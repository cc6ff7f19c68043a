// Package scripting decides raid actions for bots: two built-in Go
// strategies and a sandboxed JavaScript strategy that exposes a decide(state)
// function.
package scripting

import (
	"fmt"
	"strings"
	"time"

	"github.com/MJE43/raid-extract/internal/raid"
)

// Action is one decision.
type Action string

const (
	ActionAttack  Action = "attack"
	ActionDefend  Action = "defend"
	ActionCashOut Action = "cashout"
	ActionWait    Action = "wait"
)

// ParseAction accepts an action name in any case. An empty name waits.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAttack, ActionDefend, ActionCashOut, ActionWait:
		return a, nil
	case "":
		return ActionWait, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// State is what a strategy sees on each decision.
type State struct {
	Phase         string  `json:"phase"`
	Risk          float64 `json:"risk"`
	Multiplier    float64 `json:"multiplier"`
	Score         int     `json:"score"`
	Elapsed       float64 `json:"elapsed"`
	Remaining     float64 `json:"remaining"`
	Ambushed      bool    `json:"ambushed"`
	GoldenWindow  bool    `json:"goldenWindow"`
	HotStreak     bool    `json:"hotStreak"`
	DefendLocked  bool    `json:"defendLocked"`
	CanCashOut    bool    `json:"canCashOut"`
	RewardPreview float64 `json:"rewardPreview"`
	EnemyPressure float64 `json:"enemyPressure"`
}

// StateFrom projects a raid snapshot for a strategy.
func StateFrom(s raid.Snapshot) State {
	return State{
		Phase:         string(s.Phase),
		Risk:          s.Risk,
		Multiplier:    s.Multiplier,
		Score:         s.Score,
		Elapsed:       s.Elapsed.Seconds(),
		Remaining:     s.Remaining.Seconds(),
		Ambushed:      s.Ambushed,
		GoldenWindow:  s.GoldenWindow,
		HotStreak:     s.HotStreak,
		DefendLocked:  s.DefendLocked,
		CanCashOut:    s.CanCashOut,
		RewardPreview: s.RewardPreview,
		EnemyPressure: s.EnemyPressure,
	}
}

// Strategy picks the next action. Implementations are not safe for
// concurrent use; give each raid its own.
type Strategy interface {
	Name() string
	Decide(State) (Action, error)
}

// Factory builds a fresh Strategy.
type Factory func() (Strategy, error)

// Cautious defends early and banks a modest multiplier.
type Cautious struct {
	DefendAbove  float64
	CashOutAbove float64
	Target       float64
	MinRemaining time.Duration
}

// NewCautious returns Cautious with its default thresholds.
func NewCautious() *Cautious {
	return &Cautious{DefendAbove: 40, CashOutAbove: 60, Target: 1.6, MinRemaining: 6 * time.Second}
}

func (c *Cautious) Name() string { return "cautious" }

func (c *Cautious) Decide(s State) (Action, error) {
	if s.CanCashOut && (s.Risk >= c.CashOutAbove || s.Multiplier >= c.Target || s.GoldenWindow ||
		s.Remaining <= c.MinRemaining.Seconds()) {
		return ActionCashOut, nil
	}
	if s.Risk >= c.DefendAbove && !s.DefendLocked {
		return ActionDefend, nil
	}
	return ActionAttack, nil
}

// Greedy chains defend-into-attack combos and holds out for a big multiplier.
type Greedy struct {
	Target       float64
	BailAbove    float64
	MinRemaining time.Duration

	lastDefend bool
}

// NewGreedy returns Greedy with its default thresholds.
func NewGreedy() *Greedy {
	return &Greedy{Target: 3.0, BailAbove: 85, MinRemaining: 3 * time.Second}
}

func (g *Greedy) Name() string { return "greedy" }

func (g *Greedy) Decide(s State) (Action, error) {
	if s.CanCashOut && (s.Multiplier >= g.Target || s.Risk >= g.BailAbove ||
		s.Remaining <= g.MinRemaining.Seconds()) {
		return ActionCashOut, nil
	}
	if !g.lastDefend && !s.DefendLocked && s.Risk >= 30 {
		g.lastDefend = true
		return ActionDefend, nil
	}
	g.lastDefend = false
	return ActionAttack, nil
}

// Builtin returns a factory for a built-in strategy by name.
func Builtin(name string) (Factory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cautious":
		return func() (Strategy, error) { return NewCautious(), nil }, nil
	case "greedy":
		return func() (Strategy, error) { return NewGreedy(), nil }, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
