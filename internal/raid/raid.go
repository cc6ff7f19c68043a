// Package raid implements the per-raid risk/reward simulation: the 1-second
// tick loop, random events, and the three player actions.
//
// A Raid is a single-owner state machine. It never reads the clock itself;
// callers pass the current time to Advance and to every action, and all
// delayed effects are queued inside the Raid and fired by Advance. Runner
// provides the goroutine that owns a Raid in real time.
package raid

import (
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/MJE43/raid-extract/internal/engine"
	"github.com/MJE43/raid-extract/internal/rules"
)

// ErrInvalidConfig is returned by New for a config that cannot start a raid.
var ErrInvalidConfig = errors.New("invalid raid config")

type stage int

const (
	stageArming stage = iota
	stageActive
	stageEnding
	stageTerminated
)

type actionKind int

const (
	actionNone actionKind = iota
	actionAttack
	actionDefend
)

type timer struct {
	due  time.Time
	seq  int
	name string
	fn   func(r *Raid, at time.Time)
}

// Raid holds the mutable state of one raid.
type Raid struct {
	cfg    Config
	mods   Modifiers
	src    engine.Source
	logger *zap.Logger

	start    time.Time
	now      time.Time
	nextTick time.Time
	ticks    int

	stage          stage
	risk           float64
	multiplier     float64
	peakMultiplier float64
	score          int
	enemyPressure  float64
	hotStreak      bool

	goldenLatched bool
	goldenOpen    bool
	goldenUntil   time.Time
	ambushPending bool
	ambushUntil   time.Time
	defendLocked  bool
	lockedUntil   time.Time

	consecutiveDefends int
	attacksSinceDefend int
	actions            int
	lastAction         actionKind
	lastActionAt       time.Time
	lastActivityAt     time.Time

	events   []Event
	timers   []timer
	timerSeq int

	outcome *Outcome
	onEnd   []func(Outcome)
}

// Option configures a Raid.
type Option func(*Raid)

// WithSource sets the random stream. The default is a fresh PCG stream.
func WithSource(src engine.Source) Option {
	return func(r *Raid) { r.src = src }
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Raid) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// OnEnd registers a terminal-outcome callback. Callbacks run once, on the
// goroutine that drives the raid.
func OnEnd(fn func(Outcome)) Option {
	return func(r *Raid) { r.onEnd = append(r.onEnd, fn) }
}

// New starts a raid at start. The raid begins in the arming countdown.
func New(cfg Config, start time.Time, opts ...Option) (*Raid, error) {
	if cfg.EntryFee <= 0 || math.IsNaN(cfg.EntryFee) || math.IsInf(cfg.EntryFee, 0) {
		return nil, errors.Join(ErrInvalidConfig, errors.New("entry fee must be positive"))
	}
	mods, err := ResolveModifiers(cfg.Difficulty, cfg.Gear, cfg.Boosts, cfg.StreakWins)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	r := &Raid{
		cfg:            cfg,
		mods:           mods,
		logger:         zap.NewNop(),
		start:          start,
		now:            start,
		nextTick:       start.Add(rules.TickInterval),
		stage:          stageArming,
		risk:           mods.RiskOffset,
		multiplier:     mods.StartingMultiplier,
		peakMultiplier: mods.StartingMultiplier,
		enemyPressure:  mods.RiskOffset,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.src == nil {
		r.src = engine.NewRandomSource()
	}

	r.schedule(start.Add(rules.ArmingDuration), "arming", func(r *Raid, at time.Time) {
		r.stage = stageActive
		r.lastActivityAt = at
		r.record(at, EventLive, "countdown complete", 0, SeverityInfo)
	})
	return r, nil
}

// Modifiers returns the resolved loadout scalars.
func (r *Raid) Modifiers() Modifiers { return r.mods }

// Config returns the immutable raid config.
func (r *Raid) Config() Config { return r.cfg }

// Start returns the raid start time.
func (r *Raid) Start() time.Time { return r.start }

// Advance fires every delayed effect and tick due at or before now, in
// chronological order. Timers due at the same instant as a tick fire first.
// Overdue tick slots (a stalled caller) are coalesced into one tick at the
// latest slot, so elapsed time always follows the clock rather than a count
// of ticks.
func (r *Raid) Advance(now time.Time) {
	if now.Before(r.now) {
		now = r.now
	}
	for !r.ended() {
		if len(r.timers) > 0 && !r.timers[0].due.After(now) && !r.timers[0].due.After(r.nextTick) {
			t := r.timers[0]
			r.timers = r.timers[1:]
			r.now = t.due
			t.fn(r, t.due)
			continue
		}
		if r.nextTick.After(now) {
			break
		}
		limit := now
		if len(r.timers) > 0 && !r.timers[0].due.After(now) {
			limit = r.timers[0].due.Add(-time.Nanosecond)
		}
		slot := r.start.Add(limit.Sub(r.start) / rules.TickInterval * rules.TickInterval)
		r.now = slot
		r.tick(slot)
		r.nextTick = slot.Add(rules.TickInterval)
	}
	if now.After(r.now) {
		r.now = now
	}
}

// NextDue is the earliest instant at which Advance has work to do.
func (r *Raid) NextDue() time.Time {
	next := r.nextTick
	if len(r.timers) > 0 && r.timers[0].due.Before(next) {
		next = r.timers[0].due
	}
	return next
}

// Ended reports whether the raid has reached a terminal phase.
func (r *Raid) Ended() bool { return r.ended() }

// Outcome returns the terminal outcome, or nil while the raid is running.
func (r *Raid) Outcome() *Outcome {
	if r.outcome == nil {
		return nil
	}
	out := *r.outcome
	out.Events = append([]Event(nil), r.outcome.Events...)
	return &out
}

// Phase derives the visible phase from the stage and sub-state flags.
func (r *Raid) Phase() Phase {
	switch r.stage {
	case stageArming:
		return PhaseArming
	case stageEnding:
		return PhaseEnding
	case stageTerminated:
		return PhaseTerminated
	}
	if r.ambushPending {
		return PhaseAmbushed
	}
	if r.goldenOpen {
		return PhaseGoldenWindow
	}
	return PhaseActive
}

// Risk returns the current risk in [0, 100].
func (r *Raid) Risk() float64 { return r.risk }

// Multiplier returns the current multiplier (>= 1).
func (r *Raid) Multiplier() float64 { return r.multiplier }

// Score returns the accumulated score.
func (r *Raid) Score() int { return r.score }

// Events returns a copy of the event ledger.
func (r *Raid) Events() []Event {
	return append([]Event(nil), r.events...)
}

// Snapshot captures the presentation surface at the last observed time.
func (r *Raid) Snapshot() Snapshot {
	elapsed := r.now.Sub(r.start)
	remaining := r.mods.StartingTimeBudget - elapsed
	if remaining < 0 {
		remaining = 0
	}
	snap := Snapshot{
		Phase:          r.Phase(),
		Risk:           r.risk,
		Multiplier:     r.multiplier,
		PeakMultiplier: r.peakMultiplier,
		Score:          r.score,
		Elapsed:        elapsed,
		Remaining:      remaining,
		Ambushed:       r.ambushPending,
		GoldenWindow:   r.goldenOpen,
		HotStreak:      r.hotStreak,
		DefendLocked:   r.defendLocked,
		CanCashOut:     r.acceptsInput() && r.actions > 0,
		EnemyPressure:  r.enemyPressure,
		Events:         r.Events(),
		Outcome:        r.Outcome(),
	}
	if r.goldenOpen {
		snap.GoldenRemaining = r.goldenUntil.Sub(r.now)
	}
	if !r.ended() {
		secs := r.elapsedSeconds(r.now)
		snap.RewardPreview = rules.Payout(r.score, r.cfg.EntryFee, r.cfg.TicketDiscountActive,
			secs < rules.EarlyExitSeconds, r.goldenOpen)
	}
	return snap
}

func (r *Raid) ended() bool {
	return r.stage == stageEnding || r.stage == stageTerminated
}

func (r *Raid) acceptsInput() bool {
	return r.stage == stageActive && !r.ambushPending
}

// elapsedSeconds is whole seconds since start, never below the minimum raid
// duration.
func (r *Raid) elapsedSeconds(now time.Time) int {
	secs := int(now.Sub(r.start) / time.Second)
	if secs < rules.MinDuration {
		secs = rules.MinDuration
	}
	return secs
}

// schedule queues a delayed effect. fn receives the live Raid when it fires
// and must not rely on values captured when it was scheduled. Nothing fires
// once the raid has ended.
func (r *Raid) schedule(due time.Time, name string, fn func(r *Raid, at time.Time)) {
	r.timerSeq++
	guarded := func(r *Raid, at time.Time) {
		if r.ended() {
			return
		}
		fn(r, at)
	}
	r.timers = append(r.timers, timer{due: due, seq: r.timerSeq, name: name, fn: guarded})
	sort.SliceStable(r.timers, func(i, j int) bool {
		if r.timers[i].due.Equal(r.timers[j].due) {
			return r.timers[i].seq < r.timers[j].seq
		}
		return r.timers[i].due.Before(r.timers[j].due)
	})
}

func (r *Raid) record(at time.Time, typ EventType, reason string, impact float64, sev Severity) {
	r.events = append(r.events, Event{
		Tick:     r.ticks,
		At:       at.Sub(r.start),
		Type:     typ,
		Reason:   reason,
		Impact:   impact,
		Severity: sev,
	})
}

func (r *Raid) trackPeak() {
	if r.multiplier > r.peakMultiplier {
		r.peakMultiplier = r.multiplier
	}
}

// raiseRisk applies delta and resolves a bust with the firewall reprieve.
// It returns false when the raid ended.
func (r *Raid) raiseRisk(at time.Time, delta float64) bool {
	if r.risk+delta < riskCeiling {
		r.risk = clamp(r.risk+delta, 0, riskCeiling)
		return true
	}
	if engine.Chance(r.src, firewallSaveChance) {
		r.record(at, EventFirewall, "firewall absorbed overload", firewallResetRisk-r.risk, SeverityBonus)
		r.risk = firewallResetRisk
		return true
	}
	r.risk = riskCeiling
	r.record(at, EventBust, "risk overload", delta, SeverityCritical)
	r.lose(at, ReasonRiskOverload)
	return false
}

func (r *Raid) lose(at time.Time, reason Reason) {
	r.finish(at, Outcome{
		Success:        false,
		Points:         r.score,
		ElapsedSeconds: r.elapsedSeconds(at),
		Reason:         reason,
	})
}

// finish is the terminal boundary: it cancels every pending effect and
// sub-state, reports the outcome once, and terminates the raid.
func (r *Raid) finish(at time.Time, out Outcome) {
	if r.ended() {
		return
	}
	r.stage = stageEnding
	r.timers = nil
	r.ambushPending = false
	r.goldenOpen = false
	r.defendLocked = false

	out.Events = r.Events()
	r.outcome = &out
	r.logger.Debug("raid ended",
		zap.Bool("success", out.Success),
		zap.String("reason", string(out.Reason)),
		zap.Int("points", out.Points),
		zap.Int("elapsed_seconds", out.ElapsedSeconds),
		zap.Float64("sol_amount", out.SolAmount),
	)
	for _, fn := range r.onEnd {
		fn(*r.Outcome())
	}
	r.stage = stageTerminated
}
