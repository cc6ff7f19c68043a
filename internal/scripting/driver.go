package scripting

import (
	"context"
	"time"

	"github.com/MJE43/raid-extract/internal/raid"
)

// DefaultCadence is how often a bot looks at the raid.
const DefaultCadence = 250 * time.Millisecond

// RunnerDriver returns a driver that polls rn every cadence and applies
// strategy's decision until the raid ends or ctx is done.
func RunnerDriver(strategy Strategy, cadence time.Duration) func(context.Context, *raid.Runner) error {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return func(ctx context.Context, rn *raid.Runner) error {
		ticker := time.NewTicker(cadence)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-rn.Done():
				return nil
			case <-ticker.C:
			}

			snap, err := rn.Snapshot(ctx)
			if err != nil {
				return err
			}
			if snap.Outcome != nil {
				return nil
			}
			action, err := strategy.Decide(StateFrom(snap))
			if err != nil {
				return err
			}
			if _, err := ApplyRunner(ctx, rn, action); err != nil {
				return err
			}
		}
	}
}

// ApplyRunner performs action through a runner.
func ApplyRunner(ctx context.Context, rn *raid.Runner, action Action) (bool, error) {
	switch action {
	case ActionAttack:
		return rn.Attack(ctx)
	case ActionDefend:
		return rn.Defend(ctx)
	case ActionCashOut:
		return rn.CashOut(ctx)
	default:
		return false, nil
	}
}

// Apply performs action directly on a raid at now.
func Apply(r *raid.Raid, action Action, now time.Time) bool {
	switch action {
	case ActionAttack:
		return r.Attack(now)
	case ActionDefend:
		return r.Defend(now)
	case ActionCashOut:
		return r.CashOut(now)
	default:
		r.Advance(now)
		return false
	}
}
