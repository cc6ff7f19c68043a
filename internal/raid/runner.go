package raid

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned by Runner calls made after Run has returned.
var ErrStopped = errors.New("raid runner stopped")

type commandKind int

const (
	cmdAttack commandKind = iota
	cmdDefend
	cmdCashOut
	cmdSnapshot
)

type command struct {
	kind  commandKind
	reply chan reply
}

type reply struct {
	accepted bool
	snap     Snapshot
}

// Runner owns a Raid on a single goroutine and drives it from the wall
// clock. All methods are safe for concurrent use.
type Runner struct {
	raid  *Raid
	clock func() time.Time
	cmds  chan command
	done  chan struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock replaces time.Now. Tests use it to skew the clock.
func WithClock(clock func() time.Time) RunnerOption {
	return func(rn *Runner) { rn.clock = clock }
}

// NewRunner wraps r. The Runner takes ownership: nothing else may call r's
// methods once Run has started.
func NewRunner(r *Raid, opts ...RunnerOption) *Runner {
	rn := &Runner{
		raid:  r,
		clock: time.Now,
		cmds:  make(chan command),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rn)
	}
	return rn
}

// Run drives the raid until it terminates or ctx is cancelled. A cancelled
// raid is abandoned: no outcome is reported and Run returns ctx.Err().
func (rn *Runner) Run(ctx context.Context) error {
	defer close(rn.done)
	if rn.raid.Ended() {
		return nil
	}

	timer := time.NewTimer(rn.wait())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			rn.raid.Advance(rn.clock())
		case cmd := <-rn.cmds:
			cmd.reply <- rn.apply(cmd.kind)
		}
		if rn.raid.Ended() {
			return nil
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(rn.wait())
	}
}

// Done is closed when Run returns.
func (rn *Runner) Done() <-chan struct{} { return rn.done }

// Attack forwards to Raid.Attack at the current time.
func (rn *Runner) Attack(ctx context.Context) (bool, error) {
	rep, err := rn.send(ctx, cmdAttack)
	return rep.accepted, err
}

// Defend forwards to Raid.Defend at the current time.
func (rn *Runner) Defend(ctx context.Context) (bool, error) {
	rep, err := rn.send(ctx, cmdDefend)
	return rep.accepted, err
}

// CashOut forwards to Raid.CashOut at the current time.
func (rn *Runner) CashOut(ctx context.Context) (bool, error) {
	rep, err := rn.send(ctx, cmdCashOut)
	return rep.accepted, err
}

// Snapshot returns the presentation state as of now.
func (rn *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	rep, err := rn.send(ctx, cmdSnapshot)
	return rep.snap, err
}

func (rn *Runner) send(ctx context.Context, kind commandKind) (reply, error) {
	cmd := command{kind: kind, reply: make(chan reply, 1)}
	select {
	case rn.cmds <- cmd:
	case <-rn.done:
		return reply{}, ErrStopped
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	return <-cmd.reply, nil
}

func (rn *Runner) apply(kind commandKind) reply {
	now := rn.clock()
	switch kind {
	case cmdAttack:
		return reply{accepted: rn.raid.Attack(now)}
	case cmdDefend:
		return reply{accepted: rn.raid.Defend(now)}
	case cmdCashOut:
		return reply{accepted: rn.raid.CashOut(now)}
	default:
		rn.raid.Advance(now)
		return reply{snap: rn.raid.Snapshot()}
	}
}

func (rn *Runner) wait() time.Duration {
	d := rn.raid.NextDue().Sub(rn.clock())
	if d < 0 {
		return 0
	}
	return d
}
