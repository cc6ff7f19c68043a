// Package session plays one raid end to end on the player's side: it pays
// the entry fee, asks the seed service for a commitment without waiting on
// it, runs the raid, publishes the provisional outcome the moment the raid
// ends and then patches it with the server's verdict.
//
// A claim that cannot be delivered is written to the pending queue and
// retried by Reconcile. The provisional outcome is always returned.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/raid-extract/internal/client"
	"github.com/MJE43/raid-extract/internal/engine"
	"github.com/MJE43/raid-extract/internal/fairness"
	"github.com/MJE43/raid-extract/internal/pending"
	"github.com/MJE43/raid-extract/internal/raid"
	"github.com/MJE43/raid-extract/internal/rules"
	"github.com/MJE43/raid-extract/internal/validate"
)

// SeedService is the slice of the seed service API a session uses.
type SeedService interface {
	RequestSeed(ctx context.Context) (fairness.Commitment, error)
	SubmitResult(ctx context.Context, seedID string, claim validate.Claim) (fairness.Verdict, error)
}

// Payments submits a signed payment and returns its transaction id.
type Payments interface {
	SubmitPayment(ctx context.Context, amount decimal.Decimal) (txID string, err error)
}

// Driver feeds player input to a running raid. It is cancelled when the raid
// ends; returning early leaves the raid to run out on its own.
type Driver func(ctx context.Context, rn *raid.Runner) error

// Status is where a result stands with the server.
type Status string

const (
	// StatusProvisional is the local outcome before any server answer.
	StatusProvisional Status = "provisional"
	// StatusVerified means the server accepted the claim.
	StatusVerified Status = "verified"
	// StatusRejected means the server refused the claim. It is shown to the
	// player as pending verification.
	StatusRejected Status = "rejected"
	// StatusQueued means the claim could not be delivered and waits in the
	// pending queue.
	StatusQueued Status = "queued"
)

// Result is the player-facing record of one raid.
type Result struct {
	Status     Status               `json:"status"`
	Outcome    raid.Outcome         `json:"outcome"`
	Claim      validate.Claim       `json:"claim"`
	Commitment *fairness.Commitment `json:"commitment,omitempty"`
	Verdict    *fairness.Verdict    `json:"verdict,omitempty"`
	EntryTxID  string               `json:"entry_tx_id,omitempty"`
	QueueID    string               `json:"queue_id,omitempty"`
}

// Credit is what the player should see credited: the authoritative amount
// once verified, the provisional amount otherwise.
func (r Result) Credit() decimal.Decimal {
	if r.Status == StatusVerified && r.Verdict != nil {
		return r.Verdict.AuthoritativeSol
	}
	if !r.Outcome.Success {
		return decimal.Zero
	}
	return rules.SOL(r.Outcome.SolAmount)
}

// ErrPaymentFailed wraps an entry fee payment failure. No raid is started.
var ErrPaymentFailed = errors.New("entry fee payment failed")

const defaultSeedWait = 5 * time.Second

// Session plays raids against one seed service.
type Session struct {
	seeds    SeedService
	queue    *pending.Queue
	payments Payments
	logger   *zap.Logger
	clock    func() time.Time
	source   func() engine.Source
	seedWait time.Duration
	onUpdate []func(Result)
}

// Option configures a Session.
type Option func(*Session)

// WithPayments charges the entry fee before each raid.
func WithPayments(p Payments) Option {
	return func(s *Session) { s.payments = p }
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for the raid and its runner.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithSourceFactory sets where each raid's random stream comes from.
func WithSourceFactory(fn func() engine.Source) Option {
	return func(s *Session) { s.source = fn }
}

// WithSeedWait bounds how long to wait for the seed commitment after the
// raid has ended.
func WithSeedWait(d time.Duration) Option {
	return func(s *Session) { s.seedWait = d }
}

// OnUpdate is called with the provisional result and again with each patch.
func OnUpdate(fn func(Result)) Option {
	return func(s *Session) { s.onUpdate = append(s.onUpdate, fn) }
}

// New returns a session. queue receives claims that could not be delivered.
func New(seeds SeedService, queue *pending.Queue, opts ...Option) *Session {
	s := &Session{
		seeds:    seeds,
		queue:    queue,
		logger:   zap.NewNop(),
		clock:    time.Now,
		source:   engine.NewRandomSource,
		seedWait: defaultSeedWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("session")
	return s
}

type seedResult struct {
	commitment fairness.Commitment
	err        error
}

// Play runs one raid with drive supplying input. It returns an error only
// when the raid could not start or was abandoned through ctx; once the raid
// has an outcome, delivery problems are reported through Result.Status.
func (s *Session) Play(ctx context.Context, cfg raid.Config, drive Driver) (Result, error) {
	var res Result

	if s.payments != nil {
		txID, err := s.payments.SubmitPayment(ctx, rules.SOL(cfg.EntryFee))
		if err != nil {
			return res, errors.Join(ErrPaymentFailed, err)
		}
		res.EntryTxID = txID
	}

	seedCh := make(chan seedResult, 1)
	go func() {
		c, err := s.seeds.RequestSeed(ctx)
		seedCh <- seedResult{commitment: c, err: err}
	}()

	outcomes := make(chan raid.Outcome, 1)
	r, err := raid.New(cfg, s.clock(),
		raid.WithSource(s.source()),
		raid.WithLogger(s.logger),
		raid.OnEnd(func(o raid.Outcome) { outcomes <- o }),
	)
	if err != nil {
		return res, err
	}
	rn := raid.NewRunner(r, raid.WithClock(s.clock))

	if err := s.run(ctx, rn, drive); err != nil {
		return res, err
	}

	var out raid.Outcome
	select {
	case out = <-outcomes:
	default:
		return res, errors.New("raid stopped without an outcome")
	}

	res.Outcome = out
	res.Claim = ClaimFor(cfg, out)
	res.Status = StatusProvisional
	s.publish(res)

	seed, ok := s.awaitSeed(ctx, seedCh)
	if ok {
		res.Commitment = &seed
	}
	return s.settle(ctx, res), nil
}

func (s *Session) run(ctx context.Context, rn *raid.Runner, drive Driver) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rn.Run(gctx) })
	if drive != nil {
		g.Go(func() error {
			dctx, cancel := context.WithCancel(gctx)
			defer cancel()
			go func() {
				select {
				case <-rn.Done():
					cancel()
				case <-dctx.Done():
				}
			}()

			err := drive(dctx, rn)
			if err == nil || errors.Is(err, raid.ErrStopped) {
				return nil
			}
			if errors.Is(err, context.Canceled) && gctx.Err() == nil {
				// the raid ended under the driver
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (s *Session) awaitSeed(ctx context.Context, seedCh <-chan seedResult) (fairness.Commitment, bool) {
	timer := time.NewTimer(s.seedWait)
	defer timer.Stop()

	select {
	case sr := <-seedCh:
		if sr.err != nil {
			s.logger.Warn("seed request failed", zap.Error(sr.err))
			return fairness.Commitment{}, false
		}
		return sr.commitment, true
	case <-timer.C:
		s.logger.Warn("seed request timed out", zap.Duration("wait", s.seedWait))
	case <-ctx.Done():
	}
	return fairness.Commitment{}, false
}

// settle submits the claim and patches res with the verdict, or queues it.
func (s *Session) settle(ctx context.Context, res Result) Result {
	if res.Commitment == nil {
		return s.enqueue(res, "", errors.New("no seed commitment"))
	}
	seedID := res.Commitment.SeedID
	log := s.logger.With(zap.String("seed_id", seedID))

	verdict, err := s.seeds.SubmitResult(ctx, seedID, res.Claim)
	switch {
	case err == nil:
		res.Verdict = &verdict
		if verdict.Accepted {
			res.Status = StatusVerified
			log.Info("result verified", zap.String("sol", verdict.AuthoritativeSol.String()))
		} else {
			res.Status = StatusRejected
			log.Warn("result rejected",
				zap.String("code", string(verdict.RejectionCode)),
				zap.String("reason", verdict.RejectionReason),
			)
		}
		if !fairness.VerifyCommitment(verdict.RevealedSeed, res.Commitment.CommitmentHash) {
			log.Error("revealed seed does not match commitment")
		}
	case client.IsSeedConsumed(err):
		// an earlier attempt already settled this seed
		res.Status = StatusVerified
		log.Info("seed already settled")
	default:
		return s.enqueue(res, seedID, err)
	}

	s.publish(res)
	return res
}

func (s *Session) enqueue(res Result, seedID string, cause error) Result {
	entry, err := s.queue.Push(seedID, res.Claim)
	if err != nil {
		// still hand the provisional result back
		s.logger.Error("queue claim", zap.Error(err), zap.NamedError("cause", cause))
		return res
	}
	res.Status = StatusQueued
	res.QueueID = entry.ID
	s.logger.Warn("claim queued", zap.String("queue_id", entry.ID), zap.Error(cause))
	s.publish(res)
	return res
}

func (s *Session) publish(res Result) {
	for _, fn := range s.onUpdate {
		fn(res)
	}
}

// ClaimFor builds the claim reported for an outcome.
func ClaimFor(cfg raid.Config, out raid.Outcome) validate.Claim {
	return validate.Claim{
		Success:        out.Success,
		SolAmount:      out.SolAmount,
		Points:         out.Points,
		ElapsedSeconds: out.ElapsedSeconds,
		Difficulty:     cfg.Difficulty,
		EntryFee:       cfg.EntryFee,
		Mode:           cfg.Mode,
	}
}
