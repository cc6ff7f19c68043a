// Package simulate plays many raids with a bot strategy on a virtual clock.
// Each raid draws its randomness from the provably-fair stream for
// (server seed, client seed, nonce), so a run over a nonce range replays
// exactly and any single raid can be audited after the seed is revealed.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MJE43/raid-extract/internal/engine"
	"github.com/MJE43/raid-extract/internal/raid"
	"github.com/MJE43/raid-extract/internal/rules"
	"github.com/MJE43/raid-extract/internal/scripting"
	"github.com/MJE43/raid-extract/internal/session"
	"github.com/MJE43/raid-extract/internal/validate"
)

var (
	// ErrInvalidRange is returned when NonceEnd is before NonceStart.
	ErrInvalidRange = errors.New("invalid nonce range")
	// ErrNoStrategy is returned when the request has no strategy.
	ErrNoStrategy = errors.New("no strategy")
)

const (
	defaultCadence = 250 * time.Millisecond
	batchSize      = 64
	// runaway guard: no raid survives past the validator ceiling
	maxVirtual = (rules.MaxDuration + 5) * time.Second
)

// Request describes a simulation run over [NonceStart, NonceEnd].
type Request struct {
	Seeds      engine.Seeds
	NonceStart uint64
	NonceEnd   uint64
	Config     raid.Config
	Strategy   scripting.Factory
	Cadence    time.Duration
	Workers    int
	KeepRaids  bool
}

// Record is one simulated raid.
type Record struct {
	Nonce     uint64              `json:"nonce"`
	Outcome   raid.Outcome        `json:"outcome"`
	Rejection *validate.Rejection `json:"rejection,omitempty"`
}

// Summary aggregates a run.
type Summary struct {
	Raids         uint64                   `json:"raids"`
	Wins          uint64                   `json:"wins"`
	Losses        uint64                   `json:"losses"`
	LossesBy      map[raid.Reason]uint64   `json:"losses_by"`
	Rejections    map[validate.Code]uint64 `json:"rejections"`
	TotalStaked   float64                  `json:"total_staked"`
	TotalPaid     float64                  `json:"total_paid"`
	RTP           float64                  `json:"rtp"`
	MeanElapsed   float64                  `json:"mean_elapsed_seconds"`
	PointsP50     int                      `json:"points_p50"`
	PointsP95     int                      `json:"points_p95"`
	MaxPayout     float64                  `json:"max_payout"`
	EarlyExits    uint64                   `json:"early_exits"`
	GoldenCashOut uint64                   `json:"golden_cash_outs"`
}

// Result is the outcome of Run.
type Result struct {
	Summary  Summary  `json:"summary"`
	Raids    []Record `json:"raids,omitempty"`
	Duration string   `json:"duration"`
}

type job struct {
	start, end uint64
}

// Run simulates every nonce in the request's range across a worker pool.
// The first strategy or engine error cancels the run.
func Run(ctx context.Context, req Request) (*Result, error) {
	if req.NonceEnd < req.NonceStart {
		return nil, ErrInvalidRange
	}
	if req.Strategy == nil {
		return nil, ErrNoStrategy
	}
	if _, err := raid.ResolveModifiers(req.Config.Difficulty, req.Config.Gear, req.Config.Boosts, req.Config.StreakWins); err != nil {
		return nil, err
	}
	if req.Cadence <= 0 {
		req.Cadence = defaultCadence
	}
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	began := time.Now()
	agg := newAggregator(req.KeepRaids)
	jobs := make(chan job, workers*2)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for start := req.NonceStart; ; start += batchSize {
			end := start + batchSize - 1
			if end > req.NonceEnd || end < start {
				end = req.NonceEnd
			}
			select {
			case jobs <- job{start: start, end: end}:
			case <-gctx.Done():
				return gctx.Err()
			}
			if end == req.NonceEnd {
				return nil
			}
		}
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			local := newAggregator(req.KeepRaids)
			defer agg.merge(local)

			for j := range jobs {
				for nonce := j.start; ; nonce++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					rec, err := One(req.Seeds, nonce, req.Config, req.Strategy, req.Cadence)
					if err != nil {
						return fmt.Errorf("nonce %d: %w", nonce, err)
					}
					local.add(rec, req.Config.EntryFee)
					if nonce == j.end {
						break
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := agg.result()
	res.Duration = time.Since(began).String()
	return res, nil
}

// One plays a single raid for nonce on a virtual clock, asking the strategy
// for an action every cadence, and checks the resulting claim.
func One(seeds engine.Seeds, nonce uint64, cfg raid.Config, factory scripting.Factory, cadence time.Duration) (Record, error) {
	strategy, err := factory()
	if err != nil {
		return Record{}, err
	}
	if cadence <= 0 {
		cadence = defaultCadence
	}

	start := time.Unix(0, 0).UTC()
	r, err := raid.New(cfg, start, raid.WithSource(engine.NewSeededSource(seeds, nonce)))
	if err != nil {
		return Record{}, err
	}

	now := start
	for !r.Ended() {
		now = now.Add(cadence)
		if now.Sub(start) > maxVirtual {
			return Record{}, errors.New("raid did not terminate")
		}
		r.Advance(now)
		if r.Ended() {
			break
		}
		action, err := strategy.Decide(scripting.StateFrom(r.Snapshot()))
		if err != nil {
			return Record{}, err
		}
		scripting.Apply(r, action, now)
	}

	out := *r.Outcome()
	rec := Record{Nonce: nonce, Outcome: out}
	rec.Rejection = validate.Validate(session.ClaimFor(cfg, out))
	return rec, nil
}

type aggregator struct {
	mu      sync.Mutex
	keep    bool
	summary Summary
	elapsed float64
	points  []int
	records []Record
}

func newAggregator(keep bool) *aggregator {
	return &aggregator{
		keep: keep,
		summary: Summary{
			LossesBy:   map[raid.Reason]uint64{},
			Rejections: map[validate.Code]uint64{},
		},
	}
}

func (a *aggregator) add(rec Record, fee float64) {
	s := &a.summary
	out := rec.Outcome
	s.Raids++
	s.TotalStaked += fee
	if out.Success {
		s.Wins++
		s.TotalPaid += out.SolAmount
		s.MaxPayout = math.Max(s.MaxPayout, out.SolAmount)
		if out.EarlyExitPenalty {
			s.EarlyExits++
		}
		if out.GoldenBonus {
			s.GoldenCashOut++
		}
	} else {
		s.Losses++
		s.LossesBy[out.Reason]++
	}
	if rec.Rejection != nil {
		s.Rejections[rec.Rejection.Code]++
	}
	a.elapsed += float64(out.ElapsedSeconds)
	a.points = append(a.points, out.Points)
	if a.keep {
		rec.Outcome.Events = nil
		a.records = append(a.records, rec)
	}
}

func (a *aggregator) merge(o *aggregator) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, os := &a.summary, &o.summary
	s.Raids += os.Raids
	s.Wins += os.Wins
	s.Losses += os.Losses
	s.TotalStaked += os.TotalStaked
	s.TotalPaid += os.TotalPaid
	s.MaxPayout = math.Max(s.MaxPayout, os.MaxPayout)
	s.EarlyExits += os.EarlyExits
	s.GoldenCashOut += os.GoldenCashOut
	for k, v := range os.LossesBy {
		s.LossesBy[k] += v
	}
	for k, v := range os.Rejections {
		s.Rejections[k] += v
	}
	a.elapsed += o.elapsed
	a.points = append(a.points, o.points...)
	a.records = append(a.records, o.records...)
}

func (a *aggregator) result() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.summary
	if s.Raids > 0 {
		s.MeanElapsed = a.elapsed / float64(s.Raids)
	}
	if s.TotalStaked > 0 {
		s.RTP = s.TotalPaid / s.TotalStaked
	}
	sort.Ints(a.points)
	s.PointsP50 = percentile(a.points, 0.50)
	s.PointsP95 = percentile(a.points, 0.95)

	sort.Slice(a.records, func(i, j int) bool { return a.records[i].Nonce < a.records[j].Nonce })
	return &Result{Summary: s, Raids: a.records}
}

// percentile uses nearest rank on a sorted slice.
func percentile(sorted []int, p float64) int {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
