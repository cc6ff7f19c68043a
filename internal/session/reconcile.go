package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/MJE43/raid-extract/internal/client"
	"github.com/MJE43/raid-extract/internal/pending"
)

// ReconcileReport summarizes one pass over the pending queue.
type ReconcileReport struct {
	Delivered int
	Remaining int
}

// Reconcile resubmits queued claims. Claims the server answers, including
// with a rejection or seed_consumed, leave the queue. Claims that cannot be
// settled at all (unknown seed, malformed claim) are dropped with a warning.
// Everything else stays for the next pass.
func (s *Session) Reconcile(ctx context.Context) (ReconcileReport, error) {
	delivered, err := s.queue.Flush(ctx, s.redeliver)
	report := ReconcileReport{Delivered: delivered}
	if n, lerr := s.queue.Len(); lerr == nil {
		report.Remaining = n
	} else if err == nil {
		err = lerr
	}
	return report, err
}

func (s *Session) redeliver(ctx context.Context, e pending.Entry) error {
	log := s.logger.With(zap.String("queue_id", e.ID), zap.Int("attempts", e.Attempts))

	seedID := e.SeedID
	if seedID == "" {
		c, err := s.seeds.RequestSeed(ctx)
		if err != nil {
			return err
		}
		seedID = c.SeedID
	}
	log = log.With(zap.String("seed_id", seedID))

	verdict, err := s.seeds.SubmitResult(ctx, seedID, e.Claim)
	if err == nil {
		if verdict.Accepted {
			log.Info("queued claim verified", zap.String("sol", verdict.AuthoritativeSol.String()))
		} else {
			log.Warn("queued claim rejected", zap.String("code", string(verdict.RejectionCode)))
		}
		s.publish(Result{Status: statusFor(verdict.Accepted), Claim: e.Claim, Verdict: &verdict, QueueID: e.ID})
		return nil
	}

	if apiErr, ok := client.AsAPIError(err); ok {
		switch {
		case apiErr.IsSeedConsumed():
			log.Info("queued claim already settled")
			return nil
		case apiErr.StatusCode == http.StatusNotFound, apiErr.StatusCode == http.StatusBadRequest:
			log.Warn("dropping unsettleable claim", zap.Error(err))
			return nil
		}
	}
	return err
}

func statusFor(accepted bool) Status {
	if accepted {
		return StatusVerified
	}
	return StatusRejected
}
