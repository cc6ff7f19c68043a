// Package fairness is the server-side seed service: it commits to a server
// seed before a raid, then reveals it and settles the raid's claim exactly
// once.
package fairness

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/raid-extract/internal/rules"
	"github.com/MJE43/raid-extract/internal/store"
	"github.com/MJE43/raid-extract/internal/validate"
)

// ErrSeedConsumed is returned when a seed was already settled.
var ErrSeedConsumed = store.ErrSeedConsumed

// ErrUnknownSeed is returned for a seed id the player does not own.
var ErrUnknownSeed = errors.New("unknown seed")

const seedBytes = 32

// Commitment is handed to the client before the raid starts.
type Commitment struct {
	SeedID         string `json:"seedId"`
	CommitmentHash string `json:"commitmentHash"`
}

// Verdict is the outcome of settling a claim.
type Verdict struct {
	Accepted                bool            `json:"accepted"`
	AuthoritativeSol        decimal.Decimal `json:"authoritativeSol"`
	AuthoritativeReputation int             `json:"authoritativeReputation"`
	RevealedSeed            string          `json:"revealedSeed"`
	RejectionCode           validate.Code   `json:"rejectionCode,omitempty"`
	RejectionReason         string          `json:"rejectionReason,omitempty"`
}

// Service issues and settles seeds.
type Service struct {
	db     store.DB
	logger *zap.Logger
}

// NewService returns a seed service backed by db. A nil logger discards.
func NewService(db store.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger.Named("fairness")}
}

// RequestSeed generates and stores a fresh server seed and returns only its
// commitment.
func (s *Service) RequestSeed(ctx context.Context, playerID string) (Commitment, error) {
	buf := make([]byte, seedBytes)
	if _, err := rand.Read(buf); err != nil {
		return Commitment{}, err
	}
	serverSeed := hex.EncodeToString(buf)

	seed := &store.Seed{
		PlayerID:       playerID,
		ServerSeed:     serverSeed,
		CommitmentHash: Commit(serverSeed),
	}
	if err := s.db.CreateSeed(ctx, seed); err != nil {
		return Commitment{}, err
	}

	s.logger.Info("seed issued",
		zap.String("player_id", playerID),
		zap.String("seed_id", seed.ID),
		zap.String("commitment", seed.CommitmentHash),
	)
	return Commitment{SeedID: seed.ID, CommitmentHash: seed.CommitmentHash}, nil
}

// RevealAndSubmit settles claim against seedID. The seed is consumed
// atomically with the settlement, so a second submission fails with
// ErrSeedConsumed. A rejected claim is stored for review and credits nothing.
func (s *Service) RevealAndSubmit(ctx context.Context, playerID, seedID string, claim validate.Claim) (Verdict, error) {
	log := s.logger.With(zap.String("player_id", playerID), zap.String("seed_id", seedID))

	if rej := validate.Validate(claim); rej != nil {
		raw, err := json.Marshal(claim)
		if err != nil {
			return Verdict{}, err
		}
		seed, err := s.db.RecordRejection(ctx, &store.Rejection{
			PlayerID:  playerID,
			SeedID:    seedID,
			Code:      string(rej.Code),
			Reason:    rej.Reason,
			ClaimJSON: string(raw),
		})
		if err != nil {
			return Verdict{}, s.mapErr(err)
		}

		log.Warn("claim rejected", zap.String("code", string(rej.Code)), zap.String("reason", rej.Reason))
		return Verdict{
			AuthoritativeSol: decimal.Zero,
			RevealedSeed:     seed.ServerSeed,
			RejectionCode:    rej.Code,
			RejectionReason:  rej.Reason,
		}, nil
	}

	award := validate.Authoritative(claim)
	seed, err := s.db.RecordResult(ctx, &store.RaidResult{
		PlayerID:          playerID,
		SeedID:            seedID,
		Success:           claim.Success,
		Points:            claim.Points,
		ElapsedSeconds:    claim.ElapsedSeconds,
		Difficulty:        string(claim.Difficulty),
		EntryFee:          rules.SOL(claim.EntryFee),
		SolClaimed:        rules.SOL(claim.SolAmount),
		SolAwarded:        award.Sol,
		ReputationAwarded: award.Reputation,
		Mode:              claim.Mode,
	})
	if err != nil {
		return Verdict{}, s.mapErr(err)
	}

	log.Info("claim settled",
		zap.Bool("success", claim.Success),
		zap.Int("points", claim.Points),
		zap.String("sol_awarded", award.Sol.String()),
		zap.Int("reputation", award.Reputation),
	)
	return Verdict{
		Accepted:                true,
		AuthoritativeSol:        award.Sol,
		AuthoritativeReputation: award.Reputation,
		RevealedSeed:            seed.ServerSeed,
	}, nil
}

func (s *Service) mapErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownSeed
	}
	return err
}

// Commit is the public commitment to a server seed: hex SHA-256.
func Commit(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment reports whether seed hashes to commitment.
func VerifyCommitment(seed, commitment string) bool {
	return subtle.ConstantTimeCompare([]byte(Commit(seed)), []byte(commitment)) == 1
}
