package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a profile or seed does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSeedConsumed is returned when a seed was already used for a result.
	ErrSeedConsumed = errors.New("seed already consumed")
)

// DB represents the database interface
type DB interface {
	Close() error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	EnsureProfile(ctx context.Context, playerID string) (*Profile, error)
	GetProfile(ctx context.Context, playerID string) (*Profile, error)
	CreateSeed(ctx context.Context, seed *Seed) error
	GetSeed(ctx context.Context, id string) (*Seed, error)
	ConsumeSeed(ctx context.Context, id, playerID string) (*Seed, error)
	RecordResult(ctx context.Context, result *RaidResult) (*Seed, error)
	RecordRejection(ctx context.Context, rej *Rejection) (*Seed, error)
	ListHistory(ctx context.Context, playerID string, limit int) ([]RaidResult, error)
	ListFeed(ctx context.Context, limit int) ([]FeedEntry, error)
}

// Profile is a player's server-side ledger.
type Profile struct {
	PlayerID   string          `json:"player_id"`
	Balance    decimal.Decimal `json:"balance"`
	Reputation int             `json:"reputation"`
	StreakWins int             `json:"streak_wins"`
	TotalRaids int             `json:"total_raids"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Seed is a committed server seed. ServerSeed stays secret until consumed.
type Seed struct {
	ID             string     `json:"id"`
	PlayerID       string     `json:"player_id"`
	ServerSeed     string     `json:"-"`
	CommitmentHash string     `json:"commitment_hash"`
	CreatedAt      time.Time  `json:"created_at"`
	ConsumedAt     *time.Time `json:"consumed_at,omitempty"`
}

// RaidResult is an accepted raid with the server's credit.
type RaidResult struct {
	ID                string          `json:"id"`
	PlayerID          string          `json:"player_id"`
	SeedID            string          `json:"seed_id"`
	Success           bool            `json:"success"`
	Points            int             `json:"points"`
	ElapsedSeconds    int             `json:"elapsed_seconds"`
	Difficulty        string          `json:"difficulty"`
	EntryFee          decimal.Decimal `json:"entry_fee"`
	SolClaimed        decimal.Decimal `json:"sol_claimed"`
	SolAwarded        decimal.Decimal `json:"sol_awarded"`
	ReputationAwarded int             `json:"reputation_awarded"`
	Mode              string          `json:"mode,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Rejection is a refused claim kept for review.
type Rejection struct {
	ID        string    `json:"id"`
	PlayerID  string    `json:"player_id"`
	SeedID    string    `json:"seed_id"`
	Code      string    `json:"code"`
	Reason    string    `json:"reason"`
	ClaimJSON string    `json:"claim_json"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedKind labels an activity feed entry.
type FeedKind string

const (
	FeedExtracted FeedKind = "extracted"
	FeedBusted    FeedKind = "busted"
)

// FeedEntry is one line of the public activity feed.
type FeedEntry struct {
	ID         int64           `json:"id"`
	PlayerID   string          `json:"player_id"`
	Kind       FeedKind        `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Difficulty string          `json:"difficulty"`
	CreatedAt  time.Time       `json:"created_at"`
}
