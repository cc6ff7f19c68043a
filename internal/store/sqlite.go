package store

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a SQLiteDB.
type Option func(*SQLiteDB)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteDB) { s.now = now }
}

// NewSQLiteDB opens the database at path. Writers take the lock at BEGIN so
// concurrent settlements queue on the busy timeout instead of failing.
func NewSQLiteDB(path string, opts ...Option) (*SQLiteDB, error) {
	dsn := path
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	s := &SQLiteDB{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Ping checks the connection is usable.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "ping database")
}

// Migrate applies the embedded goose migrations. It is idempotent.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "migrations fs")
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return errors.Wrap(err, "migration provider")
	}
	if _, err := provider.Up(ctx); err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnsureProfile creates an empty profile for playerID if none exists.
func (s *SQLiteDB) EnsureProfile(ctx context.Context, playerID string) (*Profile, error) {
	if err := s.ensureProfile(ctx, s.db, playerID); err != nil {
		return nil, err
	}
	return getProfile(ctx, s.db, playerID)
}

func (s *SQLiteDB) ensureProfile(ctx context.Context, q querier, playerID string) error {
	now := s.now().UnixMilli()
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO profiles (player_id, created_at, updated_at) VALUES (?, ?, ?)`,
		playerID, now, now)
	return errors.Wrap(err, "ensure profile")
}

// GetProfile returns ErrNotFound for an unknown player.
func (s *SQLiteDB) GetProfile(ctx context.Context, playerID string) (*Profile, error) {
	return getProfile(ctx, s.db, playerID)
}

func getProfile(ctx context.Context, q querier, playerID string) (*Profile, error) {
	var p Profile
	var balance string
	var created, updated int64
	err := q.QueryRowContext(ctx,
		`SELECT player_id, balance, reputation, streak_wins, total_raids, created_at, updated_at
		FROM profiles WHERE player_id = ?`, playerID,
	).Scan(&p.PlayerID, &balance, &p.Reputation, &p.StreakWins, &p.TotalRaids, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get profile")
	}

	if p.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, errors.Wrapf(err, "profile %s balance", playerID)
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// CreateSeed stores an unconsumed seed, creating the player's profile on
// first use.
func (s *SQLiteDB) CreateSeed(ctx context.Context, seed *Seed) error {
	if seed.ID == "" {
		seed.ID = uuid.New().String()
	}
	seed.CreatedAt = s.now().UTC()
	seed.ConsumedAt = nil

	if err := s.ensureProfile(ctx, s.db, seed.PlayerID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seeds (id, player_id, server_seed, commitment_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		seed.ID, seed.PlayerID, seed.ServerSeed, seed.CommitmentHash, seed.CreatedAt.UnixMilli())
	return errors.Wrap(err, "create seed")
}

// GetSeed returns ErrNotFound for an unknown id.
func (s *SQLiteDB) GetSeed(ctx context.Context, id string) (*Seed, error) {
	return getSeed(ctx, s.db, id)
}

func getSeed(ctx context.Context, q querier, id string) (*Seed, error) {
	var seed Seed
	var created int64
	var consumed sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT id, player_id, server_seed, commitment_hash, created_at, consumed_at FROM seeds WHERE id = ?`, id,
	).Scan(&seed.ID, &seed.PlayerID, &seed.ServerSeed, &seed.CommitmentHash, &created, &consumed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get seed")
	}

	seed.CreatedAt = fromMillis(created)
	if consumed.Valid {
		t := fromMillis(consumed.Int64)
		seed.ConsumedAt = &t
	}
	return &seed, nil
}

// ConsumeSeed marks the seed used without recording a result.
func (s *SQLiteDB) ConsumeSeed(ctx context.Context, id, playerID string) (*Seed, error) {
	return s.consumeSeed(ctx, s.db, id, playerID)
}

// consumeSeed is a conditional update: exactly one caller wins a seed.
func (s *SQLiteDB) consumeSeed(ctx context.Context, q querier, id, playerID string) (*Seed, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE seeds SET consumed_at = ? WHERE id = ? AND player_id = ? AND consumed_at IS NULL`,
		s.now().UnixMilli(), id, playerID)
	if err != nil {
		return nil, errors.Wrap(err, "consume seed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "consume seed")
	}
	if n == 0 {
		seed, err := getSeed(ctx, q, id)
		if err != nil {
			return nil, err
		}
		if seed.PlayerID != playerID {
			return nil, ErrNotFound
		}
		return nil, ErrSeedConsumed
	}
	return getSeed(ctx, q, id)
}

// RecordResult consumes the result's seed and, in the same transaction,
// credits the profile, appends the history row and posts to the feed.
func (s *SQLiteDB) RecordResult(ctx context.Context, result *RaidResult) (*Seed, error) {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	result.CreatedAt = s.now().UTC()
	now := result.CreatedAt.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin record result")
	}
	defer tx.Rollback()

	seed, err := s.consumeSeed(ctx, tx, result.SeedID, result.PlayerID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureProfile(ctx, tx, result.PlayerID); err != nil {
		return nil, err
	}
	profile, err := getProfile(ctx, tx, result.PlayerID)
	if err != nil {
		return nil, err
	}

	streak := 0
	if result.Success {
		streak = profile.StreakWins + 1
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE profiles SET balance = ?, reputation = reputation + ?, streak_wins = ?,
		total_raids = total_raids + 1, updated_at = ? WHERE player_id = ?`,
		profile.Balance.Add(result.SolAwarded).String(), result.ReputationAwarded, streak, now, result.PlayerID)
	if err != nil {
		return nil, errors.Wrap(err, "update profile")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO raid_history (id, player_id, seed_id, success, points, elapsed_seconds, difficulty,
		entry_fee, sol_claimed, sol_awarded, reputation_awarded, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.PlayerID, result.SeedID, boolInt(result.Success), result.Points, result.ElapsedSeconds,
		result.Difficulty, result.EntryFee.String(), result.SolClaimed.String(), result.SolAwarded.String(),
		result.ReputationAwarded, result.Mode, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert history")
	}

	kind, amount := FeedBusted, result.EntryFee
	if result.Success {
		kind, amount = FeedExtracted, result.SolAwarded
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO activity_feed (player_id, kind, amount, difficulty, created_at) VALUES (?, ?, ?, ?, ?)`,
		result.PlayerID, string(kind), amount.String(), result.Difficulty, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert feed")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit record result")
	}
	return seed, nil
}

// RecordRejection consumes the seed and stores the refused claim. Nothing is
// credited.
func (s *SQLiteDB) RecordRejection(ctx context.Context, rej *Rejection) (*Seed, error) {
	if rej.ID == "" {
		rej.ID = uuid.New().String()
	}
	rej.CreatedAt = s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin record rejection")
	}
	defer tx.Rollback()

	seed, err := s.consumeSeed(ctx, tx, rej.SeedID, rej.PlayerID)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO rejected_claims (id, player_id, seed_id, code, reason, claim_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rej.ID, rej.PlayerID, rej.SeedID, rej.Code, rej.Reason, rej.ClaimJSON, rej.CreatedAt.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "insert rejection")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit record rejection")
	}
	return seed, nil
}

// ListHistory returns the player's most recent raids first.
func (s *SQLiteDB) ListHistory(ctx context.Context, playerID string, limit int) ([]RaidResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, player_id, seed_id, success, points, elapsed_seconds, difficulty, entry_fee,
		sol_claimed, sol_awarded, reputation_awarded, mode, created_at
		FROM raid_history WHERE player_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, playerID, clampLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	defer rows.Close()

	var out []RaidResult
	for rows.Next() {
		var r RaidResult
		var success int
		var entry, claimed, awarded string
		var created int64
		if err := rows.Scan(&r.ID, &r.PlayerID, &r.SeedID, &success, &r.Points, &r.ElapsedSeconds,
			&r.Difficulty, &entry, &claimed, &awarded, &r.ReputationAwarded, &r.Mode, &created); err != nil {
			return nil, errors.Wrap(err, "scan history")
		}
		r.Success = success == 1
		r.EntryFee = decimal.RequireFromString(entry)
		r.SolClaimed = decimal.RequireFromString(claimed)
		r.SolAwarded = decimal.RequireFromString(awarded)
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "list history")
}

// ListFeed returns the most recent public activity first.
func (s *SQLiteDB) ListFeed(ctx context.Context, limit int) ([]FeedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, player_id, kind, amount, difficulty, created_at
		FROM activity_feed ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "list feed")
	}
	defer rows.Close()

	var out []FeedEntry
	for rows.Next() {
		var e FeedEntry
		var kind, amount string
		var created int64
		if err := rows.Scan(&e.ID, &e.PlayerID, &kind, &amount, &e.Difficulty, &created); err != nil {
			return nil, errors.Wrap(err, "scan feed")
		}
		e.Kind = FeedKind(kind)
		e.Amount = decimal.RequireFromString(amount)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "list feed")
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
