// Package pending is the on-disk queue of raid claims that have not reached
// the seed service yet. A claim stays queued until a submission gets an
// answer from the server, so a provisional result survives restarts and
// network loss.
package pending

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/MJE43/raid-extract/internal/validate"
)

// Entry is one unsent claim.
type Entry struct {
	ID        string         `json:"id"`
	SeedID    string         `json:"seed_id"`
	Claim     validate.Claim `json:"claim"`
	QueuedAt  time.Time      `json:"queued_at"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
}

// Queue is a JSON file of entries. It is safe for concurrent use within one
// process.
type Queue struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewQueue returns a queue stored at path.
func NewQueue(path string) *Queue {
	return &Queue{path: path, now: time.Now}
}

// Push appends a claim and returns the stored entry.
func (q *Queue) Push(seedID string, claim validate.Claim) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.loadUnlocked()
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:       uuid.New().String(),
		SeedID:   seedID,
		Claim:    claim,
		QueuedAt: q.now().UTC(),
	}
	entries = append(entries, e)
	return e, q.saveUnlocked(entries)
}

// List returns the queued entries, oldest first.
func (q *Queue) List() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadUnlocked()
}

// Len returns the number of queued entries.
func (q *Queue) Len() (int, error) {
	entries, err := q.List()
	return len(entries), err
}

// Flush offers every entry to send in order. An entry is dropped when send
// returns nil and kept with its attempt count bumped otherwise. Flush stops
// early when ctx is done and returns how many entries were sent.
func (q *Queue) Flush(ctx context.Context, send func(context.Context, Entry) error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.loadUnlocked()
	if err != nil {
		return 0, err
	}

	sent := 0
	kept := entries[:0:0]
	for i, e := range entries {
		if ctx.Err() != nil {
			kept = append(kept, entries[i:]...)
			break
		}
		if err := send(ctx, e); err != nil {
			e.Attempts++
			e.LastError = err.Error()
			kept = append(kept, e)
			continue
		}
		sent++
	}

	if err := q.saveUnlocked(kept); err != nil {
		return sent, err
	}
	return sent, ctx.Err()
}

func (q *Queue) loadUnlocked() ([]Entry, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, errors.Wrap(err, "read pending queue")
	}
	if len(raw) == 0 {
		return []Entry{}, nil
	}
	var out []Entry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode pending queue")
	}
	return out, nil
}

// saveUnlocked replaces the file atomically.
func (q *Queue) saveUnlocked(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0o700); err != nil {
		return errors.Wrap(err, "mkdir pending dir")
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode pending queue")
	}

	tmp, err := os.CreateTemp(filepath.Dir(q.path), ".pending-*")
	if err != nil {
		return errors.Wrap(err, "create temp queue")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp queue")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod temp queue")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp queue")
	}
	return errors.Wrap(os.Rename(tmp.Name(), q.path), "replace pending queue")
}
