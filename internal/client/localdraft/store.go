// Package localdraft is the durable client-side cache of the current
// unsynced draft. Writes are synchronous; a corrupt record is treated as
// absent rather than fatal.
package localdraft

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/listkeeper/project/internal/contracts"
)

const draftSlot = "current"
const baseUpdatedAtKey = "base_updated_at"

const schema = `
CREATE TABLE IF NOT EXISTS draft_cache (
    slot TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

type Store struct {
	db  *sql.DB
	Now func() time.Time
}

// CachedDraft is a draft read back from the cache with the moment it was
// last written.
type CachedDraft struct {
	Draft     contracts.DraftPayload
	UpdatedAt time.Time
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open draft cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare draft cache schema: %w", err)
	}
	return &Store{
		db:  db,
		Now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveDraft(draft contracts.DraftPayload) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO draft_cache (slot, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (slot) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		draftSlot, string(payload), s.Now().Format(time.RFC3339Nano),
	)
	return err
}

// LoadDraft returns nil when no draft is cached. An unparseable record is
// logged and reported as absent; losing a corrupt cache entry beats
// refusing to start.
func (s *Store) LoadDraft() (*CachedDraft, error) {
	var payload, updatedAt string
	err := s.db.QueryRow(
		`SELECT payload, updated_at FROM draft_cache WHERE slot = ?`, draftSlot,
	).Scan(&payload, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var draft contracts.DraftPayload
	if err := json.Unmarshal([]byte(payload), &draft); err != nil {
		slog.Warn("discarding corrupt cached draft", "error", err)
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		slog.Warn("discarding cached draft with corrupt timestamp", "error", err)
		return nil, nil
	}
	return &CachedDraft{Draft: draft, UpdatedAt: ts}, nil
}

func (s *Store) ClearDraft() error {
	_, err := s.db.Exec(`DELETE FROM draft_cache WHERE slot = ?`, draftSlot)
	return err
}

// SetBaseUpdatedAt records the last server draft timestamp this tab has
// seen, so reconciliation can detect remote changes made by other tabs
// without fetching the whole draft.
func (s *Store) SetBaseUpdatedAt(t time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		baseUpdatedAtKey, t.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) BaseUpdatedAt() (time.Time, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM sync_metadata WHERE key = ?`, baseUpdatedAtKey,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		slog.Warn("discarding corrupt sync metadata", "error", err)
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

func (s *Store) ClearBaseUpdatedAt() error {
	_, err := s.db.Exec(`DELETE FROM sync_metadata WHERE key = ?`, baseUpdatedAtKey)
	return err
}
