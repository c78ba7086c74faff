package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tonminer/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
  user_id TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  action TEXT NOT NULL,
  character_id INTEGER NOT NULL,
  level INTEGER NOT NULL,
  amount REAL NOT NULL,
  balance_after REAL NOT NULL,
  created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_entries_user_idx ON ledger_entries(user_id, created_at_ms);
`

// dsn waits up to 5s for another process's write lock instead of failing
// with SQLITE_BUSY, and begins every transaction IMMEDIATE so Update holds
// the write lock from its first read.
func dsn(path string) string {
	return filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
}

// Store keeps one JSON payload per player. The pool holds a single
// connection, so a transaction excludes every other writer in the process.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, userID string) (game.PlayerRecord, bool, error) {
	return getPlayer(ctx, s.db, userID)
}

func (s *Store) Put(ctx context.Context, rec game.PlayerRecord) error {
	return putPlayer(ctx, s.db, rec)
}

func (s *Store) List(ctx context.Context) ([]game.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, payload FROM players ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.PlayerRecord
	for rows.Next() {
		var userID, payload string
		if err := rows.Scan(&userID, &payload); err != nil {
			return nil, err
		}
		var rec game.PlayerRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			continue
		}
		out = append(out, rec.Normalize(userID))
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, userID string, fn game.UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rec, found, err := getPlayer(ctx, tx, userID)
	if err != nil {
		return err
	}
	persist, fnErr := fn(&rec, found)
	if !persist {
		return fnErr
	}
	if err := putPlayer(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return fnErr
}

func (s *Store) AppendEntry(ctx context.Context, e game.JournalEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, action, character_id, level, amount, balance_after, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Action, e.CharacterID, e.Level, e.Amount, e.BalanceAfter, e.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *Store) Entries(ctx context.Context, userID string, limit int) ([]game.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, character_id, level, amount, balance_after, created_at_ms
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY created_at_ms DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.JournalEntry, 0, limit)
	for rows.Next() {
		var (
			e  game.JournalEntry
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.CharacterID, &e.Level, &e.Amount, &e.BalanceAfter, &ms); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPlayer(ctx context.Context, q execQuerier, userID string) (game.PlayerRecord, bool, error) {
	var payload string
	err := q.QueryRowContext(ctx, `SELECT payload FROM players WHERE user_id = ?`, userID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.PlayerRecord{}, false, nil
		}
		return game.PlayerRecord{}, false, err
	}
	var rec game.PlayerRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return game.PlayerRecord{}, false, nil
	}
	return rec.Normalize(userID), true, nil
}

func putPlayer(ctx context.Context, q execQuerier, rec game.PlayerRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode player: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO players(user_id, payload, updated_at)
		 VALUES(?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		   payload=excluded.payload,
		   updated_at=CURRENT_TIMESTAMP`,
		rec.UserID, string(payload),
	)
	return err
}
