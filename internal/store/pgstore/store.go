package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tonminer/internal/game"
)

// Store keeps one JSONB payload per player and the transaction journal in
// ledger_entries.
type Store struct {
	db *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Get(ctx context.Context, userID string) (game.PlayerRecord, bool, error) {
	return getPlayer(ctx, s.db, userID, false)
}

func (s *Store) Put(ctx context.Context, rec game.PlayerRecord) error {
	return putPlayer(ctx, s.db, rec)
}

func (s *Store) List(ctx context.Context) ([]game.PlayerRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id, payload FROM players ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.PlayerRecord, 0, 32)
	for rows.Next() {
		var (
			userID  string
			payload []byte
		)
		if err := rows.Scan(&userID, &payload); err != nil {
			return nil, err
		}
		var rec game.PlayerRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			continue
		}
		out = append(out, rec.Normalize(userID))
	}
	return out, rows.Err()
}

// Update runs fn inside a SERIALIZABLE transaction holding the player row,
// retrying serialization failures with backoff. It gives up with
// game.ErrTxConflict.
func (s *Store) Update(ctx context.Context, userID string, fn game.UpdateFunc) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		var fnErr error
		err = func() error {
			defer tx.Rollback(ctx)

			rec, found, err := getPlayer(ctx, tx, userID, true)
			if err != nil {
				return err
			}
			persist, ferr := fn(&rec, found)
			fnErr = ferr
			if !persist {
				return nil
			}
			if err := putPlayer(ctx, tx, rec); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return fnErr
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return game.ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return game.ErrTxConflict
}

func (s *Store) AppendEntry(ctx context.Context, e game.JournalEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, action, character_id, level, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.UserID, e.Action, e.CharacterID, e.Level, e.Amount, e.BalanceAfter, e.CreatedAt)
	return err
}

func (s *Store) Entries(ctx context.Context, userID string, limit int) ([]game.JournalEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, user_id, action, character_id, level, amount, balance_after, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.JournalEntry, 0, limit)
	for rows.Next() {
		var e game.JournalEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.CharacterID, &e.Level, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func getPlayer(ctx context.Context, q querier, userID string, forUpdate bool) (game.PlayerRecord, bool, error) {
	query := `SELECT payload FROM players WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var payload []byte
	if err := q.QueryRow(ctx, query, userID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.PlayerRecord{}, false, nil
		}
		return game.PlayerRecord{}, false, err
	}
	var rec game.PlayerRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		// An unreadable payload is treated like a player seen for the first time.
		return game.PlayerRecord{}, false, nil
	}
	return rec.Normalize(userID), true, nil
}

func putPlayer(ctx context.Context, q querier, rec game.PlayerRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode player: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO players (user_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET payload = excluded.payload, updated_at = now()
	`, rec.UserID, payload)
	return err
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
