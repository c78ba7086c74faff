package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"tonminer/internal/game"
)

const (
	defaultPrefix = "tonminer:"
	journalCap    = 500
)

// Store keeps each player as a JSON string under <prefix>player:<id>, the set
// of known ids under <prefix>players, and a capped per-player journal list.
type Store struct {
	rdb    *redis.Client
	prefix string
}

func Open(ctx context.Context, url string) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, defaultPrefix), nil
}

func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) playerKey(userID string) string  { return s.prefix + "player:" + userID }
func (s *Store) indexKey() string                { return s.prefix + "players" }
func (s *Store) journalKey(userID string) string { return s.prefix + "journal:" + userID }

func (s *Store) Get(ctx context.Context, userID string) (game.PlayerRecord, bool, error) {
	return getPlayer(ctx, s.rdb, s.playerKey(userID), userID)
}

func (s *Store) Put(ctx context.Context, rec game.PlayerRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode player: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.playerKey(rec.UserID), payload, 0)
		pipe.SAdd(ctx, s.indexKey(), rec.UserID)
		return nil
	})
	return err
}

func (s *Store) List(ctx context.Context) ([]game.PlayerRecord, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]game.PlayerRecord, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sort.Strings(ids)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.playerKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec game.PlayerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec.Normalize(ids[i]))
	}
	return out, nil
}

// Update is an optimistic WATCH/MULTI transaction on the player key,
// retried while other clients keep changing it.
func (s *Store) Update(ctx context.Context, userID string, fn game.UpdateFunc) error {
	key := s.playerKey(userID)
	const maxAttempts = 8
	retryDelay := 25 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var fnErr error
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			rec, found, err := getPlayer(ctx, tx, key, userID)
			if err != nil {
				return err
			}
			persist, ferr := fn(&rec, found)
			fnErr = ferr
			if !persist {
				return nil
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode player: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				pipe.SAdd(ctx, s.indexKey(), userID)
				return nil
			})
			return err
		}, key)
		if err == nil {
			return fnErr
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
	}
	return game.ErrTxConflict
}

func (s *Store) AppendEntry(ctx context.Context, e game.JournalEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := s.journalKey(e.UserID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, journalCap-1)
		return nil
	})
	return err
}

func (s *Store) Entries(ctx context.Context, userID string, limit int) ([]game.JournalEntry, error) {
	raw, err := s.rdb.LRange(ctx, s.journalKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]game.JournalEntry, 0, len(raw))
	for _, v := range raw {
		var e game.JournalEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getPlayer(ctx context.Context, c getter, key, userID string) (game.PlayerRecord, bool, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return game.PlayerRecord{}, false, nil
		}
		return game.PlayerRecord{}, false, err
	}
	var rec game.PlayerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return game.PlayerRecord{}, false, nil
	}
	return rec.Normalize(userID), true, nil
}
