package redisstore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonminer/internal/game"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TONMINER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TONMINER_TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	prefix := "tonminer-test:" + uuid.NewString()[:8] + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
		_ = rdb.Close()
	})
	return New(rdb, prefix)
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, found)

	rec := game.PlayerRecord{UserID: "u1", Balance: 2.5, LastUpdate: 77, Characters: []game.OwnedCharacter{{ID: 1, Level: 1}}}
	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.Put(ctx, game.PlayerRecord{UserID: "u0", Characters: []game.OwnedCharacter{{ID: 1, Level: 1}}}))

	got, found, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rec, got)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "u0", all[0].UserID)
}

func TestStoreUpdateRetriesConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "u1", func(rec *game.PlayerRecord, found bool) (bool, error) {
				if !found {
					*rec = game.NewPlayerRecord("u1", time.Now())
				}
				rec.Balance++
				return true, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 4.0, got.Balance)
}

func TestStoreJournalIsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.AppendEntry(ctx, game.JournalEntry{ID: id, UserID: "u1", Action: game.ActionBuy}))
	}
	entries, err := s.Entries(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "e3", entries[0].ID)
	require.Equal(t, "e2", entries[1].ID)
}
