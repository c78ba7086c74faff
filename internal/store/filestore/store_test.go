package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonminer/internal/game"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "players.json")
	s, err := New(path, filepath.Join(dir, "data", "journal.jsonl"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s, path
}

func TestMissingFileIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, found)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestMalformedFileIsEmpty(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	_, found, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPutRewritesWholeCollection(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	a := game.PlayerRecord{UserID: "a", Balance: 1, LastUpdate: 10, Characters: []game.OwnedCharacter{{ID: 1, Level: 1}}}
	b := game.PlayerRecord{UserID: "b", Balance: 2, LastUpdate: 20, Characters: []game.OwnedCharacter{{ID: 1, Level: 1}, {ID: 2, Level: 2}}}
	require.NoError(t, s.Put(ctx, a))
	require.NoError(t, s.Put(ctx, b))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]game.PlayerRecord
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Equal(t, a, onDisk["a"])
	require.Equal(t, b, onDisk["b"])

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []game.PlayerRecord{a, b}, all)
}

func TestGetNormalizesStoredRecords(t *testing.T) {
	s, path := newTestStore(t)
	body := `{"u9": {"balance": -4, "lastUpdate": 5, "characters": [{"id": 2, "level": 12}, {"id": 2, "level": 1}]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	rec, found, err := s.Get(context.Background(), "u9")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "u9", rec.UserID)
	require.Equal(t, 0.0, rec.Balance)
	require.Equal(t, []game.OwnedCharacter{{ID: 2, Level: game.MaxLevel}}, rec.Characters)
}

func TestUpdateSerializesWriters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
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

	rec, _, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 25.0, rec.Balance)
}

func TestUpdatePersistsAlongsideDomainError(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, "u1", func(rec *game.PlayerRecord, found bool) (bool, error) {
		*rec = game.NewPlayerRecord("u1", time.Now())
		rec.Balance = 4
		return true, game.ErrInsufficientFunds
	})
	require.ErrorIs(t, err, game.ErrInsufficientFunds)

	rec, found, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 4.0, rec.Balance)
}

func TestJournalNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.AppendEntry(ctx, game.JournalEntry{ID: id, UserID: "u1", Action: game.ActionBuy, Level: i + 1}))
	}
	require.NoError(t, s.AppendEntry(ctx, game.JournalEntry{ID: "other", UserID: "u2", Action: game.ActionBuy}))

	entries, err := s.Entries(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "e3", entries[0].ID)
	require.Equal(t, "e2", entries[1].ID)

	none, err := s.Entries(ctx, "nobody", 5)
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestSeparateStoresOnOneFileKeepItParseable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "players.json")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api, err := New(path, "", logger)
	require.NoError(t, err)
	worker, err := New(path, "", logger)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, api.Put(ctx, game.NewPlayerRecord(fmt.Sprintf("seed-%d", i), time.Unix(0, 0))))
	}

	var wg sync.WaitGroup
	for w, s := range []*Store{api, worker} {
		wg.Add(1)
		go func(w int, s *Store) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				userID := fmt.Sprintf("seed-%d", (i*7+w)%50)
				rec, found, err := s.Get(ctx, userID)
				if !assert.NoError(t, err) {
					return
				}
				assert.True(t, found, "seeded player %s disappeared", userID)
				rec.UserID = userID
				rec.Balance++
				assert.NoError(t, s.Put(ctx, rec))
			}
		}(w, s)
	}
	wg.Wait()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var players map[string]game.PlayerRecord
	require.NoError(t, json.Unmarshal(raw, &players))
	require.Len(t, players, 50)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".players-*.json"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}
