package filestore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"tonminer/internal/game"
)

// Store is the flat JSON ledger: one object keyed by user id, read in full
// on every lookup and rewritten in full on every save. Transactions are
// journaled as JSON lines in a second file.
type Store struct {
	mu          sync.Mutex
	path        string
	journalPath string
	log         *slog.Logger
}

func New(path, journalPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range []string{path, journalPath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &Store{path: path, journalPath: journalPath, log: logger}, nil
}

func (s *Store) Get(_ context.Context, userID string) (game.PlayerRecord, bool, error) {
	s.mu.Lock()
	players, err := s.readLocked()
	s.mu.Unlock()
	if err != nil {
		return game.PlayerRecord{}, false, err
	}
	rec, ok := players[userID]
	if !ok {
		return game.PlayerRecord{}, false, nil
	}
	return rec.Normalize(userID), true, nil
}

func (s *Store) Put(_ context.Context, rec game.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	players, err := s.readLocked()
	if err != nil {
		return err
	}
	players[rec.UserID] = rec
	return s.writeLocked(players)
}

func (s *Store) List(_ context.Context) ([]game.PlayerRecord, error) {
	s.mu.Lock()
	players, err := s.readLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]game.PlayerRecord, 0, len(players))
	for id, rec := range players {
		out = append(out, rec.Normalize(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Update holds the file lock across the whole read-modify-write.
func (s *Store) Update(_ context.Context, userID string, fn game.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	players, err := s.readLocked()
	if err != nil {
		return err
	}
	rec, found := players[userID]
	if found {
		rec = rec.Normalize(userID)
	}
	persist, fnErr := fn(&rec, found)
	if !persist {
		return fnErr
	}
	players[userID] = rec
	if err := s.writeLocked(players); err != nil {
		return err
	}
	return fnErr
}

func (s *Store) AppendEntry(_ context.Context, e game.JournalEntry) error {
	if s.journalPath == "" {
		return nil
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// Entries returns up to limit of the player's entries, newest first.
// Unparseable lines are skipped.
func (s *Store) Entries(_ context.Context, userID string, limit int) ([]game.JournalEntry, error) {
	out := []game.JournalEntry{}
	if s.journalPath == "" {
		return out, nil
	}
	s.mu.Lock()
	b, err := os.ReadFile(s.journalPath)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("read journal: %w", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e game.JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.UserID != userID {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// readLocked loads the whole collection. A missing or malformed file reads
// as an empty collection.
func (s *Store) readLocked() (map[string]game.PlayerRecord, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]game.PlayerRecord{}, nil
		}
		return nil, fmt.Errorf("read data file: %w", err)
	}
	var players map[string]game.PlayerRecord
	if err := json.Unmarshal(b, &players); err != nil {
		s.log.Warn("data file is malformed; treating as empty", "path", s.path, "err", err)
		return map[string]game.PlayerRecord{}, nil
	}
	if players == nil {
		players = map[string]game.PlayerRecord{}
	}
	return players, nil
}

func (s *Store) writeLocked(players map[string]game.PlayerRecord) error {
	b, err := json.MarshalIndent(players, "", "  ")
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}
	// Each write gets its own temp file so writers in other processes never
	// rename a half-written file into place.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".players-*.json")
	if err != nil {
		return fmt.Errorf("create temp data file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write data file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync data file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close data file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod data file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}
