package game

import (
	"context"
	"strings"
	"time"
)

type OwnedCharacter struct {
	ID    int `json:"id"`
	Level int `json:"level"`
}

type PlayerRecord struct {
	UserID     string           `json:"userId"`
	Balance    float64          `json:"balance"`
	LastUpdate int64            `json:"lastUpdate"` // unix milliseconds
	Characters []OwnedCharacter `json:"characters"`
}

func NewPlayerRecord(userID string, now time.Time) PlayerRecord {
	return PlayerRecord{
		UserID:     userID,
		Balance:    0,
		LastUpdate: now.UnixMilli(),
		Characters: []OwnedCharacter{{ID: StarterCharacterID, Level: StarterLevel}},
	}
}

// Owned returns the index of the owned character with id, or -1.
func (p PlayerRecord) Owned(id int) int {
	for i, c := range p.Characters {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (p PlayerRecord) Clone() PlayerRecord {
	out := p
	out.Characters = append([]OwnedCharacter(nil), p.Characters...)
	return out
}

// Normalize repairs a record read from storage: it fills the user id, resets
// a NaN or negative balance, clamps levels to [1, MaxLevel] and drops
// duplicate or non-positive character ids.
func (p PlayerRecord) Normalize(userID string) PlayerRecord {
	out := PlayerRecord{
		UserID:     strings.TrimSpace(p.UserID),
		Balance:    sanitizeAmount(p.Balance),
		LastUpdate: p.LastUpdate,
		Characters: make([]OwnedCharacter, 0, len(p.Characters)),
	}
	if userID = strings.TrimSpace(userID); userID != "" {
		out.UserID = userID
	}
	if out.LastUpdate < 0 {
		out.LastUpdate = 0
	}
	seen := make(map[int]bool, len(p.Characters))
	for _, c := range p.Characters {
		if c.ID <= 0 || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Level < StarterLevel {
			c.Level = StarterLevel
		}
		if c.Level > MaxLevel {
			c.Level = MaxLevel
		}
		out.Characters = append(out.Characters, c)
	}
	return out
}

type TransactionInput struct {
	UserID      string
	CharacterID int
}

type TransactionResult struct {
	Record  PlayerRecord
	Message string
	TxID    string
}

type LeaderboardRow struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"userId"`
	Balance     float64 `json:"balance"`
	DailyIncome float64 `json:"dailyIncome"`
}

const (
	ActionBuy     = "buy"
	ActionUpgrade = "upgrade"
)

type JournalEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Action       string    `json:"action"`
	CharacterID  int       `json:"characterId"`
	Level        int       `json:"level"`
	Amount       float64   `json:"amount"`
	BalanceAfter float64   `json:"balanceAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store persists player records keyed by user id.
type Store interface {
	Get(ctx context.Context, userID string) (PlayerRecord, bool, error)
	Put(ctx context.Context, rec PlayerRecord) error
	List(ctx context.Context) ([]PlayerRecord, error)
}

// UpdateFunc mutates rec in place. The store persists rec when persist is
// true, then hands err back to the caller.
type UpdateFunc func(rec *PlayerRecord, found bool) (persist bool, err error)

// Updater is implemented by stores that can run a read-modify-write on one
// player atomically.
type Updater interface {
	Update(ctx context.Context, userID string, fn UpdateFunc) error
}

// Journal records completed transactions.
type Journal interface {
	AppendEntry(ctx context.Context, e JournalEntry) error
	Entries(ctx context.Context, userID string, limit int) ([]JournalEntry, error)
}
