package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultLeaderboardLimit = 10
	DefaultHistoryLimit     = 20
	MaxListLimit            = 100
)

type Service struct {
	store   Store
	catalog *Catalog
	log     *slog.Logger
	now     func() time.Time
	strict  bool
	tracer  trace.Tracer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStrictTransactions routes every read-modify-write through the store's
// Updater so concurrent requests for one player cannot lose updates.
func WithStrictTransactions(on bool) Option {
	return func(s *Service) {
		s.strict = on
	}
}

func NewService(store Store, catalog *Catalog, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	s := &Service{
		store:   store,
		catalog: catalog,
		log:     logger,
		now:     time.Now,
		tracer:  otel.Tracer("tonminer/internal/game"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.strict {
		if _, ok := store.(Updater); !ok {
			s.log.Warn("strict transactions requested but store has no atomic update; falling back to read-modify-write")
			s.strict = false
		}
	}
	return s
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// GameState returns the player's record after accrual, creating it on first
// sight. The accrued record is always persisted.
func (s *Service) GameState(ctx context.Context, userID string) (PlayerRecord, error) {
	userID = strings.TrimSpace(userID)
	if err := ValidatePlayerID(userID); err != nil {
		return PlayerRecord{}, err
	}
	ctx, span := s.tracer.Start(ctx, "game.GameState", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	var out PlayerRecord
	err := s.update(ctx, userID, func(rec *PlayerRecord, found bool) (bool, error) {
		now := s.now()
		if !found {
			*rec = NewPlayerRecord(userID, now)
			s.log.Info("player created", "user_id", userID)
		}
		Accrue(rec, s.catalog, now)
		out = rec.Clone()
		return true, nil
	})
	if err != nil {
		recordSpanError(span, err)
		return PlayerRecord{}, err
	}
	return out, nil
}

func (s *Service) BuyCharacter(ctx context.Context, in TransactionInput) (TransactionResult, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if err := ValidatePlayerID(in.UserID); err != nil {
		return TransactionResult{}, err
	}
	ctx, span := s.tracer.Start(ctx, "game.BuyCharacter", trace.WithAttributes(
		attribute.String("user_id", in.UserID),
		attribute.Int("character_id", in.CharacterID),
	))
	defer span.End()

	var (
		out  TransactionResult
		cost float64
	)
	err := s.update(ctx, in.UserID, func(rec *PlayerRecord, found bool) (bool, error) {
		if !found {
			return false, ErrPlayerNotFound
		}
		ch, ok := s.catalog.Character(in.CharacterID)
		if !ok {
			return false, ErrInvalidCharacter
		}
		if rec.Owned(ch.ID) >= 0 {
			return false, ErrAlreadyOwned
		}
		Accrue(rec, s.catalog, s.now())
		out.Record = rec.Clone()
		if rec.Balance < ch.Cost {
			return true, fmt.Errorf("%w: %s costs %.2f TON, balance is %.4f", ErrInsufficientFunds, ch.Name, ch.Cost, rec.Balance)
		}
		rec.Balance -= ch.Cost
		rec.Characters = append(rec.Characters, OwnedCharacter{ID: ch.ID, Level: StarterLevel})
		cost = ch.Cost
		out.Record = rec.Clone()
		out.Message = fmt.Sprintf("%s purchased", ch.Name)
		return true, nil
	})
	if err != nil {
		recordSpanError(span, err)
		return out, err
	}
	out.TxID = s.journal(ctx, out.Record, ActionBuy, in.CharacterID, StarterLevel, cost)
	return out, nil
}

func (s *Service) UpgradeCharacter(ctx context.Context, in TransactionInput) (TransactionResult, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if err := ValidatePlayerID(in.UserID); err != nil {
		return TransactionResult{}, err
	}
	ctx, span := s.tracer.Start(ctx, "game.UpgradeCharacter", trace.WithAttributes(
		attribute.String("user_id", in.UserID),
		attribute.Int("character_id", in.CharacterID),
	))
	defer span.End()

	var (
		out      TransactionResult
		cost     float64
		newLevel int
	)
	err := s.update(ctx, in.UserID, func(rec *PlayerRecord, found bool) (bool, error) {
		if !found {
			return false, ErrPlayerNotFound
		}
		idx := rec.Owned(in.CharacterID)
		if idx < 0 {
			return false, ErrNotOwned
		}
		level := rec.Characters[idx].Level
		if level >= MaxLevel {
			return false, ErrMaxLevel
		}
		price, ok := s.catalog.UpgradeCost(in.CharacterID, level)
		if !ok {
			return false, ErrNoUpgrade
		}
		Accrue(rec, s.catalog, s.now())
		out.Record = rec.Clone()
		if rec.Balance < price {
			return true, fmt.Errorf("%w: upgrade costs %.2f TON, balance is %.4f", ErrInsufficientFunds, price, rec.Balance)
		}
		rec.Balance -= price
		rec.Characters[idx].Level = level + 1
		cost = price
		newLevel = level + 1
		out.Record = rec.Clone()
		out.Message = fmt.Sprintf("Character upgraded to level %d", newLevel)
		return true, nil
	})
	if err != nil {
		recordSpanError(span, err)
		return out, err
	}
	out.TxID = s.journal(ctx, out.Record, ActionUpgrade, in.CharacterID, newLevel, cost)
	return out, nil
}

// History returns the newest journal entries for the player. Stores without
// a journal yield an empty history.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]JournalEntry, error) {
	userID = strings.TrimSpace(userID)
	if err := ValidatePlayerID(userID); err != nil {
		return nil, err
	}
	j, ok := s.store.(Journal)
	if !ok {
		return []JournalEntry{}, nil
	}
	entries, err := j.Entries(ctx, userID, clampLimit(limit, DefaultHistoryLimit))
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	if entries == nil {
		entries = []JournalEntry{}
	}
	return entries, nil
}

// Leaderboard ranks players by their current balance. Accrual is applied to
// copies only; nothing is persisted.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	now := s.now()
	rows := make([]LeaderboardRow, 0, len(records))
	for _, rec := range records {
		rec = rec.Normalize(rec.UserID)
		if rec.UserID == "" {
			continue
		}
		Accrue(&rec, s.catalog, now)
		rows = append(rows, LeaderboardRow{
			UserID:      rec.UserID,
			Balance:     rec.Balance,
			DailyIncome: s.catalog.TotalDailyIncome(rec),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Balance != rows[j].Balance {
			return rows[i].Balance > rows[j].Balance
		}
		return rows[i].UserID < rows[j].UserID
	})
	limit = clampLimit(limit, DefaultLeaderboardLimit)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

// SettleAll accrues and persists every stored player. Accrual is linear in
// time, so settling early never changes what a player ends up with.
func (s *Service) SettleAll(ctx context.Context) (int, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list players: %w", err)
	}
	settled := 0
	for _, listed := range records {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		userID := strings.TrimSpace(listed.UserID)
		if ValidatePlayerID(userID) != nil {
			continue
		}
		err := s.update(ctx, userID, func(rec *PlayerRecord, found bool) (bool, error) {
			if !found {
				return false, nil
			}
			Accrue(rec, s.catalog, s.now())
			return true, nil
		})
		if err != nil {
			return settled, fmt.Errorf("settle %s: %w", userID, err)
		}
		settled++
	}
	return settled, nil
}

func (s *Service) update(ctx context.Context, userID string, fn UpdateFunc) error {
	normalized := func(rec *PlayerRecord, found bool) (bool, error) {
		if found {
			*rec = rec.Normalize(userID)
		}
		return fn(rec, found)
	}
	if s.strict {
		return s.store.(Updater).Update(ctx, userID, normalized)
	}

	rec, found, err := s.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load player: %w", err)
	}
	persist, fnErr := normalized(&rec, found)
	if persist {
		if err := s.store.Put(ctx, rec); err != nil {
			return fmt.Errorf("save player: %w", err)
		}
	}
	return fnErr
}

func (s *Service) journal(ctx context.Context, rec PlayerRecord, action string, characterID, level int, amount float64) string {
	entry := JournalEntry{
		ID:           uuid.NewString(),
		UserID:       rec.UserID,
		Action:       action,
		CharacterID:  characterID,
		Level:        level,
		Amount:       amount,
		BalanceAfter: rec.Balance,
		CreatedAt:    s.now().UTC(),
	}
	s.log.Info("transaction applied",
		"tx_id", entry.ID,
		"user_id", entry.UserID,
		"action", action,
		"character_id", characterID,
		"level", level,
		"amount", amount,
		"balance", rec.Balance,
	)
	if j, ok := s.store.(Journal); ok {
		if err := j.AppendEntry(ctx, entry); err != nil {
			s.log.Warn("journal append failed", "tx_id", entry.ID, "err", err)
		}
	}
	return entry.ID
}

// IsDomainError reports whether err is a rejected request rather than a
// storage or infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrPlayerNotFound,
		ErrInvalidCharacter,
		ErrAlreadyOwned,
		ErrNotOwned,
		ErrMaxLevel,
		ErrNoUpgrade,
		ErrInsufficientFunds,
		ErrInvalidPlayerID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	if !IsDomainError(err) {
		span.SetStatus(codes.Error, err.Error())
	}
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
