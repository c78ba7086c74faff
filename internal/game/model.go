package game

import (
	"errors"
	"math"
	"strings"
)

const (
	SecondsPerDay = 86_400

	// MaxLevel caps every character, upgradable or not.
	MaxLevel = 6

	StarterCharacterID = 1
	StarterLevel       = 1
)

var (
	ErrPlayerNotFound    = errors.New("player not found")
	ErrInvalidCharacter  = errors.New("character does not exist")
	ErrAlreadyOwned      = errors.New("character already owned")
	ErrNotOwned          = errors.New("character not owned")
	ErrMaxLevel          = errors.New("character is already at max level")
	ErrNoUpgrade         = errors.New("no upgrade available for this character")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidPlayerID   = errors.New("userId is required")
	ErrTxConflict        = errors.New("transaction conflict, retry later")
)

// ValidatePlayerID only rejects blank ids. Any other id, including numeric
// Telegram ids and ids with spaces or slashes, names a player.
func ValidatePlayerID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidPlayerID
	}
	return nil
}

// CharacterIncome is the daily income of one character at the given level.
func CharacterIncome(baseIncome float64, level int, levelBonus float64) float64 {
	return baseIncome * (1 + float64(level-1)*levelBonus)
}

// PerSecond converts a daily rate into a per-second rate.
func PerSecond(daily float64) float64 {
	return daily / SecondsPerDay
}

func sanitizeAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
