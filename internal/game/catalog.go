package game

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type CharacterConfig struct {
	ID          int     `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	BaseIncome  float64 `json:"baseIncome" yaml:"base_income"`
	Cost        float64 `json:"cost" yaml:"cost"`
	Description string  `json:"description,omitempty" yaml:"description"`
}

// CatalogSpec is the mutable, file-loadable form of a Catalog.
type CatalogSpec struct {
	Characters           []CharacterConfig `json:"characters" yaml:"characters"`
	UpgradeCosts         map[int][]float64 `json:"upgradeCosts" yaml:"upgrade_costs"`
	LevelBonusMultiplier float64           `json:"levelBonusMultiplier" yaml:"level_bonus_multiplier"`
}

// Catalog is the immutable character configuration shared by every request.
// All accessors return copies.
type Catalog struct {
	characters   []CharacterConfig
	byID         map[int]int
	upgradeCosts map[int][]float64
	levelBonus   float64
}

func DefaultCatalogSpec() CatalogSpec {
	return CatalogSpec{
		Characters: []CharacterConfig{
			{ID: 1, Name: "Rookie Miner", BaseIncome: 0.5, Cost: 0, Description: "Your first rig. Free, slow and steady."},
			{ID: 2, Name: "Pro Miner", BaseIncome: 5, Cost: 50, Description: "A tuned GPU rack."},
			{ID: 3, Name: "Mining Farm", BaseIncome: 18, Cost: 150, Description: "A warehouse full of hashing power."},
		},
		UpgradeCosts: map[int][]float64{
			2: {0, 10, 20, 40, 80, 160},
			3: {0, 30, 60, 120, 240, 480},
		},
		LevelBonusMultiplier: 0.20,
	}
}

func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultCatalogSpec())
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}

// LoadCatalog returns the default catalog when path is empty, otherwise the
// YAML catalog stored at path.
func LoadCatalog(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var spec CatalogSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return NewCatalog(spec)
}

func NewCatalog(spec CatalogSpec) (*Catalog, error) {
	if len(spec.Characters) == 0 {
		return nil, fmt.Errorf("catalog has no characters")
	}
	if !validAmount(spec.LevelBonusMultiplier) {
		return nil, fmt.Errorf("level bonus multiplier must be a non-negative number")
	}
	c := &Catalog{
		characters:   make([]CharacterConfig, 0, len(spec.Characters)),
		byID:         make(map[int]int, len(spec.Characters)),
		upgradeCosts: make(map[int][]float64, len(spec.UpgradeCosts)),
		levelBonus:   spec.LevelBonusMultiplier,
	}
	for _, ch := range spec.Characters {
		if ch.ID <= 0 {
			return nil, fmt.Errorf("character id %d must be positive", ch.ID)
		}
		if _, dup := c.byID[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate character id %d", ch.ID)
		}
		if strings.TrimSpace(ch.Name) == "" {
			return nil, fmt.Errorf("character %d has no name", ch.ID)
		}
		if !validAmount(ch.BaseIncome) || !validAmount(ch.Cost) {
			return nil, fmt.Errorf("character %d has a negative income or cost", ch.ID)
		}
		c.byID[ch.ID] = len(c.characters)
		c.characters = append(c.characters, ch)
	}
	starter, ok := c.byID[StarterCharacterID]
	if !ok {
		return nil, fmt.Errorf("starter character %d is missing", StarterCharacterID)
	}
	if c.characters[starter].Cost != 0 {
		return nil, fmt.Errorf("starter character %d must be free", StarterCharacterID)
	}
	for id, table := range spec.UpgradeCosts {
		if _, ok := c.byID[id]; !ok {
			return nil, fmt.Errorf("upgrade costs reference unknown character %d", id)
		}
		for i, cost := range table {
			if !validAmount(cost) {
				return nil, fmt.Errorf("upgrade cost %d for character %d is negative", i, id)
			}
		}
		c.upgradeCosts[id] = append([]float64(nil), table...)
	}
	return c, nil
}

func (c *Catalog) Character(id int) (CharacterConfig, bool) {
	i, ok := c.byID[id]
	if !ok {
		return CharacterConfig{}, false
	}
	return c.characters[i], true
}

func (c *Catalog) Characters() []CharacterConfig {
	return append([]CharacterConfig(nil), c.characters...)
}

func (c *Catalog) LevelBonusMultiplier() float64 {
	return c.levelBonus
}

// Upgradable reports whether the character has an upgrade cost table at all.
func (c *Catalog) Upgradable(id int) bool {
	_, ok := c.upgradeCosts[id]
	return ok
}

// UpgradeCost is the price of leaving the given level. The table is indexed
// by the current level, so index 0 is never charged.
func (c *Catalog) UpgradeCost(id, level int) (float64, bool) {
	table, ok := c.upgradeCosts[id]
	if !ok || level < 0 || level >= len(table) {
		return 0, false
	}
	return table[level], true
}

func (c *Catalog) IsMaxLevel(id, level int) bool {
	return level >= c.MaxLevelFor(id)
}

// MaxLevelFor is the highest level the character can ever reach.
func (c *Catalog) MaxLevelFor(id int) int {
	table, ok := c.upgradeCosts[id]
	if !ok {
		return StarterLevel
	}
	top := len(table)
	if top > MaxLevel {
		top = MaxLevel
	}
	if top < StarterLevel {
		top = StarterLevel
	}
	return top
}

// DailyIncome is the income of one character at level, or 0 for ids the
// catalog does not know.
func (c *Catalog) DailyIncome(id, level int) float64 {
	ch, ok := c.Character(id)
	if !ok {
		return 0
	}
	return CharacterIncome(ch.BaseIncome, level, c.levelBonus)
}

func (c *Catalog) Spec() CatalogSpec {
	out := CatalogSpec{
		Characters:           c.Characters(),
		UpgradeCosts:         make(map[int][]float64, len(c.upgradeCosts)),
		LevelBonusMultiplier: c.levelBonus,
	}
	for id, table := range c.upgradeCosts {
		out.UpgradeCosts[id] = append([]float64(nil), table...)
	}
	return out
}

func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Spec())
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
