package game

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if got := len(c.Characters()); got != 3 {
		t.Fatalf("characters=%d want 3", got)
	}
	starter, ok := c.Character(StarterCharacterID)
	if !ok || starter.Cost != 0 {
		t.Fatalf("starter=%+v ok=%v, want free starter", starter, ok)
	}
	if c.Upgradable(1) {
		t.Fatalf("starter must not be upgradable")
	}
	for _, id := range []int{2, 3} {
		if !c.Upgradable(id) {
			t.Fatalf("character %d should be upgradable", id)
		}
		if cost, ok := c.UpgradeCost(id, 0); !ok || cost != 0 {
			t.Fatalf("character %d placeholder cost=%v ok=%v", id, cost, ok)
		}
	}
	if c.LevelBonusMultiplier() != 0.20 {
		t.Fatalf("multiplier=%v want 0.20", c.LevelBonusMultiplier())
	}
}

func TestUpgradeCostIndexedByCurrentLevel(t *testing.T) {
	c := DefaultCatalog()
	tests := []struct {
		id, level int
		want      float64
		ok        bool
	}{
		{id: 2, level: 1, want: 10, ok: true},
		{id: 2, level: 5, want: 160, ok: true},
		{id: 2, level: 6, ok: false},
		{id: 3, level: 2, want: 60, ok: true},
		{id: 1, level: 1, ok: false},
		{id: 9, level: 1, ok: false},
		{id: 2, level: -1, ok: false},
	}
	for _, tc := range tests {
		got, ok := c.UpgradeCost(tc.id, tc.level)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("UpgradeCost(%d,%d)=(%v,%v) want (%v,%v)", tc.id, tc.level, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIsMaxLevel(t *testing.T) {
	c := DefaultCatalog()
	if !c.IsMaxLevel(1, 1) {
		t.Fatalf("non-upgradable character is always at max level")
	}
	if c.IsMaxLevel(2, 5) {
		t.Fatalf("level 5 is not max")
	}
	if !c.IsMaxLevel(2, 6) {
		t.Fatalf("level 6 is max")
	}
	if got := c.MaxLevelFor(2); got != MaxLevel {
		t.Fatalf("MaxLevelFor(2)=%d want %d", got, MaxLevel)
	}
	if got := c.MaxLevelFor(1); got != StarterLevel {
		t.Fatalf("MaxLevelFor(1)=%d want %d", got, StarterLevel)
	}
}

func TestCharacterIncome(t *testing.T) {
	tests := []struct {
		base  float64
		level int
		want  float64
	}{
		{base: 5, level: 1, want: 5},
		{base: 5, level: 2, want: 6},
		{base: 10, level: 6, want: 20},
		{base: 0, level: 4, want: 0},
	}
	for _, tc := range tests {
		got := CharacterIncome(tc.base, tc.level, 0.20)
		if !approxEqual(got, tc.want) {
			t.Fatalf("CharacterIncome(%v,%d)=%v want %v", tc.base, tc.level, got, tc.want)
		}
	}
}

func TestNewCatalogRejectsInvalidSpecs(t *testing.T) {
	base := DefaultCatalogSpec
	tests := []struct {
		name   string
		mutate func(*CatalogSpec)
		want   string
	}{
		{"no characters", func(s *CatalogSpec) { s.Characters = nil }, "no characters"},
		{"duplicate id", func(s *CatalogSpec) { s.Characters = append(s.Characters, s.Characters[1]) }, "duplicate"},
		{"negative cost", func(s *CatalogSpec) { s.Characters[2].Cost = -1 }, "negative"},
		{"missing starter", func(s *CatalogSpec) { s.Characters = s.Characters[1:] }, "starter"},
		{"paid starter", func(s *CatalogSpec) { s.Characters[0].Cost = 3 }, "free"},
		{"unknown table", func(s *CatalogSpec) { s.UpgradeCosts[7] = []float64{0, 1} }, "unknown character"},
		{"negative multiplier", func(s *CatalogSpec) { s.LevelBonusMultiplier = -0.1 }, "multiplier"},
		{"nameless", func(s *CatalogSpec) { s.Characters[1].Name = " " }, "no name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := base()
			tc.mutate(&spec)
			_, err := NewCatalog(spec)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v want containing %q", err, tc.want)
			}
		})
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	spec := DefaultCatalogSpec()
	c, err := NewCatalog(spec)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	spec.UpgradeCosts[2][1] = 999
	spec.Characters[1].Cost = 999
	chars := c.Characters()
	chars[1].Cost = 999
	c.Spec().UpgradeCosts[2][1] = 999

	if cost, _ := c.UpgradeCost(2, 1); cost != 10 {
		t.Fatalf("upgrade cost leaked mutation: %v", cost)
	}
	if ch, _ := c.Character(2); ch.Cost != 50 {
		t.Fatalf("character cost leaked mutation: %v", ch.Cost)
	}
}

func TestCatalogJSONShape(t *testing.T) {
	raw, err := json.Marshal(DefaultCatalog())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Characters []struct {
			ID         int     `json:"id"`
			BaseIncome float64 `json:"baseIncome"`
			Cost       float64 `json:"cost"`
		} `json:"characters"`
		UpgradeCosts         map[string][]float64 `json:"upgradeCosts"`
		LevelBonusMultiplier float64              `json:"levelBonusMultiplier"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Characters) != 3 || decoded.Characters[1].Cost != 50 {
		t.Fatalf("unexpected characters: %+v", decoded.Characters)
	}
	if len(decoded.UpgradeCosts["2"]) != 6 || decoded.UpgradeCosts["3"][1] != 30 {
		t.Fatalf("unexpected upgrade costs: %+v", decoded.UpgradeCosts)
	}
	if _, ok := decoded.UpgradeCosts["1"]; ok {
		t.Fatalf("starter must not have an upgrade table")
	}
}

func TestLoadCatalogFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := `
level_bonus_multiplier: 0.5
characters:
  - id: 1
    name: Shovel
    base_income: 1
    cost: 0
  - id: 4
    name: Drill
    base_income: 8
    cost: 40
    description: Loud.
upgrade_costs:
  4: [0, 5, 15]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if c.LevelBonusMultiplier() != 0.5 {
		t.Fatalf("multiplier=%v", c.LevelBonusMultiplier())
	}
	if cost, ok := c.UpgradeCost(4, 2); !ok || cost != 15 {
		t.Fatalf("UpgradeCost(4,2)=(%v,%v)", cost, ok)
	}
	if got := c.MaxLevelFor(4); got != 3 {
		t.Fatalf("MaxLevelFor(4)=%d want 3", got)
	}
	if c.IsMaxLevel(4, 2) || !c.IsMaxLevel(4, 3) {
		t.Fatalf("IsMaxLevel(4,2)=%v IsMaxLevel(4,3)=%v, want false/true", c.IsMaxLevel(4, 2), c.IsMaxLevel(4, 3))
	}
	if _, ok := c.UpgradeCost(4, 3); ok {
		t.Fatalf("a character at its max level must have no upgrade cost")
	}
	if !approxEqual(c.DailyIncome(4, 3), 16) {
		t.Fatalf("DailyIncome(4,3)=%v want 16", c.DailyIncome(4, 3))
	}
}

func TestLoadCatalogDefaultsWhenPathEmpty(t *testing.T) {
	c, err := LoadCatalog("  ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := c.Character(3); !ok {
		t.Fatalf("expected default catalog")
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
