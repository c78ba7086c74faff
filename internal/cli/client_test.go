package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tonminer/internal/game"
)

func TestClientGameState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/game-state/u1" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    game.NewPlayerRecord("u1", time.Now()),
			"config":  game.DefaultCatalog(),
		})
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL+"/").GameState(context.Background(), "u1")
	if err != nil {
		t.Fatalf("game state: %v", err)
	}
	if out.Player.UserID != "u1" || len(out.Player.Characters) != 1 {
		t.Fatalf("player=%+v", out.Player)
	}
	if len(out.Config.Characters) != 3 || len(out.Config.UpgradeCosts[2]) != 6 {
		t.Fatalf("config=%+v", out.Config)
	}
}

func TestClientBuySendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if r.URL.Path != "/api/buy-character" || body["userId"] != "u1" || body["characterId"] != float64(2) {
			t.Errorf("unexpected request %s %v", r.URL.Path, body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "Pro Miner purchased",
			"data":    game.PlayerRecord{UserID: "u1", Balance: 50, Characters: []game.OwnedCharacter{{ID: 1, Level: 1}, {ID: 2, Level: 1}}},
		})
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL).BuyCharacter(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if out.Message != "Pro Miner purchased" || out.Player.Balance != 50 {
		t.Fatalf("out=%+v", out)
	}
}

func TestClientReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"insufficient funds"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).UpgradeCharacter(context.Background(), "u1", 2)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "insufficient funds" {
		t.Fatalf("apiErr=%+v", apiErr)
	}
}

func TestClientLeaderboardAndHistoryQueries(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	rows, err := c.Leaderboard(context.Background(), 5)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows=%v", rows)
	}
	if _, err := c.History(context.Background(), "u 1", 0); err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/api/leaderboard?limit=5" || paths[1] != "/api/history/u%201" {
		t.Fatalf("paths=%v", paths)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := LoadProfile(); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("err=%v want ErrNoProfile", err)
	}
	if err := SaveProfile(Profile{UserID: " 42 "}); err != nil {
		t.Fatalf("save: %v", err)
	}
	p, err := LoadProfile()
	if err != nil || p.UserID != "42" {
		t.Fatalf("profile=%+v err=%v", p, err)
	}
	if err := ClearProfile(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadProfile(); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("err=%v after clear", err)
	}
	if err := SaveProfile(Profile{}); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}
