package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tonminer/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx response. Message comes from the server's
// {success:false, message} body when there is one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type StateResponse struct {
	Player game.PlayerRecord
	Config game.CatalogSpec
}

type TransactionResponse struct {
	Message string
	Player  game.PlayerRecord
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) GameState(ctx context.Context, userID string) (StateResponse, error) {
	var out struct {
		envelope[game.PlayerRecord]
		Config game.CatalogSpec `json:"config"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/api/game-state/"+url.PathEscape(userID), nil, &out)
	return StateResponse{Player: out.Data, Config: out.Config}, err
}

func (c *Client) BuyCharacter(ctx context.Context, userID string, characterID int) (TransactionResponse, error) {
	return c.transaction(ctx, "/api/buy-character", userID, characterID)
}

func (c *Client) UpgradeCharacter(ctx context.Context, userID string, characterID int) (TransactionResponse, error) {
	return c.transaction(ctx, "/api/upgrade-character", userID, characterID)
}

func (c *Client) Config(ctx context.Context) (game.CatalogSpec, error) {
	var out game.CatalogSpec
	err := c.jsonRequest(ctx, http.MethodGet, "/api/config", nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	var out envelope[[]game.LeaderboardRow]
	err := c.jsonRequest(ctx, http.MethodGet, "/api/leaderboard"+limitQuery(limit), nil, &out)
	return out.Data, err
}

func (c *Client) History(ctx context.Context, userID string, limit int) ([]game.JournalEntry, error) {
	var out envelope[[]game.JournalEntry]
	err := c.jsonRequest(ctx, http.MethodGet, "/api/history/"+url.PathEscape(userID)+limitQuery(limit), nil, &out)
	return out.Data, err
}

func (c *Client) transaction(ctx context.Context, path, userID string, characterID int) (TransactionResponse, error) {
	var out envelope[game.PlayerRecord]
	err := c.jsonRequest(ctx, http.MethodPost, path, map[string]any{
		"userId":      userID,
		"characterId": characterID,
	}, &out)
	return TransactionResponse{Message: out.Message, Player: out.Data}, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var failed struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &failed) == nil && failed.Message != "" {
			apiErr.Message = failed.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}
