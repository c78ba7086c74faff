package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tonminer/internal/config"
	"tonminer/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 16

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	game *game.Service
	mux  *chi.Mux
}

// envelope is the response shape the web client expects on every route.
type envelope struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Data    any           `json:"data"`
	Config  *game.Catalog `json:"config,omitempty"`
}

type transactionRequest struct {
	UserID      flexString `json:"userId"`
	CharacterID flexInt    `json:"characterId"`
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors(s.cfg.AllowedOrigins))
	if s.cfg.RateLimitRPS > 0 {
		r.Use(newIPRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst).middleware)
	}
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/game-state/{userId}", s.handleGameState)
		r.Post("/buy-character", s.handleBuyCharacter)
		r.Post("/upgrade-character", s.handleUpgradeCharacter)
		r.Get("/config", s.handleConfig)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/history/{userId}", s.handleHistory)
	})
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	rec, err := s.game.GameState(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rec, Config: s.game.Catalog()})
}

func (s *Server) handleBuyCharacter(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeTransaction(w, r)
	if !ok {
		return
	}
	res, err := s.game.BuyCharacter(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: res.Message, Data: res.Record})
}

func (s *Server) handleUpgradeCharacter(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeTransaction(w, r)
	if !ok {
		return
	}
	res, err := s.game.UpgradeCharacter(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: res.Message, Data: res.Record})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Catalog())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.game.Leaderboard(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rows})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.game.History(r.Context(), chi.URLParam(r, "userId"), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: entries})
}

func (s *Server) decodeTransaction(w http.ResponseWriter, r *http.Request) (game.TransactionInput, bool) {
	var req transactionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return game.TransactionInput{}, false
	}
	if req.CharacterID == 0 {
		writeError(w, http.StatusBadRequest, "characterId is required")
		return game.TransactionInput{}, false
	}
	return game.TransactionInput{UserID: string(req.UserID), CharacterID: int(req.CharacterID)}, true
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, game.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case game.IsDomainError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": strings.TrimSpace(message)})
}
