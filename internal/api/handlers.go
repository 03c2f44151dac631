package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nitpack/tgfilebotter2/internal/alert"
	"github.com/nitpack/tgfilebotter2/internal/models"
	"github.com/nitpack/tgfilebotter2/internal/session"
	"github.com/nitpack/tgfilebotter2/internal/storage"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createBotRequest struct {
	Token     string           `json:"token"`
	ChannelID int64            `json:"channel_id"`
	Status    models.BotStatus `json:"status,omitempty"`
	OwnerID   int64            `json:"owner_id,omitempty"`
	Tree      *models.Folder   `json:"tree,omitempty"`
}

type updateTreeRequest struct {
	Tree *models.Folder `json:"tree"`
}

type updateStatusRequest struct {
	Status models.BotStatus `json:"status"`
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// botResponse never carries the bot token; it is write-only through
// this API.
type botResponse struct {
	ID         string           `json:"id"`
	Status     models.BotStatus `json:"status"`
	ChannelID  int64            `json:"channel_id"`
	OwnerID    int64            `json:"owner_id,omitempty"`
	Live       bool             `json:"live"`
	Errors     int              `json:"errors,omitempty"`
	LastHealth *time.Time       `json:"last_health,omitempty"`
	Tree       *models.Folder   `json:"tree,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type sessionStats struct {
	BotID      string     `json:"bot_id"`
	Status     string     `json:"status"`
	Errors     int        `json:"errors"`
	LastHealth *time.Time `json:"last_health,omitempty"`
}

type statsResponse struct {
	ActiveSessions int            `json:"active_sessions"`
	Sessions       []sessionStats `json:"sessions"`
}

func (s *Server) respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error("failed to encode response", zap.Error(err))
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.respond(w, http.StatusOK, token)
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.store.ListBots(r.Context())
	if err != nil {
		s.logger.Error("failed to list bots", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list bots")
		return
	}

	out := make([]botResponse, 0, len(bots))
	for _, bot := range bots {
		view := s.botView(bot)
		view.Tree = nil // trees can be large; fetch one bot for details
		out = append(out, view)
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		s.respondError(w, http.StatusBadRequest, "token is required")
		return
	}
	if req.ChannelID == 0 {
		s.respondError(w, http.StatusBadRequest, "channel_id is required")
		return
	}
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	if !req.Status.Valid() {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}
	if err := req.Tree.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	bot := &models.Bot{
		ID:        uuid.NewString(),
		Token:     req.Token,
		ChannelID: req.ChannelID,
		OwnerID:   req.OwnerID,
		Status:    req.Status,
		Tree:      req.Tree,
	}

	// Start the session before persisting: a token the platform
	// rejects should leave no record behind.
	if bot.Status != models.StatusBanned {
		if _, err := s.manager.Add(r.Context(), bot); err != nil {
			s.alerts.Notify(alert.CategoryRegistration,
				fmt.Sprintf("failed to register bot %s: %v", bot.ID, err))
			switch {
			case errors.Is(err, session.ErrInvalidCredential):
				s.respondError(w, http.StatusBadRequest, "telegram rejected the bot token")
			case errors.Is(err, session.ErrAlreadyRegistered):
				s.respondError(w, http.StatusConflict, "a session for this bot already exists")
			default:
				s.logger.Error("failed to start bot session", zap.Error(err))
				s.respondError(w, http.StatusInternalServerError, "failed to start bot session")
			}
			return
		}
	}

	if err := s.store.CreateBot(r.Context(), bot); err != nil {
		s.manager.Stop(bot.ID)
		if errors.Is(err, storage.ErrDuplicateToken) {
			s.respondError(w, http.StatusConflict, "a bot with this token already exists")
			return
		}
		s.logger.Error("failed to persist bot", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to persist bot")
		return
	}

	s.logger.Info("bot registered",
		zap.String("bot_id", bot.ID),
		zap.String("status", string(bot.Status)))
	s.respond(w, http.StatusCreated, s.botView(bot))
}

func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bot, err := s.store.GetBot(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrBotNotFound) {
			s.respondError(w, http.StatusNotFound, "bot not found")
			return
		}
		s.logger.Error("failed to load bot", zap.String("bot_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load bot")
		return
	}
	s.respond(w, http.StatusOK, s.botView(bot))
}

func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.manager.Stop(id)

	if err := s.store.DeleteBot(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrBotNotFound) {
			s.respondError(w, http.StatusNotFound, "bot not found")
			return
		}
		s.logger.Error("failed to delete bot", zap.String("bot_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to delete bot")
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleUpdateTree(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateTreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tree == nil {
		s.respondError(w, http.StatusBadRequest, "tree is required")
		return
	}
	if err := req.Tree.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateBotTree(r.Context(), id, req.Tree); err != nil {
		if errors.Is(err, storage.ErrBotNotFound) {
			s.respondError(w, http.StatusNotFound, "bot not found")
			return
		}
		s.logger.Error("failed to update tree", zap.String("bot_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to update tree")
		return
	}

	// Sessions capture their tree at start, so the change takes effect
	// by reissuing the session.
	if err := s.manager.Reissue(r.Context(), id); err != nil {
		s.logger.Error("failed to reissue session", zap.String("bot_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "tree updated but session restart failed")
		return
	}
	s.respondWithBot(w, r, id)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	if err := s.store.UpdateBotStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, storage.ErrBotNotFound) {
			s.respondError(w, http.StatusNotFound, "bot not found")
			return
		}
		s.logger.Error("failed to update status", zap.String("bot_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	if err := s.manager.Reissue(r.Context(), id); err != nil {
		s.logger.Error("failed to reissue session", zap.String("bot_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "status updated but session restart failed")
		return
	}
	s.respondWithBot(w, r, id)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatID == 0 || req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "chat_id and text are required")
		return
	}

	if err := s.manager.SendAdminMessage(id, req.ChatID, req.Text); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "no live session for bot")
			return
		}
		s.logger.Error("failed to send admin message", zap.String("bot_id", id), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "failed to send message")
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	runtimes := s.manager.Runtimes()
	stats := statsResponse{
		ActiveSessions: len(runtimes),
		Sessions:       make([]sessionStats, 0, len(runtimes)),
	}
	for _, rt := range runtimes {
		entry := sessionStats{
			BotID:  rt.ID(),
			Status: string(rt.Status()),
			Errors: len(rt.Errors()),
		}
		if lh := rt.LastHealth(); !lh.IsZero() {
			entry.LastHealth = &lh
		}
		stats.Sessions = append(stats.Sessions, entry)
	}
	sort.Slice(stats.Sessions, func(i, j int) bool {
		return stats.Sessions[i].BotID < stats.Sessions[j].BotID
	})
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) respondWithBot(w http.ResponseWriter, r *http.Request, id string) {
	bot, err := s.store.GetBot(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to reload bot", zap.String("bot_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load bot")
		return
	}
	s.respond(w, http.StatusOK, s.botView(bot))
}

func (s *Server) botView(bot *models.Bot) botResponse {
	view := botResponse{
		ID:        bot.ID,
		Status:    bot.Status,
		ChannelID: bot.ChannelID,
		OwnerID:   bot.OwnerID,
		Tree:      bot.Tree,
		CreatedAt: bot.CreatedAt,
		UpdatedAt: bot.UpdatedAt,
	}
	if rt, ok := s.manager.Get(bot.ID); ok {
		view.Live = true
		view.Errors = len(rt.Errors())
		if lh := rt.LastHealth(); !lh.IsZero() {
			view.LastHealth = &lh
		}
		if owner := rt.OwnerID(); owner != 0 {
			view.OwnerID = owner
		}
	}
	return view
}
