package handler

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"typerush/internal/auth"
	"typerush/internal/service"
)

// AccountHandler serves the player's profile, lives and scores.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type livesResponse struct {
	Lives int `json:"lives"`
}

type livesRequest struct {
	Lives *int `json:"lives"`
}

type heartsRequest struct {
	Hearts int `json:"hearts"`
}

type scoreRequest struct {
	Score int `json:"score"`
	Combo int `json:"combo"`
}

type bestResponse struct {
	BestScore int `json:"best_score"`
	BestCombo int `json:"best_combo"`
}

type profileRequest struct {
	Name string `json:"name"`
}

// HandleMe ensures the caller has an account and returns it.
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		WriteMessage(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	user, created, err := h.accounts.EnsureUser(r.Context(), id.UserID, id.Username, id.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created {
		log.Ctx(r.Context()).Info().Str("user_id", user.ID).Msg("Player joined")
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleRename updates the caller's display name.
func (h *AccountHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Name) > 64 {
		WriteMessage(w, http.StatusBadRequest, "name is too long")
		return
	}

	user, err := h.accounts.Rename(r.Context(), auth.UserID(r.Context()), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGetLives returns the caller's lives.
func (h *AccountHandler) HandleGetLives(w http.ResponseWriter, r *http.Request) {
	lives, err := h.accounts.GetLives(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, livesResponse{Lives: lives})
}

// HandleSetLives overwrites the caller's lives. Negative values clamp to zero.
func (h *AccountHandler) HandleSetLives(w http.ResponseWriter, r *http.Request) {
	var req livesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Lives == nil {
		WriteMessage(w, http.StatusBadRequest, "lives is required")
		return
	}

	user, err := h.accounts.SetLives(r.Context(), auth.UserID(r.Context()), *req.Lives)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, livesResponse{Lives: user.Lives})
}

// HandleConsumeLife spends one life. Responds 409 when none remain.
func (h *AccountHandler) HandleConsumeLife(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.ConsumeLife(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, livesResponse{Lives: user.Lives})
}

// HandleAddHearts grants hearts after a client-confirmed purchase.
func (h *AccountHandler) HandleAddHearts(w http.ResponseWriter, r *http.Request) {
	var req heartsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.AddHearts(r.Context(), auth.UserID(r.Context()), req.Hearts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, livesResponse{Lives: user.Lives})
}

// HandleSaveScore records a finished run.
func (h *AccountHandler) HandleSaveScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.SaveScore(r.Context(), auth.UserID(r.Context()), req.Score, req.Combo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bestResponse{BestScore: user.BestScore, BestCombo: user.BestCombo})
}

// HandleBestScore returns the caller's personal best.
func (h *AccountHandler) HandleBestScore(w http.ResponseWriter, r *http.Request) {
	score, combo, err := h.accounts.GetBestScore(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bestResponse{BestScore: score, BestCombo: combo})
}

// HandleSpending returns the caller's spending summary.
func (h *AccountHandler) HandleSpending(w http.ResponseWriter, r *http.Request) {
	stats, err := h.accounts.GetSpendingStats(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
