package handler

import (
	"net/http"
	"strconv"

	"typerush/internal/auth"
	"typerush/internal/model"
	"typerush/internal/service"
)

// LeaderboardHandler serves rankings and public stats.
type LeaderboardHandler struct {
	leaderboard *service.LeaderboardService
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(leaderboard *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard}
}

type leaderboardResponse struct {
	Entries []model.LeaderboardEntry `json:"entries"`
}

type topSpenderResponse struct {
	TopSpender *model.TopSpender `json:"top_spender"`
}

// HandleLeaderboard returns the top players. The caller is appended with
// their rank when outside the top.
func (h *LeaderboardHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.leaderboard.Top(r.Context(), limit, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Entries: entries})
}

// HandleTopSpender returns the highest-spending player, or null.
func (h *LeaderboardHandler) HandleTopSpender(w http.ResponseWriter, r *http.Request) {
	top, err := h.leaderboard.TopSpender(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topSpenderResponse{TopSpender: top})
}
