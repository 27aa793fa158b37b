package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/game"
)

// GameHandler handles /api/game.
//
//	GET    state, score and the last round
//	POST   start playing
//	DELETE stop playing
type GameHandler struct {
	session Session
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(s Session) *GameHandler {
	return &GameHandler{session: s}
}

type roundResponse struct {
	ID         string    `json:"id"`
	Number     int       `json:"number"`
	Human      string    `json:"human"`
	Computer   string    `json:"computer"`
	Outcome    string    `json:"outcome"`
	Buffered   bool      `json:"buffered"`
	ResolvedAt time.Time `json:"resolved_at"`
}

type gameResponse struct {
	Running   bool           `json:"running"`
	Score     game.Score     `json:"score"`
	LastRound *roundResponse `json:"last_round,omitempty"`
}

func (h *GameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.state())
	case http.MethodPost:
		// The game outlives the request that starts it.
		if err := h.session.Play(context.WithoutCancel(r.Context())); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, h.state())
	case http.MethodDelete:
		h.session.StopGame()
		writeJSON(w, http.StatusOK, h.state())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *GameHandler) state() gameResponse {
	resp := gameResponse{
		Running: h.session.GameRunning(),
		Score:   h.session.Score(),
	}
	if rd, ok := h.session.LastRound(); ok {
		resp.LastRound = &roundResponse{
			ID:         rd.ID,
			Number:     rd.Number,
			Human:      rd.Human.String(),
			Computer:   rd.Computer.String(),
			Outcome:    rd.Outcome.String(),
			Buffered:   rd.Buffered,
			ResolvedAt: rd.ResolvedAt,
		}
	}
	return resp
}
