package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/mudra/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// HistoryHandler serves recorded sessions, training runs and rounds.
//
//	GET /api/history                  all-time totals and recent sessions
//	GET /api/history/sessions/{id}    one session with its runs and rounds
//	GET /api/history/runs/{id}        one run with its loss curve
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

type historyResponse struct {
	Totals   store.Totals     `json:"totals"`
	Sessions []*store.Session `json:"sessions"`
}

type sessionResponse struct {
	Session *store.Session       `json:"session"`
	Totals  store.Totals         `json:"totals"`
	Runs    []*store.TrainingRun `json:"runs"`
	Rounds  []*store.Round       `json:"rounds"`
}

type runResponse struct {
	Run    *store.TrainingRun `json:"run"`
	Losses []float64          `json:"losses"`
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/history")
	path = strings.Trim(path, "/")

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case path == "":
		h.overview(w, limit)
	case len(parts) == 2 && parts[0] == "sessions":
		h.session(w, parts[1], limit)
	case len(parts) == 2 && parts[0] == "runs":
		h.run(w, parts[1])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(n, maxHistoryLimit), nil
}

func (h *HistoryHandler) overview(w http.ResponseWriter, limit int) {
	totals, err := h.store.Rounds().Totals("")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count rounds")
		return
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}

	writeJSON(w, http.StatusOK, historyResponse{Totals: totals, Sessions: sessions})
}

func (h *HistoryHandler) session(w http.ResponseWriter, id string, limit int) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	resp := sessionResponse{Session: sess}

	if resp.Totals, err = h.store.Rounds().Totals(id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count rounds")
		return
	}
	if resp.Runs, err = h.store.Runs().ListBySession(id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if resp.Rounds, err = h.store.Rounds().ListBySession(id, limit); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rounds")
		return
	}
	if resp.Runs == nil {
		resp.Runs = []*store.TrainingRun{}
	}
	if resp.Rounds == nil {
		resp.Rounds = []*store.Round{}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *HistoryHandler) run(w http.ResponseWriter, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	losses, err := h.store.Runs().Losses(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get losses")
		return
	}
	if losses == nil {
		losses = []float64{}
	}

	writeJSON(w, http.StatusOK, runResponse{Run: run, Losses: losses})
}
