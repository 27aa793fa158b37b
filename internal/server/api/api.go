// Package api provides HTTP API handlers for a mudra session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"iter"
	"net/http"
	"strconv"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/game"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/model"
)

// Session is the part of app.Session the API drives.
type Session interface {
	Status() app.Status
	Examples() []int
	CaptureExamples(ctx context.Context, label int) (int, error)
	Thumbnail(label int) (*image.RGBA, bool)
	Train(ctx context.Context) (iter.Seq2[model.BatchLoss, error], error)
	Play(ctx context.Context) error
	StopGame()
	GameRunning() bool
	Score() game.Score
	LastRound() (game.Round, bool)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrNotReady),
		errors.Is(err, capture.ErrNotReady),
		errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, dataset.ErrInvalidLabel):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrCaptureInProgress),
		errors.Is(err, app.ErrTrainingInProgress),
		errors.Is(err, game.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, model.ErrEmptyDataset),
		errors.Is(err, model.ErrDegenerateBatchSize),
		errors.Is(err, inference.ErrModelNotTrained):
		return http.StatusPreconditionFailed
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// parseLabel accepts a class index or a move name.
func parseLabel(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	m, err := game.ParseMove(s)
	if err != nil {
		return 0, err
	}
	return int(m), nil
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	session Session
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(s Session) *StatusHandler {
	return &StatusHandler{session: s}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}
