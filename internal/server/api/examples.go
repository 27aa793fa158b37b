package api

import (
	"fmt"
	"image/png"
	"net/http"
	"strings"
)

// ExamplesHandler handles example capture and thumbnails.
//
//	GET  /api/examples                   per-label counts
//	POST /api/examples/{label}           run one capture burst
//	GET  /api/examples/{label}/thumbnail last captured frame as PNG
//
// {label} is a class index or a move name.
type ExamplesHandler struct {
	session Session
}

// NewExamplesHandler creates an ExamplesHandler.
func NewExamplesHandler(s Session) *ExamplesHandler {
	return &ExamplesHandler{session: s}
}

type countsResponse struct {
	Counts []int `json:"counts"`
	Total  int   `json:"total"`
}

type captureResponse struct {
	Label  int   `json:"label"`
	Added  int   `json:"added"`
	Counts []int `json:"counts"`
}

func (h *ExamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/examples")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.counts(w)
		return
	}

	parts := strings.Split(path, "/")
	label, err := parseLabel(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid label")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodPost:
		h.capture(w, r, label)
	case len(parts) == 2 && parts[1] == "thumbnail" && r.Method == http.MethodGet:
		h.thumbnail(w, label)
	case len(parts) <= 2:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *ExamplesHandler) counts(w http.ResponseWriter) {
	counts := h.session.Examples()
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, countsResponse{Counts: counts, Total: total})
}

// capture blocks for the whole burst. Disconnecting the client stops it early.
func (h *ExamplesHandler) capture(w http.ResponseWriter, r *http.Request, label int) {
	added, err := h.session.CaptureExamples(r.Context(), label)
	if err != nil && added == 0 {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, captureResponse{
		Label:  label,
		Added:  added,
		Counts: h.session.Examples(),
	})
}

func (h *ExamplesHandler) thumbnail(w http.ResponseWriter, label int) {
	img, ok := h.session.Thumbnail(label)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No examples for label %d", label))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	png.Encode(w, img)
}
