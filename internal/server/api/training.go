package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/mudra/internal/model"
)

// TrainingHandler serves POST /api/train. The request runs the whole
// training pass; per-batch losses reach clients through the event stream.
type TrainingHandler struct {
	session Session
}

// NewTrainingHandler creates a TrainingHandler.
func NewTrainingHandler(s Session) *TrainingHandler {
	return &TrainingHandler{session: s}
}

type trainResponse struct {
	RunID     string  `json:"run_id,omitempty"`
	Status    string  `json:"status"`
	Batches   int     `json:"batches"`
	FinalLoss float64 `json:"final_loss"`
	Converged bool    `json:"converged"`
	Error     string  `json:"error,omitempty"`
}

func (h *TrainingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	seq, err := h.session.Train(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := trainResponse{Status: string(model.StatusSucceeded)}
	var runErr error
	for bl, err := range seq {
		if err != nil {
			runErr = err
			break
		}
		resp.Batches++
		resp.FinalLoss = bl.Loss
	}

	st := h.session.Status()
	if st.LastRun != nil {
		resp.RunID = st.LastRun.ID
		resp.Status = st.LastRun.Status
	}
	resp.Converged = st.Converged

	code := http.StatusOK
	if runErr != nil {
		resp.Error = runErr.Error()
		switch {
		case errors.Is(runErr, model.ErrTrainingDiverged):
			resp.Status = string(model.StatusFailed)
			code = http.StatusUnprocessableEntity
		default:
			if st.LastRun == nil {
				resp.Status = string(model.StatusCancelled)
			}
			code = statusFor(runErr)
		}
	}
	writeJSON(w, code, resp)
}
