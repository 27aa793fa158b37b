package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// TrainingRun records one training invocation and how it ended.
type TrainingRun struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	Examples     int        `json:"examples"`
	LabelCounts  []int      `json:"label_counts"`
	BatchSize    int        `json:"batch_size"`
	Epochs       int        `json:"epochs"`
	LearningRate float64    `json:"learning_rate"`
	Status       string     `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	FinalLoss    *float64   `json:"final_loss,omitempty"`
	Converged    bool       `json:"converged"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// RunRepository provides access to training runs and their loss curves.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the training run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a training run.
func (r *RunRepository) Create(run *TrainingRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = "running"
	}

	counts, err := json.Marshal(run.LabelCounts)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO training_runs (id, session_id, examples, label_counts, batch_size, epochs, learning_rate, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Examples, string(counts), run.BatchSize, run.Epochs, run.LearningRate, run.Status, run.StartedAt,
	)
	return err
}

// Finish records the outcome of a run together with its loss curve in a
// single transaction.
func (r *RunRepository) Finish(run *TrainingRun, losses []float64) error {
	now := time.Now()
	if run.FinishedAt == nil {
		run.FinishedAt = &now
	}
	if len(losses) > 0 {
		last := losses[len(losses)-1]
		run.FinalLoss = &last
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var final sql.NullFloat64
	if run.FinalLoss != nil {
		final = sql.NullFloat64{Float64: *run.FinalLoss, Valid: true}
	}

	result, err := tx.Exec(
		`UPDATE training_runs SET status = ?, reason = ?, final_loss = ?, converged = ?, finished_at = ? WHERE id = ?`,
		run.Status, run.Reason, final, run.Converged, *run.FinishedAt, run.ID,
	)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	stmt, err := tx.Prepare(`INSERT INTO training_losses (run_id, step, loss) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, loss := range losses {
		if _, err := stmt.Exec(run.ID, i, loss); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const runColumns = `id, session_id, examples, label_counts, batch_size, epochs, learning_rate,
	status, reason, final_loss, converged, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*TrainingRun, error) {
	run := &TrainingRun{}
	var (
		counts   string
		final    sql.NullFloat64
		finished sql.NullTime
	)

	err := row.Scan(&run.ID, &run.SessionID, &run.Examples, &counts, &run.BatchSize, &run.Epochs,
		&run.LearningRate, &run.Status, &run.Reason, &final, &run.Converged, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(counts), &run.LabelCounts); err != nil {
		return nil, err
	}
	if final.Valid {
		run.FinalLoss = &final.Float64
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return run, nil
}

// GetByID retrieves a training run by its ID.
func (r *RunRepository) GetByID(id string) (*TrainingRun, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM training_runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// ListBySession returns the runs of a session in the order they started.
func (r *RunRepository) ListBySession(sessionID string) ([]*TrainingRun, error) {
	rows, err := r.db.Query(
		`SELECT `+runColumns+` FROM training_runs WHERE session_id = ? ORDER BY started_at`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*TrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Losses returns the loss curve of a run ordered by step.
func (r *RunRepository) Losses(runID string) ([]float64, error) {
	rows, err := r.db.Query(`SELECT loss FROM training_losses WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var losses []float64
	for rows.Next() {
		var loss float64
		if err := rows.Scan(&loss); err != nil {
			return nil, err
		}
		losses = append(losses, loss)
	}

	return losses, rows.Err()
}
