package store

import (
	"database/sql"
	"time"
)

// Round is a resolved game round.
type Round struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	Number        int       `json:"number"`
	HumanMove     string    `json:"human_move"`
	ComputerMove  string    `json:"computer_move"`
	Outcome       string    `json:"outcome"`
	HumanScore    int       `json:"human_score"`
	ComputerScore int       `json:"computer_score"`
	Buffered      bool      `json:"buffered"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

// Totals counts round outcomes.
type Totals struct {
	Rounds   int `json:"rounds"`
	Human    int `json:"human"`
	Computer int `json:"computer"`
	Ties     int `json:"ties"`
}

// RoundRepository provides access to game rounds.
type RoundRepository struct {
	db *sql.DB
}

// Rounds returns the round repository for this store.
func (s *Store) Rounds() *RoundRepository {
	return &RoundRepository{db: s.db}
}

// Create inserts a round.
func (r *RoundRepository) Create(round *Round) error {
	if round.ResolvedAt.IsZero() {
		round.ResolvedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO rounds (id, session_id, number, human_move, computer_move, outcome, human_score, computer_score, buffered, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		round.ID, round.SessionID, round.Number, round.HumanMove, round.ComputerMove, round.Outcome,
		round.HumanScore, round.ComputerScore, round.Buffered, round.ResolvedAt,
	)
	return err
}

// ListBySession returns up to limit rounds of a session, latest first.
func (r *RoundRepository) ListBySession(sessionID string, limit int) ([]*Round, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, number, human_move, computer_move, outcome, human_score, computer_score, buffered, resolved_at
		 FROM rounds WHERE session_id = ? ORDER BY number DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []*Round
	for rows.Next() {
		rd := &Round{}
		err := rows.Scan(&rd.ID, &rd.SessionID, &rd.Number, &rd.HumanMove, &rd.ComputerMove, &rd.Outcome,
			&rd.HumanScore, &rd.ComputerScore, &rd.Buffered, &rd.ResolvedAt)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, rd)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rounds, nil
}

// Totals counts outcomes across all sessions, or one session when
// sessionID is not empty.
func (r *RoundRepository) Totals(sessionID string) (Totals, error) {
	query := `SELECT COUNT(*),
		COALESCE(SUM(outcome = 'human'), 0),
		COALESCE(SUM(outcome = 'computer'), 0),
		COALESCE(SUM(outcome = 'tie'), 0)
		FROM rounds`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}

	var t Totals
	err := r.db.QueryRow(query, args...).Scan(&t.Rounds, &t.Human, &t.Computer, &t.Ties)
	return t, err
}
