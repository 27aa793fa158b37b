package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per process run of the game
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			camera_id INTEGER NOT NULL,
			model_version TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Training runs table - one row per train invocation
		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			examples INTEGER NOT NULL,
			label_counts TEXT NOT NULL DEFAULT '[]',
			batch_size INTEGER NOT NULL,
			epochs INTEGER NOT NULL,
			learning_rate REAL NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'failed', 'cancelled')),
			reason TEXT NOT NULL DEFAULT '',
			final_loss REAL,
			converged INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,

		// Training losses table - the per-batch loss curve of a run
		`CREATE TABLE IF NOT EXISTS training_losses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES training_runs(id) ON DELETE CASCADE,
			step INTEGER NOT NULL,
			loss REAL NOT NULL
		)`,

		// Rounds table - resolved game rounds
		`CREATE TABLE IF NOT EXISTS rounds (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			number INTEGER NOT NULL,
			human_move TEXT NOT NULL,
			computer_move TEXT NOT NULL,
			outcome TEXT NOT NULL CHECK(outcome IN ('human', 'computer', 'tie')),
			human_score INTEGER NOT NULL,
			computer_score INTEGER NOT NULL,
			buffered INTEGER NOT NULL DEFAULT 0,
			resolved_at DATETIME NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_training_runs_session_id ON training_runs(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_training_losses_run_id ON training_losses(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_session_id ON rounds(session_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
