package database

import (
	"context"
	"fmt"
)

// InitSchema creates the job and log tables. Statements are idempotent.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	statements := []struct {
		name  string
		query string
	}{
		{"research_jobs table", `
			CREATE TABLE IF NOT EXISTS research_jobs (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				topic TEXT NOT NULL,
				mode TEXT NOT NULL DEFAULT 'balanced',
				status TEXT NOT NULL DEFAULT 'pending',
				config JSONB,
				state JSONB,
				report TEXT,
				error TEXT,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"research_logs table", `
			CREATE TABLE IF NOT EXISTS research_logs (
				id SERIAL PRIMARY KEY,
				job_id UUID NOT NULL REFERENCES research_jobs(id) ON DELETE CASCADE,
				timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				level TEXT NOT NULL,
				message TEXT NOT NULL,
				metadata JSONB
			)`},
		{"research_logs index", "CREATE INDEX IF NOT EXISTS idx_research_logs_job_id ON research_logs(job_id)"},
		{"research_jobs index", "CREATE INDEX IF NOT EXISTS idx_research_jobs_created_at ON research_jobs(created_at DESC)"},
		// Databases created before mode and error existed.
		{"mode column", "ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS mode TEXT NOT NULL DEFAULT 'balanced'"},
		{"error column", "ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS error TEXT"},
	}

	for _, s := range statements {
		if _, err := db.Pool.Exec(ctx, s.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.name, err)
		}
	}
	return nil
}
