package sqlite

import "context"

// ensureSchema creates every table Engram needs if it does not already
// exist. Column shapes and the base index set are grounded on the reference
// store's sqlite schema; the facts/procedures/insights indices additionally
// carry fact_key, priority, and expires_at respectively, closing gaps the
// reference schema left (spec §6.4's minimum index list).
func (c *Client) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			tags TEXT NOT NULL,
			entities TEXT NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id, run_id, event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_scope_ts
			ON events (tenant_id, user_id, agent_id, session_id, run_id, ts)`,

		`CREATE TABLE IF NOT EXISTS wm_state (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			state_json TEXT NOT NULL,
			state_version INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id, run_id)
		)`,

		`CREATE TABLE IF NOT EXISTS stm_state (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			rolling_summary TEXT NOT NULL,
			key_quotes TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id)
		)`,

		`CREATE TABLE IF NOT EXISTS facts (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			fact_id TEXT NOT NULL,
			fact_key TEXT NOT NULL,
			value_json TEXT NOT NULL,
			status TEXT NOT NULL,
			valid_from INTEGER,
			valid_to INTEGER,
			confidence REAL NOT NULL,
			sources TEXT NOT NULL,
			scope_level TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (tenant_id, user_id, agent_id, fact_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_scope_key_status
			ON facts (tenant_id, user_id, agent_id, fact_key, status)`,

		`CREATE TABLE IF NOT EXISTS episodes (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			episode_id TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER,
			summary TEXT NOT NULL,
			highlights TEXT NOT NULL,
			tags TEXT NOT NULL,
			entities TEXT NOT NULL,
			sources TEXT NOT NULL,
			compression_level TEXT NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, episode_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_scope_start
			ON episodes (tenant_id, user_id, agent_id, start_ts)`,

		`CREATE TABLE IF NOT EXISTS procedures (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			procedure_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			content_json TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			usage_count INTEGER NOT NULL DEFAULT 0,
			sources TEXT NOT NULL,
			applicability TEXT NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, procedure_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_procedures_scope_task_priority
			ON procedures (tenant_id, user_id, agent_id, task_type, priority)`,

		`CREATE TABLE IF NOT EXISTS insights (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			insight_id TEXT NOT NULL,
			type TEXT NOT NULL,
			statement TEXT NOT NULL,
			trigger_kind TEXT NOT NULL,
			confidence REAL NOT NULL,
			validation_state TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			sources TEXT NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id, run_id, insight_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_scope_expires
			ON insights (tenant_id, user_id, agent_id, session_id, run_id, expires_at)`,

		`CREATE TABLE IF NOT EXISTS context_builds (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			build_id TEXT NOT NULL,
			explain_json TEXT NOT NULL,
			budget_report_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id, run_id, build_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
