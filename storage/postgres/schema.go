package postgres

import "context"

// ensureSchema creates every table Engram needs if it does not already
// exist, using JSONB columns for the composed value fields. Index shapes
// mirror the sqlite backend's (spec §6.4's minimum index list) so query
// plans stay comparable across backends.
func (c *Client) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL,
			tags JSONB NOT NULL,
			entities JSONB NOT NULL,
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
			state_json JSONB NOT NULL,
			state_version INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id, run_id)
		)`,

		`CREATE TABLE IF NOT EXISTS stm_state (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			rolling_summary TEXT NOT NULL,
			key_quotes JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id)
		)`,

		`CREATE TABLE IF NOT EXISTS facts (
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			fact_id TEXT NOT NULL,
			fact_key TEXT NOT NULL,
			value_json JSONB NOT NULL,
			status TEXT NOT NULL,
			valid_from TIMESTAMPTZ,
			valid_to TIMESTAMPTZ,
			confidence DOUBLE PRECISION NOT NULL,
			sources JSONB NOT NULL,
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
			start_ts TIMESTAMPTZ NOT NULL,
			end_ts TIMESTAMPTZ,
			summary TEXT NOT NULL,
			highlights JSONB NOT NULL,
			tags JSONB NOT NULL,
			entities JSONB NOT NULL,
			sources JSONB NOT NULL,
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
			content_json JSONB NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			usage_count INTEGER NOT NULL DEFAULT 0,
			sources JSONB NOT NULL,
			applicability JSONB NOT NULL,
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
			confidence DOUBLE PRECISION NOT NULL,
			validation_state TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			sources JSONB NOT NULL,
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
			explain_json JSONB NOT NULL,
			budget_report_json JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
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
