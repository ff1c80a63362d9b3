package mysql

import "context"

// ensureSchema creates every table Engram needs if it does not already
// exist. Scope columns are bounded VARCHARs (MySQL requires an explicit
// key length for indexed text columns); JSON columns hold the composed
// value fields, matching the sqlite/postgres backends' shapes.
func (c *Client) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id VARCHAR(128) NOT NULL,
			tenant_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			agent_id VARCHAR(128) NOT NULL,
			session_id VARCHAR(128) NOT NULL,
			run_id VARCHAR(128) NOT NULL,
			ts DATETIME(3) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			payload JSON NOT NULL,
			tags JSON NOT NULL,
			entities JSON NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id, run_id, event_id),
			INDEX idx_events_scope_ts (tenant_id, user_id, agent_id, session_id, run_id, ts)
		)`,

		`CREATE TABLE IF NOT EXISTS wm_state (
			tenant_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			agent_id VARCHAR(128) NOT NULL,
			session_id VARCHAR(128) NOT NULL,
			run_id VARCHAR(128) NOT NULL,
			state_json JSON NOT NULL,
			state_version INT NOT NULL DEFAULT 0,
			updated_at DATETIME(3) NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id, run_id)
		)`,

		`CREATE TABLE IF NOT EXISTS stm_state (
			tenant_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			agent_id VARCHAR(128) NOT NULL,
			session_id VARCHAR(128) NOT NULL,
			rolling_summary TEXT NOT NULL,
			key_quotes JSON NOT NULL,
			updated_at DATETIME(3) NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id)
		)`,

		`CREATE TABLE IF NOT EXISTS facts (
			tenant_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			agent_id VARCHAR(128) NOT NULL,
			fact_id VARCHAR(128) NOT NULL,
			fact_key VARCHAR(255) NOT NULL,
			value_json JSON NOT NULL,
			status VARCHAR(16) NOT NULL,
			valid_from DATETIME(3) NULL,
			valid_to DATETIME(3) NULL,
			confidence DOUBLE NOT NULL,
			sources JSON NOT NULL,
			scope_level VARCHAR(16) NOT NULL,
			notes TEXT NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, fact_id),
			INDEX idx_facts_scope_key_status (tenant_id, user_id, agent_id, fact_key(191), status)
		)`,

		`CREATE TABLE IF NOT EXISTS episodes (
			tenant_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			agent_id VARCHAR(128) NOT NULL,
			episode_id VARCHAR(128) NOT NULL,
			start_ts DATETIME(3) NOT NULL,
			end_ts DATETIME(3) NULL,
			summary TEXT NOT NULL,
			highlights JSON NOT NULL,
			tags JSON NOT NULL,
			entities JSON NOT NULL,
			sources JSON NOT NULL,
			compression_level VARCHAR(32) NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, episode_id),
			INDEX idx_episodes_scope_start (tenant_id, user_id, agent_id, start_ts)
		)`,

		`CREATE TABLE IF NOT EXISTS procedures (
			tenant_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			agent_id VARCHAR(128) NOT NULL,
			procedure_id VARCHAR(128) NOT NULL,
			task_type VARCHAR(128) NOT NULL,
			content_json JSON NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			usage_count INT NOT NULL DEFAULT 0,
			sources JSON NOT NULL,
			applicability JSON NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, procedure_id),
			INDEX idx_procedures_scope_task_priority (tenant_id, user_id, agent_id, task_type, priority)
		)`,

		`CREATE TABLE IF NOT EXISTS insights (
			tenant_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			agent_id VARCHAR(128) NOT NULL,
			session_id VARCHAR(128) NOT NULL,
			run_id VARCHAR(128) NOT NULL,
			insight_id VARCHAR(128) NOT NULL,
			type VARCHAR(32) NOT NULL,
			statement TEXT NOT NULL,
			trigger_kind VARCHAR(32) NOT NULL,
			confidence DOUBLE NOT NULL,
			validation_state VARCHAR(32) NOT NULL,
			expires_at VARCHAR(64) NOT NULL,
			sources JSON NOT NULL,
			PRIMARY KEY (tenant_id, user_id, agent_id, session_id, run_id, insight_id),
			INDEX idx_insights_scope_expires (tenant_id, user_id, agent_id, session_id, run_id, expires_at)
		)`,

		`CREATE TABLE IF NOT EXISTS context_builds (
			tenant_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL,
			agent_id VARCHAR(128) NOT NULL,
			session_id VARCHAR(128) NOT NULL,
			run_id VARCHAR(128) NOT NULL,
			build_id VARCHAR(128) NOT NULL,
			explain_json JSON NOT NULL,
			budget_report_json JSON NOT NULL,
			created_at DATETIME(3) NOT NULL,
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
