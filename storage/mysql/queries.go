package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oceanbase/engram/model"
	"github.com/oceanbase/engram/storage"
)

var _ storage.Store = (*Client)(nil)

// AppendEvent implements storage.Store.
func (c *Client) AppendEvent(ctx context.Context, event model.Event) error {
	payload, err := encodeJSON(event.Payload)
	if err != nil {
		return err
	}
	tags, err := encodeJSON(event.Tags)
	if err != nil {
		return err
	}
	entities, err := encodeJSON(event.Entities)
	if err != nil {
		return err
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT IGNORE INTO events (event_id, tenant_id, user_id, agent_id, session_id, run_id, ts, kind, payload, tags, entities)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.Scope.TenantID, event.Scope.UserID, event.Scope.AgentID,
		event.Scope.SessionID, event.Scope.RunID, event.Ts, string(event.Kind), payload, tags, entities)
	if err != nil {
		return fmt.Errorf("mysql.AppendEvent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mysql.AppendEvent: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mysql.AppendEvent: %w", storage.ErrDuplicateEvent)
	}
	return nil
}

// ListEvents implements storage.Store.
func (c *Client) ListEvents(ctx context.Context, scope model.Scope, filter model.EventFilter) ([]model.Event, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT event_id, tenant_id, user_id, agent_id, session_id, run_id, ts, kind, payload, tags, entities
		FROM events WHERE tenant_id=? AND user_id=? AND agent_id=? AND session_id=? AND run_id=?`)
	args := []interface{}{scope.TenantID, scope.UserID, scope.AgentID, scope.SessionID, scope.RunID}

	if filter.Since != nil {
		q.WriteString(" AND ts >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		q.WriteString(" AND ts <= ?")
		args = append(args, *filter.Until)
	}
	if len(filter.KindIn) > 0 {
		q.WriteString(" AND kind IN (" + placeholders(len(filter.KindIn)) + ")")
		for _, k := range filter.KindIn {
			args = append(args, string(k))
		}
	}
	q.WriteString(" ORDER BY ts DESC, event_id ASC")
	if filter.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("mysql.ListEvents: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var ev model.Event
		var kind, payload, tags, entities string
		if err := rows.Scan(&ev.EventID, &ev.Scope.TenantID, &ev.Scope.UserID, &ev.Scope.AgentID,
			&ev.Scope.SessionID, &ev.Scope.RunID, &ev.Ts, &kind, &payload, &tags, &entities); err != nil {
			return nil, fmt.Errorf("mysql.ListEvents: %w", err)
		}
		ev.Kind = model.EventKind(kind)
		if err := decodeJSONInto(payload, &ev.Payload); err != nil {
			return nil, err
		}
		if err := decodeJSONInto(tags, &ev.Tags); err != nil {
			return nil, err
		}
		if err := decodeJSONInto(entities, &ev.Entities); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetWorkingState implements storage.Store.
func (c *Client) GetWorkingState(ctx context.Context, scope model.Scope) (*model.WorkingState, error) {
	row := c.db.QueryRowContext(ctx, `SELECT state_json FROM wm_state
		WHERE tenant_id=? AND user_id=? AND agent_id=? AND session_id=? AND run_id=?`,
		scope.TenantID, scope.UserID, scope.AgentID, scope.SessionID, scope.RunID)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("mysql.GetWorkingState: %w", err)
	}
	var ws model.WorkingState
	if err := decodeJSONInto(raw, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// PatchWorkingState implements storage.Store.
func (c *Client) PatchWorkingState(ctx context.Context, scope model.Scope, patch model.WorkingStatePatch, expectedVersion uint32) (model.WorkingState, error) {
	current, err := c.GetWorkingState(ctx, scope)
	if err != nil {
		return model.WorkingState{}, err
	}
	var currentVersion uint32
	base := model.NewWorkingState()
	if current != nil {
		base = *current
		currentVersion = current.StateVersion
	}
	if currentVersion != expectedVersion {
		return model.WorkingState{}, fmt.Errorf("mysql.PatchWorkingState: %w", storage.ErrVersionConflict)
	}

	next := patch.Apply(base)
	raw, err := encodeJSON(next)
	if err != nil {
		return model.WorkingState{}, err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO wm_state (tenant_id, user_id, agent_id, session_id, run_id, state_json, state_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE state_json=VALUES(state_json), state_version=VALUES(state_version), updated_at=VALUES(updated_at)`,
		scope.TenantID, scope.UserID, scope.AgentID, scope.SessionID, scope.RunID,
		raw, next.StateVersion, time.Now().UTC())
	if err != nil {
		return model.WorkingState{}, fmt.Errorf("mysql.PatchWorkingState: %w", err)
	}
	return next, nil
}

// GetSTMSummary implements storage.Store.
func (c *Client) GetSTMSummary(ctx context.Context, scope model.Scope) (*model.STMSummary, error) {
	row := c.db.QueryRowContext(ctx, `SELECT rolling_summary, key_quotes FROM stm_state
		WHERE tenant_id=? AND user_id=? AND agent_id=? AND session_id=?`,
		scope.TenantID, scope.UserID, scope.AgentID, scope.SessionID)

	var summary, quotes string
	if err := row.Scan(&summary, &quotes); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("mysql.GetSTMSummary: %w", err)
	}
	stm := model.STMSummary{RollingSummary: summary}
	if err := decodeJSONInto(quotes, &stm.KeyQuotes); err != nil {
		return nil, err
	}
	return &stm, nil
}

// UpdateSTMSummary implements storage.Store.
func (c *Client) UpdateSTMSummary(ctx context.Context, scope model.Scope, summary model.STMSummary) error {
	quotes, err := encodeJSON(summary.KeyQuotes)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO stm_state (tenant_id, user_id, agent_id, session_id, rolling_summary, key_quotes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE rolling_summary=VALUES(rolling_summary), key_quotes=VALUES(key_quotes), updated_at=VALUES(updated_at)`,
		scope.TenantID, scope.UserID, scope.AgentID, scope.SessionID, summary.RollingSummary, quotes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mysql.UpdateSTMSummary: %w", err)
	}
	return nil
}

// UpsertFact implements storage.Store.
func (c *Client) UpsertFact(ctx context.Context, scope model.Scope, fact model.Fact) error {
	ltm := scope.LTMKey()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql.UpsertFact: %w", err)
	}
	defer tx.Rollback()

	if fact.Status == model.FactActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE facts SET status=?
			WHERE tenant_id=? AND user_id=? AND agent_id=? AND fact_key=? AND scope_level=? AND status=? AND fact_id != ?`,
			string(model.FactDeprecated), ltm.TenantID, ltm.UserID, ltm.AgentID, fact.FactKey,
			string(fact.ScopeLevel), string(model.FactActive), fact.FactID); err != nil {
			return fmt.Errorf("mysql.UpsertFact: demote: %w", err)
		}
	}

	valueJSON, err := encodeJSON(fact.Value)
	if err != nil {
		return err
	}
	sources, err := encodeJSON(fact.Sources)
	if err != nil {
		return err
	}

	var validFrom, validTo interface{}
	if fact.Validity.ValidFrom != nil {
		validFrom = *fact.Validity.ValidFrom
	}
	if fact.Validity.ValidTo != nil {
		validTo = *fact.Validity.ValidTo
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO facts (tenant_id, user_id, agent_id, fact_id, fact_key, value_json, status,
			valid_from, valid_to, confidence, sources, scope_level, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE fact_key=VALUES(fact_key), value_json=VALUES(value_json), status=VALUES(status),
			valid_from=VALUES(valid_from), valid_to=VALUES(valid_to), confidence=VALUES(confidence),
			sources=VALUES(sources), scope_level=VALUES(scope_level), notes=VALUES(notes)`,
		ltm.TenantID, ltm.UserID, ltm.AgentID, fact.FactID, fact.FactKey, valueJSON, string(fact.Status),
		validFrom, validTo, fact.Confidence, sources, string(fact.ScopeLevel), fact.Notes); err != nil {
		return fmt.Errorf("mysql.UpsertFact: %w", err)
	}

	return tx.Commit()
}

// ListFacts implements storage.Store.
func (c *Client) ListFacts(ctx context.Context, scope model.Scope, filter model.FactFilter) ([]model.Fact, error) {
	ltm := scope.LTMKey()
	q := strings.Builder{}
	q.WriteString(`SELECT fact_id, fact_key, value_json, status, valid_from, valid_to, confidence, sources, scope_level, notes
		FROM facts WHERE tenant_id=? AND user_id=? AND agent_id=?`)
	args := []interface{}{ltm.TenantID, ltm.UserID, ltm.AgentID}

	if len(filter.StatusIn) > 0 {
		q.WriteString(" AND status IN (" + placeholders(len(filter.StatusIn)) + ")")
		for _, s := range filter.StatusIn {
			args = append(args, string(s))
		}
	}
	if filter.KeyPrefix != "" {
		q.WriteString(" AND fact_key LIKE ?")
		args = append(args, filter.KeyPrefix+"%")
	}
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	q.WriteString(" AND (valid_from IS NULL OR valid_from <= ?)")
	args = append(args, now)
	q.WriteString(" AND (valid_to IS NULL OR valid_to >= ?)")
	args = append(args, now)

	q.WriteString(" ORDER BY confidence DESC, fact_id ASC")
	if filter.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("mysql.ListFacts: %w", err)
	}
	defer rows.Close()

	var out []model.Fact
	for rows.Next() {
		var f model.Fact
		var valueJSON, status, sources, scopeLevel string
		var validFrom, validTo sql.NullTime
		if err := rows.Scan(&f.FactID, &f.FactKey, &valueJSON, &status, &validFrom, &validTo,
			&f.Confidence, &sources, &scopeLevel, &f.Notes); err != nil {
			return nil, fmt.Errorf("mysql.ListFacts: %w", err)
		}
		f.Status = model.FactStatus(status)
		f.ScopeLevel = model.ScopeLevel(scopeLevel)
		if validFrom.Valid {
			t := validFrom.Time
			f.Validity.ValidFrom = &t
		}
		if validTo.Valid {
			t := validTo.Time
			f.Validity.ValidTo = &t
		}
		if err := json.Unmarshal([]byte(valueJSON), &f.Value); err != nil {
			return nil, fmt.Errorf("mysql.ListFacts: %w", err)
		}
		if err := decodeJSONInto(sources, &f.Sources); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// AppendEpisode implements storage.Store.
func (c *Client) AppendEpisode(ctx context.Context, scope model.Scope, episode model.Episode) error {
	ltm := scope.LTMKey()
	highlights, err := encodeJSON(episode.Highlights)
	if err != nil {
		return err
	}
	tags, err := encodeJSON(episode.Tags)
	if err != nil {
		return err
	}
	entities, err := encodeJSON(episode.Entities)
	if err != nil {
		return err
	}
	sources, err := encodeJSON(episode.Sources)
	if err != nil {
		return err
	}
	var endTs interface{}
	if episode.TimeRange.End != nil {
		endTs = *episode.TimeRange.End
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO episodes (tenant_id, user_id, agent_id, episode_id, start_ts, end_ts, summary,
			highlights, tags, entities, sources, compression_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE start_ts=VALUES(start_ts), end_ts=VALUES(end_ts), summary=VALUES(summary),
			highlights=VALUES(highlights), tags=VALUES(tags), entities=VALUES(entities),
			sources=VALUES(sources), compression_level=VALUES(compression_level)`,
		ltm.TenantID, ltm.UserID, ltm.AgentID, episode.EpisodeID, episode.TimeRange.Start, endTs,
		episode.Summary, highlights, tags, entities, sources, string(episode.CompressionLevel))
	if err != nil {
		return fmt.Errorf("mysql.AppendEpisode: %w", err)
	}
	return nil
}

// ListEpisodes implements storage.Store.
func (c *Client) ListEpisodes(ctx context.Context, scope model.Scope, filter model.EpisodeFilter) ([]model.Episode, error) {
	ltm := scope.LTMKey()
	q := strings.Builder{}
	q.WriteString(`SELECT episode_id, start_ts, end_ts, summary, highlights, tags, entities, sources, compression_level
		FROM episodes WHERE tenant_id=? AND user_id=? AND agent_id=?`)
	args := []interface{}{ltm.TenantID, ltm.UserID, ltm.AgentID}

	if filter.Since != nil {
		q.WriteString(" AND start_ts >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		q.WriteString(" AND COALESCE(end_ts, start_ts) <= ?")
		args = append(args, *filter.Until)
	}
	if len(filter.CompressionIn) > 0 {
		q.WriteString(" AND compression_level IN (" + placeholders(len(filter.CompressionIn)) + ")")
		for _, lvl := range filter.CompressionIn {
			args = append(args, string(lvl))
		}
	}
	q.WriteString(" ORDER BY start_ts DESC, episode_id ASC")

	pushLimit := len(filter.TagsAny) == 0 && len(filter.EntitiesAny) == 0
	if pushLimit && filter.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("mysql.ListEpisodes: %w", err)
	}
	defer rows.Close()

	var out []model.Episode
	for rows.Next() {
		var ep model.Episode
		var endTs sql.NullTime
		var highlights, tags, entities, sources, compression string
		if err := rows.Scan(&ep.EpisodeID, &ep.TimeRange.Start, &endTs, &ep.Summary, &highlights, &tags,
			&entities, &sources, &compression); err != nil {
			return nil, fmt.Errorf("mysql.ListEpisodes: %w", err)
		}
		if endTs.Valid {
			t := endTs.Time
			ep.TimeRange.End = &t
		}
		ep.CompressionLevel = model.CompressionLevel(compression)
		if err := decodeJSONInto(highlights, &ep.Highlights); err != nil {
			return nil, err
		}
		if err := decodeJSONInto(tags, &ep.Tags); err != nil {
			return nil, err
		}
		if err := decodeJSONInto(entities, &ep.Entities); err != nil {
			return nil, err
		}
		if err := decodeJSONInto(sources, &ep.Sources); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if pushLimit {
		return out, nil
	}
	filtered := out[:0]
	for _, ep := range out {
		if len(filter.TagsAny) > 0 && !anyIntersect(ep.Tags, filter.TagsAny) {
			continue
		}
		if len(filter.EntitiesAny) > 0 && !anyIntersect(ep.Entities, filter.EntitiesAny) {
			continue
		}
		filtered = append(filtered, ep)
	}
	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}
	return filtered, nil
}

// UpsertProcedure implements storage.Store.
func (c *Client) UpsertProcedure(ctx context.Context, scope model.Scope, procedure model.Procedure) error {
	ltm := scope.LTMKey()
	content, err := encodeJSON(procedure.Content)
	if err != nil {
		return err
	}
	sources, err := encodeJSON(procedure.Sources)
	if err != nil {
		return err
	}
	applicability, err := encodeJSON(procedure.Applicability)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO procedures (tenant_id, user_id, agent_id, procedure_id, task_type, content_json,
			priority, usage_count, sources, applicability)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE task_type=VALUES(task_type), content_json=VALUES(content_json),
			priority=VALUES(priority), usage_count=VALUES(usage_count), sources=VALUES(sources),
			applicability=VALUES(applicability)`,
		ltm.TenantID, ltm.UserID, ltm.AgentID, procedure.ProcedureID, procedure.TaskType, content,
		procedure.Priority, procedure.UsageCount, sources, applicability)
	if err != nil {
		return fmt.Errorf("mysql.UpsertProcedure: %w", err)
	}
	return nil
}

// ListProcedures implements storage.Store.
func (c *Client) ListProcedures(ctx context.Context, scope model.Scope, filter model.ProcedureFilter) ([]model.Procedure, error) {
	ltm := scope.LTMKey()
	taskType := filter.TaskType
	if taskType == "" {
		taskType = "generic"
	}
	q := `SELECT procedure_id, task_type, content_json, priority, usage_count, sources, applicability
		FROM procedures WHERE tenant_id=? AND user_id=? AND agent_id=? AND task_type=?
		ORDER BY priority DESC, usage_count DESC, procedure_id ASC`
	args := []interface{}{ltm.TenantID, ltm.UserID, ltm.AgentID, taskType}
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql.ListProcedures: %w", err)
	}
	defer rows.Close()

	var out []model.Procedure
	for rows.Next() {
		var p model.Procedure
		var content, sources, applicability string
		if err := rows.Scan(&p.ProcedureID, &p.TaskType, &content, &p.Priority, &p.UsageCount,
			&sources, &applicability); err != nil {
			return nil, fmt.Errorf("mysql.ListProcedures: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &p.Content); err != nil {
			return nil, fmt.Errorf("mysql.ListProcedures: %w", err)
		}
		if err := decodeJSONInto(sources, &p.Sources); err != nil {
			return nil, err
		}
		if err := decodeJSONInto(applicability, &p.Applicability); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertInsight implements storage.Store.
func (c *Client) UpsertInsight(ctx context.Context, scope model.Scope, insight model.Insight) error {
	sources, err := encodeJSON(insight.Sources)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO insights (tenant_id, user_id, agent_id, session_id, run_id, insight_id, type,
			statement, trigger_kind, confidence, validation_state, expires_at, sources)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE type=VALUES(type), statement=VALUES(statement), trigger_kind=VALUES(trigger_kind),
			confidence=VALUES(confidence), validation_state=VALUES(validation_state),
			expires_at=VALUES(expires_at), sources=VALUES(sources)`,
		scope.TenantID, scope.UserID, scope.AgentID, scope.SessionID, scope.RunID, insight.ID,
		string(insight.Type), insight.Statement, string(insight.Trigger), insight.Confidence,
		string(insight.ValidationState), insight.ExpiresAt, sources)
	if err != nil {
		return fmt.Errorf("mysql.UpsertInsight: %w", err)
	}
	return nil
}

// ListInsights implements storage.Store.
func (c *Client) ListInsights(ctx context.Context, scope model.Scope, filter model.InsightFilter) ([]model.Insight, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT insight_id, type, statement, trigger_kind, confidence, validation_state, expires_at, sources
		FROM insights WHERE tenant_id=? AND user_id=? AND agent_id=? AND session_id=? AND run_id=?`)
	args := []interface{}{scope.TenantID, scope.UserID, scope.AgentID, scope.SessionID, scope.RunID}

	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	q.WriteString(" AND NOT (expires_at != ? AND expires_at != '' AND expires_at <= ?)")
	args = append(args, model.RunEndSentinel, now.Format(time.RFC3339))

	if len(filter.ValidationStateIn) > 0 {
		q.WriteString(" AND validation_state IN (" + placeholders(len(filter.ValidationStateIn)) + ")")
		for _, s := range filter.ValidationStateIn {
			args = append(args, string(s))
		}
	}
	q.WriteString(" ORDER BY confidence DESC, insight_id ASC")
	if filter.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("mysql.ListInsights: %w", err)
	}
	defer rows.Close()

	var out []model.Insight
	for rows.Next() {
		var in model.Insight
		var typ, trigger, validation, sources string
		if err := rows.Scan(&in.ID, &typ, &in.Statement, &trigger, &in.Confidence, &validation,
			&in.ExpiresAt, &sources); err != nil {
			return nil, fmt.Errorf("mysql.ListInsights: %w", err)
		}
		in.Type = model.InsightType(typ)
		in.Trigger = model.InsightTrigger(trigger)
		in.ValidationState = model.ValidationState(validation)
		if err := decodeJSONInto(sources, &in.Sources); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// RecordBuild implements storage.Store.
func (c *Client) RecordBuild(ctx context.Context, scope model.Scope, buildID string, explain model.Explain, report model.BudgetReport) error {
	explainJSON, err := encodeJSON(explain)
	if err != nil {
		return err
	}
	reportJSON, err := encodeJSON(report)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO context_builds (tenant_id, user_id, agent_id, session_id, run_id, build_id,
			explain_json, budget_report_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scope.TenantID, scope.UserID, scope.AgentID, scope.SessionID, scope.RunID, buildID,
		explainJSON, reportJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mysql.RecordBuild: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anyIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, x := range b {
		set[x] = struct{}{}
	}
	for _, x := range a {
		if _, ok := set[x]; ok {
			return true
		}
	}
	return false
}
