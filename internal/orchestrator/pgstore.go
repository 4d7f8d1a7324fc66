// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/history"
)

// PGStore implements Store against Postgres, matching the table layout
// described in SPEC_FULL.md §6.4 (executions, history, search_attributes).
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

// Schema returns the DDL this store expects; a migration tool or cmd/
// entrypoint is expected to run it once at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS executions (
    workflow_id     TEXT PRIMARY KEY,
    run_id          TEXT NOT NULL,
    workflow_type   TEXT NOT NULL,
    tenant_id       TEXT NOT NULL,
    status          TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    closed_at       TIMESTAMPTZ,
    input           JSONB,
    result          JSONB,
    failure_message TEXT,
    parent_run_id   TEXT
);

CREATE TABLE IF NOT EXISTS history (
    run_id    TEXT NOT NULL,
    event_id  BIGINT NOT NULL,
    ts        TIMESTAMPTZ NOT NULL,
    kind      TEXT NOT NULL,
    payload   JSONB NOT NULL,
    PRIMARY KEY (run_id, event_id)
);

CREATE TABLE IF NOT EXISTS search_attributes (
    workflow_id TEXT NOT NULL,
    key         TEXT NOT NULL,
    value       JSONB NOT NULL,
    PRIMARY KEY (workflow_id, key)
);
`

func (s *PGStore) CreateExecution(ctx context.Context, exec *Execution) error {
	input, _ := json.Marshal(exec.Input)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (workflow_id, run_id, workflow_type, tenant_id, status, started_at, input, parent_run_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (workflow_id) DO UPDATE SET run_id=$2, status=$5, started_at=$6, input=$7, parent_run_id=$8`,
		exec.WorkflowID, exec.RunID, exec.WorkflowType, exec.TenantID, string(exec.Status), exec.StartedAt, input, exec.ParentRunID)
	return err
}

func (s *PGStore) LoadExecution(ctx context.Context, workflowID string) (*Execution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT workflow_id, run_id, workflow_type, tenant_id, status, started_at, closed_at, input, result, failure_message, parent_run_id
		FROM executions WHERE workflow_id = $1`, workflowID)

	var exec Execution
	var status string
	var input, result []byte
	if err := row.Scan(&exec.WorkflowID, &exec.RunID, &exec.WorkflowType, &exec.TenantID, &status,
		&exec.StartedAt, &exec.ClosedAt, &input, &result, &exec.FailureMessage, &exec.ParentRunID); err != nil {
		return nil, heysherrors.NewNotFoundError(workflowID)
	}
	exec.Status = Status(status)
	json.Unmarshal(input, &exec.Input)
	json.Unmarshal(result, &exec.Result)

	attrs, err := s.loadAttributes(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	exec.SearchAttrs = attrs
	return &exec, nil
}

func (s *PGStore) loadAttributes(ctx context.Context, workflowID string) (map[string]any, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM search_attributes WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]any)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var v any
		json.Unmarshal(raw, &v)
		out[key] = v
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateExecution(ctx context.Context, exec *Execution) error {
	result, _ := json.Marshal(exec.Result)
	_, err := s.pool.Exec(ctx, `
		UPDATE executions SET status=$2, closed_at=$3, result=$4, failure_message=$5 WHERE workflow_id=$1`,
		exec.WorkflowID, string(exec.Status), exec.ClosedAt, result, exec.FailureMessage)
	if err != nil {
		return err
	}
	for k, v := range exec.SearchAttrs {
		raw, _ := json.Marshal(v)
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO search_attributes (workflow_id, key, value) VALUES ($1,$2,$3)
			ON CONFLICT (workflow_id, key) DO UPDATE SET value=$3`, exec.WorkflowID, k, raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) AppendEvents(ctx context.Context, runID string, events []history.Event) error {
	for _, ev := range events {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("orchestrator: marshal event payload: %w", err)
		}
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO history (run_id, event_id, ts, kind, payload) VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (run_id, event_id) DO NOTHING`,
			runID, ev.ID, ev.Timestamp, string(ev.Kind), raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) LoadEvents(ctx context.Context, runID string) ([]history.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, ts, kind, payload FROM history WHERE run_id = $1 ORDER BY event_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []history.Event
	for rows.Next() {
		var ev history.Event
		var kind string
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &kind, &raw); err != nil {
			return nil, err
		}
		ev.Kind = history.Kind(kind)
		ev.Payload = decodePayload(ev.Kind, raw)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PGStore) ListByAttributes(ctx context.Context, predicate func(map[string]any) bool) ([]*Execution, error) {
	rows, err := s.pool.Query(ctx, `SELECT workflow_id FROM executions`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var out []*Execution
	for _, id := range ids {
		exec, err := s.LoadExecution(ctx, id)
		if err != nil {
			continue
		}
		if predicate(exec.SearchAttrs) {
			out = append(out, exec)
		}
	}
	return out, nil
}

// decodePayload re-hydrates a history.Event's typed payload from its
// persisted JSON form, keyed on Kind — the Postgres-backed mirror of what
// replayScan expects in-memory history to already provide as concrete Go
// structs (not map[string]any).
func decodePayload(kind history.Kind, raw []byte) any {
	var p any
	switch kind {
	case history.KindWorkflowStarted:
		var v history.WorkflowStartedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindWorkflowCompleted:
		var v history.WorkflowCompletedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindWorkflowFailed:
		var v history.WorkflowFailedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindActivityScheduled:
		var v history.ActivityScheduledPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindActivityStarted:
		var v history.ActivityStartedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindActivityCompleted:
		var v history.ActivityCompletedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindActivityFailed:
		var v history.ActivityFailedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindActivityTimedOut:
		var v history.ActivityTimedOutPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindTimerStarted:
		var v history.TimerStartedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindTimerFired:
		var v history.TimerFiredPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindSignalReceived:
		var v history.SignalReceivedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindSearchAttributesUpserted:
		var v history.SearchAttributesUpsertedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindContinueAsNew:
		var v history.ContinueAsNewPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindWorkflowTerminated:
		var v history.WorkflowTerminatedPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindWorkflowTimedOut:
		var v history.WorkflowTimedOutPayload
		json.Unmarshal(raw, &v)
		p = v
	case history.KindSideEffectRecorded:
		var v interface{}
		json.Unmarshal(raw, &v)
		p = v
	default:
		json.Unmarshal(raw, &p)
	}
	return p
}
