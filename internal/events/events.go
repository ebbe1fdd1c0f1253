// Package events records an append-only audit trail of project activity.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Event types written by the engine.
const (
	TypeProjectCreated   = "project.created"
	TypeProjectUpdated   = "project.updated"
	TypeProjectDeleted   = "project.deleted"
	TypeFileUploaded     = "file.uploaded"
	TypeResearchFetched  = "research.fetched"
	TypeAnalysisStarted  = "analysis.started"
	TypeAnalysisProgress = "analysis.progress"
	TypeAnalysisDone     = "analysis.completed"
	TypeAnalysisFailed   = "analysis.failed"
	TypeEntityUpdated    = "entity.updated"
	TypeEntityAdded      = "entity.added"
	TypeEntityDeleted    = "entity.deleted"
	TypeDeployRequested  = "deploy.requested"
)

func (w Writer) Append(ctx context.Context, evtType, projectID, entityKind, entityID string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), string(data))
	return err
}

// Event is one recorded entry, newest-last within a project.
type Event struct {
	ID         int64   `json:"id"`
	TS         string  `json:"ts"`
	Type       string  `json:"type"`
	ProjectID  string  `json:"project_id,omitempty"`
	EntityKind string  `json:"entity_kind,omitempty"`
	EntityID   string  `json:"entity_id,omitempty"`
	Payload    Payload `json:"payload"`
}

// List returns up to limit events for a project in insertion order. A
// limit of 0 returns everything.
func (w Writer) List(ctx context.Context, projectID string, limit int) ([]Event, error) {
	query := `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE project_id=? ORDER BY id`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var e Event
		var payloadJSON string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &payloadJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// After returns up to limit events with an id greater than afterID,
// across all projects, in insertion order.
func (w Writer) After(ctx context.Context, afterID int64, limit int) ([]Event, error) {
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE id>? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var e Event
		var payloadJSON string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &payloadJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestID returns the id of the newest event, 0 when the log is empty.
func (w Writer) LatestID(ctx context.Context) (int64, error) {
	var id int64
	err := w.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
