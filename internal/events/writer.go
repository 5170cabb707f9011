package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"focusline/internal/domain"
)

// Journal records document writes in the events table.
type Journal struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

const TypeDocumentSet = "document.set"

func (j Journal) Append(ctx context.Context, tx *sql.Tx, evtType, path string, payload Payload) error {
	now := j.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,path,payload_json) VALUES (?,?,?,?)`,
		ts, evtType, path, string(data))
	return err
}

// Tail returns the newest events, oldest first. A non-empty path limits
// the result to that document.
func (j Journal) Tail(ctx context.Context, path string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,type,path,payload_json FROM events`
	var args []any
	if path != "" {
		query += ` WHERE path=?`
		args = append(args, path)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := j.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Path, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, k := 0, len(res)-1; i < k; i, k = i+1, k-1 {
		res[i], res[k] = res[k], res[i]
	}
	return res, nil
}
