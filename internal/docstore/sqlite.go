package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"focusline/internal/events"
)

// SQLiteStore keeps one row per document. Every write is journaled.
// The schema comes from the migrate package.
type SQLiteStore struct {
	DB      *sql.DB
	Journal events.Journal
	Now     func() time.Time
}

func NewSQLiteStore(db *sql.DB) SQLiteStore {
	return SQLiteStore{DB: db, Journal: events.Journal{DB: db}, Now: time.Now}
}

func (s SQLiteStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s SQLiteStore) Get(ctx context.Context, path string) (Document, bool, error) {
	if err := ValidatePath(path); err != nil {
		return nil, false, err
	}
	var payload string
	err := s.DB.QueryRowContext(ctx, `SELECT data_json FROM documents WHERE path=?`, path).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read document %s: %w", path, err)
	}
	doc, err := Decode([]byte(payload))
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (s SQLiteStore) Set(ctx context.Context, path string, data Document, merge bool) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	incoming, err := Normalize(data)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	next := incoming
	if merge {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT data_json FROM documents WHERE path=?`, path).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read document %s: %w", path, err)
		default:
			existing, err := Decode([]byte(current))
			if err != nil {
				return err
			}
			next = Merge(existing, incoming)
		}
	}
	encoded, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := s.now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents(path,data_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(path) DO UPDATE SET data_json=excluded.data_json, updated_at=excluded.updated_at`,
		path, string(encoded), now, now); err != nil {
		return fmt.Errorf("write document %s: %w", path, err)
	}
	if err := s.Journal.Append(ctx, tx, events.TypeDocumentSet, path, events.Payload{
		"merge": merge,
		"keys":  changedKeys(incoming),
	}); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	return tx.Commit()
}

// changedKeys lists dotted key paths touched by a write, one level
// below the top so day writes show up as days.<date>.
func changedKeys(data Document) []string {
	var keys []string
	for k, v := range data {
		nested, ok := v.(map[string]any)
		if !ok || len(nested) == 0 {
			keys = append(keys, k)
			continue
		}
		for sub := range nested {
			keys = append(keys, k+"."+sub)
		}
	}
	sort.Strings(keys)
	return keys
}
