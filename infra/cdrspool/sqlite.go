package cdrspool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kilianp07/roamsync/core/model"
)

// SQLiteSpool keeps spooled charge detail records in a SQLite database.
type SQLiteSpool struct {
	db *sql.DB
}

// NewSQLiteSpool opens or creates the database at path and ensures schema.
func NewSQLiteSpool(path string) (*SQLiteSpool, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS cdr_spool (
        provider TEXT NOT NULL,
        session_id TEXT NOT NULL,
        saved_at INTEGER NOT NULL,
        record TEXT NOT NULL,
        PRIMARY KEY (provider, session_id)
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteSpool{db: db}, nil
}

// Save stores cdr. A record with the same session id keeps its position.
func (s *SQLiteSpool) Save(ctx context.Context, provider string, cdr model.ChargeDetailRecord) error {
	b, err := json.Marshal(cdr)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cdr_spool (provider, session_id, saved_at, record) VALUES (?, ?, ?, ?)
         ON CONFLICT(provider, session_id) DO UPDATE SET record = excluded.record`,
		provider, cdr.SessionID, time.Now().UnixNano(), string(b))
	if err != nil {
		return fmt.Errorf("spool %s/%s: %w", provider, cdr.SessionID, err)
	}
	return nil
}

// Remove deletes the record; unknown sessions are ignored.
func (s *SQLiteSpool) Remove(ctx context.Context, provider, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cdr_spool WHERE provider = ? AND session_id = ?`, provider, sessionID)
	return err
}

// Load returns the spooled records of provider in save order.
func (s *SQLiteSpool) Load(ctx context.Context, provider string) ([]model.ChargeDetailRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM cdr_spool WHERE provider = ? ORDER BY saved_at, rowid`, provider)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.ChargeDetailRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c model.ChargeDetailRecord
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteSpool) Close() error { return s.db.Close() }
