package alertstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Hara602/usbAudit/internal/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists alerts so a long-running session does not grow
// without bound in memory. Rows are keyed by (session, message).
type SQLiteStore struct {
	db      *sql.DB
	session string
}

// OpenSQLite opens (or creates) the alert database and scopes the store to
// one session ID.
func OpenSQLite(dbPath, session string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		session    TEXT NOT NULL,
		message    TEXT NOT NULL,
		id         TEXT NOT NULL,
		kind       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (session, message)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &SQLiteStore{db: db, session: session}, nil
}

func (s *SQLiteStore) Add(alert model.Alert) (bool, error) {
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO alerts(session, message, id, kind, created_at) VALUES (?, ?, ?, ?, ?)",
		s.session, alert.Message, alert.ID, string(alert.Kind), alert.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) All() ([]model.Alert, error) {
	rows, err := s.db.Query(
		"SELECT id, kind, message, created_at FROM alerts WHERE session = ? ORDER BY seq",
		s.session,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var (
			a       model.Alert
			kind    string
			created string
		)
		if err := rows.Scan(&a.ID, &kind, &a.Message, &created); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Kind = model.AlertKind(kind)
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			a.CreatedAt = ts
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
