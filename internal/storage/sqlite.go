//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"dropbot/pkg/logx"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    at       TEXT    NOT NULL,
    kind     TEXT    NOT NULL,
    drop_id  INTEGER,
    item     TEXT,
    actor    TEXT,
    detail   TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_at ON audit (at);
`

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage: sqlite driver requires a path")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	// Appends come from one goroutine; a single connection avoids lock
	// contention inside sqlite.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	log.Info("audit trail open", logx.String("driver", "sqlite"), logx.String("path", cfg.Path))
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (at, kind, drop_id, item, actor, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Kind, e.DistributionID, e.Item, e.Actor, e.Detail)
	return err
}

func (s *sqliteStore) Close() error { return s.db.Close() }
