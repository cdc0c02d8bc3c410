// Package storage is a write-only audit trail. Nothing in it is ever read
// back at runtime; deleting the files changes no behavior.
package storage

import (
	"context"
	"fmt"
	"time"

	"dropbot/pkg/logx"
)

type Config struct {
	// Driver selects the backend: "none" (default), "file" or "sqlite".
	Driver string
	Path   string
	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout time.Duration
}

// AuditEntry is one appended fact about a drop.
type AuditEntry struct {
	At             time.Time `json:"at"`
	Kind           string    `json:"kind"`
	DistributionID int       `json:"distribution_id,omitempty"`
	Item           string    `json:"item,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	Detail         string    `json:"detail,omitempty"`
}

type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open returns the configured store, or nil when auditing is off.
func Open(cfg Config, log logx.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
