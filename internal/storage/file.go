package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dropbot/pkg/logx"
)

// fileStore appends entries as JSON lines. One lock around the encoder
// keeps lines whole under concurrent appends.
type fileStore struct {
	log logx.Logger

	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func openFile(cfg Config, log logx.Logger) (*fileStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage: file driver requires a path")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("audit trail open", logx.String("driver", "file"), logx.String("path", cfg.Path))
	return &fileStore{
		log: log,
		f:   f,
		enc: json.NewEncoder(f),
	}, nil
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("storage: closed")
	}
	return s.enc.Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.enc = nil
	return err
}
