// Package reminder periodically nudges chats about drops that stayed open
// too long. Disabled unless configured; the posts go out through the paced
// lane like every other write.
package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dropbot/internal/distribution"
	"dropbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string
	MaxAge   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = "@every 1h"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
	return c
}

type Service struct {
	log logx.Logger
	svc *distribution.Service

	mu   sync.Mutex
	cfg  Config
	cron *cron.Cron
	ctx  context.Context
}

func New(cfg Config, log logx.Logger, svc *distribution.Service) *Service {
	return &Service{
		log: log.With(logx.String("comp", "reminder")),
		svc: svc,
		cfg: cfg.withDefaults(),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if !s.cfg.Enabled {
		s.log.Info("disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, s.sweep); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("scheduled", logx.String("schedule", s.cfg.Schedule), logx.Duration("max_age", s.cfg.MaxAge))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *Service) stopLocked() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// Apply swaps the sweep schedule at runtime.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return nil
	}
	s.cfg = cfg
	s.stopLocked()
	if s.ctx == nil {
		return nil
	}
	return s.startLocked()
}

func (s *Service) sweep() {
	s.mu.Lock()
	ctx, maxAge := s.ctx, s.cfg.MaxAge
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if n := s.svc.RemindStale(ctx, maxAge); n > 0 {
		s.log.Info("reminders posted", logx.Int("count", n))
	}
}
