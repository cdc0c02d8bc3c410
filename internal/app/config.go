package app

import (
	"context"
	"errors"
	"time"

	tgadapter "dropbot/internal/transport/telegram/adapter"

	"dropbot/internal/config"
	"dropbot/internal/distribution"
	"dropbot/internal/services/actionq"
	"dropbot/internal/services/reminder"
	"dropbot/internal/storage"
	"dropbot/pkg/logx"
)

// The config file stores durations as strings ("250ms", "1h"). The mapping
// helpers parse them into the typed configs each component takes; the same
// helpers back the reload validator, so a bad edit is rejected before any
// component sees it.

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}

func mapAdapter(c config.TelegramConfig, ratePerSec int) (tgadapter.Config, error) {
	if c.Token == "" {
		return tgadapter.Config{}, errors.New("telegram.token is required")
	}
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", c.PollTimeout, 10*time.Second)
	if err != nil {
		return tgadapter.Config{}, err
	}
	return tgadapter.Config{
		Token:       c.Token,
		PollTimeout: poll,
		RatePerSec:  ratePerSec,
	}, nil
}

func mapQueue(c config.QueueConfig) (actionq.PacerConfig, error) {
	var (
		out actionq.PacerConfig
		err error
	)
	if out.ActionDelay, err = config.ParseDurationOrDefault("queue.action_delay", c.ActionDelay, 0); err != nil {
		return out, err
	}
	if out.InviteDelay, err = config.ParseDurationOrDefault("queue.invite_delay", c.InviteDelay, 0); err != nil {
		return out, err
	}
	if out.ReactionDelay, err = config.ParseDurationOrDefault("queue.reaction_delay", c.ReactionDelay, 0); err != nil {
		return out, err
	}
	if out.DirectDelay, err = config.ParseDurationOrDefault("queue.direct_delay", c.DirectDelay, 0); err != nil {
		return out, err
	}
	if out.JitterMin, err = config.ParseDurationOrDefault("queue.jitter_min", c.JitterMin, 0); err != nil {
		return out, err
	}
	if out.JitterMax, err = config.ParseDurationOrDefault("queue.jitter_max", c.JitterMax, 0); err != nil {
		return out, err
	}
	return out, nil
}

func mapDistribution(c config.DistributionConfig, completeChat int64) (distribution.Config, error) {
	var (
		out distribution.Config
		err error
	)
	out.CompleteChat = completeChat
	out.MaxRecipients = c.MaxRecipients
	if out.UpdateWindow, err = config.ParseDurationOrDefault("distribution.update_window", c.UpdateWindow, 0); err != nil {
		return out, err
	}
	if out.ReactionCooldown, err = config.ParseDurationOrDefault("distribution.reaction_cooldown", c.ReactionCooldown, 0); err != nil {
		return out, err
	}
	if out.DirectCooldown, err = config.ParseDurationOrDefault("distribution.direct_cooldown", c.DirectCooldown, 0); err != nil {
		return out, err
	}
	if out.DeleteDelay, err = config.ParseDurationOrDefault("distribution.delete_delay", c.DeleteDelay, 0); err != nil {
		return out, err
	}
	return out, nil
}

func mapReminder(c *config.ReminderConfig) (reminder.Config, error) {
	if c == nil {
		return reminder.Config{}, nil
	}
	maxAge, err := config.ParseDurationOrDefault("reminder.max_age", c.MaxAge, 0)
	if err != nil {
		return reminder.Config{}, err
	}
	return reminder.Config{
		Enabled:  c.Enabled,
		Schedule: c.Schedule,
		MaxAge:   maxAge,
	}, nil
}

func mapStorage(c *config.StorageConfig) (storage.Config, error) {
	if c == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      c.Driver,
		Path:        c.Path,
		BusyTimeout: busy,
	}, nil
}

// validateConfig is the reload gate: every mapping must succeed before a
// new config is committed.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if _, err := mapAdapter(cfg.Telegram, cfg.Queue.RatePerSec); err != nil {
		return err
	}
	if _, err := mapQueue(cfg.Queue); err != nil {
		return err
	}
	if _, err := mapDistribution(cfg.Distribution, cfg.Telegram.CompleteChat); err != nil {
		return err
	}
	if _, err := mapReminder(cfg.Reminder); err != nil {
		return err
	}
	if _, err := mapStorage(cfg.Storage); err != nil {
		return err
	}
	return nil
}
