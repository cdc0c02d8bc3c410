package config

// Config is the root configuration document.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1h").
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Queue        QueueConfig        `json:"queue"`
	Distribution DistributionConfig `json:"distribution"`
	Reminder     *ReminderConfig    `json:"reminder,omitempty"`
	Storage      *StorageConfig     `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// CompleteChat is the destination chat for final renders of completed
	// distributions.
	CompleteChat int64   `json:"complete_chat"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// QueueConfig controls outbound pacing. The bases are per action class; a
// uniform jitter in [jitter_min, jitter_max] is added on top of each.
type QueueConfig struct {
	ActionDelay   string `json:"action_delay,omitempty"`
	InviteDelay   string `json:"invite_delay,omitempty"`
	ReactionDelay string `json:"reaction_delay,omitempty"`
	DirectDelay   string `json:"direct_delay,omitempty"`
	JitterMin     string `json:"jitter_min,omitempty"`
	JitterMax     string `json:"jitter_max,omitempty"`
	// RatePerSec caps outbound platform calls at the adapter, under the
	// pacing heuristics above.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type DistributionConfig struct {
	// UpdateWindow is the render coalescing window.
	UpdateWindow string `json:"update_window,omitempty"`
	// ReactionCooldown is the per-(distribution,user) minimum event interval.
	ReactionCooldown string `json:"reaction_cooldown,omitempty"`
	// DirectCooldown is the per-user minimum interval between sale DMs.
	DirectCooldown string `json:"direct_cooldown,omitempty"`
	// DeleteDelay applies to transient status messages.
	DeleteDelay   string `json:"delete_delay,omitempty"`
	MaxRecipients int    `json:"max_recipients,omitempty"`
}

// ReminderConfig controls the optional stale-distribution sweep.
type ReminderConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec, default "@every 1h"
	MaxAge   string `json:"max_age,omitempty"`  // default "24h"
}

// StorageConfig controls the optional write-only audit trail.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./dropbot_audit" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
