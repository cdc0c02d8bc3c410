package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validJSON = `{
  "telegram": {"token": "123:abc", "poll_timeout": "10s", "complete_chat": -1001},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "queue": {"action_delay": "100ms", "jitter_max": "150ms", "rate_per_sec": 25},
  "distribution": {"update_window": "1500ms", "reaction_cooldown": "1500ms", "direct_cooldown": "1h"}
}`

func TestParseJSON(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", validJSON))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.CompleteChat != -1001 {
		t.Fatalf("complete chat %d", cfg.Telegram.CompleteChat)
	}
	if cfg.Queue.RatePerSec != 25 {
		t.Fatalf("rate %d", cfg.Queue.RatePerSec)
	}
	if cfg.Reminder != nil || cfg.Storage != nil {
		t.Fatal("optional sections materialized from nothing")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", `{"telegram": {"token": "x", "typo_field": 1}}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", `{"telegram": {"token": "x"}} {"again": true}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	const y = `
telegram:
  token: "123:abc"
  poll_timeout: 10s
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
queue:
  rate_per_sec: 25
distribution:
  update_window: 1500ms
reminder:
  enabled: true
  schedule: "@every 1h"
  max_age: 24h
`
	m := NewManager(writeConfig(t, "config.yaml", y))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token %q", cfg.Telegram.Token)
	}
	if cfg.Reminder == nil || !cfg.Reminder.Enabled || cfg.Reminder.Schedule != "@every 1h" {
		t.Fatalf("reminder %+v", cfg.Reminder)
	}
}

func TestLoadCommits(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", validJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if m.Get() != cfg {
		t.Fatal("Get does not return the loaded config")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{Telegram: TelegramConfig{Token: "new"}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got.Telegram.Token != "new" {
		t.Fatal("oldest config was not displaced by the newest")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// unsubscribing twice is harmless
	m.Unsubscribe(ch)
}
