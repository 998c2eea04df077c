package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voicetel/autotask-notifier/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
db_path: /tmp/test.db
listen: 127.0.0.1:9000
autotask:
  region: 5
  api_integration_code: code
  username: user@example.com
  secret: hunter2
queues: [8, 9]
statuses: [1, 8]
schedule:
  days:
    monday: true
    friday: true
  hours:
    start: "09:00"
    end: "17:00"
horizon: 1h
poll_interval: 1m
debounce_window: 15m
notify:
  method: webhook
  webhook_url: https://hooks.example.com/abc
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Autotask.Region != 5 || cfg.Autotask.Secret != "hunter2" {
		t.Errorf("autotask = %+v, want region 5 and secret", cfg.Autotask)
	}
	if len(cfg.Queues) != 2 || cfg.Queues[0] != 8 {
		t.Errorf("queues = %v, want [8 9]", cfg.Queues)
	}
	if cfg.Horizon != time.Hour || cfg.PollInterval != time.Minute || cfg.DebounceWindow != 15*time.Minute {
		t.Errorf("durations = %v/%v/%v, want 1h/1m/15m", cfg.Horizon, cfg.PollInterval, cfg.DebounceWindow)
	}
	if !cfg.Schedule.Days["monday"] || cfg.Schedule.Days["sunday"] {
		t.Errorf("schedule days = %v, want monday on, sunday off", cfg.Schedule.Days)
	}
	if cfg.Schedule.Hours.Start != "09:00" || cfg.Schedule.Hours.End != "17:00" {
		t.Errorf("schedule hours = %+v", cfg.Schedule.Hours)
	}
	if cfg.Notify.Method != "webhook" {
		t.Errorf("notify method = %q, want webhook", cfg.Notify.Method)
	}
	if !cfg.IsComplete() {
		t.Error("IsComplete = false for a fully configured file")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Horizon != time.Hour {
		t.Errorf("default horizon = %v, want 1h", cfg.Horizon)
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("default poll_interval = %v, want 1m", cfg.PollInterval)
	}
	if cfg.DebounceWindow != 15*time.Minute {
		t.Errorf("default debounce_window = %v, want 15m", cfg.DebounceWindow)
	}
	if cfg.Notify.Method != "desktop" {
		t.Errorf("default notify method = %q, want desktop", cfg.Notify.Method)
	}
	if cfg.IsComplete() {
		t.Error("IsComplete = true with no credentials")
	}
}

func TestIsComplete(t *testing.T) {
	t.Parallel()
	complete := Config{
		Autotask: AutotaskConfig{Region: 5, APIIntegrationCode: "c", Username: "u", Secret: "s"},
		Queues:   []int64{1},
		Statuses: []int64{1},
	}
	if !complete.IsComplete() {
		t.Error("IsComplete = false, want true")
	}

	for name, mutate := range map[string]func(*Config){
		"no region":   func(c *Config) { c.Autotask.Region = 0 },
		"no secret":   func(c *Config) { c.Autotask.Secret = "" },
		"no queues":   func(c *Config) { c.Queues = nil },
		"no statuses": func(c *Config) { c.Statuses = nil },
		"no username": func(c *Config) { c.Autotask.Username = "" },
		"no int code": func(c *Config) { c.Autotask.APIIntegrationCode = "" },
	} {
		c := complete
		mutate(&c)
		if c.IsComplete() {
			t.Errorf("%s: IsComplete = true, want false", name)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			DBPath:       "./x.db",
			PollInterval: time.Minute,
		}
	}

	cases := map[string]func(*Config){
		"empty db path":         func(c *Config) { c.DBPath = "" },
		"webhook without url":   func(c *Config) { c.Notify.Method = "webhook" },
		"unknown notify method": func(c *Config) { c.Notify.Method = "carrier-pigeon" },
		"sub-second poll":       func(c *Config) { c.PollInterval = 100 * time.Millisecond },
		"bad schedule start":    func(c *Config) { c.Schedule.Hours = models.ScheduleHours{Start: "25:00", End: "17:00"} },
		"unknown weekday":       func(c *Config) { c.Schedule.Days = map[string]bool{"funday": true} },
	}

	for name, mutate := range cases {
		c := base()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate returned nil, want error", name)
		}
	}
}
