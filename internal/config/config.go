package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/voicetel/autotask-notifier/internal/models"
)

// ErrIncomplete marks a configuration that is missing required Autotask
// settings. It gates the reconciliation cycle rather than failing it.
var ErrIncomplete = errors.New("autotask credentials, queues and statuses are not configured")

type Config struct {
	// SQLite
	DBPath string `mapstructure:"db_path"`

	// HTTP panel/API listen address
	Listen string `mapstructure:"listen"`

	// Autotask
	Autotask AutotaskConfig `mapstructure:"autotask"`

	// Ticket selection
	Queues   []int64 `mapstructure:"queues"`
	Statuses []int64 `mapstructure:"statuses"`

	// Alerting window
	Schedule models.WorkSchedule `mapstructure:"schedule"`

	// Timing
	Horizon        time.Duration `mapstructure:"horizon"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DebounceWindow time.Duration `mapstructure:"debounce_window"`

	// Notification delivery
	Notify NotifyConfig `mapstructure:"notify"`

	// Operational
	DryRun    bool   `mapstructure:"dry_run"`
	Verbose   bool   `mapstructure:"verbose"`
	LogFormat string `mapstructure:"log_format"`

	// Modes (flags only, never persisted)
	Once             bool `mapstructure:"-"`
	CheckConnections bool `mapstructure:"-"`
	ListFields       bool `mapstructure:"-"`
	InitDB           bool `mapstructure:"-"`
	Vacuum           bool `mapstructure:"-"`
	ShowVersion      bool `mapstructure:"-"`
}

type AutotaskConfig struct {
	Region             int           `mapstructure:"region"`
	APIIntegrationCode string        `mapstructure:"api_integration_code"`
	Username           string        `mapstructure:"username"`
	Secret             string        `mapstructure:"secret"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	// Method is "desktop", "webhook" or "none".
	Method        string        `mapstructure:"method"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// ParseFlags reads command line flags and the optional config file.
func ParseFlags() *Config {
	configFile := flag.String("config", defaultConfigPath(), "Path to YAML configuration file")

	dbPath := flag.String("db-path", "", "Path to SQLite database (overrides config file)")
	listen := flag.String("listen", "", "HTTP listen address for the ticket panel (overrides config file)")

	dryRun := flag.Bool("dry-run", false, "Run cycles but don't send notifications")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	logFormat := flag.String("log-format", "", "Log format (text or json)")

	once := flag.Bool("once", false, "Run a single reconciliation cycle and exit")
	checkConnections := flag.Bool("check-connections", false, "Test Autotask credentials and webhook, then exit")
	listFields := flag.Bool("list-fields", false, "Print queue and status picklists and exit")
	initDB := flag.Bool("init-db", false, "Initialize database and exit")
	vacuum := flag.Bool("vacuum", false, "Vacuum the database and exit")
	showVersion := flag.Bool("version", false, "Print version information and exit")

	flag.Parse()

	cfg, err := Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
		os.Exit(1)
	}

	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	cfg.DryRun = cfg.DryRun || *dryRun
	cfg.Verbose = cfg.Verbose || *verbose
	cfg.Once = *once
	cfg.CheckConnections = *checkConnections
	cfg.ListFields = *listFields
	cfg.InitDB = *initDB
	cfg.Vacuum = *vacuum
	cfg.ShowVersion = *showVersion

	return cfg
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./autotask-notifier.yaml"
	}
	return home + "/.config/autotask-notifier/config.yaml"
}

// Load reads the configuration file at path. A missing file yields the
// defaults so one-shot modes like -init-db still work.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("db_path", "./autotask-notifier.db")
	v.SetDefault("listen", "127.0.0.1:8990")
	v.SetDefault("horizon", "1h")
	v.SetDefault("poll_interval", "1m")
	v.SetDefault("debounce_window", "15m")
	v.SetDefault("autotask.timeout", "30s")
	v.SetDefault("notify.method", "desktop")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.retry_attempts", 3)
	v.SetDefault("log_format", "text")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// IsComplete reports whether the settings required to query Autotask are
// present. Incomplete configuration is a gate, not an error.
func (c *Config) IsComplete() bool {
	a := c.Autotask
	if a.Region == 0 || a.APIIntegrationCode == "" || a.Username == "" || a.Secret == "" {
		return false
	}
	return len(c.Queues) > 0 && len(c.Statuses) > 0
}

// Validate checks values that would otherwise fail deep inside a cycle.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Autotask.Region < 0 {
		return fmt.Errorf("autotask.region must be a positive zone number")
	}
	switch c.Notify.Method {
	case "", "desktop", "none":
	case "webhook":
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("notify.webhook_url is required when notify.method is webhook")
		}
	default:
		return fmt.Errorf("notify.method must be desktop, webhook or none")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll_interval must be at least one second")
	}
	if c.Schedule.Hours.Start != "" || c.Schedule.Hours.End != "" {
		if err := validateClock(c.Schedule.Hours.Start); err != nil {
			return fmt.Errorf("schedule.hours.start: %w", err)
		}
		if err := validateClock(c.Schedule.Hours.End); err != nil {
			return fmt.Errorf("schedule.hours.end: %w", err)
		}
	}
	for day := range c.Schedule.Days {
		if !knownWeekday(day) {
			return fmt.Errorf("schedule.days: unknown weekday %q", day)
		}
	}
	return nil
}

func validateClock(s string) error {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%q is not in HH:MM form", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return fmt.Errorf("%q has an invalid hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return fmt.Errorf("%q has an invalid minute", s)
	}
	return nil
}

func knownWeekday(day string) bool {
	switch strings.ToLower(day) {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	}
	return false
}
