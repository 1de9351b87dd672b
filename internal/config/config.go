// Package config resolves the agent's settings from defaults, an optional
// .env file, USB_AUDIT_* environment variables and command-line flags, in
// that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "USB_AUDIT_"

type Config struct {
	Advanced bool
	Verbose  bool

	LogDir  string
	AlertDB string // empty keeps alerts in memory
	Probe   string // auto, command, linux

	PollInterval      time.Duration
	ObservationWindow time.Duration
	AutostartWindow   time.Duration
	TerminalWindow    time.Duration

	Workers   int
	QueueSize int
}

func Default() Config {
	return Config{
		LogDir:            ".",
		Probe:             "auto",
		PollInterval:      time.Second,
		ObservationWindow: 10 * time.Second,
		AutostartWindow:   5 * time.Minute,
		TerminalWindow:    30 * time.Second,
		Workers:           1,
		QueueSize:         16,
	}
}

// Load builds the configuration. envFile may be empty or missing.
func Load(envFile string, args []string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	fset := flag.NewFlagSet("usb-audit", flag.ContinueOnError)
	fset.BoolVar(&cfg.Advanced, "advanced", cfg.Advanced, "Enable advanced checks")
	fset.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose output")
	fset.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for the session and alert logs")
	fset.StringVar(&cfg.AlertDB, "alert-db", cfg.AlertDB, "SQLite file for persisted alerts (default: in memory)")
	fset.StringVar(&cfg.Probe, "probe", cfg.Probe, "System probe: auto, command or linux")
	fset.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "USB event poll interval")
	fset.DurationVar(&cfg.ObservationWindow, "observe", cfg.ObservationWindow, "Wait after an insertion before diffing connections")
	fset.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent event handlers")
	fset.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "Pending USB events before coalescing")
	if err := fset.Parse(args); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			default:
				errs = append(errs, fmt.Errorf("%s%s: invalid bool %q", envPrefix, key, v))
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	boolean("ADVANCED", &c.Advanced)
	boolean("VERBOSE", &c.Verbose)
	str("LOG_DIR", &c.LogDir)
	str("ALERT_DB", &c.AlertDB)
	str("PROBE", &c.Probe)
	duration("POLL_INTERVAL", &c.PollInterval)
	duration("OBSERVE", &c.ObservationWindow)
	duration("AUTOSTART_WINDOW", &c.AutostartWindow)
	duration("TERMINAL_WINDOW", &c.TerminalWindow)
	integer("WORKERS", &c.Workers)
	integer("QUEUE", &c.QueueSize)

	return errors.Join(errs...)
}

func (c Config) Validate() error {
	switch c.Probe {
	case "auto", "command", "linux":
	default:
		return fmt.Errorf("unknown probe %q", c.Probe)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.ObservationWindow < 0 {
		return errors.New("observation window must not be negative")
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.QueueSize < 1 {
		return errors.New("queue size must be at least 1")
	}
	if c.LogDir == "" {
		return errors.New("log dir must be set")
	}
	return nil
}
