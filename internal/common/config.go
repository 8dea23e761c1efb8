package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Portal      PortalConfig    `toml:"portal"`
	Token       TokenConfig     `toml:"token"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for jobs
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent scrape workers
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
	MaxAttempts       int    `toml:"max_attempts"`       // Attempts before a job is terminal-failed
	RetryBackoffBase  string `toml:"retry_backoff_base"` // Base delay for retry backoff (doubles per attempt)
	CompletedRetained int    `toml:"completed_retained"` // Completed jobs kept for inspection before GC
	FailedRetained    int    `toml:"failed_retained"`    // Terminal-failed jobs kept before GC
	CooldownWindow    string `toml:"cooldown_window"`    // Admission cooldown per search term
	DedupSchedule     string `toml:"dedup_schedule"`     // Cron schedule for the dedup maintenance pass
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// PortalConfig describes the upstream property-data portal
type PortalConfig struct {
	SearchURL      string `toml:"search_url"`       // Full-text search API endpoint (POST)
	SearchPageURL  string `toml:"search_page_url"`  // Browser search page (token capture + fallback scraping)
	PageSize       int    `toml:"page_size"`        // Records per API page (portal maximum 1000)
	MaxPages       int    `toml:"max_pages"`        // Safety cap on API pagination
	MaxGridPages   int    `toml:"max_grid_pages"`   // Safety cap on grid pagination in the browser path
	RequestTimeout string `toml:"request_timeout"`  // Per-request timeout
	RateLimit      string `toml:"rate_limit"`       // Minimum spacing between API requests
	UserAgent      string `toml:"user_agent"`       // User agent for API and browser requests
}

// TokenConfig controls the bearer-token lifecycle
type TokenConfig struct {
	StaticToken     string `toml:"static_token"`     // Long-lived credential; skips browser refresh when set
	RefreshSchedule string `toml:"refresh_schedule"` // Interval ("4m") or cron expression for auto-refresh
	RefreshTimeout  string `toml:"refresh_timeout"`  // Max time for one browser-driven refresh
	ProbeTerm       string `toml:"probe_term"`       // Throwaway search term used to trigger token issuance
	Headless        bool   `toml:"headless"`         // Run the refresh browser headless
}

// ScraperConfig controls scraping behavior shared by both paths
type ScraperConfig struct {
	MaxRetries     int    `toml:"max_retries"`      // Retries per scrape invocation
	BackoffBase    string `toml:"backoff_base"`     // Base backoff delay (doubles per attempt)
	BrowserTimeout string `toml:"browser_timeout"`  // Max time for one browser-path scrape
	Headless       bool   `toml:"headless"`         // Run fallback browsers headless
	TypeDelayMin   string `toml:"type_delay_min"`   // Minimum per-character typing delay
	TypeDelayMax   string `toml:"type_delay_max"`   // Maximum per-character typing delay
	HumanPauseMin  string `toml:"human_pause_min"`  // Minimum pre/post-submit pause
	HumanPauseMax  string `toml:"human_pause_max"`  // Maximum pre/post-submit pause
}

// SchedulerConfig controls recurring seeding of monitored search terms
type SchedulerConfig struct {
	Enabled        bool     `toml:"enabled"`
	SeedSchedule   string   `toml:"seed_schedule"`   // Cron schedule for re-seeding monitored terms
	MonitoredTerms []string `toml:"monitored_terms"` // Search terms re-queued on each tick
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in praedium.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 3002,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       2,
			QueueName:         "praedium_scrapes",
			MaxAttempts:       3,
			RetryBackoffBase:  "5s",
			CompletedRetained: 100,
			FailedRetained:    50,
			CooldownWindow:    "30m",
			DedupSchedule:     "*/10 * * * *", // Every 10 minutes
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Portal: PortalConfig{
			PageSize:       1000, // Portal caps full-text search pages at 1000 records
			MaxPages:       100,
			MaxGridPages:   50,
			RequestTimeout: "30s",
			RateLimit:      "1s",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Token: TokenConfig{
			RefreshSchedule: "4m", // Portal tokens expire every few minutes
			RefreshTimeout:  "90s",
			ProbeTerm:       "Smith",
			Headless:        true,
		},
		Scraper: ScraperConfig{
			MaxRetries:     3,
			BackoffBase:    "2s",
			BrowserTimeout: "3m",
			Headless:       true,
			TypeDelayMin:   "50ms",
			TypeDelayMax:   "150ms",
			HumanPauseMin:  "500ms",
			HumanPauseMax:  "1500ms",
		},
		Scheduler: SchedulerConfig{
			Enabled:      false, // Opt-in: operators enable and supply monitored terms
			SeedSchedule: "0 */6 * * *",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI flags.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints and cron/duration fields
func Validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, d := range map[string]string{
		"queue.poll_interval":      config.Queue.PollInterval,
		"queue.retry_backoff_base": config.Queue.RetryBackoffBase,
		"queue.cooldown_window":    config.Queue.CooldownWindow,
		"portal.request_timeout":   config.Portal.RequestTimeout,
		"portal.rate_limit":        config.Portal.RateLimit,
		"token.refresh_timeout":    config.Token.RefreshTimeout,
		"scraper.backoff_base":     config.Scraper.BackoffBase,
		"scraper.browser_timeout":  config.Scraper.BrowserTimeout,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	if err := ValidateSchedule(config.Queue.DedupSchedule); err != nil {
		return fmt.Errorf("invalid queue.dedup_schedule: %w", err)
	}
	if config.Scheduler.Enabled {
		if err := ValidateSchedule(config.Scheduler.SeedSchedule); err != nil {
			return fmt.Errorf("invalid scheduler.seed_schedule: %w", err)
		}
	}
	if err := ValidateSchedule(config.Token.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid token.refresh_schedule: %w", err)
	}

	return nil
}

// ValidateSchedule accepts either a plain interval ("4m") or a cron expression
func ValidateSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("schedule is empty")
	}
	if _, err := time.ParseDuration(schedule); err == nil {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("schedule %q is neither a duration nor a cron expression: %w", schedule, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PRAEDIUM_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("PRAEDIUM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PRAEDIUM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if pollInterval := os.Getenv("PRAEDIUM_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("PRAEDIUM_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if cooldown := os.Getenv("PRAEDIUM_QUEUE_COOLDOWN_WINDOW"); cooldown != "" {
		config.Queue.CooldownWindow = cooldown
	}

	// Storage configuration
	if badgerPath := os.Getenv("PRAEDIUM_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("PRAEDIUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PRAEDIUM_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Portal configuration
	if searchURL := os.Getenv("PRAEDIUM_PORTAL_SEARCH_URL"); searchURL != "" {
		config.Portal.SearchURL = searchURL
	}
	if pageURL := os.Getenv("PRAEDIUM_PORTAL_SEARCH_PAGE_URL"); pageURL != "" {
		config.Portal.SearchPageURL = pageURL
	}
	if userAgent := os.Getenv("PRAEDIUM_PORTAL_USER_AGENT"); userAgent != "" {
		config.Portal.UserAgent = userAgent
	}

	// Token configuration
	if token := os.Getenv("PRAEDIUM_STATIC_TOKEN"); token != "" {
		config.Token.StaticToken = token
	}
	if schedule := os.Getenv("PRAEDIUM_TOKEN_REFRESH_SCHEDULE"); schedule != "" {
		config.Token.RefreshSchedule = schedule
	}
	if headless := os.Getenv("PRAEDIUM_TOKEN_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Token.Headless = h
		}
	}
}

// Duration parses a duration config field, falling back when unset or invalid
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
