// Package config loads and validates the bridge configuration from
// environment variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
	"github.com/LunaSea00/tg-twitter-sync/internal/util"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultStateDir      = "state"
	DefaultPollInterval  = time.Minute
	DefaultDedupMaxAge   = 30 * 24 * time.Hour
	DefaultHealthAddr    = ":8080"
	DefaultPruneSchedule = "30 3 * * *"
	DefaultDraftTTL      = 10 * time.Minute
)

// Config is the full runtime configuration.
type Config struct {
	// Telegram side.
	TelegramToken    string
	AuthorizedUserID int64
	DMTargetChatID   int64

	// X side.
	Credentials      models.Credentials
	SkipVerification bool
	DryRun           bool

	// Rate governor.
	MinRequestInterval time.Duration
	MaxRetries         int
	BackoffFactor      float64
	MaxBackoff         time.Duration
	CacheEnabled       bool
	CacheTTL           time.Duration

	// DM monitor.
	DMMonitorEnabled bool
	PollInterval     time.Duration
	DedupMaxAge      time.Duration
	DedupDSN         string
	PruneSchedule    string

	// Drafts and media.
	DraftTTL      time.Duration
	MediaMaxBytes int64

	// Process.
	StateDir   string
	TokenFile  string
	HealthAddr string
	Debug      bool
}

// Load reads a .env file if present, then builds the configuration from the
// environment. It does not validate; call Validate before use.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	stateDir := util.GetEnv("STATE_DIR", DefaultStateDir)
	cfg := Config{
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		AuthorizedUserID: util.ParseInt64Env("AUTHORIZED_USER_ID", 0),
		DMTargetChatID:   util.ParseInt64Env("DM_TARGET_CHAT_ID", 0),

		Credentials: models.Credentials{
			APIKey:            os.Getenv("TWITTER_API_KEY"),
			APISecret:         os.Getenv("TWITTER_API_SECRET"),
			AccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
			AccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
			BearerToken:       os.Getenv("TWITTER_BEARER_TOKEN"),
			OAuth2ClientID:    os.Getenv("OAUTH2_CLIENT_ID"),
			OAuth2Secret:      os.Getenv("OAUTH2_CLIENT_SECRET"),
			RedirectURI:       util.GetEnv("OAUTH2_REDIRECT_URI", "http://localhost:8931/callback"),
		},
		SkipVerification: util.ParseBoolEnv("SKIP_VERIFICATION", false),
		DryRun:           util.ParseBoolEnv("DRY_RUN", false),

		MinRequestInterval: util.ParseDurationEnv("MIN_REQUEST_INTERVAL", 5*time.Second),
		MaxRetries:         util.ParseIntEnv("MAX_RETRIES", 3),
		BackoffFactor:      util.ParseFloatEnv("BACKOFF_FACTOR", 2.0),
		MaxBackoff:         util.ParseDurationEnv("MAX_BACKOFF", 15*time.Minute),
		CacheEnabled:       util.ParseBoolEnv("CACHE_ENABLED", true),
		CacheTTL:           util.ParseDurationEnv("CACHE_TTL", 5*time.Minute),

		DMMonitorEnabled: util.ParseBoolEnv("DM_MONITOR_ENABLED", true),
		PollInterval:     util.ParseDurationEnv("POLL_INTERVAL", DefaultPollInterval),
		DedupMaxAge:      util.ParseDurationEnv("DEDUP_MAX_AGE", DefaultDedupMaxAge),
		DedupDSN:         util.GetEnv("DEDUP_STORE", filepath.Join(stateDir, "processed_events.json")),
		PruneSchedule:    util.GetEnv("PRUNE_SCHEDULE", DefaultPruneSchedule),

		DraftTTL:      util.ParseDurationEnv("DRAFT_TTL", DefaultDraftTTL),
		MediaMaxBytes: util.ParseInt64Env("MEDIA_MAX_BYTES", 0),

		StateDir:   stateDir,
		TokenFile:  util.GetEnv("TOKEN_FILE", filepath.Join(stateDir, "user_token.json")),
		HealthAddr: util.GetEnv("HEALTH_ADDR", DefaultHealthAddr),
		Debug:      util.ParseBoolEnv("DEBUG", false),
	}
	// DMs default to the authorized user's own chat.
	if cfg.DMTargetChatID == 0 {
		cfg.DMTargetChatID = cfg.AuthorizedUserID
	}
	return cfg
}

// Validate checks for required settings and sane values. It returns the
// first problem found.
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if c.AuthorizedUserID == 0 {
		return errors.New("AUTHORIZED_USER_ID is required")
	}
	if !c.DryRun {
		hasOAuth1 := c.Credentials.APIKey != "" && c.Credentials.APISecret != "" &&
			c.Credentials.AccessToken != "" && c.Credentials.AccessTokenSecret != ""
		if !hasOAuth1 && c.Credentials.BearerToken == "" {
			return errors.New("X credentials required: set TWITTER_API_KEY/SECRET and TWITTER_ACCESS_TOKEN/SECRET, or TWITTER_BEARER_TOKEN, or enable DRY_RUN")
		}
	}
	if c.MinRequestInterval < 0 {
		return fmt.Errorf("MIN_REQUEST_INTERVAL must not be negative, got %s", c.MinRequestInterval)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("BACKOFF_FACTOR must be at least 1, got %g", c.BackoffFactor)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", c.PollInterval)
	}
	if c.DedupMaxAge <= 0 {
		return fmt.Errorf("DEDUP_MAX_AGE must be positive, got %s", c.DedupMaxAge)
	}
	return nil
}

// LogLevel returns the slog level from LOG_LEVEL, with DEBUG=true forcing
// debug regardless.
func (c Config) LogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(util.GetEnv("LOG_LEVEL", "info")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
