package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the crawler
type Config struct {
	// Instagram session and protocol envelope values
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Rate limiting and pacing configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Crawl behavior
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Datastore settings
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Query identifier discovery settings
	DocIDs DocIDConfig `yaml:"doc_ids" json:"doc_ids"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds the credentials and fixed protocol values attached
// to every request. Session values come from the external authentication
// step; this package only carries them.
type InstagramConfig struct {
	SessionID      string        `yaml:"session_id" json:"session_id"`
	CSRFToken      string        `yaml:"csrf_token" json:"csrf_token"`
	FBDtsg         string        `yaml:"fb_dtsg" json:"fb_dtsg"`
	FBLsd          string        `yaml:"fb_lsd" json:"fb_lsd"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	AppID          string        `yaml:"app_id" json:"app_id"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// RateLimitConfig holds pacing configuration. DelayMin/DelayMax bound the
// randomized wait between two profiles; Cooldown is the fixed wait before
// the single 429 retry; Penalty is added after a rate-limit give-up.
type RateLimitConfig struct {
	DelayMin        time.Duration `yaml:"delay_min" json:"delay_min"`
	DelayMax        time.Duration `yaml:"delay_max" json:"delay_max"`
	Cooldown        time.Duration `yaml:"cooldown" json:"cooldown"`
	Penalty         time.Duration `yaml:"penalty" json:"penalty"`
	MaxAuthFailures int           `yaml:"max_auth_failures" json:"max_auth_failures"`
}

// CrawlConfig holds crawl-loop behavior
type CrawlConfig struct {
	ForceRescrape bool `yaml:"force_rescrape" json:"force_rescrape"`
	Limit         int  `yaml:"limit" json:"limit"`
	PageSize      int  `yaml:"page_size" json:"page_size"`
}

// DatabaseConfig holds datastore settings
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// DocIDConfig holds query identifier configuration. The three identifiers
// rotate upstream; defaults are only a starting point and the registry file,
// when present, takes precedence for the profile query.
type DocIDConfig struct {
	Profile       string        `yaml:"profile" json:"profile"`
	Highlights    string        `yaml:"highlights" json:"highlights"`
	Posts         string        `yaml:"posts" json:"posts"`
	RegistryFile  string        `yaml:"registry_file" json:"registry_file"`
	ProbeUserID   string        `yaml:"probe_user_id" json:"probe_user_id"`
	ProbeDelay    time.Duration `yaml:"probe_delay" json:"probe_delay"`
	MaxCandidates int           `yaml:"max_candidates" json:"max_candidates"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			UserAgent:      "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Mobile Safari/537.36",
			AppID:          "1217981644879628",
			RequestTimeout: 20 * time.Second,
		},
		RateLimit: RateLimitConfig{
			DelayMin:        2 * time.Second,
			DelayMax:        6 * time.Second,
			Cooldown:        60 * time.Second,
			Penalty:         120 * time.Second,
			MaxAuthFailures: 3,
		},
		Crawl: CrawlConfig{
			ForceRescrape: false,
			Limit:         0, // unlimited
			PageSize:      12,
		},
		Database: DatabaseConfig{
			Path: "igcrawler.db",
		},
		DocIDs: DocIDConfig{
			Profile:       "24059491867034637",
			Highlights:    "9814547265267853",
			Posts:         "24312092678414792",
			RegistryFile:  "doc_ids.json",
			ProbeUserID:   "1552043361",
			ProbeDelay:    800 * time.Millisecond,
			MaxCandidates: 50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then an optional YAML
// file, then .env, then IGCRAWLER_* environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}

	// .env is optional; ignore a missing file
	_ = godotenv.Load()

	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file. An empty path falls
// back to the default search locations; no file found is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// findConfigFile checks the default config locations
func findConfigFile() string {
	candidates := []string{"igcrawler.yaml", "igcrawler.yml"}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "igcrawler", "config.yaml"),
			filepath.Join(home, ".igcrawler.yaml"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadFromEnv overrides configuration from environment variables
func (c *Config) LoadFromEnv() {
	setString(&c.Instagram.SessionID, "IGCRAWLER_SESSION_ID")
	setString(&c.Instagram.CSRFToken, "IGCRAWLER_CSRF_TOKEN")
	setString(&c.Instagram.FBDtsg, "IGCRAWLER_FB_DTSG")
	setString(&c.Instagram.FBLsd, "IGCRAWLER_FB_LSD")
	setString(&c.Instagram.UserAgent, "IGCRAWLER_USER_AGENT")
	setString(&c.Instagram.AppID, "IGCRAWLER_APP_ID")

	setDuration(&c.RateLimit.DelayMin, "IGCRAWLER_DELAY_MIN")
	setDuration(&c.RateLimit.DelayMax, "IGCRAWLER_DELAY_MAX")
	setDuration(&c.RateLimit.Cooldown, "IGCRAWLER_COOLDOWN")
	setDuration(&c.RateLimit.Penalty, "IGCRAWLER_PENALTY")

	setBool(&c.Crawl.ForceRescrape, "IGCRAWLER_FORCE_RESCRAPE")
	setInt(&c.Crawl.Limit, "IGCRAWLER_LIMIT")
	setInt(&c.Crawl.PageSize, "IGCRAWLER_PAGE_SIZE")

	setString(&c.Database.Path, "IGCRAWLER_DATABASE")

	setString(&c.DocIDs.Profile, "IGCRAWLER_DOC_ID_PROFILE")
	setString(&c.DocIDs.Highlights, "IGCRAWLER_DOC_ID_HIGHLIGHTS")
	setString(&c.DocIDs.Posts, "IGCRAWLER_DOC_ID_POSTS")
	setString(&c.DocIDs.RegistryFile, "IGCRAWLER_DOC_ID_REGISTRY")

	setString(&c.Logging.Level, "IGCRAWLER_LOG_LEVEL")
	setString(&c.Logging.File, "IGCRAWLER_LOG_FILE")
}

// Validate checks the configuration for inconsistent values
func (c *Config) Validate() error {
	if c.RateLimit.DelayMin < 0 || c.RateLimit.DelayMax < 0 {
		return errors.New("rate_limit delays must not be negative")
	}
	if c.RateLimit.DelayMax < c.RateLimit.DelayMin {
		return errors.New("rate_limit delay_max must be >= delay_min")
	}
	if c.RateLimit.Cooldown <= 0 {
		return errors.New("rate_limit cooldown must be positive")
	}
	if c.RateLimit.MaxAuthFailures <= 0 {
		return errors.New("rate_limit max_auth_failures must be positive")
	}
	if c.Crawl.PageSize <= 0 {
		return errors.New("crawl page_size must be positive")
	}
	if c.Database.Path == "" {
		return errors.New("database path must not be empty")
	}
	return nil
}

// HasSession reports whether the transport credentials required for
// authenticated calls are present.
func (c *Config) HasSession() bool {
	return c.Instagram.SessionID != "" && c.Instagram.CSRFToken != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
