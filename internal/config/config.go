package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "AIDIGEST_CONFIG"
	databasePathEnv  = "AIDIGEST_DB_PATH"
	botTokenEnv      = "BOT_TOKEN"
	digestChannelEnv = "DIGEST_CHANNEL_ID"
	llmAPIKeyEnv     = "LLM_API_KEY"
	llmModelEnv      = "LLM_MODEL_URI"
	embedModelEnv    = "LLM_EMBED_MODEL_URI"
)

// Config holds all settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Window    WindowConfig    `yaml:"window"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	LLM       LLMConfig       `yaml:"llm"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Digest    DigestConfig    `yaml:"digest"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

// LoggingConfig controls the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WindowConfig pins the daily 24h window boundary.
type WindowConfig struct {
	Timezone  string         `yaml:"timezone"`
	StartHour int            `yaml:"startHour"`
	location  *time.Location `yaml:"-"`
}

// Location resolves the window timezone string to a time.Location.
// Configs produced by Load carry a pre-resolved location; hand-built
// ones resolve from Timezone, falling back to UTC.
func (w WindowConfig) Location() *time.Location {
	if w.location != nil {
		return w.location
	}
	if w.Timezone != "" {
		if loc, err := time.LoadLocation(w.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// SchedulerConfig defines when the daily pipeline fires.
type SchedulerConfig struct {
	RunAtHour   int `yaml:"runAtHour"`
	RunAtMinute int `yaml:"runAtMinute"`
}

// LLMConfig describes the OpenAI-compatible summarization and embedding
// endpoints.
type LLMConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embedModel"`
	APIKey     string `yaml:"apiKey"`
	EmbedDim   int    `yaml:"embedDim"`
	BatchSize  int    `yaml:"batchSize"`
}

// DedupConfig tunes the semantic clustering pass.
type DedupConfig struct {
	Threshold float64 `yaml:"threshold"`
	TopK      int     `yaml:"topK"`
}

// DigestConfig tunes ranking and selection. The per-channel threshold
// may be more permissive than the global one.
type DigestConfig struct {
	TopNGlobal           int `yaml:"topNGlobal"`
	TopKPerChannel       int `yaml:"topKPerChannel"`
	MinImportanceGlobal  int `yaml:"minImportanceGlobal"`
	MinImportanceChannel int `yaml:"minImportanceChannel"`
}

// TelegramConfig wires the publishing bot and the channel preview
// scraper.
type TelegramConfig struct {
	BotToken        string `yaml:"botToken"`
	DigestChannelID int64  `yaml:"digestChannelId"`
	PreviewBaseURL  string `yaml:"previewBaseUrl"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Window.StartHour < 0 || c.Window.StartHour > 23 {
		return fmt.Errorf("window start hour must be in range 0..23, got %d", c.Window.StartHour)
	}
	if c.Scheduler.RunAtHour < 0 || c.Scheduler.RunAtHour > 23 {
		return fmt.Errorf("run hour must be in range 0..23, got %d", c.Scheduler.RunAtHour)
	}
	if c.Scheduler.RunAtMinute < 0 || c.Scheduler.RunAtMinute > 59 {
		return fmt.Errorf("run minute must be in range 0..59, got %d", c.Scheduler.RunAtMinute)
	}
	if c.LLM.EmbedDim <= 0 {
		return fmt.Errorf("embed dim must be positive, got %d", c.LLM.EmbedDim)
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup threshold must be in (0,1], got %v", c.Dedup.Threshold)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(botTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(digestChannelEnv); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.DigestChannelID = id
		} else {
			log.Printf("config: invalid %s=%q, ignoring", digestChannelEnv, v)
		}
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(embedModelEnv); v != "" {
		c.LLM.EmbedModel = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Window.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		c.Window.Timezone = defaultTimezone
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Window.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "./data/aidigest.db"},
		Window: WindowConfig{
			Timezone:  defaultTimezone,
			StartHour: 13,
			location:  tz,
		},
		Scheduler: SchedulerConfig{RunAtHour: 13, RunAtMinute: 10},
		LLM: LLMConfig{
			Endpoint:   "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
			EmbedDim:   256,
			BatchSize:  16,
		},
		Dedup: DedupConfig{Threshold: 0.88, TopK: 80},
		Digest: DigestConfig{
			TopNGlobal:           10,
			TopKPerChannel:       5,
			MinImportanceGlobal:  4,
			MinImportanceChannel: 3,
		},
		Telegram: TelegramConfig{PreviewBaseURL: "https://t.me/s"},
	}
}
