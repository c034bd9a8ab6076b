package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// Config holds the engine configuration, read from the environment with defaults.
// An optional .env file (ENV_FILE, default ./.env) is loaded first and never
// overrides variables that are already set.
//
// Environment Variables:
// Backend:
// - BACKEND_URL: base URL of the movie/subtitle/audio backend (required)
// - BACKEND_TIMEOUT_MS: per request timeout (default: 5000)
// - BACKEND_RETRIES: retries on transient failures (default: 2)
//
// Storage:
// - DATA_DIR: data directory (default: ./data)
// - DB_PATH: SQLite database (default: $DATA_DIR/dubber.db)
// - AUDIO_RETENTION_DAYS: cached clips unused for longer are pruned (default: 30)
// - MAINTENANCE_CRON: prune schedule (default: 0 4 * * *)
//
// Sync:
// - SYNC_TICK_MS (100), SYNC_PREFETCH_MS (5000), SYNC_GENERATION_WINDOW_MS (60000),
//   SYNC_GENERATION_SCAN_MS (60000), SYNC_MESSAGE_TIMEOUT_MS (5000)
// - DEFAULT_LANGUAGE: track language when none is given (default: en)
//
// Player:
// - PLAYER_FADE_OUT_MS (300), PLAYER_REPLAY_THRESHOLD_MS (500), PLAYER_MIN_GAIN (0),
//   PLAYER_MAX_VOICES (4), PLAYER_MAX_VOLUME_MULTIPLIER (2.0)
//
// Generation:
// - GENERATION_MAX_RETRIES (3), GENERATION_BACKOFF_MS (1000), GENERATION_WORKERS (2)
//
// HTTP:
// - HTTP_ADDR (default: :8787), HTTP_ALLOWED_ORIGINS (comma separated, default: *)
//
// - LOG_LEVEL: debug|info|warn|error (default: info)
type Config struct {
	Backend    BackendConfig    `json:"backend"`
	Storage    StorageConfig    `json:"storage"`
	Sync       SyncConfig       `json:"sync"`
	Player     PlayerConfig     `json:"player"`
	Generation GenerationConfig `json:"generation"`
	HTTP       HTTPConfig       `json:"http"`
	Log        LogConfig        `json:"log"`
}

type BackendConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries"`
}

type StorageConfig struct {
	DataDir            string `json:"data_dir"`
	DBPath             string `json:"db_path"`
	AudioRetentionDays int    `json:"audio_retention_days"`
	MaintenanceCron    string `json:"maintenance_cron"`
}

// AudioRetention is the age after which unused cached clips are pruned.
func (c StorageConfig) AudioRetention() time.Duration {
	return time.Duration(c.AudioRetentionDays) * 24 * time.Hour
}

type SyncConfig struct {
	TickInterval           time.Duration `json:"tick_interval"`
	PrefetchWindow         time.Duration `json:"prefetch_window"`
	GenerationWindow       time.Duration `json:"generation_window"`
	GenerationScanInterval time.Duration `json:"generation_scan_interval"`
	MessageTimeout         time.Duration `json:"message_timeout"`
	DefaultLanguage        language.Tag  `json:"default_language"`
}

type PlayerConfig struct {
	FadeOut             time.Duration `json:"fade_out"`
	ReplayThreshold     time.Duration `json:"replay_threshold"`
	MinFadeGain         float64       `json:"min_fade_gain"`
	MaxVoices           int           `json:"max_voices"`
	MaxVolumeMultiplier float64       `json:"max_volume_multiplier"`
}

type GenerationConfig struct {
	MaxRetries  int           `json:"max_retries"`
	BaseBackoff time.Duration `json:"base_backoff"`
	Workers     int           `json:"workers"`
}

type HTTPConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type LogConfig struct {
	Level string `json:"level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// WithBackendURL overrides BACKEND_URL.
func WithBackendURL(url string) Option {
	return func(c *Config) {
		if strings.TrimSpace(url) != "" {
			c.Backend.BaseURL = url
		}
	}
}

// WithDataDir overrides DATA_DIR and the database path derived from it.
func WithDataDir(dir string) Option {
	return func(c *Config) {
		if strings.TrimSpace(dir) == "" {
			return
		}
		c.Storage.DataDir = dir
		c.Storage.DBPath = filepath.Join(dir, defaultDBName)
	}
}

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		if strings.TrimSpace(addr) != "" {
			c.HTTP.Addr = addr
		}
	}
}

const defaultDBName = "dubber.db"

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	if err := loadDotEnv(getEnvString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	dataDir := getEnvString("DATA_DIR", "./data")
	config := &Config{
		Backend: BackendConfig{
			BaseURL: getEnvString("BACKEND_URL", ""),
			Timeout: getEnvMillis("BACKEND_TIMEOUT_MS", 5*time.Second),
			Retries: getEnvInt("BACKEND_RETRIES", 2),
		},
		Storage: StorageConfig{
			DataDir:            dataDir,
			DBPath:             getEnvString("DB_PATH", filepath.Join(dataDir, defaultDBName)),
			AudioRetentionDays: getEnvInt("AUDIO_RETENTION_DAYS", 30),
			MaintenanceCron:    getEnvString("MAINTENANCE_CRON", "0 4 * * *"),
		},
		Sync: SyncConfig{
			TickInterval:           getEnvMillis("SYNC_TICK_MS", 100*time.Millisecond),
			PrefetchWindow:         getEnvMillis("SYNC_PREFETCH_MS", 5*time.Second),
			GenerationWindow:       getEnvMillis("SYNC_GENERATION_WINDOW_MS", 60*time.Second),
			GenerationScanInterval: getEnvMillis("SYNC_GENERATION_SCAN_MS", 60*time.Second),
			MessageTimeout:         getEnvMillis("SYNC_MESSAGE_TIMEOUT_MS", 5*time.Second),
			DefaultLanguage:        getEnvLanguage("DEFAULT_LANGUAGE", language.English),
		},
		Player: PlayerConfig{
			FadeOut:             getEnvMillis("PLAYER_FADE_OUT_MS", 300*time.Millisecond),
			ReplayThreshold:     getEnvMillis("PLAYER_REPLAY_THRESHOLD_MS", 500*time.Millisecond),
			MinFadeGain:         getEnvFloat("PLAYER_MIN_GAIN", 0),
			MaxVoices:           getEnvInt("PLAYER_MAX_VOICES", 4),
			MaxVolumeMultiplier: getEnvFloat("PLAYER_MAX_VOLUME_MULTIPLIER", 2.0),
		},
		Generation: GenerationConfig{
			MaxRetries:  getEnvInt("GENERATION_MAX_RETRIES", 3),
			BaseBackoff: getEnvMillis("GENERATION_BACKOFF_MS", time.Second),
			Workers:     getEnvInt("GENERATION_WORKERS", 2),
		},
		HTTP: HTTPConfig{
			Addr:           getEnvString("HTTP_ADDR", ":8787"),
			AllowedOrigins: getEnvList("HTTP_ALLOWED_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT_MS must be positive")
	}
	if c.Backend.Retries < 0 {
		return fmt.Errorf("BACKEND_RETRIES cannot be negative")
	}
	if c.Storage.AudioRetentionDays <= 0 {
		return fmt.Errorf("AUDIO_RETENTION_DAYS must be positive")
	}
	if _, err := cron.ParseStandard(c.Storage.MaintenanceCron); err != nil {
		return fmt.Errorf("invalid MAINTENANCE_CRON: %w", err)
	}
	if c.Sync.TickInterval <= 0 || c.Sync.MessageTimeout <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}
	if c.Player.FadeOut < 0 || c.Player.ReplayThreshold < 0 {
		return fmt.Errorf("player durations cannot be negative")
	}
	if c.Player.MinFadeGain < 0 || c.Player.MinFadeGain > 1 {
		return fmt.Errorf("PLAYER_MIN_GAIN must be within [0, 1]")
	}
	if c.Player.MaxVoices <= 0 {
		return fmt.Errorf("PLAYER_MAX_VOICES must be positive")
	}
	if c.Player.MaxVolumeMultiplier <= 0 {
		return fmt.Errorf("PLAYER_MAX_VOLUME_MULTIPLIER must be positive")
	}
	if c.Generation.MaxRetries < 0 || c.Generation.Workers <= 0 {
		return fmt.Errorf("invalid generation settings")
	}
	return nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	log.Debug("loaded environment from %s", path)
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvMillis reads a duration given in milliseconds
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	ret := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			ret = append(ret, item)
		}
	}
	if len(ret) == 0 {
		return defaultValue
	}
	return ret
}
