package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lopugit/ytmcloner/internal/monitoring"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. YTMCLONER_YOUTUBE_API_KEY
const EnvPrefix = "YTMCLONER"

// Config represents the application configuration
type Config struct {
	YouTube  YouTubeConfig  `json:"youtube" mapstructure:"youtube"`
	Catalog  CatalogConfig  `json:"catalog" mapstructure:"catalog"`
	Download DownloadConfig `json:"download" mapstructure:"download"`
	Monitor  MonitorConfig  `json:"monitor" mapstructure:"monitor"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// YouTubeConfig contains Data API and stream access settings
type YouTubeConfig struct {
	ChannelID         string  `json:"channel_id" mapstructure:"channel_id"`
	APIKey            string  `json:"api_key" mapstructure:"api_key"`
	Cookie            string  `json:"cookie" mapstructure:"cookie"`
	PageSize          int     `json:"page_size" mapstructure:"page_size"`
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
	RequestTimeoutS   int     `json:"request_timeout_s" mapstructure:"request_timeout_s"` // 0 = no overall timeout for streams
}

// CatalogConfig contains playlist selection and snapshot settings
type CatalogConfig struct {
	UseDump      bool     `json:"use_dump" mapstructure:"use_dump"` // skip the refresh phase and read the snapshot
	DumpDir      string   `json:"dump_dir" mapstructure:"dump_dir"`
	Whitelist    []string `json:"whitelist" mapstructure:"whitelist"`
	Blacklist    []string `json:"blacklist" mapstructure:"blacklist"`
	UseWhitelist bool     `json:"use_whitelist" mapstructure:"use_whitelist"`
	UseBlacklist bool     `json:"use_blacklist" mapstructure:"use_blacklist"`
}

// DownloadConfig contains download-related settings
type DownloadConfig struct {
	Enabled             bool   `json:"enabled" mapstructure:"enabled"`
	OutputDir           string `json:"output_dir" mapstructure:"output_dir"`
	TmpDir              string `json:"tmp_dir" mapstructure:"tmp_dir"`
	Extension           string `json:"extension" mapstructure:"extension"`
	ConcurrentDownloads int    `json:"concurrent_downloads" mapstructure:"concurrent_downloads"`
	Bitrate             string `json:"bitrate" mapstructure:"bitrate"`
	FFmpegPath          string `json:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	SettleDelayMS       int    `json:"settle_delay_ms" mapstructure:"settle_delay_ms"`
	SentinelTitle       string `json:"sentinel_title" mapstructure:"sentinel_title"`
	EmbedMetadata       bool   `json:"embed_metadata" mapstructure:"embed_metadata"`
	EmbedArtwork        bool   `json:"embed_artwork" mapstructure:"embed_artwork"`
	ArtworkSize         int    `json:"artwork_size" mapstructure:"artwork_size"`
	HistoryDB           string `json:"history_db" mapstructure:"history_db"` // empty disables history
}

// MonitorConfig contains progress monitor settings
type MonitorConfig struct {
	IntervalMS int `json:"interval_ms" mapstructure:"interval_ms"`
	StallPolls int `json:"stall_polls" mapstructure:"stall_polls"`
}

// MetricsConfig contains the metrics endpoint settings
type MetricsConfig struct {
	ListenAddr string `json:"listen_addr" mapstructure:"listen_addr"` // empty disables the server
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Output     string `json:"output" mapstructure:"output"`
	FilePath   string `json:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// SecretOpener decrypts "enc:" prefixed values
type SecretOpener interface {
	Open(value string) (string, error)
}

// Load loads configuration from file, writing one with defaults when the
// file does not exist yet. Environment variables override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = DefaultConfigPath
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// written before env binding so overrides never land in the file
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := ensureConfigDir(configPath); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := v.WriteConfigAs(configPath); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration and fills derived defaults
func (c *Config) Validate() error {
	if c.YouTube.PageSize < 1 || c.YouTube.PageSize > 50 {
		return fmt.Errorf("youtube page size must be between 1 and 50")
	}
	if c.YouTube.RequestsPerSecond <= 0 {
		return fmt.Errorf("youtube requests per second must be positive")
	}
	if c.YouTube.RequestTimeoutS < 0 {
		return fmt.Errorf("youtube request timeout cannot be negative")
	}

	if c.Catalog.DumpDir == "" {
		return fmt.Errorf("catalog dump directory cannot be empty")
	}

	if c.Download.ConcurrentDownloads < 1 {
		return fmt.Errorf("concurrent downloads must be at least 1")
	}
	if c.Download.ConcurrentDownloads > 32 {
		return fmt.Errorf("concurrent downloads cannot exceed 32")
	}
	if c.Download.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.Download.TmpDir == "" {
		return fmt.Errorf("temp directory cannot be empty")
	}
	if !strings.HasPrefix(c.Download.Extension, ".") || len(c.Download.Extension) < 2 {
		return fmt.Errorf("invalid extension: %q (must start with a dot)", c.Download.Extension)
	}
	if c.Download.Bitrate == "" {
		return fmt.Errorf("bitrate cannot be empty")
	}
	if c.Download.SettleDelayMS < 0 || c.Download.SettleDelayMS > 5000 {
		return fmt.Errorf("settle delay must be between 0 and 5000 ms")
	}
	if c.Download.EmbedArtwork && (c.Download.ArtworkSize < 100 || c.Download.ArtworkSize > 5000) {
		return fmt.Errorf("artwork size must be between 100 and 5000 pixels")
	}
	if c.Download.FFmpegPath == "" {
		c.Download.FFmpegPath = "ffmpeg"
	}

	if c.Monitor.IntervalMS < 100 {
		return fmt.Errorf("monitor interval must be at least 100 ms")
	}
	if c.Monitor.StallPolls < 1 {
		return fmt.Errorf("monitor stall polls must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "console": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, console, or both)", c.Logging.Output)
	}

	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}
	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("log max backups cannot be negative")
	}
	if c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("log max age cannot be negative")
	}

	return nil
}

// RequireChannel reports whether the refresh phase has what it needs
func (c *Config) RequireChannel() error {
	if c.YouTube.ChannelID == "" {
		return fmt.Errorf("youtube.channel_id is required to refresh the catalog")
	}
	if c.YouTube.APIKey == "" {
		return fmt.Errorf("youtube.api_key is required to refresh the catalog")
	}
	return nil
}

// DecryptSecrets replaces "enc:" prefixed secrets with their plain values
func (c *Config) DecryptSecrets(opener SecretOpener) error {
	for name, field := range map[string]*string{
		"youtube.api_key": &c.YouTube.APIKey,
		"youtube.cookie":  &c.YouTube.Cookie,
	} {
		plain, err := opener.Open(*field)
		if err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", name, err)
		}
		*field = plain
	}
	return nil
}

// Save saves the configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("youtube", c.YouTube)
	v.Set("catalog", c.Catalog)
	v.Set("download", c.Download)
	v.Set("monitor", c.Monitor)
	v.Set("metrics", c.Metrics)
	v.Set("logging", c.Logging)

	return v.WriteConfigAs(path)
}

// LogConfig converts the logging section for monitoring.NewLogger
func (c *Config) LogConfig() *monitoring.LogConfig {
	return &monitoring.LogConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// SettleDelay returns the pause between encode and placement
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Download.SettleDelayMS) * time.Millisecond
}

// MonitorInterval returns the progress poll interval
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalMS) * time.Millisecond
}

// RequestTimeout returns the stream request timeout, zero meaning none
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.YouTube.RequestTimeoutS) * time.Second
}

// DefaultConfigPath is used when no --config flag is given
const DefaultConfigPath = "config.json"

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	logDefaults := monitoring.DefaultLogConfig(".")

	v.SetDefault("youtube.channel_id", "")
	v.SetDefault("youtube.api_key", "")
	v.SetDefault("youtube.cookie", "")
	v.SetDefault("youtube.page_size", 50)
	v.SetDefault("youtube.requests_per_second", 5.0)
	v.SetDefault("youtube.request_timeout_s", 0)

	v.SetDefault("catalog.use_dump", false)
	v.SetDefault("catalog.dump_dir", ".")
	v.SetDefault("catalog.whitelist", []string{})
	v.SetDefault("catalog.blacklist", []string{})
	v.SetDefault("catalog.use_whitelist", false)
	v.SetDefault("catalog.use_blacklist", false)

	v.SetDefault("download.enabled", true)
	v.SetDefault("download.output_dir", "music")
	v.SetDefault("download.tmp_dir", "tmp")
	v.SetDefault("download.extension", ".mp3")
	v.SetDefault("download.concurrent_downloads", 5)
	v.SetDefault("download.bitrate", "320k")
	v.SetDefault("download.ffmpeg_path", "ffmpeg")
	v.SetDefault("download.settle_delay_ms", 1000)
	v.SetDefault("download.sentinel_title", "Private video")
	v.SetDefault("download.embed_metadata", true)
	v.SetDefault("download.embed_artwork", true)
	v.SetDefault("download.artwork_size", 600)
	v.SetDefault("download.history_db", filepath.Join("data", "history.db"))

	v.SetDefault("monitor.interval_ms", 2500)
	v.SetDefault("monitor.stall_polls", 30)

	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.format", logDefaults.Format)
	v.SetDefault("logging.output", logDefaults.Output)
	v.SetDefault("logging.file_path", logDefaults.FilePath)
	v.SetDefault("logging.max_size_mb", logDefaults.MaxSizeMB)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age_days", logDefaults.MaxAgeDays)
	v.SetDefault("logging.compress", logDefaults.Compress)
}

// ensureConfigDir ensures the configuration directory exists
func ensureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}
