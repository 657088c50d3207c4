// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the top-level configuration.
// Maps to the `envelope:` root key in YAML.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`  // debug / info / warn / error
	Format     string           `mapstructure:"format"` // pattern / text / json
	Pattern    string           `mapstructure:"pattern"`
	TimeFormat string           `mapstructure:"time_format"`
	File       FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`  // MB
	MaxAgeDays int  `mapstructure:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Parser ───

// ParserConfig configures envelope parsing.
type ParserConfig struct {
	PayloadType string `mapstructure:"payload_type"` // Empty = structural decoding
	MaxDepth    int    `mapstructure:"max_depth"`
	// HeaderTypes decodes untagged values of the named headers with a
	// registered type descriptor.
	HeaderTypes map[string]string `mapstructure:"header_types"`
	// DefaultHeaders are added to every message that does not set them.
	DefaultHeaders map[string]string `mapstructure:"default_headers"`
}

// ─── Consumer ───

// ConsumerConfig configures the Kafka consumer.
type ConsumerConfig struct {
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Dedupe DedupeConfig `mapstructure:"dedupe"`
}

// KafkaConfig contains Kafka reader settings.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	Topic           string   `mapstructure:"topic"`
	GroupID         string   `mapstructure:"group_id"`          // Empty = envelope-<hostname>
	AutoOffsetReset string   `mapstructure:"auto_offset_reset"` // earliest / latest
	MinBytes        int      `mapstructure:"min_bytes"`
	MaxBytes        int      `mapstructure:"max_bytes"`
}

// DedupeConfig drops messages whose id header was seen within TTL.
type DedupeConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Header          string `mapstructure:"header"`
	TTL             string `mapstructure:"ttl"`              // e.g. "10m"
	CleanupInterval string `mapstructure:"cleanup_interval"` // e.g. "1m"
}

// TTLDuration returns the parsed TTL. Valid after ValidateAndApplyDefaults.
func (d DedupeConfig) TTLDuration() time.Duration {
	ttl, _ := time.ParseDuration(d.TTL)
	return ttl
}

// CleanupDuration returns the parsed cleanup interval.
func (d DedupeConfig) CleanupDuration() time.Duration {
	every, _ := time.ParseDuration(d.CleanupInterval)
	return every
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `envelope: ...`.
type configRoot struct {
	Envelope Config `mapstructure:"envelope"`
}

// Load loads configuration from file. An empty path loads defaults and
// environment overrides only.
// The YAML file uses `envelope:` as root key; env vars use ENVELOPE_ prefix (e.g., ENVELOPE_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `envelope.` key prefix maps to `ENVELOPE_` in env vars via the key
	// replacer (e.g., key "envelope.log.level" → env "ENVELOPE_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Envelope

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "envelope." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("envelope.log.level", "info")
	v.SetDefault("envelope.log.format", "pattern")
	v.SetDefault("envelope.log.pattern", "%time [%level] %msg %field")
	v.SetDefault("envelope.log.time_format", "2006-01-02 15:04:05.000")
	v.SetDefault("envelope.log.file.enabled", false)
	v.SetDefault("envelope.log.file.path", "/var/log/envelope/envelope.log")
	v.SetDefault("envelope.log.file.rotation.max_size_mb", 100)
	v.SetDefault("envelope.log.file.rotation.max_age_days", 30)
	v.SetDefault("envelope.log.file.rotation.max_backups", 5)
	v.SetDefault("envelope.log.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("envelope.metrics.enabled", false)
	v.SetDefault("envelope.metrics.listen", ":9091")
	v.SetDefault("envelope.metrics.path", "/metrics")

	// Parser defaults
	v.SetDefault("envelope.parser.payload_type", "")
	v.SetDefault("envelope.parser.max_depth", 512)

	// Consumer defaults
	v.SetDefault("envelope.consumer.kafka.brokers", []string{})
	v.SetDefault("envelope.consumer.kafka.topic", "")
	v.SetDefault("envelope.consumer.kafka.group_id", "")
	v.SetDefault("envelope.consumer.kafka.auto_offset_reset", "latest")
	v.SetDefault("envelope.consumer.kafka.min_bytes", 1)
	v.SetDefault("envelope.consumer.kafka.max_bytes", 10485760)
	v.SetDefault("envelope.consumer.dedupe.enabled", false)
	v.SetDefault("envelope.consumer.dedupe.header", "id")
	v.SetDefault("envelope.consumer.dedupe.ttl", "10m")
	v.SetDefault("envelope.consumer.dedupe.cleanup_interval", "1m")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	validFormats := map[string]bool{"pattern": true, "text": true, "json": true}
	if !validFormats[cfg.Log.Format] {
		return fmt.Errorf("invalid log format: %s (must be pattern/text/json)", cfg.Log.Format)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}

	// ── Parser validation ──
	if cfg.Parser.MaxDepth <= 0 {
		return fmt.Errorf("invalid parser.max_depth: %d (must be > 0)", cfg.Parser.MaxDepth)
	}
	for name, descriptor := range cfg.Parser.HeaderTypes {
		if descriptor == "" {
			return fmt.Errorf("parser.header_types.%s: descriptor is empty", name)
		}
	}

	// ── Consumer ──
	if cfg.Consumer.Kafka.AutoOffsetReset != "earliest" && cfg.Consumer.Kafka.AutoOffsetReset != "latest" {
		return fmt.Errorf("invalid consumer.kafka.auto_offset_reset: %s (must be earliest/latest)", cfg.Consumer.Kafka.AutoOffsetReset)
	}
	if cfg.Consumer.Kafka.GroupID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Consumer.Kafka.GroupID = "envelope-" + hostname
	}

	dd := &cfg.Consumer.Dedupe
	if dd.Enabled {
		if dd.Header == "" {
			return fmt.Errorf("consumer.dedupe.header is required when consumer.dedupe.enabled=true")
		}
		if ttl, err := time.ParseDuration(dd.TTL); err != nil || ttl <= 0 {
			return fmt.Errorf("invalid consumer.dedupe.ttl: %q", dd.TTL)
		}
		if _, err := time.ParseDuration(dd.CleanupInterval); err != nil {
			return fmt.Errorf("invalid consumer.dedupe.cleanup_interval: %q", dd.CleanupInterval)
		}
	}

	return nil
}

// ValidateConsumer checks the settings the Kafka consumer cannot run without.
func (cfg *Config) ValidateConsumer() error {
	if len(cfg.Consumer.Kafka.Brokers) == 0 {
		return fmt.Errorf("consumer.kafka.brokers is required")
	}
	if cfg.Consumer.Kafka.Topic == "" {
		return fmt.Errorf("consumer.kafka.topic is required")
	}
	return nil
}

// ParseAssignments parses "name=value" pairs as given on the command line.
func ParseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q (want name=value)", pair)
		}
		out[name] = value
	}
	return out, nil
}
