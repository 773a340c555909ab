// Package config loads the waypoint.yaml file used by the CLI.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/waypoint/pkg/adapters/process"
	"gopkg.in/yaml.v3"
)

// DefaultPath is looked up in the working directory when --config is not given.
const DefaultPath = "waypoint.yaml"

// Environment overrides, applied after the file.
const (
	EnvStore         = "WAYPOINT_STORE"
	EnvRedisURL      = "WAYPOINT_REDIS_URL"
	EnvEncryptionKey = "WAYPOINT_ENCRYPTION_KEY"
	EnvLogLevel      = "WAYPOINT_LOG_LEVEL"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config models waypoint.yaml.
type Config struct {
	Log      LogConfig       `yaml:"log"`
	Server   ServerConfig    `yaml:"server"`
	Store    StoreConfig     `yaml:"store"`
	Lock     LockConfig      `yaml:"lock"`
	Redact   []string        `yaml:"redact"`
	Proposer *process.Config `yaml:"proposer,omitempty"`
	Tracing  TracingConfig   `yaml:"tracing"`
}

// LogConfig selects level and handler.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects where checkpoints live.
type StoreConfig struct {
	Kind       string           `yaml:"kind"`
	File       FileConfig       `yaml:"file"`
	Redis      RedisConfig      `yaml:"redis"`
	Encryption EncryptionConfig `yaml:"encryption"`
}

// FileConfig configures the JSON file store.
type FileConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig configures the Redis store and locker.
type RedisConfig struct {
	URL    string        `yaml:"url"`
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
}

// EncryptionConfig holds base64 encoded AES-256 keys.
type EncryptionConfig struct {
	Key          string   `yaml:"key"`
	FallbackKeys []string `yaml:"fallback_keys"`
}

// LockConfig configures cross-process locking.
type LockConfig struct {
	// Distributed enables the Redis locker. Requires store.kind redis.
	Distributed bool          `yaml:"distributed"`
	TTL         time.Duration `yaml:"ttl"`
}

// TracingConfig toggles OpenTelemetry span export to stderr.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{Addr: ":8000", ShutdownTimeout: 5 * time.Second},
		Store: StoreConfig{
			Kind:  StoreMemory,
			File:  FileConfig{Path: ".waypoint/threads"},
			Redis: RedisConfig{URL: "redis://localhost:6379/0", Prefix: "waypoint:"},
		},
		Lock: LockConfig{TTL: 30 * time.Second},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error when path is DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStore); v != "" {
		c.Store.Kind = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Store.Redis.URL = v
	}
	if v := os.Getenv(EnvEncryptionKey); v != "" {
		c.Store.Encryption.Key = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("store.kind: unknown store %q (want memory, file or redis)", c.Store.Kind)
	}
	if c.Store.Kind == StoreFile && c.Store.File.Path == "" {
		return errors.New("store.file.path is required for the file store")
	}
	if c.Store.Kind == StoreRedis && c.Store.Redis.URL == "" {
		return errors.New("store.redis.url is required for the redis store")
	}
	if c.Lock.Distributed && c.Store.Kind != StoreRedis {
		return errors.New("lock.distributed requires store.kind redis")
	}
	if c.Store.Encryption.Key != "" {
		if _, _, err := c.Store.Encryption.Keys(); err != nil {
			return err
		}
	}
	if c.Proposer != nil {
		if err := c.Proposer.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Keys decodes the active and fallback keys.
func (e EncryptionConfig) Keys() ([]byte, [][]byte, error) {
	active, err := decodeKey(e.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("store.encryption.key: %w", err)
	}
	fallbacks := make([][]byte, 0, len(e.FallbackKeys))
	for i, k := range e.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("store.encryption.fallback_keys[%d]: %w", i, err)
		}
		fallbacks = append(fallbacks, key)
	}
	return active, fallbacks, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("decoded key is %d bytes, want 32", len(key))
	}
	return key, nil
}
