// Package config handles loading and hot-reloading pdfdeck configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Config is the full pdfdeck configuration tree.
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Batch    BatchConfig    `mapstructure:"batch" yaml:"batch"`
	Render   RenderConfig   `mapstructure:"render" yaml:"render"`
	Merge    MergeConfig    `mapstructure:"merge" yaml:"merge"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// AnalysisConfig controls the background analysis scheduler.
type AnalysisConfig struct {
	// Concurrency is the admission token ceiling across both task kinds.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// CacheCapacity bounds the thumbnail cache entry count.
	CacheCapacity int `mapstructure:"cache_capacity" yaml:"cache_capacity"`

	// CacheKeyPolicy is "path" or "mtime" (path salted with modification time).
	CacheKeyPolicy string `mapstructure:"cache_key_policy" yaml:"cache_key_policy"`

	// CancelGraceMS is the per-task cooperative shutdown grace period.
	CancelGraceMS int `mapstructure:"cancel_grace_ms" yaml:"cancel_grace_ms"`
}

// CancelGrace returns the per-task shutdown grace period as a duration.
func (c AnalysisConfig) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceMS) * time.Millisecond
}

// BatchConfig controls the debounced batch queue.
type BatchConfig struct {
	DebounceMS   int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	DrainMS      int `mapstructure:"drain_ms" yaml:"drain_ms"`
	BackoffMS    int `mapstructure:"backoff_ms" yaml:"backoff_ms"`
	ChunkDelayMS int `mapstructure:"chunk_delay_ms" yaml:"chunk_delay_ms"`
	ChunkSize    int `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// Debounce returns the quiet period armed on every addition.
func (c BatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Drain returns the delay between drains while paths remain pending.
func (c BatchConfig) Drain() time.Duration {
	return time.Duration(c.DrainMS) * time.Millisecond
}

// Backoff returns the retry delay used when the scheduler has no capacity.
func (c BatchConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMS) * time.Millisecond
}

// ChunkDelay returns the delay before a large batch's remainder is appended.
func (c BatchConfig) ChunkDelay() time.Duration {
	return time.Duration(c.ChunkDelayMS) * time.Millisecond
}

// RenderConfig controls rasterization resolutions.
type RenderConfig struct {
	ThumbnailDPI int `mapstructure:"thumbnail_dpi" yaml:"thumbnail_dpi"`
	PreviewDPI   int `mapstructure:"preview_dpi" yaml:"preview_dpi"`
	PreviewPages int `mapstructure:"preview_pages" yaml:"preview_pages"`
}

// MergeConfig controls merge output.
type MergeConfig struct {
	OutputName string `mapstructure:"output_name" yaml:"output_name"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	for key, value := range Defaults() {
		viper.SetDefault(key, value)
	}

	// Environment variables with PDFDECK_ prefix
	viper.SetEnvPrefix("PDFDECK")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/pdfdeck")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# pdfdeck configuration
# Delays are in milliseconds. Resolutions are in DPI.
# Any key can be overridden with a PDFDECK_-prefixed environment variable.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
