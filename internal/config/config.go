// Package config loads the tracker configuration from a TOML file.
// Missing files yield defaults; unknown keys produce warnings rather
// than errors so an embedding application never fails to start over a
// stale config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Engine  EngineConfig
	Sampler SamplerConfig
	Metrics MetricsConfig
}

type EngineConfig struct {
	PendingDelayMS int `toml:"pending_delay_ms"`
}

type SamplerConfig struct {
	IntervalMS           int `toml:"interval_ms"`
	ProgressRetention    int `toml:"progress_retention"`
	PerformanceRetention int `toml:"performance_retention"`
}

type MetricsConfig struct {
	// Listen is the address for the Prometheus /metrics endpoint.
	// Empty disables exposition.
	Listen string `toml:"listen"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

// DefaultConfig returns the built-in defaults used when no config file
// exists or a section is absent.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			PendingDelayMS: 100,
		},
		Sampler: SamplerConfig{
			IntervalMS:           1000,
			ProgressRetention:    120,
			PerformanceRetention: 120,
		},
		Metrics: MetricsConfig{
			Listen: "",
		},
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "devpulse", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(defaultConfigPath())
}

func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return &LoadResult{Config: cfg}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromString(string(data))
}

type tomlFile struct {
	Engine  *EngineConfig  `toml:"engine"`
	Sampler *SamplerConfig `toml:"sampler"`
	Metrics *MetricsConfig `toml:"metrics"`
}

func LoadFromString(data string) (*LoadResult, error) {
	cfg := DefaultConfig()
	result := &LoadResult{Config: cfg}

	if data == "" {
		return result, nil
	}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	knownTopLevel := map[string]bool{
		"engine":  true,
		"sampler": true,
		"metrics": true,
	}
	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	mergeFromRaw(&result.Config, &tf, raw)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}

	return result, nil
}

// mergeFromRaw applies only the keys actually present in the file, so
// explicit zero values are honored while absent keys keep defaults.
func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Engine != nil {
		if section, ok := rawSection(raw, "engine"); ok {
			if _, exists := section["pending_delay_ms"]; exists {
				cfg.Engine.PendingDelayMS = tf.Engine.PendingDelayMS
			}
		}
	}
	if tf.Sampler != nil {
		if section, ok := rawSection(raw, "sampler"); ok {
			if _, exists := section["interval_ms"]; exists {
				cfg.Sampler.IntervalMS = tf.Sampler.IntervalMS
			}
			if _, exists := section["progress_retention"]; exists {
				cfg.Sampler.ProgressRetention = tf.Sampler.ProgressRetention
			}
			if _, exists := section["performance_retention"]; exists {
				cfg.Sampler.PerformanceRetention = tf.Sampler.PerformanceRetention
			}
		}
	}
	if tf.Metrics != nil {
		if section, ok := rawSection(raw, "metrics"); ok {
			if _, exists := section["listen"]; exists {
				cfg.Metrics.Listen = tf.Metrics.Listen
			}
		}
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Engine.PendingDelayMS < 1 {
		errs = append(errs, fmt.Sprintf("engine pending_delay_ms must be positive, got %d", cfg.Engine.PendingDelayMS))
	}
	if cfg.Sampler.IntervalMS < 1 {
		errs = append(errs, fmt.Sprintf("sampler interval_ms must be positive, got %d", cfg.Sampler.IntervalMS))
	}
	if cfg.Sampler.ProgressRetention < 1 {
		errs = append(errs, fmt.Sprintf("sampler progress_retention must be positive, got %d", cfg.Sampler.ProgressRetention))
	}
	if cfg.Sampler.PerformanceRetention < 1 {
		errs = append(errs, fmt.Sprintf("sampler performance_retention must be positive, got %d", cfg.Sampler.PerformanceRetention))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
