package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/audiopcb/veritas/internal/tracker"
)

// Config captures the settings required to boot the veritas engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Rules     RulesConfig     `yaml:"rules"`
	Tracker   tracker.Policy  `yaml:"tracker"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	Mode            string        `yaml:"mode"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StorageConfig controls the durable effectiveness store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls rule-pack loading at boot.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// OptimizerConfig bounds the optimizer's in-memory history.
type OptimizerConfig struct {
	HistoryLimit int `yaml:"historyLimit"`
}

// CacheConfig controls the in-memory summary cache. A zero TTL disables it.
type CacheConfig struct {
	SummaryTTL time.Duration `yaml:"summaryTTL"`
}

// Load initialises Config from a YAML file and optional environment
// overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VERITAS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			MetricsAddress:  ":2112",
			Mode:            "release",
			GracefulTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{Path: "data/veritas.db"},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Tracker: tracker.DefaultPolicy(),
		Optimizer: OptimizerConfig{
			HistoryLimit: 500,
		},
		Cache: CacheConfig{SummaryTTL: 0},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VERITAS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("VERITAS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("VERITAS_SERVER_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("VERITAS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("VERITAS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VERITAS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("VERITAS_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("VERITAS_OPTIMIZER_HISTORY_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Optimizer.HistoryLimit = limit
		}
	}
	if v := os.Getenv("VERITAS_CACHE_SUMMARY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SummaryTTL = d
		}
	}
	if v := os.Getenv("VERITAS_TRACKER_MIN_VALIDATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracker.MinValidationSample = n
		}
	}
	if v := os.Getenv("VERITAS_TRACKER_MIN_FEEDBACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracker.MinFeedbackSample = n
		}
	}
}
