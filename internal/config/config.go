// Package config holds the service configuration. Every setting has a
// compiled-in default, so the server runs without any configuration file;
// an optional YAML file overrides individual fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Dimension    int    `yaml:"dimension"`
	DistanceType string `yaml:"distanceType"` // "l2" or "ip"

	HNSW struct {
		M  int `yaml:"m"`
		EF int `yaml:"ef"`
	} `yaml:"hnsw"`

	Storage struct {
		ScalarPath  string `yaml:"scalarPath"`
		WALPath     string `yaml:"walPath"`
		CursorPath  string `yaml:"cursorPath"`
		SnapshotDir string `yaml:"snapshotDir"`
		Compression string `yaml:"compression"` // "none", "zstd" or "lz4"
	} `yaml:"storage"`

	Log struct {
		Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
		Format string `yaml:"format"` // "text" or "json"
	} `yaml:"log"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`   // 0 disables rate limiting
		Burst int     `yaml:"burst"` //
	} `yaml:"rateLimit"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	cfg := &Config{
		Host:         "localhost",
		Port:         9729,
		Dimension:    3,
		DistanceType: "l2",
	}

	cfg.HNSW.M = 8
	cfg.HNSW.EF = 200

	cfg.Storage.ScalarPath = "ScalarStorage"
	cfg.Storage.WALPath = filepath.Join("WALLogStorage", "WALLog")
	cfg.Storage.CursorPath = "lastSnapshotID"
	cfg.Storage.SnapshotDir = "snapshots"
	cfg.Storage.Compression = "none"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	cfg.RateLimit.RPS = 0
	cfg.RateLimit.Burst = 0

	return cfg
}

// Load reads a YAML file over the defaults. A missing file returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
