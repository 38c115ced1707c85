// Package config loads the server settings, seed datasets, and the access
// rule tree from YAML files. All of it is read once at startup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/playbase/playbase/internal/storage"
)

// Config holds the server settings.
type Config struct {
	Server struct {
		Addr          string `yaml:"addr"`
		Secret        string `yaml:"secret"`
		IdentityField string `yaml:"identity_field"`
		RateLimit     int    `yaml:"rate_limit"`
		RateBurst     int    `yaml:"rate_burst"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":3030"
	cfg.Server.Secret = "This is not a production server"
	cfg.Server.IdentityField = "email"
	cfg.Server.RateLimit = 100
	cfg.Server.RateBurst = 200
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads the settings file. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Server.Secret == "" {
		return nil, fmt.Errorf("server.secret must not be empty")
	}
	return cfg, nil
}

// Seed is the shape of a seed-data file: collection name, then record ID,
// then the record itself.
type Seed map[string]map[string]storage.Record

// LoadSeed reads a seed dataset. A missing file yields an empty seed, so
// the server can start bare.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Seed{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed data: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	return seed, nil
}

// LoadRules reads the raw rule tree. A missing file yields nil, which means
// built-in defaults only.
func LoadRules(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rule tree: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse rule tree: %w", err)
	}
	return tree, nil
}

// LoadTree reads a schemaless tree for the jsonstore service.
func LoadTree(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read jsonstore data: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse jsonstore data: %w", err)
	}
	return tree, nil
}
