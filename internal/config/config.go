// Package config handles the global ~/.beacon/config.toml plus environment
// overrides.
package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

// Config is the daemon configuration. File values come from config.toml;
// BEACON_* environment variables override them.
type Config struct {
	DefaultSession string `toml:"default_session" env:"BEACON_SESSION"`

	Mesh     MeshConfig     `toml:"mesh"`
	Classify ClassifyConfig `toml:"classify"`
}

// MeshConfig configures the dep2p transport binding.
type MeshConfig struct {
	ListenPort     int      `toml:"listen_port" env:"BEACON_MESH_PORT"`
	RealmKey       string   `toml:"realm_key" env:"BEACON_REALM_KEY"`
	Topic          string   `toml:"topic" env:"BEACON_TOPIC"`
	BootstrapPeers []string `toml:"bootstrap_peers" env:"BEACON_BOOTSTRAP_PEERS"`
}

// ClassifyConfig extends the emergency keyword set. The built-in set always
// applies; these are additions only.
type ClassifyConfig struct {
	ExtraKeywords []string `toml:"extra_keywords" env:"BEACON_EXTRA_KEYWORDS"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Mesh: MeshConfig{
			ListenPort: 4001,
			RealmKey:   "beacon-default-realm",
			Topic:      "beacon/messages",
		},
	}
}

// Load reads config from path. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults (still
// honoring environment overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	cfg = Default()
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
