package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the client-side settings for the sync engine
type Config struct {
	ServerURL string `yaml:"server_url"`
	APIToken  string `yaml:"api_token"`
	CacheDir  string `yaml:"cache_dir"`
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".chatsync", "config.yaml"), nil
}

// LoadConfig reads a YAML config file, filling defaults for missing
// fields. A missing file yields the defaults, not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		ServerURL: "http://localhost:8000",
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return applyConfigDefaults(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return applyConfigDefaults(cfg)
}

func applyConfigDefaults(cfg *Config) (*Config, error) {
	if cfg.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.CacheDir = filepath.Join(home, ".chatsync")
	}
	return cfg, nil
}

// TranscriptDBPath returns the transcript database location
func (c *Config) TranscriptDBPath() string {
	return filepath.Join(c.CacheDir, "transcripts.db")
}

// SessionIndexPath returns the durable session list snapshot location
func (c *Config) SessionIndexPath() string {
	return filepath.Join(c.CacheDir, "sessions.yaml")
}
