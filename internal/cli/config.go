package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk CLI configuration, normally at
// ~/.config/homeconnect/config.yaml.
type Config struct {
	// ClientID is the application id from the Home Connect Developer Portal.
	ClientID string `yaml:"client_id"`

	// Simulator selects the simulator endpoint and its non-interactive
	// authorization.
	Simulator bool `yaml:"simulator,omitempty"`

	// Language is the Accept-Language tag for localized names.
	Language string `yaml:"language,omitempty"`

	// Scopes overrides the default authorization scopes.
	Scopes []string `yaml:"scopes,omitempty"`

	// AuthFile overrides where tokens are cached. Defaults to auth.yaml next
	// to the config file.
	AuthFile string `yaml:"auth_file,omitempty"`

	// LogLevel and LogFormat configure diagnostic output.
	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
}

// DefaultConfigPath returns the per-user config location.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "homeconnect", "config.yaml"), nil
}

// LoadConfig reads the configuration at path, applies environment
// overrides and validates the result. A missing file is fine when the
// environment supplies a client id.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && os.Getenv("HOMECONNECT_CLIENT_ID") != "":
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg.applyEnv()

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("config %s: client_id is required", path)
	}
	if cfg.AuthFile == "" {
		cfg.AuthFile = filepath.Join(filepath.Dir(path), "auth.yaml")
	}
	return &cfg, nil
}

// applyEnv lets the environment override file values, so CI and one-off
// runs need no config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("HOMECONNECT_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("HOMECONNECT_SIMULATOR"); v != "" {
		c.Simulator = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HOMECONNECT_LANGUAGE"); v != "" {
		c.Language = v
	}
	if v := os.Getenv("HOMECONNECT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
