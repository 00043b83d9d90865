// Package appconfig manages the embedder-tunable settings the redirection
// manager needs but the spec leaves to the embedder: which SSH config
// files to resolve aliases against, where the ssh and rule-driver binaries
// live, and the reaper/keepalive intervals.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RuleDriverConfig names the binary the Rule Driver invokes. Table and
// Chain are loaded and defaulted, but the iptables Rule Driver does not
// read them: its rules always go to the nat table's OUTPUT chain.
type RuleDriverConfig struct {
	Binary string `yaml:"binary"`
	Table  string `yaml:"table"`
	Chain  string `yaml:"chain"`
}

// Config holds application-level configuration for an embedder of the
// redirection manager.
type Config struct {
	// ConfigFiles is the ordered list of SSH config files the Config
	// Resolver walks, first-write-wins.
	ConfigFiles []string `yaml:"config_files"`
	// SSHBinary is the ssh client executable the Connection Supervisor
	// invokes.
	SSHBinary string `yaml:"ssh_binary"`
	// RuleDriver configures the Rule Driver's binary.
	RuleDriver RuleDriverConfig `yaml:"rule_driver"`
	// ReaperIntervalSeconds is how often the periodic reaper scans the
	// Registry for dead children.
	ReaperIntervalSeconds int `yaml:"reaper_interval_seconds"`
	// KeepAliveSeconds is the ServerAliveInterval passed to ssh.
	KeepAliveSeconds int `yaml:"keepalive_seconds"`
}

// Default returns the default configuration: the user's own SSH config,
// then the system-wide one, "ssh" and "iptables" resolved via PATH, the
// nat table's OUTPUT chain, a one-second reaper tick, and a five-minute
// keepalive.
func Default() Config {
	home, _ := os.UserHomeDir()
	var userConfig string
	if home != "" {
		userConfig = filepath.Join(home, ".ssh", "config")
	}
	return Config{
		ConfigFiles: []string{userConfig, "/etc/ssh/ssh_config"},
		SSHBinary:   "ssh",
		RuleDriver: RuleDriverConfig{
			Binary: "iptables",
			Table:  "nat",
			Chain:  "OUTPUT",
		},
		ReaperIntervalSeconds: 1,
		KeepAliveSeconds:      300,
	}
}

// ReaperInterval returns cfg's reaper tick as a time.Duration.
func (c Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSeconds) * time.Second
}

// KeepAlive returns cfg's keepalive as a time.Duration.
func (c Config) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// ConfigDir returns the application config directory path, using
// XDG_CONFIG_HOME if set, otherwise ~/.config/redirtun.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "redirtun"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "redirtun"), nil
}

// Load reads config.yaml from the config directory, creating it with
// defaults on first run, and fills in any zero-valued field left unset by
// a partial file.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if len(cfg.ConfigFiles) == 0 {
		cfg.ConfigFiles = def.ConfigFiles
	}
	if cfg.SSHBinary == "" {
		cfg.SSHBinary = def.SSHBinary
	}
	if cfg.RuleDriver.Binary == "" {
		cfg.RuleDriver.Binary = def.RuleDriver.Binary
	}
	if cfg.RuleDriver.Table == "" {
		cfg.RuleDriver.Table = def.RuleDriver.Table
	}
	if cfg.RuleDriver.Chain == "" {
		cfg.RuleDriver.Chain = def.RuleDriver.Chain
	}
	if cfg.ReaperIntervalSeconds <= 0 {
		cfg.ReaperIntervalSeconds = def.ReaperIntervalSeconds
	}
	if cfg.KeepAliveSeconds <= 0 {
		cfg.KeepAliveSeconds = def.KeepAliveSeconds
	}
}

// Save writes cfg to config.yaml in the config directory.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
