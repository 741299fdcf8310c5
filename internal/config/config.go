package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user configuration directory under $HOME.
const DirName = ".clinicpulse"

// Global configuration structure.
type Global struct {
	WorkspacesDir string `mapstructure:"workspaces_dir" yaml:"workspaces_dir"`
	Timezone      string `mapstructure:"timezone" yaml:"timezone"`

	// Lag windows for the correlation sweeps and the distributed-lag fit
	HourlyMaxLag int `mapstructure:"hourly_max_lag" yaml:"hourly_max_lag"`
	DailyMaxLag  int `mapstructure:"daily_max_lag" yaml:"daily_max_lag"`

	// Patient identity and segment overrides
	IdentityFields   []string          `mapstructure:"identity_fields" yaml:"identity_fields"`
	CategorySegments map[string]string `mapstructure:"category_segments" yaml:"category_segments,omitempty"`

	Encoding  string `mapstructure:"encoding" yaml:"encoding"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Location resolves Timezone, falling back to UTC when it is empty.
func (c *Global) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.clinicpulse/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := homeDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CLINICPULSE")
	v.AutomaticEnv()

	v.SetDefault("timezone", "Asia/Tokyo")
	v.SetDefault("hourly_max_lag", 6)
	v.SetDefault("daily_max_lag", 7)
	v.SetDefault("identity_fields", []string{"name"})
	v.SetDefault("category_segments", map[string]string{})
	v.SetDefault("encoding", "auto")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	dir, err := homeDir()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// env values arrive as one string
	if len(c.IdentityFields) == 1 && strings.Contains(c.IdentityFields[0], ",") {
		c.IdentityFields = strings.Split(c.IdentityFields[0], ",")
	}
	if c.WorkspacesDir == "" {
		c.WorkspacesDir = filepath.Join(dir, "workspaces")
	}
	if c.HourlyMaxLag < 0 || c.DailyMaxLag < 0 {
		return nil, fmt.Errorf("lag windows must be non-negative (hourly %d, daily %d)", c.HourlyMaxLag, c.DailyMaxLag)
	}
	return &c, nil
}
