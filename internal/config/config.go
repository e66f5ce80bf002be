// Package config loads process configuration from a YAML file and
// GATELOG_* environment variables. Environment values win over the
// file; both win over the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SheetsConfig holds the remote spreadsheet backend coordinates.
type SheetsConfig struct {
	SpreadsheetID string   `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	APIKey        string   `mapstructure:"api_key" yaml:"api_key"`
	Token         string   `mapstructure:"token" yaml:"token"`
	ScriptURL     string   `mapstructure:"script_url" yaml:"script_url"`
	BaseURL       string   `mapstructure:"base_url" yaml:"base_url,omitempty"`
	EntrySheets   []string `mapstructure:"entry_sheets" yaml:"entry_sheets,omitempty"`
	PeopleSheet   string   `mapstructure:"people_sheet" yaml:"people_sheet,omitempty"`
}

// Config is the full process configuration.
type Config struct {
	// DBPath is the local store location.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// ScanDir is the scanner drop directory watched in serve mode.
	ScanDir string `mapstructure:"scan_dir" yaml:"scan_dir"`

	// SpoolFile captures undeliverable rows for operator replay.
	SpoolFile string `mapstructure:"spool_file" yaml:"spool_file"`

	// LogFile is the rotated log sink. Empty means stderr only.
	LogFile string `mapstructure:"log_file" yaml:"log_file,omitempty"`

	// StatusAddr is the status server listen address.
	StatusAddr string `mapstructure:"status_addr" yaml:"status_addr"`

	// StartOnline is the connectivity assumption at process start.
	StartOnline bool `mapstructure:"start_online" yaml:"start_online"`

	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
	CallTimeout  time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`

	Sheets SheetsConfig `mapstructure:"sheets" yaml:"sheets"`
}

// Default returns the built-in configuration.
func Default() Config {
	base := dataDir()
	return Config{
		DBPath:       filepath.Join(base, "gatelog.db"),
		ScanDir:      filepath.Join(base, "scans"),
		SpoolFile:    filepath.Join(base, "spool.jsonl"),
		StatusAddr:   ":8423",
		StartOnline:  true,
		SyncInterval: 30 * time.Second,
		CallTimeout:  10 * time.Second,
	}
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gatelog"
	}
	return filepath.Join(home, ".gatelog")
}

// Load reads configuration. An explicit path must exist; otherwise the
// usual locations are searched and a missing file is fine.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GATELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("scan_dir", def.ScanDir)
	v.SetDefault("spool_file", def.SpoolFile)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("status_addr", def.StatusAddr)
	v.SetDefault("start_online", def.StartOnline)
	v.SetDefault("sync_interval", def.SyncInterval)
	v.SetDefault("call_timeout", def.CallTimeout)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("gatelog")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(dataDir()))
		v.AddConfigPath("/etc/gatelog")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the built-in configuration as a starter file.
// Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
