// config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port string `yaml:"port"`
	// AdminToken guards /api/admin; the admin routes are not mounted without it.
	AdminToken string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // "mysql" (default) or "sqlite"
	DSN          string `yaml:"dsn"`    // optional, overrides the discrete mysql fields
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	Path         string `yaml:"path"` // sqlite file
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type ExportConfig struct {
	CsvURL             string  `yaml:"csv_url"`
	LandingPageURL     string  `yaml:"landing_page_url"`
	LinkSelector       string  `yaml:"link_selector"`
	LocalPath          string  `yaml:"local_path"`
	ThresholdMB        float64 `yaml:"threshold_mb"`
	DownloadTimeoutStr string  `yaml:"download_timeout"`
	DownloadTimeout    time.Duration // Parsed duration
}

type FallbackConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ImportIntervalStr string `yaml:"import_interval"`
	ImportInterval    time.Duration // Parsed duration
}

type SDNAPIConfig struct {
	URL        string `yaml:"url"`
	Key        string `yaml:"key"`
	Lists      string `yaml:"lists"`
	TimeoutStr string `yaml:"timeout"`
	Timeout    time.Duration // Parsed duration
}

type HeartbeatConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Name   string `yaml:"name"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Production bool   `yaml:"production"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Export    ExportConfig    `yaml:"export"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	SDNAPI    SDNAPIConfig    `yaml:"sdn_api"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Logging   LoggingConfig   `yaml:"logging"`
}

var AppConfig Config

// Environment variables that override secrets from the YAML file.
const (
	EnvDBPassword      = "SANCTIONS_DB_PASSWORD"
	EnvDBDSN           = "SANCTIONS_DB_DSN"
	EnvSDNAPIKey       = "SANCTIONS_SDN_API_KEY"
	EnvHeartbeatAPIKey = "SANCTIONS_HEARTBEAT_API_KEY"
	EnvAdminToken      = "SANCTIONS_ADMIN_TOKEN"
)

// DefaultConfigPaths are tried in order when no path is given.
var DefaultConfigPaths = []string{
	"config/config.yaml",
	"config.yaml",
	"/etc/sanctions/config.yaml",
}

// LoadConfig reads the YAML configuration into AppConfig. A .env file in the
// working directory, if present, is loaded first so its values can override
// secrets.
func LoadConfig(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	AppConfig = *cfg
	return nil
}

// Load reads and validates a configuration without touching AppConfig.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath == "" {
		for _, p := range DefaultConfigPaths {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("config.yaml not found in standard locations %v", DefaultConfigPaths)
		}
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(file)
}

// Parse decodes YAML, applies environment overrides and defaults, and parses
// durations.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	var err error
	if cfg.Export.DownloadTimeout, err = parseDuration(cfg.Export.DownloadTimeoutStr, 60*time.Second); err != nil {
		return nil, fmt.Errorf("failed to parse export.download_timeout: %w", err)
	}
	if cfg.Fallback.ImportInterval, err = parseDuration(cfg.Fallback.ImportIntervalStr, 15*time.Minute); err != nil {
		return nil, fmt.Errorf("failed to parse fallback.import_interval: %w", err)
	}
	if cfg.SDNAPI.Timeout, err = parseDuration(cfg.SDNAPI.TimeoutStr, 5*time.Second); err != nil {
		return nil, fmt.Errorf("failed to parse sdn_api.timeout: %w", err)
	}

	if cfg.Export.LocalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Export.LocalPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for export CSV: %w", err)
		}
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPassword); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv(EnvDBDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvSDNAPIKey); v != "" {
		cfg.SDNAPI.Key = v
	}
	if v := os.Getenv(EnvHeartbeatAPIKey); v != "" {
		cfg.Heartbeat.APIKey = v
	}
	if v := os.Getenv(EnvAdminToken); v != "" {
		cfg.Server.AdminToken = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if cfg.Export.ThresholdMB == 0 {
		cfg.Export.ThresholdMB = 3 // the export is normally > 4 MB
	}
	if cfg.Export.LinkSelector == "" {
		cfg.Export.LinkSelector = `a[href$=".csv"]`
	}
	if cfg.SDNAPI.Lists == "" {
		cfg.SDNAPI.Lists = "ISN,SDN"
	}
	if cfg.Heartbeat.APIURL == "" {
		cfg.Heartbeat.APIURL = "https://api.opsgenie.com"
	}
	if cfg.Heartbeat.Name == "" {
		cfg.Heartbeat.Name = "sanctions-sdn-fallback-job"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
