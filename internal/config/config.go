package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the lcsearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Datasets  DatasetsConfig  `yaml:"datasets"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys       []string `yaml:"api_keys"`
	SessionSecret string   `yaml:"session_secret"`
	RateRPS       float64  `yaml:"rate_rps"`
	RateBurst     int      `yaml:"rate_burst"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CatalogConfig holds catalog database settings.
type CatalogConfig struct {
	Path          string `yaml:"path"`           // sqlite catalog file
	LightCurveDir string `yaml:"lightcurve_dir"` // per-collection curve files live under <dir>/<collection>/
}

// DatasetsConfig holds dataset store and artifact settings.
type DatasetsConfig struct {
	DBPath        string `yaml:"db_path"`        // sqlite dataset store file
	Dir           string `yaml:"dir"`            // artifact root directory
	PreviewRows   int    `yaml:"preview_rows"`   // rows kept in preview.json
	BundleCeiling int    `yaml:"bundle_ceiling"` // skip light-curve bundles above this row count
}

// SchedulerConfig holds execution scheduler settings.
type SchedulerConfig struct {
	Workers       int `yaml:"workers"`
	SyncBudgetSec int `yaml:"sync_budget_sec"`
}

// ResolverConfig holds name resolver settings.
type ResolverConfig struct {
	BaseURL    string   `yaml:"base_url"` // empty disables name resolution
	TimeoutSec int      `yaml:"timeout_sec"`
	CacheAddrs []string `yaml:"cache_addrs"` // redis/valkey addrs; empty = no cache
	CachePass  string   `yaml:"cache_password"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// streamed search responses can outlive a short write window
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Datasets.Dir == "" {
		c.Datasets.Dir = "datasets"
	}
	if c.Datasets.DBPath == "" {
		c.Datasets.DBPath = filepath.Join(c.Datasets.Dir, "datasets.db")
	}
	if c.Datasets.PreviewRows <= 0 {
		c.Datasets.PreviewRows = 1000
	}
	if c.Datasets.BundleCeiling <= 0 {
		c.Datasets.BundleCeiling = 20000
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = 4
	}
	if c.Scheduler.SyncBudgetSec <= 0 {
		c.Scheduler.SyncBudgetSec = 30
	}
	if c.Resolver.TimeoutSec <= 0 {
		c.Resolver.TimeoutSec = 10
	}
	if c.Auth.RateRPS <= 0 {
		c.Auth.RateRPS = 10
	}
	if c.Auth.RateBurst <= 0 {
		c.Auth.RateBurst = 20
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Resolver.TimeoutSec > 10 {
		return fmt.Errorf("resolver.timeout_sec must not exceed 10, got %d", c.Resolver.TimeoutSec)
	}
	if len(c.Auth.APIKeys) > 0 && c.Auth.SessionSecret == "" {
		return fmt.Errorf("auth.session_secret is required when api_keys are set")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
