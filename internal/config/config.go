package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Analysis AnalysisConfig `yaml:"analysis" envconfig:"ANALYSIS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"2m"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"true"`
}

// AnalysisConfig contains analysis engine tunables
type AnalysisConfig struct {
	HeaderScanRows   int           `yaml:"header_scan_rows" envconfig:"HEADER_SCAN_ROWS" default:"10"`
	MinPeriodCells   int           `yaml:"min_period_cells" envconfig:"MIN_PERIOD_CELLS" default:"3"`
	EmptyRowStop     int           `yaml:"empty_row_stop" envconfig:"EMPTY_ROW_STOP" default:"10"`
	FuzzyThreshold   float64       `yaml:"fuzzy_threshold" envconfig:"FUZZY_THRESHOLD" default:"0.80"`
	MaxGraphDepth    int           `yaml:"max_graph_depth" envconfig:"MAX_GRAPH_DEPTH" default:"64"`
	RangeExpandLimit int           `yaml:"range_expand_limit" envconfig:"RANGE_EXPAND_LIMIT" default:"256"`
	DrillDownTimeout time.Duration `yaml:"drilldown_timeout" envconfig:"DRILLDOWN_TIMEOUT" default:"5s"`
	SessionTTL       time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL" default:"2h"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("FMA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := getConfigFilePath()
	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Server.ReadTimeout == 0 {
		envConfig.Server.ReadTimeout = fileConfig.Server.ReadTimeout
	}
	if envConfig.Server.WriteTimeout == 0 {
		envConfig.Server.WriteTimeout = fileConfig.Server.WriteTimeout
	}
	if envConfig.Server.RequestTimeout == 0 {
		envConfig.Server.RequestTimeout = fileConfig.Server.RequestTimeout
	}
	if envConfig.Logging.Level == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if envConfig.Logging.FilePath == "" {
		envConfig.Logging.FilePath = fileConfig.Logging.FilePath
	}
	if envConfig.Analysis.HeaderScanRows == 0 {
		envConfig.Analysis.HeaderScanRows = fileConfig.Analysis.HeaderScanRows
	}
	if envConfig.Analysis.MinPeriodCells == 0 {
		envConfig.Analysis.MinPeriodCells = fileConfig.Analysis.MinPeriodCells
	}
	if envConfig.Analysis.EmptyRowStop == 0 {
		envConfig.Analysis.EmptyRowStop = fileConfig.Analysis.EmptyRowStop
	}
	if envConfig.Analysis.FuzzyThreshold == 0 {
		envConfig.Analysis.FuzzyThreshold = fileConfig.Analysis.FuzzyThreshold
	}
	if envConfig.Analysis.MaxGraphDepth == 0 {
		envConfig.Analysis.MaxGraphDepth = fileConfig.Analysis.MaxGraphDepth
	}
	if envConfig.Analysis.RangeExpandLimit == 0 {
		envConfig.Analysis.RangeExpandLimit = fileConfig.Analysis.RangeExpandLimit
	}
	if envConfig.Analysis.DrillDownTimeout == 0 {
		envConfig.Analysis.DrillDownTimeout = fileConfig.Analysis.DrillDownTimeout
	}
	if envConfig.Analysis.SessionTTL == 0 {
		envConfig.Analysis.SessionTTL = fileConfig.Analysis.SessionTTL
	}
	return envConfig
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	if c.Analysis.FuzzyThreshold < 0 || c.Analysis.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold must be in [0, 1], got %g", c.Analysis.FuzzyThreshold)
	}

	if c.Analysis.MinPeriodCells < 1 {
		return fmt.Errorf("min period cells must be at least 1")
	}

	if c.Analysis.MaxGraphDepth < 1 {
		return fmt.Errorf("max graph depth must be at least 1")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}
