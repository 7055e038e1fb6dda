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
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Trust   TrustConfig   `yaml:"trust" envconfig:"TRUST"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains the local HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// TrustConfig contains session signing and server-time settings.
//
// SessionSecret has no default on purpose: shipping a literal fallback secret
// in source would defeat tamper detection for every installation at once.
// The secret is injected at deploy time and Load fails without it.
type TrustConfig struct {
	SessionSecret    string        `yaml:"session_secret" envconfig:"SESSION_SECRET"`
	SessionDuration  time.Duration `yaml:"session_duration" envconfig:"SESSION_DURATION" default:"24h"`
	RefreshWindow    time.Duration `yaml:"refresh_window" envconfig:"REFRESH_WINDOW" default:"1h"`
	TimeEndpoint     string        `yaml:"time_endpoint" envconfig:"TIME_ENDPOINT" default:"https://api.invodesk.app/api/time"`
	TimeTimeout      time.Duration `yaml:"time_timeout" envconfig:"TIME_TIMEOUT" default:"2s"`
	TimeCacheTTL     time.Duration `yaml:"time_cache_ttl" envconfig:"TIME_CACHE_TTL" default:"30s"`
	ValidateEndpoint string        `yaml:"validate_endpoint" envconfig:"VALIDATE_ENDPOINT" default:"https://api.invodesk.app/api/auth/validate-session"`
	ValidateTimeout  time.Duration `yaml:"validate_timeout" envconfig:"VALIDATE_TIMEOUT" default:"3s"`
}

// LicenseConfig contains license activation and storage settings.
// EncryptionKey follows the same no-default rule as TrustConfig.SessionSecret.
type LicenseConfig struct {
	EncryptionKey      string        `yaml:"encryption_key" envconfig:"ENCRYPTION_KEY"`
	StoreTimeout       time.Duration `yaml:"store_timeout" envconfig:"STORE_TIMEOUT" default:"2s"`
	FingerprintTimeout time.Duration `yaml:"fingerprint_timeout" envconfig:"FINGERPRINT_TIMEOUT" default:"3s"`
	AuthorityTimeout   time.Duration `yaml:"authority_timeout" envconfig:"AUTHORITY_TIMEOUT" default:"3s"`
	ActivationRPS      float64       `yaml:"activation_rps" envconfig:"ACTIVATION_RPS" default:"0.2"`
	ActivationBurst    int           `yaml:"activation_burst" envconfig:"ACTIVATION_BURST" default:"5"`
	SheetID            string        `yaml:"sheet_id" envconfig:"SHEET_ID"`
	SheetName          string        `yaml:"sheet_name" envconfig:"SHEET_NAME" default:"Licenses"`
	CredentialsFile    string        `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE" default:"credentials.json"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir  string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	LogsDir  string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
	SeedFile string `yaml:"seed_file" envconfig:"SEED_FILE" default:"device.seed"`
}

// Load loads configuration from an optional config.yaml overlaid by
// environment variables, environment taking precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := findConfigFile(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("INVODESK", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks the configuration for values that cannot be defaulted
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Trust.SessionSecret == "" {
		return fmt.Errorf("trust.session_secret is required: set INVODESK_TRUST_SESSION_SECRET")
	}
	if len(c.Trust.SessionSecret) < 16 {
		return fmt.Errorf("trust.session_secret must be at least 16 bytes")
	}
	if c.License.EncryptionKey == "" {
		return fmt.Errorf("license.encryption_key is required: set INVODESK_LICENSE_ENCRYPTION_KEY")
	}
	if len(c.License.EncryptionKey) < 16 {
		return fmt.Errorf("license.encryption_key must be at least 16 bytes")
	}
	if c.Trust.SessionDuration <= 0 {
		return fmt.Errorf("trust.session_duration must be positive")
	}
	if c.Trust.RefreshWindow <= 0 || c.Trust.RefreshWindow >= c.Trust.SessionDuration {
		return fmt.Errorf("trust.refresh_window must be positive and below session_duration")
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}
	return nil
}

// findConfigFile returns the path to the config file, if one exists
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns the default configuration. Secrets are intentionally left
// empty; callers must inject them before the config passes validation.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Trust: TrustConfig{
			SessionDuration:  24 * time.Hour,
			RefreshWindow:    time.Hour,
			TimeEndpoint:     "https://api.invodesk.app/api/time",
			TimeTimeout:      2 * time.Second,
			TimeCacheTTL:     30 * time.Second,
			ValidateEndpoint: "https://api.invodesk.app/api/auth/validate-session",
			ValidateTimeout:  3 * time.Second,
		},
		License: LicenseConfig{
			StoreTimeout:       2 * time.Second,
			FingerprintTimeout: 3 * time.Second,
			AuthorityTimeout:   3 * time.Second,
			ActivationRPS:      0.2,
			ActivationBurst:    5,
			SheetName:          "Licenses",
			CredentialsFile:    "credentials.json",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Paths: PathsConfig{
			DataDir:  "data",
			LogsDir:  "logs",
			SeedFile: "device.seed",
		},
	}
}
