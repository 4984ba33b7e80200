// Package config provides YAML-based configuration management with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up beside the executable.
const DefaultFileName = "metascrub.yaml"

// AppConfig represents the root configuration structure
type AppConfig struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Processing configuration
	Processing ProcessingConfig `yaml:"processing"`

	// Advanced options
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port" env:"PORT" env-default:"8080" validate:"min=1,max=65535"`
	BindAddress  string `yaml:"bind_address" env:"BIND_ADDRESS" env-default:"0.0.0.0" validate:"required"`
	EnableCORS   bool   `yaml:"enable_cors" env:"ENABLE_CORS"`
	AllowOrigins string `yaml:"allow_origins" env:"ALLOW_ORIGINS" env-default:"*"`
	ReadTimeout  int    `yaml:"read_timeout_seconds" env:"READ_TIMEOUT" env-default:"60" validate:"min=0"`
	WriteTimeout int    `yaml:"write_timeout_seconds" env:"WRITE_TIMEOUT" env-default:"60" validate:"min=0"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds" env:"IDLE_TIMEOUT" env-default:"120" validate:"min=0"`
	BodyLimit    string `yaml:"body_limit" env:"BODY_LIMIT" env-default:"100M" validate:"required"`
}

// StorageConfig contains file storage settings. Relative upload, cleaned and
// temp directories live under the data directory.
type StorageConfig struct {
	DataDirectory        string `yaml:"data_dir" env:"DATA_DIR" env-default:"." validate:"required"`
	UploadsDirectory     string `yaml:"uploads_dir" env:"UPLOADS_DIR" env-default:"uploads" validate:"required"`
	CleanedDirectory     string `yaml:"cleaned_dir" env:"CLEANED_DIR" env-default:"cleaned" validate:"required"`
	TempDirectory        string `yaml:"temp_dir" env:"TEMP_DIR" env-default:"tmp" validate:"required"`
	RetentionMinutes     int    `yaml:"retention_minutes" env:"RETENTION_MINUTES" validate:"min=0"`
	SweepIntervalMinutes int    `yaml:"sweep_interval_minutes" env:"SWEEP_INTERVAL_MINUTES" env-default:"5" validate:"min=1"`
}

// ProcessingConfig contains metadata processing settings
type ProcessingConfig struct {
	JPEGQuality int  `yaml:"jpeg_quality" env:"JPEG_QUALITY" env-default:"95" validate:"min=1,max=100"`
	AutoOrient  bool `yaml:"auto_orient" env:"AUTO_ORIENT"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error off"`
	EnableRequestLogging bool   `yaml:"enable_request_logging" env:"ENABLE_REQUEST_LOGGING"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8080,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  60,
			WriteTimeout: 60,
			IdleTimeout:  120,
			BodyLimit:    "100M",
		},
		Storage: StorageConfig{
			DataDirectory:        ".",
			UploadsDirectory:     "uploads",
			CleanedDirectory:     "cleaned",
			TempDirectory:        "tmp",
			RetentionMinutes:     0,
			SweepIntervalMinutes: 5,
		},
		Processing: ProcessingConfig{
			JPEGQuality: 95,
			AutoOrient:  true,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// DefaultPath returns the config path beside the running executable.
func DefaultPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(filepath.Dir(exePath), DefaultFileName)
}

// LoadConfig loads configuration from a YAML file, creating it with defaults
// when missing. Environment variables override file values.
func LoadConfig(configPath string) (*AppConfig, error) {
	configPath, err := homedir.Expand(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := DefaultConfig().Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	// Missing keys keep the defaults; booleans carry no env-default so an
	// explicit false in the file survives.
	config := DefaultConfig()
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := config.resolvePaths(filepath.Dir(configPath)); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks field constraints.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	header := []byte("# metascrub configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// resolvePaths expands ~ and converts relative paths to absolute. The data
// directory is relative to the config file; the others to the data directory.
func (c *AppConfig) resolvePaths(configDir string) error {
	s := &c.Storage

	dataDir, err := absPath(s.DataDirectory, configDir)
	if err != nil {
		return err
	}
	s.DataDirectory = dataDir

	for _, p := range []*string{&s.UploadsDirectory, &s.CleanedDirectory, &s.TempDirectory} {
		resolved, err := absPath(*p, s.DataDirectory)
		if err != nil {
			return err
		}
		*p = resolved
	}
	return nil
}

func absPath(p, base string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", p, err)
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(base, expanded)
	}
	return filepath.Clean(expanded), nil
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// Retention returns how long stored files are kept. Zero disables the sweep.
func (c *AppConfig) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionMinutes) * time.Minute
}

// SweepInterval returns how often the retention sweep runs.
func (c *AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.Storage.SweepIntervalMinutes) * time.Minute
}
