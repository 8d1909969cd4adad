// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	SecretsSourceAuto = "auto"
	SecretsSourceFile = "file"
	SecretsSourceAWS  = "aws"

	envPrefix = "insights"
)

type ChatConfig struct {
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	PruneCron string        `yaml:"prune_cron"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type AWSSecretsConfig struct {
	SecretID string `yaml:"secret_id"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint,omitempty"`
	// Optional static credentials; the default AWS chain is used otherwise.
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

// SecretsConfig selects where the access secret and chat API key come from.
// The two sources are never merged.
type SecretsConfig struct {
	Source string           `yaml:"source"`
	File   string           `yaml:"file"`
	AWS    AWSSecretsConfig `yaml:"aws"`
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		BaseURL         string        `yaml:"base_url"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		StaticDir       string        `yaml:"static_dir"`
		SecretKey       string        `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Chat    ChatConfig    `yaml:"chat"`
	Session SessionConfig `yaml:"session"`
	Upload  UploadConfig  `yaml:"upload"`
	Secrets SecretsConfig `yaml:"secrets"`
}

// envOverrides are read with the INSIGHTS_ prefix and win over the YAML file.
type envOverrides struct {
	Environment     string `envconfig:"ENVIRONMENT"`
	Port            int    `envconfig:"PORT"`
	SecretKey       string `envconfig:"APP_SECRET_KEY"`
	SecretsSource   string `envconfig:"SECRETS_SOURCE"`
	SecretsFile     string `envconfig:"SECRETS_FILE"`
	AWSSecretID     string `envconfig:"AWS_SECRET_ID"`
	AWSRegion       string `envconfig:"AWS_REGION"`
	AWSAccessKeyID  string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey    string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	ChatModel       string `envconfig:"CHAT_MODEL"`
	ChatTimeoutSecs int    `envconfig:"CHAT_TIMEOUT_SECONDS"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	var cfg Config
	cfg.App.Name = "Pickleball Facility Reservation Insights"
	cfg.App.Environment = "development"
	cfg.App.Port = 8080
	cfg.App.ShutdownTimeout = 30 * time.Second
	cfg.App.StaticDir = "build/bin/static"
	cfg.Chat.Model = "gpt-4o-mini"
	cfg.Chat.Timeout = 60 * time.Second
	cfg.Session.TTL = 8 * time.Hour
	cfg.Session.PruneCron = "*/15 * * * *"
	cfg.Upload.MaxBytes = 10 << 20
	cfg.Secrets.Source = SecretsSourceAuto
	cfg.Secrets.File = "secrets.yaml"
	return &cfg
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		// Environment-only deployments run without a config file.
	default:
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	// A relative secrets file is resolved beside the config file.
	if cfg.Secrets.File != "" && !filepath.IsAbs(cfg.Secrets.File) {
		cfg.Secrets.File = filepath.Join(filepath.Dir(configPath), cfg.Secrets.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return err
	}

	if env.Environment != "" {
		c.App.Environment = env.Environment
	}
	if env.Port != 0 {
		c.App.Port = env.Port
	}
	c.App.SecretKey = env.SecretKey
	if env.SecretsSource != "" {
		c.Secrets.Source = env.SecretsSource
	}
	if env.SecretsFile != "" {
		c.Secrets.File = env.SecretsFile
	}
	if env.AWSSecretID != "" {
		c.Secrets.AWS.SecretID = env.AWSSecretID
	}
	if env.AWSRegion != "" {
		c.Secrets.AWS.Region = env.AWSRegion
	}
	c.Secrets.AWS.AccessKeyID = env.AWSAccessKeyID
	c.Secrets.AWS.SecretAccessKey = env.AWSSecretKey
	if env.ChatModel != "" {
		c.Chat.Model = env.ChatModel
	}
	if env.ChatTimeoutSecs > 0 {
		c.Chat.Timeout = time.Duration(env.ChatTimeoutSecs) * time.Second
	}
	return nil
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port <= 0 {
		return fmt.Errorf("app port is required")
	}
	if c.App.Environment != "development" && c.App.SecretKey == "" {
		return fmt.Errorf("app secret key is required outside development")
	}
	if c.Chat.Timeout <= 0 {
		return fmt.Errorf("chat timeout must be positive")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}

	switch c.Secrets.Source {
	case SecretsSourceFile:
		if c.Secrets.File == "" {
			return fmt.Errorf("secrets file is required for file source")
		}
	case SecretsSourceAWS:
		if c.Secrets.AWS.SecretID == "" {
			return fmt.Errorf("aws secret id is required for aws source")
		}
		if c.Secrets.AWS.Region == "" {
			return fmt.Errorf("aws region is required for aws source")
		}
	case SecretsSourceAuto:
		if c.Secrets.File == "" && c.Secrets.AWS.SecretID == "" {
			return fmt.Errorf("either a secrets file or an aws secret id is required")
		}
	default:
		return fmt.Errorf("unsupported secrets source: %s", c.Secrets.Source)
	}

	if (c.Secrets.AWS.AccessKeyID == "") != (c.Secrets.AWS.SecretAccessKey == "") {
		return fmt.Errorf("aws access key id and secret access key must be set together")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
