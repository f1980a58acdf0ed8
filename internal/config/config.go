package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.mapsmith/mapsmith.yaml"
)

// Store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreMongo    = "mongodb"
)

// Config is the top-level configuration.
type Config struct {
	Version int           `yaml:"version"`
	Store   StoreConfig   `yaml:"store"`
	Runtime RuntimeConfig `yaml:"runtime,omitempty"`
	Server  ServerConfig  `yaml:"server,omitempty"`
	Logging LogConfig     `yaml:"logging,omitempty"`
}

// StoreConfig says where maps and chains are kept.
type StoreConfig struct {
	Type             string `yaml:"type"` // file, postgres or mongodb
	Directory        string `yaml:"directory,omitempty"`
	ConnectionString string `yaml:"connection_string,omitempty"`
	Database         string `yaml:"database,omitempty"`
	MaxConnections   int    `yaml:"max_connections,omitempty"` // default 10, max 50
}

// RuntimeConfig controls script generation and execution.
type RuntimeConfig struct {
	DefaultLanguage string        `yaml:"default_language,omitempty"`
	RemoteURL       string        `yaml:"remote_url,omitempty"`
	RemoteToken     string        `yaml:"remote_token,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	MaxSteps        uint64        `yaml:"max_steps,omitempty"`
	RetryMax        int           `yaml:"retry_max,omitempty"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Port      int     `yaml:"port,omitempty"`
	RateLimit float64 `yaml:"rate_limit,omitempty"` // requests per second per client
	Burst     int     `yaml:"burst,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level         string `yaml:"level,omitempty"`          // debug, info, warn, error
	Directory     string `yaml:"directory,omitempty"`      // default ~/.mapsmith/logs/
	RetentionDays int    `yaml:"retention_days,omitempty"` // default 30
}

// Default returns a config for a local file store with every default applied.
func Default() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Store:   StoreConfig{Type: StoreFile},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(context.Background()); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Store.Type == "" {
		c.Store.Type = StoreFile
	}
	if c.Store.Type == StoreFile && c.Store.Directory == "" {
		c.Store.Directory = "~/.mapsmith/data/"
	}
	if c.Store.Database == "" {
		c.Store.Database = "mapsmith"
	}
	if c.Store.MaxConnections == 0 {
		c.Store.MaxConnections = 10
	}
	if c.Store.MaxConnections > 50 {
		c.Store.MaxConnections = 50
	}
	if c.Runtime.DefaultLanguage == "" {
		c.Runtime.DefaultLanguage = "starlark"
	}
	if c.Runtime.Timeout == 0 {
		c.Runtime.Timeout = 5 * time.Second
	}
	if c.Runtime.MaxSteps == 0 {
		c.Runtime.MaxSteps = 1_000_000
	}
	if c.Runtime.RetryMax == 0 {
		c.Runtime.RetryMax = 2
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8230
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 20
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = 40
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = "~/.mapsmith/logs/"
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 30
	}
}

func (c *Config) validate() error {
	switch c.Store.Type {
	case StoreFile:
	case StorePostgres, StoreMongo:
		if c.Store.ConnectionString == "" {
			return fmt.Errorf("store type %s requires a connection_string", c.Store.Type)
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	return nil
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets(ctx context.Context) error {
	var err error
	c.Store.ConnectionString, err = ResolveValue(ctx, c.Store.ConnectionString)
	if err != nil {
		return fmt.Errorf("store connection string: %w", err)
	}
	c.Runtime.RemoteToken, err = ResolveValue(ctx, c.Runtime.RemoteToken)
	if err != nil {
		return fmt.Errorf("runtime remote token: %w", err)
	}
	return nil
}

// ResolveValue replaces every secret reference in val with the secret it names.
// Text around the references is kept, so a password can sit inside a URL.
func ResolveValue(ctx context.Context, val string) (string, error) {
	var firstErr error
	out := secretPattern.ReplaceAllStringFunc(val, func(ref string) string {
		if firstErr != nil {
			return ref
		}
		m := secretPattern.FindStringSubmatch(ref)
		secret, err := resolveRef(ctx, m[1], m[2])
		if err != nil {
			firstErr = err
			return ref
		}
		return secret
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func resolveRef(ctx context.Context, provider, ref string) (string, error) {
	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ctx, ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ctx, ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
