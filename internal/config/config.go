// Package config loads and validates the server and client configuration with
// Viper. The server reads the environment and an optional .env file; the CLI
// reads an optional YAML file overridden by FURNI_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "FURNI"

// Server holds the furni-api configuration.
type Server struct {
	// HTTPAddr is the REST listen address.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the listen address of the gRPC health service.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTKey signs the federated tokens (HS256).
	JWTKey string `mapstructure:"JWT_KEY"`
	// TokenTTL is the lifetime of an issued federated token.
	TokenTTL time.Duration `mapstructure:"TOKEN_TTL"`
	// FingerprintKey keys the BLAKE2b login fingerprints. At least 16 bytes.
	FingerprintKey string `mapstructure:"FINGERPRINT_KEY"`
	// IdentityRegion prefixes identity ids: "<region>:<uuid>".
	IdentityRegion string `mapstructure:"IDENTITY_REGION"`

	LimiterWindow   time.Duration `mapstructure:"LIMITER_WINDOW"`
	LimiterMaxFails int           `mapstructure:"LIMITER_MAX_FAILS"`
	LimiterBlock    time.Duration `mapstructure:"LIMITER_BLOCK"`

	// MatchPageSize bounds one page of contact matches.
	MatchPageSize int `mapstructure:"MATCH_PAGE_SIZE"`
}

// LoadServer reads .env (if present) and the environment.
func LoadServer() (*Server, error) {
	return loadServer(".env")
}

func loadServer(envFile string) (*Server, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // a missing .env is fine
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_KEY", "")
	v.SetDefault("TOKEN_TTL", "1h")
	v.SetDefault("FINGERPRINT_KEY", "")
	v.SetDefault("IDENTITY_REGION", "us-east-1")
	v.SetDefault("LIMITER_WINDOW", "15m")
	v.SetDefault("LIMITER_MAX_FAILS", 5)
	v.SetDefault("LIMITER_BLOCK", "15m")
	v.SetDefault("MATCH_PAGE_SIZE", 100)

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Server) validate() error {
	var errList []error
	if c.HTTPAddr == "" {
		errList = append(errList, errors.New("config: FURNI_HTTP_ADDR must be set"))
	}
	if c.DatabaseURL == "" {
		errList = append(errList, errors.New("config: FURNI_DATABASE_URL must be set"))
	}
	if c.JWTKey == "" {
		errList = append(errList, errors.New("config: FURNI_JWT_KEY must be set"))
	}
	if n := len(c.FingerprintKey); n < 16 || n > 64 {
		errList = append(errList, errors.New("config: FURNI_FINGERPRINT_KEY must be 16 to 64 bytes"))
	}
	if c.IdentityRegion == "" || strings.Contains(c.IdentityRegion, ":") {
		errList = append(errList, errors.New("config: FURNI_IDENTITY_REGION must be a non-empty name without ':'"))
	}
	if c.TokenTTL <= 0 {
		errList = append(errList, errors.New("config: FURNI_TOKEN_TTL must be positive"))
	}
	if c.LimiterWindow <= 0 || c.LimiterBlock <= 0 || c.LimiterMaxFails <= 0 {
		errList = append(errList, errors.New("config: limiter window, block and max fails must be positive"))
	}
	if c.MatchPageSize <= 0 || c.MatchPageSize > 1000 {
		errList = append(errList, errors.New("config: FURNI_MATCH_PAGE_SIZE must be between 1 and 1000"))
	}
	return errors.Join(errList...)
}

// Client holds the furni CLI configuration.
type Client struct {
	APIURL         string        `mapstructure:"api_url"`
	StateDir       string        `mapstructure:"state_dir"`
	ContactsFile   string        `mapstructure:"contacts_file"`
	Dataset        string        `mapstructure:"dataset"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DefaultName    string        `mapstructure:"default_name"`
	DefaultImage   string        `mapstructure:"default_image"`
}

// DefaultClientDir is $XDG_CONFIG_HOME/furni, or ./.furni when the user
// config directory is unknown.
func DefaultClientDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".furni"
	}
	return filepath.Join(dir, "furni")
}

// LoadClient reads the YAML file at path, or config.yaml in DefaultClientDir
// when path is empty. Only an explicitly named file must exist.
func LoadClient(path string) (*Client, error) {
	v := viper.New()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(DefaultClientDir(), "config.yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("state_dir", DefaultClientDir())
	v.SetDefault("contacts_file", "")
	v.SetDefault("dataset", "dataset")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("default_name", "")
	v.SetDefault("default_image", "")

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ContactsFile == "" {
		cfg.ContactsFile = filepath.Join(cfg.StateDir, "contacts.yaml")
	}

	if cfg.APIURL == "" {
		return nil, errors.New("config: api_url must be set")
	}
	if cfg.StateDir == "" {
		return nil, errors.New("config: state_dir must be set")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, errors.New("config: request_timeout must be positive")
	}
	return &cfg, nil
}
