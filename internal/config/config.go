package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// maxFloatDecimals bounds the rounding precision. Beyond 12 decimals
	// rounding stops absorbing the float drift it exists for.
	maxFloatDecimals = 12

	// minReadBytes is the smallest accepted read ceiling.
	minReadBytes = 1024
)

// Config holds all environment-based configuration for studio-sync.
type Config struct {
	// Default output root. Requests may name another folder; relative
	// names resolve against the directory containing this one.
	OutputDir string `env:"STUDIO_SYNC_OUT" envDefault:"output"`

	// Decimal places floats are rounded to before comparison.
	FloatDecimals int `env:"STUDIO_SYNC_FLOAT_DECIMALS" envDefault:"5"`

	// Files larger than this are reported as skipped instead of read.
	MaxReadBytes int64 `env:"STUDIO_SYNC_MAX_READ_BYTES" envDefault:"921600"`

	ListenAddr  string `env:"STUDIO_SYNC_LISTEN_ADDR" envDefault:"127.0.0.1:5000"`
	EnableMCP   bool   `env:"STUDIO_SYNC_ENABLE_MCP" envDefault:"false"`
	EnableWatch bool   `env:"STUDIO_SYNC_ENABLE_WATCH" envDefault:"false"`

	// Operation history database. Defaults to ~/.studio-sync/state.db.
	StatePath string `env:"STUDIO_SYNC_STATE_PATH"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) is
// writable by group or others.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		log.Printf("WARNING: .env file is writable by other users (%04o); recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Path escape checks compare against the resolved root, so both
	// paths are made absolute once here.
	absOut, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output dir to absolute path: %w", err)
	}

	cfg.OutputDir = absOut

	if cfg.StatePath == "" {
		cfg.StatePath, err = DefaultStatePath()
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("STUDIO_SYNC_OUT must not be empty")
	}

	if c.FloatDecimals < 0 || c.FloatDecimals > maxFloatDecimals {
		return fmt.Errorf("STUDIO_SYNC_FLOAT_DECIMALS must be between 0 and %d, got %d", maxFloatDecimals, c.FloatDecimals)
	}

	if c.MaxReadBytes < minReadBytes {
		return fmt.Errorf("STUDIO_SYNC_MAX_READ_BYTES must be at least %d, got %d", minReadBytes, c.MaxReadBytes)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("STUDIO_SYNC_LISTEN_ADDR must not be empty")
	}

	return nil
}

// DefaultStatePath returns ~/.studio-sync/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".studio-sync", "state.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
