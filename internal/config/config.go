// Package config builds the service configuration.
//
// CONFIGURATION FLOW:
// main calls Load once at startup. Load reads defaults, an optional .env file
// and the process environment through viper, then freezes everything into a
// plain Config value. From then on the Config is passed explicitly to each
// component; nothing below main touches os.Getenv.
//
// PRECEDENCE (highest first):
//  1. Environment variables (EXECUTION_TIMEOUT=5)
//  2. Values from the .env file, if present
//  3. Defaults set in setDefaults
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

// Config is the immutable service configuration.
type Config struct {
	Host     string
	Port     int
	LogLevel slog.Level

	// ExecutionTimeout bounds each test-case run.
	ExecutionTimeout time.Duration
	// CompileTimeout bounds the compile step of C and Java submissions.
	CompileTimeout time.Duration

	PythonImage  string
	GCCImage     string
	OpenJDKImage string

	// MemoryLimit is the per-run memory ceiling in bytes.
	MemoryLimit int64
	// CPULimit is the number of CPUs a run container may use (0.5 = half a core).
	CPULimit float64

	// WorkspaceRoot is where per-request scratch directories are created.
	// A memory-backed filesystem (/dev/shm) keeps compile output off disk.
	WorkspaceRoot string
	// PullImages pulls every language image at startup.
	PullImages bool

	// AuthSecret enables bearer-token auth on /execute when non-empty.
	AuthSecret string

	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 5000)
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("EXECUTION_TIMEOUT", 10)
	v.SetDefault("COMPILE_TIMEOUT", 30)
	v.SetDefault("PYTHON_IMAGE", "python:3.13-slim")
	v.SetDefault("GCC_IMAGE", "gcc")
	v.SetDefault("OPENJDK_IMAGE", "openjdk")
	v.SetDefault("CONTAINER_MEMORY_LIMIT", "50m")
	v.SetDefault("CONTAINER_CPU_LIMIT", 0.5)
	v.SetDefault("WORKSPACE_ROOT", "/dev/shm")
	v.SetDefault("PULL_IMAGES", true)
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("MAX_CONCURRENT", 8)
}

// Load reads the configuration. envFile may be empty; a missing file is not
// an error, since production deployments usually set real env vars.
func Load(envFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("config: reading %s: %w", envFile, err)
			}
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(v.GetString("LOG_LEVEL")))); err != nil {
		return Config{}, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	// go-units accepts the docker CLI notation ("50m", "1g").
	memory, err := units.RAMInBytes(v.GetString("CONTAINER_MEMORY_LIMIT"))
	if err != nil {
		return Config{}, fmt.Errorf("config: CONTAINER_MEMORY_LIMIT: %w", err)
	}

	cfg := Config{
		Host:             v.GetString("HOST"),
		Port:             v.GetInt("PORT"),
		LogLevel:         level,
		ExecutionTimeout: time.Duration(v.GetInt("EXECUTION_TIMEOUT")) * time.Second,
		CompileTimeout:   time.Duration(v.GetInt("COMPILE_TIMEOUT")) * time.Second,
		PythonImage:      v.GetString("PYTHON_IMAGE"),
		GCCImage:         v.GetString("GCC_IMAGE"),
		OpenJDKImage:     v.GetString("OPENJDK_IMAGE"),
		MemoryLimit:      memory,
		CPULimit:         v.GetFloat64("CONTAINER_CPU_LIMIT"),
		WorkspaceRoot:    v.GetString("WORKSPACE_ROOT"),
		PullImages:       v.GetBool("PULL_IMAGES"),
		AuthSecret:       v.GetString("AUTH_SECRET"),
		RateLimitRPS:     v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:   v.GetInt("RATE_LIMIT_BURST"),
		MaxConcurrent:    v.GetInt("MAX_CONCURRENT"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would make the sandbox unusable.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.ExecutionTimeout <= 0 {
		errs = append(errs, errors.New("EXECUTION_TIMEOUT must be positive"))
	}
	if c.CompileTimeout <= 0 {
		errs = append(errs, errors.New("COMPILE_TIMEOUT must be positive"))
	}
	if c.MemoryLimit <= 0 {
		errs = append(errs, errors.New("CONTAINER_MEMORY_LIMIT must be positive"))
	}
	if c.CPULimit <= 0 {
		errs = append(errs, errors.New("CONTAINER_CPU_LIMIT must be positive"))
	}
	if c.PythonImage == "" || c.GCCImage == "" || c.OpenJDKImage == "" {
		errs = append(errs, errors.New("language images must not be empty"))
	}
	if c.WorkspaceRoot == "" {
		errs = append(errs, errors.New("WORKSPACE_ROOT must not be empty"))
	}
	if c.RateLimitRPS <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must be positive"))
	}
	if c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be positive"))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
