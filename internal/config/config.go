// Package config loads meal-triggers configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (MEALTRIGGERS_SERVER_PORT, MEALTRIGGERS_ANALYSIS_MIN_MEALS, ...)
//  2. YAML config file, when a path is given
//  3. Defaults
//
// Command line flags are applied by the caller on top of the loaded Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"mcp-meal-triggers/internal/triggers"
)

const (
	EnvPrefix         = "MEALTRIGGERS_"
	maxConfigFileSize = 1024 * 1024
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Log        LogConfig        `koanf:"log"`
	Analysis   AnalysisConfig   `koanf:"analysis"`
	Experiment ExperimentConfig `koanf:"experiment"`
}

type ServerConfig struct {
	Transport string `koanf:"transport"`
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
}

type StorageConfig struct {
	DBPath string `koanf:"db_path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AnalysisConfig mirrors triggers.Config in loadable form.
type AnalysisConfig struct {
	MinMeals             int     `koanf:"min_meals"`
	MinOccurrences       int     `koanf:"min_occurrences"`
	MinOutcomes          int     `koanf:"min_outcomes"`
	NegativeMinRate      int     `koanf:"negative_min_rate"`
	NegativeMinLift      float64 `koanf:"negative_min_lift"`
	PositiveMinRate      int     `koanf:"positive_min_rate"`
	PositiveMinLift      float64 `koanf:"positive_min_lift"`
	MaxNegative          int     `koanf:"max_negative"`
	MaxPositive          int     `koanf:"max_positive"`
	ConfidenceSaturation int     `koanf:"confidence_saturation"`
	ExampleCap           int     `koanf:"example_cap"`
	Timezone             string  `koanf:"timezone"`
}

type ExperimentConfig struct {
	DurationDays int `koanf:"duration_days"`
	MinSample    int `koanf:"min_sample"`
}

// Default returns a Config whose analysis section matches triggers.DefaultConfig.
func Default() *Config {
	d := triggers.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Transport: "http",
			Host:      "0.0.0.0",
			Port:      8011,
		},
		Storage: StorageConfig{
			DBPath: "/data/meal-log.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Analysis: AnalysisConfig{
			MinMeals:             d.MinMeals,
			MinOccurrences:       d.MinOccurrences,
			MinOutcomes:          d.MinOutcomes,
			NegativeMinRate:      d.NegativeMinRate,
			NegativeMinLift:      d.NegativeMinLift,
			PositiveMinRate:      d.PositiveMinRate,
			PositiveMinLift:      d.PositiveMinLift,
			MaxNegative:          d.MaxNegative,
			MaxPositive:          d.MaxPositive,
			ConfidenceSaturation: d.ConfidenceSaturation,
			ExampleCap:           d.ExampleCap,
			Timezone:             "Local",
		},
		Experiment: ExperimentConfig{
			DurationDays: 7,
			MinSample:    7,
		},
	}
}

// Load reads defaults, then configPath (if non-empty), then the environment.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// MEALTRIGGERS_ANALYSIS_MIN_MEALS -> analysis.min_meals
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		section, field, found := strings.Cut(lower, "_")
		if !found {
			return lower
		}
		return section + "." + field
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.Transport != "http" {
		errs = append(errs, fmt.Errorf("server.transport %q is not supported", c.Server.Transport))
	}
	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path is required"))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	a := c.Analysis
	for name, v := range map[string]int{
		"analysis.min_meals":             a.MinMeals,
		"analysis.min_occurrences":       a.MinOccurrences,
		"analysis.min_outcomes":          a.MinOutcomes,
		"analysis.max_negative":          a.MaxNegative,
		"analysis.max_positive":          a.MaxPositive,
		"analysis.confidence_saturation": a.ConfidenceSaturation,
		"analysis.example_cap":           a.ExampleCap,
		"experiment.duration_days":       c.Experiment.DurationDays,
		"experiment.min_sample":          c.Experiment.MinSample,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if a.NegativeMinRate < 0 || a.NegativeMinRate > 100 || a.PositiveMinRate < 0 || a.PositiveMinRate > 100 {
		errs = append(errs, errors.New("analysis rate thresholds must be between 0 and 100"))
	}
	if a.NegativeMinLift < 0 || a.PositiveMinLift < 0 {
		errs = append(errs, errors.New("analysis lift thresholds must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves analysis.timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Analysis.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Analysis.Timezone)
	if err != nil {
		return nil, fmt.Errorf("analysis.timezone: %w", err)
	}
	return loc, nil
}

// Triggers converts the analysis section into engine thresholds.
func (c *Config) Triggers() (triggers.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return triggers.Config{}, err
	}
	a := c.Analysis
	return triggers.Config{
		MinMeals:             a.MinMeals,
		MinOccurrences:       a.MinOccurrences,
		MinOutcomes:          a.MinOutcomes,
		NegativeMinRate:      a.NegativeMinRate,
		NegativeMinLift:      a.NegativeMinLift,
		PositiveMinRate:      a.PositiveMinRate,
		PositiveMinLift:      a.PositiveMinLift,
		MaxNegative:          a.MaxNegative,
		MaxPositive:          a.MaxPositive,
		ConfidenceSaturation: a.ConfidenceSaturation,
		ExampleCap:           a.ExampleCap,
		Location:             loc,
	}, nil
}
