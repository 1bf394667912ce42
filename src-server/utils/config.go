package utils

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// CRON_DISABLED turns a scheduled job off when used as its cron spec.
const CRON_DISABLED = "off"

type Config struct {
	port         string
	databasePath string
	location     *time.Location

	placeholderIDPrefix   string
	autoCompleteThreshold time.Duration
	mutationTimeout       time.Duration

	refreshCron      string
	autoCompleteCron string

	metricCollectionInterval time.Duration
}

// fileConfig is the optional YAML overlay pointed at by CONFIG_FILE.
// Environment variables win over anything set here.
type fileConfig struct {
	Port                     string `yaml:"port"`
	DatabasePath             string `yaml:"database_path"`
	Timezone                 string `yaml:"timezone"`
	PlaceholderIDPrefix      string `yaml:"placeholder_id_prefix"`
	AutoCompleteThreshold    string `yaml:"auto_complete_threshold"`
	MutationTimeout          string `yaml:"mutation_timeout"`
	RefreshCron              string `yaml:"refresh_cron"`
	AutoCompleteCron         string `yaml:"auto_complete_cron"`
	MetricCollectionInterval string `yaml:"metric_collection_interval"`
}

func loadConfigFile(path string) (fileConfig, error) {
	var file fileConfig
	if path == "" {
		return file, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return file, fmt.Errorf("loadConfigFile: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("loadConfigFile: invalid yaml in %s: %w", path, err)
	}
	return file, nil
}

// env > CONFIG_FILE > fallback
func lookup(envKey, fileValue, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
		return value
	}
	if value := strings.TrimSpace(fileValue); value != "" {
		return value
	}
	return fallback
}

func NewConfig() (*Config, error) {
	file, err := loadConfigFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, fmt.Errorf("NewConfig: %w", err)
	}

	errs := make([]error, 0)
	parseDuration := func(key, raw string, allowZero bool) time.Duration {
		duration, err := time.ParseDuration(raw)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		case duration < 0 || (duration == 0 && !allowZero):
			errs = append(errs, fmt.Errorf("invalid %s: %s is out of range", key, raw))
		}
		slog.Debug("env", key, raw, "duration", duration)
		return duration
	}
	parseCron := func(key, spec string) string {
		if spec == CRON_DISABLED {
			slog.Debug("env", key, "disabled")
			return spec
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		slog.Debug("env", key, spec)
		return spec
	}

	c := &Config{
		port: func() string {
			port := lookup("PORT", file.Port, "8080")
			slog.Debug("env", "PORT", port)
			return port
		}(),
		databasePath: func() string {
			databasePath := lookup("DATABASE_PATH", file.DatabasePath, "./sqlite.db")
			slog.Debug("env", "DATABASE_PATH", databasePath)
			return filepath.Clean(databasePath)
		}(),
		location: func() *time.Location {
			timezoneStr := lookup("TIMEZONE", file.Timezone, "")
			var loc *time.Location
			switch timezoneStr {
			case "":
				slog.Warn("TIMEZONE is not set, using local timezone", "timezone", time.Local)
				loc = time.Local
			case "UTC":
				loc = time.UTC
			default:
				loc, err = time.LoadLocation(timezoneStr)
				if err != nil {
					errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", timezoneStr, err))
					loc = time.Local
				}
			}
			slog.Debug("env", "TIMEZONE", timezoneStr)
			return loc
		}(),

		placeholderIDPrefix: func() string {
			prefix := lookup("PLACEHOLDER_ID_PREFIX", file.PlaceholderIDPrefix, "fallback-")
			slog.Debug("env", "PLACEHOLDER_ID_PREFIX", prefix)
			return prefix
		}(),
		autoCompleteThreshold: parseDuration(
			"AUTO_COMPLETE_THRESHOLD",
			lookup("AUTO_COMPLETE_THRESHOLD", file.AutoCompleteThreshold, "0s"),
			true,
		),
		mutationTimeout: parseDuration(
			"MUTATION_TIMEOUT",
			lookup("MUTATION_TIMEOUT", file.MutationTimeout, "30s"),
			false,
		),

		refreshCron: parseCron(
			"REFRESH_CRON",
			lookup("REFRESH_CRON", file.RefreshCron, "*/15 * * * *"),
		),
		autoCompleteCron: parseCron(
			"AUTO_COMPLETE_CRON",
			lookup("AUTO_COMPLETE_CRON", file.AutoCompleteCron, "*/5 * * * *"),
		),

		metricCollectionInterval: parseDuration(
			"METRIC_COLLECTION_INTERVAL",
			lookup("METRIC_COLLECTION_INTERVAL", file.MetricCollectionInterval, "5s"),
			false,
		),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("NewConfig: %w", err)
	}
	return c, nil
}

// Get PORT env, default to 8080
func (c *Config) GetPort() string {
	return c.port
}

// Get DATABASE_PATH env, default to ./sqlite.db
func (c *Config) GetDatabasePath() string {
	return c.databasePath
}

// Get TIMEZONE env
func (c *Config) GetLocation() *time.Location {
	return c.location
}

// Get PLACEHOLDER_ID_PREFIX env
func (c *Config) GetPlaceholderIDPrefix() string {
	return c.placeholderIDPrefix
}

// Get AUTO_COMPLETE_THRESHOLD env, zero means off
func (c *Config) GetAutoCompleteThreshold() time.Duration {
	return c.autoCompleteThreshold
}

// Get MUTATION_TIMEOUT env
func (c *Config) GetMutationTimeout() time.Duration {
	return c.mutationTimeout
}

// Get REFRESH_CRON env
func (c *Config) GetRefreshCron() string {
	return c.refreshCron
}

// Get AUTO_COMPLETE_CRON env
func (c *Config) GetAutoCompleteCron() string {
	return c.autoCompleteCron
}

// Get METRIC_COLLECTION_INTERVAL env
func (c *Config) GetMetricCollectionInterval() time.Duration {
	return c.metricCollectionInterval
}
