package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                   string        `yaml:"port"`
	DBPath                 string        `yaml:"db_path"`
	Workers                int           `yaml:"workers"`
	FetchWorkers           int           `yaml:"fetch_workers"`
	JobPollInterval        time.Duration `yaml:"job_poll_interval"`
	OASISBaseURL           string        `yaml:"oasis_base_url"`
	OASISRequestsPerMinute int           `yaml:"oasis_requests_per_minute"`
	HTTPProxyURL           string        `yaml:"http_proxy_url"`
	HTTPTimeout            time.Duration `yaml:"http_timeout"`
	Timezone               string        `yaml:"timezone"`
	MySQLDSN               string        `yaml:"mysql_dsn"`
	SnapshotDir            string        `yaml:"snapshot_dir"`
	SnapshotRestore        bool          `yaml:"snapshot_restore"`
	PeakStartHour          int           `yaml:"peak_start_hour"`
	PeakEndHour            int           `yaml:"peak_end_hour"`
}

func defaults() Config {
	return Config{
		Port:                   "8080",
		DBPath:                 "oasis.db",
		Workers:                2,
		FetchWorkers:           1,
		JobPollInterval:        5 * time.Second,
		OASISBaseURL:           "http://oasis.caiso.com/oasisapi/SingleZip",
		OASISRequestsPerMinute: 12,
		HTTPTimeout:            2 * time.Minute,
		Timezone:               "US/Pacific",
		PeakStartHour:          7,
		PeakEndHour:            22,
	}
}

// Load builds the configuration from, in increasing precedence: built-in
// defaults, the YAML file named by CONFIG_FILE and environment variables.
// A .env file in the working directory is loaded into the environment
// first; variables already set are not overwritten.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.Workers = getEnvInt("WORKERS", cfg.Workers)
	cfg.FetchWorkers = getEnvInt("FETCH_WORKERS", cfg.FetchWorkers)
	cfg.JobPollInterval = getEnvDuration("JOB_POLL_INTERVAL", cfg.JobPollInterval)
	cfg.OASISBaseURL = getEnv("OASIS_BASE_URL", cfg.OASISBaseURL)
	cfg.OASISRequestsPerMinute = getEnvInt("OASIS_REQUESTS_PER_MINUTE", cfg.OASISRequestsPerMinute)
	cfg.HTTPProxyURL = getEnv("HTTP_PROXY_URL", cfg.HTTPProxyURL)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.MySQLDSN = getEnv("MYSQL_DSN", cfg.MySQLDSN)
	cfg.SnapshotDir = getEnv("SNAPSHOT_DIR", cfg.SnapshotDir)
	cfg.SnapshotRestore = getEnvBool("SNAPSHOT_RESTORE", cfg.SnapshotRestore)
	cfg.PeakStartHour = getEnvInt("PEAK_START_HOUR", cfg.PeakStartHour)
	cfg.PeakEndHour = getEnvInt("PEAK_END_HOUR", cfg.PeakEndHour)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) validate() error {
	switch {
	case c.Workers <= 0 || c.FetchWorkers <= 0:
		return fmt.Errorf("workers and fetch_workers must be positive")
	case c.OASISRequestsPerMinute <= 0:
		return fmt.Errorf("oasis_requests_per_minute must be positive")
	case c.SnapshotRestore && c.SnapshotDir == "":
		return fmt.Errorf("snapshot_restore requires snapshot_dir")
	case c.PeakStartHour < 0 || c.PeakEndHour > 23 || c.PeakStartHour > c.PeakEndHour:
		return fmt.Errorf("invalid peak hours %d-%d", c.PeakStartHour, c.PeakEndHour)
	}
	return nil
}

// loadFile decodes a YAML config file over cfg. Unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}
