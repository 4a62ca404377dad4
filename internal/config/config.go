package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName    string
	LogLevel       string
	HTTPListenAddr string
	MetricsAddr    string

	// Executor selects how bench commands are run: "docker" execs into
	// RuntimeContainer, "local" runs them as child processes.
	Executor         string
	RuntimeContainer string
	BenchDir         string
	BenchBin         string
	CommandTimeout   time.Duration

	SitesFile         string
	MySQLDSN          string
	MySQLRootPassword string

	// LockDir holds per-site lock files shared by every process that
	// operates on the same sites. Defaults to {dir of SitesFile}/.locks.
	LockDir string

	BackupDir           string
	BackupRuntimeDir    string
	BackupRetentionDays int
	BackupSchedule      string
	SchedulerEnabled    bool

	S3BackupEnabled bool
	S3Bucket        string
	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
}

func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8000"),
		MetricsAddr:       getEnv("METRICS_ADDR", ""),
		Executor:          getEnv("EXECUTOR", "docker"),
		RuntimeContainer:  getEnv("RUNTIME_CONTAINER", "frappe"),
		BenchDir:          getEnv("BENCH_DIR", "/home/frappe/frappe-bench"),
		BenchBin:          getEnv("BENCH_BIN", "bench"),
		SitesFile:         getEnv("SITES_FILE", "/home/frappe/frappe-bench/sites/sites.txt"),
		MySQLDSN:          getEnv("MYSQL_DSN", ""),
		MySQLRootPassword: getEnv("MYSQL_ROOT_PASSWORD", ""),
		BackupDir:         getEnv("BACKUP_DIR", "/backups"),
		BackupSchedule:    getEnv("BACKUP_SCHEDULE", "0 2 * * *"),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("S3_SECRET_KEY", ""),
	}
	cfg.BackupRuntimeDir = getEnv("BACKUP_RUNTIME_DIR", cfg.BackupDir)
	cfg.LockDir = getEnv("LOCK_DIR", filepath.Join(filepath.Dir(cfg.SitesFile), ".locks"))

	var err error
	if cfg.CommandTimeout, err = time.ParseDuration(getEnv("COMMAND_TIMEOUT", "30m")); err != nil {
		return nil, fmt.Errorf("parse COMMAND_TIMEOUT: %w", err)
	}
	if cfg.BackupRetentionDays, err = strconv.Atoi(getEnv("BACKUP_RETENTION_DAYS", "7")); err != nil {
		return nil, fmt.Errorf("parse BACKUP_RETENTION_DAYS: %w", err)
	}
	if cfg.SchedulerEnabled, err = getBool("SCHEDULER_ENABLED"); err != nil {
		return nil, err
	}
	if cfg.S3BackupEnabled, err = getBool("S3_BACKUP_ENABLED"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the fields required by the given service are set.
// All problems are reported at once.
func (c *Config) Validate(service string) error {
	var problems []string

	if c.Executor != "docker" && c.Executor != "local" {
		problems = append(problems, fmt.Sprintf("EXECUTOR must be docker or local, got %q", c.Executor))
	}
	if c.Executor == "docker" && c.RuntimeContainer == "" {
		problems = append(problems, "RUNTIME_CONTAINER")
	}
	if c.BenchDir == "" {
		problems = append(problems, "BENCH_DIR")
	}
	if c.SitesFile == "" {
		problems = append(problems, "SITES_FILE")
	}
	if c.BackupDir == "" {
		problems = append(problems, "BACKUP_DIR")
	}
	if c.CommandTimeout <= 0 {
		problems = append(problems, "COMMAND_TIMEOUT must be positive")
	}
	if c.BackupRetentionDays < 1 {
		problems = append(problems, "BACKUP_RETENTION_DAYS must be at least 1")
	}
	if c.S3BackupEnabled && c.S3Bucket == "" {
		problems = append(problems, "S3_BUCKET (required when S3_BACKUP_ENABLED=true)")
	}
	if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		problems = append(problems, "S3_ACCESS_KEY and S3_SECRET_KEY must both be set")
	}

	switch service {
	case "site-api":
		if c.HTTPListenAddr == "" {
			problems = append(problems, "HTTP_LISTEN_ADDR")
		}
		if c.SchedulerEnabled && c.BackupSchedule == "" {
			problems = append(problems, "BACKUP_SCHEDULE")
		}
	case "backup-scheduler":
		if c.BackupSchedule == "" {
			problems = append(problems, "BACKUP_SCHEDULE")
		}
	default:
		return fmt.Errorf("unknown service %q", service)
	}

	if len(problems) > 0 {
		return fmt.Errorf("missing or invalid config: %s", strings.Join(problems, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}
