package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines royalty engine configuration.
type Config struct {
	HTTPAddr          string `yaml:"http_addr"`
	DatabaseURL       string `yaml:"database_url"`
	JWTSecret         string `yaml:"jwt_secret"`
	WebhookURL        string `yaml:"webhook_url"`
	LockLeaseSeconds  int    `yaml:"lock_lease_seconds"`
	TxTimeoutSeconds  int    `yaml:"tx_timeout_seconds"`
	OutlierMultiplier int64  `yaml:"outlier_multiplier"`
	MinRollbackReason int    `yaml:"min_rollback_reason"`
	DispatchBatch     int    `yaml:"dispatch_batch"`
}

// Load loads config from yaml or env. ROYALTY_CONFIG points at an optional
// yaml file; env vars fill anything the file leaves empty.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:          getenvDefault("ROYALTY_HTTP_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("ROYALTY_JWT_SECRET"),
		WebhookURL:        os.Getenv("ROYALTY_WEBHOOK_URL"),
		LockLeaseSeconds:  getenvIntDefault("ROYALTY_LOCK_LEASE_SECONDS", 30),
		TxTimeoutSeconds:  getenvIntDefault("ROYALTY_TX_TIMEOUT_SECONDS", 15),
		OutlierMultiplier: int64(getenvIntDefault("ROYALTY_OUTLIER_MULTIPLIER", 3)),
		MinRollbackReason: getenvIntDefault("ROYALTY_MIN_ROLLBACK_REASON", 10),
		DispatchBatch:     getenvIntDefault("ROYALTY_DISPATCH_BATCH", 50),
	}

	if path := os.Getenv("ROYALTY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.LockLeaseSeconds <= 0 {
		cfg.LockLeaseSeconds = 30
	}
	if cfg.TxTimeoutSeconds <= 0 {
		cfg.TxTimeoutSeconds = 15
	}
	if cfg.OutlierMultiplier <= 0 {
		cfg.OutlierMultiplier = 3
	}
	if cfg.MinRollbackReason <= 0 {
		cfg.MinRollbackReason = 10
	}
	if cfg.DispatchBatch <= 0 {
		cfg.DispatchBatch = 50
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("config: jwt secret required")
	}
	return cfg, nil
}

// LockLease returns the run lock lease duration.
func (c Config) LockLease() time.Duration {
	return time.Duration(c.LockLeaseSeconds) * time.Second
}

// TxTimeout returns the per-request database timeout.
func (c Config) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutSeconds) * time.Second
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
