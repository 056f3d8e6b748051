package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "snt"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreBadger   = "badger"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `yaml:"serviceName" envconfig:"SERVICE_NAME"`
	HTTPPort    string `yaml:"httpPort"    envconfig:"HTTP_PORT"`
	Debug       bool   `yaml:"debug"       envconfig:"DEBUG"`

	StoreDriver string `yaml:"storeDriver" split_words:"true"`
	PostgresDSN string `yaml:"postgresDsn" envconfig:"POSTGRES_DSN"`
	SQLitePath  string `yaml:"sqlitePath"  envconfig:"SQLITE_PATH"`
	BadgerDir   string `yaml:"badgerDir"   split_words:"true"`

	RosterURL     string        `yaml:"rosterUrl"     envconfig:"ROSTER_URL"`
	NotifyURL     string        `yaml:"notifyUrl"     envconfig:"NOTIFY_URL"`
	NotifyTimeout time.Duration `yaml:"notifyTimeout" split_words:"true"`

	ReconcileInterval time.Duration `yaml:"reconcileInterval" split_words:"true"`
	OutboxBatchSize   int           `yaml:"outboxBatchSize"   split_words:"true"`
	SweepBatchSize    int           `yaml:"sweepBatchSize"    split_words:"true"`
	IdempotencyTTL    time.Duration `yaml:"idempotencyTtl"    envconfig:"IDEMPOTENCY_TTL"`

	MetricsEnabled    bool `yaml:"metricsEnabled"    split_words:"true"`
	EnableReconciler  bool `yaml:"enableReconciler"  split_words:"true"`
	EnableOutboxRelay bool `yaml:"enableOutboxRelay" split_words:"true"`
}

func Default() Config {
	return Config{
		ServiceName:       "sntportal",
		HTTPPort:          "8080",
		StoreDriver:       StoreMemory,
		SQLitePath:        "sntportal.db",
		NotifyTimeout:     10 * time.Second,
		ReconcileInterval: 30 * time.Second,
		OutboxBatchSize:   100,
		SweepBatchSize:    100,
		IdempotencyTTL:    24 * time.Hour,
		MetricsEnabled:    true,
		EnableReconciler:  true,
		EnableOutboxRelay: true,
	}
}

// Load layers defaults, the optional YAML file, a .env file in the working
// directory and finally SNT_* environment variables.
func Load(configFile string) (Config, error) {
	cfg := Default()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.StoreDriver)) {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("SNT_POSTGRES_DSN is required for the postgres store")
		}
	case StoreBadger:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.ReconcileInterval <= 0 {
		return errors.New("reconcile interval must be positive")
	}
	if c.NotifyTimeout <= 0 {
		return errors.New("notify timeout must be positive")
	}
	return nil
}
