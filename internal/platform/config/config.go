// Package config loads process configuration: an optional YAML file, then a
// .env file, then CERTLEDGER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment variable prefix for every key.
const EnvPrefix = "certledger"

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheBadger = "badger"
)

// Config is the full process configuration.
type Config struct {
	Server   Server   `yaml:"server"   split_words:"true"`
	Log      Log      `yaml:"log"      split_words:"true"`
	Cache    Cache    `yaml:"cache"    split_words:"true"`
	Redis    Redis    `yaml:"redis"    split_words:"true"`
	Ledger   Ledger   `yaml:"ledger"   split_words:"true"`
	IPFS     IPFS     `yaml:"ipfs"     envconfig:"ipfs"`
	Signer   Signer   `yaml:"signer"   split_words:"true"`
	Fetch    Fetch    `yaml:"fetch"    split_words:"true"`
	Kafka    Kafka    `yaml:"kafka"    split_words:"true"`
	Postgres Postgres `yaml:"postgres" split_words:"true"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Cache selects and tunes the certificate cache backend.
type Cache struct {
	Backend   string        `yaml:"backend"`
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"       envconfig:"ttl"`
	BadgerDir string        `yaml:"badgerDir" split_words:"true"`
}

// Redis configures the Redis cache backend. An empty URL disables it.
type Redis struct {
	URL          string        `yaml:"url"          envconfig:"url"`
	PoolSize     int           `yaml:"poolSize"     split_words:"true"`
	MinIdleConns int           `yaml:"minIdleConns" split_words:"true"`
	DialTimeout  time.Duration `yaml:"dialTimeout"  split_words:"true"`
	ReadTimeout  time.Duration `yaml:"readTimeout"  split_words:"true"`
	WriteTimeout time.Duration `yaml:"writeTimeout" split_words:"true"`
}

// Ledger configures the ledger bridge client.
type Ledger struct {
	URL          string        `yaml:"url"          envconfig:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"pollInterval" split_words:"true"`
}

type IPFS struct {
	GatewayURL       string        `yaml:"gatewayUrl"       split_words:"true"`
	Timeout          time.Duration `yaml:"timeout"`
	BreakerThreshold int           `yaml:"breakerThreshold" split_words:"true"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"  split_words:"true"`
}

// Signer holds the operator identity used for ledger writes.
type Signer struct {
	Address  string        `yaml:"address"`
	Key      string        `yaml:"key"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TTL      time.Duration `yaml:"ttl" envconfig:"ttl"`
}

// Fetch tunes the fetch orchestrator.
type Fetch struct {
	Concurrency int    `yaml:"concurrency"`
	RecentLimit int    `yaml:"recentLimit" split_words:"true"`
	MaxBatch    int    `yaml:"maxBatch"    split_words:"true"`
	IDMode      string `yaml:"idMode"      envconfig:"id_mode"`
}

// Kafka configures the revocation event publisher. No brokers disables it.
type Kafka struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"clientId" split_words:"true"`
}

// Postgres configures the audit outbox store. An empty URL disables it.
type Postgres struct {
	URL string `yaml:"url" envconfig:"url"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: 30 * time.Second},
		Log:    Log{Level: "info", Format: "json"},
		Cache: Cache{
			Backend:   CacheMemory,
			Namespace: "certificate_cache",
			TTL:       5 * time.Minute,
		},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Ledger: Ledger{
			URL:          "http://localhost:8545",
			Timeout:      10 * time.Second,
			PollInterval: 2 * time.Second,
		},
		IPFS: IPFS{
			GatewayURL:       "https://ipfs.io",
			Timeout:          10 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Signer: Signer{
			Issuer:   "certledger",
			Audience: "ledger-bridge",
			TTL:      2 * time.Minute,
		},
		Fetch: Fetch{
			Concurrency: 8,
			RecentLimit: 10,
			MaxBatch:    1000,
			IDMode:      "random",
		},
		Kafka: Kafka{Topic: "certificate-revocations", ClientID: "certledger"},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects settings the process cannot start with.
func (c Config) Validate() error {
	switch strings.ToLower(c.Cache.Backend) {
	case CacheMemory, CacheBadger:
	case CacheRedis:
		if c.Redis.URL == "" {
			return errors.New("cache backend redis requires a redis url")
		}
	default:
		return fmt.Errorf("invalid cache backend %q (must be memory, redis or badger)", c.Cache.Backend)
	}
	switch c.Fetch.IDMode {
	case "random", "stable":
	default:
		return fmt.Errorf("invalid id mode %q (must be random or stable)", c.Fetch.IDMode)
	}
	if c.Ledger.URL == "" {
		return errors.New("ledger url is required")
	}
	if c.Fetch.Concurrency <= 0 {
		return errors.New("fetch concurrency must be positive")
	}
	return nil
}
