package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables: MARKETPLACE_SERVER_PORT sets server.port.
const EnvPrefix = "MARKETPLACE_"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	OTLP        OTLPConfig        `koanf:"otlp"`
	Marketplace MarketplaceConfig `koanf:"marketplace"`
	Storage     StorageConfig     `koanf:"storage"`
	Events      EventsConfig      `koanf:"events"`
	Log         LogConfig         `koanf:"log"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type ServerConfig struct {
	Port            string        `koanf:"port"`
	Host            string        `koanf:"host"`
	ReadTimeout     time.Duration `koanf:"readtimeout"`
	WriteTimeout    time.Duration `koanf:"writetimeout"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
}

type OTLPConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"servicename"`
	Environment string `koanf:"environment"`
}

type MarketplaceConfig struct {
	Name string `koanf:"name"`
}

type StorageConfig struct {
	Driver      string        `koanf:"driver"`
	DatabaseURL string        `koanf:"databaseurl"`
	Timeout     time.Duration `koanf:"timeout"`
}

type EventsConfig struct {
	NATS NATSConfig `koanf:"nats"`
}

type NATSConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Stream  string        `koanf:"stream"`
	Subject string        `koanf:"subject"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.host":            "0.0.0.0",
		"server.port":            "8080",
		"server.readtimeout":     "10s",
		"server.writetimeout":    "10s",
		"server.shutdowntimeout": "5s",
		"otlp.enabled":           false,
		"otlp.endpoint":          "localhost:4317",
		"otlp.servicename":       "emmytech-marketplace",
		"otlp.environment":       "development",
		"marketplace.name":       "emmytech",
		"storage.driver":         StorageMemory,
		"storage.timeout":        "5s",
		"events.nats.enabled":    false,
		"events.nats.url":        "nats://localhost:4222",
		"events.nats.timeout":    "5s",
		"events.nats.stream":     "MARKETPLACE",
		"events.nats.subject":    "marketplace",
		"log.level":              "info",
	}
}

// LoadConfig merges, lowest priority first: defaults, config.yaml, .env, process environment.
func LoadConfig() (*Config, error) {
	return load("config.yaml", ".env")
}

func load(configFile, envFile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("WARN: error loading YAML config file '%s': %v", configFile, err)
		}
	}

	if envFileMap, err := godotenv.Read(envFile); err == nil {
		envMap := make(map[string]any)
		for key, value := range envFileMap {
			if strings.HasPrefix(key, EnvPrefix) {
				envMap[envKey(key)] = value
			}
		}
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			log.Printf("WARN: error loading .env config: %v", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: error reading .env file: %v", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		log.Printf("WARN: error loading system env vars: %v", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey turns MARKETPLACE_EVENTS_NATS_URL into events.nats.url.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is not configured")
	}
	if c.Marketplace.Name == "" {
		return fmt.Errorf("marketplace name is not configured")
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if !strings.HasPrefix(c.Storage.DatabaseURL, "postgres://") && !strings.HasPrefix(c.Storage.DatabaseURL, "postgresql://") {
			return fmt.Errorf("database URL must start with 'postgres://': %q", c.Storage.DatabaseURL)
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}
	if c.Events.NATS.Enabled {
		if c.Events.NATS.URL == "" {
			return fmt.Errorf("NATS URL is not configured")
		}
		if c.Events.NATS.Subject == "" {
			return fmt.Errorf("NATS subject prefix is not configured")
		}
	}
	return nil
}
