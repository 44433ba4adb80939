package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source/busstop"
	"github.com/awphi/esp32-cambridge-transit/pkg/dataaggregator/source/nationalrail"
	"github.com/awphi/esp32-cambridge-transit/pkg/redis_client"
	"github.com/awphi/esp32-cambridge-transit/pkg/util"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCacheTTL      = 30
	DefaultClientTimeout = 10
	DefaultListen        = ":8000"
)

type Config struct {
	Bus  BusConfig  `yaml:"bus"`
	Rail RailConfig `yaml:"rail"`

	// Durations are whole seconds
	CacheTTL       int `yaml:"cache_ttl" validate:"gt=0"`
	ClientTimeout  int `yaml:"client_timeout" validate:"gt=0"`
	ConnectTimeout int `yaml:"connect_timeout" validate:"gt=0"`

	Listen string `yaml:"listen" validate:"required"`

	Redis RedisConfig `yaml:"redis"`
}

type BusConfig struct {
	StopRef  string `yaml:"stop_ref" validate:"required"`
	Endpoint string `yaml:"endpoint" validate:"required,url"`
}

type RailConfig struct {
	Query    string `yaml:"query" validate:"required"`
	APIKey   string `yaml:"api_key" validate:"required"`
	Endpoint string `yaml:"endpoint" validate:"required,url"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Database int    `yaml:"database" validate:"gte=0"`
}

func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

func (c *Config) ClientTimeoutDuration() time.Duration {
	return time.Duration(c.ClientTimeout) * time.Second
}

func (c *Config) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

func (r RedisConfig) Options() redis_client.Options {
	return redis_client.Options{
		Address:  r.Address,
		Password: r.Password,
		Database: r.Database,
	}
}

func defaults() *Config {
	return &Config{
		Bus: BusConfig{
			Endpoint: busstop.DefaultEndpoint,
		},
		Rail: RailConfig{
			Endpoint: nationalrail.DefaultEndpoint,
		},
		CacheTTL:      DefaultCacheTTL,
		ClientTimeout: DefaultClientTimeout,
		Listen:        DefaultListen,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then the environment, and validates it.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadRedis is Load for commands that only talk to Redis.
func LoadRedis(path string) (*RedisConfig, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if !cfg.Redis.Enabled() {
		return nil, errors.New("invalid configuration: TRANSIT_REDIS_ADDRESS is not set")
	}
	if err := validator.New().Struct(cfg.Redis); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg.Redis, nil
}

func load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnvironment(cfg, util.GetEnvironmentVariables()); err != nil {
		return nil, err
	}

	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = cfg.ClientTimeout
	}

	return cfg, nil
}

func applyEnvironment(cfg *Config, env map[string]string) error {
	stringValues := map[string]*string{
		"BUS_STOP_REF":           &cfg.Bus.StopRef,
		"TRANSIT_BUS_ENDPOINT":   &cfg.Bus.Endpoint,
		"TRAIN_QUERY":            &cfg.Rail.Query,
		"TRAIN_API_KEY":          &cfg.Rail.APIKey,
		"TRANSIT_RAIL_ENDPOINT":  &cfg.Rail.Endpoint,
		"TRANSIT_LISTEN":         &cfg.Listen,
		"TRANSIT_REDIS_ADDRESS":  &cfg.Redis.Address,
		"TRANSIT_REDIS_PASSWORD": &cfg.Redis.Password,
	}
	for name, target := range stringValues {
		if value, ok := env[name]; ok && value != "" {
			*target = value
		}
	}

	intValues := map[string]*int{
		"CACHE_TTL":              &cfg.CacheTTL,
		"CLIENT_TIMEOUT":         &cfg.ClientTimeout,
		"CONNECT_TIMEOUT":        &cfg.ConnectTimeout,
		"TRANSIT_REDIS_DATABASE": &cfg.Redis.Database,
	}
	for name, target := range intValues {
		value, ok := env[name]
		if !ok || value == "" {
			continue
		}

		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		*target = parsed
	}

	return nil
}
