// Package config loads the simulator configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// Config represents application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Account  AccountConfig  `yaml:"account"`
	Market   MarketConfig   `yaml:"market"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents HTTP server settings
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig represents PostgreSQL settings. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig represents the market listing cache. Ignored without a database.
type RedisConfig struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

// AccountConfig identifies the single trading account.
type AccountConfig struct {
	ID             int64           `yaml:"id"`
	Name           string          `yaml:"name"`
	InitialBalance decimal.Decimal `yaml:"initial_balance"`
}

// MarketConfig represents price simulation settings and the instruments the
// in-memory store starts with.
type MarketConfig struct {
	UpdateInterval time.Duration      `yaml:"update_interval"`
	Instruments    []InstrumentConfig `yaml:"instruments"`
}

// InstrumentConfig is one seeded stock.
type InstrumentConfig struct {
	Symbol string          `yaml:"symbol"`
	Price  decimal.Decimal `yaml:"price"`
}

// LogConfig represents logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{TTL: 30 * time.Second},
		Account: AccountConfig{
			ID:             1,
			Name:           "Mario",
			InitialBalance: decimal.NewFromInt(10000),
		},
		Market: MarketConfig{
			Instruments: []InstrumentConfig{
				{Symbol: "AAPL", Price: decimal.NewFromInt(150)},
				{Symbol: "TSLA", Price: decimal.NewFromInt(710)},
				{Symbol: "MSFT", Price: decimal.NewFromInt(320)},
				{Symbol: "NVDA", Price: decimal.NewFromInt(450)},
				{Symbol: "AMD", Price: decimal.NewFromInt(115)},
			},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load loads configuration from YAML file with env overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from YAML file
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := cfg.loadEnvOverrides(); err != nil {
		return nil, err
	}

	// Validate
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadEnvOverrides overrides config with environment variables
func (c *Config) loadEnvOverrides() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("ACCOUNT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ACCOUNT_ID %q: %w", v, err)
		}
		c.Account.ID = id
	}
	if v := os.Getenv("PRICE_UPDATE_INTERVAL"); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PRICE_UPDATE_INTERVAL %q: %w", v, err)
		}
		c.Market.UpdateInterval = dur
	}
	return nil
}

// validate validates configuration
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Account.ID <= 0 {
		return fmt.Errorf("account.id must be positive")
	}
	if c.Account.InitialBalance.IsNegative() {
		return fmt.Errorf("account.initial_balance must not be negative")
	}
	if c.Market.UpdateInterval < 0 {
		return fmt.Errorf("market.update_interval must not be negative")
	}

	seen := make(map[string]bool, len(c.Market.Instruments))
	for _, inst := range c.Market.Instruments {
		if !symbolRegex.MatchString(inst.Symbol) {
			return fmt.Errorf("market.instruments: invalid symbol %q", inst.Symbol)
		}
		if seen[inst.Symbol] {
			return fmt.Errorf("market.instruments: duplicate symbol %s", inst.Symbol)
		}
		seen[inst.Symbol] = true
		if !inst.Price.IsPositive() {
			return fmt.Errorf("market.instruments: %s price must be positive", inst.Symbol)
		}
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = 30 * time.Second // default
	}
	return nil
}
