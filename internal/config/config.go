package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the simulator.
type Config struct {
	Port            int           `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	LogFile         string        `yaml:"log_file"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	TickInterval     time.Duration `yaml:"tick_interval"`
	MaxTicks         int           `yaml:"max_ticks"`
	OfferLifetime    int           `yaml:"offer_lifetime"`
	PriceDeviation   float64       `yaml:"price_deviation"`
	IssuanceInterval int           `yaml:"issuance_interval"`
	LotsPerWindow    int           `yaml:"lots_per_window"`
	LotSize          int           `yaml:"lot_size"`
	MinStrikePrice   float64       `yaml:"min_strike_price"`

	ConcessionProbability float64 `yaml:"concession_probability"`
	RetryProbability      float64 `yaml:"retry_probability"`
	RetryDecay            float64 `yaml:"retry_decay"`
	RetryQuantity         int     `yaml:"retry_quantity"`

	NumAgents     int   `yaml:"num_agents"`
	NumCompanies  int   `yaml:"num_companies"`
	OrdersPerTick int   `yaml:"orders_per_tick"`
	Seed          int64 `yaml:"seed"`

	SnapshotPath string `yaml:"snapshot_path"`
}

// Load reads configuration from environment variables and applies
// defaults. When CONFIG_FILE names a YAML document, the keys it sets
// override the environment. The result is validated.
func Load() (*Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel:     getStr("LOG_LEVEL", "info"),
		LogFile:      getStr("LOG_FILE", ""),
		SnapshotPath: getStr("SNAPSHOT_PATH", "data/stocksim.db"),
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"PORT", 8080, &cfg.Port},
		{"MAX_TICKS", 0, &cfg.MaxTicks},
		{"OFFER_LIFETIME", 10, &cfg.OfferLifetime},
		{"ISSUANCE_INTERVAL", 20, &cfg.IssuanceInterval},
		{"LOTS_PER_WINDOW", 10, &cfg.LotsPerWindow},
		{"LOT_SIZE", 100, &cfg.LotSize},
		{"RETRY_QUANTITY", 10, &cfg.RetryQuantity},
		{"NUM_AGENTS", 1000, &cfg.NumAgents},
		{"NUM_COMPANIES", 10, &cfg.NumCompanies},
		{"ORDERS_PER_TICK", 200, &cfg.OrdersPerTick},
	}
	for _, f := range ints {
		v, err := getInt(f.key, f.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = v
	}

	seed, err := getInt("SEED", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid SEED: %w", err)
	}
	cfg.Seed = int64(seed)

	floats := []struct {
		key string
		def float64
		dst *float64
	}{
		{"PRICE_DEVIATION", 5.0, &cfg.PriceDeviation},
		{"MIN_STRIKE_PRICE", 5.0, &cfg.MinStrikePrice},
		{"CONCESSION_PROBABILITY", 0.3, &cfg.ConcessionProbability},
		{"RETRY_PROBABILITY", 0.4, &cfg.RetryProbability},
		{"RETRY_DECAY", 0.25, &cfg.RetryDecay},
	}
	for _, f := range floats {
		v, err := getFloat(f.key, f.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = v
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"TICK_INTERVAL", 1 * time.Second, &cfg.TickInterval},
		{"READ_TIMEOUT", 5 * time.Second, &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", 10 * time.Second, &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", 60 * time.Second, &cfg.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
	}
	for _, f := range durations {
		v, err := getDuration(f.key, f.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = v
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !isValidLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be > 0, got %v", c.TickInterval))
	}
	if c.MaxTicks < 0 {
		errs = append(errs, fmt.Errorf("max ticks must be >= 0, got %d", c.MaxTicks))
	}
	if c.OfferLifetime < 1 {
		errs = append(errs, fmt.Errorf("offer lifetime must be >= 1, got %d", c.OfferLifetime))
	}
	if c.PriceDeviation < 0 {
		errs = append(errs, fmt.Errorf("price deviation must be >= 0, got %v", c.PriceDeviation))
	}
	if c.IssuanceInterval < 0 {
		errs = append(errs, fmt.Errorf("issuance interval must be >= 0, got %d", c.IssuanceInterval))
	}
	if c.LotsPerWindow < 1 || c.LotSize < 1 {
		errs = append(errs, fmt.Errorf("lots per window and lot size must be >= 1, got %d and %d", c.LotsPerWindow, c.LotSize))
	}
	if c.MinStrikePrice <= 0 {
		errs = append(errs, fmt.Errorf("min strike price must be > 0, got %v", c.MinStrikePrice))
	}
	for name, p := range map[string]float64{
		"concession probability": c.ConcessionProbability,
		"retry probability":      c.RetryProbability,
		"retry decay":            c.RetryDecay,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", name, p))
		}
	}
	if c.RetryQuantity < 1 {
		errs = append(errs, fmt.Errorf("retry quantity must be >= 1, got %d", c.RetryQuantity))
	}
	if c.NumAgents < 1 || c.NumCompanies < 1 {
		errs = append(errs, fmt.Errorf("need at least one agent and one company, got %d and %d", c.NumAgents, c.NumCompanies))
	}
	if c.OrdersPerTick < 0 {
		errs = append(errs, fmt.Errorf("orders per tick must be >= 0, got %d", c.OrdersPerTick))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be > 0, got %v", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
