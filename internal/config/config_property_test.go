package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: stocksim, Property: configuration bounds and overlay precedence

var durationEnvKeys = []string{
	"TICK_INTERVAL",
	"READ_TIMEOUT",
	"WRITE_TIMEOUT",
	"IDLE_TIMEOUT",
	"SHUTDOWN_TIMEOUT",
}

// intKey describes an integer setting by env and YAML name, the range
// drawn for it and where Load stores it. Only PORT has an upper bound.
type intKey struct {
	env, yaml string
	min, max  int
	field     func(*Config) int
}

var intKeys = []intKey{
	{"PORT", "port", 1, 65535, func(c *Config) int { return c.Port }},
	{"MAX_TICKS", "max_ticks", 0, 1 << 20, func(c *Config) int { return c.MaxTicks }},
	{"OFFER_LIFETIME", "offer_lifetime", 1, 1 << 20, func(c *Config) int { return c.OfferLifetime }},
	{"ISSUANCE_INTERVAL", "issuance_interval", 0, 1 << 20, func(c *Config) int { return c.IssuanceInterval }},
	{"LOTS_PER_WINDOW", "lots_per_window", 1, 1000, func(c *Config) int { return c.LotsPerWindow }},
	{"LOT_SIZE", "lot_size", 1, 1000, func(c *Config) int { return c.LotSize }},
	{"RETRY_QUANTITY", "retry_quantity", 1, 1 << 20, func(c *Config) int { return c.RetryQuantity }},
	{"NUM_AGENTS", "num_agents", 1, 1 << 20, func(c *Config) int { return c.NumAgents }},
	{"NUM_COMPANIES", "num_companies", 1, 1 << 20, func(c *Config) int { return c.NumCompanies }},
	{"ORDERS_PER_TICK", "orders_per_tick", 0, 1 << 20, func(c *Config) int { return c.OrdersPerTick }},
}

// floatKey pairs a float setting with the range Validate accepts.
type floatKey struct {
	env   string
	ok    func(float64) bool
	field func(*Config) float64
}

var floatKeys = []floatKey{
	{"PRICE_DEVIATION", func(v float64) bool { return v >= 0 }, func(c *Config) float64 { return c.PriceDeviation }},
	{"MIN_STRIKE_PRICE", func(v float64) bool { return v > 0 }, func(c *Config) float64 { return c.MinStrikePrice }},
	{"CONCESSION_PROBABILITY", unitInterval, func(c *Config) float64 { return c.ConcessionProbability }},
	{"RETRY_PROBABILITY", unitInterval, func(c *Config) float64 { return c.RetryProbability }},
	{"RETRY_DECAY", unitInterval, func(c *Config) float64 { return c.RetryDecay }},
}

func unitInterval(v float64) bool { return v >= 0 && v <= 1 }

func unsetAllConfigEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
}

func TestProperty_IntSettingsBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		k := rapid.SampledFrom(intKeys).Draw(t, "key")
		v := rapid.IntRange(k.min-50, k.max+50).Draw(t, "value")
		os.Setenv(k.env, strconv.Itoa(v))

		cfg, err := Load()
		inRange := v >= k.min && (k.env != "PORT" || v <= k.max)
		if !inRange {
			if err == nil {
				t.Fatalf("Load() accepted %s=%d", k.env, v)
			}
			return
		}
		if err != nil {
			t.Fatalf("Load() rejected %s=%d: %v", k.env, v, err)
		}
		if got := k.field(cfg); got != v {
			t.Fatalf("%s = %d, want %d", k.env, got, v)
		}
	})
}

func TestProperty_MalformedIntRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		key := rapid.SampledFrom(append([]string{"SEED"}, envNames(intKeys)...)).Draw(t, "key")
		bad := rapid.OneOf(
			rapid.StringMatching(`[a-z]{1,8}`),
			rapid.Just("2.5"),
			rapid.Just("1e3"),
			rapid.Just("10 ticks"),
		).Draw(t, "bad")
		os.Setenv(key, bad)

		if _, err := Load(); err == nil {
			t.Fatalf("Load() accepted %s=%q", key, bad)
		}
	})
}

func TestProperty_FloatSettingsBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		k := rapid.SampledFrom(floatKeys).Draw(t, "key")
		v := rapid.Float64Range(-2, 3).Draw(t, "value")
		os.Setenv(k.env, strconv.FormatFloat(v, 'g', -1, 64))

		cfg, err := Load()
		if !k.ok(v) {
			if err == nil {
				t.Fatalf("Load() accepted %s=%g", k.env, v)
			}
			return
		}
		if err != nil {
			t.Fatalf("Load() rejected %s=%g: %v", k.env, v, err)
		}
		if got := k.field(cfg); got != v {
			t.Fatalf("%s = %g, want %g", k.env, got, v)
		}
	})
}

func TestProperty_DurationSettings(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		key := rapid.SampledFrom(durationEnvKeys).Draw(t, "key")
		unit := rapid.SampledFrom([]string{"ms", "s", "m"}).Draw(t, "unit")
		n := rapid.IntRange(1, 600).Draw(t, "n")
		raw := fmt.Sprintf("%d%s", n, unit)
		want, _ := time.ParseDuration(raw)
		os.Setenv(key, raw)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() rejected %s=%s: %v", key, raw, err)
		}
		got := map[string]time.Duration{
			"TICK_INTERVAL":    cfg.TickInterval,
			"READ_TIMEOUT":     cfg.ReadTimeout,
			"WRITE_TIMEOUT":    cfg.WriteTimeout,
			"IDLE_TIMEOUT":     cfg.IdleTimeout,
			"SHUTDOWN_TIMEOUT": cfg.ShutdownTimeout,
		}[key]
		if got != want {
			t.Fatalf("%s = %v, want %v", key, got, want)
		}
	})
}

// The YAML overlay wins over the environment for every key it sets and
// leaves the others at their env value.
func TestProperty_YAMLOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stocksim.yaml")
	rapid.Check(t, func(rt *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		i := rapid.IntRange(0, len(intKeys)-1).Draw(rt, "file key")
		j := rapid.IntRange(0, len(intKeys)-1).Filter(func(j int) bool { return j != i }).Draw(rt, "env key")
		fileKey, envKey := intKeys[i], intKeys[j]
		envVal := rapid.IntRange(fileKey.min, fileKey.max).Draw(rt, "env value")
		fileVal := rapid.IntRange(fileKey.min, fileKey.max).Draw(rt, "file value")
		otherVal := rapid.IntRange(envKey.min, envKey.max).Draw(rt, "other value")

		doc := fmt.Sprintf("%s: %d\n", fileKey.yaml, fileVal)
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			rt.Fatal(err)
		}
		os.Setenv("CONFIG_FILE", path)
		os.Setenv(fileKey.env, strconv.Itoa(envVal))
		os.Setenv(envKey.env, strconv.Itoa(otherVal))

		cfg, err := Load()
		if err != nil {
			rt.Fatalf("Load(): %v", err)
		}
		if got := fileKey.field(cfg); got != fileVal {
			rt.Fatalf("%s = %d, want file value %d over env %d", fileKey.env, got, fileVal, envVal)
		}
		if got := envKey.field(cfg); got != otherVal {
			rt.Fatalf("%s = %d, want env value %d", envKey.env, got, otherVal)
		}
	})
}

func envNames(keys []intKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.env
	}
	return out
}
