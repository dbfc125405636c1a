package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"Rotator/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
		// Manual rebalance throttle per client IP.
		TriggerPerMinute float64 `yaml:"trigger_per_minute" default:"2" validate:"gt=0"`
		TriggerBurst     int     `yaml:"trigger_burst" default:"1" validate:"gte=1"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Alpaca struct {
		APIKey    string        `yaml:"api_key" validate:"required"`
		APISecret string        `yaml:"api_secret" validate:"required"`
		BaseURL   string        `yaml:"base_url" default:"https://paper-api.alpaca.markets" validate:"url"`
		DataFeed  string        `yaml:"data_feed" default:"iex" validate:"omitempty,oneof=iex sip"`
		Timeout   time.Duration `yaml:"timeout" default:"15s"`
		RateLimit float64       `yaml:"rate_limit" default:"3" validate:"gt=0"`
		Burst     int           `yaml:"burst" default:"3" validate:"gte=1"`
		Breaker   struct {
			ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"5" validate:"gte=1"`
			OpenTimeout         time.Duration `yaml:"open_timeout" default:"30s"`
		} `yaml:"breaker"`
	} `yaml:"alpaca"`
	ClickHouse struct {
		Host        string        `yaml:"host" default:"localhost" validate:"required"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"default"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		Table       string        `yaml:"table" default:"daily_bars" validate:"required"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"30s"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN             string        `yaml:"dsn" validate:"required"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
		QueryTimeout    time.Duration `yaml:"query_timeout" default:"5s"`
	} `yaml:"postgres"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"rotator:"`
		StateTTL time.Duration `yaml:"state_ttl" default:"1m"`
		LockTTL  time.Duration `yaml:"lock_ttl" default:"15m"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"rotator.rebalances"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	Strategy Strategy `yaml:"strategy"`
	Schedule struct {
		Enabled       bool          `yaml:"enabled" default:"true"`
		Cron          string        `yaml:"cron" default:"0 10 * * 1" validate:"required"`
		Timezone      string        `yaml:"timezone" default:"America/New_York" validate:"required"`
		WarmupTimeout time.Duration `yaml:"warmup_timeout" default:"5m"`
		RunTimeout    time.Duration `yaml:"run_timeout" default:"10m"`
	} `yaml:"schedule"`
}

// Strategy holds the rotation universe and every tuning constant.
type Strategy struct {
	Universe          []string `yaml:"universe" default:"[\"SOXL\",\"TECL\",\"TQQQ\",\"FAS\",\"ERX\",\"UUP\",\"TMF\",\"BIL\",\"TSLA\",\"XOM\",\"CVX\",\"ROBO\",\"ARKX\",\"MSFT\",\"GOOGL\",\"META\",\"BOIL\",\"LABU\",\"ARKG\"]" validate:"min=1,dive,required"`
	Benchmark         string   `yaml:"benchmark" default:"SPY" validate:"required"`
	SafeAsset         string   `yaml:"safe_asset" default:"BIL" validate:"required"`
	DefensiveAsset    string   `yaml:"defensive_asset" default:"UUP" validate:"required"`
	Leveraged         []string `yaml:"leveraged" default:"[\"SOXL\",\"TECL\",\"TQQQ\",\"FAS\",\"ERX\",\"LABU\"]"`
	MaxPositions      int      `yaml:"max_positions" default:"3" validate:"gte=1"`
	TargetVolatility  float64  `yaml:"target_volatility" default:"0.60" validate:"gt=0"`
	LeveragedCap      float64  `yaml:"leveraged_cap" default:"0.50" validate:"gt=0,lte=1"`
	Deadband          float64  `yaml:"deadband" default:"0.10" validate:"gte=0,lt=1"`
	ResidualThreshold float64  `yaml:"residual_threshold" default:"0.90" validate:"gte=0,lte=1"`
	WarmupBars        int      `yaml:"warmup_bars" default:"300" validate:"gte=1"`
	WarmupMonths      int      `yaml:"warmup_months" default:"18" validate:"gte=1"`
	Weights           struct {
		Fast float64 `yaml:"fast" default:"0.40"`
		Med  float64 `yaml:"med" default:"0.35"`
		Slow float64 `yaml:"slow" default:"0.25"`
	} `yaml:"weights"`
	TrendFactors struct {
		AboveSMA float64 `yaml:"above_sma" default:"1.0"`
		BelowSMA float64 `yaml:"below_sma" default:"0.6"`
	} `yaml:"trend_factors"`
	Periods struct {
		RocFast      int `yaml:"roc_fast" default:"9" validate:"gte=1"`
		RocMed       int `yaml:"roc_med" default:"21" validate:"gte=1"`
		RocSlow      int `yaml:"roc_slow" default:"63" validate:"gte=1"`
		StdDev       int `yaml:"std_dev" default:"21" validate:"gte=1"`
		RSI          int `yaml:"rsi" default:"14" validate:"gte=1"`
		SMA          int `yaml:"sma" default:"50" validate:"gte=1"`
		BenchmarkSMA int `yaml:"benchmark_sma" default:"200" validate:"gte=1"`
	} `yaml:"periods"`
}

// Load reads a YAML configuration file over the built-in defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), then the YAML file, then applies
// environment overrides before validating.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	var c Config
	// Defaults go first so that explicit zero values in the file win.
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		c.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		c.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		c.Alpaca.BaseURL = v
	}
	if v := os.Getenv("PG_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if v := os.Getenv("UNIVERSE"); v != "" {
		c.Strategy.Universe = util.SplitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate checks struct tags and the cross-field strategy rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	s := c.Strategy
	if !contains(s.Universe, s.SafeAsset) {
		return fmt.Errorf("strategy.safe_asset %q must be in the universe", s.SafeAsset)
	}
	if !contains(s.Universe, s.DefensiveAsset) {
		return fmt.Errorf("strategy.defensive_asset %q must be in the universe", s.DefensiveAsset)
	}
	for _, l := range s.Leveraged {
		if !contains(s.Universe, l) {
			return fmt.Errorf("strategy.leveraged symbol %q is not in the universe", l)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Redis.Enabled && c.Redis.LockTTL <= c.Schedule.RunTimeout {
		return fmt.Errorf("redis.lock_ttl (%s) must exceed schedule.run_timeout (%s)",
			c.Redis.LockTTL, c.Schedule.RunTimeout)
	}
	return nil
}

// Location resolves the schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// Symbols is the universe plus the benchmark, benchmark last.
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Strategy.Universe)+1)
	out = append(out, c.Strategy.Universe...)
	if !contains(out, c.Strategy.Benchmark) {
		out = append(out, c.Strategy.Benchmark)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
