package di

import (
	"context"
	"fmt"
	"time"

	"Rotator/internal/domain/repository"
	"Rotator/internal/handler/api"
	internalrepo "Rotator/internal/repository"
	"Rotator/internal/service/alpaca"
	"Rotator/internal/service/ratelimit"
	"Rotator/internal/services/analytics"
	"Rotator/internal/services/portfolio"
	"Rotator/internal/usecase"
	"Rotator/pkg/cache"
	pkgch "Rotator/pkg/clickhouse"
	"Rotator/pkg/config"
	xhttp "Rotator/pkg/http"
	pkgkafka "Rotator/pkg/kafka"
	applogger "Rotator/pkg/logger"
	"Rotator/pkg/metrics"
	pkgpg "Rotator/pkg/postgres"
	"Rotator/pkg/server"
)

const initTimeout = 30 * time.Second

// ProvideLogger builds the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideLocation resolves the exchange timezone used for scheduling and
// bar dates.
func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}
	return loc, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(pkgch.Config{
		Host:        cfg.ClickHouse.Host,
		Port:        cfg.ClickHouse.Port,
		Database:    cfg.ClickHouse.Database,
		User:        cfg.ClickHouse.User,
		Password:    cfg.ClickHouse.Password,
		DialTimeout: cfg.ClickHouse.DialTimeout,
		ReadTimeout: cfg.ClickHouse.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvidePostgresClient opens the run log database.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, error) {
	client, err := pkgpg.NewClient(pkgpg.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, nil
}

// ProvideRedisCache connects to Redis, or returns nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	c, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

// ProvideKafkaProducer creates a Kafka producer, or returns nil when
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  cfg.Kafka.MaxAttempts,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideBarStore creates the ClickHouse bar store and its table.
func ProvideBarStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.BarStore, error) {
	store := internalrepo.NewClickHouseBarStore(ch.DB(), cfg.ClickHouse.Table, l)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideRunStore creates the Postgres run store, fronted by the Redis
// state cache when Redis is enabled.
func ProvideRunStore(pg *pkgpg.Client, rc *cache.RedisCache, cfg *config.Config, l *applogger.Logger) (repository.RunStore, error) {
	store := internalrepo.NewPostgresRunStore(pg.DB(), cfg.Postgres.QueryTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	if rc == nil {
		return store, nil
	}
	return internalrepo.NewCachedRunStore(store, rc, cfg.Redis.StateTTL, l), nil
}

// ProvideRunLock returns the cross-process run lock, or nil without Redis.
func ProvideRunLock(rc *cache.RedisCache, cfg *config.Config) repository.RunLock {
	if rc == nil {
		return nil
	}
	return internalrepo.NewCacheRunLock(rc, "", cfg.Redis.LockTTL)
}

// ProvideEventPublisher publishes run results to Kafka when enabled.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NoopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
}

func breakerConfig(cfg *config.Config) alpaca.BreakerConfig {
	return alpaca.BreakerConfig{
		ConsecutiveFailures: cfg.Alpaca.Breaker.ConsecutiveFailures,
		OpenTimeout:         cfg.Alpaca.Breaker.OpenTimeout,
	}
}

// ProvideBroker creates the Alpaca trading client.
func ProvideBroker(cfg *config.Config, l *applogger.Logger) repository.Broker {
	return alpaca.NewBrokerClient(alpaca.BrokerConfig{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
		Timeout:   cfg.Alpaca.Timeout,
		Breaker:   breakerConfig(cfg),
	}, l)
}

// ProvideMarketData creates the Alpaca daily bars client.
func ProvideMarketData(cfg *config.Config, loc *time.Location, l *applogger.Logger) repository.MarketData {
	return alpaca.NewMarketDataClient(alpaca.MarketDataConfig{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		Feed:      cfg.Alpaca.DataFeed,
		Timeout:   cfg.Alpaca.Timeout,
		RateLimit: cfg.Alpaca.RateLimit,
		Burst:     cfg.Alpaca.Burst,
		Location:  loc,
		Breaker:   breakerConfig(cfg),
	}, l)
}

// ProvideBarManager creates the bar warmup manager.
func ProvideBarManager(store repository.BarStore, data repository.MarketData, m repository.Metrics, cfg *config.Config, loc *time.Location, l *applogger.Logger) *usecase.BarManager {
	return usecase.NewBarManager(store, data, m, usecase.BarManagerConfig{
		WarmupMonths: cfg.Strategy.WarmupMonths,
		HistoryBars:  cfg.Strategy.WarmupBars,
		Location:     loc,
	}, l)
}

// StrategyConfig maps the strategy section onto the portfolio knobs.
func StrategyConfig(s config.Strategy) portfolio.Config {
	return portfolio.Config{
		SafeAsset:         s.SafeAsset,
		DefensiveAsset:    s.DefensiveAsset,
		Leveraged:         s.Leveraged,
		MaxPositions:      s.MaxPositions,
		FastWeight:        s.Weights.Fast,
		MedWeight:         s.Weights.Med,
		SlowWeight:        s.Weights.Slow,
		AboveSMAFactor:    s.TrendFactors.AboveSMA,
		BelowSMAFactor:    s.TrendFactors.BelowSMA,
		TargetVolatility:  s.TargetVolatility,
		LeveragedCap:      s.LeveragedCap,
		ResidualThreshold: s.ResidualThreshold,
		Deadband:          s.Deadband,
	}
}

// ProvideOrchestrator creates the rebalance pipeline.
func ProvideOrchestrator(
	bars *usecase.BarManager,
	broker repository.Broker,
	runs repository.RunStore,
	events repository.EventPublisher,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.RebalanceOrchestrator {
	p := cfg.Strategy.Periods
	return usecase.NewRebalanceOrchestrator(bars, broker, runs, events, m, usecase.OrchestratorConfig{
		Universe:     cfg.Strategy.Universe,
		Benchmark:    cfg.Strategy.Benchmark,
		BenchmarkSMA: p.BenchmarkSMA,
		HistoryBars:  cfg.Strategy.WarmupBars,
		Periods: analytics.Periods{
			RocFast: p.RocFast,
			RocMed:  p.RocMed,
			RocSlow: p.RocSlow,
			StdDev:  p.StdDev,
			RSI:     p.RSI,
			SMA:     p.SMA,
		},
		Strategy: StrategyConfig(cfg.Strategy),
	}, l)
}

// ProvideEngine creates the scheduler and run guard.
func ProvideEngine(
	orch *usecase.RebalanceOrchestrator,
	bars *usecase.BarManager,
	broker repository.Broker,
	runs repository.RunStore,
	lock repository.RunLock,
	m repository.Metrics,
	cfg *config.Config,
	loc *time.Location,
	l *applogger.Logger,
) (*usecase.Engine, error) {
	return usecase.NewEngine(orch, bars, broker, runs, lock, m, usecase.EngineConfig{
		Schedule:      cfg.Schedule.Cron,
		Location:      loc,
		Enabled:       cfg.Schedule.Enabled,
		Symbols:       cfg.Symbols(),
		WarmupTimeout: cfg.Schedule.WarmupTimeout,
		RunTimeout:    cfg.Schedule.RunTimeout,
	}, l)
}

// ProvideTriggerLimiter throttles the manual rebalance endpoint per IP.
func ProvideTriggerLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.TriggerPerMinute/60, cfg.Server.TriggerBurst)
}

// ProvideAlgorithmHandler creates the algorithm HTTP handler with store
// health checks.
func ProvideAlgorithmHandler(
	engine *usecase.Engine,
	limiter *ratelimit.Limiter,
	bars repository.BarStore,
	runs repository.RunStore,
	rc *cache.RedisCache,
	cfg *config.Config,
	l *applogger.Logger,
) *api.AlgorithmEchoHandler {
	checks := map[string]api.HealthCheck{
		"clickhouse": bars.Health,
		"postgres":   runs.Health,
	}
	if rc != nil {
		checks["redis"] = rc.Ping
	}
	return api.NewAlgorithmEchoHandler(l, engine, limiter, checks, cfg.Schedule.RunTimeout)
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(h *api.AlgorithmEchoHandler, cfg *config.Config, l *applogger.Logger) *xhttp.Server {
	metricsPath := cfg.Metrics.Path
	if !cfg.Metrics.Enabled {
		metricsPath = ""
	}
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithMetrics(metricsPath, nil, nil),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	engine *usecase.Engine,
	srv *xhttp.Server,
	ch *pkgch.Client,
	pg *pkgpg.Client,
	rc *cache.RedisCache,
	events repository.EventPublisher,
) *server.App {
	closers := []server.Closer{
		{Name: "clickhouse", Close: ch.Close},
		{Name: "postgres", Close: pg.Close},
	}
	if rc != nil {
		closers = append(closers, server.Closer{Name: "redis", Close: rc.Close})
	}
	closers = append(closers, server.Closer{Name: "kafka", Close: events.Close})
	return server.New(cfg, l, engine, srv, closers...)
}
