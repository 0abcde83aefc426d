package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"service-rates/internal"
	"service-rates/internal/api/http/middleware"
	rateshttp "service-rates/internal/api/http/rates"
	"service-rates/internal/bus"
	"service-rates/internal/cache"
	"service-rates/internal/kafka"
	"service-rates/internal/metrics"
	"service-rates/internal/poller"
	"service-rates/internal/postgresql"
	"service-rates/internal/rateparser"
	"service-rates/internal/ratesource"
	"service-rates/internal/repository/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "issue-key" {
		err = issueKey(ctx)
	} else {
		err = run(ctx)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	// env
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// DB
	pool, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	storage := postgresql.NewCurrencyStorage(pool)
	reqLogger := internal.NewStorageAuditLogger(postgresql.NewRequestLogStorage(pool))
	keyValidator := internal.NewAPIKeyValidator(postgresql.NewAPIKeyStorage(pool), cfg.EncodingKey)

	// bus + subscribers
	m := metrics.New(prometheus.DefaultRegisterer)
	rateBus := bus.New(bus.Options{Metrics: m})
	latest := internal.NewLatestStore()

	rateBus.SubscribeNamed("latest", latest.Store)
	rateBus.SubscribeNamed("postgres", storage.UpsertSnapshot)

	var redisCache *cache.RedisCache
	if cfg.RedisAddr != "" {
		redisCache, err = cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisTTL)
		if err != nil {
			return err
		}
		defer func() { _ = redisCache.Close() }()
		rateBus.SubscribeNamed("redis", redisCache.StoreSnapshot)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = kp.Close() }()
		rateBus.SubscribeNamed("kafka", kp.PublishSnapshot)
	}

	warmUp(ctx, cfg.BaseCCY, latest, redisCache, storage)

	// poller
	source := ratesource.New(ratesource.Options{
		Timeout:            cfg.FetchTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	ratePoller := poller.New(source, rateparser.Parse, rateBus, poller.Options{
		Overlap: cfg.Overlap,
		Metrics: m,
	})

	// HTTP
	mux := http.NewServeMux()
	rateshttp.New(latest, ratePoller, cfg.Template(), reqLogger).
		Register(mux, middleware.APIKeyAuth(keyValidator, reqLogger))
	mux.Handle("/metrics", promhttp.Handler())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runPoller(gctx, ratePoller, cfg.Template().For(cfg.BaseCCY))
	})

	g.Go(func() error {
		return serveHTTP(gctx, ":"+cfg.HTTPPort, mux)
	})

	log.Println("Running. Stop with Ctrl+C / SIGTERM.")
	return g.Wait()
}

func connectDB(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	dbCtx, cancelDB := context.WithTimeout(ctx, 5*time.Second)
	defer cancelDB()

	pool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := migrations.New(pool).Setup(dbCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure tables: %w", err)
	}
	return pool, nil
}

// warmUp serves the last known rates until the first tick publishes.
func warmUp(ctx context.Context, base internal.CurrencyCode, latest *internal.LatestStore, redisCache *cache.RedisCache, storage *postgresql.CurrencyStorage) {
	if redisCache != nil {
		if snap, err := redisCache.LoadSnapshot(ctx, base); err == nil {
			_ = latest.Store(ctx, snap)
			log.Printf("rates warmed from redis: base=%s fetched_at=%s", base, snap.FetchedAt().Format(time.RFC3339))
			return
		}
	}
	snap, err := storage.GetLatest(ctx, base)
	if err != nil {
		if !errors.Is(err, postgresql.ErrNoRates) {
			log.Printf("warm up from db: %v", err)
		}
		return
	}
	_ = latest.Store(ctx, snap)
	log.Printf("rates warmed from db: base=%s fetched_at=%s", base, snap.FetchedAt().Format(time.RFC3339))
}

func runPoller(ctx context.Context, p *poller.Poller, job internal.FetchJob) error {
	if err := p.Start(job); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	<-ctx.Done()
	if err := p.Stop(); err != nil {
		return fmt.Errorf("stop poller: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Wait(waitCtx); err != nil {
		log.Printf("poller drain: %v", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Printf("HTTP listening on %s", addr)
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// issueKey creates a new API key for PUT /api/v1/base and prints it once.
// Only its HMAC is stored.
func issueKey(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	raw := uuid.NewString()
	if err := postgresql.NewAPIKeyStorage(pool).Insert(ctx, internal.HashAPIKey(raw, cfg.EncodingKey)); err != nil {
		return fmt.Errorf("issue key: %w", err)
	}
	fmt.Println(raw)
	return nil
}
