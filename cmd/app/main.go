// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credit-settlement/internal/config"
	"credit-settlement/internal/domain/ports/adapter"
	"credit-settlement/internal/domain/ports/repository"
	pg "credit-settlement/internal/infra/db/postgres"
	"credit-settlement/internal/infra/logging"
	"credit-settlement/internal/infra/metrics"
	"credit-settlement/internal/infra/notify"
	"credit-settlement/internal/infra/rabbitmq"
	red "credit-settlement/internal/infra/redis"
	"credit-settlement/internal/infra/sched"
	"credit-settlement/internal/infra/web"
	"credit-settlement/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted memos)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	prices, err := cfg.PriceTable()
	if err != nil {
		logger.Fatal().Err(err).Msg("pricing")
	}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	payRepo := pg.NewPaymentRepo(pool)
	walletRepo := pg.NewWalletRepo(pool)
	flagRepo := pg.NewReconciliationRepo(pool)
	var subRepo repository.SubscriptionRepository = pg.NewSubscriptionRepo(pool)

	// ---- Redis (optional) ----
	var (
		balanceCache adapter.BalanceCache
		limiter      web.Limiter
		targets      []notify.Target
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		balanceCache = red.NewBalanceCache(redisClient, cfg.Redis.TTL)
		limiter = red.NewRateLimiter(redisClient)
		subRepo = pg.NewSubscriptionRepoCacheDecorator(subRepo, redisClient, cfg.Redis.TTL)
		targets = append(targets, notify.Target{Name: "redis", Invalidator: red.NewInvalidator(redisClient)})
	} else {
		logger.Warn().Msg("redis.url not set; balance cache and auth failure limiting disabled")
	}

	// ---- RabbitMQ (optional) ----
	var publisher rabbitmq.Publisher
	if cfg.RabbitMQ.URL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Error().Err(err).Msg("rabbitmq unavailable; settlement events will not be published")
			publisher = rabbitmq.NewEventProducerFallback(logger)
		} else {
			publisher = producer
		}
	} else {
		publisher = rabbitmq.NewEventProducerFallback(logger)
	}
	defer publisher.Close()
	targets = append(targets, notify.Target{Name: "rabbitmq", Invalidator: rabbitmq.NewEventInvalidator(publisher, cfg.RabbitMQ.Exchange)})
	invalidator := notify.NewFanout(targets...)

	// ---- Use cases ----
	codec := usecase.NewMemoCodec(cfg.Settlement.SystemCode, cfg.Settlement.IDLength)
	settlementUC := usecase.NewSettlementUseCase(
		usecase.SettlementDeps{
			Payments:       payRepo,
			Wallets:        walletRepo,
			Subscriptions:  subRepo,
			Reconciliation: flagRepo,
			TxManager:      tm,
			Invalidator:    invalidator,
		},
		usecase.SettlementConfig{
			APIKey:             cfg.Settlement.APIKey,
			Actor:              cfg.Settlement.Actor,
			CreditExchangeRate: cfg.Settlement.CreditExchangeRate,
			MinAcceptPercent:   cfg.Settlement.MinAcceptPercent,
		},
		codec,
		usecase.NewTierResolver(prices, cfg.Settlement.TierTolerancePercent),
		prices,
		logger,
	)
	paymentUC := usecase.NewPaymentUseCase(payRepo, codec, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, prices, logger)
	walletUC := usecase.NewWalletUseCase(walletRepo, tm, balanceCache, invalidator, logger)
	reconUC := usecase.NewReconciliationUseCase(flagRepo, logger)

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	sampler := sched.NewPoolStatsSampler(15*time.Second, func() sched.PoolStats { return pool.Stat() }, logger)
	go func() { _ = sampler.Run(ctx) }()

	// ---- HTTP ----
	var auth *web.AuthManager
	if cfg.Security.ServiceJWTSecret != "" {
		auth = web.NewAuthManager(cfg.Security.ServiceJWTSecret, time.Hour)
	}
	srv := web.NewServer(web.Deps{
		Settlement:     settlementUC,
		Payments:       paymentUC,
		Subscriptions:  subUC,
		Wallets:        walletUC,
		Reconciliation: reconUC,
		Auth:           auth,
		Limiter:        limiter,
	}, web.Options{
		WebhookPath:       cfg.Server.WebhookPath,
		RequestTimeout:    cfg.Server.RequestTimeout,
		AuthFailureLimit:  cfg.Security.AuthFailureLimit,
		AuthFailureWindow: cfg.Security.AuthFailureWindow,
		Dev:               cfg.Runtime.Dev,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("webhook", cfg.Server.WebhookPath).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
		os.Exit(1)
	}
}
