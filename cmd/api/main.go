package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/plantnet/internal/auth"
	"github.com/ariefcatur/plantnet/internal/checkout"
	"github.com/ariefcatur/plantnet/internal/config"
	"github.com/ariefcatur/plantnet/internal/httpx"
	"github.com/ariefcatur/plantnet/internal/journal"
	kafkax "github.com/ariefcatur/plantnet/internal/kafka"
	"github.com/ariefcatur/plantnet/internal/logging"
	"github.com/ariefcatur/plantnet/internal/metrics"
	"github.com/ariefcatur/plantnet/internal/orders"
	"github.com/ariefcatur/plantnet/internal/outbox"
	"github.com/ariefcatur/plantnet/internal/payment"
	"github.com/ariefcatur/plantnet/internal/plants"
	"github.com/ariefcatur/plantnet/internal/postgres"
	"github.com/ariefcatur/plantnet/internal/redisx"
	"github.com/ariefcatur/plantnet/internal/users"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("api_exit", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := postgres.MigrateUp(cfg.PostgresDSN); err != nil {
			return err
		}
		log.Info("migrations_applied")
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer, fed by the outbox relay
	prod := kafkax.NewProducer(cfg.KafkaBrokers)
	defer prod.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("plantnet", reg)

	gw, err := payment.New(cfg)
	if err != nil {
		return err
	}

	plantRepo := &plants.Repo{DB: db, Producer: cfg.ServiceName}
	orderRepo := &orders.Repo{DB: db, Producer: cfg.ServiceName}
	userRepo := &users.Repo{DB: db}
	cache := &redisx.Store{R: rdb}
	svc := checkout.New(plantRepo, orderRepo, gw, cache, cfg.Currency, log, m)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.SessionTTL)
	gate := httpx.Gate{Tokens: tokens, Roles: userRepo}
	router := httpx.NewRouter(log, m)
	(&httpx.UsersHandler{Users: userRepo, Tokens: tokens, Production: cfg.Production()}).Register(router, gate)
	(&httpx.PlantsHandler{Plants: plantRepo, Users: userRepo, Movements: &journal.Repo{DB: db}, Stock: svc}).Register(router, gate)
	(&httpx.OrdersHandler{Checkout: svc, Orders: orderRepo, Users: userRepo}).Register(router, gate)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	relay := &outbox.Relay{
		Store:    &outbox.Repo{DB: db},
		Sender:   prod,
		Interval: cfg.OutboxInterval,
		Batch:    cfg.OutboxBatch,
		Log:      log.With(zap.String("component", "outbox")),
		Metrics:  m,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_listening", zap.String("addr", cfg.HTTPAddr), zap.String("payment_provider", cfg.PaymentProvider))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
