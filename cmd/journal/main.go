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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/plantnet/internal/config"
	"github.com/ariefcatur/plantnet/internal/events"
	"github.com/ariefcatur/plantnet/internal/journal"
	kafkax "github.com/ariefcatur/plantnet/internal/kafka"
	"github.com/ariefcatur/plantnet/internal/logging"
	"github.com/ariefcatur/plantnet/internal/metrics"
	"github.com/ariefcatur/plantnet/internal/postgres"
	"github.com/ariefcatur/plantnet/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	name := cfg.ServiceName + "-journal"
	log := logging.MustNewLogger(name, cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, name, log); err != nil {
		log.Fatal("journal_exit", zap.Error(err))
	}
}

func run(cfg config.Config, name string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	m := metrics.New("plantnet_journal", prometheus.NewRegistry())
	svc := &journal.Service{
		Store:       &journal.Repo{DB: db},
		Dedup:       &redisx.Store{R: rdb},
		ServiceName: name,
		Log:         log,
		Metrics:     m,
	}

	topics := []string{events.TopicStockAdjusted}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.JournalGroup, topics, cfg.JournalWorkers, log)

	// metrics only; the journal has no other HTTP surface
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: cfg.JournalMetrics, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("journal_consumer_started",
			zap.String("group", cfg.JournalGroup), zap.Strings("topics", topics), zap.Int("workers", cfg.JournalWorkers))
		return cons.Start(gctx, svc.HandleStockAdjusted)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
