package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/batch"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/db"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/deadletter"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/delivery"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/messaging"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/outbox"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/repository"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/server"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the consumer pipeline, outbox relay and admin servers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "Apply database migrations before starting")
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("Starting ledger service...")

	cfg := config.Load()
	log.Printf("Configuration loaded: HTTP=:%s, gRPC=:%s, topics=%d, outbox_publisher=%s",
		cfg.HTTPPort, cfg.GRPCPort, len(cfg.Topics), cfg.Outbox.Publisher)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := db.Migrate(cfg.Postgres.URL); err != nil {
			return err
		}
		log.Println("Database migrations applied")
	}

	pool, err := db.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("Database connection pool initialized")

	deadLetters, err := deadletter.Open(cfg.DeadLetter.Path)
	if err != nil {
		return err
	}
	defer deadLetters.Close()

	hb, err := openHandbook(ctx, cfg)
	if err != nil {
		return err
	}
	defer hb.Close()

	clickhouse, err := openClickHouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer clickhouse.Close()

	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	eventStore := db.NewEventStore(pool.Pool, deadLetters)
	txManager := db.NewTransactionManager(pool.Pool)
	history := repository.NewHistoryRepository(clickhouse)
	historyService := service.NewHistoryService(eventStore, hb.categories, history, hb.accounts)

	windows := batch.Options{
		FlushInterval: cfg.Pipeline.FlushInterval,
		MaxBatchSize:  cfg.Pipeline.MaxBatchSize,
		PollDelay:     cfg.Pipeline.QueuePollDelay,
	}
	payments := batch.NewAccumulator[models.PaymentOperationEvent](windows)
	accounts := batch.NewAccumulator[models.PaymentOperationEvent](windows)

	paymentsHandler := delivery.NewHandler(eventStore, cfg.Pipeline.DeliveryConcurrency)
	accountsHandler := service.NewAccountHandler(hb.categories, hb.accounts, hb.marker)

	registry := messaging.NewRegistry(messaging.NewBusFactory(cfg.RabbitMQ, cfg.Kafka))
	defer registry.CloseAll()

	loops, err := buildLoops(ctx, cfg, registry, map[string]messaging.Sink{
		config.TargetPayments: payments,
		config.TargetAccounts: accounts,
	})
	if err != nil {
		return err
	}

	relay := outbox.NewRelay(db.NewOutboxRepository(pool.Pool), txManager, publisher, outbox.Options{
		Interval:   cfg.Outbox.Interval,
		BatchSize:  cfg.Outbox.BatchSize,
		MaxRetries: cfg.Outbox.MaxRetries,
	})

	// Batch workers are stopped only after every consumer loop has returned,
	// so their final flush sees everything the loops pushed.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()

	var services, workers sync.WaitGroup
	run := func(ctx context.Context, group *sync.WaitGroup, name string, fn func(context.Context) error) {
		group.Add(1)
		go func() {
			defer group.Done()
			if err := fn(ctx); err != nil {
				log.Printf("%s stopped with error: %v", name, err)
				stop()
			}
		}()
	}

	run(workerCtx, &workers, "payments worker", batch.NewWorker("payments", payments, paymentsHandler.Handle).Run)
	run(workerCtx, &workers, "accounts worker", batch.NewWorker("accounts", accounts, accountsHandler.Handle).Run)
	for _, loop := range loops {
		run(ctx, &services, "consumer loop", loop.Run)
	}
	run(ctx, &services, "outbox relay", relay.Run)
	run(ctx, &services, "http server", func(ctx context.Context) error {
		handler := server.Router(server.NewHandler(historyService, history, registry))
		return serveHTTP(ctx, ":"+cfg.HTTPPort, handler)
	})
	run(ctx, &services, "grpc server", func(ctx context.Context) error {
		return serveGRPC(ctx, ":"+cfg.GRPCPort, registry)
	})

	<-ctx.Done()
	log.Println("Shutdown requested, waiting for services to stop...")
	services.Wait()

	log.Println("Consumer loops stopped, flushing batch workers...")
	stopWorkers()
	workers.Wait()

	log.Println("Ledger service stopped gracefully")
	return nil
}

// buildLoops creates one consumer loop per configured topic. A topic whose
// consumer cannot be created yet still gets a loop; it keeps retrying.
func buildLoops(ctx context.Context, cfg *config.Config, registry *messaging.Registry, sinks map[string]messaging.Sink) ([]*messaging.Loop, error) {
	opts := messaging.LoopOptions{
		PollDelay:           cfg.Pipeline.ConsumerPollDelay,
		RetryDelay:          cfg.Pipeline.ConsumerRetryDelay,
		MaxMessagesPerCycle: cfg.Pipeline.MaxMessagesPerCycle,
	}

	loops := make([]*messaging.Loop, 0, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		sink, ok := sinks[topic.Target]
		if !ok {
			return nil, fmt.Errorf("topic %s: unknown target %q", topic.Name, topic.Target)
		}

		spec := messaging.TopicSpec{
			Name:         topic.Name,
			ConsumerType: messaging.ConsumerType(topic.ConsumerType),
			Group:        cfg.Kafka.GroupID,
		}

		consumer, err := registry.CreateAndSubscribe(ctx, spec)
		if err != nil {
			log.Printf("Failed to create consumer: topic=%s, type=%s, error=%v", spec.Name, spec.ConsumerType, err)
			consumer = nil
		}

		loops = append(loops, messaging.NewLoop(spec, registry, consumer, sink, opts))
	}
	return loops, nil
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	log.Printf("HTTP server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

func serveGRPC(ctx context.Context, addr string, liveness server.Liveness) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer, healthServer := server.NewGRPCServer()
	go server.WatchLiveness(ctx, healthServer, liveness, time.Second)
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	log.Printf("gRPC server listening on %s", addr)
	if err := grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}
