package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-service/config"
	"clinic-service/internal/api"
	"clinic-service/internal/auth"
	"clinic-service/internal/broker"
	"clinic-service/internal/redisclient"
	"clinic-service/internal/service"
	"clinic-service/internal/store"
	"clinic-service/internal/util"
	"clinic-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const serviceName = "clinic-service"

func main() {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Clinic prescription dispensing and settlement service",
	}
	rootCmd.PersistentFlags().String("env", "", "runtime environment (development, production)")
	_ = v.BindPFlag("ENV", rootCmd.PersistentFlags().Lookup("env"))

	rootCmd.AddCommand(serveCmd(v))
	rootCmd.AddCommand(migrateCmd(v))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().String("port", "", "HTTP listen port")
	_ = v.BindPFlag("PORT", cmd.Flags().Lookup("port"))
	return cmd
}

func migrateCmd(v *viper.Viper) *cobra.Command {
	var seedDemo bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer util.SyncLogger()

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			util.GetLogger().Info("Schema migrated", zap.String("driver", cfg.Database.Driver))

			if seedDemo {
				return seed(ctx, db)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seedDemo, "seed", false, "insert demo patients, doctors, medications and payment methods")
	return cmd
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.NewStore(cfg.Database.Driver, cfg.Database.URL, store.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		LockTimeout:  cfg.Business.DispenseTimeout(),
	})
}

func serve(cfg *config.Config) error {
	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting clinic service")

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(context.Background()); err != nil {
		return err
	}
	logger.Info("Database connected", zap.String("driver", db.Driver()))

	ready := map[string]api.Pinger{"database": db}

	// interface values stay nil when a backend is disabled
	var (
		locker      service.Locker
		idempotency service.IdempotencyStore
		deduper     worker.Deduper
		mirror      worker.StockMirror
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		locker, idempotency, deduper, mirror = redisClient, redisClient, redisClient, redisClient
		ready["redis"] = redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	var publisher service.EventPublisher
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var stockWorker *worker.StockAlertWorker
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicClinic)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicClinic, cfg.Kafka.ConsumerGroup)
		stockWorker = worker.NewStockAlertWorker(consumer, deduper, mirror, cfg.Business.LowStockThreshold)
		go func() {
			if err := stockWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Stock alert worker error", zap.Error(err))
			}
		}()
	}

	svc := api.Services{
		Catalog:        service.NewCatalogService(db),
		Examinations:   service.NewExaminationService(db, publisher),
		Prescriptions:  service.NewPrescriptionService(db),
		Dispensing:     service.NewDispensingService(db, locker, publisher, cfg.Business.DispenseTimeout()),
		Payments:       service.NewPaymentService(db, idempotency, publisher, cfg.Business.IdempotencyTTL()),
		PaymentMethods: service.NewPaymentMethodService(db),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(svc, auth.NewVerifier(cfg.Auth.JWTSecret), ready)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if stockWorker != nil {
		if err := stockWorker.Stop(); err != nil {
			logger.Warn("Error stopping stock alert worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
	return nil
}
