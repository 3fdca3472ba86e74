package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/smm-storefront/internal/config"
	"github.com/nimasrn/smm-storefront/internal/feed"
	gateway "github.com/nimasrn/smm-storefront/internal/gateways"
	"github.com/nimasrn/smm-storefront/internal/processor"
	"github.com/nimasrn/smm-storefront/internal/queue"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/internal/services"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/nimasrn/smm-storefront/pkg/prom"
	"github.com/nimasrn/smm-storefront/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	logger.Info("starting fulfillment processor", "version", version, "commit", commit, "date", date)

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "storefront-processor",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(config.Get().PromListenAddr, "/metrics")

	serviceRepo := repository.NewServiceRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	creds, err := credentialRepo.List(ctx)
	cancel()
	if err != nil {
		logger.Error("failed to load provider credentials", "error", err)
		return
	}
	providers := gateway.ProvidersFromCredentials(creds, gateway.ProviderConfig{
		Name:   config.Get().ProviderName,
		URL:    config.Get().ProviderUrl,
		APIKey: config.Get().ProviderApiKey,
	})
	client, err := gateway.NewClient(&gateway.Config{
		Providers:               providers,
		Default:                 config.Get().ProviderName,
		Timeout:                 config.Get().ProviderTimeout,
		MaxRetries:              3,
		RetryDelay:              200 * time.Millisecond,
		MaxConns:                256,
		ReadBufferSize:          1024 * 4,
		WriteBufferSize:         1024 * 4,
		HealthCheckInterval:     30 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   60 * time.Second,
	})
	if err != nil {
		logger.Error("failed to create provider client", "error", err)
		return
	}
	defer client.Close()

	queueConfig := queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName + "-" + hostname,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	}
	orderEvents, err := queue.NewQueue(redisAdap, queueConfig)
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	ledgerService := services.NewLedgerService(transactionRepo, profileRepo, profileRepo, services.DepositConfig{
		USSDCode:    config.Get().MomoUssdCode,
		Description: config.Get().MomoDescription,
		Currency:    config.Get().Currency,
	})
	catalogService := services.NewCatalogService(serviceRepo, profileRepo)
	orderService := services.NewOrderService(orderRepo, catalogService, profileRepo, orderEvents, feed.NewPublisher(redisAdap), ledgerService)

	idempotencyService := processor.NewIdempotencyService(redisAdap, processor.DefaultIdempotencyConfig())

	service := processor.NewProcessorService(redisAdap, processor.ServiceConfig{
		Queue:             queueConfig,
		Consumers:         config.Get().QueueConsumers,
		Workers:           config.Get().FulfillmentWorkers,
		ProcessingTimeout: config.Get().QueueVisibilityTimeout,
	})
	service.RegisterProcessor(processor.NewFulfillmentProcessor(orderRepo, catalogService, orderService, ledgerService, client, idempotencyService))

	scheduler, err := processor.NewScheduler(
		processor.ScheduledJob{
			Spec:    config.Get().FulfillmentStatusSync,
			Job:     processor.NewStatusSync(orderRepo, catalogService, orderService, client),
			Timeout: 5 * time.Minute,
		},
		processor.ScheduledJob{
			Spec:    config.Get().FulfillmentPendingSweep,
			Job:     processor.NewPendingSweep(orderRepo, catalogService, orderEvents, idempotencyService, config.Get().FulfillmentPendingMaxAge),
			Timeout: 5 * time.Minute,
		},
	)
	if err != nil {
		logger.Error("failed to schedule jobs", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}
	scheduler.Start()

	<-c
	scheduler.Stop()
	service.Stop()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
