package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/smm-storefront/internal/auth"
	"github.com/nimasrn/smm-storefront/internal/config"
	"github.com/nimasrn/smm-storefront/internal/feed"
	"github.com/nimasrn/smm-storefront/internal/handlers"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/queue"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/internal/services"
	xhttp "github.com/nimasrn/smm-storefront/pkg/http"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/nimasrn/smm-storefront/pkg/prom"
	"github.com/nimasrn/smm-storefront/pkg/redis"
	"github.com/shopspring/decimal"
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
	logger.Info("starting storefront api", "version", version, "commit", commit, "date", date)

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(config.Get().HttpRequestTimeout))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)

	verifier := auth.NewVerifier(auth.Config{
		Secret:   config.Get().JwtSecret,
		Issuer:   config.Get().JwtIssuer,
		Audience: config.Get().JwtAudience,
		Leeway:   30 * time.Second,
	})
	s.Use(xhttp.BearerAuth(verifier.VerifyAny))
	s.Router = xhttp.CreateDefaultRouter()

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
		ClientName: "storefront-api",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	orderEvents, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:          config.Get().QueueName,
		ConsumerGroup: config.Get().QueueConsumerGroup,
		MaxLen:        config.Get().QueueMaxLen,
		EnableDLQ:     config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	referralBonus, err := decimal.NewFromString(config.Get().ReferralBonus)
	if err != nil {
		logger.Error("invalid REFERRAL_BONUS", "value", config.Get().ReferralBonus, "error", err)
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

	// repositories
	serviceRepo := repository.NewServiceRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	referralRepo := repository.NewReferralRepository(db)

	// services
	catalogService := services.NewCatalogService(serviceRepo, profileRepo)
	ledgerService := services.NewLedgerService(transactionRepo, profileRepo, profileRepo, services.DepositConfig{
		USSDCode:    config.Get().MomoUssdCode,
		Description: config.Get().MomoDescription,
		Currency:    config.Get().Currency,
	})
	orderService := services.NewOrderService(orderRepo, catalogService, profileRepo, orderEvents, feed.NewPublisher(redisAdap), ledgerService)
	profileService := services.NewProfileService(profileRepo, referralRepo)
	referralService := services.NewReferralService(referralRepo, profileRepo, ledgerService, referralBonus)

	// order placement is limited per user, falling back to the client ip
	limiter := xhttp.NewRateLimiter(float64(config.Get().RateLimitPerMinute)/60, config.Get().RateLimitBurst, 10*time.Minute)
	placeLimit := limiter.Middleware(func(ctx *xhttp.RequestCtx) string {
		if sess, ok := ctx.UserValue(xhttp.SubjectKey).(model.Session); ok {
			return sess.UserID.String()
		}
		return ctx.RemoteIP().String()
	})

	// v1 handlers
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	orderHandler := handlers.NewOrderHandler(orderService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	profileHandler := handlers.NewProfileHandler(profileService, services.ParseBalance)
	referralHandler := handlers.NewReferralHandler(referralService)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": db,
		"redis":    redisAdap,
	})

	g := s.Router.Group("/api/v1")
	handlers.RegisterHealthRoutes(g, healthHandler)
	handlers.RegisterCatalogRoutes(g, catalogHandler)
	handlers.RegisterOrderRoutes(g, orderHandler, placeLimit)
	handlers.RegisterLedgerRoutes(g, ledgerHandler)
	handlers.RegisterProfileRoutes(g, profileHandler)
	handlers.RegisterReferralRoutes(g, referralHandler)

	admin := g.Group("/admin")
	handlers.RegisterCatalogAdminRoutes(admin, catalogHandler)
	handlers.RegisterOrderAdminRoutes(admin, orderHandler)
	handlers.RegisterLedgerAdminRoutes(admin, ledgerHandler)
	handlers.RegisterProfileAdminRoutes(admin, profileHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
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
