package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"trackerbridge/internal/codes"
	"trackerbridge/internal/config"
	"trackerbridge/internal/engine"
	"trackerbridge/internal/inbound"
	"trackerbridge/internal/lock"
	"trackerbridge/internal/logger"
	"trackerbridge/internal/metadata"
	"trackerbridge/internal/registry"
	"trackerbridge/internal/rule"
	"trackerbridge/pkg/bootstrap"
	"trackerbridge/pkg/cel"
	"trackerbridge/pkg/health"
	"trackerbridge/pkg/middleware"
	"trackerbridge/pkg/ratelimit"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	config      *config.Config
	logger      logger.Logger
	base        *bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	db          *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client

	ruleService *rule.Service
	inbound     *inbound.Service

	server *http.Server
	router *gin.Engine
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.base.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initServices(ctx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Server.Port),
		Handler: a.router,
	}
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.config.Engine.LockBackend != "memory" {
		redisClient, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redisClient = redisClient
	}

	_, mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "MongoDB connection failed, code mappings disabled", "error", err)
	} else {
		a.mongoClient = mongoClient
	}
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	var locks lock.Manager
	if a.config.Engine.LockBackend == "memory" {
		locks = lock.NewMemoryManager()
		a.logger.InfowCtx(ctx, "Using in-memory subject locks")
	} else {
		locks = lock.NewRedisManager(a.redisClient, a.logger, lock.WithTTL(a.config.Engine.LockTTL))
		a.logger.InfowCtx(ctx, "Using Redis subject locks", "ttl", a.config.Engine.LockTTL)
	}

	registryClient := registry.NewHTTPClient(a.config.Registry, a.logger)
	subjects := registry.NewSubjectResolver(registryClient)

	metaService := metadata.NewService(metadata.NewRepository(a.db), a.logger)

	var codeResolver codes.Resolver
	if a.mongoClient != nil {
		mongoDB := a.mongoClient.Database(a.config.Database.MongoDB.Database)
		codeResolver = codes.NewService(codes.NewRepository(mongoDB), a.logger)
	}

	dates := engine.NewDateResolver(evaluator, engine.SystemClock, a.logger)
	resolver := engine.NewResolver(registryClient, locks, evaluator, subjects, dates, a.logger)
	eng := engine.NewEngine(metaService, resolver, evaluator, codeResolver, dates, registryClient, engine.SystemClock, a.logger)

	validator, err := rule.NewValidator()
	if err != nil {
		return fmt.Errorf("failed to create rule validator: %w", err)
	}
	a.ruleService = rule.NewService(rule.NewRepository(a.db), validator, a.config.Rules, a.logger)

	a.inbound = inbound.NewService(a.ruleService, eng, a.base.Producer, a.config.Broker.Kafka, a.logger)
	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.Config{
			RPS:             a.config.Management.RateLimit.RPS,
			Burst:           a.config.Management.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.Management.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.Management.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.Middleware(rateLimitConfig))
		a.logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	rule.NewHandler(a.ruleService, a.logger).RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewKafkaChecker(a.config.Broker.Kafka.Brokers))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

// Run drives the three long-lived loops: the admin HTTP server, the rule
// reloader, and the document consumer. Any one failing stops the others.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.ruleService.StartReloader(ctx)
	})

	g.Go(func() error {
		return a.base.Consumer.Consume(ctx, a.config.Broker.Kafka.DocumentTopic, a.inbound.Handle)
	})

	err := g.Wait()
	if shutdownErr := a.Shutdown(context.Background()); shutdownErr != nil {
		a.logger.Errorw("Shutdown error", "error", shutdownErr)
	}
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return a.base.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		return a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)
	})
}
