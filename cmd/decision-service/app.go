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
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"verdict/internal/backtest"
	"verdict/internal/config"
	"verdict/internal/confighandler"
	"verdict/internal/constants"
	"verdict/internal/engine"
	"verdict/internal/evaluation"
	"verdict/internal/executor"
	"verdict/internal/fieldtype"
	"verdict/internal/lists"
	"verdict/internal/logger"
	"verdict/internal/outcomes"
	"verdict/internal/promotion"
	"verdict/internal/rules"
	"verdict/pkg/bootstrap"
	"verdict/pkg/health"
	"verdict/pkg/logging"
	"verdict/pkg/metrics"
	"verdict/pkg/middleware"
	"verdict/pkg/migrations"
	"verdict/pkg/ratelimit"
)

const serviceName = "decision-service"

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	db          *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client

	registry    *fieldtype.Registry
	cache       *executor.Cache
	runner      *backtest.Runner
	coordinator *promotion.Coordinator
	evalService *evaluation.Service

	server *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitBroker(serviceName); err != nil {
		initCtx := logging.WithServiceName(ctx, serviceName)
		a.Logger.WarnwCtx(initCtx, "Broker unavailable, cross-instance invalidation disabled",
			"error", err,
		)
	}

	if err := a.initServices(ctx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	metrics.RegisterEvaluationMetrics()
	metrics.RegisterBacktestMetrics()
	metrics.RegisterPromotionMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterHTTPMetrics()

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redisClient = redisClient

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient

	return nil
}

func (a *App) initServices(ctx context.Context) error {
	compiler, err := rules.NewCompiler()
	if err != nil {
		return fmt.Errorf("failed to create rule compiler: %w", err)
	}

	rulesRepo := rules.NewRepository(a.db)
	vocab := outcomes.NewVocabularyProvider(outcomes.NewRepository(a.db))

	a.registry = fieldtype.NewRegistry(fieldtype.NewRepository(a.db), a.Logger)
	if err := a.registry.Reload(ctx); err != nil {
		initCtx := logging.WithServiceName(ctx, serviceName)
		a.Logger.WarnwCtx(initCtx, "Failed to load initial field types",
			"error", err,
		)
	}

	resolver := lists.NewRedisResolver(a.redisClient, a.Config.Evaluation.ListTimeout, a.Logger)
	if a.Config.CircuitBreaker.Enabled {
		resolver = lists.NewRedisResolverWithBreaker(a.redisClient, a.Config.Evaluation.ListTimeout, a.Config.CircuitBreaker, a.Logger)
	}
	eng := engine.New(resolver, a.Logger)

	a.cache = executor.NewCache(rulesRepo, vocab, compiler, a.Logger)
	if _, err := a.cache.Current(ctx, constants.GenerationProduction); err != nil {
		initCtx := logging.WithServiceName(ctx, serviceName)
		a.Logger.WarnwCtx(initCtx, "Failed to warm production ruleset, first request will rebuild",
			"error", err,
		)
	}

	dbName := a.Config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	mongoDB := a.mongoClient.Database(dbName)
	if err := migrations.EnsureResultCollections(ctx, mongoDB); err != nil {
		initCtx := logging.WithServiceName(ctx, serviceName)
		a.Logger.WarnwCtx(initCtx, "Failed to ensure result collection indexes",
			"error", err,
		)
	}
	store := evaluation.NewResultStore(mongoDB)

	a.evalService = evaluation.NewService(a.registry, a.cache, eng, store, a.Config.Evaluation, a.Logger)
	a.runner = backtest.NewRunner(compiler, vocab, store, a.registry, resolver, a.Config.Backtest, a.Logger)
	a.coordinator = promotion.NewCoordinator(
		rulesRepo, compiler, vocab, store, a.cache,
		a.Producer, a.Config.Broker.Kafka.ConfigUpdateTopic, a.Logger,
	)

	return nil
}

func (a *App) initHTTPServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	// The evaluation path stays unlimited; only the management surface is.
	var managementMiddlewares []gin.HandlerFunc
	if a.Config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.Management.RateLimit.RPS,
			Burst:           a.Config.Management.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.Management.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.Management.RateLimit.MaxAge) * time.Second,
		}
		managementMiddlewares = append(managementMiddlewares, ratelimit.RateLimitMiddleware(rateLimitConfig))
	}

	rulesRepo := rules.NewRepository(a.db)
	evaluation.NewHandler(a.evalService, a.Logger).RegisterRoutes(router)
	backtest.NewHandler(a.runner, a.Logger).RegisterRoutes(router, managementMiddlewares...)
	promotion.NewHandler(a.coordinator, rulesRepo, a.Logger).RegisterRoutes(router, managementMiddlewares...)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewRedisChecker(a.redisClient))
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

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.runner.Start(gCtx)
	})

	reloadInterval := time.Duration(a.Config.Evaluation.FieldTypeReloadSecs) * time.Second
	if reloadInterval <= 0 {
		reloadInterval = constants.DefaultFieldTypeReloadSeconds * time.Second
	}
	g.Go(func() error {
		return a.registry.StartReloader(gCtx, reloadInterval)
	})

	if a.Consumer != nil && a.Config.Broker.Kafka.ConfigUpdateTopic != "" {
		configEventHandler := confighandler.NewHandler(a.cache, a.registry, a.Logger)
		g.Go(func() error {
			consumeCtx := logging.WithServiceName(gCtx, serviceName)
			a.Logger.InfowCtx(consumeCtx, "Starting config update event consumer",
				"topic", a.Config.Broker.Kafka.ConfigUpdateTopic,
			)
			return a.Consumer.Consume(gCtx, a.Config.Broker.Kafka.ConfigUpdateTopic, configEventHandler.HandleConfigUpdateEvent)
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, serviceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down decision service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
