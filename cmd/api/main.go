package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/staylink/verification-service/internal/api/http"
	"github.com/staylink/verification-service/internal/api/http/handlers"
	"github.com/staylink/verification-service/internal/auth"
	"github.com/staylink/verification-service/internal/config"
	"github.com/staylink/verification-service/internal/events"
	"github.com/staylink/verification-service/internal/observability"
	"github.com/staylink/verification-service/internal/persistence"
	"github.com/staylink/verification-service/internal/queue"
	"github.com/staylink/verification-service/internal/realtime"
	"github.com/staylink/verification-service/internal/repository"
	"github.com/staylink/verification-service/internal/service"
	"github.com/staylink/verification-service/internal/storage"
	"github.com/staylink/verification-service/internal/worker"
)

type repositories struct {
	subjects  repository.SubjectRepository
	history   repository.HistoryRepository
	users     repository.UserRepository
	operators repository.OperatorRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	repos := buildRepositories(pg, logger)

	hub := realtime.NewHub(realtime.HubOptions{
		SessionBuffer: cfg.Realtime.SessionBuffer,
		WriteTimeout:  cfg.Realtime.WriteTimeout(),
		PingInterval:  cfg.Realtime.PingInterval(),
	}, logger, metrics)

	broker := buildBroker(redis, cfg.Realtime, logger)
	defer broker.Close() //nolint:errcheck
	if err := broker.Start(ctx, func(env realtime.Envelope) { hub.Deliver(env) }); err != nil {
		logger.Fatal("failed to start realtime broker", zap.Error(err))
	}

	reviewQueue := queue.NewReviewQueue(cfg.Kafka, logger)
	defer reviewQueue.Close() //nolint:errcheck
	reviewWorker := worker.NewReviewWorker(reviewQueue, cfg.Kafka.WorkerBuffer, logger)

	dispatcher := events.NewInMemoryDispatcher(logger)
	notificationService := service.NewNotificationService(dispatcher, broker, reviewWorker, logger)
	worker.StartNotificationWorker(ctx, notificationService, reviewWorker)

	store, err := storage.NewArtifactStore(cfg.Cloudinary, cfg.Upload)
	if err != nil {
		logger.Fatal("failed to init artifact store", zap.Error(err))
	}

	submissionService := service.NewSubmissionService(service.SubmissionDependencies{
		SubjectRepo:   repos.subjects,
		HistoryRepo:   repos.history,
		Store:         store,
		Policy:        storage.NewPolicy(cfg.Upload),
		UploadTimeout: cfg.Upload.Timeout(),
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		Logger:        logger,
	})
	approvalService := service.NewApprovalService(service.ApprovalDependencies{
		SubjectRepo: repos.subjects,
		HistoryRepo: repos.history,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:     repos.users,
		OperatorRepo: repos.operators,
		Submissions:  submissionService,
		Logger:       logger,
	})
	if err := authService.EnsureOperator(ctx, cfg.Operator); err != nil {
		logger.Fatal("failed to bootstrap operator", zap.Error(err))
	}
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), repos.users, repos.operators)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Upload.MaxBytes)*4 + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Partner:        handlers.NewPartnerHandler(submissionService),
		Host:           handlers.NewHostHandler(submissionService),
		Operator:       handlers.NewOperatorHandler(approvalService),
		Realtime:       handlers.NewRealtimeHandler(hub, logger),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func buildRepositories(pg *persistence.Postgres, logger *zap.Logger) repositories {
	if !pg.Enabled() {
		logger.Warn("running with in-memory repositories; state is lost on restart")
		return repositories{
			subjects:  repository.NewInMemorySubjectRepository(),
			history:   repository.NewInMemoryHistoryRepository(),
			users:     repository.NewInMemoryUserRepository(),
			operators: repository.NewInMemoryOperatorRepository(),
		}
	}
	pool := pg.PoolHandle()
	return repositories{
		subjects:  repository.NewSubjectRepository(pool),
		history:   repository.NewHistoryRepository(pool),
		users:     repository.NewUserRepository(pool),
		operators: repository.NewOperatorRepository(pool),
	}
}

func buildBroker(redis *persistence.Redis, cfg config.RealtimeConfig, logger *zap.Logger) realtime.Broker {
	if redis.Reachable() {
		return realtime.NewRedisBroker(redis.Client, cfg.RedisChannel, logger)
	}
	return realtime.NewLocalBroker()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
