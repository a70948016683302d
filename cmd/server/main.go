package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/hustle/api/handler"
	"github.com/fastygo/hustle/internal/catalog"
	"github.com/fastygo/hustle/internal/config"
	"github.com/fastygo/hustle/internal/feed"
	"github.com/fastygo/hustle/internal/infrastructure/buffer"
	"github.com/fastygo/hustle/internal/infrastructure/monitor"
	"github.com/fastygo/hustle/internal/infrastructure/oauth"
	pgInfra "github.com/fastygo/hustle/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/hustle/internal/infrastructure/redis"
	"github.com/fastygo/hustle/internal/middleware"
	"github.com/fastygo/hustle/internal/router"
	"github.com/fastygo/hustle/internal/services"
	"github.com/fastygo/hustle/internal/services/lifecycle"
	"github.com/fastygo/hustle/pkg/httpcontext"
	"github.com/fastygo/hustle/pkg/logger"
	"github.com/fastygo/hustle/repository"
	"github.com/fastygo/hustle/repository/memory"
	"github.com/fastygo/hustle/repository/postgres"
	redisRepo "github.com/fastygo/hustle/repository/redis"
	"github.com/fastygo/hustle/usecase"
	authUC "github.com/fastygo/hustle/usecase/auth"
	hustleUC "github.com/fastygo/hustle/usecase/hustle"
	profileUC "github.com/fastygo/hustle/usecase/profile"
)

type stores struct {
	users       repository.UserRepository
	tasks       repository.TaskRepository
	reviews     repository.ReviewRepository
	credentials repository.CredentialRepository
	sessions    repository.SessionRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
		Env:      cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	var (
		repos       stores
		checks      []monitor.Check
		redisClient *redislib.Client
	)

	if cfg.UsesRedis() {
		redisClient, err = redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.Register("redis", func(ctx context.Context) error {
			return redisInfra.Close(redisClient, zapLogger)
		})
		checks = append(checks, monitor.RedisCheck(redisClient))
	}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}
		pool, err := pgInfra.NewPool(appCtx, cfg.Database, cfg.AppName, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})
		checks = append(checks, monitor.PostgresCheck(pool))
		repos = stores{
			users:       postgres.NewUserRepository(pool),
			tasks:       postgres.NewTaskRepository(pool),
			reviews:     postgres.NewReviewRepository(pool),
			credentials: postgres.NewCredentialRepository(pool),
		}
	default:
		zapLogger.Warn("using in-memory storage; data is lost on restart")
		store := memory.NewStore()
		repos = stores{
			users:       store.Users(),
			tasks:       store.Tasks(),
			reviews:     store.Reviews(),
			credentials: store.Credentials(),
			sessions:    store.Sessions(),
		}
	}
	if redisClient != nil {
		repos.sessions = redisRepo.NewSessionRepository(redisClient, cfg.Redis.Namespace, cfg.JWT.SessionTTL)
	}

	var bus feed.Bus = feed.NewLocalBus()
	if cfg.Feed.Bus == config.BusRedis {
		bus = feed.NewRedisBus(redisClient, cfg.Feed.Channel, zapLogger)
	}
	publisher := feed.NewPublisher(bus, zapLogger)

	var bufferStore *buffer.Store
	if cfg.Buffer.Enabled {
		bufferStore, err = buffer.Open(cfg.Buffer.Path, "outbox", cfg.Buffer.MaxSize)
		if err != nil {
			zapLogger.Fatal("failed to open outbox", zap.Error(err))
		}
		manager.RegisterCloser("outbox", bufferStore)
	}

	mon := monitor.New(checks, bufferStore, cfg.Buffer.MonitorInterval, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	var operationBuffer usecase.OperationBuffer
	if bufferStore != nil {
		processor := services.NewBufferProcessor(
			bufferStore,
			mon,
			repos.users,
			publisher,
			zapLogger,
			services.ProcessorConfig{
				Interval:   cfg.Buffer.SyncInterval,
				BatchSize:  50,
				MaxRetries: cfg.Buffer.MaxRetry,
				Retention:  time.Duration(cfg.Buffer.RetentionHours) * time.Hour,
			},
		)
		processor.Start()
		manager.Register("outbox_processor", func(ctx context.Context) error {
			processor.Stop(ctx)
			return nil
		})
		operationBuffer = services.NewBufferBridge(processor)
	}

	jwtSecret := cfg.JWT.Secret
	if jwtSecret == "" {
		jwtSecret = uuid.NewString()
		zapLogger.Warn("JWT_SECRET not set; tokens will not survive a restart")
	}

	var provider authUC.FederatedProvider
	if cfg.OAuth.Enabled() {
		provider = oauth.NewGoogleProvider(oauth.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURL,
			AuthURL:      cfg.OAuth.AuthURL,
			TokenURL:     cfg.OAuth.TokenURL,
			UserInfoURL:  cfg.OAuth.UserInfoURL,
		})
	}

	authUseCase := authUC.New(repos.users, repos.credentials, repos.sessions, zapLogger, authUC.Options{
		Secret:     jwtSecret,
		Issuer:     cfg.JWT.Issuer,
		TokenTTL:   cfg.JWT.TTL,
		SessionTTL: cfg.JWT.SessionTTL,
		Provider:   provider,
	})
	authUseCase.OnSessionChange(func(e authUC.SessionEvent) {
		if e.User != nil {
			publisher.UserChanged(appCtx, e.User.ID)
		}
	})

	profileUseCase := profileUC.New(repos.users, repos.reviews, operationBuffer, publisher, zapLogger)
	hustleUseCase := hustleUC.New(repos.tasks, repos.users, profileUseCase, operationBuffer, publisher, zapLogger, hustleUC.Options{
		CompletionPolicy: cfg.Hustle.CompletionPolicy,
	})

	stopListening, err := bus.Listen(feed.Dispatch(map[string]feed.Notifier{
		feed.KindCollege: hustleUseCase.Feed(),
		feed.KindUser:    profileUseCase.Feed(),
	}))
	if err != nil {
		zapLogger.Fatal("change bus listen failed", zap.Error(err))
	}
	manager.Register("feeds", func(ctx context.Context) error {
		hustleUseCase.Close()
		profileUseCase.Close()
		return stopListening()
	})

	colleges, err := catalog.Load(cfg.Catalog.CollegesFile)
	if err != nil {
		zapLogger.Fatal("college catalog failed to load", zap.Error(err))
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)
	streams := apiHandler.NewStreamHandler(hustleUseCase, profileUseCase, ctxAdapter, zapLogger, 0)

	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger),
		Profile: apiHandler.NewProfileHandler(profileUseCase, ctxAdapter, zapLogger),
		Task:    apiHandler.NewTaskHandler(hustleUseCase, ctxAdapter, zapLogger),
		Stream:  streams,
		Catalog: apiHandler.NewCatalogHandler(colleges, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(jwtSecret, authUseCase, zapLogger)
	r := router.New(handlers, authMiddleware)

	// No WriteTimeout: event streams stay open. Request deadlines come from ctxAdapter.
	server := &fasthttp.Server{
		Handler:     r.Handler,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout: cfg.HTTP.IdleTimeout,
		Name:        cfg.AppName,
		Concurrency: cfg.HTTP.MaxConn,
		Logger:      zap.NewStdLog(zapLogger),
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("feed_bus", cfg.Feed.Bus),
			zap.String("completion_policy", cfg.Hustle.CompletionPolicy))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		streams.Close()
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
