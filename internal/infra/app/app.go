package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/infra/config"
	"github.com/arklim/storefront-auth/internal/infra/database"
	kafkainfra "github.com/arklim/storefront-auth/internal/infra/kafka"
	"github.com/arklim/storefront-auth/internal/infra/logger"
	"github.com/arklim/storefront-auth/internal/infra/mail"
	redisinfra "github.com/arklim/storefront-auth/internal/infra/redis"
	"github.com/arklim/storefront-auth/internal/infra/scheduler"
	"github.com/arklim/storefront-auth/internal/infra/security"
	"github.com/arklim/storefront-auth/internal/infra/storage"
	"github.com/arklim/storefront-auth/internal/infra/telemetry"
	postgresrepo "github.com/arklim/storefront-auth/internal/repository/postgres"
	redisrepo "github.com/arklim/storefront-auth/internal/repository/redis"
	"github.com/arklim/storefront-auth/internal/transport/http/middleware"
	"github.com/arklim/storefront-auth/internal/transport/http/routes"
	"github.com/arklim/storefront-auth/internal/transport/http/validation"
	"github.com/arklim/storefront-auth/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	tracer    *telemetry.TracerProvider
	scheduler *scheduler.Scheduler
	auth      *usecase.AuthService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.tracer = tracer

	metrics, err := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	if cfg.Postgres.MigrateOnStart {
		if err := database.Migrate(ctx, cfg.Postgres.DSN(), log); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}

	a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	repos := postgresrepo.NewRepositories(a.pool)

	a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       2 * max(cfg.RateLimit.LongWindow, cfg.RateLimit.ShortWindow, time.Minute),
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	hasher, err := security.NewHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}, cfg.Security.FingerprintKey)
	if err != nil {
		return fmt.Errorf("init hasher: %w", err)
	}

	jwtManager, err := security.NewJWTManager(security.JWTConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTokenTTL,
		RefreshTTL:    cfg.JWT.RefreshTokenTTL,
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		return fmt.Errorf("init jwt: %w", err)
	}

	mailer, err := a.newMailer()
	if err != nil {
		return err
	}
	renderer, err := mail.NewRenderer()
	if err != nil {
		return fmt.Errorf("init mail templates: %w", err)
	}
	dispatcher := mail.NewDispatcher(renderer, mailer, log).WithObserver(metrics.ObserveMail)

	a.auth = usecase.NewAuthService(
		repos.Users,
		repos.RefreshTokens,
		hasher,
		jwtManager,
		dispatcher,
		security.DefaultPasswordValidator(cfg.Security.MinPasswordScore),
		usecase.AuthConfig{
			OTPTTL:        cfg.Security.OTPTTL,
			ResetTokenTTL: cfg.Security.ResetTokenTTL,
			FrontURL:      cfg.App.FrontURL,
			MailTimeout:   cfg.Mail.Timeout,
		},
		log,
	)

	stores, err := a.newFileStores(ctx)
	if err != nil {
		return err
	}
	uploadService := usecase.NewUploadService(stores, cfg.Upload.MaxBytes, log)
	userService := usecase.NewUserService(repos.Users, uploadService.AvatarStore(), log)

	a.scheduler, err = scheduler.New(cfg.Scheduler.SweepSpec, usecase.NewSweepService(repos.RefreshTokens, log), metrics.ObserveSweep, log)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	validator, err := validation.New()
	if err != nil {
		return fmt.Errorf("init validator: %w", err)
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Validator:   validator,
		HTTPMetrics: httpMetrics,
		Database:    a.pool,
		Cache:       a.redis,
		Services: routes.ServiceSet{
			Auth:    a.auth,
			Users:   userService,
			Uploads: uploadService,
		},
	})
	return nil
}

// newMailer selects the outbound transport named by mail.transport.
func (a *Application) newMailer() (port.Mailer, error) {
	cfg, log := a.cfg, a.logger

	switch cfg.Mail.Transport {
	case "smtp":
		m, err := mail.NewSMTPMailer(cfg.Mail, log)
		if err != nil {
			return nil, fmt.Errorf("init smtp mailer: %w", err)
		}
		return m, nil
	case "kafka":
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		a.producer = producer
		log.Info("kafka mail publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		return kafkainfra.NewMailPublisher(producer, cfg.Kafka.MailTopic, cfg.App, log), nil
	default:
		log.Info("mail transport is log, emails will not be delivered")
		return mail.NewLogMailer(log), nil
	}
}

// newFileStores builds the local store and whichever remote stores are configured.
func (a *Application) newFileStores(ctx context.Context) (map[string]port.FileStore, error) {
	cfg, log := a.cfg, a.logger

	local, err := storage.NewLocalStore(cfg.Upload, log)
	if err != nil {
		return nil, fmt.Errorf("init local store: %w", err)
	}
	stores := map[string]port.FileStore{usecase.StoreLocal: local}

	if cfg.S3.Bucket != "" {
		s3, err := storage.NewS3Store(ctx, cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("init s3 store: %w", err)
		}
		stores[usecase.StoreS3] = s3
	} else {
		log.Info("s3 bucket not configured, /files/upload/s3 disabled")
	}

	if cfg.Cloudinary.CloudName != "" {
		cl, err := storage.NewCloudinaryStore(cfg.Cloudinary, log)
		if err != nil {
			return nil, fmt.Errorf("init cloudinary store: %w", err)
		}
		stores[usecase.StoreCloudinary] = cl
	} else {
		log.Info("cloudinary not configured, /files/upload/cl disabled")
	}

	return stores, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting storefront auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	a.scheduler.Start()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown server: %w", err))
	}
	a.close(shutdownCtx)
	return runErr
}

// close releases resources in reverse order of construction. Pending mail
// dispatches finish before the transports go away.
func (a *Application) close(ctx context.Context) {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("scheduler stop", zap.Error(err))
		}
	}
	if a.auth != nil {
		a.auth.Wait()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown", zap.Error(err))
		}
	}
}
