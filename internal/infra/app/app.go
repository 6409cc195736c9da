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

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/config"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/database"
	kafkainfra "github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/kafka"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/ledger"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/logger"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/notification"
	redisinfra "github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/redis"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/telemetry"
	filerepo "github.com/Firasse123/FineVerse-AIXCYBER/internal/repository/file"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository/memory"
	postgresrepo "github.com/Firasse123/FineVerse-AIXCYBER/internal/repository/postgres"
	redisrepo "github.com/Firasse123/FineVerse-AIXCYBER/internal/repository/redis"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/transport/http/middleware"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/transport/http/routes"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	tracer     *telemetry.TracerProvider
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	auditFile  *filerepo.AuditStore
	producer   *kafkainfra.Producer
	dispatcher *ledger.Dispatcher
	twoFactor  *usecase.TwoFactorService
}

// stores groups the backends selected by configuration.
type stores struct {
	sessions    port.SessionRepository
	enrollments port.EnrollmentRepository
	attempts    port.AttemptStore
	challenges  port.ChallengeStore
	audit       port.AuditStore
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	ok := false
	defer func() {
		if !ok {
			a.release(context.Background())
		}
	}()

	if a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	securityMetrics, err := telemetry.NewSecurityMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init security metrics: %w", err)
	}
	observers := usecase.Observers{logger.NewEventLogger(log), securityMetrics}

	trail := usecase.NewAuditTrail(st.audit, log).WithObserver(observers)
	if cfg.Ledger.Enabled {
		if err := a.openLedger(observers); err != nil {
			return nil, err
		}
		trail = trail.WithLedger(a.dispatcher)
	}

	methods := make([]domain.TwoFactorMethod, 0, len(cfg.Security.MFAMethods))
	for _, raw := range cfg.Security.MFAMethods {
		method, known := domain.ParseTwoFactorMethod(raw)
		if !known {
			return nil, fmt.Errorf("unsupported security.mfa_methods entry %q", raw)
		}
		methods = append(methods, method)
	}

	guard := usecase.NewLoginGuard(st.attempts, trail, usecase.LoginGuardConfig{
		MaxAttempts:   cfg.Security.MaxLoginAttempts,
		Window:        cfg.Security.LoginAttemptWindow,
		BlockDuration: cfg.Security.IPBlockDuration,
	}, log).WithObserver(observers)

	notifier := notification.NewLoggingChannel(log, cfg.App.Env == "development")
	a.twoFactor = usecase.NewTwoFactorService(st.challenges, st.enrollments, notifier, trail, usecase.TwoFactorConfig{
		CodeLength:  cfg.Security.MFACodeLength,
		CodeTTL:     cfg.Security.MFACodeTTL,
		MaxAttempts: cfg.Security.MFAMaxAttempts,
		Methods:     methods,
		TOTPIssuer:  cfg.Security.TOTPIssuer,
	}, log).WithObserver(observers)

	sessions := usecase.NewSessionStore(st.sessions, guard, trail, usecase.SessionConfig{
		InactivityTimeout:     cfg.Security.SessionInactivityTimeout,
		MaxConcurrentSessions: cfg.Security.MaxConcurrentSessions,
	}, log).WithObserver(observers)

	facade := usecase.NewSecurityFacade(trail, guard, a.twoFactor, sessions, log)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Security:    facade,
		RateLimiter: middleware.NewRateLimiter(log),
		Metrics:     httpMetrics,
	}
	if a.pool != nil {
		deps.Database = a.pool
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	ok = true
	return a, nil
}

func (a *Application) openStores(ctx context.Context) (*stores, error) {
	cfg := a.cfg
	st := &stores{}

	if cfg.Storage.DurableBackend == "postgres" || cfg.Audit.Backend == "postgres" {
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.pool = pool
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	switch cfg.Storage.DurableBackend {
	case "postgres":
		repos := postgresrepo.NewRepositories(a.pool)
		st.sessions = repos.Sessions
		st.enrollments = repos.Enrollments
	default:
		st.sessions = memory.NewSessionRepository()
		st.enrollments = memory.NewEnrollmentRepository()
	}

	switch cfg.Storage.EphemeralBackend {
	case "redis":
		client, err := redisinfra.NewClient(ctx, cfg.Redis, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.redis = client
		st.attempts = redisrepo.NewAttemptRepository(client.Client(), client.KeyPrefix())
		st.challenges = redisrepo.NewChallengeRepository(client.Client(), client.KeyPrefix()).
			WithExpiredRetention(cfg.Redis.ChallengeRetention)
	default:
		st.attempts = memory.NewAttemptStore()
		st.challenges = memory.NewChallengeStore()
	}

	switch cfg.Audit.Backend {
	case "postgres":
		st.audit = postgresrepo.NewAuditRepository(a.pool)
	case "file":
		store, err := filerepo.OpenAuditStore(cfg.Audit.FilePath, cfg.Audit.Fsync, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		a.auditFile = store
		st.audit = store
	default:
		a.logger.Warn("audit trail is held in memory and is lost on restart")
		st.audit = memory.NewAuditStore()
	}

	a.logger.Info("storage configured",
		zap.String("durable", cfg.Storage.DurableBackend),
		zap.String("ephemeral", cfg.Storage.EphemeralBackend),
		zap.String("audit", cfg.Audit.Backend),
	)
	return st, nil
}

func (a *Application) openLedger(observer port.SecurityObserver) error {
	var sink port.LedgerPublisher
	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub ledger publisher", zap.Error(err))
		sink = kafkainfra.NewStubPublisher(a.logger)
	} else {
		a.producer = producer
		sink = kafkainfra.NewLedgerPublisher(producer, producer.TopicName(a.cfg.Ledger.Topic), a.cfg.App, a.logger)
		a.logger.Info("audit ledger publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	}

	a.dispatcher = ledger.NewDispatcher(sink, ledger.Options{
		QueueSize:       a.cfg.Ledger.QueueSize,
		RatePerSecond:   a.cfg.Ledger.RatePerSecond,
		MaxRetryElapsed: a.cfg.Ledger.MaxRetryElapsed,
	}, observer, a.logger)
	return nil
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

	a.logger.Info("starting security core API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

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

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}
	a.release(shutdownCtx)
	return runErr
}

// release stops background work before closing the stores it writes to.
func (a *Application) release(ctx context.Context) {
	if a.twoFactor != nil {
		a.twoFactor.Wait()
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.logger.Warn("ledger dispatcher did not drain", zap.Int("pending", a.dispatcher.Pending()), zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.auditFile != nil {
		if err := a.auditFile.Close(); err != nil {
			a.logger.Error("close audit file", zap.Error(err))
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
			a.logger.Warn("shutdown tracer", zap.Error(err))
		}
	}
}
