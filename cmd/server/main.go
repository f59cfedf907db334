package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"verigate/internal/enrollment"
	enrollmenthandler "verigate/internal/enrollment/handler"
	enrollmentmetrics "verigate/internal/enrollment/metrics"
	httpapi "verigate/internal/http"
	"verigate/internal/login"
	loginhandler "verigate/internal/login/handler"
	loginmetrics "verigate/internal/login/metrics"
	"verigate/internal/platform/config"
	"verigate/internal/platform/httpserver"
	"verigate/internal/platform/logger"
	"verigate/internal/platform/middleware"
	platformpostgres "verigate/internal/platform/postgres"
	platformredis "verigate/internal/platform/redis"
	"verigate/internal/polling"
	"verigate/internal/provider"
	"verigate/internal/registry"
	"verigate/internal/session"
	"verigate/internal/user"
	"verigate/pkg/platform/audit"
	auditpostgres "verigate/pkg/platform/audit/store/postgres"
	auditworker "verigate/pkg/platform/audit/worker"
)

// main wires configuration, infrastructure clients, stores, services and
// handlers, then runs the HTTP server until shutdown. Business logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Infrastructure. Redis and Postgres are optional: without them the
	// gateway runs on in-memory stores, which is fine for a single node.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	db, err := platformpostgres.New(cfg.Postgres)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	// Audit events go to Kafka when a broker is configured. Without one
	// they are persisted locally through a background worker, or dropped
	// when Postgres is absent too.
	var publisher audit.Publisher = audit.NopPublisher{}
	switch {
	case len(cfg.Kafka.Brokers) > 0:
		kafkaPublisher, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, log)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		publisher = kafkaPublisher
	case db != nil:
		auditStore := auditpostgres.New(db)
		if err := auditStore.Migrate(ctx); err != nil {
			log.Error("failed to migrate audit schema", "error", err)
			os.Exit(1)
		}
		publisher = auditworker.NewPipeline(auditStore, 256, log)
		log.Info("audit events persisted to postgres")
	}

	// Stores.
	var registryStore registry.Store = registry.NewInMemoryStore()
	if redisClient != nil {
		registryStore = registry.NewRedisStore(redisClient.Client)
		log.Info("operation registry backed by redis")
	}
	reg := registry.New(registryStore)

	var enrollmentStore enrollment.Store = enrollment.NewInMemoryStore()
	if db != nil {
		pgStore := enrollment.NewPostgresStore(db)
		if err := pgStore.Migrate(ctx); err != nil {
			log.Error("failed to migrate enrollment schema", "error", err)
			os.Exit(1)
		}
		enrollmentStore = pgStore
		log.Info("enrollment records backed by postgres")
	}

	userStore := user.NewInMemoryStore()
	users := user.NewService(userStore)

	// Domain services.
	providerClient := provider.NewHTTPClient(provider.HTTPConfig{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		PropagationWindow: cfg.Provider.PropagationWindow,
		RequestTimeout:    cfg.Provider.RequestTimeout,
	})

	poller := polling.New(polling.Config{
		MaxAttempts: cfg.Polling.MaxAttempts,
		Interval:    cfg.Polling.Interval,
	}, log)

	issuer := session.New(session.Config{
		SigningKey:    cfg.JWT.SigningKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessExpiry:  cfg.JWT.AccessExpiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
	})

	enrollmentService := enrollment.NewService(enrollmentStore, providerClient, reg,
		publisher, enrollmentmetrics.New(), log)
	loginService := login.NewService(users, enrollmentService, providerClient, reg,
		poller, issuer, publisher, loginmetrics.New(), log)

	// HTTP surface.
	requireAuth := middleware.RequireAuth(accessVerifier{issuer}, log)
	router := httpapi.NewRouter(httpapi.Deps{
		Logger:   log,
		Verifier: accessVerifier{issuer},
		Handlers: []httpapi.Registrar{
			enrollmenthandler.New(enrollmentService, log, requireAuth),
			loginhandler.New(loginService, log),
		},
		Health: healthChecks(redisClient, db),
	})

	srv := httpserver.New(cfg.Addr, router)

	go sweepExpiredBindings(ctx, reg, log)

	go func() {
		log.Info("starting verigate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	if err := publisher.Close(); err != nil {
		log.Error("failed to close audit publisher", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis client", "error", err)
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Error("failed to close postgres pool", "error", err)
		}
	}
}

// accessVerifier adapts the session issuer to the auth middleware.
type accessVerifier struct {
	issuer *session.Issuer
}

func (v accessVerifier) VerifyAccess(token string) (*middleware.AccessClaims, error) {
	claims, err := v.issuer.VerifyAccess(token)
	if err != nil {
		return nil, err
	}
	return &middleware.AccessClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// sweepExpiredBindings garbage-collects operation bindings past expiry.
func sweepExpiredBindings(ctx context.Context, reg *registry.Registry, log *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			deleted, err := reg.DeleteExpired(ctx, now)
			if err != nil {
				log.Error("failed to sweep expired operations", "error", err)
				continue
			}
			if deleted > 0 {
				log.Info("swept expired operations", "count", deleted)
			}
		}
	}
}

func healthChecks(redisClient *platformredis.Client, db *sql.DB) map[string]httpapi.HealthChecker {
	checks := make(map[string]httpapi.HealthChecker)
	if redisClient != nil {
		checks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		}
	}
	if db != nil {
		checks["postgres"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.PingContext(ctx)
		}
	}
	return checks
}
