package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"guildgate/internal/account"
	accountstore "guildgate/internal/account/store"
	"guildgate/internal/audit"
	"guildgate/internal/auth/handler"
	"guildgate/internal/auth/service"
	"guildgate/internal/discord"
	jwttoken "guildgate/internal/jwt_token"
	"guildgate/internal/platform/config"
	"guildgate/internal/platform/httpserver"
	"guildgate/internal/platform/logger"
	"guildgate/internal/platform/metrics"
	"guildgate/internal/platform/middleware"
	"guildgate/internal/platform/redis"
	"guildgate/internal/platform/tracing"
	"guildgate/internal/session"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Tracing: exports over OTLP when an endpoint is configured, no-op
	// otherwise. Shutdown flushes spans still in the batcher.
	shutdownTracing, err := tracing.Setup(ctx, "guildgate", cfg.Tracing.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to shut down tracing", "error", err)
		}
	}()
	if cfg.Tracing.OTLPEndpoint != "" {
		log.Info("tracing: otlp", "endpoint", cfg.Tracing.OTLPEndpoint)
	}

	// Session store: redis when configured, in-process otherwise.
	redisClient, err := redis.New(ctx, cfg.Session.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var sessionStore session.Store
	if redisClient != nil {
		defer redisClient.Close()
		sessionStore = session.NewRedis(redisClient.Client)
		log.Info("session store: redis")
	} else {
		sessionStore = session.NewMemory()
		log.Warn("REDIS_URL not set, using in-memory session store")
	}

	// Account store: postgres when configured, in-process otherwise.
	var accounts account.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres pool: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		accounts = accountstore.NewPostgres(pool)
		log.Info("account store: postgres")
	} else {
		accounts = accountstore.NewMemory()
		log.Warn("DATABASE_URL not set, using in-memory account store")
	}

	// Audit trail: kafka when brokers are configured, in-process otherwise.
	var sink audit.Sink
	if len(cfg.Audit.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.Topic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("audit sink: kafka", "topic", cfg.Audit.Topic)
	} else {
		sink = audit.NewMemoryStore()
		log.Warn("KAFKA_BROKERS not set, audit events stay in process")
	}
	publisher := audit.NewPublisher(256, log)
	worker := audit.NewWorker(sink, publisher.Events(), log)

	m := metrics.New()
	tokens := jwttoken.NewService(cfg.JWT.Secret, log)
	provider := discord.New(discord.Config{
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		RedirectURI:  cfg.Discord.RedirectURI,
		Timeout:      cfg.Discord.HTTPTimeout,
	}, log)
	authService := service.New(provider, accounts, tokens, cfg.JWT.Lifetime(), m, log)
	sessions := session.NewManager(sessionStore, cfg.Session.TTL, cfg.CookieSecure)

	authHandler := handler.New(authService, accounts, sessions, publisher,
		jwttoken.NewServiceAdapter(tokens),
		handler.CookieConfig{Name: cfg.JWT.CookieName, Secure: cfg.CookieSecure},
		log,
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", healthHandler(redisClient))
	authHandler.Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(gctx)
	})

	g.Go(func() error {
		log.Info("starting guildgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func healthHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded","redis":"down"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
