package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/allocator"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/app/migrate"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/docker"
	httpx "github.com/Simply-U-Promotions/project-catalyst-sub000/internal/http"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/lock"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/queue"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository/memory"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository/postgres"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/service/deploy"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/service/logs"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/service/reconcile"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/workspace"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/ws"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/config"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/logger"
)

type store interface {
	repository.DeploymentRepository
	repository.ReservationRepository
	repository.LogRepository
	repository.SourceRepository
}

func main() {
	cfg := config.Load()
	log := logger.New("catalyst", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, dbHealth, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	dockerClient, err := docker.New(cfg.DockerHost)
	if err != nil {
		log.Error("failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer dockerClient.Close()
	if version, err := dockerClient.Version(ctx); err != nil {
		log.Warn("docker daemon unreachable", "error", err)
	} else {
		log.Info("connected to docker", "api_version", version)
	}

	workdir, err := workspace.New(cfg.Workdir)
	if err != nil {
		log.Error("failed to prepare workspace", "error", err)
		os.Exit(1)
	}

	alloc, err := allocator.New(repo, allocator.Options{
		PortStart:   cfg.PortRangeStart,
		PortEnd:     cfg.PortRangeEnd,
		MaxAttempts: cfg.AllocatorAttempts,
	})
	if err != nil {
		log.Error("invalid allocator configuration", "error", err)
		os.Exit(1)
	}

	var (
		redisClient *redis.Client
		locker      lock.Locker = lock.NewMemory(cfg.LockTTL)
		limiter                 = httpx.NewMemoryRateLimiter()
	)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, using in-process lock and rate limiter", "error", err)
			_ = client.Close()
		} else {
			redisClient = client
			defer redisClient.Close()
			locker = lock.NewRedis(redisClient, cfg.LockTTL, log)
			limiter.Close()
			limiter = httpx.NewRedisRateLimiter(redisClient, log)
		}
	}

	jobTimeout := cfg.BuildTimeout + cfg.RunTimeout + time.Minute
	var backend queue.Backend
	if strings.EqualFold(cfg.QueueBackend, "asynq") && redisClient != nil {
		backend = queue.NewAsynq(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.QueueWorkers, jobTimeout, log)
	} else {
		if strings.EqualFold(cfg.QueueBackend, "asynq") {
			log.Warn("asynq queue requires redis, falling back to inline queue")
		}
		backend = queue.NewInline(cfg.QueueWorkers, jobTimeout, log)
	}

	var sources repository.SourceRepository = repo
	if cfg.SourcesKey != "" {
		sealed, err := repository.NewSealedSources(repo, cfg.SourcesKey)
		if err != nil {
			log.Error("failed to configure source sealing", "error", err)
			os.Exit(1)
		}
		sources = sealed
	}

	hub := ws.NewHub()
	defer hub.Close()
	logSvc := logs.New(repo, hub, log)

	deploySvc, err := deploy.New(deploy.Dependencies{
		Deployments: repo,
		Sources:     sources,
		Allocator:   alloc,
		Locker:      locker,
		Queue:       backend,
		Runtime:     dockerClient,
		Workspace:   workdir,
		Logs:        logSvc,
		Registerer:  prometheus.DefaultRegisterer,
	}, cfg, log)
	if err != nil {
		log.Error("failed to configure deploy service", "error", err)
		os.Exit(1)
	}
	if err := backend.Start(deploySvc.Execute); err != nil {
		log.Error("failed to start queue", "error", err)
		os.Exit(1)
	}

	if ctl := reconcile.New(repo, dockerClient, alloc, locker, log, cfg); ctl != nil {
		go ctl.Run(ctx)
	}

	router := httpx.NewRouter(httpx.Options{
		Logger:    log,
		Deploy:    deploySvc,
		Hub:       hub,
		Limiter:   limiter,
		JWTSecret: cfg.JWTSecret,
		Checks: map[string]func(context.Context) error{
			"database": dbHealth,
			"docker":   dockerClient.Ping,
		},
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("catalyst server starting", "addr", cfg.Addr, "queue", cfg.QueueBackend, "base_domain", cfg.BaseDomain)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		if err := backend.Shutdown(shutdownCtx); err != nil {
			log.Warn("queue did not drain before shutdown", "error", err)
		}
		log.Info("catalyst server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openStore uses Postgres when DATABASE_URL is set and an in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store, func(context.Context) error, func(), error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Warn("DATABASE_URL not set, deployments are kept in memory")
		mem := memory.New()
		return mem, mem.Ping, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("ping database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if err := runner.Up(ctx); err != nil {
		runner.Close()
		return nil, nil, nil, err
	}
	return postgres.New(pool), pool.Ping, runner.Close, nil
}
