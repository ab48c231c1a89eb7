package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/auth"
	"cybershield-progress/internal/config"
	"cybershield-progress/internal/content"
	"cybershield-progress/internal/infra/local"
	"cybershield-progress/internal/infra/memory"
	"cybershield-progress/internal/infra/postgres"
	infraredis "cybershield-progress/internal/infra/redis"
	"cybershield-progress/internal/infra/sqlite"
	transport "cybershield-progress/internal/transport/http"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the progress server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	deviceTTL := config.TTLDuration(cfg.Redis.TTL, 30*24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Remote progress service and accounts.
	var (
		remote   app.RemoteProgressService
		board    app.LeaderboardSource
		accounts auth.AccountRepository
	)
	if pool != nil {
		svc := postgres.NewProgressService(pool)
		remote, board = svc, svc
		accounts = postgres.NewAccountRepository(pool)
	} else {
		log.Printf("postgres not configured, progress and accounts are kept in memory")
		memAccounts := memory.NewAccountRepository()
		svc := memory.NewProgressService(memAccounts)
		remote, board = svc, svc
		accounts = memAccounts
	}
	if redisClient != nil {
		cache := infraredis.NewLeaderboardCache(redisClient, board, config.TTLDuration(cfg.Leaderboard.CacheTTL, 30*time.Second))
		board = cache
		remote = cache.Tracking(remote)
	}

	// Quiz content.
	var loader memory.QuizLoader = memory.NewStaticQuizLoader(content.Quizzes())
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	// Durable guest tier.
	backend, closeBackend, err := openLocalBackend(cfg, redisClient, deviceTTL)
	if err != nil {
		return err
	}
	defer closeBackend()

	// Auth.
	secret := cfg.Auth.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Printf("auth secret not configured, using a random one; tokens will not survive a restart")
	}
	issuer, err := auth.NewTokenIssuer(secret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	var revocations auth.RevocationStore = memory.NewRevocationStore()
	if redisClient != nil {
		revocations = infraredis.NewRevocationStore(redisClient)
	}
	authService := auth.NewService(accounts, revocations, issuer, nil, config.TTLDuration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL))

	wsHandler := transport.NewWSHandler(transport.LearnerDeps{
		Local:    backend,
		Remote:   remote,
		Quizzes:  quizRepo,
		Verifier: authService,
	}, transport.LearnerConfig{
		Debounce:     config.TTLDuration(cfg.Progress.Debounce, app.DefaultDebounce),
		WriteTimeout: config.TTLDuration(cfg.Progress.WriteTimeout, app.DefaultWriteTimeout),
		PendingTTL:   config.TTLDuration(cfg.Progress.PendingTTL, local.PendingTTL),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	transport.NewAPIHandler(authService, app.NewLeaderboardService(board, cfg.Leaderboard.TopK)).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting progress service on :%s (local backend %s)", finalPort, cfg.Local.Backend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Learner sessions flush their open module before the stores below are closed.
	return errors.Join(server.Shutdown(shutdownCtx), wsHandler.Shutdown(shutdownCtx))
}

func openLocalBackend(cfg config.Config, redisClient *redis.Client, ttl time.Duration) (local.Backend, func(), error) {
	switch cfg.Local.Backend {
	case config.BackendRedis:
		if redisClient == nil {
			return nil, nil, fmt.Errorf("local backend redis needs redis.addr")
		}
		return infraredis.NewLocalBackend(redisClient, ttl), func() {}, nil
	case config.BackendMemory:
		return memory.NewLocalBackend(), func() {}, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Local.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create local data dir: %w", err)
		}
		store, err := sqlite.Open(cfg.Local.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}
