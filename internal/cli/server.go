package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-quiz-engine/internal/app"
	"trivia-quiz-engine/internal/auth"
	"trivia-quiz-engine/internal/config"
	"trivia-quiz-engine/internal/infra/memory"
	"trivia-quiz-engine/internal/infra/postgres"
	rediscache "trivia-quiz-engine/internal/infra/redis"
	transport "trivia-quiz-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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
	setupLogging(cfg.Log.Level, cfg.Log.Format)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	source, closeSource, err := newQuestionSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	var questions app.QuestionRepository
	var sessions app.SessionRepository
	if redisClient != nil {
		namespace := cfg.Redis.Namespace
		if namespace == "" {
			namespace = uuid.NewString()
		}
		questions = rediscache.NewQuestionRepository(redisClient, source, redisTTL, namespace).WithLogger(slog.Default())
		sessions = rediscache.NewSessionStore(redisClient, redisTTL)
		slog.Info("using redis question cache", "addr", cfg.Redis.Addr, "namespace", namespace)
	} else {
		questions = memory.NewQuestionRepository(source)
		sessions = memory.NewSessionStore()
	}

	engine := app.NewEngine(questions, sessions, app.WithLogger(slog.Default()))

	var gate func(http.Handler) http.Handler
	if cfg.Auth.Username != "" {
		gate = auth.RequireBasicAuth(auth.NewFixedCredentials(cfg.Auth.Username, cfg.Auth.PasswordHash), "quiz")
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(engine, gate),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("starting quiz engine", "port", finalPort, "source", cfg.ProviderSource())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newQuestionSource picks the provider named by provider.source. The returned
// func releases whatever the source holds open.
func newQuestionSource(ctx context.Context, cfg config.Config) (app.QuestionSource, func(), error) {
	switch cfg.ProviderSource() {
	case config.SourceOpenTDB:
		return newProviderClient(cfg), func() {}, nil
	case config.SourcePostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewQuestionBank(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider source %q", cfg.Provider.Source)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
