package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hub"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

const demoUserID = 1

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return runServer(cmd.Context(), *configPath, *port, logger)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var (
		loader memory.QuizLoader
		store  app.RoomStore
	)
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
		store = postgres.NewRoomStore(pool)
	} else {
		logger.Warn("postgres not configured, serving the in-memory demo quiz")
		demo := memory.NewRoomStore()
		demo.AddUser(demoUserID, "demo")
		loader = memory.NewStaticQuizLoader(sampleQuizzes())
		store = demo
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizRepo app.QuizRepository
		sessions app.SessionRepository
	)
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL, logger)
		sessions = redisstore.NewSessionStore(redisClient, redisTTL, logger)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		sessions = memory.NewSessionStore()
	}

	metrics := hub.NewMetrics()
	registry := hub.NewRegistry(logger, metrics)
	service := app.NewRoomService(store, quizRepo, sessions, registry, logger)
	registry.OnDrop(service.Dropped)

	var tokens *auth.JWTService
	if cfg.AuthEnabled() {
		tokens = auth.NewJWTService(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	} else {
		logger.Warn("auth secret not configured, host connections are not authenticated")
	}

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(transport.RouterConfig{
			Service:    service,
			Tokens:     tokens,
			Metrics:    metrics,
			Logger:     logger,
			JoinURL:    cfg.Server.JoinURL,
			SendBuffer: cfg.WS.SendBuffer,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes backs the server when no database is configured.
func sampleQuizzes() map[int64]domain.Quiz {
	return map[int64]domain.Quiz{
		1: {
			ID:                  1,
			CreatorID:           demoUserID,
			Title:               "Warm-up",
			DefaultTimerSeconds: domain.DefaultTimerSeconds,
			Questions: []domain.Question{
				{
					ID:     1,
					QuizID: 1,
					Text:   "What is 2 + 2?",
					Choices: []domain.Choice{
						{ID: 1, QuestionID: 1, Text: "3"},
						{ID: 2, QuestionID: 1, Text: "4", IsCorrect: true},
						{ID: 3, QuestionID: 1, Text: "5"},
					},
				},
				{
					ID:           2,
					QuizID:       1,
					Text:         "Which planet is closest to the sun?",
					TimerSeconds: 15,
					Choices: []domain.Choice{
						{ID: 4, QuestionID: 2, Text: "Mercury", IsCorrect: true},
						{ID: 5, QuestionID: 2, Text: "Venus"},
						{ID: 6, QuestionID: 2, Text: "Mars"},
					},
				},
			},
		},
	}
}
