package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/config"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
	"quiz-live-service/internal/infra/postgres"
	redisinfra "quiz-live-service/internal/infra/redis"
	transport "quiz-live-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz session server",
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
	logger := newLogger(cfg)

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

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	heartbeat := config.TTLDuration(cfg.Heartbeat.Interval, 10*time.Second)
	clientTimeout := config.TTLDuration(cfg.Heartbeat.Timeout, 30*time.Second)
	questionTTL := config.TTLDuration(cfg.Questions.CacheTTL, 5*time.Minute)
	presenceTTL := config.TTLDuration(cfg.Redis.TTL, 2*clientTimeout)

	var (
		gameStore app.GameStore
		loader    memory.QuestionLoader
	)
	if pool != nil {
		pg := postgres.NewStore(pool)
		gameStore = pg
		loader = pg
	} else {
		// Demo fallback so the server is playable without a database.
		static := memory.NewStaticQuestionRepository(sampleQuestions())
		gameStore = memory.NewGameStore(sampleGame())
		loader = static
		logger.Warn().Msg("no postgres url configured, using in-memory demo data")
	}

	var questionRepo app.QuestionRepository
	if redisClient != nil {
		questionRepo = redisinfra.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		questionRepo = memory.NewCachedQuestionRepository(loader, questionTTL)
	}

	var presence app.PresenceStore
	if redisClient != nil {
		presence = redisinfra.NewPresence(redisClient, presenceTTL)
	} else {
		presence = memory.NewPresence()
	}

	engineCfg := engineConfig(cfg)
	clock := clockwork.NewRealClock()
	registry := app.NewRegistry(logger)
	sessions := app.NewSessionStore()
	engine := app.NewEngine(engineCfg, registry, sessions, questionRepo, gameStore, clock, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go engine.Run(runCtx)

	wsHandler := transport.NewWSHandler(engine, presence, heartbeat, clientTimeout, clock, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting quiz session server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	var out = os.Stderr
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.Log.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}
	return logger
}

func engineConfig(cfg config.Config) app.Config {
	ec := app.DefaultConfig()
	if cfg.Game.MinPoints > 0 {
		ec.MinPoints = cfg.Game.MinPoints
	}
	if cfg.Game.MaxPoints > 0 {
		ec.MaxPoints = cfg.Game.MaxPoints
	}
	if cfg.Game.AnswerBudgetMs > 0 {
		ec.AnswerBudgetMs = cfg.Game.AnswerBudgetMs
	}
	if cfg.Game.DefaultTimeLimit > 0 {
		ec.DefaultTimeLimitSec = cfg.Game.DefaultTimeLimit
	}
	ec.TickInterval = config.TTLDuration(cfg.Game.TickInterval, ec.TickInterval)
	return ec
}

// sampleGame and sampleQuestions seed the in-memory fallback; any
// connection claiming userId 1 can host game DEMO01.
func sampleGame() domain.Game {
	return domain.Game{
		ID:            1,
		Code:          "DEMO01",
		HostUserID:    1,
		QuestionSetID: 1,
		Status:        domain.StatusLobby,
		CurrentIndex:  -1,
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            1,
			QuestionSetID: 1,
			Position:      0,
			Text:          "What is 2 + 2?",
			Options:       map[string]string{"A": "3", "B": "4", "C": "5", "D": "22"},
			CorrectOption: "B",
			TimeLimitSec:  20,
		},
		{
			ID:            2,
			QuestionSetID: 1,
			Position:      1,
			Text:          "Which planet is closest to the sun?",
			Options:       map[string]string{"A": "Venus", "B": "Earth", "C": "Mercury", "D": "Mars"},
			CorrectOption: "C",
			TimeLimitSec:  20,
		},
		{
			ID:            3,
			QuestionSetID: 1,
			Position:      2,
			Text:          "How many sides does a hexagon have?",
			Options:       map[string]string{"A": "5", "B": "6", "C": "7", "D": "8"},
			CorrectOption: "B",
			TimeLimitSec:  20,
		},
	}
}
