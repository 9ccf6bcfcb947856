package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/postgres"
	pgmigrations "quiz-live-service/internal/infra/postgres/migrations"
	redisinfra "quiz-live-service/internal/infra/redis"
	"quiz-live-service/internal/protocol"
)

func TestGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedGame(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	questionRepo := redisinfra.NewQuestionRepository(redisClient, store, 5*time.Minute)

	log := zerolog.Nop()
	registry := app.NewRegistry(log)
	sessions := app.NewSessionStore()
	engine := app.NewEngine(app.DefaultConfig(), registry, sessions, questionRepo, store, clockwork.NewRealClock(), log)

	hostSend := make(chan []byte, 64)
	hostID := int64(7)
	registry.Register(app.ConnInfo{SessionID: "host-conn", UserID: &hostID, Role: domain.RoleViewer}, hostSend)
	playerSend := make(chan []byte, 64)
	registry.Register(app.ConnInfo{SessionID: "player-conn", Role: domain.RoleViewer}, playerSend)

	if err := engine.JoinLobby(ctx, "player-conn", protocol.JoinLobby{GameCode: "ROOM42", Nickname: "Alice"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := engine.StartGame(ctx, "host-conn", protocol.StartGame{GameCode: "ROOM42"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.SubmitAnswer(ctx, "player-conn", protocol.SubmitAnswer{QuestionID: 10, Answer: "B", ResponseTimeMs: 0}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := engine.SubmitAnswer(ctx, "player-conn", protocol.SubmitAnswer{QuestionID: 10, Answer: "C"}); err != domain.ErrDuplicateAnswer {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if err := engine.NextQuestion(ctx, "host-conn", protocol.NextQuestion{GameCode: "ROOM42"}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := engine.SubmitAnswer(ctx, "player-conn", protocol.SubmitAnswer{QuestionID: 11, Answer: "A", ResponseTimeMs: 2000}); err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	// Past the last question: the game ends.
	if err := engine.NextQuestion(ctx, "host-conn", protocol.NextQuestion{GameCode: "ROOM42"}); err != nil {
		t.Fatalf("final advance: %v", err)
	}

	game, err := store.GameByCode(ctx, "ROOM42")
	if err != nil {
		t.Fatalf("reload game: %v", err)
	}
	if game.Status != domain.StatusCompleted || game.StartedAt == nil || game.EndedAt == nil {
		t.Fatalf("expected completed game row, got %+v", game)
	}
	if game.CurrentIndex != 1 {
		t.Fatalf("expected last persisted index 1, got %d", game.CurrentIndex)
	}

	var (
		score   int
		correct int
	)
	err = pool.QueryRow(ctx, `
		SELECT p.score, COUNT(*) FILTER (WHERE a.is_correct)
		FROM players p
		LEFT JOIN player_answers a ON a.player_id = p.id
		WHERE p.nickname = '**Alice'
		GROUP BY p.score`).Scan(&score, &correct)
	if err != nil {
		t.Fatalf("load player row: %v", err)
	}
	if score != 1000 || correct != 1 {
		t.Fatalf("expected score 1000 with one correct answer, got score=%d correct=%d", score, correct)
	}
}

func TestReconnectAgainstDurableRows(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	seedGame(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	log := zerolog.Nop()
	registry := app.NewRegistry(log)
	sessions := app.NewSessionStore()
	engine := app.NewEngine(app.DefaultConfig(), registry, sessions, store, store, clockwork.NewRealClock(), log)

	hostID := int64(7)
	registry.Register(app.ConnInfo{SessionID: "host-conn", UserID: &hostID}, make(chan []byte, 64))
	registry.Register(app.ConnInfo{SessionID: "player-conn"}, make(chan []byte, 64))

	if err := engine.JoinLobby(ctx, "player-conn", protocol.JoinLobby{GameCode: "ROOM42", Nickname: "Alice"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := engine.StartGame(ctx, "host-conn", protocol.StartGame{GameCode: "ROOM42"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.SubmitAnswer(ctx, "player-conn", protocol.SubmitAnswer{QuestionID: 10, Answer: "B"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	engine.Disconnect(ctx, "player-conn")
	player, err := store.PlayerBySession(ctx, "player-conn")
	if err != nil {
		t.Fatalf("player row: %v", err)
	}
	if player.IsActive {
		t.Fatalf("expected inactive row after disconnect")
	}

	fresh := make(chan []byte, 64)
	registry.Register(app.ConnInfo{SessionID: "player-conn-2"}, fresh)
	if err := engine.Reconnect(ctx, "player-conn-2", protocol.Reconnect{OldSessionID: "player-conn"}); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	restored, err := store.PlayerBySession(ctx, "player-conn-2")
	if err != nil {
		t.Fatalf("restored row: %v", err)
	}
	if !restored.IsActive || restored.ID != player.ID || restored.Score != 1000 {
		t.Fatalf("row not restored: %+v", restored)
	}
	if _, err := store.PlayerBySession(ctx, "player-conn"); err != domain.ErrSessionNotFound {
		t.Fatalf("old session id should be gone, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedGame(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stmts := []string{
		`INSERT INTO question_sets (id, title) VALUES (1, 'general knowledge')`,
		`INSERT INTO questions (id, question_set_id, position, question_text, option_a, option_b, option_c, option_d, correct_option, time_limit)
		 VALUES (10, 1, 0, 'What is 2 + 2?', '3', '4', '5', '22', 'B', 20),
		        (11, 1, 1, 'Closest planet to the sun?', 'Venus', 'Earth', 'Mercury', 'Mars', 'C', 20)`,
		`INSERT INTO games (id, code, host_id, question_set_id) VALUES (1, 'ROOM42', 7, 1)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
