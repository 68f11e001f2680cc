package stepflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RealZimboGuy/stepflow/internal/config"
	"github.com/RealZimboGuy/stepflow/internal/controllers"
	"github.com/RealZimboGuy/stepflow/internal/definitions"
	"github.com/RealZimboGuy/stepflow/internal/engine"
	"github.com/RealZimboGuy/stepflow/internal/migrations"
	"github.com/RealZimboGuy/stepflow/internal/queue"
	"github.com/RealZimboGuy/stepflow/internal/repository"
	"github.com/RealZimboGuy/stepflow/internal/steps"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/core"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
	"github.com/RealZimboGuy/stepflow/pkg/stepflow/models"

	"github.com/lmittmann/tint"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var stepRegistry = steps.NewRegistry()

// RegisterStep binds a step executor to a step type. Call it before Start; the built-in
// "log" and "fail" types are registered by Start unless already bound.
func RegisterStep(stepType string, fn func(ctx context.Context, step domain.StepDefinition) error) {
	stepRegistry.Register(stepType, steps.ExecutorFunc(fn))
}

// Start boots the step consumer and HTTP server.
// This call blocks until the process receives SIGINT/SIGTERM or the HTTP server stops.
func Start(mux *http.ServeMux) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, mux, core.NewRealClock())
}

// Run is Start with a caller owned context and clock. It returns once ctx is cancelled
// and the HTTP server has shut down.
func Run(ctx context.Context, mux *http.ServeMux, clock core.Clock) error {
	db, err := setupDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	stepQueue, closeQueue, err := setupQueue(ctx, db, clock)
	if err != nil {
		return err
	}
	defer closeQueue()

	workflowRepo := repository.NewWorkflowDefinitionRepository(db)
	executionRepo := repository.NewExecutionRepository(db)
	eventRepo := repository.NewExecutionEventRepository(db)
	executorRepo := repository.NewExecutorRepository(db)

	if path := config.GetSystemSettingString(config.WORKFLOWS_FILE); path != "" {
		defs, err := definitions.LoadFile(path, clock.Now())
		if err != nil {
			return err
		}
		created, err := definitions.Seed(ctx, workflowRepo, defs)
		if err != nil {
			return err
		}
		slog.Info("Workflow definitions seeded", "file", path, "declared", len(defs), "created", created)
	}

	steps.RegisterBuiltins(stepRegistry, clock, config.GetSystemSettingDuration(config.LOG_STEP_DELAY))
	slog.Info("Step types registered", "types", stepRegistry.Types())

	orchestrator := engine.NewOrchestrator(workflowRepo, executionRepo, eventRepo, stepQueue, stepRegistry, clock)
	orchestrator.SetRepairAfter(config.GetSystemSettingDuration(config.REPAIR_AFTER))

	consumer := engine.NewConsumer(orchestrator, stepQueue, executorRepo, engine.ConsumerSettings{
		ExecutorName:   config.GetSystemSettingString(config.EXECUTOR_NAME),
		Workers:        config.GetSystemSettingInteger(config.CONSUMER_SIZE),
		BatchSize:      config.GetSystemSettingInteger(config.QUEUE_BATCH_SIZE),
		PollInterval:   config.GetSystemSettingDuration(config.QUEUE_POLL_INTERVAL),
		Visibility:     config.GetSystemSettingDuration(config.QUEUE_VISIBILITY_TIMEOUT),
		RepairInterval: config.GetSystemSettingDuration(config.REPAIR_INTERVAL),
		Retry: models.RetryConfig{
			MaxReceiveCount:  config.GetSystemSettingInteger(config.QUEUE_MAX_RECEIVE_COUNT),
			RetryIntervalMin: config.GetSystemSettingDuration(config.RETRY_INTERVAL_MIN),
			RetryIntervalMax: config.GetSystemSettingDuration(config.RETRY_INTERVAL_MAX),
		},
	}, clock)

	if mux == nil {
		mux = http.NewServeMux()
	}
	controllers.NewWorkflowsController(workflowRepo).RegisterRoutes(mux)
	controllers.NewExecutionsController(orchestrator, executionRepo, eventRepo, consumer).RegisterRoutes(mux)
	controllers.NewDeadLettersController(stepQueue).RegisterRoutes(mux)
	controllers.NewExecutorsController(executorRepo).RegisterRoutes(mux)

	addr := ":" + config.GetSystemSettingString(config.SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("Starting HTTP server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func setupDatabase() (*sql.DB, error) {
	switch databaseType := config.GetSystemSettingString(config.DATABASE_TYPE); databaseType {
	case config.DATABASE_TYPE_POSTGRES:
		return setupPostgresDatabase()
	case config.DATABASE_TYPE_MYSQL:
		return setupMysqlDatabase()
	case config.DATABASE_TYPE_SQLLITE:
		return setupSqlLiteDatabase()
	default:
		return nil, fmt.Errorf("%s must be set to one of POSTGRES, MYSQL, SQLLITE, got %q", config.DATABASE_TYPE, databaseType)
	}
}

func setupPostgresDatabase() (*sql.DB, error) {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		return nil, fmt.Errorf("%s must be set when using the POSTGRES database type", config.DATABASE_URL)
	}
	slog.Info("Running migrations", "database", "postgres")
	if err := migrations.Run("postgres", dbURL); err != nil {
		return nil, fmt.Errorf("postgres migration failed: %w", err)
	}
	slog.Info("Opening Postgres database")
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	return db, db.Ping()
}

func setupSqlLiteDatabase() (*sql.DB, error) {
	fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
	slog.Info("Running migrations", "database", "sqlite", "file", fileName)
	if err := migrations.Run("sqllite3", "sqlite3://"+fileName); err != nil {
		return nil, fmt.Errorf("sqlite migration failed: %w", err)
	}
	db, err := sql.Open("sqlite3", fileName+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	// sqlite allows one writer, serialising through a single connection avoids SQLITE_BUSY under the worker pool
	db.SetMaxOpenConns(1)
	return db, db.Ping()
}

func setupMysqlDatabase() (*sql.DB, error) {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if !strings.HasPrefix(dbURL, "mysql://") {
		return nil, fmt.Errorf("%s must start with 'mysql://' for MySQL", config.DATABASE_URL)
	}
	if !strings.Contains(dbURL, "parseTime=true") {
		return nil, fmt.Errorf("%s must contain 'parseTime=true' for MySQL", config.DATABASE_URL)
	}

	migrationURL := dbURL
	if !strings.Contains(migrationURL, "multiStatements=true") {
		migrationURL += "&multiStatements=true"
	}
	slog.Info("Running migrations", "database", "mysql")
	if err := migrations.Run("mysql", migrationURL); err != nil {
		return nil, fmt.Errorf("mysql migration failed: %w", err)
	}
	slog.Info("Opening MySQL database")
	db, err := sql.Open("mysql", strings.TrimPrefix(dbURL, "mysql://"))
	if err != nil {
		return nil, fmt.Errorf("mysql connection failed: %w", err)
	}
	return db, db.Ping()
}

func setupQueue(ctx context.Context, db *sql.DB, clock core.Clock) (engine.StepQueue, func(), error) {
	name := config.GetSystemSettingString(config.QUEUE_NAME)
	switch queueType := config.GetSystemSettingString(config.QUEUE_TYPE); queueType {
	case config.QUEUE_TYPE_DATABASE:
		slog.Info("Using database step queue", "queue", name)
		return repository.NewStepQueueRepository(db, clock, name), func() {}, nil
	case config.QUEUE_TYPE_REDIS:
		opts, err := goredis.ParseURL(config.GetSystemSettingString(config.REDIS_URL))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid %s: %w", config.REDIS_URL, err)
		}
		client := goredis.NewClient(opts)
		q := queue.NewRedisQueue(client, clock, name)
		if err := q.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis unavailable: %w", err)
		}
		slog.Info("Using Redis step queue", "queue", name, "addr", opts.Addr)
		return q, func() { _ = client.Close() }, nil
	case config.QUEUE_TYPE_MEMORY:
		slog.Warn("Using in-memory step queue, messages are lost on restart", "queue", name)
		return queue.NewMemoryQueue(clock, name), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%s must be one of DATABASE, REDIS, MEMORY, got %q", config.QUEUE_TYPE, queueType)
	}
}

// SetupLogger installs a tint handler as the default slog logger at SFLOW_LOG_LEVEL.
func SetupLogger() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.GetSystemSettingString(config.LOG_LEVEL))); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339Nano,
		}),
	))
}
