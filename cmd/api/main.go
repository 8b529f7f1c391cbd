package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/automaton-bindiff/internal/application"
	appai "github.com/bryanwahyu/automaton-bindiff/internal/application/ai"
	appdiffs "github.com/bryanwahyu/automaton-bindiff/internal/application/diffs"
	"github.com/bryanwahyu/automaton-bindiff/internal/config"
	domai "github.com/bryanwahyu/automaton-bindiff/internal/domain/ai"
	"github.com/bryanwahyu/automaton-bindiff/internal/domain/analyst"
	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
	"github.com/bryanwahyu/automaton-bindiff/internal/domain/steperrors"
	openaiclient "github.com/bryanwahyu/automaton-bindiff/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-bindiff/internal/infra/ai/prompt"
	"github.com/bryanwahyu/automaton-bindiff/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/automaton-bindiff/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/automaton-bindiff/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-bindiff/internal/infra/executor/ida"
	"github.com/bryanwahyu/automaton-bindiff/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/automaton-bindiff/internal/infra/storage"
	"github.com/bryanwahyu/automaton-bindiff/internal/logging"
	"github.com/bryanwahyu/automaton-bindiff/internal/middleware"
)

type repositories struct {
	comparisons domain.Repository
	stepErrors  steperrors.Repository
	analyses    analyst.Repository
	db          *sql.DB
}

func openRepositories(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repositories, error) {
	if !cfg.DatabaseEnabled() {
		log.Warn().Msg("no database configured, comparisons are kept in memory")
		return repositories{
			comparisons: memory.NewComparisonRepository(),
			stepErrors:  memory.NewStepErrorRepository(),
			analyses:    memory.NewAnalystRepository(),
		}, nil
	}

	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN(), cfg.Database.Pool)
		if err != nil {
			return repositories{}, fmt.Errorf("postgres connect: %w", err)
		}
		if err := postgresp.Migrate(ctx, db); err != nil {
			db.Close()
			return repositories{}, err
		}
		return repositories{
			comparisons: postgresp.NewComparisonRepository(db),
			stepErrors:  postgresp.NewStepErrorRepository(db),
			analyses:    postgresp.NewAnalystRepository(db),
			db:          db,
		}, nil
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN(), cfg.Database.Pool)
		if err != nil {
			return repositories{}, fmt.Errorf("mysql connect: %w", err)
		}
		if err := mysqlp.Migrate(ctx, db); err != nil {
			db.Close()
			return repositories{}, err
		}
		return repositories{
			comparisons: mysqlp.NewComparisonRepository(db),
			stepErrors:  mysqlp.NewStepErrorRepository(db),
			analyses:    mysqlp.NewAnalystRepository(db),
			db:          db,
		}, nil
	}
}

func newAIClient(cfg *config.Config, log zerolog.Logger) domai.Client {
	if cfg.OpenAI.APIKey == "" {
		log.Info().Msg("openai api key not set, using offline diff analysis")
		return prompt.Offline{}
	}
	if cfg.OpenAI.BaseURL != "" {
		oc := openai.DefaultConfig(cfg.OpenAI.APIKey)
		oc.BaseURL = cfg.OpenAI.BaseURL
		return openaiclient.NewClientWithConfig(oc, cfg.OpenAI.Model)
	}
	return openaiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.LoadOptional(path)
	if err != nil {
		boot := logging.Init("bindiff-api", logging.Options{})
		boot.Fatal().Err(err).Msg("config load error")
	}
	log := logging.Init("bindiff-api", logging.Options{Level: cfg.Log.Level, NoColor: cfg.Log.NoColor})

	ctx := context.Background()

	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database init error")
	}
	if repos.db != nil {
		defer repos.db.Close()
	}

	svc := &appdiffs.Service{
		Repo:       repos.comparisons,
		Runner:     ida.NewPipeline(cfg.Tools, log.With().Str("component", "pipeline").Logger()),
		Inputs:     ida.NewStager(log.With().Str("component", "stager").Logger()),
		StepErrors: repos.stepErrors,
		Clock:      application.SystemClock{},
		WorkDir:    cfg.WorkDir,
		Log:        log,
	}

	if cfg.MinioEnabled() {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
			log,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("minio init error")
		}
		svc.Artifacts = store
	}

	aiSvc := appai.NewService(newAIClient(cfg, log), repos.analyses, repos.comparisons, application.SystemClock{})

	checkers := map[string]middleware.HealthChecker{
		"tools": middleware.CheckerFunc(func(context.Context) error {
			return ida.CheckDependencies(cfg.Tools)
		}),
	}
	if repos.db != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: repos.db}
	}

	router := httpserver.NewRouter(httpserver.Options{
		Diffs:       svc,
		AI:          aiSvc,
		Checkers:    checkers,
		APIKeys:     cfg.Auth.APIKeys,
		RateLimit:   cfg.RateLimit.Capacity,
		RefillRate:  cfg.RateLimit.RefillRate,
		CorsOrigins: cfg.Server.CorsOrigins,
		Log:         log,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	// running comparisons are cancelled, their state is saved as failed
	router.Close()
}
