package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/application/service"
	"github.com/qanoonhq/lexflow/internal/config"
	"github.com/qanoonhq/lexflow/internal/infrastructure/persistence/repository"
	"github.com/qanoonhq/lexflow/internal/infrastructure/resolver"
	httpserver "github.com/qanoonhq/lexflow/internal/interfaces/http"
	"github.com/qanoonhq/lexflow/pkg/database"
	"github.com/qanoonhq/lexflow/pkg/utils"
)

func main() {
	// Optional .env for local development
	_ = gotenv.Load()

	configPath := os.Getenv("LEXFLOW_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting workflow engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	definitionRepo := repository.NewDefinitionRepository(db.DB, logger)
	templateRepo := repository.NewCaseTemplateRepository(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	progressRepo := repository.NewProgressRepository(db.DB, logger)

	// Entity records live in the host practice-management system; the API
	// gateway verifies them before instances are started here.
	entities := resolver.NewComposite(logger)
	entities.Register("case", resolver.AcceptAll)
	entities.Register("client", resolver.AcceptAll)
	entities.Register("document", resolver.AcceptAll)

	clk := clock.New()

	definitionService := service.NewDefinitionService(
		definitionRepo, instanceRepo, clk, cfg.Engine.DefinitionCacheTTL, logger)
	templateService := service.NewCaseTemplateService(templateRepo, progressRepo, clk, logger)
	instanceService := service.NewInstanceService(definitionRepo, instanceRepo, entities, clk, logger)
	progressService := service.NewProgressService(templateRepo, progressRepo, clk, logger)

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		definitionService,
		templateService,
		instanceService,
		progressService,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
