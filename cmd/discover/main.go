package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"coa-docket/adapter"
	"coa-docket/config"
	"coa-docket/models"
	"coa-docket/repository"
	"coa-docket/service"
	"coa-docket/storage"
	"coa-docket/utils"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML run configuration")
	flag.Parse()

	logger := utils.NewLogger(os.Stderr, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			logger.Debug("no .env file found, using environment variables")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = utils.StoreLoggerInContext(ctx, logger)

	if err := run(ctx, *configPath); err != nil {
		logger.Error("run failed", "error", err, "error_class", models.ErrorClass(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	logger := utils.LoggerFromContext(ctx)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	jurisdictions, err := cfg.ParsedJurisdictions()
	if err != nil {
		return err
	}

	if cfg.FixturesPath == "" {
		return errors.Wrap(models.ErrFatalConfiguration, "no court search adapter configured (FIXTURES_PATH)")
	}
	courtAdapter, err := adapter.LoadFixture(cfg.FixturesPath)
	if err != nil {
		return err
	}

	artifacts, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		return err
	}

	snapshots, err := repository.NewSnapshotWriter(cfg.OutputDir)
	if err != nil {
		return errors.Mark(err, models.ErrFatalConfiguration)
	}

	policy := service.RetryPolicy{
		MaxAttempts:  uint(cfg.Retry.MaxAttempts),
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	dispatcherOpts := []service.AnalysisDispatcherOption{
		service.DispatcherWithRetryPolicy(policy),
		service.DispatcherWithConcurrency(cfg.Concurrency),
	}
	analyzer, err := service.NewGeminiAnalyzer(ctx, cfg.Analysis.APIKey, cfg.Analysis.Model)
	switch {
	case errors.Is(err, models.ErrAnalysisUnavailable):
		logger.Info("analysis disabled", "reason", err.Error())
	case err != nil:
		return err
	default:
		defer analyzer.Close()
		dispatcherOpts = append(dispatcherOpts, service.DispatcherWithAnalyzer(analyzer))
	}

	pipelineOpts := []service.PipelineOption{
		service.PipelineWithOrchestrator(service.NewSearchOrchestrator(courtAdapter,
			service.OrchestratorWithRetryPolicy(policy),
			service.OrchestratorWithLimiter(limiter),
			service.OrchestratorWithConcurrency(cfg.Concurrency),
			service.OrchestratorWithMaxPages(cfg.MaxPages),
		)),
		service.PipelineWithResolver(service.NewCrossReferenceResolver(
			service.ResolverWithLookup(courtAdapter, 0, cfg.LookupCacheTTL),
			service.ResolverWithRetryPolicy(policy),
			service.ResolverWithLimiter(limiter),
		)),
		service.PipelineWithFetcher(service.NewDocumentFetcher(service.NewHTTPDocumentSource(nil), artifacts,
			service.FetcherWithRetryPolicy(policy),
			service.FetcherWithLimiter(limiter),
			service.FetcherWithConcurrency(cfg.Concurrency),
		)),
		service.PipelineWithDispatcher(service.NewAnalysisDispatcher(artifacts, dispatcherOpts...)),
		service.PipelineWithSnapshotWriter(snapshots),
		service.PipelineWithRunTimeout(cfg.RunTimeout),
	}
	if cfg.Resume {
		pipelineOpts = append(pipelineOpts, service.PipelineWithResumeDir(cfg.OutputDir))
	}
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Mark(errors.Wrap(err, "failed to connect to database"), models.ErrFatalConfiguration)
		}
		defer pool.Close()
		pipelineOpts = append(pipelineOpts, service.PipelineWithResultSaver(repository.NewCaseRepository(pool)))
	}

	summary, err := service.NewPipeline(pipelineOpts...).Run(ctx, service.RunRequest{
		BarNumbers:    cfg.BarNumbers,
		Jurisdictions: jurisdictions,
	})
	if err != nil {
		return err
	}

	logger.Info("outputs written", "dir", cfg.OutputDir, "run_id", summary.RunID.String())
	return nil
}
