// Package main is the entry point for the conviction strategy runner.
// It wires the engine's components together, registers each enabled
// strategy's cron schedule, and executes runs until shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/avellar/conviction/internal/clients/judge"
	"github.com/avellar/conviction/internal/clients/oracle"
	"github.com/avellar/conviction/internal/config"
	"github.com/avellar/conviction/internal/database"
	"github.com/avellar/conviction/internal/domain"
	"github.com/avellar/conviction/internal/market"
	"github.com/avellar/conviction/internal/modules/deliberation"
	"github.com/avellar/conviction/internal/modules/execution"
	"github.com/avellar/conviction/internal/modules/exits"
	"github.com/avellar/conviction/internal/modules/portfolio"
	"github.com/avellar/conviction/internal/modules/runs"
	"github.com/avellar/conviction/internal/modules/scoring"
	"github.com/avellar/conviction/internal/modules/sizing"
	"github.com/avellar/conviction/internal/modules/strategies"
	"github.com/avellar/conviction/internal/modules/universe"
	"github.com/avellar/conviction/internal/orchestrator"
	"github.com/avellar/conviction/internal/progress"
	"github.com/avellar/conviction/internal/scheduler"
	"github.com/avellar/conviction/internal/workers"
	"github.com/avellar/conviction/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	strategyID := flag.String("strategy", "", "run a single strategy immediately instead of scheduling")
	candidateLimit := flag.Int("limit", 0, "cap the number of screened candidates (0 = unlimited)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting conviction runner")

	databases := openDatabases(cfg, log)
	defer func() {
		for _, db := range databases {
			db.Close()
		}
	}()

	orch := buildOrchestrator(cfg, databases, log)
	strategyRepo := strategies.NewStrategyRepository(databases["runs"].Conn(), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOne := func(ctx context.Context, id string) error {
		_, err := orch.Run(ctx, orchestrator.Request{
			StrategyID:     id,
			CandidateLimit: *candidateLimit,
			Progress:       progress.NewReporter(logProgress(log)),
		})
		return err
	}

	// One-shot mode: run the named strategy and exit.
	if *strategyID != "" {
		if err := runOne(ctx, *strategyID); err != nil {
			log.Fatal().Err(err).Str("strategy_id", *strategyID).Msg("Run failed")
		}
		return
	}

	// Scheduled mode: register every enabled strategy's cron expression and
	// wait for shutdown.
	sched := scheduler.New(runOne, log)
	if err := sched.Register(ctx, strategyRepo); err != nil {
		log.Fatal().Err(err).Msg("Failed to register strategy schedules")
	}
	sched.Start()

	<-ctx.Done()
	log.Info().Msg("Shutdown requested")
	sched.Stop()
	log.Info().Msg("Conviction runner stopped")
}

// openDatabases opens and migrates the engine's four databases.
func openDatabases(cfg *config.Config, log zerolog.Logger) map[string]*database.DB {
	profiles := map[string]database.DatabaseProfile{
		"universe":  database.ProfileStandard,
		"portfolio": database.ProfileLedger,
		"runs":      database.ProfileStandard,
		"cache":     database.ProfileCache,
	}

	databases := make(map[string]*database.DB, len(profiles))
	for name, profile := range profiles {
		db, err := database.New(database.Config{
			Path:    cfg.DatabasePath(name),
			Profile: profile,
			Name:    name,
		})
		if err != nil {
			log.Fatal().Err(err).Str("database", name).Msg("Failed to open database")
		}
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", name).Msg("Failed to migrate database")
		}
		databases[name] = db
	}

	log.Info().Int("count", len(databases)).Msg("Databases ready")
	return databases
}

// buildOrchestrator wires every component of the run pipeline.
func buildOrchestrator(cfg *config.Config, databases map[string]*database.DB, log zerolog.Logger) *orchestrator.Orchestrator {
	securityRepo := universe.NewSecurityRepository(databases["universe"].Conn(), log)
	positionRepo := portfolio.NewPositionRepository(databases["portfolio"].Conn(), log)
	strategyRepo := strategies.NewStrategyRepository(databases["runs"].Conn(), log)
	runRepo := runs.NewRunRepository(databases["runs"].Conn(), log)
	cacheRepo := deliberation.NewCacheRepository(databases["cache"].Conn(), log)
	thesisRepo := deliberation.NewThesisRepository(databases["cache"].Conn(), log)

	oracleClient := oracle.NewClient(cfg.OracleServiceURL, log)
	judgeClient := judge.NewClient(cfg.JudgeServiceURL, cfg.JudgeAPIKey, cfg.JudgeMaxTokens, log)

	scoringEngine, err := scoring.NewEngine(oracleClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build scoring engine")
	}

	judgeCaller := deliberation.NewJudgeCaller(judgeClient, cfg.JudgeModel, cfg.JudgeFallback, log)
	pool := workers.NewPool(cfg.Workers)
	deliberationCoord := deliberation.NewCoordinator(cacheRepo, judgeCaller, runRepo, pool, log)

	return orchestrator.New(
		strategyRepo,
		runRepo,
		positionRepo,
		thesisRepo,
		securityRepo,
		scoringEngine,
		deliberationCoord,
		exits.NewEvaluator(securityRepo, log),
		sizing.NewSizer(log),
		execution.NewCoordinator(positionRepo, securityRepo, log),
		securityRepo,
		market.NewClock(),
		log,
	)
}

// logProgress adapts coarse run progress onto the structured log.
func logProgress(log zerolog.Logger) domain.ProgressFunc {
	return func(percent int, message string, processed, total int) {
		log.Info().
			Int("percent", percent).
			Int("processed", processed).
			Int("total", total).
			Msg(message)
	}
}
