// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"telegram-study-planner/internal/application"
	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain/ports/adapter"
	aiAdapters "telegram-study-planner/internal/infra/adapters/ai"
	"telegram-study-planner/internal/infra/adapters/schedule"
	pg "telegram-study-planner/internal/infra/db/postgres"
	"telegram-study-planner/internal/infra/logging"
	"telegram-study-planner/internal/infra/metrics"
	red "telegram-study-planner/internal/infra/redis"
	tele "telegram-study-planner/internal/infra/telegram"
	"telegram-study-planner/internal/infra/web"
	"telegram-study-planner/internal/infra/worker"
	"telegram-study-planner/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = godotenv.Load()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop generator fallback, relaxed cookies)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	stateRepo := red.NewStateRepo(redisClient, cfg.Redis.StateTTL)
	prefsRepo := red.NewPrefsRepo(redisClient)

	// ---- Repositories ----
	jobRepo := pg.NewPlanJobRepo(pool, tm)

	// ---- Generator adapter (GigaChat -> OpenAI-compatible -> dev noop) ----
	var generator adapter.PlanGeneratorAdapter
	switch {
	case cfg.Generator.AuthKey != "":
		generator, err = aiAdapters.NewGigaChatAdapter(cfg.Generator)
		if err != nil {
			logger.Fatal().Err(err).Msg("gigachat adapter")
		}
		logger.Info().Str("model", cfg.Generator.Model).Msg("generator: GigaChat")
	case cfg.Generator.OpenAIKey != "":
		generator, err = aiAdapters.NewOpenAIAdapter(cfg.Generator.OpenAIKey, cfg.Generator.Model, cfg.Generator.OpenAIBaseURL, cfg.Generator.Temperature)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		logger.Info().Str("model", cfg.Generator.Model).Msg("generator: OpenAI-compatible")
	case cfg.Runtime.Dev:
		generator = aiAdapters.NewNoopGenerator()
		logger.Warn().Msg("generator: noop (dev mode)")
	default:
		logger.Fatal().Msg("no generator configured: set generator.auth_key or generator.openai_key")
	}

	scheduleClient := schedule.NewClient(cfg.Schedule)

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(jobRepo, locker, generator, scheduleClient, cfg.Generator, cfg.Schedule, logger)

	// ---- Telegram (noop in dev when no token is configured) ----
	var botAdapter tele.BotRunner
	if cfg.Bot.Token == "" && cfg.Runtime.Dev {
		botAdapter = tele.NewNoopBotAdapter(logger)
	} else {
		botAdapter, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
	}
	presenter := tele.NewResultPresenter(botAdapter, logger)
	poller := usecase.NewPoller(jobRepo, presenter, planUC, cfg.Poll, logger)
	facade := application.NewBotFacade(ctx, planUC, poller, stateRepo, prefsRepo, presenter)
	botAdapter.Bind(facade)

	go func() {
		if err := botAdapter.StartPolling(ctx); err != nil {
			logger.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- Job processing ----
	wpool := worker.NewPool(cfg.Bot.Workers, logger)
	wpool.Start(ctx)
	processor := worker.NewPlanJobProcessor(jobRepo, planUC, logger)
	go processor.Start(ctx, wpool)

	// ---- Web server ----
	webSrv := web.NewServer(planUC, poller, jobRepo, cfg.Web, cfg.Runtime.Dev, logger)
	go func() {
		if err := webSrv.Run(ctx, cfg.Web.Port); err != nil {
			logger.Error().Err(err).Msg("web server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	wpool.Stop()
	botAdapter.StopPolling()
}
