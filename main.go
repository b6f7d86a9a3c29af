package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"shorts-bot/audio"
	"shorts-bot/config"
	"shorts-bot/health"
	"shorts-bot/logging"
	"shorts-bot/redis"
	"shorts-bot/render"
	"shorts-bot/scheduler"
	"shorts-bot/session"
	"shorts-bot/storage"
	"shorts-bot/telegram"
	"shorts-bot/tokens"
	"shorts-bot/upload"
	"shorts-bot/visuals"
)

func main() {
	// .env is for local runs; deployments set the environment directly.
	config.LoadEnv()

	logger := logging.New(os.Getenv("APP_ENV"))
	cfg, err := config.Load(os.Getenv("SHORTS_BOT_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = logging.New(cfg.App.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped")
	}
	logger.Info().Msg("bye")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	for _, dir := range []string{cfg.Paths.Images, cfg.Paths.Output, cfg.Paths.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	images, err := storage.NewImageStore(cfg.Paths.Images)
	if err != nil {
		return err
	}
	tokenStore := tokens.NewFileStore(cfg.Paths.TokensFile)

	tts := audio.New(cfg, logging.Component(logger, "audio"))
	renderer := render.New(cfg, logging.Component(logger, "render"))
	assembler, err := visuals.NewAssembler(cfg, tts, renderer, logging.Component(logger, "visuals"))
	if err != nil {
		return err
	}

	youtube := upload.NewYouTube(cfg, logging.Component(logger, "youtube"))
	dispatcher := upload.NewDispatcher(tokenStore, youtube, cfg.Paths.Logs, logging.Component(logger, "upload"))

	api, err := telegram.Connect(cfg.Secrets.TelegramToken)
	if err != nil {
		return err
	}
	logger.Info().Str("bot", api.Self.UserName).Msg("authorized on telegram")
	notifier := telegram.NewNotifier(api)

	var store scheduler.Store
	if cfg.Schedule.Store == "redis" {
		client, err := redis.NewClient(ctx, cfg.Schedule.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		store = scheduler.NewRedisStore(client, cfg.Schedule.Redis.Key, logging.Component(logger, "jobstore"))
	}
	runner := scheduler.NewUploadRunner(dispatcher, notifier, assembler, logging.Component(logger, "runner"))
	sched := scheduler.New(runner, store, logging.Component(logger, "scheduler"))
	defer sched.Stop()
	if _, err := sched.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("could not restore scheduled jobs")
	}

	machine := session.NewMachine(cfg, session.Deps{
		Notifier:  notifier,
		Images:    images,
		Assembler: assembler,
		Uploader:  dispatcher,
		Scheduler: sched,
	}, logging.Component(logger, "session"))

	srv := health.NewServer(cfg.Health.Port, health.NewRouter(stats{machine, sched}, logging.Component(logger, "health")))
	go func() {
		logger.Info().Str("port", cfg.Health.Port).Msg("health server listening")
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("health server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	bot := telegram.NewBot(api, machine, tokenStore, notifier, logging.Component(logger, "telegram"))
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type stats struct {
	machine *session.Machine
	sched   *scheduler.Scheduler
}

func (s stats) Sessions() int      { return s.machine.Sessions() }
func (s stats) ScheduledJobs() int { return len(s.sched.Pending()) }
