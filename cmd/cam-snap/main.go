package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/app"
	"github.com/sua-org/cam-snap/internal/config"
	"github.com/sua-org/cam-snap/internal/logger"
	"github.com/sua-org/cam-snap/internal/supervisor"
	"github.com/sua-org/cam-snap/internal/trigger"
)

func main() {
	// .env é opcional; o resultado só é logado depois que o logger existe
	dotenvErr := config.LoadDotenv()

	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	log, closer := logger.New(cfg.Logger())
	defer closer.Close()

	if dotenvErr != nil {
		log.Warn().Err(dotenvErr).Msg("could not load .env")
	} else {
		log.Info().Msg(".env loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, app.Options{ClientID: "cam-snap"}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	var pub supervisor.Publisher
	if p := a.Publisher(); p != nil {
		pub = p
	}
	sup := supervisor.New(a.Runner, pub, a.BaseTopic(), cfg.Endpoint().Address, log)

	sched, err := trigger.NewScheduler(cfg.Trigger.Schedule, sup, log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid SNAPSHOT_SCHEDULE")
	}
	srv := trigger.NewServer(sup, sched, log)

	log.Info().
		Str("camera", cfg.Endpoint().Address).
		Strs("presets", a.Presets).
		Str("schedule", cfg.Trigger.Schedule).
		Str("http_addr", cfg.Trigger.HTTPAddr).
		Msg("cam-snap started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	if err := srv.ListenAndServe(ctx, cfg.Trigger.HTTPAddr); err != nil {
		log.Error().Err(err).Msg("http server stopped")
		stop()
	}
	wg.Wait()
	log.Info().Msg("shutdown complete")
}
