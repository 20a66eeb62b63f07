// snapshot-once roda uma única sequência de snapshots e sai (status 1 em falha).
// Útil pra testar câmera/credenciais/storage sem subir o serviço.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/app"
	"github.com/sua-org/cam-snap/internal/config"
	"github.com/sua-org/cam-snap/internal/logger"
	"github.com/sua-org/cam-snap/internal/snapshot"
)

func main() {
	presets := flag.String("presets", "", "comma-separated preset tokens (overrides CAMERA_PRESETS)")
	keep := flag.Bool("keep", false, "keep the local JPEG after upload")
	noUpload := flag.Bool("no-upload", false, "only capture, print the local path")
	flag.Parse()

	dotenvErr := config.LoadDotenv()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, closer := logger.New(cfg.Logger())
	defer closer.Close()
	if dotenvErr != nil {
		log.Debug().Err(dotenvErr).Msg("no .env loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var list []string
	for _, p := range strings.Split(*presets, ",") {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}

	if *noUpload {
		os.Exit(captureOnly(ctx, cfg, list, log))
	}

	a, err := app.Build(ctx, cfg, app.Options{ClientID: "cam-snap-once", Presets: list, KeepLocal: *keep}, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
	defer a.Close()

	report, err := a.Runner.Run(ctx, "manual")
	for label, key := range report.Uploaded {
		fmt.Printf("%s\t%s\n", label, key)
	}
	if err != nil {
		log.Error().Err(err).Str("summary", snapshot.Describe(err)).Msg("snapshot sequence failed")
		os.Exit(1)
	}
}

// captureOnly tira os snapshots sem storage nem MQTT.
func captureOnly(ctx context.Context, cfg *config.Config, presets []string, log zerolog.Logger) int {
	if len(presets) == 0 {
		presets = cfg.Presets()
	}
	_, snap := app.NewSnapshotter(cfg, log)

	code := 0
	for _, p := range presets {
		s, err := snap.SnapshotWithRetry(ctx, p)
		if err != nil {
			log.Error().Err(err).Str("summary", snapshot.Describe(err)).Msg("snapshot failed")
			code = 1
			continue
		}
		fmt.Printf("%s\t%s\t%dx%d\n", s.Preset, s.Path, s.Width, s.Height)
	}
	return code
}
