// Package app monta o grafo de dependências a partir da config; os binários
// em cmd/ só cuidam do ciclo de vida.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/batch"
	"github.com/sua-org/cam-snap/internal/capture"
	"github.com/sua-org/cam-snap/internal/config"
	"github.com/sua-org/cam-snap/internal/mqttclient"
	"github.com/sua-org/cam-snap/internal/onvif"
	"github.com/sua-org/cam-snap/internal/snapshot"
	"github.com/sua-org/cam-snap/internal/storage"
)

type App struct {
	Config  *config.Config
	Camera  *onvif.Client
	Snap    *snapshot.Snapshotter
	Store   *storage.MinioStore
	MQTT    *mqttclient.Client
	Runner  *batch.Runner
	Presets []string
}

// Publisher devolve o cliente MQTT como interface, ou nil se desligado.
func (a *App) Publisher() batch.Publisher {
	if a.MQTT == nil {
		return nil
	}
	return a.MQTT
}

func (a *App) BaseTopic() string {
	if a.MQTT == nil {
		return ""
	}
	return a.MQTT.BaseTopic()
}

func (a *App) Close() {
	if a.MQTT != nil {
		a.MQTT.Close()
	}
}

type Options struct {
	ClientID  string
	Presets   []string // sobrescreve CAMERA_PRESETS quando não vazio
	KeepLocal bool
}

// Build conecta storage (obrigatório) e MQTT (opcional: falha só vira aviso).
func Build(ctx context.Context, cfg *config.Config, opts Options, log zerolog.Logger) (*App, error) {
	store, err := storage.NewMinioStore(ctx, cfg.Storage(), log)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}

	a := &App{Config: cfg, Store: store}

	if mc := cfg.MQTTClient(opts.ClientID); mc.Enabled() {
		cli, err := mqttclient.NewClient(mc, log)
		if err != nil {
			log.Warn().Err(err).Msg("mqtt unavailable, continuing without events")
		} else {
			a.MQTT = cli
		}
	} else {
		log.Info().Msg("MQTT_HOST not set, events disabled")
	}

	a.Camera, a.Snap = NewSnapshotter(cfg, log)

	a.Presets = cfg.Presets()
	if len(opts.Presets) > 0 {
		a.Presets = opts.Presets
	}
	a.Runner = batch.NewRunner(a.Snap, store, a.Publisher(), batch.Options{
		Presets:   a.Presets,
		CameraIP:  cfg.Endpoint().Address,
		BaseTopic: a.BaseTopic(),
		KeepLocal: opts.KeepLocal,
	}, log)
	return a, nil
}

// NewSnapshotter liga cliente ONVIF, captura via ffmpeg e política de retry.
func NewSnapshotter(cfg *config.Config, log zerolog.Logger) (*onvif.Client, *snapshot.Snapshotter) {
	cam := onvif.NewClient(cfg.Endpoint(), onvif.NewTransport(log), log)
	capturer := capture.NewCapturer(
		capture.FFmpegFactory(cfg.Capture.FFmpegPath, log),
		capture.DefaultOptions(cfg.Capture.SnapshotDir),
		log,
	)
	return cam, snapshot.New(cam, capturer, cfg.Policy(), log)
}
