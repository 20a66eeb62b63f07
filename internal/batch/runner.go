package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/core"
	"github.com/sua-org/cam-snap/internal/mqttclient"
	"github.com/sua-org/cam-snap/internal/storage"
)

// Snapshotter é implementado por *snapshot.Snapshotter.
type Snapshotter interface {
	SnapshotWithRetry(ctx context.Context, preset string) (*core.CapturedSnapshot, error)
}

// Publisher é implementado por *mqttclient.Client.
type Publisher interface {
	PublishJSON(topic string, retained bool, v any) error
}

type Options struct {
	// Presets em ordem; vazio ou [""] = só a posição atual.
	Presets   []string
	CameraIP  string
	BaseTopic string
	// KeepLocal mantém o JPEG temporário depois do upload.
	KeepLocal bool
}

// Report resume uma execução do batch.
type Report struct {
	RunID     string
	Trigger   string
	StartedAt time.Time
	Duration  time.Duration
	// Uploaded: chave do objeto por label de preset.
	Uploaded  map[string]string
	Succeeded []string
	Failed    []string
}

type Runner struct {
	snap  Snapshotter
	store storage.ObjectStore
	pub   Publisher
	opts  Options
	log   zerolog.Logger

	now   func() time.Time
	runID func() string
}

// NewRunner monta o runner; pub pode ser nil (MQTT desligado).
func NewRunner(snap Snapshotter, store storage.ObjectStore, pub Publisher, opts Options, log zerolog.Logger) *Runner {
	if len(opts.Presets) == 0 {
		opts.Presets = []string{""}
	}
	return &Runner{
		snap:  snap,
		store: store,
		pub:   pub,
		opts:  opts,
		log:   log.With().Str("component", "batch").Logger(),
		now:   time.Now,
		runID: func() string { return uuid.NewString() },
	}
}

// Run tira um snapshot por preset, sobe cada um, atualiza o index do dia e
// o alias latest/. Um preset com falha não interrompe os seguintes; no fim
// devolve *BatchError com todos os que falharam.
func (r *Runner) Run(ctx context.Context, trigger string) (*Report, error) {
	started := r.now().UTC()
	report := &Report{
		RunID:     r.runID(),
		Trigger:   trigger,
		StartedAt: started,
		Uploaded:  make(map[string]string),
	}
	log := r.log.With().Str("run_id", report.RunID).Str("trigger", trigger).Logger()
	log.Info().Strs("presets", labels(r.opts.Presets)).Msg("snapshot sequence started")

	indexKey := IndexKey(started)
	index := r.loadIndex(ctx, indexKey, started, log)

	var batchErr BatchError
	for _, preset := range r.opts.Presets {
		label := core.PresetLabel(preset)
		if err := ctx.Err(); err != nil {
			batchErr.Failed = append(batchErr.Failed, label)
			batchErr.Errs = append(batchErr.Errs, err)
			continue
		}

		key, err := r.runPreset(ctx, preset, started, report.RunID, index, log)
		if err != nil {
			log.Error().Err(err).Str("preset", label).Msg("preset failed")
			batchErr.Failed = append(batchErr.Failed, label)
			batchErr.Errs = append(batchErr.Errs, err)
			continue
		}
		report.Uploaded[label] = key
		report.Succeeded = append(report.Succeeded, label)
	}

	if len(index.Snapshots) > 0 {
		if err := r.writeIndex(ctx, indexKey, index); err != nil {
			log.Error().Err(err).Str("key", indexKey).Msg("index update failed")
			batchErr.IndexErr = err
		} else {
			log.Info().Str("key", indexKey).Int("entries", len(index.Snapshots)).Msg("daily index updated")
		}
	}

	report.Failed = batchErr.Failed
	report.Duration = r.now().UTC().Sub(started)

	if len(batchErr.Failed) > 0 || batchErr.IndexErr != nil {
		log.Warn().Strs("failed", batchErr.Failed).Dur("duration", report.Duration).Msg("snapshot sequence finished with failures")
		return report, &batchErr
	}
	log.Info().Dur("duration", report.Duration).Msg("snapshot sequence completed successfully")
	return report, nil
}

func (r *Runner) runPreset(ctx context.Context, preset string, now time.Time, runID string, index *Index, log zerolog.Logger) (string, error) {
	label := core.PresetLabel(preset)

	snap, err := r.snap.SnapshotWithRetry(ctx, preset)
	if err != nil {
		return "", err
	}
	if !r.opts.KeepLocal {
		defer func() {
			if err := os.Remove(snap.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("path", snap.Path).Msg("could not remove temp snapshot")
			}
		}()
	}

	filename := filepath.Base(snap.Path)
	key := ObjectKey(now, filename)
	url, err := r.store.PutFile(ctx, key, snap.Path, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("preset %s: upload: %w", label, err)
	}
	log.Info().Str("preset", label).Str("key", key).Msg("snapshot uploaded")

	index.Upsert(IndexEntry{
		Time:   now.Format("15:04"),
		Preset: label,
		Path:   key,
		RunID:  runID,
	}, slotPrefix(now))

	latest := LatestKey(filename)
	if err := r.store.Copy(ctx, key, latest); err != nil {
		return "", fmt.Errorf("preset %s: latest alias: %w", label, err)
	}
	log.Debug().Str("preset", label).Str("key", latest).Msg("latest alias updated")

	r.publish(core.SnapshotEvent{
		Timestamp:   snap.CapturedAt.UTC(),
		RunID:       runID,
		CameraIP:    r.opts.CameraIP,
		Preset:      label,
		ObjectKey:   key,
		LatestKey:   latest,
		SnapshotURL: url,
		Width:       snap.Width,
		Height:      snap.Height,
	}, log)
	return key, nil
}

// publish é best-effort: falha no MQTT não derruba o preset.
func (r *Runner) publish(evt core.SnapshotEvent, log zerolog.Logger) {
	if r.pub == nil {
		return
	}
	topic := mqttclient.SnapshotTopic(r.opts.BaseTopic, evt.Preset)
	if err := r.pub.PublishJSON(topic, false, evt); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("could not publish snapshot event")
	}
}

// loadIndex lê o index do dia; ausente ou corrompido vira um index novo.
func (r *Runner) loadIndex(ctx context.Context, key string, now time.Time, log zerolog.Logger) *Index {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Debug().Str("key", key).Msg("no index yet for today")
		} else {
			log.Warn().Err(err).Str("key", key).Msg("could not read index, starting fresh")
		}
		return newIndex(now)
	}
	ix, err := parseIndex(data, now)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("corrupt index, starting fresh")
		return newIndex(now)
	}
	return ix
}

func (r *Runner) writeIndex(ctx context.Context, key string, index *Index) error {
	data, err := index.marshal()
	if err != nil {
		return err
	}
	_, err = r.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json")
	return err
}

func labels(presets []string) []string {
	out := make([]string, len(presets))
	for i, p := range presets {
		out[i] = core.PresetLabel(p)
	}
	return out
}
