package snapshot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/capture"
	"github.com/sua-org/cam-snap/internal/core"
	"github.com/sua-org/cam-snap/internal/onvif"
)

const (
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultPresetWait     = 14 * time.Second
	DefaultCaptureTimeout = 20 * time.Second
)

// Camera é o subconjunto do cliente ONVIF usado aqui.
type Camera interface {
	GetProfileToken(ctx context.Context) (string, error)
	GotoPreset(ctx context.Context, profileToken, presetToken string) error
	GetStreamURI(ctx context.Context, profileToken string) (string, error)
}

// FrameCapturer é implementado por *capture.Capturer.
type FrameCapturer interface {
	Capture(ctx context.Context, streamURI, outputName string, timeout time.Duration) (*core.CapturedSnapshot, error)
}

type Policy struct {
	MaxRetries     int
	Backoff        Backoff
	PresetWait     time.Duration
	CaptureTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		Backoff:        FixedBackoff(DefaultRetryDelay),
		PresetWait:     DefaultPresetWait,
		CaptureTimeout: DefaultCaptureTimeout,
	}
}

// Snapshotter encadeia perfil -> preset -> URI -> captura com retry.
type Snapshotter struct {
	camera   Camera
	capturer FrameCapturer
	policy   Policy
	log      zerolog.Logger
	sleep    Sleeper
}

func New(camera Camera, capturer FrameCapturer, policy Policy, log zerolog.Logger) *Snapshotter {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = DefaultMaxRetries
	}
	if policy.Backoff == nil {
		policy.Backoff = FixedBackoff(DefaultRetryDelay)
	}
	if policy.CaptureTimeout <= 0 {
		policy.CaptureTimeout = DefaultCaptureTimeout
	}
	return &Snapshotter{
		camera:   camera,
		capturer: capturer,
		policy:   policy,
		log:      log.With().Str("component", "snapshot").Logger(),
		sleep:    sleepContext,
	}
}

// SnapshotWithRetry posiciona a câmera no preset (vazio = posição atual) e
// captura um frame. Só a captura é repetida; falhas de setup voltam direto.
func (s *Snapshotter) SnapshotWithRetry(ctx context.Context, preset string) (*core.CapturedSnapshot, error) {
	label := core.PresetLabel(preset)
	log := s.log.With().Str("preset", label).Logger()

	profile, err := s.camera.GetProfileToken(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not resolve media profile")
		return nil, &PresetError{Preset: label, Stage: StageProfile, Err: err}
	}

	if preset != "" {
		log.Info().Str("profile", profile).Msg("moving to preset")
		if err := s.camera.GotoPreset(ctx, profile, preset); err != nil {
			log.Error().Err(err).Msg("goto preset failed")
			return nil, &PresetError{Preset: label, Stage: StagePreset, Err: err}
		}
		log.Debug().Dur("wait", s.policy.PresetWait).Msg("waiting for camera to settle")
		if err := s.sleep(ctx, s.policy.PresetWait); err != nil {
			return nil, &PresetError{Preset: label, Stage: StagePreset, Err: err}
		}
	}

	uri, err := s.camera.GetStreamURI(ctx, profile)
	if err != nil {
		log.Error().Err(err).Msg("could not resolve stream uri")
		return nil, &PresetError{Preset: label, Stage: StageStreamURI, Err: err}
	}

	name := OutputName(preset)
	var last error
	for attempt := 1; attempt <= s.policy.MaxRetries; attempt++ {
		snap, err := s.capturer.Capture(ctx, uri, name, s.policy.CaptureTimeout)
		if err == nil {
			snap.Preset = label
			log.Info().Int("attempt", attempt).Str("path", snap.Path).Msg("snapshot captured")
			return snap, nil
		}
		if !retryable(err) {
			return nil, &PresetError{Preset: label, Stage: StageCapture, Err: err}
		}
		last = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max_retries", s.policy.MaxRetries).Msg("capture attempt failed")

		if attempt == s.policy.MaxRetries {
			break
		}
		if err := s.sleep(ctx, s.policy.Backoff.Delay(attempt)); err != nil {
			return nil, &PresetError{Preset: label, Stage: StageCapture, Err: err}
		}
	}

	return nil, &PresetError{
		Preset: label,
		Stage:  StageCapture,
		Err: &capture.CaptureError{
			Reason:   capture.ErrRetriesExhausted,
			Attempts: s.policy.MaxRetries,
			Err:      last,
		},
	}
}

func retryable(err error) bool {
	var ce *capture.CaptureError
	var pe *onvif.ProtocolError
	var te *onvif.TransportError
	return errors.As(err, &ce) || errors.As(err, &pe) || errors.As(err, &te)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// OutputName devolve o nome do arquivo temporário do preset.
func OutputName(preset string) string {
	return fmt.Sprintf("snapshot_%s.jpg", unsafeName.ReplaceAllString(core.PresetLabel(preset), "_"))
}
