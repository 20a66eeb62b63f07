package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/core"
)

const (
	DefaultWarmupFrames = 90
	DefaultCandidates   = 5
	DefaultPace         = 100 * time.Millisecond
	DefaultJPEGQuality  = 95

	// folga do contexto da fonte além do orçamento da captura
	sourceGrace = 5 * time.Second
)

type Options struct {
	// OutputDir recebe o JPEG final (diretório temporário gravável).
	OutputDir string
	// WarmupFrames: frames descartados sem decodificar antes da coleta.
	WarmupFrames int
	// Candidates: quantos frames válidos coletar antes de escolher.
	Candidates int
	// Pace: pausa entre leituras, pra não girar em falso na fonte.
	Pace        time.Duration
	JPEGQuality int
	Validator   Validator
}

func DefaultOptions(outputDir string) Options {
	return Options{
		OutputDir:    outputDir,
		WarmupFrames: DefaultWarmupFrames,
		Candidates:   DefaultCandidates,
		Pace:         DefaultPace,
		JPEGQuality:  DefaultJPEGQuality,
		Validator:    DefaultValidator(),
	}
}

// Capturer puxa um frame bom de um stream RTSP ao vivo.
type Capturer struct {
	newSource SourceFactory
	opts      Options
	log       zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

func NewCapturer(newSource SourceFactory, opts Options, log zerolog.Logger) *Capturer {
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if opts.Candidates <= 0 {
		opts.Candidates = DefaultCandidates
	}
	if opts.WarmupFrames < 0 {
		opts.WarmupFrames = 0
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	return &Capturer{
		newSource: newSource,
		opts:      opts,
		log:       log.With().Str("component", "capture").Logger(),
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Capture abre o stream, descarta o buffer antigo, coleta até Candidates frames
// válidos dentro de timeout, escolhe o do meio e grava em OutputDir/outputName.
// O timeout é conferido antes de cada iteração (aquecimento e coleta juntos).
func (c *Capturer) Capture(ctx context.Context, streamURI, outputName string, timeout time.Duration) (*core.CapturedSnapshot, error) {
	srcCtx, cancel := context.WithTimeout(ctx, timeout+sourceGrace)
	defer cancel()

	c.log.Info().Str("output", outputName).Dur("timeout", timeout).Msg("connecting to RTSP stream")

	src := c.newSource()
	if err := src.Open(srcCtx, streamURI); err != nil {
		_ = src.Release()
		return nil, &CaptureError{Reason: ErrStreamOpen, Err: err}
	}
	defer func() {
		if err := src.Release(); err != nil {
			c.log.Warn().Err(err).Msg("release stream")
		}
	}()

	start := c.now()
	expired := func() bool { return c.now().Sub(start) >= timeout }

	// aquecimento: pula frames velhos até um keyframe recente
	skipped := 0
	for skipped < c.opts.WarmupFrames && !expired() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := src.Grab(); err != nil {
			c.log.Debug().Err(err).Int("skipped", skipped).Msg("grab failed, ending warm-up")
			break
		}
		skipped++
		c.sleep(c.opts.Pace)
	}
	warmupDone := !expired()

	var frames []Frame
	rejected, readErrs := 0, 0
	for len(frames) < c.opts.Candidates && !expired() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := src.Read()
		if errors.Is(err, io.EOF) {
			c.log.Debug().Msg("stream ended during collection")
			break
		}
		switch {
		case err != nil:
			readErrs++
		case c.opts.Validator.Valid(img):
			frames = append(frames, Frame{Image: img, Timestamp: c.now()})
		default:
			rejected++
		}
		c.sleep(c.opts.Pace)
	}

	c.log.Debug().
		Int("skipped", skipped).
		Int("valid", len(frames)).
		Int("rejected", rejected).
		Int("read_errors", readErrs).
		Bool("warmup_completed", warmupDone).
		Dur("elapsed", c.now().Sub(start)).
		Msg("collection finished")

	if len(frames) == 0 {
		return nil, &CaptureError{
			Reason: ErrNoValidFrames,
			Err:    fmt.Errorf("%d skipped, %d rejected, %d read errors", skipped, rejected, readErrs),
		}
	}

	chosen := selectFrame(frames)
	path := filepath.Join(c.opts.OutputDir, filepath.Base(outputName))
	if err := writeJPEG(path, chosen.Image, c.opts.JPEGQuality); err != nil {
		return nil, &CaptureError{Reason: ErrPersist, Err: err}
	}

	b := chosen.Image.Bounds()
	snap := &core.CapturedSnapshot{
		Path:       path,
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: chosen.Timestamp,
	}
	c.log.Info().Str("path", path).Int("width", snap.Width).Int("height", snap.Height).Msg("snapshot saved")
	return snap, nil
}

func writeJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
