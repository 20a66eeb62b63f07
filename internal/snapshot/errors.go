package snapshot

import (
	"errors"
	"fmt"

	"github.com/sua-org/cam-snap/internal/capture"
	"github.com/sua-org/cam-snap/internal/onvif"
)

// Stage identifica em que passo o snapshot de um preset falhou.
type Stage string

const (
	StageProfile   Stage = "profile"
	StagePreset    Stage = "preset"
	StageStreamURI Stage = "stream-uri"
	StageCapture   Stage = "capture"
)

type PresetError struct {
	Preset string
	Stage  Stage
	Err    error
}

func (e *PresetError) Error() string {
	return fmt.Sprintf("preset %s: %s: %v", e.Preset, e.Stage, e.Err)
}

func (e *PresetError) Unwrap() error { return e.Err }

// Descrições devolvidas por Describe.
const (
	DescUnreachable   = "camera unreachable"
	DescUnauthorized  = "credentials rejected"
	DescNoStream      = "no stream configured"
	DescNoUsableFrame = "stream open but no usable frame"
	DescUnexpected    = "unexpected failure"
)

// Describe resume err numa frase curta pra operador.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var te *onvif.TransportError
	var pe *onvif.ProtocolError
	var ce *capture.CaptureError
	switch {
	case errors.Is(err, onvif.ErrUnauthorized):
		return DescUnauthorized
	case errors.As(err, &te), errors.Is(err, capture.ErrStreamOpen):
		return DescUnreachable
	case errors.As(err, &pe):
		return DescNoStream
	case errors.As(err, &ce):
		return DescNoUsableFrame
	default:
		return DescUnexpected
	}
}

// CameraSide diz se a falha veio da câmera (rede, auth, ONVIF, stream), e não
// do processo local.
func CameraSide(err error) bool {
	if errors.Is(err, capture.ErrPersist) {
		return false
	}
	switch Describe(err) {
	case DescUnreachable, DescUnauthorized, DescNoStream, DescNoUsableFrame:
		return true
	}
	return false
}
