package capture

import (
	"errors"
	"fmt"
)

// Motivos de falha de captura (use errors.Is).
var (
	ErrStreamOpen       = errors.New("stream open failed")
	ErrNoValidFrames    = errors.New("no valid frames")
	ErrPersist          = errors.New("persist failed")
	ErrRetriesExhausted = errors.New("capture retries exhausted")
)

// CaptureError agrupa o motivo (um dos Err* acima), a causa e, quando veio do
// loop de retry, quantas tentativas foram feitas.
type CaptureError struct {
	Reason   error
	Attempts int
	Err      error
}

func (e *CaptureError) Error() string {
	msg := e.Reason.Error()
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CaptureError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}
