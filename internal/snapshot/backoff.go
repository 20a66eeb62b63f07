package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backoff diz quanto esperar depois da tentativa `attempt` (1-based) falhar.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff espera sempre o mesmo tempo.
type FixedBackoff time.Duration

func (b FixedBackoff) Delay(int) time.Duration { return time.Duration(b) }

// NoBackoff não espera (testes, execução manual).
type NoBackoff struct{}

func (NoBackoff) Delay(int) time.Duration { return 0 }

// ExponentialBackoff: Base * Factor^(attempt-1), limitado a Max (se > 0).
type ExponentialBackoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= factor
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	return time.Duration(d)
}

// BackoffFromConfig monta o backoff a partir do nome configurado ("fixed" ou "exponential").
func BackoffFromConfig(kind string, delay time.Duration) (Backoff, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "fixed":
		return FixedBackoff(delay), nil
	case "exponential", "exp":
		return ExponentialBackoff{Base: delay, Factor: 2, Max: 8 * delay}, nil
	case "none":
		return NoBackoff{}, nil
	default:
		return nil, fmt.Errorf("unknown backoff %q (use fixed or exponential)", kind)
	}
}

// Sleeper espera d ou até ctx terminar.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
