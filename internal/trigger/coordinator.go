package trigger

import (
	"context"

	"github.com/sua-org/cam-snap/internal/batch"
	"github.com/sua-org/cam-snap/internal/supervisor"
)

// Coordinator é implementado por *supervisor.Supervisor.
type Coordinator interface {
	TryRun(ctx context.Context, trigger string) (*batch.Report, error)
	Health() supervisor.Health
}

const (
	TriggerCron = "cron"
	TriggerHTTP = "http"
)
