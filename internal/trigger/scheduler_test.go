package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/supervisor"
)

func TestNewScheduler_Spec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"", false},
		{"0 */30 * * * *", false},
		{"*/5 * * * * *", false},
		{"@every 10m", false},
		{"*/30 * * * *", true}, // sem o campo de segundos
		{"not a cron", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := NewScheduler(tt.spec, &fakeCoordinator{}, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_TickUsesCronTrigger(t *testing.T) {
	coord := &fakeCoordinator{err: supervisor.ErrBusy}
	s, err := NewScheduler(DefaultSchedule, coord, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s.tick()
	coord.err = errors.New("boom")
	s.tick()
	if len(coord.triggers) != 2 || coord.triggers[0] != TriggerCron {
		t.Errorf("triggers = %v", coord.triggers)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler("0 0 0 1 1 *", &fakeCoordinator{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Next().IsZero() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Next().IsZero() {
		t.Error("next run not scheduled")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
