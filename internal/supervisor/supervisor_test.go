package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/batch"
	"github.com/sua-org/cam-snap/internal/core"
)

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	report  *batch.Report
	err     error
	mu      sync.Mutex
	calls   int
}

func (r *blockingRunner) Run(_ context.Context, trigger string) (*batch.Report, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
		<-r.release
	}
	rep := *r.report
	rep.Trigger = trigger
	return &rep, r.err
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []struct {
		topic    string
		retained bool
		v        any
	}
}

func (p *fakePublisher) PublishJSON(topic string, retained bool, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, struct {
		topic    string
		retained bool
		v        any
	}{topic, retained, v})
	return nil
}

func TestTryRun_RejectsConcurrentRun(t *testing.T) {
	runner := &blockingRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
		report:  &batch.Report{RunID: "r1", Succeeded: []string{"1"}},
	}
	s := New(runner, nil, "cam-snap", "10.0.0.5", zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := s.TryRun(context.Background(), "cron")
		done <- err
	}()
	<-runner.started

	if !s.Health().Running {
		t.Error("health should report running")
	}
	if _, err := s.TryRun(context.Background(), "http"); !errors.Is(err, ErrBusy) {
		t.Errorf("second run err = %v, want ErrBusy", err)
	}

	close(runner.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not finish")
	}
	if runner.calls != 1 {
		t.Errorf("runner calls = %d, want 1", runner.calls)
	}
	if s.Health().Running {
		t.Error("health should not report running after completion")
	}
}

func TestRun_PublishesRetainedStatus(t *testing.T) {
	runner := &blockingRunner{
		report: &batch.Report{RunID: "r2", Succeeded: []string{"1"}, Failed: []string{"2"}, Duration: 1500 * time.Millisecond},
		err:    &batch.BatchError{Failed: []string{"2"}, Errs: []error{errors.New("no frames")}},
	}
	pub := &fakePublisher{}
	s := New(runner, pub, "site/cam", "10.0.0.5", zerolog.Nop())

	if _, err := s.Run(context.Background(), "http"); err == nil {
		t.Fatal("expected batch error")
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "site/cam/status" || !msg.retained {
		t.Errorf("topic=%q retained=%v", msg.topic, msg.retained)
	}
	st, ok := msg.v.(core.BatchStatus)
	if !ok {
		t.Fatalf("payload type %T", msg.v)
	}
	if st.RunID != "r2" || st.Trigger != "http" || st.DurationMS != 1500 || st.CameraIP != "10.0.0.5" {
		t.Errorf("status = %+v", st)
	}
	if len(st.Failed) != 1 || st.Failed[0] != "2" {
		t.Errorf("failed = %v", st.Failed)
	}

	h := s.Health()
	if h.Status != "degraded" || h.LastRun == nil || h.LastRun.RunID != "r2" || h.LastError == "" {
		t.Errorf("health = %+v", h)
	}
}

func TestHealth_BeforeFirstRun(t *testing.T) {
	s := New(&blockingRunner{report: &batch.Report{}}, nil, "cam-snap", "", zerolog.Nop())
	h := s.Health()
	if h.Status != "ok" || h.Running || h.LastRun != nil {
		t.Errorf("health = %+v", h)
	}
}
