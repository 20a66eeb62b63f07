package supervisor

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/sua-org/cam-snap/internal/batch"
	"github.com/sua-org/cam-snap/internal/core"
	"github.com/sua-org/cam-snap/internal/mqttclient"
)

// ErrBusy é devolvido por TryRun quando já existe uma rodada em andamento.
var ErrBusy = errors.New("snapshot batch already running")

// BatchRunner é implementado por *batch.Runner.
type BatchRunner interface {
	Run(ctx context.Context, trigger string) (*batch.Report, error)
}

// Publisher é implementado por *mqttclient.Client.
type Publisher interface {
	PublishJSON(topic string, retained bool, v any) error
}

// Supervisor serializa as rodadas (cron e HTTP nunca rodam juntas), guarda o
// resultado da última e publica o status retido com métricas do processo.
type Supervisor struct {
	runner    BatchRunner
	pub       Publisher
	baseTopic string
	cameraIP  string
	log       zerolog.Logger

	runMu sync.Mutex

	mu       sync.Mutex
	running  bool
	last     *core.BatchStatus
	lastErr  error
	started  time.Time
	proc     *process.Process
	hostname string
}

// New: pub pode ser nil (MQTT desligado).
func New(runner BatchRunner, pub Publisher, baseTopic, cameraIP string, log zerolog.Logger) *Supervisor {
	var procHandle *process.Process
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		procHandle = p
	}
	hostname, _ := os.Hostname()
	return &Supervisor{
		runner:    runner,
		pub:       pub,
		baseTopic: baseTopic,
		cameraIP:  cameraIP,
		log:       log.With().Str("component", "supervisor").Logger(),
		started:   time.Now().UTC(),
		proc:      procHandle,
		hostname:  hostname,
	}
}

// TryRun executa uma rodada se nenhuma estiver em andamento; senão ErrBusy.
func (s *Supervisor) TryRun(ctx context.Context, trigger string) (*batch.Report, error) {
	if !s.runMu.TryLock() {
		s.log.Warn().Str("trigger", trigger).Msg("batch already running, request rejected")
		return nil, ErrBusy
	}
	defer s.runMu.Unlock()
	return s.run(ctx, trigger)
}

// Run espera a rodada atual terminar e executa outra.
func (s *Supervisor) Run(ctx context.Context, trigger string) (*batch.Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run(ctx, trigger)
}

func (s *Supervisor) run(ctx context.Context, trigger string) (*batch.Report, error) {
	s.setRunning(true)
	defer s.setRunning(false)

	report, err := s.runner.Run(ctx, trigger)
	status := s.buildStatus(report, trigger, time.Now().UTC())

	s.mu.Lock()
	s.last = &status
	s.lastErr = err
	s.mu.Unlock()

	s.publishStatus(status)
	return report, err
}

func (s *Supervisor) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Supervisor) buildStatus(report *batch.Report, trigger string, now time.Time) core.BatchStatus {
	st := core.BatchStatus{
		Timestamp: now,
		CameraIP:  s.cameraIP,
		Trigger:   trigger,
		Succeeded: []string{},
		Failed:    []string{},
	}
	if report != nil {
		st.RunID = report.RunID
		st.DurationMS = report.Duration.Milliseconds()
		if report.Succeeded != nil {
			st.Succeeded = report.Succeeded
		}
		if report.Failed != nil {
			st.Failed = report.Failed
		}
	}
	m := s.Metrics()
	st.RSSBytes = m.RSSBytes
	st.CPUPercent = m.CPUPercent
	return st
}

func (s *Supervisor) publishStatus(st core.BatchStatus) {
	if s.pub == nil {
		return
	}
	topic := mqttclient.StatusTopic(s.baseTopic)
	if err := s.pub.PublishJSON(topic, true, st); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("could not publish batch status")
		return
	}
	s.log.Debug().Str("topic", topic).Str("run_id", st.RunID).Msg("batch status published")
}

// Metrics são as métricas do próprio processo (CPU/memória via gopsutil).
type Metrics struct {
	RSSBytes      uint64
	MemoryPercent float64
	CPUPercent    float64
}

func (s *Supervisor) Metrics() Metrics {
	var m Metrics
	if s.proc == nil {
		return m
	}
	if cpu, err := s.proc.CPUPercent(); err == nil {
		m.CPUPercent = cpu
	}
	if memInfo, err := s.proc.MemoryInfo(); err == nil {
		m.RSSBytes = memInfo.RSS
	}
	if memP, err := s.proc.MemoryPercent(); err == nil {
		m.MemoryPercent = float64(memP)
	}
	return m
}

// Health é o retrato servido em /healthz.
type Health struct {
	Status        string            `json:"status"`
	Hostname      string            `json:"hostname"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Running       bool              `json:"running"`
	LastRun       *core.BatchStatus `json:"last_run,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	RSSBytes      uint64            `json:"memory_rss_bytes"`
	MemoryPercent float64           `json:"memory_percent"`
	CPUPercent    float64           `json:"cpu_percent"`
}

func (s *Supervisor) Health() Health {
	m := s.Metrics()

	s.mu.Lock()
	defer s.mu.Unlock()

	h := Health{
		Status:        "ok",
		Hostname:      s.hostname,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Running:       s.running,
		LastRun:       s.last,
		RSSBytes:      m.RSSBytes,
		MemoryPercent: m.MemoryPercent,
		CPUPercent:    m.CPUPercent,
	}
	if s.lastErr != nil {
		h.Status = "degraded"
		h.LastError = s.lastErr.Error()
	}
	return h
}
