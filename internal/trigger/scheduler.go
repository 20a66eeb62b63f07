package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/supervisor"
)

// DefaultSchedule: a cada 30 minutos, no segundo 0.
const DefaultSchedule = "0 */30 * * * *"

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler dispara rodadas pelo cron (expressão com segundos).
type Scheduler struct {
	cron  *cron.Cron
	coord Coordinator
	log   zerolog.Logger
	entry cron.EntryID
	ctx   context.Context
}

func NewScheduler(spec string, coord Coordinator, log zerolog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		coord: coord,
		log:   log,
		ctx:   context.Background(),
	}
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) tick() {
	_, err := s.coord.TryRun(s.ctx, TriggerCron)
	switch {
	case errors.Is(err, supervisor.ErrBusy):
		s.log.Info().Msg("skipping scheduled run, batch already in progress")
	case err != nil:
		s.log.Error().Err(err).Msg("scheduled run failed")
	}
}

// Start inicia o cron; ctx é repassado às rodadas e, quando termina, o cron
// para e Start espera a rodada em andamento.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info().Time("next_run", s.Next()).Msg("scheduler started")

	<-ctx.Done()
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		s.log.Warn().Msg("scheduled run still in progress at shutdown")
	}
	s.log.Info().Msg("scheduler stopped")
}

// Next é o horário do próximo disparo (zero se o cron não estiver rodando).
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// cronLogger adapta o zerolog pro cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
