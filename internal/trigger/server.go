package trigger

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/batch"
	"github.com/sua-org/cam-snap/internal/snapshot"
	"github.com/sua-org/cam-snap/internal/supervisor"
)

// Response é o corpo JSON de /snapshot.
type Response struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Report  *batch.Report `json:"report,omitempty"`
	Failed  []string      `json:"failed,omitempty"`
}

type Server struct {
	coord     Coordinator
	scheduler *Scheduler
	log       zerolog.Logger
	engine    *gin.Engine

	// baseCtx é o contexto das rodadas disparadas por HTTP: uma desconexão
	// do cliente não cancela o batch.
	baseCtx context.Context
}

// NewServer monta as rotas; scheduler pode ser nil.
func NewServer(coord Coordinator, scheduler *Scheduler, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		coord:     coord,
		scheduler: scheduler,
		log:       log.With().Str("component", "http").Logger(),
		baseCtx:   context.Background(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/snapshot", s.handleSnapshot)
	r.GET("/healthz", s.handleHealth)
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serve em addr até ctx terminar.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http trigger listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleSnapshot(c *gin.Context) {
	report, err := s.coord.TryRun(s.baseCtx, TriggerHTTP)
	code := StatusFor(err)

	resp := Response{Success: err == nil, Report: report, Message: "snapshot sequence succeeded"}
	if err != nil {
		resp.Message = err.Error()
		var be *batch.BatchError
		if errors.As(err, &be) {
			resp.Failed = be.Failed
		}
		if code != http.StatusConflict {
			s.log.Error().Err(err).Int("status", code).Msg("http run failed")
		}
	}
	c.JSON(code, resp)
}

// StatusFor mapeia o resultado da rodada pro status HTTP: 200 ok, 409 já
// rodando, 502 quando só a câmera falhou, 500 no resto.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, supervisor.ErrBusy) {
		return http.StatusConflict
	}
	var be *batch.BatchError
	if errors.As(err, &be) && be.IndexErr == nil && len(be.Errs) > 0 {
		for _, e := range be.Errs {
			if !snapshot.CameraSide(e) {
				return http.StatusInternalServerError
			}
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type healthResponse struct {
	supervisor.Health
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{Health: s.coord.Health()}
	if s.scheduler != nil {
		if next := s.scheduler.Next(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("request")
	}
}
