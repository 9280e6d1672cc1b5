package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/events"
	"github.com/cosu123/reality-firewall-v3/internal/infra/metrics"
	"github.com/cosu123/reality-firewall-v3/internal/usecase"
)

type ServerDeps struct {
	Evaluate      *usecase.EvaluateRisk
	Ledger        *usecase.EvidenceLedger
	Guard         *usecase.PolicyGuard
	Authenticator domain.Authenticator
	RateLimiter   domain.RateLimiter
	Metrics       *metrics.Recorder
	History       *events.Memory
	Logger        zerolog.Logger
}

type ServerOptions struct {
	Addr                string
	Mode                string
	RateLimitRequests   int
	RateLimitWindow     time.Duration
	RateLimitFailClosed bool
}

type Server struct {
	opts ServerOptions
	r    *gin.Engine

	evaluate *usecase.EvaluateRisk
	ledger   *usecase.EvidenceLedger
	guard    *usecase.PolicyGuard
	history  *events.Memory
	metrics  *metrics.Recorder
	logger   zerolog.Logger

	authenticator domain.Authenticator
	rateLimiter   domain.RateLimiter
}

func NewServer(opts ServerOptions, deps ServerDeps) *Server {
	configureBinding()
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		opts:          opts,
		r:             r,
		evaluate:      deps.Evaluate,
		ledger:        deps.Ledger,
		guard:         deps.Guard,
		history:       deps.History,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		authenticator: deps.Authenticator,
		rateLimiter:   deps.RateLimiter,
	}
	r.Use(s.observeRequests())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		mode := s.opts.Mode
		if mode == "" {
			mode = "memory"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode})
	})
	if s.metrics != nil {
		s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.r.Group("/v1")
	{
		v1.POST("/evaluations", s.handleEvaluate)

		v1.POST("/evidence", s.handleAnchorSigned)
		v1.GET("/evidence/:hash", s.handleGetEvidence)
		v1.GET("/evidence/:hash/verify", s.handleVerifyEvidence)

		v1.POST("/agents/:agent_id", s.handleAuthorizeAgent)
		v1.DELETE("/agents/:agent_id", s.handleRevokeAgent)
		v1.POST("/roles/:role/:subject", s.handleGrantRole)
		v1.DELETE("/roles/:role/:subject", s.handleRevokeRole)

		v1.POST("/markets", s.handleInitMarket)
		v1.GET("/markets/:market", s.handleGetMarket)
		v1.POST("/markets/:market/enforce", s.handleEnforce)
		v1.GET("/markets/:market/history", s.handleMarketHistory)
	}
	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info().Str("addr", s.opts.Addr).Str("mode", s.opts.Mode).Msg("http server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
