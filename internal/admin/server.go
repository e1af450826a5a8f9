package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/remotesync/internal/observability"
	"github.com/danmuck/remotesync/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Source is the UDP endpoint the admin surface reports on.
type Source interface {
	State() transport.State
	LocalAddr() *net.UDPAddr
}

// Server is the HTTP admin surface: liveness, readiness and metrics.
type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	source Source
	router *gin.Engine
}

func New(id, addr string, source Source, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		source:   source,
		router:   r,
	}
	r.Use(observability.AdminRequests(id, func() string { return s.state().String() }))
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		state := s.state()
		status := http.StatusOK
		if state != transport.StateRunning {
			status = http.StatusServiceUnavailable
		}
		body := gin.H{
			"ready":   status == http.StatusOK,
			"state":   state.String(),
			"service": s.ID,
		}
		if s.source != nil {
			if addr := s.source.LocalAddr(); addr != nil {
				body["udp_addr"] = addr.String()
			}
		}
		c.JSON(status, body)
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) state() transport.State {
	if s.source == nil {
		return transport.StateIdle
	}
	return s.source.State()
}

// Serve listens on Addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("admin http listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("admin http shutdown")
	}
	return ctx.Err()
}
