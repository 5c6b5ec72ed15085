package processor

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type StatusSource interface {
	Stats(ctx context.Context) ServiceStats
	Ping(ctx context.Context) error
}

// StatusServer exposes the processor's health and counters over HTTP.
type StatusServer struct {
	source StatusSource
	log    zerolog.Logger
	srv    *http.Server
}

func NewStatusServer(addr string, source StatusSource) *StatusServer {
	s := &StatusServer{
		source: source,
		log:    zerolog.New(os.Stderr).With().Timestamp().Str("component", "processor-status").Logger(),
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *StatusServer) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	router.GET("/health", s.health)
	router.GET("/stats", s.stats)
	return router
}

func (s *StatusServer) health(c *gin.Context) {
	if err := s.source.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *StatusServer) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Stats(c.Request.Context()))
}

// ListenAndServe blocks until the server is shut down.
func (s *StatusServer) ListenAndServe() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("status server started")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
