// Package health serves the liveness endpoints used by the hosting platform.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

type Server struct {
	addr     string
	registry *session.Registry
	jobs     *jobmgr.Manager
	started  time.Time
	log      zerolog.Logger
	engine   *gin.Engine
}

type sessionStatus struct {
	Guild   string `json:"guild"`
	Channel string `json:"channel"`
	State   string `json:"state"`
	Current string `json:"current,omitempty"`
	Queued  int    `json:"queued"`
}

func NewServer(port int, registry *session.Registry, jobs *jobmgr.Manager, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr:     fmt.Sprintf(":%d", port),
		registry: registry,
		jobs:     jobs,
		started:  time.Now(),
		log:      log,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.HEAD("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Bot is running") })
	r.GET("/status", s.status)
	s.engine = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("liveness server shutdown")
		}
	}()

	s.log.Info().Str("addr", s.addr).Msg("liveness server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("liveness server: %w", err)
	}
	return nil
}

func (s *Server) status(c *gin.Context) {
	keys := s.registry.Keys()
	sessions := make([]sessionStatus, 0, len(keys))
	for _, k := range keys {
		sess, ok := s.registry.Get(k)
		if !ok {
			continue
		}
		snap := sess.Snapshot()
		st := sessionStatus{
			Guild:   k.GuildID,
			Channel: k.ChannelID,
			State:   snap.State.String(),
			Queued:  len(snap.Queue),
		}
		if snap.Current != nil {
			st.Current = snap.Current.Title
		}
		sessions = append(sessions, st)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"sessions": sessions,
		"jobs":     s.jobs.List(),
	})
}
