// Package server exposes the diary store and dialogues over HTTP: a small
// JSON API for entries, search and recall quizzes, and a websocket endpoint
// that runs one conversation per connection.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/engine"
)

// Store is the part of the diary store the API reads and writes.
// *memory.Store implements it.
type Store interface {
	engine.Memory
	ListAllEntries(ctx context.Context, userID string) ([]core.Document, error)
	Len() int
}

// Config configures the server.
type Config struct {
	// GinMode is gin's debug, release or test mode.
	GinMode string

	// AllowedOrigins lists websocket origins. Empty allows same-origin
	// requests only; "*" allows any origin.
	AllowedOrigins []string

	// WindowDays is the default date window of the entry and recall
	// endpoints (default: 7).
	WindowDays int

	// ShutdownTimeout bounds graceful shutdown in Run (default: 10s).
	ShutdownTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	engine    *engine.Engine
	store     Store
	config    Config
	router    *gin.Engine
	upgrader  websocket.Upgrader
	startedAt time.Time
}

// New creates a server and registers its routes.
func New(eng *engine.Engine, store Store, cfg Config) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	s := &Server{
		engine:    eng,
		store:     store,
		config:    cfg,
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(requestID, requestLogger, gin.Recovery())

	router.GET("/health", s.health)
	router.GET("/ws", s.handleWS)

	v1 := router.Group("/v1")
	v1.POST("/entries", s.createEntry)
	v1.GET("/entries", s.listEntries)
	v1.GET("/entries/window", s.entriesInWindow)
	v1.POST("/search", s.search)
	v1.GET("/themes", s.themes)
	v1.POST("/recall/quiz", s.recallQuiz)
	v1.POST("/recall/evaluate", s.recallEvaluate)

	return router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("[SERVER] listening")
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

	log.Info("[SERVER] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		// gorilla's same-origin check.
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return set["*"] || origin == "" || set[origin]
	}
}
