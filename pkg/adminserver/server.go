package adminserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tansucloud/tansu-outbox/pkg/adminserver/handlers"
	"github.com/tansucloud/tansu-outbox/pkg/adminserver/middleware"
	"github.com/tansucloud/tansu-outbox/pkg/auth"
	"github.com/tansucloud/tansu-outbox/pkg/config"
	"github.com/tansucloud/tansu-outbox/pkg/store/postgres"
)

// Server exposes a read-only operational view of the outbox: health, event
// listing, and per-status counts. Replay of dead-lettered events is handled
// by external tooling, not here.
type Server struct {
	router *gin.Engine
	repo   *postgres.OutboxRepository
	cfg    *config.Config
	logger *zap.Logger
}

func NewServer(repo *postgres.OutboxRepository, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	tokens := auth.NewAdminTokenManager([]byte(s.cfg.Auth.JWTSecret), s.cfg.Auth.TokenTTL)

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(tokens))

		eventsHandler := handlers.NewEventsHandler(s.repo, s.logger)
		api.GET("/events", eventsHandler.List)
		api.GET("/events/stats", eventsHandler.Stats)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run() error {
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:     s.router,
		ReadTimeout: s.cfg.Server.ReadTimeout,
	}
	return server.ListenAndServe()
}
