// Package api exposes the sensor registry over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ericogr/temprec/pkg/store"
)

// Server serves the sensor series and the static web client.
type Server struct {
	registry  *store.Registry
	content   http.FileSystem
	logger    *slog.Logger
	startTime time.Time
}

// NewServer returns a Server for registry, serving static files from
// contentDir. A nil logger means slog.Default().
func NewServer(registry *store.Registry, contentDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:  registry,
		content:   http.Dir(contentDir),
		logger:    logger,
		startTime: time.Now(),
	}
}

// NewEngine builds a gin engine with CORS enabled and all routes set up.
func (s *Server) NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	s.SetupRoutes(r)
	return r
}

// SetupRoutes registers the API routes and the static file fallback.
func (s *Server) SetupRoutes(r *gin.Engine) {
	get := r.Group("/api/get")
	{
		get.GET("/sensors", s.handleListSensors)
		get.GET("/:id", s.handleGetFull)
		get.GET("/:id/:from", s.handleGetFrom)
	}
	r.GET("/api/remove/:id/:time", s.handleRemove)
	r.DELETE("/api/sensors/:id/:time", s.handleRemove)
	r.GET("/api/status", s.handleStatus)

	r.NoRoute(s.handleStatic)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
