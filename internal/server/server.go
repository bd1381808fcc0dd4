// Package server serves the labeling page and the JSON API.
package server

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/labeldesk/internal/annotate"
	"github.com/TobiSchelling/labeldesk/internal/database"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// Guidelines is markdown rendered above the category buttons.
	Guidelines string
	// Health is checked by GET /health. Nil reports healthy.
	Health Pinger
}

// Server is the HTTP server for labeling.
type Server struct {
	ctrl       *annotate.Controller
	health     Pinger
	guidelines template.HTML
	pages      map[string]*template.Template
	router     *gin.Engine
	log        *zap.Logger
}

// New creates a new Server.
func New(ctrl *annotate.Controller, opts Options, log *zap.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"title":      func(c database.Category) string { return c.Title() },
		"inc":        func(i int) int { return i + 1 },
		"categories": func() []database.Category { return database.Categories },
		"percent":    func(f float64) string { return fmt.Sprintf("%.1f", f) },
		"datetime":   func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return t.Local().Format("2006-01-02 15:04:05")
		},
	}

	// Parse base template and shared partials first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html", "templates/stats.html")
	if err != nil {
		return nil, errors.Wrap(err, "parsing base template")
	}

	// Each page clones the base and defines its own "title" and "content".
	pageNames := []string{"label.html", "complete.html", "error.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, errors.Wrapf(err, "cloning base for %s", name)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, errors.Wrapf(err, "parsing template %s", name)
		}
		pages[name] = clone
	}

	s := &Server{
		ctrl:       ctrl,
		health:     opts.Health,
		guidelines: renderMarkdown(opts.Guidelines),
		pages:      pages,
		router:     gin.New(),
		log:        log,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.router.StaticFS("/static", http.FS(staticSub))

	s.router.GET("/", s.handleIndex)
	s.router.POST("/classify/:category", s.handleClassify)
	s.router.POST("/skip", s.handleSkip)
	s.router.POST("/reset", s.handleReset)
	s.router.POST("/jump", s.handleJump)
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1")
	{
		api.GET("/current", s.apiCurrent)
		api.GET("/stats", s.apiStats)
		api.POST("/classify", s.apiClassify)
		api.POST("/skip", s.apiSkip)
		api.POST("/reset", s.apiReset)
		api.POST("/jump", s.apiJump)
		api.GET("/export/csv", s.apiExportCSV)
		api.GET("/export/json", s.apiExportJSON)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Ping(c.Request.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "store unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "labeldesk"})
}

// statusFor maps a controller error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.IsAny(err, annotate.ErrInvalidCategory, annotate.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.IsAny(err, annotate.ErrStaleRow, annotate.ErrComplete):
		return http.StatusConflict
	case errors.Is(err, annotate.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve runs the server on 127.0.0.1:port until ctx is cancelled, then shuts
// down gracefully.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	srv.log.Info("server listening", zap.String("url", "http://"+addr))

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listening")
	case <-ctx.Done():
	}

	srv.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down")
	}
	return nil
}
