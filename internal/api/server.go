// Package api exposes the store intents over HTTP for a UI host
package api

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"req-studio/internal/export"
	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
	"req-studio/internal/services"
	"req-studio/internal/stories"
	"req-studio/internal/store"
)

const maxBodySize = 1 << 20 // 1MB

// Server is the req-studio HTTP bridge
type Server struct {
	docs     *store.Store
	stories  *stories.Store
	reqs     *services.RequirementService
	exporter *export.Pipeline
	logger   *log.Logger
	router   *gin.Engine

	// projectMu serializes requests that select a project, since the
	// document store tracks a single selected project
	projectMu sync.Mutex
}

// NewServer wires the routes over the given stores
func NewServer(docs *store.Store, storyStore *stories.Store, fs gateway.FileSystem, exporter *export.Pipeline, logger *log.Logger) *Server {
	router := gin.New()

	s := &Server{
		docs:     docs,
		stories:  storyStore,
		reqs:     services.NewRequirementService(docs, fs, logger),
		exporter: exporter,
		logger:   helpers.OrDiscard(logger),
		router:   router,
	}

	router.Use(gin.Recovery(), s.requestLogger(), limitBody)

	api := router.Group("/api")
	{
		api.GET("/projects", s.handleListProjects)
		api.POST("/projects", s.handleCreateProject)
		api.GET("/projects/:id/files", s.withProject(s.handleProjectFiles))
		api.PATCH("/projects/:id/metadata", s.withProject(s.handleUpdateMetadata))
		api.GET("/projects/:id/counters/:type/next", s.withProject(s.handleNextID))
		api.PUT("/projects/:id/counters", s.withProject(s.handleUpdateCounters))
		api.GET("/projects/:id/folders/:folder", s.withProject(s.handleFolder))
		api.POST("/projects/:id/requirements/:type", s.withProject(s.handleCreateRequirement))
		api.POST("/projects/:id/requirements/:type/:file/archive", s.withProject(s.handleArchiveRequirement))
		api.POST("/projects/:id/export/:type", s.withProject(s.handleExport))

		api.GET("/document", s.handleReadDocument)
		api.PUT("/document", s.handleUpdateDocument)

		api.GET("/stories", s.withFeatureFile(s.handleListStories))
		api.POST("/stories", s.withFeatureFile(s.handleCreateStory))
		api.PATCH("/stories/:story", s.withFeatureFile(s.handleEditStory))
		api.POST("/stories/:story/archive", s.withFeatureFile(s.handleArchiveStory))
		api.POST("/stories/:story/tasks", s.withFeatureFile(s.handleCreateTask))
		api.PUT("/stories/:story/tasks/:task", s.withFeatureFile(s.handleUpdateTask))
		api.POST("/stories/:story/tasks/:task/archive", s.withFeatureFile(s.handleArchiveTask))
	}

	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the web server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	c.Next()
}

// withProject loads the :id project before h runs
func (s *Server) withProject(h func(*gin.Context, models.Project)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.projectMu.Lock()
		defer s.projectMu.Unlock()

		if _, err := s.docs.LoadProjectFiles(c.Request.Context(), c.Param("id"), gateway.BaseFiles); err != nil {
			fail(c, err)
			return
		}
		p, ok := s.docs.SelectedProject()
		if !ok {
			fail(c, store.ErrNoProjectSelected)
			return
		}
		h(c, p)
	}
}

// withFeatureFile selects the project owning the ?path= feature file, so
// story and task ids come from that project's counters
func (s *Server) withFeatureFile(h func(*gin.Context, string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		featurePath, ok := requirePath(c)
		if !ok {
			return
		}
		dir := strings.SplitN(path.Clean(featurePath), "/", 2)[0]

		s.projectMu.Lock()
		defer s.projectMu.Unlock()

		if p, ok := s.docs.SelectedProject(); !ok || p.Dir != dir {
			if err := s.selectProjectDir(c.Request.Context(), dir); err != nil {
				fail(c, err)
				return
			}
		}
		h(c, featurePath)
	}
}

func (s *Server) selectProjectDir(ctx context.Context, dir string) error {
	for _, p := range s.docs.ListProjects(ctx) {
		if p.Dir == dir {
			_, err := s.docs.LoadProjectFiles(ctx, p.ID, gateway.BaseFiles)
			return err
		}
	}
	return fmt.Errorf("%w: %s", store.ErrProjectNotFound, dir)
}
