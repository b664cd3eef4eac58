// Package server exposes the chat pipeline over HTTP: a streaming chat
// endpoint plus the small project and file-diff surface around it.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeloom/internal/config"
	"codeloom/internal/diff"
	"codeloom/internal/logging"
	"codeloom/internal/persist"
	"codeloom/internal/provider"
	"codeloom/internal/store"
)

// clientResolver is the slice of provider.Factory the chat handler needs.
type clientResolver interface {
	ClientFor(selector string) (provider.StreamClient, error)
}

// Server wires the HTTP routes to the pipeline components.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	factory clientResolver
	persist *persist.Engine
	differ  *diff.Engine
	router  *gin.Engine
}

// New builds the server and its router.
func New(cfg *config.Config, st *store.Store, factory *provider.Factory) *Server {
	if !cfg.Logging.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:     cfg,
		store:   st,
		factory: factory,
		persist: persist.NewEngine(st),
		differ:  diff.NewEngine(),
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	v1 := r.Group("/v1")
	{
		v1.POST("/projects", s.handleCreateProject)
		v1.GET("/projects/:id/messages", s.handleListMessages)
		v1.GET("/projects/:id/files/:fileID/diff", s.handleFileDiff)
		v1.POST("/chat/stream", s.handleChatStream)
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	project, err := s.store.CreateProject(req.Name)
	if err != nil {
		logging.ServerError("Failed to create project: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project"})
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *Server) handleListMessages(c *gin.Context) {
	projectID := c.Param("id")
	project, err := s.store.GetProject(projectID)
	if err != nil {
		logging.ServerError("Failed to load project %s: %v", projectID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	messages, err := s.store.ListMessages(projectID)
	if err != nil {
		logging.ServerError("Failed to list messages for %s: %v", projectID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projectId": projectID, "messages": messages})
}

// handleFileDiff returns hunk-level changes between a file revision and
// the revision of the same path that preceded it.
func (s *Server) handleFileDiff(c *gin.Context) {
	projectID := c.Param("id")
	fileID := c.Param("fileID")

	file, err := s.store.GetFile(fileID)
	if err != nil {
		logging.ServerError("Failed to load file %s: %v", fileID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load file"})
		return
	}
	if file == nil || file.ProjectID != projectID {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	prev, err := s.store.PreviousFileRevision(fileID)
	if err != nil {
		logging.ServerError("Failed to load previous revision of %s: %v", fileID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load previous revision"})
		return
	}
	oldContent := ""
	if prev != nil {
		oldContent = prev.Content
	}

	c.JSON(http.StatusOK, s.differ.ComputeRevisionDiff(file.Path, oldContent, file.Content))
}
