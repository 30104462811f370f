package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"req-studio/internal/export"
	"req-studio/internal/gateway"
	"req-studio/internal/models"
	"req-studio/internal/services"
	"req-studio/internal/stories"
	"req-studio/internal/store"
)

func statusFor(err error) int {
	var assoc *services.AssociationError
	switch {
	case errors.As(err, &assoc),
		errors.Is(err, store.ErrProjectExists),
		errors.Is(err, store.ErrCounterRegression),
		errors.Is(err, stories.ErrDuplicateTaskID),
		errors.Is(err, gateway.ErrAlreadyArchived):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrNotFound),
		errors.Is(err, store.ErrProjectNotFound),
		errors.Is(err, stories.ErrUserStoryNotFound),
		errors.Is(err, stories.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrOutsideWorkspace),
		errors.Is(err, store.ErrReadOnlyField),
		errors.Is(err, export.ErrUnsupportedType),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, stories.ErrNoUserStorySelected):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	body := gin.H{"success": false, "error": err.Error()}

	var assoc *services.AssociationError
	if errors.As(err, &assoc) {
		body["businessProcesses"] = assoc.BusinessProcesses
	}
	c.JSON(statusFor(err), body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func requirePath(c *gin.Context) (string, bool) {
	p := c.Query("path")
	if p == "" {
		badRequest(c, "path query parameter required")
		return "", false
	}
	return p, true
}

func requirementType(c *gin.Context) (models.RequirementType, bool) {
	t, ok := models.ParseRequirementType(c.Param("type"))
	if !ok {
		badRequest(c, fmt.Sprintf("unknown requirement type %q", c.Param("type")))
	}
	return t, ok
}

// Projects

type createProjectRequest struct {
	Name             string `json:"name" binding:"required"`
	Description      string `json:"description"`
	TechnicalDetails string `json:"technicalDetails"`
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects := s.docs.ListProjects(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "projects": projects, "count": len(projects)})
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	p, err := s.docs.CreateProject(c.Request.Context(), req.Name, req.Description, req.TechnicalDetails)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "project": p})
}

func (s *Server) handleProjectFiles(c *gin.Context, p models.Project) {
	folders := s.docs.CurrentProjectFiles()
	if c.Query("archived") == "true" {
		var err error
		if folders, err = s.docs.LoadProjectFiles(c.Request.Context(), p.ID, gateway.AllBaseFiles); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "project": p, "folders": folders})
}

func (s *Server) handleUpdateMetadata(c *gin.Context, p models.Project) {
	var partial map[string]interface{}
	if err := c.ShouldBindJSON(&partial); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := s.docs.UpdateMetadata(c.Request.Context(), p.ID, partial); err != nil {
		fail(c, err)
		return
	}
	updated, _ := s.docs.SelectedProject()
	c.JSON(http.StatusOK, gin.H{"success": true, "project": updated})
}

func (s *Server) handleNextID(c *gin.Context, p models.Project) {
	t, ok := requirementType(c)
	if !ok {
		return
	}

	n, err := s.docs.GetNextRequirementID(t)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "next": n, "id": string(t) + gateway.PadID(n)})
}

// handleUpdateCounters raises counters after ids were used outside the
// allocator, e.g. by an import. Lowering a counter is a 409.
func (s *Server) handleUpdateCounters(c *gin.Context, p models.Project) {
	var partial models.RequirementCounters
	if err := c.ShouldBindJSON(&partial); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	for t := range partial {
		if _, ok := models.ParseRequirementType(string(t)); !ok {
			badRequest(c, fmt.Sprintf("unknown requirement type %q", t))
			return
		}
	}

	if err := s.docs.UpdateRequirementCounters(c.Request.Context(), partial); err != nil {
		fail(c, err)
		return
	}
	updated, _ := s.docs.SelectedProject()
	c.JSON(http.StatusOK, gin.H{"success": true, "requirementCounters": updated.RequirementCounters})
}

func (s *Server) handleFolder(c *gin.Context, p models.Project) {
	entries := s.docs.BulkReadFiles(c.Request.Context(), c.Param("folder"), gateway.BaseFiles, c.QueryArray("key")...)
	if entries == nil {
		entries = []models.FileEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries": entries, "count": len(entries)})
}

func (s *Server) handleCreateRequirement(c *gin.Context, p models.Project) {
	t, ok := requirementType(c)
	if !ok {
		return
	}

	var doc models.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	created, err := s.reqs.Create(c.Request.Context(), t, doc)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "requirement": created})
}

func (s *Server) handleArchiveRequirement(c *gin.Context, p models.Project) {
	t, ok := requirementType(c)
	if !ok {
		return
	}

	if err := s.reqs.Archive(c.Request.Context(), t, c.Param("file")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleExport(c *gin.Context, p models.Project) {
	t, ok := requirementType(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var src export.Source
	if t == models.TypeUS {
		featurePath, ok := requirePath(c)
		if !ok {
			return
		}
		src.Stories = s.stories.GetUserStories(ctx, featurePath)
		src.ParentID = gateway.RequirementID(path.Base(featurePath))
	} else if t.IsFolderType() {
		folder, err := s.docs.FolderPath(t)
		if err != nil {
			fail(c, err)
			return
		}
		src.FolderPath = folder
		src.Entries = s.docs.BulkReadFiles(ctx, string(t), gateway.BaseFiles, "title", "requirement")
	}

	format := export.Format(c.DefaultQuery("format", string(export.FormatJSON)))
	res := s.exporter.Export(ctx, t, src, export.Options{Format: format, ProjectName: p.Name})
	if !res.Success {
		fail(c, res.Error)
		return
	}

	body := gin.H{"success": true, "rows": res.Rows}
	if res.Path != "" {
		body["path"] = res.Path
	}
	if res.Output != "" {
		body["data"] = json.RawMessage(res.Output)
	}
	c.JSON(http.StatusOK, body)
}

// Documents

// requireDocumentPath accepts only base files, archived or not, so the
// document routes cannot overwrite metadata or feature files
func requireDocumentPath(c *gin.Context) (string, bool) {
	p, ok := requirePath(c)
	if !ok {
		return "", false
	}
	if !strings.HasSuffix(gateway.UnarchivedName(path.Base(p)), gateway.BaseSuffix) {
		badRequest(c, fmt.Sprintf("%s is not a requirement document", p))
		return "", false
	}
	return p, true
}

func (s *Server) handleReadDocument(c *gin.Context) {
	p, ok := requireDocumentPath(c)
	if !ok {
		return
	}

	doc, err := s.docs.ReadFile(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "document": doc})
}

func (s *Server) handleUpdateDocument(c *gin.Context) {
	p, ok := requireDocumentPath(c)
	if !ok {
		return
	}

	var doc models.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := s.docs.UpdateFile(c.Request.Context(), p, doc); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "document": doc})
}

// Stories

type storyPatchRequest struct {
	Name          *string            `json:"name"`
	Description   *string            `json:"description"`
	Tasks         []models.Task      `json:"tasks"`
	ChatHistory   []models.ChatEntry `json:"chatHistory"`
	StoryTicketID *string            `json:"storyTicketId"`
}

func (s *Server) handleListStories(c *gin.Context, p string) {
	list := s.stories.GetUserStories(c.Request.Context(), p)
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"features":         list,
		"archivedFeatures": s.stories.ArchivedFeatures(),
	})
}

func (s *Server) handleCreateStory(c *gin.Context, p string) {
	var story models.UserStory
	if err := c.ShouldBindJSON(&story); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	created, err := s.stories.CreateNewUserStory(c.Request.Context(), story, p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "story": created})
}

func (s *Server) handleEditStory(c *gin.Context, p string) {
	var req storyPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	updated, err := s.stories.EditUserStory(c.Request.Context(), p, c.Param("story"), stories.UserStoryPatch{
		Name:          req.Name,
		Description:   req.Description,
		Tasks:         req.Tasks,
		ChatHistory:   req.ChatHistory,
		StoryTicketID: req.StoryTicketID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "story": updated})
}

func (s *Server) handleArchiveStory(c *gin.Context, p string) {
	if err := s.stories.ArchiveUserStory(c.Request.Context(), p, c.Param("story")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCreateTask(c *gin.Context, p string) {
	var task models.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	created, err := s.stories.CreateTaskFor(c.Request.Context(), c.Param("story"), task, p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "task": created})
}

// handleUpdateTask returns the owning story so the client can navigate back
func (s *Server) handleUpdateTask(c *gin.Context, p string) {
	var task models.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	task.ID = c.Param("task")

	storyID := c.Param("story")
	if err := s.stories.UpdateTaskFor(c.Request.Context(), storyID, task, p); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": task, "story": storyID})
}

func (s *Server) handleArchiveTask(c *gin.Context, p string) {
	if err := s.stories.ArchiveTask(c.Request.Context(), p, c.Param("story"), c.Param("task")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
