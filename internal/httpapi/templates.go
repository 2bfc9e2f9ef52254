package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docbatch/internal/batch"
	"docbatch/internal/executor"
)

// TemplateStore keeps saved job templates. Get and Delete accept an id or a
// name; Get wraps batch.ErrTemplateNotFound for unknown ones.
type TemplateStore interface {
	List(ctx context.Context) ([]*batch.Template, error)
	Get(ctx context.Context, ref string) (*batch.Template, error)
	Put(ctx context.Context, tpl *batch.Template) error
	Delete(ctx context.Context, ref string) (bool, error)
}

func (s *Server) listTemplates(c *gin.Context) {
	all, err := s.templates.List(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("list templates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read templates"})
		return
	}
	if all == nil {
		all = []*batch.Template{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": all, "count": len(all)})
}

func (s *Server) getTemplate(c *gin.Context) {
	if tpl, ok := s.findTemplate(c, c.Param("ref")); ok {
		c.JSON(http.StatusOK, tpl)
	}
}

// findTemplate writes the error response itself when it returns false.
func (s *Server) findTemplate(c *gin.Context, ref string) (*batch.Template, bool) {
	tpl, err := s.templates.Get(c.Request.Context(), ref)
	switch {
	case errors.Is(err, batch.ErrTemplateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return nil, false
	case err != nil:
		s.log.WithError(err).Error("read template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read templates"})
		return nil, false
	}
	return tpl, true
}

type templateRequest struct {
	Name     string            `json:"name" binding:"required"`
	Priority batch.JobPriority `json:"priority"`
	Options  batch.JobOptions  `json:"options"`
}

func (s *Server) saveTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Priority == "" {
		req.Priority = batch.PriorityNormal
	}
	if !req.Priority.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority " + string(req.Priority)})
		return
	}
	if req.Options.MaxRetries == 0 {
		req.Options.MaxRetries = batch.DefaultMaxRetries
	}
	if req.Options.Operation == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "options with a type are required"})
		return
	}

	tpl := batch.NewTemplate(req.Name, req.Options, req.Priority)
	sample := batch.NewJobFromTemplate(tpl, req.Name, []*batch.BatchFile{batch.NewFile(req.Name, 0)}, s.now())
	if res := executor.ValidateJob(sample); !res.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template", "errors": res.Errors})
		return
	}
	if err := s.templates.Put(c.Request.Context(), tpl); err != nil {
		s.log.WithError(err).Error("save template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save template"})
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	ok, err := s.templates.Delete(c.Request.Context(), c.Param("ref"))
	if err != nil {
		s.log.WithError(err).Error("delete template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete templates"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
