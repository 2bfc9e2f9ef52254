// Package httpapi exposes the queue over HTTP under /api/v1.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"docbatch/internal/batch"
	"docbatch/internal/executor"
	"docbatch/internal/queue"
)

type Server struct {
	queue     *queue.Queue
	store     queue.Store
	templates TemplateStore
	progress  ProgressCleaner
	log       logrus.FieldLogger
	now       func() time.Time
}

// ProgressCleaner drops progress kept outside the queue for a job.
type ProgressCleaner interface {
	Forget(ctx context.Context, jobID string) error
}

type Option func(*Server)

// WithStore saves the queue after every change made through the API.
func WithStore(s queue.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithTemplates serves saved templates under /api/v1/templates and lets new
// jobs name one.
func WithTemplates(t TemplateStore) Option {
	return func(srv *Server) { srv.templates = t }
}

// WithProgress forgets tracked progress of removed jobs.
func WithProgress(p ProgressCleaner) Option {
	return func(srv *Server) { srv.progress = p }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(srv *Server) { srv.log = l }
}

func New(q *queue.Queue, opts ...Option) *Server {
	s := &Server{queue: q, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		s.log = l
	}
	return s
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	v1 := r.Group("/api/v1")
	v1.GET("/stats", s.stats)
	v1.GET("/jobs", s.listJobs)
	v1.POST("/jobs", s.createJob)
	v1.POST("/jobs/clear", s.clearJobs)
	v1.GET("/jobs/:id", s.getJob)
	v1.DELETE("/jobs/:id", s.removeJob)
	v1.PUT("/jobs/:id/priority", s.changePriority)
	v1.POST("/jobs/:id/pause", s.control(s.queue.PauseJob, "job is not processing"))
	v1.POST("/jobs/:id/resume", s.control(s.queue.ResumeJob, "job is not paused"))
	v1.POST("/jobs/:id/cancel", s.control(s.queue.CancelJob, "job cannot be cancelled"))
	v1.POST("/jobs/:id/retry", s.control(s.queue.RetryFailedFiles, "no failed file can be retried"))
	if s.templates != nil {
		v1.GET("/templates", s.listTemplates)
		v1.POST("/templates", s.saveTemplate)
		v1.GET("/templates/:ref", s.getTemplate)
		v1.DELETE("/templates/:ref", s.deleteTemplate)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(began).Round(time.Microsecond),
		}).Debug("request")
	}
}

func (s *Server) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, s.queue.ExportState()); err != nil {
		s.log.WithError(err).Error("save state")
	}
}

// forgetRemoved drops tracked progress of the jobs in before that are gone.
func (s *Server) forgetRemoved(ctx context.Context, before []string) {
	if s.progress == nil {
		return
	}
	for _, id := range before {
		if _, ok := s.queue.GetJob(id); ok {
			continue
		}
		if err := s.progress.Forget(ctx, id); err != nil {
			s.log.WithFields(logrus.Fields{"job_id": id, "error": err}).Warn("forget progress")
		}
	}
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.queue.Stats())
}

func (s *Server) listJobs(c *gin.Context) {
	var jobs []*batch.BatchJob
	if status := c.Query("status"); status != "" {
		jobs = s.queue.JobsByStatus(batch.JobStatus(status))
	} else {
		jobs = s.queue.Jobs()
	}
	if jobs == nil {
		jobs = []*batch.BatchJob{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) getJob(c *gin.Context) {
	job, ok := s.queue.GetJob(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

type createRequest struct {
	Type batch.JobType `json:"type"`
	// Template names a saved template supplying type, options and priority.
	Template string            `json:"template"`
	Name     string            `json:"name"`
	Files    []string          `json:"files" binding:"required,min=1"`
	Priority batch.JobPriority `json:"priority"`
	Options  batch.JobOptions  `json:"options"`
}

func (s *Server) createJob(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Priority != "" && !req.Priority.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority " + string(req.Priority)})
		return
	}

	files := make([]*batch.BatchFile, len(req.Files))
	for i, p := range req.Files {
		files[i] = batch.NewFile(p, 0)
	}

	var job *batch.BatchJob
	switch {
	case req.Template != "":
		if s.templates == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "templates are not enabled"})
			return
		}
		tpl, ok := s.findTemplate(c, req.Template)
		if !ok {
			return
		}
		job = batch.NewJobFromTemplate(tpl, req.Name, files, s.now())
		if req.Priority != "" {
			job.Priority = req.Priority
		}
	case req.Type == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "type or template is required"})
		return
	default:
		if req.Priority == "" {
			req.Priority = batch.PriorityNormal
		}
		if req.Options.MaxRetries == 0 {
			req.Options.MaxRetries = batch.DefaultMaxRetries
		}
		job = batch.NewJob(req.Type, req.Name, files, req.Options, req.Priority, s.now())
	}
	if res := executor.ValidateJob(job); !res.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job", "errors": res.Errors})
		return
	}

	s.queue.AddJob(job)
	s.persist(c.Request.Context())
	stored, _ := s.queue.GetJob(job.ID)
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) removeJob(c *gin.Context) {
	id := c.Param("id")
	if !s.queue.RemoveJob(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	s.persist(c.Request.Context())
	s.forgetRemoved(c.Request.Context(), []string{id})
	c.Status(http.StatusNoContent)
}

func (s *Server) clearJobs(c *gin.Context) {
	before := s.queue.PriorityOrder()
	var n int
	if c.Query("all") == "true" {
		n = s.queue.ClearAllJobs()
	} else {
		n = s.queue.ClearCompletedJobs()
	}
	s.persist(c.Request.Context())
	s.forgetRemoved(c.Request.Context(), before)
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (s *Server) changePriority(c *gin.Context) {
	var body struct {
		Priority batch.JobPriority `json:"priority" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !body.Priority.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority " + string(body.Priority)})
		return
	}
	if !s.queue.ChangePriority(c.Param("id"), body.Priority) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	s.persist(c.Request.Context())
	s.respondJob(c)
}

// control wraps a queue operation that refuses jobs in the wrong state.
func (s *Server) control(op func(id string) bool, refused string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, ok := s.queue.GetJob(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		if !op(id) {
			c.JSON(http.StatusConflict, gin.H{"error": refused})
			return
		}
		s.persist(c.Request.Context())
		s.respondJob(c)
	}
}

func (s *Server) respondJob(c *gin.Context) {
	job, ok := s.queue.GetJob(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}
