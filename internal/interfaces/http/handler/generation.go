package handler

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/application/generation"
	"github.com/rpgsheets/backend/internal/interfaces/http/middleware"
)

// GenerationHandler serves generation jobs, their artifacts and share links
type GenerationHandler struct {
	BaseHandler
	manager   *generation.Manager
	shares    *generation.ShareService
	downloads *generation.DownloadService
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(
	manager *generation.Manager,
	shares *generation.ShareService,
	downloads *generation.DownloadService,
) *GenerationHandler {
	return &GenerationHandler{
		manager:   manager,
		shares:    shares,
		downloads: downloads,
	}
}

// listJobsQuery binds the job listing query string
type listJobsQuery struct {
	DocumentType string `form:"document_type"`
	Status       string `form:"status"`
	CharacterID  string `form:"character_id"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
	OrderBy      string `form:"order_by"`
	OrderDir     string `form:"order_dir"`
}

// =============================================================================
// Job Endpoints
// =============================================================================

// CreateJob queues a document for generation and answers with the PENDING
// job. POST /generation/jobs
func (h *GenerationHandler) CreateJob(c *gin.Context) {
	var req generation.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	req.OwnerID = middleware.GetUserID(c)

	job, err := h.manager.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header("Location", c.FullPath()+"/"+job.ID)
	h.Created(c, job)
}

// ListJobs returns the caller's jobs, newest first by default.
// GET /generation/jobs
func (h *GenerationHandler) ListJobs(c *gin.Context) {
	var query listJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	filter := generation.JobFilter{
		DocumentType: query.DocumentType,
		Status:       query.Status,
	}
	if query.CharacterID != "" {
		characterID, err := uuid.Parse(query.CharacterID)
		if err != nil {
			h.BadRequest(c, "Invalid character ID format")
			return
		}
		filter.CharacterID = &characterID
	}

	page, err := h.manager.ListByOwner(c.Request.Context(), middleware.GetUserID(c), filter, generation.Pagination{
		Page:     query.Page,
		PageSize: query.PageSize,
		OrderBy:  query.OrderBy,
		OrderDir: query.OrderDir,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// GetJob returns one of the caller's jobs. GET /generation/jobs/:id
func (h *GenerationHandler) GetJob(c *gin.Context) {
	jobID, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	job, err := h.manager.GetJob(c.Request.Context(), jobID, middleware.GetUserID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// GetJobStatus returns the progress view of one of the caller's jobs for
// polling clients. GET /generation/jobs/:id/status
func (h *GenerationHandler) GetJobStatus(c *gin.Context) {
	jobID, ok := h.authorizedJob(c)
	if !ok {
		return
	}

	status, err := h.manager.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// RelaunchJob queues a FAILED job again. POST /generation/jobs/:id/relaunch
func (h *GenerationHandler) RelaunchJob(c *gin.Context) {
	jobID, ok := h.authorizedJob(c)
	if !ok {
		return
	}

	job, err := h.manager.Relaunch(c.Request.Context(), jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, job)
}

// DeleteJob removes a job and its artifact. DELETE /generation/jobs/:id
func (h *GenerationHandler) DeleteJob(c *gin.Context) {
	jobID, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	if err := h.manager.Delete(c.Request.Context(), jobID, middleware.GetUserID(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// =============================================================================
// Download and Share Endpoints
// =============================================================================

// DownloadJob streams the PDF of a completed job. The owner needs nothing
// else; other callers may pass ?token=. GET /generation/jobs/:id/download
func (h *GenerationHandler) DownloadJob(c *gin.Context) {
	jobID, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	h.serve(c, generation.DownloadRequest{
		JobID:       jobID,
		RequesterID: middleware.GetUserID(c),
		ShareToken:  c.Query("token"),
	})
}

// ShareJob issues a share link. POST /generation/jobs/:id/share
func (h *GenerationHandler) ShareJob(c *gin.Context) {
	jobID, ok := h.authorizedJob(c)
	if !ok {
		return
	}

	var req generation.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	share, err := h.shares.Issue(c.Request.Context(), jobID, req.DurationHours)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, share)
}

// RevokeShare invalidates the job's share link. DELETE /generation/jobs/:id/share
func (h *GenerationHandler) RevokeShare(c *gin.Context) {
	jobID, ok := h.authorizedJob(c)
	if !ok {
		return
	}

	if err := h.shares.Revoke(c.Request.Context(), jobID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// DownloadShared streams the PDF behind a share token to anyone holding it.
// Unknown, revoked and expired tokens all answer 404. GET /shared/:token
func (h *GenerationHandler) DownloadShared(c *gin.Context) {
	h.serve(c, generation.DownloadRequest{ShareToken: c.Param("token")})
}

// =============================================================================
// Helper Functions
// =============================================================================

// authorizedJob parses :id and checks the caller owns the job. It writes the
// error response itself and reports whether the handler may continue.
func (h *GenerationHandler) authorizedJob(c *gin.Context) (uuid.UUID, bool) {
	jobID, ok := parseID(c)
	if !ok {
		h.BadRequest(c, "Invalid job ID format")
		return uuid.Nil, false
	}
	if _, err := h.manager.GetJob(c.Request.Context(), jobID, middleware.GetUserID(c)); err != nil {
		h.HandleError(c, err)
		return uuid.Nil, false
	}
	return jobID, true
}

func (h *GenerationHandler) serve(c *gin.Context, req generation.DownloadRequest) {
	result, err := h.downloads.Download(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	defer result.Content.Close()

	c.Header("Cache-Control", "private, no-store")
	c.DataFromReader(http.StatusOK, result.Size, result.ContentType, result.Content, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": result.FileName}),
		"X-Job-ID":            result.JobID.String(),
		"X-Content-Length":    strconv.FormatInt(result.Size, 10),
	})
}
