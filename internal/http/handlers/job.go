package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dealforge/dealforge-backend/internal/http/response"
	"github.com/dealforge/dealforge-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

type createJobRequest struct {
	CompanyID        uuid.UUID `json:"company_id" binding:"required"`
	OrganizationID   uuid.UUID `json:"organization_id" binding:"required"`
	CreatedByUserID  uuid.UUID `json:"created_by_user_id" binding:"required"`
	NotifyEmail      string    `json:"notify_email"`
	RequestTeaser    bool      `json:"request_teaser"`
	RequestIM        bool      `json:"request_im"`
	RequestPitchDeck bool      `json:"request_pitch_deck"`
}

// POST /api/generation-jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), services.CreateJobParams{
		CompanyID:        req.CompanyID,
		OrganizationID:   req.OrganizationID,
		CreatedByUserID:  req.CreatedByUserID,
		NotifyEmail:      req.NotifyEmail,
		RequestTeaser:    req.RequestTeaser,
		RequestIM:        req.RequestIM,
		RequestPitchDeck: req.RequestPitchDeck,
	})
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "create_job_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"job": job})
}

// GET /api/generation-jobs/:id
func (h *JobHandler) GetStatus(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	view, err := h.jobs.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		response.RespondError(c, statusFor(err), "job_not_found", err)
		return
	}
	response.RespondOK(c, view)
}

type uploadsCompletedRequest struct {
	DocumentIDs []uuid.UUID `json:"document_ids" binding:"required"`
}

// POST /api/generation-jobs/:id/uploads-completed
func (h *JobHandler) UploadsCompleted(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req uploadsCompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.jobs.NotifyUploadsCompleted(c.Request.Context(), jobID, req.DocumentIDs); err != nil {
		response.RespondError(c, statusFor(err), "uploads_completed_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"job_id": jobID})
}

type cancelJobRequest struct {
	Reason string `json:"reason"`
}

// POST /api/generation-jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req cancelJobRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.jobs.CancelJob(c.Request.Context(), jobID, req.Reason); err != nil {
		response.RespondError(c, statusFor(err), "cancel_job_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"job_id": jobID})
}

func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return http.StatusNotFound
	case strings.Contains(msg, "already"), strings.Contains(msg, "is "):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
