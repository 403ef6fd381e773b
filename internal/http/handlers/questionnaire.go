package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dealforge/dealforge-backend/internal/http/response"
	"github.com/dealforge/dealforge-backend/internal/services"
)

type QuestionnaireHandler struct {
	jobs services.JobService
}

func NewQuestionnaireHandler(jobs services.JobService) *QuestionnaireHandler {
	return &QuestionnaireHandler{jobs: jobs}
}

type submitAnswersRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

// POST /api/generation-jobs/:id/questionnaire/answers
func (h *QuestionnaireHandler) SubmitAnswers(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req submitAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.Answers) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("answers must not be empty"))
		return
	}
	summary, err := h.jobs.SubmitAnswers(c.Request.Context(), jobID, req.Answers)
	if err != nil {
		response.RespondError(c, statusFor(err), "submit_answers_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"questionnaire": summary})
}

// POST /api/generation-jobs/:id/questionnaire/complete
func (h *QuestionnaireHandler) Complete(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	if err := h.jobs.CompleteQuestionnaire(c.Request.Context(), jobID); err != nil {
		response.RespondError(c, statusFor(err), "complete_questionnaire_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"job_id": jobID})
}
