package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/dealforge/dealforge-backend/internal/http/handlers"
	httpMW "github.com/dealforge/dealforge-backend/internal/http/middleware"
)

type RouterConfig struct {
	JobHandler           *httpH.JobHandler
	QuestionnaireHandler *httpH.QuestionnaireHandler
	HealthHandler        *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("dealforge"))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.JobHandler != nil {
			api.POST("/generation-jobs", cfg.JobHandler.CreateJob)
			api.GET("/generation-jobs/:id", cfg.JobHandler.GetStatus)
			api.POST("/generation-jobs/:id/uploads-completed", cfg.JobHandler.UploadsCompleted)
			api.POST("/generation-jobs/:id/cancel", cfg.JobHandler.CancelJob)
		}
		if cfg.QuestionnaireHandler != nil {
			api.POST("/generation-jobs/:id/questionnaire/answers", cfg.QuestionnaireHandler.SubmitAnswers)
			api.POST("/generation-jobs/:id/questionnaire/complete", cfg.QuestionnaireHandler.Complete)
		}
	}

	return r
}
