package questionnaire_build

import (
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/services"
)

const subscriberName = "questionnaire_build"

type Pipeline struct {
	db            *gorm.DB
	log           *logger.Logger
	companies     repos.CompanyRepo
	cache         repos.CachedDataRepo
	questionnaire repos.QuestionnaireRepo
	ai            services.AIService
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	companies repos.CompanyRepo,
	cache repos.CachedDataRepo,
	questionnaire repos.QuestionnaireRepo,
	ai services.AIService,
) *Pipeline {
	return &Pipeline{
		db:            db,
		log:           baseLog.With("job", subscriberName),
		companies:     companies,
		cache:         cache,
		questionnaire: questionnaire,
		ai:            ai,
	}
}

func (p *Pipeline) Subscriptions() []jobrt.Subscription {
	return []jobrt.Subscription{
		{
			Event:       events.EventQuestionnaireRequested,
			Subscriber:  subscriberName,
			MaxAttempts: 3,
			FailsJob:    true,
			Handler:     jobrt.HandlerFunc(p.Run),
		},
	}
}
