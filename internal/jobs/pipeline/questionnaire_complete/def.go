package questionnaire_complete

import (
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
)

const subscriberName = "questionnaire_complete"

type Pipeline struct {
	db            *gorm.DB
	log           *logger.Logger
	questionnaire repos.QuestionnaireRepo
}

func New(db *gorm.DB, baseLog *logger.Logger, questionnaire repos.QuestionnaireRepo) *Pipeline {
	return &Pipeline{
		db:            db,
		log:           baseLog.With("job", subscriberName),
		questionnaire: questionnaire,
	}
}

func (p *Pipeline) Subscriptions() []jobrt.Subscription {
	return []jobrt.Subscription{
		{
			Event:       events.EventQuestionnaireCompleted,
			Subscriber:  subscriberName,
			MaxAttempts: 3,
			FailsJob:    true,
			Handler:     jobrt.HandlerFunc(p.Run),
		},
	}
}
