package consolidate

import (
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
)

const subscriberName = "consolidate"

type Pipeline struct {
	db            *gorm.DB
	log           *logger.Logger
	companies     repos.CompanyRepo
	cache         repos.CachedDataRepo
	extractions   repos.ExtractedFinancialRepo
	questionnaire repos.QuestionnaireRepo
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	companies repos.CompanyRepo,
	cache repos.CachedDataRepo,
	extractions repos.ExtractedFinancialRepo,
	questionnaire repos.QuestionnaireRepo,
) *Pipeline {
	return &Pipeline{
		db:            db,
		log:           baseLog.With("job", subscriberName),
		companies:     companies,
		cache:         cache,
		extractions:   extractions,
		questionnaire: questionnaire,
	}
}

func (p *Pipeline) Subscriptions() []jobrt.Subscription {
	return []jobrt.Subscription{
		{
			Event:       events.EventConsolidationRequested,
			Subscriber:  subscriberName,
			MaxAttempts: 3,
			FailsJob:    true,
			Handler:     jobrt.HandlerFunc(p.Run),
		},
	}
}
