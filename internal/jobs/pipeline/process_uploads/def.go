package process_uploads

import (
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/gcs"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/services"
)

const subscriberName = "process_uploads"

type Pipeline struct {
	db          *gorm.DB
	log         *logger.Logger
	documents   repos.CompanyDocumentRepo
	extractions repos.ExtractedFinancialRepo
	store       gcs.DocumentStore
	ai          services.AIService
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	documents repos.CompanyDocumentRepo,
	extractions repos.ExtractedFinancialRepo,
	store gcs.DocumentStore,
	ai services.AIService,
) *Pipeline {
	return &Pipeline{
		db:          db,
		log:         baseLog.With("job", subscriberName),
		documents:   documents,
		extractions: extractions,
		store:       store,
		ai:          ai,
	}
}

func (p *Pipeline) Subscriptions() []jobrt.Subscription {
	return []jobrt.Subscription{
		{
			Event:       events.EventUploadsCompleted,
			Subscriber:  subscriberName,
			MaxAttempts: 3,
			FailsJob:    true,
			Handler:     jobrt.HandlerFunc(p.Run),
		},
	}
}
