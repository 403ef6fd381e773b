package generate_artifact

import (
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/services"
)

const subscriberName = "generate_artifact"

type Pipeline struct {
	db           *gorm.DB
	log          *logger.Logger
	assets       repos.GeneratedAssetRepo
	ai           services.AIService
	presentation services.PresentationService
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	assets repos.GeneratedAssetRepo,
	ai services.AIService,
	presentation services.PresentationService,
) *Pipeline {
	return &Pipeline{
		db:           db,
		log:          baseLog.With("job", subscriberName),
		assets:       assets,
		ai:           ai,
		presentation: presentation,
	}
}

func (p *Pipeline) Subscriptions() []jobrt.Subscription {
	return []jobrt.Subscription{
		{
			Event:       events.EventArtifactGenerate,
			Subscriber:  subscriberName,
			MaxAttempts: 3,
			FailsJob:    true,
			Handler:     jobrt.HandlerFunc(p.Run),
		},
	}
}
