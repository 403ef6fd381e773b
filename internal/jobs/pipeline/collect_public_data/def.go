package collect_public_data

import (
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/services"
)

const subscriberName = "collect_public_data"

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	companies repos.CompanyRepo
	cache     repos.CachedDataRepo
	registry  services.RegistryService
	search    services.WebSearchService
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	companies repos.CompanyRepo,
	cache repos.CachedDataRepo,
	registry services.RegistryService,
	search services.WebSearchService,
) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", subscriberName),
		companies: companies,
		cache:     cache,
		registry:  registry,
		search:    search,
	}
}

func (p *Pipeline) Subscriptions() []jobrt.Subscription {
	return []jobrt.Subscription{
		{
			Event:       events.EventJobCreated,
			Subscriber:  subscriberName,
			MaxAttempts: 3,
			FailsJob:    true,
			Handler:     jobrt.HandlerFunc(p.Run),
		},
	}
}
