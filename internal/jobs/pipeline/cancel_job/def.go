package cancel_job

import (
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
)

const subscriberName = "cancel_job"

type Pipeline struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		db:  db,
		log: baseLog.With("job", subscriberName),
	}
}

func (p *Pipeline) Subscriptions() []jobrt.Subscription {
	return []jobrt.Subscription{
		{
			Event:       events.EventJobCancel,
			Subscriber:  subscriberName,
			MaxAttempts: 3,
			FailsJob:    false,
			Handler:     jobrt.HandlerFunc(p.Run),
		},
	}
}
