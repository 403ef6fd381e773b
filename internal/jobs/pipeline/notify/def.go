package notify

import (
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/services"
)

const subscriberName = "notify"

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	notifier services.NotificationService
}

func New(db *gorm.DB, baseLog *logger.Logger, notifier services.NotificationService) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", subscriberName),
		notifier: notifier,
	}
}

// Subscriptions covers every user-visible lifecycle event. FailsJob is false
// across the board: notification delivery retries independently and its
// exhaustion never touches job state.
func (p *Pipeline) Subscriptions() []jobrt.Subscription {
	watched := []string{
		events.EventUploadsRequired,
		events.EventQuestionnaireReady,
		events.EventGenerationCompleted,
		events.EventGenerationFailed,
	}
	subs := make([]jobrt.Subscription, 0, len(watched))
	for _, event := range watched {
		subs = append(subs, jobrt.Subscription{
			Event:       event,
			Subscriber:  subscriberName,
			MaxAttempts: 5,
			FailsJob:    false,
			Handler:     jobrt.HandlerFunc(p.Run),
		})
	}
	return subs
}
