package notify

import (
	"context"

	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	payload, err := jc.DecodePayload()
	if err != nil {
		return err
	}

	job, err := jc.Job()
	if err != nil {
		return err
	}

	// One step per delivery: a retried delivery that already sent its email
	// replays the step instead of emailing the user twice.
	return jc.Step("send_email", nil, func(ctx context.Context) (any, error) {
		return nil, p.notifier.NotifyJobEvent(ctx, job, payload)
	})
}
