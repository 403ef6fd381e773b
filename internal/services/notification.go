package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/platform/sendgrid"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// NotificationService turns lifecycle events into user-facing emails. It is
// strictly best-effort: every error ends here, logged, and never reaches the
// job state machine.
type NotificationService interface {
	NotifyJobEvent(ctx context.Context, job *types.GenerationJob, payload events.Payload) error
}

type notificationService struct {
	log    *logger.Logger
	mailer sendgrid.Client
}

func NewNotificationService(log *logger.Logger, mailer sendgrid.Client) NotificationService {
	return &notificationService{
		log:    log.With("service", "NotificationService"),
		mailer: mailer,
	}
}

type emailTemplate struct {
	subject string
	body    func(job *types.GenerationJob, payload events.Payload) string
}

var emailTemplates = map[string]emailTemplate{
	events.EventUploadsRequired: {
		subject: "Action needed: upload financial documents",
		body: func(job *types.GenerationJob, _ events.Payload) string {
			return fmt.Sprintf(
				"Your materials request needs financial documents before it can continue.\n\n"+
					"Requested materials: %s\n\n"+
					"Please upload the company's recent financial statements to proceed.",
				artifactList(job),
			)
		},
	},
	events.EventQuestionnaireReady: {
		subject: "Your questionnaire is ready",
		body: func(_ *types.GenerationJob, payload events.Payload) string {
			count := 0
			if p, ok := payload.(*events.QuestionnaireReady); ok {
				count = p.QuestionCount
			}
			return fmt.Sprintf(
				"We've prepared %d questions about your company. Your answers feed directly "+
					"into the generated materials, so the more detail the better.",
				count,
			)
		},
	},
	events.EventGenerationCompleted: {
		subject: "Your materials are ready",
		body: func(job *types.GenerationJob, _ events.Payload) string {
			return fmt.Sprintf(
				"Generation finished. The following materials are ready to review: %s.",
				artifactList(job),
			)
		},
	},
	events.EventGenerationFailed: {
		subject: "There was a problem generating your materials",
		body: func(_ *types.GenerationJob, payload events.Payload) string {
			detail := ""
			if p, ok := payload.(*events.GenerationFailed); ok && p.Error != "" {
				detail = "\n\nDetails: " + p.Error
			}
			return "We hit a problem while generating your materials. Our team has been notified." + detail
		},
	},
}

func (s *notificationService) NotifyJobEvent(ctx context.Context, job *types.GenerationJob, payload events.Payload) error {
	if job == nil || payload == nil {
		return nil
	}
	tpl, ok := emailTemplates[payload.EventName()]
	if !ok {
		return nil
	}
	to := strings.TrimSpace(job.NotifyEmail)
	if to == "" {
		s.log.Debug("Job has no notify email, skipping", "job_id", job.ID, "event", payload.EventName())
		return nil
	}

	text := tpl.body(job, payload)
	result, err := s.mailer.Send(ctx, sendgrid.SendEmailRequest{
		To:      []sendgrid.EmailAddress{{Email: to}},
		Subject: tpl.subject,
		Text:    text,
		HTML:    textToHTML(text),
	})
	if err != nil {
		return fmt.Errorf("send %s email: %w", payload.EventName(), err)
	}
	s.log.Info("Notification sent",
		"job_id", job.ID,
		"event", payload.EventName(),
		"status_code", result.StatusCode,
	)
	return nil
}

func artifactList(job *types.GenerationJob) string {
	names := map[types.ArtifactType]string{
		types.ArtifactTeaser:    "Teaser",
		types.ArtifactIM:        "Information Memorandum",
		types.ArtifactPitchDeck: "Pitch Deck",
	}
	var parts []string
	for _, t := range job.RequestedArtifacts() {
		parts = append(parts, names[t])
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func textToHTML(text string) string {
	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
