package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/dealforge/dealforge-backend/internal/platform/envutil"
	"github.com/dealforge/dealforge-backend/internal/platform/httpx"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// PresentationService renders artifact content into a hosted presentation.
// The render is best-effort: the generate pipeline stores the asset content
// either way and only attaches the URLs when the render succeeds.
type PresentationService interface {
	CreatePresentation(ctx context.Context, artifactType types.ArtifactType, title string, sections json.RawMessage) (*PresentationResult, error)
}

type PresentationResult struct {
	PresentationID string `json:"presentation_id"`
	ViewURL        string `json:"view_url"`
	EditURL        string `json:"edit_url"`
}

type presentationService struct {
	log          *logger.Logger
	client       *resty.Client
	pollInterval time.Duration
	pollBudget   time.Duration
}

func NewPresentationService(log *logger.Logger) (PresentationService, error) {
	apiKey := envutil.String("PRESENTATION_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing PRESENTATION_API_KEY")
	}
	client := resty.New().
		SetBaseURL(envutil.String("PRESENTATION_API_URL", "https://public-api.gamma.app")).
		SetTimeout(envutil.DurationSeconds("PRESENTATION_TIMEOUT_SECONDS", 60*time.Second)).
		SetHeader("X-API-KEY", apiKey).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(15 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return httpx.IsRetryableHTTPStatus(r.StatusCode())
		})
	return &presentationService{
		log:          log.With("service", "PresentationService"),
		client:       client,
		pollInterval: envutil.DurationSeconds("PRESENTATION_POLL_SECONDS", 5*time.Second),
		pollBudget:   envutil.DurationSeconds("PRESENTATION_POLL_BUDGET_SECONDS", 5*time.Minute),
	}, nil
}

var presentationFormats = map[types.ArtifactType]string{
	types.ArtifactTeaser:    "document",
	types.ArtifactIM:        "document",
	types.ArtifactPitchDeck: "presentation",
}

func (s *presentationService) CreatePresentation(ctx context.Context, artifactType types.ArtifactType, title string, sections json.RawMessage) (*PresentationResult, error) {
	format := presentationFormats[artifactType]
	if format == "" {
		format = "document"
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"inputText":  string(sections),
			"textMode":   "preserve",
			"format":     format,
			"additionalInstructions": fmt.Sprintf("Title: %s. Professional M&A advisory styling.", title),
		}).
		Post("/v0.2/generations")
	if err != nil {
		return nil, fmt.Errorf("presentation create: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("presentation create: http %d: %s", resp.StatusCode(), resp.String())
	}

	generationID := gjson.Get(resp.String(), "generationId").String()
	if generationID == "" {
		return nil, fmt.Errorf("presentation create: response missing generationId")
	}
	return s.awaitGeneration(ctx, generationID)
}

// awaitGeneration polls the async render until it finishes or the budget runs
// out. The caller's context also bounds the wait.
func (s *presentationService) awaitGeneration(ctx context.Context, generationID string) (*PresentationResult, error) {
	deadline := time.Now().Add(s.pollBudget)
	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("presentation %s: render timed out", generationID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}

		resp, err := s.client.R().
			SetContext(ctx).
			Get("/v0.2/generations/" + generationID)
		if err != nil {
			return nil, fmt.Errorf("presentation %s: poll: %w", generationID, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("presentation %s: poll: http %d", generationID, resp.StatusCode())
		}

		body := resp.String()
		switch status := gjson.Get(body, "status").String(); status {
		case "completed":
			return &PresentationResult{
				PresentationID: gjson.Get(body, "gammaId").String(),
				ViewURL:        gjson.Get(body, "gammaUrl").String(),
				EditURL:        gjson.Get(body, "editUrl").String(),
			}, nil
		case "failed":
			return nil, fmt.Errorf("presentation %s: render failed: %s", generationID, gjson.Get(body, "error").String())
		default:
			// pending or processing, keep polling
		}
	}
}
