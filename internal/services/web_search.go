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

// WebSearchService fetches market and industry research for a company. Like
// the registry lookup it produces an opaque payload for the cache trail.
type WebSearchService interface {
	MarketResearch(ctx context.Context, company *types.Company) (json.RawMessage, error)
}

type webSearchService struct {
	log        *logger.Logger
	client     *resty.Client
	apiKey     string
	maxResults int
}

func NewWebSearchService(log *logger.Logger) (WebSearchService, error) {
	apiKey := envutil.String("SEARCH_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing SEARCH_API_KEY")
	}
	client := resty.New().
		SetBaseURL(envutil.String("SEARCH_API_URL", "https://api.tavily.com")).
		SetTimeout(envutil.DurationSeconds("SEARCH_TIMEOUT_SECONDS", 30*time.Second)).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return httpx.IsRetryableHTTPStatus(r.StatusCode())
		})
	return &webSearchService{
		log:        log.With("service", "WebSearchService"),
		client:     client,
		apiKey:     apiKey,
		maxResults: envutil.Int("SEARCH_MAX_RESULTS", 8),
	}, nil
}

func (s *webSearchService) MarketResearch(ctx context.Context, company *types.Company) (json.RawMessage, error) {
	if company == nil {
		return nil, fmt.Errorf("company required")
	}
	query := fmt.Sprintf("%s market size trends competitors", company.Name)
	if company.Industry != "" {
		query = fmt.Sprintf("%s industry %s market size trends competitors", company.Industry, company.Name)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"api_key":        s.apiKey,
			"query":          query,
			"search_depth":   "advanced",
			"include_answer": true,
			"max_results":    s.maxResults,
		}).
		Post("/search")
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("web search: http %d: %s", resp.StatusCode(), resp.String())
	}

	body := resp.String()
	if !gjson.Get(body, "results").Exists() {
		return nil, fmt.Errorf("web search: response missing results")
	}
	return json.RawMessage(resp.Body()), nil
}
