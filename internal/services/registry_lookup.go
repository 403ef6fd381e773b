package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dealforge/dealforge-backend/internal/platform/envutil"
	"github.com/dealforge/dealforge-backend/internal/platform/httpx"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// RegistryService queries the external business registry for official company
// filings. The result is stored verbatim as the job's company_profile cache
// entry; the pipeline never depends on its inner structure.
type RegistryService interface {
	LookupCompany(ctx context.Context, company *types.Company) (json.RawMessage, error)
}

type registryService struct {
	log    *logger.Logger
	client *resty.Client
}

func NewRegistryService(log *logger.Logger) (RegistryService, error) {
	baseURL := envutil.String("REGISTRY_API_URL", "")
	if baseURL == "" {
		return nil, fmt.Errorf("missing REGISTRY_API_URL")
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(envutil.DurationSeconds("REGISTRY_TIMEOUT_SECONDS", 30*time.Second)).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return httpx.IsRetryableHTTPStatus(r.StatusCode())
		})
	if key := envutil.String("REGISTRY_API_KEY", ""); key != "" {
		client.SetHeader("Authorization", "Bearer "+key)
	}
	return &registryService{
		log:    log.With("service", "RegistryService"),
		client: client,
	}, nil
}

func (s *registryService) LookupCompany(ctx context.Context, company *types.Company) (json.RawMessage, error) {
	if company == nil {
		return nil, fmt.Errorf("company required")
	}

	req := s.client.R().SetContext(ctx)
	if company.RegistrationNumber != "" {
		req.SetQueryParam("registration_number", company.RegistrationNumber)
	} else {
		req.SetQueryParam("name", company.Name)
	}

	resp, err := req.Get("/v1/companies/search")
	if err != nil {
		return nil, fmt.Errorf("registry lookup: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("registry lookup: http %d: %s", resp.StatusCode(), resp.String())
	}

	body := resp.Body()
	if !json.Valid(body) {
		return nil, fmt.Errorf("registry lookup: non-JSON response")
	}
	return json.RawMessage(body), nil
}
