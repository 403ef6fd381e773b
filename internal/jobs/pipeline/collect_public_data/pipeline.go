package collect_public_data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/jobs/orchestrator"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/types"
)

type fetchSummary struct {
	RegistryOK  bool `json:"registry_ok"`
	WebSearchOK bool `json:"web_search_ok"`
}

// Run collects public data for a freshly created job. Each external source is
// independent: a failed fetch writes no cache entry and the phase carries on
// with whatever it got.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	payload, err := jc.DecodePayload()
	if err != nil {
		return err
	}
	created, ok := payload.(*events.JobCreated)
	if !ok {
		return fmt.Errorf("unexpected payload %T", payload)
	}

	job, err := jc.Job()
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		jc.Log.Info("Job terminal, skipping collection", "job_id", job.ID, "status", job.Status)
		return nil
	}

	jc.Progress(5, "collecting_public_data")

	company, err := p.companies.GetByID(jc.Ctx, nil, created.CompanyID)
	if err != nil {
		return fmt.Errorf("load company: %w", err)
	}
	if company == nil {
		return fmt.Errorf("company %s not found", created.CompanyID)
	}

	var summary fetchSummary
	if err := jc.Step("fetch_public_data", &summary, func(ctx context.Context) (any, error) {
		return p.fetchAll(ctx, jc, company)
	}); err != nil {
		return err
	}
	jc.Log.Info("Public data collected",
		"job_id", job.ID,
		"registry_ok", summary.RegistryOK,
		"web_search_ok", summary.WebSearchOK,
	)

	if err := jc.Step("mark_collected", nil, func(ctx context.Context) (any, error) {
		outcome, err := orchestrator.Next(types.StatusCollectingData, orchestrator.TriggerPublicDataDone, job)
		if err != nil {
			return nil, err
		}
		_, err = jc.UpdateJob(map[string]interface{}{
			"status":                outcome.To,
			"public_data_collected": true,
			"data_collected_at":     jc.Now(),
		})
		return nil, err
	}); err != nil {
		return err
	}
	jc.Progress(20, "public_data_collected")

	// Branch point: document-dependent artifacts detour through uploads,
	// everything else goes straight to the questionnaire.
	return jc.Step("branch", nil, func(ctx context.Context) (any, error) {
		outcome, err := orchestrator.Next(types.StatusPublicDataCollected, orchestrator.TriggerPublicDataDone, job)
		if err != nil {
			return nil, err
		}
		if outcome.To != types.StatusPublicDataCollected {
			if _, err := jc.UpdateJob(map[string]interface{}{"status": outcome.To}); err != nil {
				return nil, err
			}
		}
		switch outcome.Emit {
		case events.EventUploadsRequired:
			return nil, jc.Emit(events.UploadsRequired{JobID: job.ID, CompanyID: job.CompanyID})
		case events.EventQuestionnaireRequested:
			return nil, jc.Emit(events.QuestionnaireRequested{JobID: job.ID, CompanyID: job.CompanyID})
		default:
			return nil, fmt.Errorf("unexpected branch outcome %+v", outcome)
		}
	})
}

// fetchAll runs both source fetches concurrently. Neither goroutine returns
// an error for a source failure: the failure is logged, no cache entry is
// written, and consolidation works off whichever entries exist.
func (p *Pipeline) fetchAll(ctx context.Context, jc *jobrt.Context, company *types.Company) (fetchSummary, error) {
	var summary fetchSummary
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		payload, err := p.registry.LookupCompany(gctx, company)
		if err != nil {
			jc.Log.Warn("Registry lookup failed, skipping entry", "company_id", company.ID, "error", err)
			return nil
		}
		summary.RegistryOK = true
		return p.storeEntry(gctx, jc, types.DataSourceRegistry, types.DataTypeCompanyProfile, payload)
	})
	g.Go(func() error {
		payload, err := p.search.MarketResearch(gctx, company)
		if err != nil {
			jc.Log.Warn("Market research failed, skipping entry", "company_id", company.ID, "error", err)
			return nil
		}
		summary.WebSearchOK = true
		return p.storeEntry(gctx, jc, types.DataSourceWebSearch, types.DataTypeMarketResearch, payload)
	})

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (p *Pipeline) storeEntry(ctx context.Context, jc *jobrt.Context, source, dataType string, payload json.RawMessage) error {
	_, err := p.cache.Upsert(ctx, nil, &types.CachedDataEntry{
		JobID:     jc.JobID(),
		Source:    source,
		DataType:  dataType,
		Payload:   datatypes.JSON(payload),
		FetchedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("cache %s/%s: %w", source, dataType, err)
	}
	return nil
}
