package generate_artifact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/jobs/orchestrator"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/services"
	"github.com/dealforge/dealforge-backend/internal/types"
)

var startTriggers = map[types.ArtifactType]orchestrator.Trigger{
	types.ArtifactTeaser:    orchestrator.TriggerTeaserStarted,
	types.ArtifactIM:        orchestrator.TriggerIMStarted,
	types.ArtifactPitchDeck: orchestrator.TriggerPitchDeckStarted,
}

// Run generates one artifact from the consolidated bundle. The three artifact
// types share this handler; the payload's artifact_type parameterizes the
// prompt, the rendered format, and the asset link column.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	payload, err := jc.DecodePayload()
	if err != nil {
		return err
	}
	gen, ok := payload.(*events.ArtifactGenerate)
	if !ok {
		return fmt.Errorf("unexpected payload %T", payload)
	}
	artifact := gen.ArtifactType

	job, err := jc.Job()
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		jc.Log.Info("Job terminal, skipping generation", "job_id", job.ID, "status", job.Status)
		return nil
	}
	if !job.Requested(artifact) {
		return fmt.Errorf("artifact %s was not requested for job %s", artifact, job.ID)
	}
	if len(job.Metadata) == 0 {
		return fmt.Errorf("job %s has no consolidated bundle", job.ID)
	}

	if err := jc.Step("mark_generating_"+string(artifact), nil, func(ctx context.Context) (any, error) {
		outcome, err := orchestrator.Next(job.Status, startTriggers[artifact], job)
		if err != nil {
			return nil, err
		}
		_, err = jc.UpdateJob(map[string]interface{}{"status": outcome.To})
		return nil, err
	}); err != nil {
		return err
	}
	jc.Progress(75, "generating_"+string(artifact))

	var content services.ArtifactContent
	if err := jc.Step("generate_content_"+string(artifact), &content, func(ctx context.Context) (any, error) {
		jc.Touch()
		return p.ai.GenerateArtifactContent(ctx, artifact, json.RawMessage(job.Metadata))
	}); err != nil {
		return err
	}

	// Rendering is best-effort: a presentation outage must not lose the
	// generated content, so render failures degrade to a URL-less asset.
	var render services.PresentationResult
	if err := jc.Step("render_"+string(artifact), &render, func(ctx context.Context) (any, error) {
		jc.Touch()
		result, err := p.presentation.CreatePresentation(ctx, artifact, content.Title, content.Sections)
		if err != nil {
			jc.Log.Warn("Presentation render failed, storing content only",
				"job_id", job.ID, "artifact", artifact, "error", err)
			return services.PresentationResult{}, nil
		}
		return result, nil
	}); err != nil {
		return err
	}

	var assetID uuid.UUID
	if err := jc.Step("store_asset_"+string(artifact), &assetID, func(ctx context.Context) (any, error) {
		contentJSON, err := json.Marshal(content.Sections)
		if err != nil {
			return nil, fmt.Errorf("encode content: %w", err)
		}
		asset, err := p.assets.Upsert(ctx, nil, &types.GeneratedAsset{
			JobID:          job.ID,
			ArtifactType:   artifact,
			Title:          content.Title,
			Content:        datatypes.JSON(contentJSON),
			PresentationID: render.PresentationID,
			ViewURL:        render.ViewURL,
			EditURL:        render.EditURL,
		})
		if err != nil {
			return nil, fmt.Errorf("store asset: %w", err)
		}
		column := types.AssetIDColumn(artifact)
		if _, err := jc.UpdateJob(map[string]interface{}{column: asset.ID}); err != nil {
			return nil, fmt.Errorf("link asset: %w", err)
		}
		return asset.ID, nil
	}); err != nil {
		return err
	}
	jc.Log.Info("Artifact generated", "job_id", job.ID, "artifact", artifact, "asset_id", assetID)

	return jc.Step("completion_check_"+string(artifact), nil, func(ctx context.Context) (any, error) {
		return nil, p.completeIfReady(jc)
	})
}

// completeIfReady closes the job once every requested artifact has an asset
// linked. Each generate delivery runs this; the guarded status write makes
// the last one to finish the only one whose completion sticks.
func (p *Pipeline) completeIfReady(jc *jobrt.Context) error {
	job, err := jc.Job()
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		return nil
	}

	assetIDs := map[string]uuid.UUID{}
	for _, artifact := range job.RequestedArtifacts() {
		id := job.AssetIDFor(artifact)
		if id == nil || *id == uuid.Nil {
			return nil
		}
		assetIDs[string(artifact)] = *id
	}

	outcome, err := orchestrator.Next(job.Status, orchestrator.TriggerAllAssetsReady, job)
	if err != nil {
		return err
	}
	ok, err := jc.UpdateJob(map[string]interface{}{
		"status":       outcome.To,
		"progress":     100,
		"current_step": "completed",
		"completed_at": jc.Now(),
	})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	jc.Log.Info("Job completed", "job_id", job.ID, "assets", len(assetIDs))
	return jc.Emit(events.GenerationCompleted{JobID: job.ID, AssetIDs: assetIDs})
}
