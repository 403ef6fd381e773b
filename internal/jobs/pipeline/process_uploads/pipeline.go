package process_uploads

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/jobs/orchestrator"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/services"
	"github.com/dealforge/dealforge-backend/internal/types"
)

type extractOutcome struct {
	DocumentID string  `json:"document_id"`
	Confidence float64 `json:"confidence"`
	Failed     bool    `json:"failed"`
}

// Run processes the uploaded document batch: download each file, extract the
// financial figures, persist one record per document. Documents are isolated
// from each other: a single bad file yields a zero-confidence failure record
// and the batch keeps going.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	payload, err := jc.DecodePayload()
	if err != nil {
		return err
	}
	uploads, ok := payload.(*events.UploadsCompleted)
	if !ok {
		return fmt.Errorf("unexpected payload %T", payload)
	}

	job, err := jc.Job()
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		jc.Log.Info("Job terminal, skipping upload processing", "job_id", job.ID, "status", job.Status)
		return nil
	}

	if err := jc.Step("mark_processing", nil, func(ctx context.Context) (any, error) {
		outcome, err := orchestrator.Next(types.StatusAwaitingUploads, orchestrator.TriggerUploadsReceived, job)
		if err != nil {
			// A retried delivery may find the job already past this
			// transition; that is not an error.
			if job.Status == types.StatusProcessingUploads {
				return nil, nil
			}
			return nil, err
		}
		_, err = jc.UpdateJob(map[string]interface{}{"status": outcome.To})
		return nil, err
	}); err != nil {
		return err
	}
	jc.Progress(35, "processing_uploads")

	docs, err := p.documents.GetByIDs(jc.Ctx, nil, uploads.DocumentIDs)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("none of the %d documents found", len(uploads.DocumentIDs))
	}

	for _, doc := range docs {
		doc := doc
		var outcome extractOutcome
		if err := jc.Step("extract_"+doc.ID.String(), &outcome, func(ctx context.Context) (any, error) {
			return p.extractOne(ctx, jc, doc)
		}); err != nil {
			return err
		}
		if outcome.Failed {
			jc.Log.Warn("Document extraction failed, recorded as zero-confidence",
				"job_id", job.ID, "document_id", doc.ID, "file", doc.FileName)
		}
		jc.Touch()
	}

	if err := jc.Step("mark_processed", nil, func(ctx context.Context) (any, error) {
		_, err := jc.UpdateJob(map[string]interface{}{
			"documents_uploaded":   true,
			"uploads_processed_at": jc.Now(),
		})
		return nil, err
	}); err != nil {
		return err
	}
	jc.Progress(45, "uploads_processed")

	return jc.Step("request_questionnaire", nil, func(ctx context.Context) (any, error) {
		outcome, err := orchestrator.Next(types.StatusProcessingUploads, orchestrator.TriggerUploadsProcessed, job)
		if err != nil {
			return nil, err
		}
		if outcome.Emit != events.EventQuestionnaireRequested {
			return nil, fmt.Errorf("unexpected outcome %+v", outcome)
		}
		return nil, jc.Emit(events.QuestionnaireRequested{JobID: job.ID, CompanyID: job.CompanyID})
	})
}

// extractOne never returns an extraction error: failures become a persisted
// zero-confidence record so the trail stays auditable. Only infrastructure
// errors (the record write itself) propagate.
func (p *Pipeline) extractOne(ctx context.Context, jc *jobrt.Context, doc *types.CompanyDocument) (extractOutcome, error) {
	record := &types.ExtractedFinancialRecord{
		JobID:      jc.JobID(),
		DocumentID: doc.ID,
		Method:     types.ExtractionMethodGeminiStructured,
	}

	result, extractErr := p.extract(ctx, doc)
	if extractErr != nil {
		record.Error = extractErr.Error()
	} else {
		fields, err := json.Marshal(result.Fields)
		if err != nil {
			return extractOutcome{}, fmt.Errorf("encode fields for %s: %w", doc.ID, err)
		}
		record.Fields = datatypes.JSON(fields)
		record.Confidence = result.Confidence
	}

	if _, err := p.extractions.Upsert(ctx, nil, record); err != nil {
		return extractOutcome{}, fmt.Errorf("store extraction for %s: %w", doc.ID, err)
	}
	return extractOutcome{
		DocumentID: doc.ID.String(),
		Confidence: record.Confidence,
		Failed:     extractErr != nil,
	}, nil
}

func (p *Pipeline) extract(ctx context.Context, doc *types.CompanyDocument) (*services.ExtractionResult, error) {
	data, err := p.store.ReadAll(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return p.ai.ExtractFinancials(ctx, doc.FileName, doc.ContentType, data)
}
