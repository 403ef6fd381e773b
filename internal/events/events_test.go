package events

import (
	"testing"

	"github.com/google/uuid"

	"github.com/dealforge/dealforge-backend/internal/types"
)

func TestDecode_RoundTrip(t *testing.T) {
	jobID := uuid.New()
	raw := []byte(`{"job_id":"` + jobID.String() + `","artifact_type":"teaser"}`)

	p, err := Decode(EventArtifactGenerate, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gen, ok := p.(*ArtifactGenerate)
	if !ok {
		t.Fatalf("expected *ArtifactGenerate, got %T", p)
	}
	if gen.JobID != jobID {
		t.Fatalf("job id mismatch: %s", gen.JobID)
	}
	if gen.ArtifactType != types.ArtifactTeaser {
		t.Fatalf("artifact type mismatch: %s", gen.ArtifactType)
	}
}

func TestDecode_UnknownEventName(t *testing.T) {
	if _, err := Decode("materials.job.exploded", []byte(`{}`)); err == nil {
		t.Fatalf("expected error for unknown event name")
	}
}

func TestDecode_RejectsInvalidPayload(t *testing.T) {
	// Valid JSON, missing job_id.
	if _, err := Decode(EventJobCreated, []byte(`{}`)); err == nil {
		t.Fatalf("expected validation error")
	}
	// Invalid artifact type.
	raw := []byte(`{"job_id":"` + uuid.NewString() + `","artifact_type":"brochure"}`)
	if _, err := Decode(EventArtifactGenerate, raw); err == nil {
		t.Fatalf("expected validation error for bad artifact type")
	}
}

func TestDecode_UploadsCompletedRequiresDocuments(t *testing.T) {
	raw := []byte(`{"job_id":"` + uuid.NewString() + `","document_ids":[]}`)
	if _, err := Decode(EventUploadsCompleted, raw); err == nil {
		t.Fatalf("expected error for empty document_ids")
	}
}
