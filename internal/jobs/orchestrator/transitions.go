package orchestrator

import (
	"fmt"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// Trigger names the condition a phase handler observed. The pipeline never
// picks its own next status: it reports a trigger and applies whatever the
// table says, which keeps every branch in one auditable place.
type Trigger string

const (
	TriggerPublicDataDone     Trigger = "public_data_done"
	TriggerUploadsReceived    Trigger = "uploads_received"
	TriggerUploadsProcessed   Trigger = "uploads_processed"
	TriggerQuestionnaireBuilt Trigger = "questionnaire_built"
	TriggerAnswersStarted     Trigger = "answers_started"
	TriggerQuestionnaireDone  Trigger = "questionnaire_done"
	TriggerConsolidated       Trigger = "consolidated"
	TriggerTeaserStarted      Trigger = "teaser_started"
	TriggerIMStarted          Trigger = "im_started"
	TriggerPitchDeckStarted   Trigger = "pitch_deck_started"
	TriggerAllAssetsReady     Trigger = "all_assets_ready"
	TriggerCancel             Trigger = "cancel"
	TriggerFail               Trigger = "fail"
)

// Outcome is the table's right-hand side: the status to move to and the
// event to emit next ("" when the pipeline simply terminates and waits).
type Outcome struct {
	To   string
	Emit string
}

type rule struct {
	From    string
	Trigger Trigger
	// When guards conditional rows; nil means unconditional. The single
	// guarded branch in this pipeline is the document-dependency check
	// after public data collection.
	When    func(job *types.GenerationJob) bool
	Outcome Outcome
}

func requiresDocuments(job *types.GenerationJob) bool { return job != nil && job.RequiresDocuments() }
func noDocumentsNeeded(job *types.GenerationJob) bool { return job == nil || !job.RequiresDocuments() }

var generatingStatuses = []string{
	types.StatusConsolidating,
	types.StatusGeneratingTeaser,
	types.StatusGeneratingIM,
	types.StatusGeneratingPitchDeck,
}

var table = buildTable()

func buildTable() []rule {
	rules := []rule{
		{From: types.StatusCollectingData, Trigger: TriggerPublicDataDone, Outcome: Outcome{To: types.StatusPublicDataCollected}},

		// The branch: any requested artifact that depends on financial
		// documents routes through the upload phase; otherwise the
		// questionnaire is requested immediately.
		{From: types.StatusPublicDataCollected, Trigger: TriggerPublicDataDone, When: requiresDocuments,
			Outcome: Outcome{To: types.StatusAwaitingUploads, Emit: events.EventUploadsRequired}},
		{From: types.StatusPublicDataCollected, Trigger: TriggerPublicDataDone, When: noDocumentsNeeded,
			Outcome: Outcome{To: types.StatusPublicDataCollected, Emit: events.EventQuestionnaireRequested}},

		{From: types.StatusAwaitingUploads, Trigger: TriggerUploadsReceived, Outcome: Outcome{To: types.StatusProcessingUploads}},
		{From: types.StatusProcessingUploads, Trigger: TriggerUploadsProcessed,
			Outcome: Outcome{To: types.StatusProcessingUploads, Emit: events.EventQuestionnaireRequested}},

		{From: types.StatusPublicDataCollected, Trigger: TriggerQuestionnaireBuilt,
			Outcome: Outcome{To: types.StatusQuestionnairePending, Emit: events.EventQuestionnaireReady}},
		{From: types.StatusProcessingUploads, Trigger: TriggerQuestionnaireBuilt,
			Outcome: Outcome{To: types.StatusQuestionnairePending, Emit: events.EventQuestionnaireReady}},

		{From: types.StatusQuestionnairePending, Trigger: TriggerAnswersStarted, Outcome: Outcome{To: types.StatusQuestionnaireInProgress}},

		{From: types.StatusQuestionnairePending, Trigger: TriggerQuestionnaireDone,
			Outcome: Outcome{To: types.StatusConsolidating, Emit: events.EventConsolidationRequested}},
		{From: types.StatusQuestionnaireInProgress, Trigger: TriggerQuestionnaireDone,
			Outcome: Outcome{To: types.StatusConsolidating, Emit: events.EventConsolidationRequested}},

		{From: types.StatusConsolidating, Trigger: TriggerConsolidated,
			Outcome: Outcome{To: types.StatusConsolidating, Emit: events.EventArtifactGenerate}},
	}

	// The three artifact generations run in parallel, so each start trigger
	// must be accepted from consolidating and from any sibling's status.
	for _, from := range generatingStatuses {
		rules = append(rules,
			rule{From: from, Trigger: TriggerTeaserStarted, Outcome: Outcome{To: types.StatusGeneratingTeaser}},
			rule{From: from, Trigger: TriggerIMStarted, Outcome: Outcome{To: types.StatusGeneratingIM}},
			rule{From: from, Trigger: TriggerPitchDeckStarted, Outcome: Outcome{To: types.StatusGeneratingPitchDeck}},
			rule{From: from, Trigger: TriggerAllAssetsReady, Outcome: Outcome{To: types.StatusCompleted, Emit: events.EventGenerationCompleted}},
		)
	}

	// Cancel and fail are reachable from every non-terminal status.
	for _, from := range nonTerminalStatuses() {
		rules = append(rules,
			rule{From: from, Trigger: TriggerCancel, Outcome: Outcome{To: types.StatusCancelled}},
			rule{From: from, Trigger: TriggerFail, Outcome: Outcome{To: types.StatusFailed, Emit: events.EventGenerationFailed}},
		)
	}
	return rules
}

func nonTerminalStatuses() []string {
	return []string{
		types.StatusCollectingData,
		types.StatusPublicDataCollected,
		types.StatusAwaitingUploads,
		types.StatusProcessingUploads,
		types.StatusQuestionnairePending,
		types.StatusQuestionnaireInProgress,
		types.StatusConsolidating,
		types.StatusGeneratingTeaser,
		types.StatusGeneratingIM,
		types.StatusGeneratingPitchDeck,
	}
}

// Next resolves (current status × trigger) against the table. The job row is
// consulted only by guarded rows. Unknown combinations, including anything
// out of a terminal status, return an error.
func Next(from string, trigger Trigger, job *types.GenerationJob) (Outcome, error) {
	if types.IsTerminalStatus(from) {
		return Outcome{}, fmt.Errorf("no transition out of terminal status %q", from)
	}
	for _, r := range table {
		if r.From != from || r.Trigger != trigger {
			continue
		}
		if r.When != nil && !r.When(job) {
			continue
		}
		return r.Outcome, nil
	}
	return Outcome{}, fmt.Errorf("no transition for status %q on trigger %q", from, trigger)
}
