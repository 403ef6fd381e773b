package jobwatch

const (
	WorkflowName = "generation_job_watch"
	ActivityTick = "generation_job_tick"
	SignalResume = "job_resume"
)

// TickResult is the watchdog's snapshot of a job between two polls.
type TickResult struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress,omitempty"`
	// Waiting is true while the job sits in a user-driven phase (uploads,
	// questionnaire); the workflow switches to a long poll and listens for
	// the resume signal instead of burning ticks.
	Waiting bool `json:"waiting"`
	// Stalled is true when a non-waiting job has not moved past the stall
	// threshold; the activity has already nudged the event workers.
	Stalled bool `json:"stalled"`
}

func WorkflowID(jobID string) string { return "genjob:" + jobID }
