package orchestrator

import "github.com/sunwoo0067/wholesale-ingest/pkg/event"

// Event type names published to pkg/event.Bus over the lifetime of one
// CollectionJob (SPEC_FULL §4.7).
const (
	EventJobStarted   = "ingestion.job_started"
	EventJobCompleted = "ingestion.job_completed"
	EventJobFailed    = "ingestion.job_failed"
	EventJobSkipped   = "ingestion.job_skipped"
)

// JobEvent carries the job id and supplier tag common to every lifecycle
// event; handlers needing more detail load the job by id.
type JobEvent struct {
	event.BaseEvent
}

func newJobEvent(eventType, jobID, supplierTag string) JobEvent {
	return JobEvent{BaseEvent: event.NewBaseEvent(eventType, jobID, map[string]string{
		"job_id":       jobID,
		"supplier_tag": supplierTag,
	})}
}
