package domain

import "time"

// CollectionMode is the intent of a collection run (spec §3, glossary).
type CollectionMode string

const (
	ModeAll      CollectionMode = "all"
	ModeRecent   CollectionMode = "recent"
	ModeCategory CollectionMode = "category"
	ModeUpdated  CollectionMode = "updated"
	ModeNew      CollectionMode = "new"
)

// JobState is the lifecycle state of a CollectionJob (spec §3).
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// maxJobErrors bounds the per-job error list (spec §4.5, §7: "bounded list").
const maxJobErrors = 100

// JobError is one structured entry in a job's bounded error list.
type JobError struct {
	OccurredAt time.Time
	Code       string
	Message    string
	Detail     string
}

// Filters is the conjunctive filter set a collection run is configured
// with (spec §4.4).
type Filters struct {
	DateFrom         *time.Time
	DateTo           *time.Time
	PriceMin         *int64
	PriceMax         *int64
	StockOnly        bool
	Categories       []string
	Keywords         []string
	ExcludeKeywords  []string
	Expression       string // optional expr-lang predicate, see SPEC_FULL §4.4
}

// DefaultFilters returns the filter defaults named in spec §4.4 (stock_only
// defaults to true; everything else is unset/unbounded).
func DefaultFilters() Filters {
	return Filters{StockOnly: true}
}

// CollectionJob is a single run of the pipeline (spec §3). Jobs are
// append-only; once a job reaches a terminal state it is immutable.
type CollectionJob struct {
	JobID             string
	SupplierTag       string
	Mode              CollectionMode
	Filters           Filters
	MaxProducts       int
	State             JobState
	StartedAt         time.Time
	FinishedAt        *time.Time
	ProductsFound     int
	ProductsCollected int
	ProductsUpdated   int
	ProductsFailed    int
	ProductsSkipped   int
	Errors            []JobError
}

// NewCollectionJob creates a job in the Pending state.
func NewCollectionJob(jobID, supplierTag string, mode CollectionMode, filters Filters, maxProducts int) *CollectionJob {
	return &CollectionJob{
		JobID:       jobID,
		SupplierTag: supplierTag,
		Mode:        mode,
		Filters:     filters,
		MaxProducts: maxProducts,
		State:       JobPending,
	}
}

// Start transitions the job to Running.
func (j *CollectionJob) Start(now time.Time) {
	j.State = JobRunning
	j.StartedAt = now
}

// RecordError appends a structured error, evicting the oldest entry once
// the bounded list is full (spec §4.5, §7).
func (j *CollectionJob) RecordError(code, message, detail string, at time.Time) {
	j.Errors = append(j.Errors, JobError{OccurredAt: at, Code: code, Message: message, Detail: detail})
	if len(j.Errors) > maxJobErrors {
		j.Errors = j.Errors[len(j.Errors)-maxJobErrors:]
	}
}

// LastError returns the single-line projection operators see (spec §7).
func (j *CollectionJob) LastError() string {
	if len(j.Errors) == 0 {
		return ""
	}
	return j.Errors[len(j.Errors)-1].Message
}

// Complete transitions the job to Completed.
func (j *CollectionJob) Complete(now time.Time) {
	j.State = JobCompleted
	j.FinishedAt = &now
}

// Cancel transitions the job to Cancelled.
func (j *CollectionJob) Cancel(now time.Time) {
	j.State = JobCancelled
	j.FinishedAt = &now
}

// Fail transitions the job to Failed, recording the terminal error.
func (j *CollectionJob) Fail(now time.Time, code, message string) {
	j.RecordError(code, message, "", now)
	j.State = JobFailed
	j.FinishedAt = &now
}

// Duration returns the job's wall-clock run time; zero if not yet started.
func (j *CollectionJob) Duration() time.Duration {
	if j.StartedAt.IsZero() {
		return 0
	}
	end := time.Now()
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(j.StartedAt)
}

// Invariant check for testable property "monotone counters" (spec §8):
// products_collected + products_failed <= products_found at every tick.
func (j *CollectionJob) CountersConsistent() bool {
	return j.ProductsCollected+j.ProductsFailed <= j.ProductsFound
}
