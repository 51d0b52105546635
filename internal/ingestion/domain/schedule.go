package domain

import "time"

// Schedule drives one supplier's recurring collection (spec §3, §4.8).
type Schedule struct {
	ScheduleID     string
	SupplierTag    string
	Name           string
	CronExpression string
	Timezone       string
	Mode           CollectionMode
	Filters        Filters
	MaxProducts    int
	Active         bool
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	SkippedRuns    int
	LastError      string
}

// NewSchedule creates an active schedule.
func NewSchedule(scheduleID, supplierTag, name, cronExpr, timezone string, mode CollectionMode, filters Filters, maxProducts int) *Schedule {
	return &Schedule{
		ScheduleID:     scheduleID,
		SupplierTag:    supplierTag,
		Name:           name,
		CronExpression: cronExpr,
		Timezone:       timezone,
		Mode:           mode,
		Filters:        filters,
		MaxProducts:    maxProducts,
		Active:         true,
	}
}

// Pause deactivates the schedule; the Scheduler stops triggering it.
func (s *Schedule) Pause() {
	s.Active = false
}

// Resume reactivates a paused schedule.
func (s *Schedule) Resume() {
	s.Active = true
}

// RecordTrigger updates run statistics after an attempted trigger. skipped
// is true when single-flight rejected the attempt (spec §4.8, §8).
func (s *Schedule) RecordTrigger(now time.Time, succeeded, skipped bool, lastErr string) {
	s.LastRunAt = &now
	if skipped {
		s.SkippedRuns++
		return
	}
	s.TotalRuns++
	if succeeded {
		s.SuccessfulRuns++
		s.LastError = ""
	} else {
		s.FailedRuns++
		s.LastError = lastErr
	}
}
