// Package scheduler drives recurring collection jobs from cron expressions
// (SPEC_FULL §4.8), grounded on the StartCronJobs pattern of a sibling
// example repo's materialized-view refresh worker: one process-wide
// *cron.Cron, AddFunc per registered Schedule, Start/Stop owned by the
// caller.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/cache"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
	"github.com/sunwoo0067/wholesale-ingest/pkg/logger"
)

// ScheduleStore persists Schedule aggregates; satisfied by the
// postgres schedule repository.
type ScheduleStore interface {
	ListActive(ctx context.Context) ([]*domain.Schedule, error)
	Save(ctx context.Context, s *domain.Schedule) error
}

// Trigger starts one collection run for a schedule and reports whether it
// actually ran (false means single-flight rejected it). Bound to the
// Collection Orchestrator's StartCollection at wiring time.
type Trigger func(ctx context.Context, supplierTag string, mode domain.CollectionMode, filters domain.Filters, maxProducts int) (ran bool, err error)

// Scheduler is the process-wide cron runner. Only one process in a
// multi-instance deployment should hold the leader lease at a time; every
// instance still loads and evaluates schedules, but each firing first tries
// to take the lease and skips the trigger when it is held elsewhere (spec §4.8: "a distributed deployment
// elects a single leader instance to own cron dispatch").
type Scheduler struct {
	store   ScheduleStore
	trigger Trigger
	lease   *LeaderLease
	log     *logger.Logger

	mu  sync.Mutex
	cron *cron.Cron
	entries map[string]cron.EntryID // scheduleID -> cron entry
}

// New builds a Scheduler. lease may be nil to always act as leader (single
// instance / development mode).
func New(store ScheduleStore, trigger Trigger, lease *LeaderLease) *Scheduler {
	return &Scheduler{
		store:   store,
		trigger: trigger,
		lease:   lease,
		log:     logger.Get().WithField("component", "scheduler"),
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads all active schedules, registers each on its cron expression,
// in its own timezone, and starts the scheduler loop. The returned error
// reports a failure to load the schedules; a schedule whose cron expression
// or timezone does not parse is logged and skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron = cron.New(cron.WithLocation(time.UTC))

	schedules, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: failed to load active schedules: %w", err)
	}
	for _, sched := range schedules {
		if err := s.register(sched); err != nil {
			s.log.WithError(err).WithField("schedule_id", sched.ScheduleID).Error("failed to register schedule, skipping")
			continue
		}
	}

	s.cron.Start()
	s.log.WithField("count", len(schedules)).Info("scheduler started")
	return nil
}

// Stop waits for any in-flight trigger to finish before returning.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Register adds or replaces one schedule's cron entry; used when a
// schedule is created, updated, paused, or resumed after Start.
func (s *Scheduler) Register(sched *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[sched.ScheduleID]; ok {
		s.cron.Remove(id)
		delete(s.entries, sched.ScheduleID)
	}
	if !sched.Active {
		return nil
	}
	return s.register(sched)
}

// register assumes s.mu is held.
func (s *Scheduler) register(sched *domain.Schedule) error {
	spec := sched.CronExpression
	if sched.Timezone != "" {
		spec = "CRON_TZ=" + sched.Timezone + " " + spec
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.fire(sched)
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q for schedule %s: %w", sched.CronExpression, sched.ScheduleID, err)
	}
	s.entries[sched.ScheduleID] = id
	return nil
}

func (s *Scheduler) fire(sched *domain.Schedule) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	log := s.log.WithField("schedule_id", sched.ScheduleID).WithField("supplier_tag", sched.SupplierTag)

	if s.lease != nil {
		held, err := s.lease.Acquire(ctx)
		if err != nil {
			log.WithError(err).Warn("leader lease check failed, skipping trigger")
			return
		}
		if !held {
			log.Debug("not leader, skipping trigger")
			return
		}
		defer s.lease.Release(ctx)
	}

	ran, err := s.trigger(ctx, sched.SupplierTag, sched.Mode, sched.Filters, sched.MaxProducts)
	now := time.Now().UTC()

	if !ran && err == nil {
		sched.RecordTrigger(now, false, true, "")
		log.Info("schedule trigger skipped: collection already running")
	} else if err != nil {
		sched.RecordTrigger(now, false, false, err.Error())
		log.WithError(err).Error("scheduled collection failed")
	} else {
		sched.RecordTrigger(now, true, false, "")
		log.Info("scheduled collection completed")
	}

	if saveErr := s.store.Save(context.Background(), sched); saveErr != nil {
		log.WithError(saveErr).Error("failed to persist schedule run statistics")
	}
}

// LeaderLease is a Redis SET-NX/PX mutual-exclusion lock so exactly one
// Scheduler instance dispatches a given tick in a multi-replica deployment
// (SPEC_FULL §4.8, §9). The lease is re-acquired on every tick rather than
// held continuously, so a crashed leader self-heals after TTL expiry
// without an explicit failover step.
type LeaderLease struct {
	redis *cache.RedisCache
	key   string
	ttl   time.Duration
	token string
}

// NewLeaderLease builds a lease identified by key, held for ttl per
// acquisition. token should be unique per process (e.g. a hostname+pid
// string) so Release only clears a lease this process still owns.
func NewLeaderLease(redisCache *cache.RedisCache, key string, ttl time.Duration, token string) *LeaderLease {
	return &LeaderLease{redis: redisCache, key: key, ttl: ttl, token: token}
}

// Acquire attempts to take the lease, returning true if this process now
// holds it.
func (l *LeaderLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.redis.GetClient().SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, apperrors.TransientIO("redis", err)
	}
	return ok, nil
}

// Release clears the lease iff it is still held by this process's token,
// implemented as a Lua compare-and-delete to avoid releasing a lease a
// different process has since acquired after TTL expiry.
func (l *LeaderLease) Release(ctx context.Context) {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`
	l.redis.GetClient().Eval(ctx, script, []string{l.key}, l.token)
}
