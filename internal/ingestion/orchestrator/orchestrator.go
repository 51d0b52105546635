// Package orchestrator implements the Collection Orchestrator (SPEC_FULL
// §4.7): it wires one supplier's Capability through the Filter and
// Normalizer stages into the Persistence Gateway, enforces single-flight
// per supplier, and publishes job lifecycle events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/filter"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/normalize"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/persistence/postgres"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
	"github.com/sunwoo0067/wholesale-ingest/pkg/event"
	"github.com/sunwoo0067/wholesale-ingest/pkg/logger"
	"github.com/sunwoo0067/wholesale-ingest/pkg/metrics"
)

// ProductStore is the subset of the Persistence Gateway the orchestrator
// drives directly.
type ProductStore interface {
	Upsert(ctx context.Context, p *domain.CanonicalProduct) (postgres.UpsertResult, error)
}

// JobStore persists CollectionJob state at start, checkpoint, and completion.
type JobStore interface {
	Save(ctx context.Context, job *domain.CollectionJob) error
}

// AdapterFactory builds a fresh Capability instance for one job run. A new
// instance per job keeps adapter state (auth tokens) scoped to a single run, per spec §4.1's "never shared between concurrent
// jobs" rule.
type AdapterFactory func(ctx context.Context, supplierTag string) (adapter.Capability, error)

// Orchestrator runs at most one CollectionJob per supplier at a time
// (spec §4.7, §8 "single-flight").
type Orchestrator struct {
	adapters   AdapterFactory
	products   ProductStore
	jobs       JobStore
	fieldMaps  map[string]normalize.FieldMap
	bus        event.Bus
	log        *logger.Logger

	running sync.Map // supplierTag -> struct{}{} while a job is in flight
}

// New builds an Orchestrator.
func New(adapters AdapterFactory, products ProductStore, jobs JobStore, fieldMaps map[string]normalize.FieldMap, bus event.Bus) *Orchestrator {
	return &Orchestrator{
		adapters:  adapters,
		products:  products,
		jobs:      jobs,
		fieldMaps: fieldMaps,
		bus:       bus,
		log:       logger.Get().WithField("component", "orchestrator"),
	}
}

// StartCollection begins one collection run for supplierTag, or returns
// AlreadyRunning if one is already in flight for that supplier (spec §7,
// §8). The run itself proceeds asynchronously; callers poll job state via
// JobStore/get_collection_status.
func (o *Orchestrator) StartCollection(ctx context.Context, supplierTag string, mode domain.CollectionMode, filters domain.Filters, maxProducts int) (*domain.CollectionJob, error) {
	if _, alreadyRunning := o.running.LoadOrStore(supplierTag, struct{}{}); alreadyRunning {
		metrics.Ingestion.JobsSkippedRunning.WithLabelValues(supplierTag).Inc()
		return nil, apperrors.AlreadyRunning(supplierTag)
	}

	job := domain.NewCollectionJob(uuid.New().String(), supplierTag, mode, filters, maxProducts)
	job.Start(time.Now().UTC())
	if err := o.jobs.Save(ctx, job); err != nil {
		o.running.Delete(supplierTag)
		return nil, err
	}

	metrics.Ingestion.JobsStarted.WithLabelValues(supplierTag, string(mode)).Inc()
	o.publish(ctx, newJobEvent(EventJobStarted, job.JobID, supplierTag))

	go o.run(context.WithoutCancel(ctx), job)

	return job, nil
}

// run executes the full Adapter -> Filter -> Normalize -> Persist pipeline
// for one job and always releases the single-flight slot on return (spec
// §4.7, §5).
func (o *Orchestrator) run(ctx context.Context, job *domain.CollectionJob) {
	defer o.running.Delete(job.SupplierTag)

	start := time.Now()
	log := o.log.WithField("job_id", job.JobID).WithField("supplier_tag", job.SupplierTag)

	defer func() {
		metrics.Ingestion.JobDuration.WithLabelValues(job.SupplierTag).Observe(time.Since(start).Seconds())
	}()

	capability, err := o.adapters(ctx, job.SupplierTag)
	if err != nil {
		o.fail(ctx, job, "ADAPTER_INIT_FAILED", err)
		return
	}
	if err := capability.Authenticate(ctx); err != nil {
		o.fail(ctx, job, "AUTH_FAILED", err)
		return
	}

	f, err := filter.New(job.Filters)
	if err != nil {
		o.fail(ctx, job, "INVALID_FILTER", err)
		return
	}
	normalizer := normalize.New(o.fieldMaps)

	results := capability.Collect(ctx, job.Mode, job.Filters, job.MaxProducts)
	for res := range results {
		if res.Err != nil {
			job.RecordError("COLLECT_ERROR", res.Err.Error(), "", time.Now().UTC())
			job.ProductsFailed++
			metrics.Ingestion.RecordsFailed.WithLabelValues(job.SupplierTag, "collect").Inc()
			continue
		}
		job.ProductsFound++

		product, err := normalizer.Normalize(res.Record)
		if err != nil {
			job.RecordError("NORMALIZE_ERROR", err.Error(), "", time.Now().UTC())
			job.ProductsFailed++
			metrics.Ingestion.RecordsFailed.WithLabelValues(job.SupplierTag, "normalize").Inc()
			continue
		}
		product.Touch(time.Now().UTC())

		matched, err := f.Matches(product, job.Filters)
		if err != nil {
			job.RecordError("FILTER_ERROR", err.Error(), "", time.Now().UTC())
			job.ProductsFailed++
			continue
		}
		if !matched {
			job.ProductsSkipped++
			continue
		}

		upsertResult, err := o.products.Upsert(ctx, product)
		if err != nil {
			job.RecordError("PERSIST_ERROR", err.Error(), "", time.Now().UTC())
			job.ProductsFailed++
			metrics.Ingestion.RecordsFailed.WithLabelValues(job.SupplierTag, "persist").Inc()
			continue
		}

		op := "update"
		if upsertResult.Inserted {
			op = "insert"
			job.ProductsCollected++
		} else {
			job.ProductsUpdated++
		}
		metrics.Ingestion.ProductsUpserted.WithLabelValues(job.SupplierTag, op).Inc()

		if job.ProductsFound%100 == 0 {
			if err := o.jobs.Save(ctx, job); err != nil {
				log.WithError(err).Warn("checkpoint save failed")
			}
		}
	}

	if err := ctx.Err(); err != nil {
		job.Cancel(time.Now().UTC())
		o.jobs.Save(ctx, job)
		o.publish(ctx, newJobEvent(EventJobFailed, job.JobID, job.SupplierTag))
		return
	}

	job.Complete(time.Now().UTC())
	if err := o.jobs.Save(ctx, job); err != nil {
		log.WithError(err).Error("final job save failed")
	}
	metrics.Ingestion.JobsCompleted.WithLabelValues(job.SupplierTag).Inc()
	o.publish(ctx, newJobEvent(EventJobCompleted, job.JobID, job.SupplierTag))
	log.WithField("products_collected", job.ProductsCollected).Info("collection job completed")
}

// Trigger adapts StartCollection to the scheduler.Trigger shape: it starts
// a run and reports whether one was actually started (false, nil when a
// run for this supplier was already in flight and was skipped rather than
// failed — spec §4.7 "a missed tick due to an overrun is not an error").
func (o *Orchestrator) Trigger(ctx context.Context, supplierTag string, mode domain.CollectionMode, filters domain.Filters, maxProducts int) (bool, error) {
	_, err := o.StartCollection(ctx, supplierTag, mode, filters, maxProducts)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeSingleFlight {
			o.publish(ctx, newJobEvent(EventJobSkipped, "", supplierTag))
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) fail(ctx context.Context, job *domain.CollectionJob, code string, cause error) {
	job.Fail(time.Now().UTC(), code, cause.Error())
	if err := o.jobs.Save(ctx, job); err != nil {
		o.log.WithError(err).WithField("job_id", job.JobID).Error("failed to persist failed job state")
	}
	metrics.Ingestion.JobsFailed.WithLabelValues(job.SupplierTag).Inc()
	o.publish(ctx, newJobEvent(EventJobFailed, job.JobID, job.SupplierTag))
}

func (o *Orchestrator) publish(ctx context.Context, evt JobEvent) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, evt); err != nil {
		o.log.WithError(err).Warn(fmt.Sprintf("failed to publish %s", evt.EventType()))
	}
}
