// Package http is the thin control surface for the ingestion engine
// (SPEC_FULL §6): start/inspect collections, manage schedules, and test
// supplier connectivity. It holds no business logic of its own — every
// handler delegates straight to the Collection Orchestrator, the
// Scheduler, or a repository.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
	pkghttp "github.com/sunwoo0067/wholesale-ingest/pkg/http"
	"github.com/sunwoo0067/wholesale-ingest/pkg/logger"
	"github.com/sunwoo0067/wholesale-ingest/pkg/validator"
)

// CollectionStarter is the subset of the Collection Orchestrator the
// handler depends on; satisfied by *orchestrator.Orchestrator.
type CollectionStarter interface {
	StartCollection(ctx context.Context, supplierTag string, mode domain.CollectionMode, filters domain.Filters, maxProducts int) (*domain.CollectionJob, error)
}

// JobStore is the read-side for get_collection_status / list_sync_status;
// satisfied by postgres.JobRepository.
type JobStore interface {
	FindByID(ctx context.Context, jobID string) (*domain.CollectionJob, error)
	ListRecent(ctx context.Context, supplierTag string, limit int) ([]*domain.CollectionJob, error)
}

// ScheduleStore is the schedule CRUD surface; satisfied by
// postgres.ScheduleRepository.
type ScheduleStore interface {
	Save(ctx context.Context, s *domain.Schedule) error
	FindByID(ctx context.Context, scheduleID string) (*domain.Schedule, error)
}

// ScheduleRegistrar lets the handler push a created/updated/paused/resumed
// schedule into the live cron runner without restarting the process;
// satisfied by *scheduler.Scheduler.
type ScheduleRegistrar interface {
	Register(sched *domain.Schedule) error
}

// AdapterFactory builds one Capability instance for a supplier, used only
// by TestConnection here (the Orchestrator holds its own copy for runs).
type AdapterFactory func(ctx context.Context, supplierTag string) (adapter.Capability, error)

// IDGenerator produces a new unique identifier for jobs and schedules.
type IDGenerator func() string

// Handler implements the ingestion control surface.
type Handler struct {
	orchestrator CollectionStarter
	jobs         JobStore
	schedules    ScheduleStore
	registrar    ScheduleRegistrar
	adapters     AdapterFactory
	newID        IDGenerator
	validate     *validator.Validator
	log          *logger.Logger
}

// New builds a Handler.
func New(
	orchestrator CollectionStarter,
	jobs JobStore,
	schedules ScheduleStore,
	registrar ScheduleRegistrar,
	adapters AdapterFactory,
	newID IDGenerator,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		jobs:         jobs,
		schedules:    schedules,
		registrar:    registrar,
		adapters:     adapters,
		newID:        newID,
		validate:     validator.New(),
		log:          logger.Get().WithField("component", "ingestion_http"),
	}
}

// RegisterRoutes mounts the control surface under /api/v1/ingestion.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/ingestion", func(r chi.Router) {
		r.Post("/suppliers/{supplier_tag}/collections", h.StartCollection)
		r.Get("/collections/{job_id}", h.GetCollectionStatus)
		r.Get("/suppliers/{supplier_tag}/collections", h.ListSyncStatus)
		r.Post("/suppliers/{supplier_tag}/test_connection", h.TestConnection)

		r.Post("/schedules", h.CreateSchedule)
		r.Put("/schedules/{schedule_id}", h.UpdateSchedule)
		r.Post("/schedules/{schedule_id}/pause", h.PauseSchedule)
		r.Post("/schedules/{schedule_id}/resume", h.ResumeSchedule)
	})
}

type startCollectionRequest struct {
	Mode        string         `json:"mode" validate:"required,oneof=all recent category updated new"`
	Filters     filtersPayload `json:"filters"`
	MaxProducts int            `json:"max_products" validate:"gte=0"`
}

type filtersPayload struct {
	DateFrom        *time.Time `json:"date_from"`
	DateTo          *time.Time `json:"date_to"`
	PriceMin        *int64     `json:"price_min"`
	PriceMax        *int64     `json:"price_max"`
	StockOnly       *bool      `json:"stock_only"`
	Categories      []string   `json:"categories"`
	Keywords        []string   `json:"keywords"`
	ExcludeKeywords []string   `json:"exclude_keywords"`
	Expression      string     `json:"expression"`
}

func (p filtersPayload) toDomain() domain.Filters {
	f := domain.DefaultFilters()
	if p.StockOnly != nil {
		f.StockOnly = *p.StockOnly
	}
	f.DateFrom = p.DateFrom
	f.DateTo = p.DateTo
	f.PriceMin = p.PriceMin
	f.PriceMax = p.PriceMax
	f.Categories = p.Categories
	f.Keywords = p.Keywords
	f.ExcludeKeywords = p.ExcludeKeywords
	f.Expression = p.Expression
	return f
}

// StartCollection handles `start_collection(supplier_tag, mode, filters, max_products)`.
func (h *Handler) StartCollection(w http.ResponseWriter, r *http.Request) {
	supplierTag := chi.URLParam(r, "supplier_tag")

	var req startCollectionRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.RespondError(w, err)
		return
	}
	if err := h.validate.Validate(req); err != nil {
		pkghttp.RespondError(w, err)
		return
	}

	job, err := h.orchestrator.StartCollection(r.Context(), supplierTag, domain.CollectionMode(req.Mode), req.Filters.toDomain(), req.MaxProducts)
	if err != nil {
		h.log.WithError(err).WithField("supplier_tag", supplierTag).Error("failed to start collection")
		pkghttp.RespondError(w, err)
		return
	}

	pkghttp.RespondJSON(w, http.StatusAccepted, jobView(job))
}

// GetCollectionStatus handles `get_collection_status(job_id)`.
func (h *Handler) GetCollectionStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, err := h.jobs.FindByID(r.Context(), jobID)
	if err != nil {
		h.log.WithError(err).WithField("job_id", jobID).Error("failed to load collection status")
		pkghttp.RespondError(w, err)
		return
	}
	if job == nil {
		pkghttp.RespondError(w, apperrors.NotFound("collection job"))
		return
	}

	pkghttp.RespondJSON(w, http.StatusOK, jobView(job))
}

// ListSyncStatus handles `list_sync_status(supplier_tag)`.
func (h *Handler) ListSyncStatus(w http.ResponseWriter, r *http.Request) {
	supplierTag := chi.URLParam(r, "supplier_tag")
	limit := pkghttp.GetQueryParamInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	jobs, err := h.jobs.ListRecent(r.Context(), supplierTag, limit)
	if err != nil {
		h.log.WithError(err).WithField("supplier_tag", supplierTag).Error("failed to list sync status")
		pkghttp.RespondError(w, err)
		return
	}

	views := make([]jobStatusView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView(job))
	}
	pkghttp.RespondJSON(w, http.StatusOK, views)
}

// TestConnection handles `test_connection(supplier_tag)`.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	supplierTag := chi.URLParam(r, "supplier_tag")

	capability, err := h.adapters(r.Context(), supplierTag)
	if err != nil {
		pkghttp.RespondError(w, err)
		return
	}

	result, err := capability.TestConnection(r.Context())
	if err != nil {
		pkghttp.RespondError(w, err)
		return
	}
	pkghttp.RespondJSON(w, http.StatusOK, result)
}

type createScheduleRequest struct {
	SupplierTag    string          `json:"supplier_tag" validate:"required"`
	Name           string          `json:"name" validate:"required"`
	CronExpression string          `json:"cron_expression" validate:"required"`
	Timezone       string          `json:"timezone"`
	Mode           string          `json:"mode" validate:"required,oneof=all recent category updated new"`
	Filters        filtersPayload  `json:"filters"`
	MaxProducts    int             `json:"max_products" validate:"gte=0"`
}

// CreateSchedule handles `create_schedule`.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.RespondError(w, err)
		return
	}
	if err := h.validate.Validate(req); err != nil {
		pkghttp.RespondError(w, err)
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}

	sched := domain.NewSchedule(h.newID(), req.SupplierTag, req.Name, req.CronExpression, req.Timezone, domain.CollectionMode(req.Mode), req.Filters.toDomain(), req.MaxProducts)
	if err := h.schedules.Save(r.Context(), sched); err != nil {
		pkghttp.RespondError(w, err)
		return
	}
	if err := h.registrar.Register(sched); err != nil {
		pkghttp.RespondError(w, apperrors.ValidationError(err.Error()))
		return
	}

	pkghttp.RespondJSON(w, http.StatusCreated, scheduleView(sched))
}

type updateScheduleRequest struct {
	Name           string         `json:"name"`
	CronExpression string         `json:"cron_expression"`
	Timezone       string         `json:"timezone"`
	Mode           string         `json:"mode"`
	Filters        filtersPayload `json:"filters"`
	MaxProducts    int            `json:"max_products"`
}

// UpdateSchedule handles `update_schedule`.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := chi.URLParam(r, "schedule_id")

	sched, err := h.schedules.FindByID(r.Context(), scheduleID)
	if err != nil {
		pkghttp.RespondError(w, err)
		return
	}
	if sched == nil {
		pkghttp.RespondError(w, apperrors.NotFound("schedule"))
		return
	}

	var req updateScheduleRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.RespondError(w, err)
		return
	}

	if req.Name != "" {
		sched.Name = req.Name
	}
	if req.CronExpression != "" {
		sched.CronExpression = req.CronExpression
	}
	if req.Timezone != "" {
		sched.Timezone = req.Timezone
	}
	if req.Mode != "" {
		sched.Mode = domain.CollectionMode(req.Mode)
	}
	if req.MaxProducts > 0 {
		sched.MaxProducts = req.MaxProducts
	}
	sched.Filters = req.Filters.toDomain()

	if err := h.schedules.Save(r.Context(), sched); err != nil {
		pkghttp.RespondError(w, err)
		return
	}
	if err := h.registrar.Register(sched); err != nil {
		pkghttp.RespondError(w, apperrors.ValidationError(err.Error()))
		return
	}

	pkghttp.RespondJSON(w, http.StatusOK, scheduleView(sched))
}

// PauseSchedule handles `pause_schedule`.
func (h *Handler) PauseSchedule(w http.ResponseWriter, r *http.Request) {
	h.toggleSchedule(w, r, func(s *domain.Schedule) { s.Pause() })
}

// ResumeSchedule handles `resume_schedule`.
func (h *Handler) ResumeSchedule(w http.ResponseWriter, r *http.Request) {
	h.toggleSchedule(w, r, func(s *domain.Schedule) { s.Resume() })
}

func (h *Handler) toggleSchedule(w http.ResponseWriter, r *http.Request, mutate func(*domain.Schedule)) {
	scheduleID := chi.URLParam(r, "schedule_id")

	sched, err := h.schedules.FindByID(r.Context(), scheduleID)
	if err != nil {
		pkghttp.RespondError(w, err)
		return
	}
	if sched == nil {
		pkghttp.RespondError(w, apperrors.NotFound("schedule"))
		return
	}

	mutate(sched)

	if err := h.schedules.Save(r.Context(), sched); err != nil {
		pkghttp.RespondError(w, err)
		return
	}
	if err := h.registrar.Register(sched); err != nil {
		pkghttp.RespondError(w, apperrors.ValidationError(err.Error()))
		return
	}

	pkghttp.RespondJSON(w, http.StatusOK, scheduleView(sched))
}

type jobStatusView struct {
	JobID             string    `json:"job_id"`
	SupplierTag       string    `json:"supplier_tag"`
	Mode              string    `json:"mode"`
	State             string    `json:"state"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	ProductsFound     int       `json:"products_found"`
	ProductsCollected int       `json:"products_collected"`
	ProductsUpdated   int       `json:"products_updated"`
	ProductsFailed    int       `json:"products_failed"`
	ProductsSkipped   int       `json:"products_skipped"`
	LastError         string    `json:"last_error,omitempty"`
}

func jobView(job *domain.CollectionJob) jobStatusView {
	return jobStatusView{
		JobID:             job.JobID,
		SupplierTag:       job.SupplierTag,
		Mode:              string(job.Mode),
		State:             string(job.State),
		StartedAt:         job.StartedAt,
		FinishedAt:        job.FinishedAt,
		ProductsFound:     job.ProductsFound,
		ProductsCollected: job.ProductsCollected,
		ProductsUpdated:   job.ProductsUpdated,
		ProductsFailed:    job.ProductsFailed,
		ProductsSkipped:   job.ProductsSkipped,
		LastError:         job.LastError(),
	}
}

type scheduleStatusView struct {
	ScheduleID     string     `json:"schedule_id"`
	SupplierTag    string     `json:"supplier_tag"`
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression"`
	Timezone       string     `json:"timezone"`
	Mode           string     `json:"mode"`
	MaxProducts    int        `json:"max_products"`
	Active         bool       `json:"active"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	TotalRuns      int        `json:"total_runs"`
	SuccessfulRuns int        `json:"successful_runs"`
	FailedRuns     int        `json:"failed_runs"`
	SkippedRuns    int        `json:"skipped_runs"`
	LastError      string     `json:"last_error,omitempty"`
}

func scheduleView(s *domain.Schedule) scheduleStatusView {
	return scheduleStatusView{
		ScheduleID:     s.ScheduleID,
		SupplierTag:    s.SupplierTag,
		Name:           s.Name,
		CronExpression: s.CronExpression,
		Timezone:       s.Timezone,
		Mode:           string(s.Mode),
		MaxProducts:    s.MaxProducts,
		Active:         s.Active,
		LastRunAt:      s.LastRunAt,
		NextRunAt:      s.NextRunAt,
		TotalRuns:      s.TotalRuns,
		SuccessfulRuns: s.SuccessfulRuns,
		FailedRuns:     s.FailedRuns,
		SkippedRuns:    s.SkippedRuns,
		LastError:      s.LastError,
	}
}
