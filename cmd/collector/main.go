package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sunwoo0067/wholesale-ingest/config"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter"
	graphqladapter "github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter/graphql"
	restadapter "github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter/rest"
	xmladapter "github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter/xml"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/dedup"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/httpclient"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/normalize"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/orchestrator"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/persistence/postgres"
	ingestionhttp "github.com/sunwoo0067/wholesale-ingest/internal/ingestion/ports/http"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/scheduler"

	"github.com/sunwoo0067/wholesale-ingest/pkg/audit"
	"github.com/sunwoo0067/wholesale-ingest/pkg/cache"
	"github.com/sunwoo0067/wholesale-ingest/pkg/crypto"
	"github.com/sunwoo0067/wholesale-ingest/pkg/database"
	"github.com/sunwoo0067/wholesale-ingest/pkg/elasticsearch"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
	"github.com/sunwoo0067/wholesale-ingest/pkg/event"
	"github.com/sunwoo0067/wholesale-ingest/pkg/health"
	"github.com/sunwoo0067/wholesale-ingest/pkg/logger"
	"github.com/sunwoo0067/wholesale-ingest/pkg/metrics"
	"github.com/sunwoo0067/wholesale-ingest/pkg/middleware"
	"github.com/sunwoo0067/wholesale-ingest/pkg/notification"
	"github.com/sunwoo0067/wholesale-ingest/pkg/ratelimit"
	"github.com/sunwoo0067/wholesale-ingest/pkg/tracing"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.App.Environment, cfg.App.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()
	log.WithField("version", cfg.App.Version).Info("starting wholesale ingestion collector")

	db, err := database.New(context.Background(), database.Config{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Database:       cfg.Database.Database,
		SSLMode:        cfg.Database.SSLMode,
		MaxConnections: cfg.Database.MaxConnections,
		MaxIdleConns:   cfg.Database.MaxIdleConns,
		MaxLifetime:    cfg.Database.MaxLifetime,
		MaxIdleTime:    cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	log.Info("connected to database")

	// Redis backs the scheduler's leader lease (spec §4.8) in a multi-instance
	// deployment; a single-instance deployment runs without it and the
	// scheduler always acts as leader.
	var redisCache *cache.RedisCache
	if cfg.Redis.Host != "" {
		redisCache, err = cache.NewRedisCache(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.Database,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   "ingest",
		})
		if err != nil {
			log.WithError(err).Fatal("failed to connect to Redis")
		}
		log.Info("connected to Redis")
	} else {
		log.Info("no Redis configured, scheduler will run as sole leader")
	}

	sealer, err := crypto.NewSealer(cfg.Crypto.MasterKeyHex)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize credential sealer")
	}

	httpClient := httpclient.New(httpclient.Config{
		DefaultRPS:         cfg.HTTPClient.DefaultRPS,
		MaxRetries:         cfg.HTTPClient.MaxRetries,
		BackoffCeiling:     cfg.HTTPClient.BackoffCeiling,
		ConnectTimeout:     cfg.HTTPClient.ConnectTimeout,
		TotalTimeout:       cfg.HTTPClient.TotalTimeout,
		MaxInFlightPerHost: cfg.HTTPClient.MaxInFlightPerHost,
	}, nil)

	eventBus := event.NewMemoryBus()

	// Audit logging and operator notification subscribe to job lifecycle
	// events rather than being called by the orchestrator directly, so
	// neither becomes a dependency of the collection pipeline itself.
	// Notification has no transport configured here (spec §1: notification
	// channels are an external collaborator); Send simply reports "no
	// sender registered" for now, which is the correct behavior for an
	// interface that is wired but not yet backed by SMTP/chat config.
	auditLog := audit.NewAuditService(audit.NewDefaultAuditLogger())
	notifier := notification.NewNotificationService()
	subscribeJobLifecycleAudit(eventBus, auditLog, notifier)

	metrics.Init("wholesale_ingest")

	// ========== PERSISTENCE GATEWAY ==========

	productRepo := postgres.NewProductRepository(db)
	jobRepo := postgres.NewJobRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)
	accountRepo := postgres.NewAccountRepository(db)

	var searchProjection *postgres.SearchProjection
	if cfg.Elasticsearch.Enabled {
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
			CloudID:   cfg.Elasticsearch.CloudID,
			APIKey:    cfg.Elasticsearch.APIKey,
		})
		if err != nil {
			log.WithError(err).Warn("failed to initialize elasticsearch client, search projection disabled")
		} else {
			searchProjection = postgres.NewSearchProjection(esClient, cfg.Elasticsearch.IndexName)
			log.Info("search projection enabled")
		}
	}
	products := &projectingProductStore{products: productRepo, projection: searchProjection}

	// ========== SUPPLIER FIELD MAPS ==========

	fieldMaps := buildFieldMaps(cfg.Suppliers)

	// ========== ADAPTER FACTORY ==========

	adapterFactory := func(ctx context.Context, supplierTag string) (adapter.Capability, error) {
		supplierCfg, ok := cfg.Suppliers[supplierTag]
		if !ok {
			return nil, apperrors.NotFound(fmt.Sprintf("supplier config %q", supplierTag))
		}
		account, err := accountRepo.FindByTag(ctx, supplierTag)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, apperrors.NotFound(fmt.Sprintf("supplier account %q", supplierTag))
		}
		plaintext, err := sealer.Open(account.AuthMaterial)
		if err != nil {
			return nil, apperrors.AuthFailed(supplierTag, err)
		}

		switch supplierCfg.Kind {
		case "xml":
			var creds xmladapter.Credentials
			if err := json.Unmarshal(plaintext, &creds); err != nil {
				return nil, apperrors.SchemaMismatch(supplierTag, err)
			}
			if creds.BaseURL == "" {
				creds.BaseURL = supplierCfg.BaseURL
			}
			return xmladapter.New(supplierTag, creds, xmladapter.DefaultConfig(), httpClient), nil
		case "graphql":
			var creds graphqladapter.Credentials
			if err := json.Unmarshal(plaintext, &creds); err != nil {
				return nil, apperrors.SchemaMismatch(supplierTag, err)
			}
			if creds.APIURL == "" {
				creds.APIURL = supplierCfg.BaseURL
			}
			if creds.AuthURL == "" {
				creds.AuthURL = supplierCfg.AuthURL
			}
			return graphqladapter.New(supplierTag, creds, httpClient), nil
		case "rest":
			var creds restadapter.Credentials
			if err := json.Unmarshal(plaintext, &creds); err != nil {
				return nil, apperrors.SchemaMismatch(supplierTag, err)
			}
			if creds.BaseURL == "" {
				creds.BaseURL = supplierCfg.BaseURL
			}
			return restadapter.New(supplierTag, creds, httpClient), nil
		default:
			return nil, apperrors.BadRequest(fmt.Sprintf("unknown supplier kind %q", supplierCfg.Kind))
		}
	}

	// ========== DEDUPLICATOR ==========

	// Recomputation is triggered off the same job-completed event the audit
	// subscriber listens for (spec §3, §4.6), scoped per supplier_tag: the
	// Persistence Gateway only exposes ListBySupplier, not a category-level
	// listing, so the duplicate group scope is the supplier tag rather than
	// the finer per-category partition the spec sketches. A category-scoped
	// pass needs a ListByCategory query this repository does not yet have.
	duplicateGroupRepo := postgres.NewDuplicateGroupRepository(db)
	deduplicator := dedup.New(dedup.DefaultConfig())
	subscribeDuplicateRecomputation(eventBus, productRepo, duplicateGroupRepo, deduplicator)

	// ========== ORCHESTRATOR ==========

	orch := orchestrator.New(adapterFactory, products, jobRepo, fieldMaps, eventBus)

	// ========== SCHEDULER ==========

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		var lease *scheduler.LeaderLease
		if redisCache != nil {
			token := uuid.New().String()
			lease = scheduler.NewLeaderLease(redisCache, cfg.Scheduler.LeaseKey, cfg.Scheduler.LeaseTTL, token)
		}
		sched = scheduler.New(scheduleRepo, orch.Trigger, lease)
		if err := sched.Start(context.Background()); err != nil {
			log.WithError(err).Fatal("failed to start scheduler")
		}
		defer sched.Stop()
		log.Info("scheduler started")
	}

	// ========== CONTROL SURFACE ==========

	handler := ingestionhttp.New(orch, jobRepo, scheduleRepo, sched, adapterFactory, func() string { return uuid.New().String() })

	// ========== HEALTH ==========

	healthManager := health.NewManager()
	healthManager.Register("database", &health.CustomChecker{
		Name: "database",
		CheckFn: func(ctx context.Context) (health.Status, string, map[string]interface{}) {
			if err := db.Ping(ctx); err != nil {
				return health.StatusDown, err.Error(), nil
			}
			return health.StatusUp, "", nil
		},
	})
	if redisCache != nil {
		healthManager.Register("redis", &health.RedisChecker{Client: redisCache.GetClient()})
	}

	// ========== TRACING ==========

	if cfg.Tracing.Enabled {
		tracingProvider, err := tracing.Init(tracing.Config{
			ServiceName:    cfg.App.Name,
			ServiceVersion: cfg.App.Version,
			Environment:    cfg.App.Environment,
			ExporterType:   cfg.Tracing.ExporterType,
			JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
			OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
			SamplingRate:   cfg.Tracing.SamplingRate,
		})
		if err != nil {
			log.WithError(err).Warn("failed to initialize tracing, continuing without it")
		} else {
			defer tracingProvider.Shutdown(context.Background())
			log.Info("tracing initialized")
		}
	}

	// ========== ROUTER ==========

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Security())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(cfg.App.Name))
	}
	r.Use(middleware.Metrics)
	if cfg.RateLimit.Enabled && redisCache != nil {
		limiter := ratelimit.NewRedisLimiter(redisCache.GetClient(), ratelimit.Config{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			WindowSize:        cfg.RateLimit.WindowSize,
			KeyPrefix:         "ratelimit:collector:",
		})
		r.Use(middleware.RateLimit(limiter, middleware.IPKeyFunc))
	}

	r.Get("/health", healthManager.Handler())
	r.Get("/health/live", health.LivenessHandler())
	r.Get("/health/ready", healthManager.ReadinessHandler())

	handler.RegisterRoutes(r)

	log.Info("all ingestion routes registered")

	addr := cfg.ServerAddr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("address", addr).Info("collector API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down collector API server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("collector API server stopped")
}

// subscribeJobLifecycleAudit wires the orchestrator's job lifecycle events
// (spec §4.7) into the audit trail and, on failure, a notification attempt,
// without the orchestrator itself depending on either package.
func subscribeJobLifecycleAudit(bus event.Bus, auditLog *audit.AuditService, notifier *notification.NotificationService) {
	record := func(ctx context.Context, evt event.Event) error {
		return auditLog.LogCustomAction(ctx, audit.AuditActionUpdate, "CollectionJob", evt.AggregateID(), nil, map[string]interface{}{
			"event_type": evt.EventType(),
		})
	}

	bus.Subscribe(orchestrator.EventJobStarted, record)
	bus.Subscribe(orchestrator.EventJobCompleted, record)
	bus.Subscribe(orchestrator.EventJobSkipped, record)
	bus.Subscribe(orchestrator.EventJobFailed, func(ctx context.Context, evt event.Event) error {
		if err := record(ctx, evt); err != nil {
			return err
		}
		templateID := "collection_job_failed"
		now := time.Now()
		return notifier.Send(ctx, &notification.Notification{
			ID:           uuid.New().String(),
			Type:         notification.NotificationTypeEmail,
			TemplateID:   &templateID,
			TemplateData: map[string]interface{}{"job_id": evt.AggregateID()},
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	})
}

// subscribeDuplicateRecomputation reruns the Deduplicator over a supplier's
// canonical catalog whenever a collection job for that supplier completes,
// replacing the prior generation of DuplicateGroups atomically (spec §3).
// A failed recomputation is logged, not retried; the next completed job for
// the supplier will recompute again.
func subscribeDuplicateRecomputation(bus event.Bus, products *postgres.ProductRepository, groups *postgres.DuplicateGroupRepository, deduplicator *dedup.Deduplicator) {
	bus.Subscribe(orchestrator.EventJobCompleted, func(ctx context.Context, evt event.Event) error {
		jobEvt, ok := evt.(orchestrator.JobEvent)
		if !ok {
			return nil
		}
		payload, ok := jobEvt.Payload.(map[string]string)
		if !ok {
			return nil
		}
		supplierTag := payload["supplier_tag"]
		if supplierTag == "" {
			return nil
		}

		catalog, err := products.ListBySupplier(ctx, supplierTag)
		if err != nil {
			logger.Get().WithError(err).WithField("supplier_tag", supplierTag).Warn("failed to load catalog for duplicate recomputation")
			return nil
		}

		found := deduplicator.FindGroups(catalog)
		if err := groups.Replace(ctx, supplierTag, found); err != nil {
			logger.Get().WithError(err).WithField("supplier_tag", supplierTag).Warn("failed to persist recomputed duplicate groups")
			return nil
		}
		return nil
	})
}

// projectingProductStore fans an upsert out to Postgres (the system of
// record) and, best-effort, to the search projection (spec §4.5).
type projectingProductStore struct {
	products   *postgres.ProductRepository
	projection *postgres.SearchProjection
}

func (s *projectingProductStore) Upsert(ctx context.Context, p *domain.CanonicalProduct) (postgres.UpsertResult, error) {
	result, err := s.products.Upsert(ctx, p)
	if err != nil {
		return result, err
	}
	if s.projection != nil {
		s.projection.Project(ctx, p)
	}
	return result, nil
}

// xmlFieldMap, graphqlFieldMap, and restFieldMap name the wire keys each
// adapter's toRawRecord populates RawRecord.Payload with (spec §4.3, §6).
// The Normalizer never branches on supplier_tag beyond picking the right
// map, so a new supplier on an existing adapter kind needs no Normalizer
// change at all.
var (
	xmlFieldMap = normalize.FieldMap{
		SupplierProductID: "product_id",
		Name:              "name",
		Description:       "content",
		CategoryPath:      "category_path",
		WholesalePrice:    "wholesale_price",
		RetailPrice:       "retail_price",
		StockQuantity:     "stock_quantity",
		InStock:           "in_stock",
		MainImageURL:      "main_image",
		AdditionalImages:  "additional_images",
		SourceDate:        "opendate",
		OptionRaw:         "option_raw",
		OptionName:        "option_name",
	}
	graphqlFieldMap = normalize.FieldMap{
		SupplierProductID: "product_id",
		Name:              "name",
		Description:       "description",
		CategoryPath:      "category_path",
		WholesalePrice:    "wholesale_price",
		StockQuantity:     "stock_quantity",
		InStock:           "in_stock",
		MainImageURL:      "main_image",
		AdditionalImages:  "additional_images",
		ShippingCost:      "shipping_cost",
		Returnable:        "returnable",
		TaxFree:           "tax_free",
		SourceDate:        "updated_at",
		Options:           "options",
	}
	restFieldMap = normalize.FieldMap{
		SupplierProductID: "product_id",
		SKU:               "sku",
		Name:              "name",
		Description:       "description",
		CategoryPath:      "category_path",
		WholesalePrice:    "wholesale_price",
		RetailPrice:       "retail_price",
		StockQuantity:     "stock_quantity",
		InStock:           "in_stock",
		MainImageURL:      "main_image",
		AdditionalImages:  "additional_images",
		ShippingCost:      "shipping_cost",
		SourceDate:        "opendate",
	}
)

// buildFieldMaps constructs one Normalizer FieldMap per supplier, selected
// by the supplier's adapter kind.
func buildFieldMaps(suppliers map[string]config.SupplierConfig) map[string]normalize.FieldMap {
	out := make(map[string]normalize.FieldMap, len(suppliers))
	for tag, supplierCfg := range suppliers {
		switch supplierCfg.Kind {
		case "xml":
			out[tag] = xmlFieldMap
		case "graphql":
			out[tag] = graphqlFieldMap
		case "rest":
			out[tag] = restFieldMap
		}
	}
	return out
}
