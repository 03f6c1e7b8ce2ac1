package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/documents"
	"github.com/ternarybob/extracta/internal/handlers"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/services/events"
	"github.com/ternarybob/extracta/internal/services/extraction"
	"github.com/ternarybob/extracta/internal/services/fields"
	"github.com/ternarybob/extracta/internal/services/report"
	"github.com/ternarybob/extracta/internal/services/scheduler"
	"github.com/ternarybob/extracta/internal/services/workflows"
	"github.com/ternarybob/extracta/internal/storage"
	"github.com/ternarybob/extracta/internal/zuva"
	"golang.org/x/oauth2/clientcredentials"
)

// Scheduled job names
const (
	JobCatalogueRefresh = "catalogue_refresh"
	JobStaleSweep       = "stale_sweep"
	JobStorageGC        = "storage_gc"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService *scheduler.Service

	// Extraction services
	ProviderClient    *zuva.Client // nil when no provider credentials are configured
	DocumentResolver  *documents.Resolver
	ExtractionService *extraction.Service
	FieldService      *fields.Service
	WorkflowService   *workflows.Service
	ReportService     *report.Service

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	ExtractionHandler *handlers.ExtractionHandler
	FieldHandler      *handlers.FieldHandler
	WorkflowHandler   *handlers.WorkflowHandler
	StatusHandler     *handlers.StatusHandler
	WSHandler         *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to subscribe event logger")
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Bool("provider_configured", app.ProviderClient != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger or Postgres)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.ctx, a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", a.Config.Storage.Type).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	client, err := NewProviderClient(a.ctx, a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}
	a.ProviderClient = client

	objects, err := documents.NewObjectStore(&a.Config.Documents.ObjectStore)
	if err != nil {
		return err
	}
	a.DocumentResolver = documents.NewResolver(a.Config.Documents.BaseDir, objects, a.Logger)

	// Interface fields stay untyped nil without a client
	var provider extraction.Provider
	var catalogue fields.CatalogueSource
	if client != nil {
		provider = client
		catalogue = client
	}

	a.FieldService = fields.NewService(catalogue, a.StorageManager.FieldStorage(), a.EventService, a.Logger)
	a.WorkflowService = workflows.NewService(a.StorageManager.WorkflowStorage(), a.EventService, a.Config.Workflows.Dir, a.Logger)
	a.ExtractionService = extraction.NewService(
		a.StorageManager,
		provider,
		a.DocumentResolver,
		a.EventService,
		extraction.NewConfig(a.Config.Extraction),
		a.Logger,
	)
	a.ReportService = report.NewService(a.Logger)

	a.SchedulerService = scheduler.NewService(a.Logger)
	return a.registerJobs()
}

// registerJobs adds the periodic catalogue refresh and stale-job sweep
func (a *App) registerJobs() error {
	staleAfter := common.ParseDuration(a.Config.Extraction.StaleAfter, 15*time.Minute)

	if err := a.SchedulerService.RegisterJob(
		JobStaleSweep,
		a.Config.Scheduler.StaleSweep,
		"Fail pending and processing extractions with no live pipeline",
		func(ctx context.Context) error {
			_, err := a.ExtractionService.SweepStale(ctx, staleAfter)
			return err
		},
	); err != nil {
		return err
	}

	if collector, ok := a.StorageManager.(interface{ CollectGarbage() (int, error) }); ok {
		if err := a.SchedulerService.RegisterJob(
			JobStorageGC,
			a.Config.Scheduler.StorageGC,
			"Compact the embedded store's value log",
			func(ctx context.Context) error {
				_, err := collector.CollectGarbage()
				return err
			},
		); err != nil {
			return err
		}
	}

	schedule := a.Config.Scheduler.CatalogueRefresh
	if a.ProviderClient == nil {
		schedule = ""
	}
	return a.SchedulerService.RegisterJob(
		JobCatalogueRefresh,
		schedule,
		"Sync the provider field catalogue into the local store",
		func(ctx context.Context) error {
			_, err := a.FieldService.Sync(ctx)
			return err
		},
	)
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger, map[string]handlers.HealthCheck{
		"storage": func(ctx context.Context) error {
			_, err := a.StorageManager.WorkflowStorage().List(ctx)
			return err
		},
	}, a.ProviderClient != nil)
	a.ExtractionHandler = handlers.NewExtractionHandler(a.ExtractionService, a.WorkflowService, a.ReportService, a.Logger)
	a.FieldHandler = handlers.NewFieldHandler(a.FieldService, a.Logger)
	a.WorkflowHandler = handlers.NewWorkflowHandler(a.WorkflowService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.ExtractionService, a.SchedulerService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
}

// StartBackground loads workflow files, fails jobs abandoned by a previous run and
// starts the scheduler. Used by the server only; one-shot CLI commands skip it.
func (a *App) StartBackground() {
	if n, err := a.WorkflowService.LoadDir(a.ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load workflow definitions")
	} else {
		a.Logger.Info().Int("workflows", n).Str("dir", a.Config.Workflows.Dir).Msg("Workflow definitions loaded")
	}

	if a.Config.Workflows.Watch && a.Config.Workflows.Dir != "" {
		if err := a.WorkflowService.Watch(a.ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Workflow hot reload disabled")
		}
	}

	// Nothing is running yet, so any active record belongs to a previous process
	if n, err := a.ExtractionService.SweepStale(a.ctx, 0); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to sweep abandoned extractions")
	} else if n > 0 {
		a.Logger.Warn().Int("jobs", n).Msg("Failed extractions abandoned by a previous run")
	}

	a.SchedulerService.Start()
}

// Close closes all application resources
func (a *App) Close() error {
	// Stops the workflow watcher
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if a.ExtractionService != nil {
		timeout := common.ParseDuration(a.Config.Extraction.ShutdownTimeout, 30*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.ExtractionService.Shutdown(ctx); err != nil {
			a.Logger.Warn().
				Err(err).
				Int("abandoned", a.ExtractionService.Running()).
				Msg("Extraction pipelines abandoned at shutdown")
		} else {
			a.Logger.Info().Msg("Extraction pipelines drained")
		}
		cancel()
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}

// NewProviderClient builds the Zuva client from configuration. Returns nil, nil
// when neither an API token nor OAuth client credentials are configured.
func NewProviderClient(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*zuva.Client, error) {
	if !cfg.HasProviderCredentials() {
		logger.Warn().Msg("No provider credentials configured - extraction is disabled")
		return nil, nil
	}

	p := cfg.Provider
	opts := []zuva.ClientOption{
		zuva.WithLogger(logger),
		zuva.WithHTTPClient(&http.Client{Timeout: common.ParseDuration(p.RequestTimeout, zuva.DefaultTimeout)}),
		zuva.WithRateLimit(p.RateLimit),
		zuva.WithCatalogueTTL(common.ParseDuration(p.CatalogueTTL, zuva.DefaultCatalogueTTL)),
	}
	if p.Region != "" {
		opts = append(opts, zuva.WithRegion(zuva.Region(p.Region)))
	}
	if p.BaseURL != "" {
		opts = append(opts, zuva.WithBaseURL(p.BaseURL))
	}
	if p.UsesClientCredentials() {
		credentials := clientcredentials.Config{
			ClientID:     p.OAuth.ClientID,
			ClientSecret: p.OAuth.ClientSecret,
			TokenURL:     p.OAuth.TokenURL,
			Scopes:       p.OAuth.Scopes,
		}
		opts = append(opts, zuva.WithTokenSource(credentials.TokenSource(ctx)))
		logger.Debug().Str("token_url", p.OAuth.TokenURL).Msg("Using OAuth client credentials for provider")
	}

	client, err := zuva.NewClient(p.APIToken, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("base_url", client.BaseURL()).Msg("Provider client configured")
	return client, nil
}
