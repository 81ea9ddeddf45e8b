package app

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/capture"
	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/driver"
	"github.com/hugorneri/RPA-DCTFWEB/internal/handlers"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/events"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/runs"
	"github.com/hugorneri/RPA-DCTFWEB/internal/storage"
	"github.com/hugorneri/RPA-DCTFWEB/internal/workflow"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	RowStore       interfaces.RowStore

	// Portal automation
	Launcher *driver.Launcher
	Capturer *capture.Capturer
	Protocol *workflow.Protocol
	Runner   *workflow.Runner

	// Event-driven services
	EventService interfaces.EventService
	RunService   *runs.Service
	unsubscribe  func()

	// HTTP handlers
	WSHandler   *handlers.WebSocketHandler
	RunHandler  *handlers.RunHandler
	PageHandler *handlers.PageHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("period", cfg.Run.Period).
		Str("workbook", cfg.Storage.Workbook).
		Str("downloads", cfg.DownloadPath()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the run history store and the entity workbook
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	a.RowStore = storage.NewRowStore(a.Logger, a.Config)

	a.Logger.Debug().
		Str("history", a.Config.Storage.Badger.Path).
		Str("workbook", a.RowStore.Location()).
		Msg("Storage layer initialized")

	return nil
}

// initServices wires the automation stack bottom-up: driver, capture, protocol, runner, run service
func (a *App) initServices() error {
	downloadDir := a.Config.DownloadPath()
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory %s: %w", downloadDir, err)
	}

	a.Launcher = driver.NewLauncher(driver.LauncherConfig{
		LoginURL:       a.Config.Portal.LoginURL,
		DownloadDir:    downloadDir,
		Headless:       a.Config.Browser.Headless,
		NoSandbox:      a.Config.Browser.NoSandbox,
		UserDataDir:    a.Config.Browser.UserDataDir,
		WindowWidth:    a.Config.Browser.WindowWidth,
		WindowHeight:   a.Config.Browser.WindowHeight,
		StartupTimeout: a.Config.Browser.StartTimeoutDuration(),
	}, a.Logger)

	a.Capturer = capture.NewCapturer(capture.Config{
		Settle:      a.Config.Portal.DownloadSettleDuration(),
		ValidatePDF: a.Config.Artifacts.ValidatePDF,
	}, a.Logger)

	a.Protocol = workflow.NewProtocol(workflow.NewProtocolConfig(a.Config), a.Capturer, a.Logger)
	a.Runner = workflow.NewRunner(a.Protocol, workflow.RunnerConfig{
		RetryPause: a.Config.Run.RetryPauseDuration(),
	}, a.Logger)

	a.EventService = events.NewService(a.Logger)
	unsubscribe, err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}
	a.unsubscribe = unsubscribe

	a.RunService = runs.NewService(a.Config, runs.Dependencies{
		Store:    a.RowStore,
		Driver:   a.Launcher,
		Runner:   a.Runner,
		Verifier: a.Protocol,
		History:  a.StorageManager.RunStorage(),
		Events:   a.EventService,
	}, a.Logger)

	return nil
}

func (a *App) initHandlers() {
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.RunService, a.Config.Server.ProgressThrottleDuration(), a.Logger)
	a.RunHandler = handlers.NewRunHandler(a.RunService, a.Logger)
	a.PageHandler = handlers.NewPageHandler(handlers.PageData{
		Period:   a.Config.Run.Period,
		Workbook: a.Config.Storage.Workbook,
		Version:  common.GetVersion(),
	}, a.Logger)
}

// Close stops the active run and releases storage
func (a *App) Close() error {
	if a.RunService != nil {
		if err := a.RunService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop run service")
		}
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
