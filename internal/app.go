// Package internal wires configuration, storage, routes and background jobs
// into a runnable application.
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/jobs"
	"folio/internal/pkg/geoip"
)

// Application wraps cartridge.Application with folio-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager // DB manager with migration methods
}

// NewApp creates a new application instance from the environment configuration
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)
	geoip.InitLogger(logger)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Refreshes the GeoLite database when credentials are configured
	scheduler := jobs.NewScheduler(dbManager, logger, cfg)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		ServerConfig:      NewServerConfig(cfg),
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    MountAppRoutes,
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
	}, nil
}

// NewServerConfig returns the server settings shared by the binary and the
// HTTP tests. The API serves JSON only, so templates and static assets are
// off. Sec-Fetch-Site is checked per route: tracking routes accept
// cross-site browser requests, while login, the report and system routes
// are called by non-browser clients.
func NewServerConfig(cfg *config.Config) *cartridge.ServerConfig {
	serverCfg := cartridge.DefaultServerConfig()
	serverCfg.EnableTemplates = false
	serverCfg.EnableStaticAssets = false
	serverCfg.EnableSecFetchSite = false
	if cfg.IsTest() {
		serverCfg.EnableRequestLogger = false
	}
	return serverCfg
}
