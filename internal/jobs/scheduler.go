package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"

	"folio/internal/config"
)

// Scheduler runs folio's background jobs. It implements
// cartridge.BackgroundWorker.
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.Config
	mu        sync.Mutex
	isRunning bool

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	geoLiteUpdater *GeoLiteUpdaterJob
	geoLiteTicker  *time.Ticker
}

func NewScheduler(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		cfg:            cfg,
		geoLiteUpdater: NewGeoLiteUpdaterJob(dbManager, logger, cfg),
	}
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func(context.Context) error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	s.logger.Info("Starting GeoLite updater job", slog.Duration("interval", interval))
	s.geoLiteTicker = time.NewTicker(interval)
	s.isRunning = true

	go func() {
		s.executeJobSafely("geolite_updater", s.geoLiteUpdater.Run)

		for {
			select {
			case <-s.geoLiteTicker.C:
				s.executeJobSafely("geolite_updater", s.geoLiteUpdater.Run)
			case <-s.ctx.Done():
				s.logger.Info("GeoLite updater job stopped")
				return
			}
		}
	}()

	return nil
}

// Stop halts all background jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Stopping background jobs...")
	if s.geoLiteTicker != nil {
		s.geoLiteTicker.Stop()
	}
	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
