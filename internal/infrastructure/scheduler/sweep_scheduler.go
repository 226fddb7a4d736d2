package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	inventoryapp "github.com/marketsync/backend/internal/application/inventory"
)

// SweepRunner runs reconciliation sweeps against the channel
type SweepRunner interface {
	RunSweep(ctx context.Context) (*inventoryapp.SweepResult, error)
	ResumeUnfinished(ctx context.Context) error
}

// CatalogReloader refreshes the resolution registry from its sources
type CatalogReloader interface {
	Reload(ctx context.Context) error
}

// SweepSchedulerConfig holds configuration for the sweep scheduler
type SweepSchedulerConfig struct {
	// Enabled indicates if the scheduler is enabled
	Enabled bool
	// SweepInterval is how often a reconciliation sweep runs
	SweepInterval time.Duration
	// ReloadInterval is how often the catalog registry is refreshed
	ReloadInterval time.Duration
	// JobTimeout is the maximum time a sweep or reload can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retry attempts for a failed sweep
	RetryAttempts int
	// RetryDelay is the delay between sweep retries
	RetryDelay time.Duration
}

// DefaultSweepSchedulerConfig returns default configuration
func DefaultSweepSchedulerConfig() SweepSchedulerConfig {
	return SweepSchedulerConfig{
		Enabled:        true,
		SweepInterval:  15 * time.Minute,
		ReloadInterval: 10 * time.Minute,
		JobTimeout:     10 * time.Minute,
		RetryAttempts:  2,
		RetryDelay:     30 * time.Second,
	}
}

// Validate validates the configuration
func (c *SweepSchedulerConfig) Validate() error {
	if c.SweepInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.ReloadInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// SweepScheduler drives periodic reconciliation sweeps and catalog reloads.
// On start it resumes any batches interrupted by a previous shutdown before
// the first fresh sweep runs.
type SweepScheduler struct {
	config   SweepSchedulerConfig
	runner   SweepRunner
	reloader CatalogReloader
	logger   *zap.Logger

	manual    chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSweepScheduler creates a new sweep scheduler
func NewSweepScheduler(
	config SweepSchedulerConfig,
	runner SweepRunner,
	reloader CatalogReloader,
	logger *zap.Logger,
) (*SweepScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &SweepScheduler{
		config:   config,
		runner:   runner,
		reloader: reloader,
		logger:   logger.Named("scheduler"),
		manual:   make(chan struct{}, 1),
	}, nil
}

// Start starts the scheduler
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Sweep scheduler started",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("reload_interval", s.config.ReloadInterval),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *SweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sweep scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerSweep requests an out-of-band sweep. Coalesces with any sweep
// already pending.
func (s *SweepScheduler) TriggerSweep() error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}

	select {
	case s.manual <- struct{}{}:
	default:
		// A manual sweep is already queued
	}
	return nil
}

// runLoop drives the sweep and reload tickers
func (s *SweepScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	s.resumeInterrupted(ctx)

	sweepTicker := time.NewTicker(s.config.SweepInterval)
	defer sweepTicker.Stop()
	reloadTicker := time.NewTicker(s.config.ReloadInterval)
	defer reloadTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			s.runSweep(ctx)
		case <-s.manual:
			s.runSweep(ctx)
		case <-reloadTicker.C:
			s.runReload(ctx)
		}
	}
}

// resumeInterrupted replays batches a previous run left in flight
func (s *SweepScheduler) resumeInterrupted(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	if err := s.runner.ResumeUnfinished(jobCtx); err != nil {
		s.logger.Error("Failed to resume interrupted batches", zap.Error(err))
	}
}

// runSweep executes one sweep, retrying transient failures
func (s *SweepScheduler) runSweep(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		result, err := s.sweepOnce(ctx)
		if err == nil {
			s.logger.Info("Sweep completed",
				zap.String("sweep_id", result.SweepID.String()),
				zap.Int("examined", result.Examined),
				zap.Int("dirty", result.Dirty),
				zap.Int("succeeded", result.Succeeded),
				zap.Int("failed", result.Failed),
				zap.Int("unresolved", len(result.Unresolved)),
			)
			return
		}

		if ctx.Err() != nil {
			return
		}

		s.logger.Error("Sweep failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.config.RetryAttempts+1),
			zap.Error(err),
		)

		if attempt >= s.config.RetryAttempts {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.RetryDelay):
		}
	}
}

// sweepOnce runs a single sweep under the job timeout
func (s *SweepScheduler) sweepOnce(ctx context.Context) (*inventoryapp.SweepResult, error) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()
	return s.runner.RunSweep(jobCtx)
}

// runReload refreshes the catalog registry
func (s *SweepScheduler) runReload(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	if err := s.reloader.Reload(jobCtx); err != nil {
		s.logger.Error("Catalog reload failed", zap.Error(err))
		return
	}
	s.logger.Debug("Catalog reloaded")
}
