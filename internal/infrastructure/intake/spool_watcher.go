package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/billing"
	"github.com/marketsync/backend/internal/infrastructure/logger"
)

// Synthesizer consumes validated-at-the-boundary channel payloads
type Synthesizer interface {
	SynthesizeRaw(ctx context.Context, raw billing.RawTransaction) (*billing.Result, error)
}

// SpoolConfig holds spool intake configuration
type SpoolConfig struct {
	// Dir is the directory the delivery pipeline drops payload files into.
	// Empty disables the watcher.
	Dir string
	// PollInterval is how often the directory is scanned
	PollInterval time.Duration
}

// Validate validates the configuration
func (c *SpoolConfig) Validate() error {
	if c.Dir == "" {
		return errors.New("intake: spool directory is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("intake: poll interval must be positive")
	}
	return nil
}

// SpoolWatcher feeds channel transaction payloads into the synthesizer. The
// delivery pipeline drops one JSON document per file (a single transaction or
// an array); processed files move to processed/, rejected ones to failed/.
// Because synthesis is idempotent by external id, replaying a file is safe.
type SpoolWatcher struct {
	config      SpoolConfig
	synthesizer Synthesizer
	logger      *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSpoolWatcher creates a new spool watcher
func NewSpoolWatcher(config SpoolConfig, synthesizer Synthesizer, logger *zap.Logger) (*SpoolWatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SpoolWatcher{
		config:      config,
		synthesizer: synthesizer,
		logger:      logger.Named("intake"),
	}, nil
}

// Start starts the watcher
func (w *SpoolWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = true
	w.mu.Unlock()

	for _, sub := range []string{"processed", "failed"} {
		if err := os.MkdirAll(filepath.Join(w.config.Dir, sub), 0o755); err != nil {
			return fmt.Errorf("intake: preparing spool directory: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.runLoop(ctx)

	w.logger.Info("Spool watcher started",
		zap.String("dir", w.config.Dir),
		zap.Duration("poll_interval", w.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the watcher
func (w *SpoolWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Spool watcher stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Spool watcher stop timed out")
		return ctx.Err()
	}
}

// runLoop scans the spool directory at the configured interval
func (w *SpoolWatcher) runLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Drain anything left from a previous run before the first tick
	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep processes every payload file currently in the spool, oldest name
// first. Exported so deployments without the background loop can drive it.
func (w *SpoolWatcher) Sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		w.logger.Error("Failed to read spool directory", zap.Error(err))
		return
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	for _, name := range files {
		if ctx.Err() != nil {
			return
		}
		w.processFile(ctx, name)
	}
}

// processFile synthesizes every transaction in one payload file
func (w *SpoolWatcher) processFile(ctx context.Context, name string) {
	path := filepath.Join(w.config.Dir, name)
	log := w.logger.With(zap.String("file", name))

	transactions, err := decodePayload(path)
	if err != nil {
		log.Error("Rejected undecodable payload", zap.Error(err))
		w.move(name, "failed", log)
		return
	}

	failures := 0
	for _, raw := range transactions {
		txCtx, txLog := logger.WithTransactionID(ctx, log, raw.ExternalID)
		result, err := w.synthesizer.SynthesizeRaw(txCtx, raw)
		if err != nil {
			// Document-level failures are recorded and retried on replay;
			// a cancelled context leaves the file in place for next sweep
			if ctx.Err() != nil {
				return
			}
			failures++
			txLog.Error("Transaction synthesis failed", zap.Error(err))
			continue
		}
		txLog.Info("Transaction processed", zap.String("status", string(result.Status)))
	}

	if failures > 0 {
		w.move(name, "failed", log)
		return
	}
	w.move(name, "processed", log)
}

// decodePayload reads one transaction or an array of them
func decodePayload(path string) ([]billing.RawTransaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var many []billing.RawTransaction
		if err := json.Unmarshal(data, &many); err != nil {
			return nil, err
		}
		return many, nil
	}

	var one billing.RawTransaction
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []billing.RawTransaction{one}, nil
}

// move relocates a handled file out of the scan path
func (w *SpoolWatcher) move(name, sub string, log *zap.Logger) {
	from := filepath.Join(w.config.Dir, name)
	to := filepath.Join(w.config.Dir, sub, name)
	if err := os.Rename(from, to); err != nil {
		log.Error("Failed to move payload file", zap.String("to", sub), zap.Error(err))
	}
}
