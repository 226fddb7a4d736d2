package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	catalogapp "github.com/marketsync/backend/internal/application/catalog"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/inventory"
)

// Config tunes a reconciliation sweep
type Config struct {
	// ChannelID identifies the channel in our own records
	ChannelID string
	// MarketplaceID is the channel-side marketplace identifier
	MarketplaceID string
	// ChangeThreshold is the minimum |delta| that marks a SKU dirty
	ChangeThreshold int
	// Workers bounds concurrent submissions
	Workers int
	// SubmitInterval is the enforced delay between channel calls
	SubmitInterval rate.Limit
	// DiscrepancyTopN bounds the surfaced discrepancy report
	DiscrepancyTopN int
}

// SweepResult summarizes one reconciliation cycle
type SweepResult struct {
	SweepID     uuid.UUID
	BatchID     *uuid.UUID
	Examined    int
	Dirty       int
	Succeeded   int
	Failed      int
	Unresolved  []string
	BatchStatus inventory.BatchStatus
}

// warehouseRecord is the per-product warehouse truth read from the ERP
type warehouseRecord struct {
	OnHand      decimal.Decimal
	Outgoing    decimal.Decimal
	SafetyStock decimal.Decimal
	HasSafety   bool
}

// ReconcilerService keeps published channel inventory consistent with
// warehouse truth. Sweeps are checkpointable per item: the batch is persisted
// before any external call and every item outcome is persisted as it lands.
type ReconcilerService struct {
	erp         integration.ErpClient
	marketplace integration.MarketplaceClient
	batches     inventory.SyncBatchRepository
	published   inventory.PublishedStateRepository
	catalog     *catalogapp.RegistryService
	cfg         Config
	limiter     *rate.Limiter
	skuLocks    *keyedMutex
	logger      *zap.Logger
}

// NewReconcilerService wires a reconciler for one channel
func NewReconcilerService(
	erp integration.ErpClient,
	marketplace integration.MarketplaceClient,
	batches inventory.SyncBatchRepository,
	published inventory.PublishedStateRepository,
	catalog *catalogapp.RegistryService,
	cfg Config,
	logger *zap.Logger,
) *ReconcilerService {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ChangeThreshold < 1 {
		cfg.ChangeThreshold = 1
	}
	if cfg.SubmitInterval <= 0 {
		cfg.SubmitInterval = rate.Limit(2) // 2 calls/second unless configured
	}
	return &ReconcilerService{
		erp:         erp,
		marketplace: marketplace,
		batches:     batches,
		published:   published,
		catalog:     catalog,
		cfg:         cfg,
		limiter:     rate.NewLimiter(cfg.SubmitInterval, 1),
		skuLocks:    newKeyedMutex(),
		logger:      logger.Named("reconciler"),
	}
}

// RunSweep executes one full reconciliation cycle. Overlapping sweeps are
// safe: operations touching the same canonical SKU are serialized.
func (s *ReconcilerService) RunSweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{SweepID: uuid.New()}
	log := s.logger.With(zap.String("sweep_id", result.SweepID.String()))

	listings, err := s.marketplace.Listings(ctx, s.cfg.MarketplaceID)
	if err != nil {
		return nil, fmt.Errorf("fetching channel listings: %w", err)
	}
	warehouse, err := s.fetchWarehouse(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching warehouse stock: %w", err)
	}
	lastPublished, err := s.published.LastPublished(ctx, s.cfg.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("loading published state: %w", err)
	}

	registry := s.catalog.Registry()
	var items []inventory.SyncItem
	for _, listing := range listings {
		result.Examined++

		res := registry.Resolve(listing.Sku)
		if !res.Resolved() {
			result.Unresolved = append(result.Unresolved, listing.Sku)
			s.catalog.ReportUnresolved(ctx, listing.Sku)
			continue
		}

		rec, ok := warehouse[res.CanonicalSku]
		if !ok {
			// Listed on the channel but absent from the warehouse: publish zero
			rec = warehouseRecord{}
		}

		floor := registry.SafetyFloor(res.CanonicalSku)
		if rec.HasSafety {
			floor = rec.SafetyStock
		}

		prev, tracked := lastPublished[listing.Sku]
		if !tracked {
			prev = listing.Quantity
		}
		snapshot := inventory.StockSnapshot{
			Sku:           res.CanonicalSku,
			ChannelID:     s.cfg.ChannelID,
			SourceQty:     rec.OnHand,
			ReservedQty:   rec.Outgoing,
			SafetyFloor:   floor,
			LastPublished: prev,
		}
		if !snapshot.IsDirty(s.cfg.ChangeThreshold) {
			continue
		}
		items = append(items, inventory.SyncItem{
			Sku:         listing.Sku,
			Quantity:    snapshot.PublishableQty(),
			PreviousQty: prev,
		})
	}

	result.Dirty = len(items)
	if len(items) == 0 {
		log.Info("sweep found no deltas above threshold", zap.Int("examined", result.Examined))
		return result, nil
	}

	batch, err := inventory.NewSyncBatch(s.cfg.ChannelID, items)
	if err != nil {
		return nil, err
	}
	// Persist before any external call so a crash resumes from known state
	if err := s.batches.Save(ctx, batch); err != nil {
		return nil, fmt.Errorf("persisting sync batch: %w", err)
	}
	result.BatchID = &batch.ID

	if err := s.submitBatch(ctx, batch, log); err != nil {
		s.failIfUnstarted(batch, err, log)
		return nil, err
	}

	result.Succeeded = batch.SuccessCount()
	result.Failed = batch.FailedCount()
	result.BatchStatus = batch.Status
	log.Info("sweep finished",
		zap.Int("examined", result.Examined),
		zap.Int("dirty", result.Dirty),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.String("batch_status", string(batch.Status)),
	)
	return result, nil
}

// ResumeUnfinished picks up batches interrupted by a crash or cancellation
// and submits their remaining pending items.
func (s *ReconcilerService) ResumeUnfinished(ctx context.Context) error {
	unfinished, err := s.batches.FindUnfinished(ctx, s.cfg.ChannelID)
	if err != nil {
		return fmt.Errorf("loading unfinished batches: %w", err)
	}
	for _, batch := range unfinished {
		log := s.logger.With(zap.String("batch_id", batch.ID.String()))
		log.Info("resuming unfinished sync batch",
			zap.String("status", string(batch.Status)),
			zap.Int("pending_items", len(batch.PendingItems())))
		if err := s.submitBatch(ctx, batch, log); err != nil {
			s.failIfUnstarted(batch, err, log)
			return err
		}
	}
	return nil
}

// failIfUnstarted marks a batch failed when submission never started.
// Cancellation and batches that already applied an item are left submitted
// for ResumeUnfinished instead.
func (s *ReconcilerService) failIfUnstarted(batch *inventory.SyncBatch, cause error, log *zap.Logger) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return
	}
	if err := batch.Fail(cause.Error()); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.batches.Save(ctx, batch); err != nil {
		log.Error("persisting failed batch",
			zap.String("batch_id", batch.ID.String()), zap.Error(err))
	}
}

// submitBatch pushes pending items with bounded concurrency and the
// configured inter-call delay. Already-applied items are never resent.
func (s *ReconcilerService) submitBatch(ctx context.Context, batch *inventory.SyncBatch, log *zap.Logger) error {
	if batch.Status == inventory.BatchStatusPending {
		if err := batch.Submit(); err != nil {
			return err
		}
		if err := s.batches.Save(ctx, batch); err != nil {
			return err
		}
	}

	pending := batch.PendingItems()
	jobs := make(chan inventory.SyncItem)
	var mu sync.Mutex // guards batch mutation and checkpoint writes
	var wg sync.WaitGroup

	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				s.submitItem(ctx, batch, item, &mu, log)
			}
		}()
	}

feed:
	for _, item := range pending {
		select {
		case <-ctx.Done():
			// Stop after the in-flight items; applied updates stay intact
			break feed
		case jobs <- item:
		}
	}
	close(jobs)
	wg.Wait()

	if batch.AllItemsTerminal() {
		if err := batch.Complete(); err != nil {
			return err
		}
		return s.batches.Save(ctx, batch)
	}
	// Interrupted mid-batch: leave it submitted for ResumeUnfinished
	return ctx.Err()
}

func (s *ReconcilerService) submitItem(
	ctx context.Context,
	batch *inventory.SyncBatch,
	item inventory.SyncItem,
	mu *sync.Mutex,
	log *zap.Logger,
) {
	if err := s.limiter.Wait(ctx); err != nil {
		return // cancelled while rate-limited; item stays pending
	}

	unlock := s.skuLocks.lock(item.Sku)
	defer unlock()

	err := s.marketplace.PatchInventory(ctx, integration.InventoryPatch{
		Sku:           item.Sku,
		MarketplaceID: s.cfg.MarketplaceID,
		Quantity:      item.Quantity,
	})

	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return // leave pending for resume
		}
		if markErr := batch.MarkItemFailed(item.Sku, err.Error()); markErr != nil {
			log.Error("marking item failed", zap.String("sku", item.Sku), zap.Error(markErr))
			return
		}
		log.Warn("inventory patch rejected",
			zap.String("sku", item.Sku),
			zap.Int("quantity", item.Quantity),
			zap.Error(err),
		)
	} else {
		if markErr := batch.MarkItemSuccess(item.Sku); markErr != nil {
			log.Error("marking item success", zap.String("sku", item.Sku), zap.Error(markErr))
			return
		}
		// lastPublished advances only for accepted updates
		if pubErr := s.published.SetLastPublished(ctx, s.cfg.ChannelID, item.Sku, item.Quantity); pubErr != nil {
			log.Error("recording published state", zap.String("sku", item.Sku), zap.Error(pubErr))
		}
	}

	for _, it := range batch.Items {
		if it.Sku == item.Sku {
			if err := s.batches.UpdateItem(ctx, batch.ID, it); err != nil {
				log.Error("checkpointing item", zap.String("sku", item.Sku), zap.Error(err))
			}
			break
		}
	}
}

// Discrepancies compares our publishable quantities against the channel's
// current view and surfaces the largest disagreements.
func (s *ReconcilerService) Discrepancies(ctx context.Context) ([]inventory.Discrepancy, error) {
	listings, err := s.marketplace.Listings(ctx, s.cfg.MarketplaceID)
	if err != nil {
		return nil, fmt.Errorf("fetching channel listings: %w", err)
	}
	warehouse, err := s.fetchWarehouse(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching warehouse stock: %w", err)
	}

	registry := s.catalog.Registry()
	ours := make(map[string]int)
	theirs := make(map[string]int)
	for _, listing := range listings {
		res := registry.Resolve(listing.Sku)
		if !res.Resolved() {
			continue
		}
		rec := warehouse[res.CanonicalSku]
		floor := registry.SafetyFloor(res.CanonicalSku)
		if rec.HasSafety {
			floor = rec.SafetyStock
		}
		snapshot := inventory.StockSnapshot{
			SourceQty:   rec.OnHand,
			ReservedQty: rec.Outgoing,
			SafetyFloor: floor,
		}
		ours[listing.Sku] = snapshot.PublishableQty()
		theirs[listing.Sku] = listing.Quantity
	}

	return inventory.BuildDiscrepancyReport(ours, theirs, s.cfg.DiscrepancyTopN), nil
}

// fetchWarehouse reads per-SKU warehouse truth from the ERP
func (s *ReconcilerService) fetchWarehouse(ctx context.Context) (map[string]warehouseRecord, error) {
	ids, err := s.erp.Search(ctx, "product.product", []integration.Condition{
		integration.Eq("sale_ok", true),
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[string]warehouseRecord{}, nil
	}

	rows, err := s.erp.Read(ctx, "product.product", ids,
		[]string{"default_code", "qty_available", "outgoing_qty", "x_safety_stock"})
	if err != nil {
		return nil, err
	}

	records := make(map[string]warehouseRecord, len(rows))
	for _, row := range rows {
		code, _ := row["default_code"].(string)
		if code == "" {
			continue
		}
		rec := warehouseRecord{
			OnHand:   decimalField(row, "qty_available"),
			Outgoing: decimalField(row, "outgoing_qty"),
		}
		if _, ok := row["x_safety_stock"]; ok {
			rec.SafetyStock = decimalField(row, "x_safety_stock")
			rec.HasSafety = rec.SafetyStock.IsPositive()
		}
		records[code] = rec
	}
	return records, nil
}

func decimalField(row map[string]any, field string) decimal.Decimal {
	switch v := row[field].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	default:
		return decimal.Zero
	}
}

// keyedMutex serializes work per canonical SKU across overlapping sweeps
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
