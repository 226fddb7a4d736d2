package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	catalogapp "github.com/marketsync/backend/internal/application/catalog"
	"github.com/marketsync/backend/internal/domain/billing"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/tax"
)

// Config tunes order synthesis
type Config struct {
	// FreightProductCode is the catalog code of the shipping service product
	FreightProductCode string
	// AllowStandaloneCreditNotes permits credit notes for returns whose
	// originating shipment was never synthesized here
	AllowStandaloneCreditNotes bool
}

// SynthesizerService turns validated channel transactions into ERP documents.
// Each transaction is keyed by its external id: a ref is recorded immediately
// after document creation and consulted first on every attempt, so replays and
// concurrent deliveries are no-ops. Confirmation and fulfillment advance the
// ref but never roll back; a stalled order is re-driven on the next attempt.
type SynthesizerService struct {
	erp        integration.ErpClient
	refs       billing.OrderRefRepository
	catalog    *catalogapp.RegistryService
	classifier *tax.Classifier
	cfg        Config
	logger     *zap.Logger

	// lookup caches for ERP records that never change mid-process
	mu         sync.Mutex
	countryIDs map[string]int64
	namedIDs   map[string]int64
}

// NewSynthesizerService wires a synthesizer against one ERP
func NewSynthesizerService(
	erp integration.ErpClient,
	refs billing.OrderRefRepository,
	catalog *catalogapp.RegistryService,
	classifier *tax.Classifier,
	cfg Config,
	logger *zap.Logger,
) *SynthesizerService {
	return &SynthesizerService{
		erp:        erp,
		refs:       refs,
		catalog:    catalog,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger.Named("synthesizer"),
		countryIDs: make(map[string]int64),
		namedIDs:   make(map[string]int64),
	}
}

// SynthesizeRaw validates an untrusted channel payload and synthesizes it.
// Invalid payloads yield an error result, never a panic or a partial document.
func (s *SynthesizerService) SynthesizeRaw(ctx context.Context, raw billing.RawTransaction) (*billing.Result, error) {
	txn, err := billing.FromRaw(raw)
	if err != nil {
		return &billing.Result{
			ExternalID: raw.ExternalID,
			Status:     billing.ResultError,
			Reason:     err.Error(),
		}, err
	}
	return s.Synthesize(ctx, txn)
}

// Synthesize creates the ERP document for one validated transaction and
// drives it as far through the saga as the ERP allows.
func (s *SynthesizerService) Synthesize(ctx context.Context, txn *billing.Transaction) (*billing.Result, error) {
	log := s.logger.With(zap.String("external_id", txn.ExternalID))

	existing, err := s.refs.FindByExternalID(ctx, txn.ExternalID)
	if err == nil {
		log.Info("transaction already synthesized",
			zap.Int64("erp_order_id", existing.ErpOrderID),
			zap.String("step", string(existing.Step)))
		// A replay is a success referencing the existing document
		return &billing.Result{
			ExternalID: txn.ExternalID,
			Status:     billing.ResultSuccess,
			Ref:        existing,
			Step:       existing.Step,
			Duplicate:  true,
		}, nil
	}
	if !errors.Is(err, billing.ErrOrderRefNotFound) {
		return nil, fmt.Errorf("looking up order ref: %w", err)
	}

	switch txn.Type {
	case billing.TransactionReturn:
		return s.synthesizeCreditNote(ctx, txn, log)
	default:
		return s.synthesizeOrder(ctx, txn, log)
	}
}

// ---------------------------------------------------------------------------
// Shipments
// ---------------------------------------------------------------------------

func (s *SynthesizerService) synthesizeOrder(ctx context.Context, txn *billing.Transaction, log *zap.Logger) (*billing.Result, error) {
	decision := s.classifier.Classify(txn.TaxContext())
	if decision.DefaultedFrom != "" {
		log.Warn("unknown country defaulted during classification",
			zap.String("country", decision.DefaultedFrom),
			zap.String("treatment", string(decision.Treatment)))
	}

	partnerID, err := s.findOrCreateCounterparty(ctx, txn, decision)
	if err != nil {
		return &billing.Result{
			ExternalID: txn.ExternalID,
			Status:     billing.ResultError,
			Reason:     err.Error(),
		}, err
	}

	orderLines, lineErrors, err := s.buildOrderLines(ctx, txn)
	if err != nil {
		return nil, err
	}
	if len(orderLines) == 0 {
		reason := "no line could be synthesized"
		log.Error("order rejected", zap.String("reason", reason), zap.Int("line_errors", len(lineErrors)))
		return &billing.Result{
			ExternalID: txn.ExternalID,
			Status:     billing.ResultError,
			LineErrors: lineErrors,
			Reason:     reason,
		}, nil
	}

	fields := map[string]any{
		"partner_id":       partnerID,
		"client_order_ref": txn.ExternalID,
		"origin":           txn.ExternalID,
		"order_line":       orderLines,
	}
	if decision.FiscalPositionRef != "" {
		fpID, err := s.namedID(ctx, "account.fiscal.position", decision.FiscalPositionRef)
		if err != nil {
			return nil, err
		}
		fields["fiscal_position_id"] = fpID
	}

	orderID, err := s.erp.Create(ctx, "sale.order", fields)
	if err != nil {
		return nil, fmt.Errorf("creating sale order: %w", err)
	}

	ref := billing.NewOrderRef(txn.ExternalID, orderID, billing.RefKindOrder)
	if err := s.refs.Save(ctx, ref); err != nil {
		// A concurrent attempt won the race; its document stands, ours is a
		// leftover the operator removes from the ERP draft queue.
		if existing, findErr := s.refs.FindByExternalID(ctx, txn.ExternalID); findErr == nil {
			log.Warn("lost idempotency race, keeping first document",
				zap.Int64("kept_erp_order_id", existing.ErpOrderID),
				zap.Int64("orphaned_erp_order_id", orderID))
			return &billing.Result{
				ExternalID: txn.ExternalID,
				Status:     billing.ResultSuccess,
				Ref:        existing,
				Step:       existing.Step,
				Duplicate:  true,
			}, nil
		}
		return nil, fmt.Errorf("recording order ref: %w", err)
	}

	result := &billing.Result{
		ExternalID: txn.ExternalID,
		Status:     billing.ResultSuccess,
		Ref:        ref,
		Step:       billing.StepCreated,
		LineErrors: lineErrors,
	}

	s.advanceSaga(ctx, ref, result, log)
	log.Info("sale order synthesized",
		zap.Int64("erp_order_id", orderID),
		zap.String("treatment", string(decision.Treatment)),
		zap.String("step", string(result.Step)),
		zap.Int("line_errors", len(lineErrors)),
	)
	return result, nil
}

// advanceSaga confirms the order and validates its delivery. Each step is
// best-effort: a failure leaves the ref at the furthest step reached and the
// next attempt on the same external id resumes from there.
func (s *SynthesizerService) advanceSaga(ctx context.Context, ref *billing.OrderRef, result *billing.Result, log *zap.Logger) {
	if _, err := s.erp.Execute(ctx, "sale.order", "action_confirm", []int64{ref.ErpOrderID}); err != nil {
		log.Warn("order confirmation failed, left in draft", zap.Error(err))
		result.Reason = fmt.Sprintf("confirmation failed: %v", err)
		return
	}
	ref.Advance(billing.StepConfirmed)
	result.Step = billing.StepConfirmed
	if err := s.refs.Update(ctx, ref); err != nil {
		log.Error("persisting confirmed step", zap.Error(err))
	}

	pickings, err := s.erp.Search(ctx, "stock.picking", []integration.Condition{
		integration.Eq("sale_id", ref.ErpOrderID),
	})
	if err != nil || len(pickings) == 0 {
		log.Warn("no delivery to validate", zap.Error(err))
		return
	}
	if _, err := s.erp.Execute(ctx, "stock.picking", "button_validate", pickings); err != nil {
		log.Warn("delivery validation failed, order stays confirmed", zap.Error(err))
		result.Reason = fmt.Sprintf("fulfillment failed: %v", err)
		return
	}
	ref.Advance(billing.StepFulfilled)
	result.Step = billing.StepFulfilled
	if err := s.refs.Update(ctx, ref); err != nil {
		log.Error("persisting fulfilled step", zap.Error(err))
	}
}

// buildOrderLines resolves each channel line to an ERP product. Individual
// line failures are collected, not fatal; freight and its discount are
// appended as separate lines when the transaction carries them.
func (s *SynthesizerService) buildOrderLines(ctx context.Context, txn *billing.Transaction) ([]any, []billing.LineError, error) {
	registry := s.catalog.Registry()
	var lines []any
	var lineErrors []billing.LineError

	for _, line := range txn.Lines {
		res := registry.Resolve(line.ChannelSku)
		if !res.Resolved() {
			s.catalog.ReportUnresolved(ctx, line.ChannelSku)
			lineErrors = append(lineErrors, billing.LineError{
				ChannelSku: line.ChannelSku,
				Reason:     "channel SKU could not be resolved",
			})
			continue
		}

		productID, err := s.productID(ctx, res.CanonicalSku)
		if err != nil {
			if errors.Is(err, integration.ErrErpRecordMissing) {
				lineErrors = append(lineErrors, billing.LineError{
					ChannelSku:   line.ChannelSku,
					CanonicalSku: res.CanonicalSku,
					Reason:       "no ERP product for catalog SKU",
				})
				continue
			}
			return nil, nil, err
		}

		qty, _ := line.Quantity.Float64()
		price, _ := line.UnitPrice.Float64()
		lines = append(lines, []any{0, 0, map[string]any{
			"product_id":      productID,
			"product_uom_qty": qty,
			"price_unit":      price,
		}})
	}

	freight := txn.Totals.FreightAmount
	discount := txn.Totals.FreightDiscount
	if s.cfg.FreightProductCode != "" && (freight.IsPositive() || discount.IsPositive()) {
		freightID, err := s.productID(ctx, s.cfg.FreightProductCode)
		switch {
		case err == nil:
			if freight.IsPositive() {
				amount, _ := freight.Float64()
				lines = append(lines, []any{0, 0, map[string]any{
					"product_id":      freightID,
					"product_uom_qty": 1.0,
					"price_unit":      amount,
				}})
			}
			// The discount stays its own negative line so the document still
			// shows the full freight charge
			if discount.IsPositive() {
				amount, _ := discount.Neg().Float64()
				lines = append(lines, []any{0, 0, map[string]any{
					"product_id":      freightID,
					"product_uom_qty": 1.0,
					"price_unit":      amount,
				}})
			}
		case errors.Is(err, integration.ErrErpRecordMissing):
			lineErrors = append(lineErrors, billing.LineError{
				ChannelSku: s.cfg.FreightProductCode,
				Reason:     "freight product missing in ERP",
			})
		default:
			return nil, nil, err
		}
	}

	return lines, lineErrors, nil
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

func (s *SynthesizerService) synthesizeCreditNote(ctx context.Context, txn *billing.Transaction, log *zap.Logger) (*billing.Result, error) {
	var origin *billing.OrderRef
	if txn.OriginExternalID != "" {
		found, err := s.refs.FindByExternalID(ctx, txn.OriginExternalID)
		switch {
		case err == nil:
			origin = found
		case errors.Is(err, billing.ErrOrderRefNotFound):
			// fall through to the standalone decision
		default:
			return nil, fmt.Errorf("looking up origin ref: %w", err)
		}
	}

	if origin == nil && !s.cfg.AllowStandaloneCreditNotes {
		reason := fmt.Sprintf("originating shipment %q unknown", txn.OriginExternalID)
		log.Warn("return skipped", zap.String("reason", reason))
		return &billing.Result{
			ExternalID: txn.ExternalID,
			Status:     billing.ResultSkipped,
			Reason:     reason,
		}, nil
	}

	decision := s.classifier.Classify(txn.TaxContext())
	partnerID, err := s.findOrCreateCounterparty(ctx, txn, decision)
	if err != nil {
		return &billing.Result{
			ExternalID: txn.ExternalID,
			Status:     billing.ResultError,
			Reason:     err.Error(),
		}, err
	}

	invoiceLines, lineErrors, err := s.buildInvoiceLines(ctx, txn)
	if err != nil {
		return nil, err
	}
	if len(invoiceLines) == 0 {
		return &billing.Result{
			ExternalID: txn.ExternalID,
			Status:     billing.ResultError,
			LineErrors: lineErrors,
			Reason:     "no line could be synthesized",
		}, nil
	}

	fields := map[string]any{
		"move_type":        "out_refund",
		"partner_id":       partnerID,
		"ref":              txn.ExternalID,
		"invoice_line_ids": invoiceLines,
	}
	if origin != nil {
		fields["invoice_origin"] = txn.OriginExternalID
	}
	if decision.JournalRef != "" {
		journalID, err := s.namedID(ctx, "account.journal", decision.JournalRef)
		if err != nil {
			return nil, err
		}
		fields["journal_id"] = journalID
	}

	moveID, err := s.erp.Create(ctx, "account.move", fields)
	if err != nil {
		return nil, fmt.Errorf("creating credit note: %w", err)
	}

	ref := billing.NewOrderRef(txn.ExternalID, moveID, billing.RefKindCreditNote)
	if err := s.refs.Save(ctx, ref); err != nil {
		if existing, findErr := s.refs.FindByExternalID(ctx, txn.ExternalID); findErr == nil {
			log.Warn("lost idempotency race, keeping first credit note",
				zap.Int64("kept_erp_order_id", existing.ErpOrderID),
				zap.Int64("orphaned_erp_order_id", moveID))
			return &billing.Result{
				ExternalID: txn.ExternalID,
				Status:     billing.ResultSuccess,
				Ref:        existing,
				Step:       existing.Step,
				Duplicate:  true,
			}, nil
		}
		return nil, fmt.Errorf("recording credit note ref: %w", err)
	}

	result := &billing.Result{
		ExternalID: txn.ExternalID,
		Status:     billing.ResultSuccess,
		Ref:        ref,
		Step:       billing.StepCreated,
		LineErrors: lineErrors,
	}
	if _, err := s.erp.Execute(ctx, "account.move", "action_post", []int64{moveID}); err != nil {
		log.Warn("credit note left in draft", zap.Error(err))
		result.Reason = fmt.Sprintf("posting failed: %v", err)
	} else {
		ref.Advance(billing.StepConfirmed)
		result.Step = billing.StepConfirmed
		if err := s.refs.Update(ctx, ref); err != nil {
			log.Error("persisting posted step", zap.Error(err))
		}
	}

	log.Info("credit note synthesized",
		zap.Int64("erp_move_id", moveID),
		zap.Bool("standalone", origin == nil))
	return result, nil
}

func (s *SynthesizerService) buildInvoiceLines(ctx context.Context, txn *billing.Transaction) ([]any, []billing.LineError, error) {
	registry := s.catalog.Registry()
	var lines []any
	var lineErrors []billing.LineError

	for _, line := range txn.Lines {
		res := registry.Resolve(line.ChannelSku)
		if !res.Resolved() {
			s.catalog.ReportUnresolved(ctx, line.ChannelSku)
			lineErrors = append(lineErrors, billing.LineError{
				ChannelSku: line.ChannelSku,
				Reason:     "channel SKU could not be resolved",
			})
			continue
		}
		productID, err := s.productID(ctx, res.CanonicalSku)
		if err != nil {
			if errors.Is(err, integration.ErrErpRecordMissing) {
				lineErrors = append(lineErrors, billing.LineError{
					ChannelSku:   line.ChannelSku,
					CanonicalSku: res.CanonicalSku,
					Reason:       "no ERP product for catalog SKU",
				})
				continue
			}
			return nil, nil, err
		}
		qty, _ := line.Quantity.Float64()
		price, _ := line.UnitPrice.Float64()
		lines = append(lines, []any{0, 0, map[string]any{
			"product_id": productID,
			"quantity":   qty,
			"price_unit": price,
		}})
	}
	return lines, lineErrors, nil
}

// ---------------------------------------------------------------------------
// Counterparties and lookups
// ---------------------------------------------------------------------------

// findOrCreateCounterparty returns the ERP partner for the transaction.
// Business buyers with a VAT number get a real partner record enriched with
// name and country; consumer sales collapse onto one generic partner per
// treatment bucket.
func (s *SynthesizerService) findOrCreateCounterparty(ctx context.Context, txn *billing.Transaction, decision tax.Decision) (int64, error) {
	if txn.IsBusinessOrder && txn.BuyerVat != "" {
		return s.findOrCreateBusinessPartner(ctx, txn)
	}
	return s.findOrCreateBucketPartner(ctx, decision)
}

func (s *SynthesizerService) findOrCreateBusinessPartner(ctx context.Context, txn *billing.Transaction) (int64, error) {
	ids, err := s.erp.Search(ctx, "res.partner", []integration.Condition{
		integration.Eq("vat", txn.BuyerVat),
	})
	if err != nil {
		return 0, fmt.Errorf("searching business partner: %w", err)
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	name := txn.BuyerCompany
	if name == "" {
		name = txn.BuyerName
	}
	if name == "" {
		name = txn.BuyerVat
	}
	fields := map[string]any{
		"name":       name,
		"vat":        txn.BuyerVat,
		"is_company": true,
	}
	if countryID, err := s.countryID(ctx, txn.ShipTo); err == nil {
		fields["country_id"] = countryID
	}

	id, err := s.erp.Create(ctx, "res.partner", fields)
	if err != nil {
		return 0, fmt.Errorf("creating business partner: %w", err)
	}
	s.logger.Info("business partner created",
		zap.Int64("partner_id", id), zap.String("vat", txn.BuyerVat))
	return id, nil
}

func (s *SynthesizerService) findOrCreateBucketPartner(ctx context.Context, decision tax.Decision) (int64, error) {
	key := decision.CustomerBucketKey
	ids, err := s.erp.Search(ctx, "res.partner", []integration.Condition{
		integration.Eq("ref", key),
	})
	if err != nil {
		return 0, fmt.Errorf("searching bucket partner: %w", err)
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	id, err := s.erp.Create(ctx, "res.partner", map[string]any{
		"name":       fmt.Sprintf("Marketplace customers %s", key),
		"ref":        key,
		"is_company": false,
	})
	if err != nil {
		return 0, fmt.Errorf("creating bucket partner %q: %w", key, err)
	}
	s.logger.Info("bucket partner created",
		zap.Int64("partner_id", id), zap.String("bucket", key))
	return id, nil
}

// productID resolves a catalog code to the ERP product id
func (s *SynthesizerService) productID(ctx context.Context, code string) (int64, error) {
	if id, ok := s.cachedID("product.product/" + code); ok {
		return id, nil
	}
	ids, err := s.erp.Search(ctx, "product.product", []integration.Condition{
		integration.Eq("default_code", code),
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: product.product default_code=%q", integration.ErrErpRecordMissing, code)
	}
	s.cacheID("product.product/"+code, ids[0])
	return ids[0], nil
}

// countryID resolves an ISO code to the ERP country id, cached for the
// process lifetime since country records never change.
func (s *SynthesizerService) countryID(ctx context.Context, code string) (int64, error) {
	s.mu.Lock()
	if id, ok := s.countryIDs[code]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	ids, err := s.erp.Search(ctx, "res.country", []integration.Condition{
		integration.Eq("code", code),
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: res.country code=%q", integration.ErrErpRecordMissing, code)
	}

	s.mu.Lock()
	s.countryIDs[code] = ids[0]
	s.mu.Unlock()
	return ids[0], nil
}

// namedID resolves a record by name, cached per (model, name)
func (s *SynthesizerService) namedID(ctx context.Context, model, name string) (int64, error) {
	key := model + "/" + name
	if id, ok := s.cachedID(key); ok {
		return id, nil
	}
	ids, err := s.erp.Search(ctx, model, []integration.Condition{
		integration.Eq("name", name),
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: %s name=%q", integration.ErrErpRecordMissing, model, name)
	}
	s.cacheID(key, ids[0])
	return ids[0], nil
}

func (s *SynthesizerService) cachedID(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.namedIDs[key]
	return id, ok
}

func (s *SynthesizerService) cacheID(key string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namedIDs[key] = id
}
