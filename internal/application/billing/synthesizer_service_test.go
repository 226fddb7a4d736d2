package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	catalogapp "github.com/marketsync/backend/internal/application/catalog"
	"github.com/marketsync/backend/internal/domain/billing"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/shared"
	"github.com/marketsync/backend/internal/domain/sku"
	"github.com/marketsync/backend/internal/domain/tax"
)

// MockErpClient is a mock implementation of integration.ErpClient
type MockErpClient struct {
	mock.Mock
}

func (m *MockErpClient) Search(ctx context.Context, model string, conditions []integration.Condition) ([]int64, error) {
	args := m.Called(ctx, model, conditions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockErpClient) Read(ctx context.Context, model string, ids []int64, fields []string) ([]map[string]any, error) {
	args := m.Called(ctx, model, ids, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *MockErpClient) Create(ctx context.Context, model string, fields map[string]any) (int64, error) {
	args := m.Called(ctx, model, fields)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockErpClient) Write(ctx context.Context, model string, ids []int64, fields map[string]any) error {
	args := m.Called(ctx, model, ids, fields)
	return args.Error(0)
}

func (m *MockErpClient) Execute(ctx context.Context, model string, method string, callArgs ...any) (any, error) {
	args := m.Called(ctx, model, method, callArgs)
	return args.Get(0), args.Error(1)
}

// MockOrderRefRepository is a mock implementation of billing.OrderRefRepository
type MockOrderRefRepository struct {
	mock.Mock
}

func (m *MockOrderRefRepository) FindByExternalID(ctx context.Context, externalID string) (*billing.OrderRef, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.OrderRef), args.Error(1)
}

func (m *MockOrderRefRepository) Save(ctx context.Context, ref *billing.OrderRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockOrderRefRepository) Update(ctx context.Context, ref *billing.OrderRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

// stub catalog collaborators

type stubConfigStore struct{}

func (stubConfigStore) SkuMappings(context.Context) ([]sku.Mapping, error)          { return nil, nil }
func (stubConfigStore) PutSkuMapping(context.Context, sku.Mapping) error            { return nil }
func (stubConfigStore) ReturnPatterns(context.Context) ([]sku.ReturnPattern, error) { return nil, nil }
func (stubConfigStore) PutReturnPattern(context.Context, sku.ReturnPattern) error   { return nil }
func (stubConfigStore) SafetyStockOverrides(context.Context) ([]sku.SafetyStockOverride, error) {
	return nil, nil
}
func (stubConfigStore) PutSafetyStockOverride(context.Context, sku.SafetyStockOverride) error {
	return nil
}

type stubAlertWindow struct{}

func (stubAlertWindow) Acquire(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
func (stubAlertWindow) Close() error { return nil }

type stubSink struct{ alerts []integration.Alert }

func (s *stubSink) Notify(_ context.Context, a integration.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}

func testCatalog(t *testing.T) *catalogapp.RegistryService {
	t.Helper()
	return catalogapp.NewRegistryService(
		stubConfigStore{}, stubAlertWindow{}, &stubSink{},
		shared.DefaultAlertWindowConfig(),
		sku.RegistryConfig{CatalogWidth: 5, SafetyStockDefault: decimal.NewFromInt(10)},
		zap.NewNop(),
	)
}

func testClassifier() *tax.Classifier {
	countries := tax.NewCountryRegistry([]tax.CountryProfile{
		{Code: "BE", Name: "Belgium", VatRate: decimal.NewFromInt(21), Currency: "EUR", UnionMember: true},
		{Code: "DE", Name: "Germany", VatRate: decimal.NewFromInt(19), Currency: "EUR", UnionMember: true},
		{Code: "US", Name: "United States", Currency: "USD"},
	}, map[string]string{"BE": "VBE", "DE": "VDE"}, "BE")
	refs := tax.ReferenceTable{
		Domestic: map[string]tax.References{
			"BE": {JournalRef: "VBE", FiscalPositionRef: "Domestic"},
			"DE": {JournalRef: "VDE", FiscalPositionRef: "Domestic DE"},
		},
		IntraUnion: map[string]tax.References{
			"BE": {JournalRef: "VBE", FiscalPositionRef: "Intra-Community"},
		},
		OSS:    tax.References{JournalRef: "OSS", FiscalPositionRef: "OSS B2C"},
		Export: tax.References{JournalRef: "EXP", FiscalPositionRef: "Export"},
	}
	return tax.NewClassifier(countries, refs)
}

func newSynthesizer(erp *MockErpClient, refs *MockOrderRefRepository, cfg Config, t *testing.T) *SynthesizerService {
	return NewSynthesizerService(erp, refs, testCatalog(t), testClassifier(), cfg, zap.NewNop())
}

func shipmentTxn(t *testing.T) *billing.Transaction {
	t.Helper()
	txn, err := billing.FromRaw(billing.RawTransaction{
		ExternalID: "306-1",
		Type:       "SHIPMENT",
		ShipFrom:   "BE",
		ShipTo:     "DE",
		Lines: []billing.RawLine{
			{ChannelSku: "1006", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromFloat(9.99)},
		},
	})
	require.NoError(t, err)
	return txn
}

func expectSearch(erp *MockErpClient, model string, field string, value any, ids []int64) {
	erp.On("Search", mock.Anything, model, mock.MatchedBy(func(conds []integration.Condition) bool {
		return len(conds) == 1 && conds[0].Field == field && conds[0].Value == value
	})).Return(ids, nil)
}

func TestSynthesize_DuplicateIsNoOp(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	existing := billing.NewOrderRef("306-1", 42, billing.RefKindOrder)
	existing.Advance(billing.StepFulfilled)
	refs.On("FindByExternalID", mock.Anything, "306-1").Return(existing, nil)

	svc := newSynthesizer(erp, refs, Config{}, t)
	result, err := svc.Synthesize(context.Background(), shipmentTxn(t))

	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.True(t, result.Succeeded(), "a replay is a success referencing the existing document")
	assert.Equal(t, int64(42), result.Ref.ErpOrderID)
	assert.Equal(t, billing.StepFulfilled, result.Step)
	erp.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSynthesize_ShipmentFullSaga(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	refs.On("FindByExternalID", mock.Anything, "306-1").Return(nil, billing.ErrOrderRefNotFound)
	// cross-border B2C: generic OSS bucket partner already exists
	expectSearch(erp, "res.partner", "ref", "OSS/DE", []int64{7})
	expectSearch(erp, "product.product", "default_code", "01006", []int64{101})
	expectSearch(erp, "account.fiscal.position", "name", "OSS B2C", []int64{3})

	erp.On("Create", mock.Anything, "sale.order", mock.MatchedBy(func(fields map[string]any) bool {
		return fields["partner_id"] == int64(7) &&
			fields["client_order_ref"] == "306-1" &&
			fields["fiscal_position_id"] == int64(3)
	})).Return(int64(500), nil)

	refs.On("Save", mock.Anything, mock.MatchedBy(func(r *billing.OrderRef) bool {
		return r.ExternalID == "306-1" && r.ErpOrderID == 500 && r.Kind == billing.RefKindOrder
	})).Return(nil)
	refs.On("Update", mock.Anything, mock.Anything).Return(nil)

	erp.On("Execute", mock.Anything, "sale.order", "action_confirm", mock.Anything).Return(nil, nil)
	expectSearch(erp, "stock.picking", "sale_id", int64(500), []int64{900})
	erp.On("Execute", mock.Anything, "stock.picking", "button_validate", mock.Anything).Return(nil, nil)

	svc := newSynthesizer(erp, refs, Config{}, t)
	result, err := svc.Synthesize(context.Background(), shipmentTxn(t))

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, billing.StepFulfilled, result.Step)
	assert.Empty(t, result.LineErrors)
	erp.AssertExpectations(t)
	refs.AssertExpectations(t)
}

func TestSynthesize_ConfirmFailureLeavesDraft(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	refs.On("FindByExternalID", mock.Anything, "306-1").Return(nil, billing.ErrOrderRefNotFound)
	expectSearch(erp, "res.partner", "ref", "OSS/DE", []int64{7})
	expectSearch(erp, "product.product", "default_code", "01006", []int64{101})
	expectSearch(erp, "account.fiscal.position", "name", "OSS B2C", []int64{3})
	erp.On("Create", mock.Anything, "sale.order", mock.Anything).Return(int64(500), nil)
	refs.On("Save", mock.Anything, mock.Anything).Return(nil)
	erp.On("Execute", mock.Anything, "sale.order", "action_confirm", mock.Anything).
		Return(nil, integration.ErrErpRequestFailed)

	svc := newSynthesizer(erp, refs, Config{}, t)
	result, err := svc.Synthesize(context.Background(), shipmentTxn(t))

	require.NoError(t, err)
	assert.True(t, result.Succeeded(), "the document exists even though confirmation stalled")
	assert.Equal(t, billing.StepCreated, result.Step)
	assert.Contains(t, result.Reason, "confirmation failed")
	refs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestSynthesize_LineErrorsAreNonFatal(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	txn, err := billing.FromRaw(billing.RawTransaction{
		ExternalID: "306-2",
		Type:       "SHIPMENT",
		ShipFrom:   "BE",
		ShipTo:     "DE",
		Lines: []billing.RawLine{
			{ChannelSku: "1006", Quantity: decimal.NewFromInt(1)},
			{ChannelSku: "GHOST", Quantity: decimal.NewFromInt(1)},
		},
	})
	require.NoError(t, err)

	refs.On("FindByExternalID", mock.Anything, "306-2").Return(nil, billing.ErrOrderRefNotFound)
	expectSearch(erp, "res.partner", "ref", "OSS/DE", []int64{7})
	expectSearch(erp, "product.product", "default_code", "01006", []int64{101})
	// GHOST resolves direct but has no ERP product
	expectSearch(erp, "product.product", "default_code", "GHOST", nil)
	expectSearch(erp, "account.fiscal.position", "name", "OSS B2C", []int64{3})
	erp.On("Create", mock.Anything, "sale.order", mock.Anything).Return(int64(501), nil)
	refs.On("Save", mock.Anything, mock.Anything).Return(nil)
	refs.On("Update", mock.Anything, mock.Anything).Return(nil)
	erp.On("Execute", mock.Anything, "sale.order", "action_confirm", mock.Anything).Return(nil, nil)
	expectSearch(erp, "stock.picking", "sale_id", int64(501), []int64{901})
	erp.On("Execute", mock.Anything, "stock.picking", "button_validate", mock.Anything).Return(nil, nil)

	svc := newSynthesizer(erp, refs, Config{}, t)
	result, err := svc.Synthesize(context.Background(), txn)

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	require.Len(t, result.LineErrors, 1)
	assert.Equal(t, "GHOST", result.LineErrors[0].ChannelSku)
}

func TestSynthesize_AllLinesFailedRejectsOrder(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	txn, err := billing.FromRaw(billing.RawTransaction{
		ExternalID: "306-3",
		Type:       "SHIPMENT",
		ShipFrom:   "BE",
		ShipTo:     "DE",
		Lines: []billing.RawLine{
			{ChannelSku: "GHOST", Quantity: decimal.NewFromInt(1)},
		},
	})
	require.NoError(t, err)

	refs.On("FindByExternalID", mock.Anything, "306-3").Return(nil, billing.ErrOrderRefNotFound)
	expectSearch(erp, "res.partner", "ref", "OSS/DE", []int64{7})
	expectSearch(erp, "product.product", "default_code", "GHOST", nil)

	svc := newSynthesizer(erp, refs, Config{}, t)
	result, err := svc.Synthesize(context.Background(), txn)

	require.NoError(t, err)
	assert.Equal(t, billing.ResultError, result.Status)
	require.Len(t, result.LineErrors, 1)
	erp.AssertNotCalled(t, "Create", mock.Anything, "sale.order", mock.Anything)
	refs.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSynthesize_BusinessBuyerGetsRealPartner(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	txn, err := billing.FromRaw(billing.RawTransaction{
		ExternalID:      "306-4",
		Type:            "SHIPMENT",
		ShipFrom:        "BE",
		ShipTo:          "DE",
		BuyerVat:        "DE129273398",
		BuyerCompany:    "Musterfirma GmbH",
		IsBusinessOrder: true,
		Lines: []billing.RawLine{
			{ChannelSku: "1006", Quantity: decimal.NewFromInt(5)},
		},
	})
	require.NoError(t, err)

	refs.On("FindByExternalID", mock.Anything, "306-4").Return(nil, billing.ErrOrderRefNotFound)
	// no partner with this VAT yet; created with name, vat and country
	expectSearch(erp, "res.partner", "vat", "DE129273398", nil)
	expectSearch(erp, "res.country", "code", "DE", []int64{57})
	erp.On("Create", mock.Anything, "res.partner", mock.MatchedBy(func(fields map[string]any) bool {
		return fields["name"] == "Musterfirma GmbH" &&
			fields["vat"] == "DE129273398" &&
			fields["is_company"] == true &&
			fields["country_id"] == int64(57)
	})).Return(int64(88), nil)

	expectSearch(erp, "product.product", "default_code", "01006", []int64{101})
	expectSearch(erp, "account.fiscal.position", "name", "Intra-Community", []int64{4})
	erp.On("Create", mock.Anything, "sale.order", mock.MatchedBy(func(fields map[string]any) bool {
		return fields["partner_id"] == int64(88) && fields["fiscal_position_id"] == int64(4)
	})).Return(int64(502), nil)
	refs.On("Save", mock.Anything, mock.Anything).Return(nil)
	refs.On("Update", mock.Anything, mock.Anything).Return(nil)
	erp.On("Execute", mock.Anything, "sale.order", "action_confirm", mock.Anything).Return(nil, nil)
	expectSearch(erp, "stock.picking", "sale_id", int64(502), []int64{902})
	erp.On("Execute", mock.Anything, "stock.picking", "button_validate", mock.Anything).Return(nil, nil)

	svc := newSynthesizer(erp, refs, Config{}, t)
	result, err := svc.Synthesize(context.Background(), txn)

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	erp.AssertExpectations(t)
}

func TestSynthesize_LostSaveRaceYieldsDuplicate(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	winner := billing.NewOrderRef("306-1", 499, billing.RefKindOrder)
	refs.On("FindByExternalID", mock.Anything, "306-1").
		Return(nil, billing.ErrOrderRefNotFound).Once()
	expectSearch(erp, "res.partner", "ref", "OSS/DE", []int64{7})
	expectSearch(erp, "product.product", "default_code", "01006", []int64{101})
	expectSearch(erp, "account.fiscal.position", "name", "OSS B2C", []int64{3})
	erp.On("Create", mock.Anything, "sale.order", mock.Anything).Return(int64(500), nil)
	refs.On("Save", mock.Anything, mock.Anything).Return(errors.New("duplicate key"))
	refs.On("FindByExternalID", mock.Anything, "306-1").Return(winner, nil)

	svc := newSynthesizer(erp, refs, Config{}, t)
	result, err := svc.Synthesize(context.Background(), shipmentTxn(t))

	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.True(t, result.Succeeded())
	assert.Equal(t, int64(499), result.Ref.ErpOrderID, "first document wins")
	erp.AssertNotCalled(t, "Execute", mock.Anything, "sale.order", "action_confirm", mock.Anything)
}

func TestSynthesize_FreightAndDiscountAreSeparateLines(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	// freight fully discounted; both sides must still appear on the document
	txn, err := billing.FromRaw(billing.RawTransaction{
		ExternalID:      "306-6",
		Type:            "SHIPMENT",
		ShipFrom:        "BE",
		ShipTo:          "DE",
		FreightAmount:   decimal.NewFromFloat(4.9),
		FreightDiscount: decimal.NewFromFloat(4.9),
		Lines: []billing.RawLine{
			{ChannelSku: "1006", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromFloat(9.99)},
		},
	})
	require.NoError(t, err)

	refs.On("FindByExternalID", mock.Anything, "306-6").Return(nil, billing.ErrOrderRefNotFound)
	expectSearch(erp, "res.partner", "ref", "OSS/DE", []int64{7})
	expectSearch(erp, "product.product", "default_code", "01006", []int64{101})
	expectSearch(erp, "product.product", "default_code", "SHIP", []int64{200})
	expectSearch(erp, "account.fiscal.position", "name", "OSS B2C", []int64{3})

	erp.On("Create", mock.Anything, "sale.order", mock.MatchedBy(func(fields map[string]any) bool {
		orderLines, ok := fields["order_line"].([]any)
		if !ok || len(orderLines) != 3 {
			return false
		}
		freight := orderLines[1].([]any)[2].(map[string]any)
		rebate := orderLines[2].([]any)[2].(map[string]any)
		return freight["product_id"] == int64(200) && freight["price_unit"] == 4.9 &&
			rebate["product_id"] == int64(200) && rebate["price_unit"] == -4.9
	})).Return(int64(503), nil)
	refs.On("Save", mock.Anything, mock.Anything).Return(nil)
	erp.On("Execute", mock.Anything, "sale.order", "action_confirm", mock.Anything).
		Return(nil, integration.ErrErpRequestFailed)

	svc := newSynthesizer(erp, refs, Config{FreightProductCode: "SHIP"}, t)
	result, err := svc.Synthesize(context.Background(), txn)

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	erp.AssertExpectations(t)
}

func returnTxn(t *testing.T, origin string) *billing.Transaction {
	t.Helper()
	txn, err := billing.FromRaw(billing.RawTransaction{
		ExternalID:       "306-1-RET",
		Type:             "RETURN",
		ShipFrom:         "BE",
		ShipTo:           "DE",
		OriginExternalID: origin,
		Lines: []billing.RawLine{
			{ChannelSku: "1006", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromFloat(9.99)},
		},
	})
	require.NoError(t, err)
	return txn
}

func TestSynthesize_ReturnCreatesCreditNote(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	origin := billing.NewOrderRef("306-1", 500, billing.RefKindOrder)
	refs.On("FindByExternalID", mock.Anything, "306-1-RET").Return(nil, billing.ErrOrderRefNotFound)
	refs.On("FindByExternalID", mock.Anything, "306-1").Return(origin, nil)

	expectSearch(erp, "res.partner", "ref", "OSS/DE", []int64{7})
	expectSearch(erp, "product.product", "default_code", "01006", []int64{101})
	expectSearch(erp, "account.journal", "name", "OSS", []int64{11})

	erp.On("Create", mock.Anything, "account.move", mock.MatchedBy(func(fields map[string]any) bool {
		return fields["move_type"] == "out_refund" &&
			fields["invoice_origin"] == "306-1" &&
			fields["journal_id"] == int64(11)
	})).Return(int64(700), nil)
	refs.On("Save", mock.Anything, mock.MatchedBy(func(r *billing.OrderRef) bool {
		return r.Kind == billing.RefKindCreditNote && r.ErpOrderID == 700
	})).Return(nil)
	refs.On("Update", mock.Anything, mock.Anything).Return(nil)
	erp.On("Execute", mock.Anything, "account.move", "action_post", mock.Anything).Return(nil, nil)

	svc := newSynthesizer(erp, refs, Config{}, t)
	result, err := svc.Synthesize(context.Background(), returnTxn(t, "306-1"))

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, billing.StepConfirmed, result.Step)
	erp.AssertExpectations(t)
}

func TestSynthesize_OrphanReturnSkippedByDefault(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	refs.On("FindByExternalID", mock.Anything, "306-1-RET").Return(nil, billing.ErrOrderRefNotFound)
	refs.On("FindByExternalID", mock.Anything, "UNKNOWN").Return(nil, billing.ErrOrderRefNotFound)

	svc := newSynthesizer(erp, refs, Config{}, t)
	result, err := svc.Synthesize(context.Background(), returnTxn(t, "UNKNOWN"))

	require.NoError(t, err)
	assert.Equal(t, billing.ResultSkipped, result.Status)
	assert.False(t, result.Duplicate)
	erp.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSynthesize_OrphanReturnAllowedWhenConfigured(t *testing.T) {
	erp := new(MockErpClient)
	refs := new(MockOrderRefRepository)

	refs.On("FindByExternalID", mock.Anything, "306-1-RET").Return(nil, billing.ErrOrderRefNotFound)
	refs.On("FindByExternalID", mock.Anything, "UNKNOWN").Return(nil, billing.ErrOrderRefNotFound)

	expectSearch(erp, "res.partner", "ref", "OSS/DE", []int64{7})
	expectSearch(erp, "product.product", "default_code", "01006", []int64{101})
	expectSearch(erp, "account.journal", "name", "OSS", []int64{11})
	erp.On("Create", mock.Anything, "account.move", mock.MatchedBy(func(fields map[string]any) bool {
		_, hasOrigin := fields["invoice_origin"]
		return fields["move_type"] == "out_refund" && !hasOrigin
	})).Return(int64(701), nil)
	refs.On("Save", mock.Anything, mock.Anything).Return(nil)
	refs.On("Update", mock.Anything, mock.Anything).Return(nil)
	erp.On("Execute", mock.Anything, "account.move", "action_post", mock.Anything).Return(nil, nil)

	svc := newSynthesizer(erp, refs, Config{AllowStandaloneCreditNotes: true}, t)
	result, err := svc.Synthesize(context.Background(), returnTxn(t, "UNKNOWN"))

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
}

func TestSynthesizeRaw_InvalidPayload(t *testing.T) {
	svc := newSynthesizer(new(MockErpClient), new(MockOrderRefRepository), Config{}, t)

	result, err := svc.SynthesizeRaw(context.Background(), billing.RawTransaction{
		ExternalID: "306-5",
		Type:       "GIFT",
		ShipFrom:   "BE",
		ShipTo:     "DE",
	})

	assert.Error(t, err)
	assert.Equal(t, billing.ResultError, result.Status)
}
