package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBatch(t *testing.T) *SyncBatch {
	t.Helper()
	batch, err := NewSyncBatch("amazon-de", []SyncItem{
		{Sku: "01006", Quantity: 35, PreviousQty: 30},
		{Sku: "18011", Quantity: 12, PreviousQty: 15},
	})
	require.NoError(t, err)
	return batch
}

func TestNewSyncBatch(t *testing.T) {
	batch := newTestBatch(t)

	assert.Equal(t, BatchStatusPending, batch.Status)
	assert.Len(t, batch.Items, 2)
	for _, item := range batch.Items {
		assert.Equal(t, ItemStatusPending, item.Status)
	}
	assert.False(t, batch.CreatedAt.IsZero())

	t.Run("empty batch rejected", func(t *testing.T) {
		_, err := NewSyncBatch("amazon-de", nil)
		assert.ErrorIs(t, err, ErrBatchEmpty)
	})
}

func TestSyncBatch_Submit(t *testing.T) {
	batch := newTestBatch(t)

	require.NoError(t, batch.Submit())
	assert.Equal(t, BatchStatusSubmitted, batch.Status)
	assert.NotNil(t, batch.SubmittedAt)

	t.Run("double submit rejected", func(t *testing.T) {
		assert.ErrorIs(t, batch.Submit(), ErrBatchNotPending)
	})

	t.Run("items immutable post-submission", func(t *testing.T) {
		err := batch.AddItem(SyncItem{Sku: "99999", Quantity: 1})
		assert.ErrorIs(t, err, ErrBatchSealed)
	})
}

func TestSyncBatch_PartialFailureStillCompletes(t *testing.T) {
	// Batch [{A,+5},{B,-3}] where B fails: batch completes, A success, B failed.
	batch, err := NewSyncBatch("amazon-de", []SyncItem{
		{Sku: "A", Quantity: 15, PreviousQty: 10},
		{Sku: "B", Quantity: 7, PreviousQty: 10},
	})
	require.NoError(t, err)
	require.NoError(t, batch.Submit())

	require.NoError(t, batch.MarkItemSuccess("A"))
	require.NoError(t, batch.MarkItemFailed("B", "throttled by channel"))

	require.True(t, batch.AllItemsTerminal())
	require.NoError(t, batch.Complete())

	assert.Equal(t, BatchStatusCompleted, batch.Status)
	assert.Equal(t, 1, batch.SuccessCount())
	assert.Equal(t, 1, batch.FailedCount())
	assert.Equal(t, ItemStatusSuccess, batch.Items[0].Status)
	assert.Equal(t, ItemStatusFailed, batch.Items[1].Status)
	assert.Equal(t, "throttled by channel", batch.Items[1].Error)
}

func TestSyncBatch_CompleteRequiresTerminalItems(t *testing.T) {
	batch := newTestBatch(t)
	require.NoError(t, batch.Submit())
	require.NoError(t, batch.MarkItemSuccess("01006"))

	assert.ErrorIs(t, batch.Complete(), ErrBatchIncomplete)
	assert.Len(t, batch.PendingItems(), 1)
}

func TestSyncBatch_Fail(t *testing.T) {
	t.Run("pending batch can fail", func(t *testing.T) {
		batch := newTestBatch(t)
		require.NoError(t, batch.Fail("channel unreachable"))
		assert.Equal(t, BatchStatusFailed, batch.Status)
		assert.Equal(t, "channel unreachable", batch.Reason)
	})

	t.Run("batch with applied items cannot fail wholesale", func(t *testing.T) {
		batch := newTestBatch(t)
		require.NoError(t, batch.Submit())
		require.NoError(t, batch.MarkItemSuccess("01006"))
		assert.ErrorIs(t, batch.Fail("nope"), ErrBatchIncomplete)
	})

	t.Run("terminal batch cannot fail again", func(t *testing.T) {
		batch := newTestBatch(t)
		require.NoError(t, batch.Fail("first"))
		assert.ErrorIs(t, batch.Fail("second"), ErrBatchTerminal)
	})
}

func TestSyncBatch_MarkUnknownSku(t *testing.T) {
	batch := newTestBatch(t)
	require.NoError(t, batch.Submit())
	assert.ErrorIs(t, batch.MarkItemSuccess("nope"), ErrBatchItemUnknown)
}
