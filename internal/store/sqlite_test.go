package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-memory/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLiteStore_SaveMemory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	saved, err := st.SaveMemory(ctx, model.MemoryEntry{
		VendorName:             "Supplier GmbH",
		Type:                   model.MemoryTypeVendor,
		Key:                    model.KeyLabelMappingLeistungsdatum,
		Value:                  json.RawMessage(`{"targetField":"serviceDate"}`),
		Confidence:             0.6,
		PositiveReinforcements: 1,
	})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.False(t, saved.UpdatedAt.IsZero())

	memories, err := st.GetVendorMemories(ctx, "Supplier GmbH", 0)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, model.KeyLabelMappingLeistungsdatum, memories[0].Key)
	assert.Equal(t, 0.6, memories[0].Confidence)
	assert.Equal(t, 1, memories[0].PositiveReinforcements)
}

func TestSQLiteStore_UpdateMemory_ClampsConfidence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	saved, err := st.SaveMemory(ctx, model.MemoryEntry{
		VendorName: "Parts AG",
		Type:       model.MemoryTypeVendor,
		Key:        model.KeyTaxBehaviorVATInclusive,
		Value:      json.RawMessage(`{"strategy":"RECOMPUTE_FROM_GROSS"}`),
		Confidence: 0.7,
	})
	require.NoError(t, err)

	saved.Confidence = 1.4
	updated, err := st.UpdateMemory(ctx, *saved)
	require.NoError(t, err)
	assert.Equal(t, 1.0, updated.Confidence)

	saved.Confidence = -0.2
	updated, err = st.UpdateMemory(ctx, *saved)
	require.NoError(t, err)
	assert.Equal(t, 0.0, updated.Confidence)
}

func TestSQLiteStore_UpdateMemory_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.UpdateMemory(context.Background(), model.MemoryEntry{
		ID:  9999,
		Key: "label_mapping:missing",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_GetVendorMemories_Filtering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, m := range []model.MemoryEntry{
		{VendorName: "Supplier GmbH", Type: model.MemoryTypeVendor, Key: "label_mapping:a", Value: json.RawMessage(`{}`), Confidence: 0.6},
		{VendorName: "Supplier GmbH", Type: model.MemoryTypeVendor, Key: "label_mapping:b", Value: json.RawMessage(`{}`), Confidence: 0.3},
		{VendorName: "Parts AG", Type: model.MemoryTypeVendor, Key: "label_mapping:c", Value: json.RawMessage(`{}`), Confidence: 0.9},
		{VendorName: "", Type: model.MemoryTypeVendor, Key: "currency_default", Value: json.RawMessage(`{}`), Confidence: 0.8},
	} {
		_, err := st.SaveMemory(ctx, m)
		require.NoError(t, err)
	}

	// Vendor memories plus global ones, above the floor.
	memories, err := st.GetVendorMemories(ctx, "Supplier GmbH", 0.4)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	keys := []string{memories[0].Key, memories[1].Key}
	assert.Contains(t, keys, "label_mapping:a")
	assert.Contains(t, keys, "currency_default")

	// Floor at zero returns the low-confidence one too.
	memories, err = st.GetVendorMemories(ctx, "Supplier GmbH", 0)
	require.NoError(t, err)
	assert.Len(t, memories, 3)

	// Other vendors never leak in.
	memories, err = st.GetVendorMemories(ctx, "Freight & Co", 0.4)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "currency_default", memories[0].Key)
}

func TestSQLiteStore_SaveInvoiceMeta_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveInvoiceMeta(ctx, "inv-1", "Parts AG", "R-100", "2024-03-01"))
	// Re-saving the same id with different data is a no-op.
	require.NoError(t, st.SaveInvoiceMeta(ctx, "inv-1", "Parts AG", "R-999", "2024-04-01"))

	dup, err := st.FindDuplicate(ctx, "inv-2", "Parts AG", "R-100", "2024-03-01")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "inv-1", dup.ID)
	assert.Equal(t, "2024-03-01", dup.InvoiceDate)

	dup, err = st.FindDuplicate(ctx, "inv-2", "Parts AG", "R-999", "2024-04-01")
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestSQLiteStore_FindDuplicate_DateWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveInvoiceMeta(ctx, "inv-1", "Freight & Co", "F-77", "2024-03-10"))

	tests := []struct {
		name string
		date string
		hit  bool
	}{
		{"same day", "2024-03-10", true},
		{"two days later", "2024-03-12", true},
		{"two days earlier", "2024-03-08", true},
		{"three days later", "2024-03-13", false},
		{"three days earlier", "2024-03-07", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup, err := st.FindDuplicate(ctx, "inv-2", "Freight & Co", "F-77", tt.date)
			require.NoError(t, err)
			if tt.hit {
				require.NotNil(t, dup)
				assert.Equal(t, "inv-1", dup.ID)
			} else {
				assert.Nil(t, dup)
			}
		})
	}
}

func TestSQLiteStore_FindDuplicate_RequiresSameVendorAndNumber(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveInvoiceMeta(ctx, "inv-1", "Parts AG", "R-100", "2024-03-01"))

	dup, err := st.FindDuplicate(ctx, "inv-2", "Supplier GmbH", "R-100", "2024-03-01")
	require.NoError(t, err)
	assert.Nil(t, dup)

	dup, err = st.FindDuplicate(ctx, "inv-2", "Parts AG", "R-101", "2024-03-01")
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestSQLiteStore_FindDuplicate_ExcludesOwnRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Both rows land in the same created_at second, and the second id sorts
	// before the first. The lookup for inv-a must still surface inv-z, never
	// inv-a's own row.
	require.NoError(t, st.SaveInvoiceMeta(ctx, "inv-z", "Parts AG", "A-1", "2024-06-01"))
	require.NoError(t, st.SaveInvoiceMeta(ctx, "inv-a", "Parts AG", "A-1", "2024-06-01"))

	dup, err := st.FindDuplicate(ctx, "inv-a", "Parts AG", "A-1", "2024-06-01")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "inv-z", dup.ID)

	dup, err = st.FindDuplicate(ctx, "inv-z", "Parts AG", "A-1", "2024-06-01")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "inv-a", dup.ID)

	// With only its own row present, an invoice has no duplicate.
	require.NoError(t, st.Reset(ctx))
	require.NoError(t, st.SaveInvoiceMeta(ctx, "inv-a", "Parts AG", "A-1", "2024-06-01"))
	dup, err = st.FindDuplicate(ctx, "inv-a", "Parts AG", "A-1", "2024-06-01")
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestSQLiteStore_Audit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	steps := []model.AuditStep{model.StepRecall, model.StepApply, model.StepDecide}
	for _, step := range steps {
		require.NoError(t, st.RecordAudit(ctx, "inv-1", model.AuditEntry{
			Step:    step,
			Details: "details for " + string(step),
		}))
	}
	require.NoError(t, st.RecordAudit(ctx, "inv-2", model.AuditEntry{
		Step:    model.StepLearn,
		Details: "other invoice",
	}))

	entries, err := st.ListAudit(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, step := range steps {
		assert.Equal(t, step, entries[i].Step)
	}

	entries, err = st.ListAudit(ctx, "inv-3")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteStore_Reset(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.SaveMemory(ctx, model.MemoryEntry{
		VendorName: "Parts AG", Type: model.MemoryTypeVendor,
		Key: "currency_default", Value: json.RawMessage(`{}`), Confidence: 0.7,
	})
	require.NoError(t, err)
	require.NoError(t, st.SaveInvoiceMeta(ctx, "inv-1", "Parts AG", "R-100", "2024-03-01"))
	require.NoError(t, st.RecordAudit(ctx, "inv-1", model.AuditEntry{Step: model.StepRecall, Details: "x"}))

	require.NoError(t, st.Reset(ctx))

	memories, err := st.GetVendorMemories(ctx, "Parts AG", 0)
	require.NoError(t, err)
	assert.Empty(t, memories)

	dup, err := st.FindDuplicate(ctx, "inv-2", "Parts AG", "R-100", "2024-03-01")
	require.NoError(t, err)
	assert.Nil(t, dup)

	entries, err := st.ListAudit(ctx, "inv-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteStore_Migrate_Idempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}
