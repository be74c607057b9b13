package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-memory/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_SaveMemory(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO memories`).
		WithArgs(pgxmock.AnyArg(), "VENDOR", model.KeyTaxBehaviorVATInclusive, pgxmock.AnyArg(),
			0.7, 1, 0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	saved, err := st.SaveMemory(context.Background(), model.MemoryEntry{
		VendorName:             "Parts AG",
		Type:                   model.MemoryTypeVendor,
		Key:                    model.KeyTaxBehaviorVATInclusive,
		Value:                  json.RawMessage(`{"strategy":"RECOMPUTE_FROM_GROSS"}`),
		Confidence:             0.7,
		PositiveReinforcements: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), saved.ID)
	assert.False(t, saved.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateMemory(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE memories SET`).
		WithArgs(1.0, 3, 0, pgxmock.AnyArg(), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// Confidence above 1 is clamped before the write.
	updated, err := st.UpdateMemory(context.Background(), model.MemoryEntry{
		ID:                     42,
		Key:                    model.KeyTaxBehaviorVATInclusive,
		Confidence:             1.1,
		PositiveReinforcements: 3,
	})

	require.NoError(t, err)
	assert.Equal(t, 1.0, updated.Confidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateMemory_NotFound(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE memories SET`).
		WithArgs(0.5, 0, 0, pgxmock.AnyArg(), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := st.UpdateMemory(context.Background(), model.MemoryEntry{
		ID: 7, Key: "label_mapping:missing", Confidence: 0.5,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetVendorMemories(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, vendor_name, type, key, value`).
		WithArgs("Supplier GmbH", 0.4).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "vendor_name", "type", "key", "value", "confidence",
			"positive_reinforcements", "negative_reinforcements",
			"last_used_at", "created_at", "updated_at",
		}).AddRow(
			int64(1), "Supplier GmbH", "VENDOR", model.KeyLabelMappingLeistungsdatum,
			`{"targetField":"serviceDate"}`, 0.6, 1, 0, (*time.Time)(nil), now, now,
		))

	memories, err := st.GetVendorMemories(context.Background(), "Supplier GmbH", 0.4)

	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, model.KeyLabelMappingLeistungsdatum, memories[0].Key)

	var mapping model.LabelMapping
	require.NoError(t, memories[0].DecodeValue(&mapping))
	assert.Equal(t, "serviceDate", mapping.TargetField)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordAudit(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO audit_trail`).
		WithArgs(pgxmock.AnyArg(), "inv-1", "recall", pgxmock.AnyArg(), "Recalled 2 memories for vendor Parts AG").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.RecordAudit(context.Background(), "inv-1", model.AuditEntry{
		Step:      model.StepRecall,
		Timestamp: time.Now().UTC(),
		Details:   "Recalled 2 memories for vendor Parts AG",
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindDuplicate_NoRows(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, invoice_date::text FROM invoices`).
		WithArgs("Parts AG", "R-100", "2024-03-01", "inv-2").
		WillReturnRows(pgxmock.NewRows([]string{"id", "invoice_date"}))

	dup, err := st.FindDuplicate(context.Background(), "inv-2", "Parts AG", "R-100", "2024-03-01")

	require.NoError(t, err)
	assert.Nil(t, dup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindDuplicate_Hit(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, invoice_date::text FROM invoices`).
		WithArgs("Parts AG", "R-100", "2024-03-02", "inv-2").
		WillReturnRows(pgxmock.NewRows([]string{"id", "invoice_date"}).AddRow("inv-1", "2024-03-01"))

	dup, err := st.FindDuplicate(context.Background(), "inv-2", "Parts AG", "R-100", "2024-03-02")

	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "inv-1", dup.ID)
	assert.Equal(t, "2024-03-01", dup.InvoiceDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveInvoiceMeta(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO invoices`).
		WithArgs("inv-1", "Parts AG", "R-100", "2024-03-01").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.SaveInvoiceMeta(context.Background(), "inv-1", "Parts AG", "R-100", "2024-03-01")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Reset(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	for _, table := range []string{"memories", "audit_trail", "invoices"} {
		mock.ExpectExec(`DELETE FROM ` + table).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
	}

	assert.NoError(t, st.Reset(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
