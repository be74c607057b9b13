package store

import (
	"context"

	"github.com/sells-group/invoice-memory/internal/model"
)

// Store defines the persistence contract the decision engine depends on.
// Any durable medium satisfying it is substitutable.
type Store interface {
	// Memories
	SaveMemory(ctx context.Context, entry model.MemoryEntry) (*model.MemoryEntry, error)
	UpdateMemory(ctx context.Context, entry model.MemoryEntry) (*model.MemoryEntry, error)
	// GetVendorMemories returns memories whose vendor matches OR is global
	// (empty vendor), filtered to confidence >= minConfidence. Order is
	// unspecified; callers must not depend on it.
	GetVendorMemories(ctx context.Context, vendor string, minConfidence float64) ([]model.MemoryEntry, error)

	// Audit trail (append-only; write failures propagate to the caller)
	RecordAudit(ctx context.Context, invoiceID string, entry model.AuditEntry) error
	ListAudit(ctx context.Context, invoiceID string) ([]model.AuditEntry, error)

	// Invoice identity metadata for duplicate detection
	SaveInvoiceMeta(ctx context.Context, invoiceID, vendor, invoiceNumber, invoiceDate string) error
	// FindDuplicate returns at most one invoice other than invoiceID with the
	// same vendor and invoice number whose date is within an inclusive 2-day
	// window. Excluding the invoice's own row must happen here: the query
	// returns a single row, so filtering afterwards could hide a real
	// duplicate behind the invoice itself.
	FindDuplicate(ctx context.Context, invoiceID, vendor, invoiceNumber, invoiceDate string) (*model.InvoiceRef, error)

	// Lifecycle
	Reset(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
