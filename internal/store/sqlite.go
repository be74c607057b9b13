package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/invoice-memory/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	vendor_name    TEXT NOT NULL,
	invoice_number TEXT NOT NULL,
	invoice_date   TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS memories (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	vendor_name             TEXT,
	type                    TEXT NOT NULL,
	key                     TEXT NOT NULL,
	value                   TEXT NOT NULL,
	confidence              REAL NOT NULL,
	positive_reinforcements INTEGER NOT NULL DEFAULT 0,
	negative_reinforcements INTEGER NOT NULL DEFAULT 0,
	last_used_at            DATETIME,
	created_at              DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_trail (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	invoice_id TEXT NOT NULL,
	step       TEXT NOT NULL,
	timestamp  DATETIME NOT NULL,
	details    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_vendor ON memories(vendor_name);
CREATE INDEX IF NOT EXISTS idx_invoices_vendor_number ON invoices(vendor_name, invoice_number);
CREATE INDEX IF NOT EXISTS idx_audit_trail_invoice ON audit_trail(invoice_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveMemory(ctx context.Context, entry model.MemoryEntry) (*model.MemoryEntry, error) {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (
			vendor_name, type, key, value, confidence,
			positive_reinforcements, negative_reinforcements,
			last_used_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullable(entry.VendorName), string(entry.Type), entry.Key, string(entry.Value),
		entry.Confidence, entry.PositiveReinforcements, entry.NegativeReinforcements,
		entry.LastUsedAt, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert memory %s", entry.Key)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}
	entry.ID = id
	return &entry, nil
}

func (s *SQLiteStore) UpdateMemory(ctx context.Context, entry model.MemoryEntry) (*model.MemoryEntry, error) {
	entry.Confidence = clamp01(entry.Confidence)
	entry.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET
			confidence = ?, positive_reinforcements = ?, negative_reinforcements = ?, updated_at = ?
		 WHERE id = ?`,
		entry.Confidence, entry.PositiveReinforcements, entry.NegativeReinforcements,
		entry.UpdatedAt, entry.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update memory %d", entry.ID)
	}
	if err := checkRowsAffected(res, "memory", entry.Key); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *SQLiteStore) GetVendorMemories(ctx context.Context, vendor string, minConfidence float64) ([]model.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor_name, type, key, value, confidence,
		        positive_reinforcements, negative_reinforcements,
		        last_used_at, created_at, updated_at
		 FROM memories
		 WHERE (vendor_name = ? OR vendor_name IS NULL) AND confidence >= ?`,
		vendor, minConfidence,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get memories for %s", vendor)
	}
	defer rows.Close()

	var memories []model.MemoryEntry
	for rows.Next() {
		var m model.MemoryEntry
		var vendorName sql.NullString
		var value string
		var lastUsed sql.NullTime
		err := rows.Scan(&m.ID, &vendorName, &m.Type, &m.Key, &value, &m.Confidence,
			&m.PositiveReinforcements, &m.NegativeReinforcements,
			&lastUsed, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan memory")
		}
		m.VendorName = vendorName.String
		m.Value = []byte(value)
		if lastUsed.Valid {
			t := lastUsed.Time
			m.LastUsedAt = &t
		}
		memories = append(memories, m)
	}
	return memories, eris.Wrap(rows.Err(), "sqlite: iterate memories")
}

func (s *SQLiteStore) RecordAudit(ctx context.Context, invoiceID string, entry model.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_trail (invoice_id, step, timestamp, details) VALUES (?, ?, ?, ?)`,
		invoiceID, string(entry.Step), entry.Timestamp, entry.Details,
	)
	return eris.Wrapf(err, "sqlite: record audit for %s", invoiceID)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, invoiceID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, timestamp, details FROM audit_trail WHERE invoice_id = ? ORDER BY id`,
		invoiceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list audit for %s", invoiceID)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.Step, &e.Timestamp, &e.Details); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate audit entries")
}

func (s *SQLiteStore) SaveInvoiceMeta(ctx context.Context, invoiceID, vendor, invoiceNumber, invoiceDate string) error {
	// INSERT OR IGNORE keeps the first record: re-saving the same invoice id
	// is a no-op and never overwrites.
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO invoices (id, vendor_name, invoice_number, invoice_date) VALUES (?, ?, ?, ?)`,
		invoiceID, vendor, invoiceNumber, invoiceDate,
	)
	return eris.Wrapf(err, "sqlite: save invoice meta %s", invoiceID)
}

func (s *SQLiteStore) FindDuplicate(ctx context.Context, invoiceID, vendor, invoiceNumber, invoiceDate string) (*model.InvoiceRef, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, invoice_date FROM invoices
		 WHERE vendor_name = ? AND invoice_number = ?
		   AND ABS(julianday(invoice_date) - julianday(?)) <= 2
		   AND id != ?
		 ORDER BY created_at, id LIMIT 1`,
		vendor, invoiceNumber, invoiceDate, invoiceID,
	)

	var ref model.InvoiceRef
	err := row.Scan(&ref.ID, &ref.InvoiceDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find duplicate")
	}
	return &ref, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	for _, table := range []string{"memories", "audit_trail", "invoices"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: reset %s", table)
		}
	}
	return nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
