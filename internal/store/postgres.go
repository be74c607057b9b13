package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-memory/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, narrow enough for
// pgxmock to satisfy in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	vendor_name    TEXT NOT NULL,
	invoice_number TEXT NOT NULL,
	invoice_date   DATE NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS memories (
	id                      BIGSERIAL PRIMARY KEY,
	vendor_name             TEXT,
	type                    TEXT NOT NULL,
	key                     TEXT NOT NULL,
	value                   JSONB NOT NULL,
	confidence              DOUBLE PRECISION NOT NULL,
	positive_reinforcements INTEGER NOT NULL DEFAULT 0,
	negative_reinforcements INTEGER NOT NULL DEFAULT 0,
	last_used_at            TIMESTAMPTZ,
	created_at              TIMESTAMPTZ NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_trail (
	id         TEXT PRIMARY KEY,
	seq        BIGSERIAL,
	invoice_id TEXT NOT NULL,
	step       TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL,
	details    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_vendor ON memories(vendor_name);
CREATE INDEX IF NOT EXISTS idx_invoices_vendor_number ON invoices(vendor_name, invoice_number);
CREATE INDEX IF NOT EXISTS idx_audit_trail_invoice ON audit_trail(invoice_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveMemory(ctx context.Context, entry model.MemoryEntry) (*model.MemoryEntry, error) {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	err := s.pool.QueryRow(ctx,
		`INSERT INTO memories (
			vendor_name, type, key, value, confidence,
			positive_reinforcements, negative_reinforcements,
			last_used_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		pgNullable(entry.VendorName), string(entry.Type), entry.Key, string(entry.Value),
		entry.Confidence, entry.PositiveReinforcements, entry.NegativeReinforcements,
		entry.LastUsedAt, entry.CreatedAt, entry.UpdatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert memory %s", entry.Key)
	}
	return &entry, nil
}

func (s *PostgresStore) UpdateMemory(ctx context.Context, entry model.MemoryEntry) (*model.MemoryEntry, error) {
	entry.Confidence = clamp01(entry.Confidence)
	entry.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE memories SET
			confidence = $1, positive_reinforcements = $2, negative_reinforcements = $3, updated_at = $4
		 WHERE id = $5`,
		entry.Confidence, entry.PositiveReinforcements, entry.NegativeReinforcements,
		entry.UpdatedAt, entry.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update memory %d", entry.ID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Errorf("memory not found: %s", entry.Key)
	}
	return &entry, nil
}

func (s *PostgresStore) GetVendorMemories(ctx context.Context, vendor string, minConfidence float64) ([]model.MemoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, vendor_name, type, key, value, confidence,
		        positive_reinforcements, negative_reinforcements,
		        last_used_at, created_at, updated_at
		 FROM memories
		 WHERE (vendor_name = $1 OR vendor_name IS NULL) AND confidence >= $2`,
		vendor, minConfidence,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get memories for %s", vendor)
	}
	defer rows.Close()

	var memories []model.MemoryEntry
	for rows.Next() {
		var m model.MemoryEntry
		var vendorName sql.NullString
		var value string
		var lastUsed *time.Time
		err := rows.Scan(&m.ID, &vendorName, &m.Type, &m.Key, &value, &m.Confidence,
			&m.PositiveReinforcements, &m.NegativeReinforcements,
			&lastUsed, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan memory")
		}
		m.VendorName = vendorName.String
		m.Value = []byte(value)
		m.LastUsedAt = lastUsed
		memories = append(memories, m)
	}
	return memories, eris.Wrap(rows.Err(), "postgres: iterate memories")
}

func (s *PostgresStore) RecordAudit(ctx context.Context, invoiceID string, entry model.AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_trail (id, invoice_id, step, timestamp, details) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), invoiceID, string(entry.Step), entry.Timestamp, entry.Details,
	)
	return eris.Wrapf(err, "postgres: record audit for %s", invoiceID)
}

func (s *PostgresStore) ListAudit(ctx context.Context, invoiceID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT step, timestamp, details FROM audit_trail WHERE invoice_id = $1 ORDER BY seq`,
		invoiceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list audit for %s", invoiceID)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.Step, &e.Timestamp, &e.Details); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate audit entries")
}

func (s *PostgresStore) SaveInvoiceMeta(ctx context.Context, invoiceID, vendor, invoiceNumber, invoiceDate string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO invoices (id, vendor_name, invoice_number, invoice_date)
		 VALUES ($1, $2, $3, $4::date) ON CONFLICT (id) DO NOTHING`,
		invoiceID, vendor, invoiceNumber, invoiceDate,
	)
	return eris.Wrapf(err, "postgres: save invoice meta %s", invoiceID)
}

func (s *PostgresStore) FindDuplicate(ctx context.Context, invoiceID, vendor, invoiceNumber, invoiceDate string) (*model.InvoiceRef, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, invoice_date::text FROM invoices
		 WHERE vendor_name = $1 AND invoice_number = $2
		   AND ABS(invoice_date - $3::date) <= 2
		   AND id != $4
		 ORDER BY created_at, id LIMIT 1`,
		vendor, invoiceNumber, invoiceDate, invoiceID,
	)

	var ref model.InvoiceRef
	err := row.Scan(&ref.ID, &ref.InvoiceDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find duplicate")
	}
	return &ref, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	for _, table := range []string{"memories", "audit_trail", "invoices"} {
		if _, err := s.pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "postgres: reset %s", table)
		}
	}
	return nil
}

func pgNullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
