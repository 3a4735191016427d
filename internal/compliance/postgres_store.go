package compliance

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed compliance check store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) ChecksFor(ctx context.Context, invoiceID int64) (map[CheckType]*Check, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT ON (check_type)
		       id, invoice_id, check_type, status, COALESCE(details, '{}'), checked_at
		FROM compliance_checks
		WHERE invoice_id = $1
		ORDER BY check_type, checked_at DESC, id DESC
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("load compliance checks for invoice %d: %w", invoiceID, err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[CheckType]*Check)
	for rows.Next() {
		var c Check
		var status string
		var details []byte
		if err := rows.Scan(&c.ID, &c.InvoiceID, &c.Type, &status, &details, &c.CheckedAt); err != nil {
			return nil, err
		}
		c.Status = ParseStatus(status)
		c.Details = details
		result[c.Type] = &c
	}
	return result, rows.Err()
}
