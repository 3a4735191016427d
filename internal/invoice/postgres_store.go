package invoice

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed invoice store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv := &Invoice{}
	var notes sql.NullString

	err := p.db.QueryRowContext(ctx, `
		SELECT id, number, vendor_name, currency, total_amount,
		       risk_status, risk_notes, created_at, updated_at
		FROM invoices WHERE id = $1
	`, id).Scan(
		&inv.ID, &inv.Number, &inv.VendorName, &inv.Currency, &inv.TotalAmount,
		&inv.RiskStatus, &notes, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice %d: %w", id, err)
	}
	inv.RiskNotes = notes.String
	return inv, nil
}

func (p *PostgresStore) SetRiskStatus(ctx context.Context, id int64, status RiskStatus, notes string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE invoices SET
			risk_status = $2,
			risk_notes  = NULLIF($3, ''),
			updated_at  = NOW()
		WHERE id = $1
	`, id, string(status), notes)
	if err != nil {
		return fmt.Errorf("set risk status for invoice %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresEventStore implements EventStore with PostgreSQL.
type PostgresEventStore struct {
	db *sql.DB
}

// NewPostgresEventStore creates a PostgreSQL-backed event store.
func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

func (p *PostgresEventStore) Append(ctx context.Context, event *Event) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO invoice_events (id, invoice_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.InvoiceID, string(event.Type), []byte(event.Payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("append %s event for invoice %d: %w", event.Type, event.InvoiceID, err)
	}
	return nil
}

func (p *PostgresEventStore) List(ctx context.Context, invoiceID int64, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, invoice_id, event_type, payload, created_at
		FROM invoice_events
		WHERE invoice_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, invoiceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for invoice %d: %w", invoiceID, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Event
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		result = append(result, &e)
	}
	return result, rows.Err()
}
