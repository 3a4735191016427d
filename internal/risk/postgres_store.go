package risk

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists risk scores in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed risk score store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert writes the score and its contributor breakdown in one transaction.
// The score row is updated in place (one row per invoice, enforced by the
// unique constraint) and the contributor set is delete-then-insert replaced,
// so a concurrent reader never observes a partial or stale breakdown.
func (p *PostgresStore) Upsert(ctx context.Context, score *Score) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var scoreID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO risk_scores (invoice_id, composite, version, policy_version, computed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (invoice_id) DO UPDATE SET
			composite      = EXCLUDED.composite,
			version        = EXCLUDED.version,
			policy_version = EXCLUDED.policy_version,
			computed_at    = EXCLUDED.computed_at
		RETURNING id
	`, score.InvoiceID, score.Composite, score.Version, score.PolicyVersion, score.ComputedAt).Scan(&scoreID)
	if err != nil {
		return fmt.Errorf("upsert risk score for invoice %d: %w", score.InvoiceID, err)
	}

	// Remove existing contributors before inserting fresh ones.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM risk_contributors WHERE risk_score_id = $1
	`, scoreID); err != nil {
		return fmt.Errorf("clear risk contributors for invoice %d: %w", score.InvoiceID, err)
	}

	for _, entry := range score.Contributors {
		details := []byte(entry.Details)
		if len(details) == 0 {
			details = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO risk_contributors (risk_score_id, name, weight, raw_score, contribution, details)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, scoreID, string(entry.Name), entry.Weight, entry.RawScore, entry.Contribution, details); err != nil {
			return fmt.Errorf("insert %s contributor for invoice %d: %w", entry.Name, score.InvoiceID, err)
		}
	}

	return tx.Commit()
}

func (p *PostgresStore) Get(ctx context.Context, invoiceID int64) (*Score, error) {
	score := &Score{InvoiceID: invoiceID}
	var scoreID int64

	err := p.db.QueryRowContext(ctx, `
		SELECT id, composite, version, policy_version, computed_at
		FROM risk_scores WHERE invoice_id = $1
	`, invoiceID).Scan(&scoreID, &score.Composite, &score.Version, &score.PolicyVersion, &score.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoScore
	}
	if err != nil {
		return nil, fmt.Errorf("get risk score for invoice %d: %w", invoiceID, err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT name, weight, raw_score, contribution, COALESCE(details, '{}')
		FROM risk_contributors
		WHERE risk_score_id = $1
		ORDER BY ABS(contribution) DESC, id ASC
	`, scoreID)
	if err != nil {
		return nil, fmt.Errorf("list risk contributors for invoice %d: %w", invoiceID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var entry WaterfallEntry
		var details []byte
		if err := rows.Scan(&entry.Name, &entry.Weight, &entry.RawScore, &entry.Contribution, &details); err != nil {
			return nil, err
		}
		entry.Details = details
		score.Contributors = append(score.Contributors, entry)
	}
	return score, rows.Err()
}
