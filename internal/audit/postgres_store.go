package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) AppendBatch(ctx context.Context, entries []*Entry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_log (action, entity, entity_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Action, e.Entity, e.EntityID, []byte(e.Data), e.CreatedAt); err != nil {
			return fmt.Errorf("append audit entry %s: %w", e.Action, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) Query(ctx context.Context, entity string, entityID int64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, action, entity, entity_id, COALESCE(data, '{}'), created_at
		FROM audit_log
		WHERE ($1 = '' OR entity = $1)
		  AND ($2 = 0 OR entity_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, entity, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		var e Entry
		var data []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &e.EntityID, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = data
		result = append(result, &e)
	}
	return result, rows.Err()
}
