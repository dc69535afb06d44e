package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/trade-schemes/internal/domain/override"
)

const (
	insertOverrideLogSQL = `INSERT INTO scheme_override_logs
		(id, order_id, pre_order_id, scheme_id, original_benefit, override_benefit, reason, acting_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	listOverrideLogsSQL = `SELECT id, order_id, pre_order_id, scheme_id, original_benefit, override_benefit,
		reason, acting_user_id, created_at
		FROM scheme_override_logs
		WHERE order_id = $1 OR pre_order_id = $1
		ORDER BY created_at, scheme_id`
)

var _ override.AuditLog = (*OverrideAuditRepository)(nil)

// OverrideAuditRepository is the append-only PostgreSQL audit log of
// committed scheme overrides.
type OverrideAuditRepository struct {
	pool *pgxpool.Pool
}

// NewOverrideAuditRepository returns an OverrideAuditRepository that uses the given pool.
func NewOverrideAuditRepository(pool *pgxpool.Pool) *OverrideAuditRepository {
	return &OverrideAuditRepository{pool: pool}
}

// Append writes all records in one transaction.
func (r *OverrideAuditRepository) Append(ctx context.Context, records []override.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		original, err := json.Marshal(rec.Original)
		if err != nil {
			return fmt.Errorf("marshaling original benefit of %q: %w", rec.SchemeID, err)
		}
		benefit, err := json.Marshal(rec.Benefit)
		if err != nil {
			return fmt.Errorf("marshaling override benefit of %q: %w", rec.SchemeID, err)
		}
		batch.Queue(insertOverrideLogSQL,
			rec.ID, nullText(rec.OrderID), nullText(rec.PreOrderID), rec.SchemeID,
			original, benefit, rec.Reason, rec.ActingUserID, rec.CreatedAt,
		)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("inserting %d override audit records: %w", len(records), err)
	}
	return nil
}

// ListForOrder returns the audit trail recorded against an order or
// pre-order id.
func (r *OverrideAuditRepository) ListForOrder(ctx context.Context, id string) ([]override.AuditRecord, error) {
	rows, err := r.pool.Query(ctx, listOverrideLogsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing override audit records for %q: %w", id, err)
	}
	records, err := pgx.CollectRows(rows, scanAuditRecord)
	if err != nil {
		return nil, fmt.Errorf("listing override audit records for %q: %w", id, err)
	}
	return records, nil
}

func scanAuditRecord(row pgx.CollectableRow) (override.AuditRecord, error) {
	var (
		rec        override.AuditRecord
		orderID    *string
		preOrderID *string
		original   []byte
		benefit    []byte
	)
	if err := row.Scan(
		&rec.ID, &orderID, &preOrderID, &rec.SchemeID, &original, &benefit,
		&rec.Reason, &rec.ActingUserID, &rec.CreatedAt,
	); err != nil {
		return rec, err
	}
	if orderID != nil {
		rec.OrderID = *orderID
	}
	if preOrderID != nil {
		rec.PreOrderID = *preOrderID
	}
	if err := json.Unmarshal(original, &rec.Original); err != nil {
		return rec, fmt.Errorf("decoding original benefit: %w", err)
	}
	if err := json.Unmarshal(benefit, &rec.Benefit); err != nil {
		return rec, fmt.Errorf("decoding override benefit: %w", err)
	}
	return rec, nil
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
