package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/trade-schemes/internal/domain/evaluation"
	"github.com/xenking/trade-schemes/internal/domain/scheme"
)

const (
	schemeColumns = `id, code, name, description, type, benefit_type, applicability, status,
		start_date, end_date, eligible_skus, slab_config, min_quantity, free_quantity,
		discount_percent, min_order_value, max_benefit, applicable_products`

	listActiveSchemesSQL = `SELECT ` + schemeColumns + `
		FROM schemes
		WHERE status = 'active' AND start_date <= $1::date AND end_date >= $1::date
		ORDER BY created_at, id`

	getSchemeByIDSQL = `SELECT ` + schemeColumns + ` FROM schemes WHERE id = $1`

	upsertSchemeSQL = `INSERT INTO schemes (` + schemeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			benefit_type = EXCLUDED.benefit_type,
			applicability = EXCLUDED.applicability,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			eligible_skus = EXCLUDED.eligible_skus,
			slab_config = EXCLUDED.slab_config,
			min_quantity = EXCLUDED.min_quantity,
			free_quantity = EXCLUDED.free_quantity,
			discount_percent = EXCLUDED.discount_percent,
			min_order_value = EXCLUDED.min_order_value,
			max_benefit = EXCLUDED.max_benefit,
			applicable_products = EXCLUDED.applicable_products,
			updated_at = now()`
)

var _ evaluation.SchemeStore = (*SchemeRepository)(nil)

// SchemeRepository reads and writes scheme definitions in PostgreSQL.
type SchemeRepository struct {
	pool *pgxpool.Pool
}

// NewSchemeRepository returns a SchemeRepository that uses the given pool.
func NewSchemeRepository(pool *pgxpool.Pool) *SchemeRepository {
	return &SchemeRepository{pool: pool}
}

// ListActive returns schemes with status active whose validity window
// contains day. Ordering is by creation time.
func (r *SchemeRepository) ListActive(ctx context.Context, day time.Time) ([]scheme.Scheme, error) {
	rows, err := r.pool.Query(ctx, listActiveSchemesSQL, day)
	if err != nil {
		return nil, fmt.Errorf("listing active schemes: %w", err)
	}
	schemes, err := pgx.CollectRows(rows, scanScheme)
	if err != nil {
		return nil, fmt.Errorf("listing active schemes: %w", err)
	}
	return schemes, nil
}

// GetByID returns a single scheme. It returns an error wrapping
// pgx.ErrNoRows when the scheme does not exist.
func (r *SchemeRepository) GetByID(ctx context.Context, id string) (*scheme.Scheme, error) {
	rows, err := r.pool.Query(ctx, getSchemeByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting scheme %q: %w", id, err)
	}
	sc, err := pgx.CollectExactlyOneRow(rows, scanScheme)
	if err != nil {
		return nil, fmt.Errorf("getting scheme %q: %w", id, err)
	}
	return &sc, nil
}

// Upsert inserts the scheme or replaces the stored definition with the same id.
func (r *SchemeRepository) Upsert(ctx context.Context, sc scheme.Scheme) error {
	slabs, err := json.Marshal(nonNil(sc.SlabConfig))
	if err != nil {
		return fmt.Errorf("marshaling slab config of %q: %w", sc.ID, err)
	}

	var code *string
	if sc.Code != "" {
		code = &sc.Code
	}

	_, err = r.pool.Exec(ctx, upsertSchemeSQL,
		sc.ID, code, sc.Name, sc.Description,
		string(sc.Type), string(sc.BenefitType), string(sc.Applicability), sc.Status,
		sc.StartDate, sc.EndDate,
		nonNil(sc.EligibleSKUs), slabs,
		sc.MinQuantity, sc.FreeQuantity,
		sc.DiscountPercent, sc.MinOrderValue, sc.MaxBenefit,
		nonNil(sc.ApplicableProducts),
	)
	if err != nil {
		return fmt.Errorf("upserting scheme %q: %w", sc.ID, err)
	}
	return nil
}

func scanScheme(row pgx.CollectableRow) (scheme.Scheme, error) {
	var (
		sc            scheme.Scheme
		code          *string
		typ           string
		benefitType   string
		applicability string
		slabs         []byte
		minQuantity   int32
		freeQuantity  int32
	)
	err := row.Scan(
		&sc.ID, &code, &sc.Name, &sc.Description, &typ, &benefitType, &applicability, &sc.Status,
		&sc.StartDate, &sc.EndDate, &sc.EligibleSKUs, &slabs, &minQuantity, &freeQuantity,
		&sc.DiscountPercent, &sc.MinOrderValue, &sc.MaxBenefit, &sc.ApplicableProducts,
	)
	if err != nil {
		return sc, err
	}

	if code != nil {
		sc.Code = *code
	}
	sc.Type = scheme.Type(typ)
	sc.BenefitType = scheme.BenefitType(benefitType)
	sc.Applicability = scheme.Applicability(applicability)
	sc.MinQuantity = int(minQuantity)
	sc.FreeQuantity = int(freeQuantity)

	// An unreadable slab config leaves the scheme without bands, so it yields
	// no benefit instead of failing the whole listing.
	if err := json.Unmarshal(slabs, &sc.SlabConfig); err != nil {
		sc.SlabConfig = nil
	}
	return sc, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
