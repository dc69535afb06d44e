package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/trade-schemes/internal/domain/auth"
)

const (
	findAPIKeySQL = `SELECT id, key_hash, name, scopes
		FROM api_keys WHERE key_hash = $1 AND active`

	insertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository stores API keys by their HMAC hash.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash returns the active key with the given hash. Unknown or revoked
// keys yield auth.ErrUnauthorized.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	rows, err := r.pool.Query(ctx, findAPIKeySQL, hash)
	if err != nil {
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	info, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[auth.APIKeyInfo])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthorized
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	return info, nil
}

// Create stores a key, re-activating it if the hash already exists.
func (r *APIKeyRepository) Create(ctx context.Context, info auth.APIKeyInfo) error {
	if _, err := r.pool.Exec(ctx, insertAPIKeySQL, info.ID, info.KeyHash, info.Name, nonNil(info.Scopes)); err != nil {
		return fmt.Errorf("creating api key %q: %w", info.Name, err)
	}
	return nil
}
