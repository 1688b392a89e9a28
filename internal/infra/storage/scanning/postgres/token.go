package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/internal/infra/storage"
)

var _ scanning.TokenStore = (*tokenStore)(nil)

// tokenStore implements scanning.TokenStore on top of a PostgreSQL table with
// row expiry. Keeping transient correlation tokens in the database rather than
// a process-local map lets them survive restarts and multi-worker deployments.
type tokenStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewTokenStore creates a new PostgreSQL-backed transient token store.
func NewTokenStore(pool *pgxpool.Pool, tracer trace.Tracer) *tokenStore {
	return &tokenStore{db: pool, tracer: tracer}
}

// Set stores a value under key for at most ttl. Re-setting a key replaces its
// value and extends its expiry.
func (r *tokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	dbAttrs := append(defaultDBAttributes, attribute.String("token_key", key))

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.set_token", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO transient_tokens (key, value, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = $2, expires_at = $3`,
			key, value, time.Now().Add(ttl),
		)
		if err != nil {
			return fmt.Errorf("Set token error: %w", err)
		}
		return nil
	})
}

// GetAndDelete atomically retrieves and removes a value. Expired rows are
// treated as missing; they are reaped lazily by the delete.
func (r *tokenStore) GetAndDelete(ctx context.Context, key string) (string, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("token_key", key))

	var value string
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_and_delete_token", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			DELETE FROM transient_tokens
			WHERE key = $1 AND expires_at > now()
			RETURNING value`,
			key,
		)
		if err := row.Scan(&value); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return scanning.ErrTokenNotFound
			}
			return fmt.Errorf("GetAndDelete token error: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}
