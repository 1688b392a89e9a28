package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/internal/infra/storage"
)

var _ scanning.SocialAccountRepository = (*socialAccountStore)(nil)

// socialAccountStore implements scanning.SocialAccountRepository using
// PostgreSQL. Accounts and synced media are consumed read-only by the
// pipeline; account linking and media sync happen elsewhere.
type socialAccountStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewSocialAccountStore creates a new PostgreSQL-backed social account repository.
func NewSocialAccountStore(pool *pgxpool.Pool, tracer trace.Tracer) *socialAccountStore {
	return &socialAccountStore{db: pool, tracer: tracer}
}

// ListActiveByUser returns the user's active social accounts with credentials.
func (r *socialAccountStore) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]scanning.SocialAccount, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("user_id", userID.String()))

	var accounts []scanning.SocialAccount
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_active_social_accounts", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT id, user_id, provider, is_active, access_token, token_expires_at
			FROM social_accounts
			WHERE user_id = $1 AND is_active = true`,
			pgUUID(userID),
		)
		if err != nil {
			return fmt.Errorf("ListActiveByUser query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id, dbUserID pgtype.UUID
				provider     string
				isActive     bool
				accessToken  pgtype.Text
				expiresAt    pgtype.Timestamptz
			)
			if err := rows.Scan(&id, &dbUserID, &provider, &isActive, &accessToken, &expiresAt); err != nil {
				return fmt.Errorf("ListActiveByUser scan error: %w", err)
			}
			accounts = append(accounts, scanning.NewSocialAccount(
				uuid.UUID(id.Bytes),
				uuid.UUID(dbUserID.Bytes),
				provider,
				isActive,
				scanning.NewCredential(accessToken.String, expiresAt.Time),
			))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListSyncedMedia returns the cached media items for an account.
func (r *socialAccountStore) ListSyncedMedia(ctx context.Context, accountID uuid.UUID) ([]scanning.MediaItem, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("account_id", accountID.String()))

	var items []scanning.MediaItem
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_synced_media", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT id, account_id, media_url, permalink_url, caption, posted_at, is_owned_by_user
			FROM social_media_items
			WHERE account_id = $1
			ORDER BY posted_at DESC`,
			pgUUID(accountID),
		)
		if err != nil {
			return fmt.Errorf("ListSyncedMedia query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id, dbAccountID pgtype.UUID
				mediaURL        string
				permalinkURL    pgtype.Text
				caption         pgtype.Text
				postedAt        pgtype.Timestamptz
				isOwnedByUser   bool
			)
			if err := rows.Scan(&id, &dbAccountID, &mediaURL, &permalinkURL, &caption, &postedAt, &isOwnedByUser); err != nil {
				return fmt.Errorf("ListSyncedMedia scan error: %w", err)
			}
			items = append(items, scanning.NewMediaItem(
				uuid.UUID(id.Bytes),
				uuid.UUID(dbAccountID.Bytes),
				mediaURL,
				permalinkURL.String,
				caption.String,
				postedAt.Time,
				isOwnedByUser,
			))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
