package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchkit/identity/permission"
)

const pgUniqueViolation = "23505"

// Compile-time interface assertion.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on a pgx connection pool. The schema is
// in schema.sql; email uniqueness rides on the identities_email_key
// unique index over the normalized address.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const identityColumns = `
	id, email, password_hash, full_name, verified,
	two_factor_enabled, two_factor_method, permissions,
	refresh_token, refresh_expires_at, refresh_revoked_at, token_version,
	created_at, updated_at`

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	query := `SELECT` + identityColumns + ` FROM identities WHERE email = $1`
	return s.queryOne(ctx, query, NormalizeEmail(email))
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Identity, error) {
	query := `SELECT` + identityColumns + ` FROM identities WHERE id = $1`
	return s.queryOne(ctx, query, id)
}

func (s *PostgresStore) GetByRefreshToken(ctx context.Context, value string) (*Identity, error) {
	if value == "" {
		return nil, ErrNotFound
	}
	query := `SELECT` + identityColumns + ` FROM identities WHERE refresh_token = $1`
	return s.queryOne(ctx, query, value)
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, arg any) (*Identity, error) {
	identity := &Identity{}
	var (
		claims    []string
		refreshAt *time.Time
		revokedAt *time.Time
	)

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&identity.ID, &identity.Email, &identity.PasswordHash, &identity.FullName, &identity.Verified,
		&identity.TwoFactorEnabled, &identity.TwoFactorMethod, &claims,
		&identity.RefreshToken, &refreshAt, &revokedAt, &identity.TokenVersion,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}

	if refreshAt != nil {
		identity.RefreshExpiresAt = *refreshAt
	}
	identity.RefreshRevokedAt = revokedAt

	perms, err := permission.ParseSet(claims)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", identity.ID, err)
	}
	identity.Permissions = perms

	return identity, nil
}

func (s *PostgresStore) Insert(ctx context.Context, identity *Identity) error {
	query := `
		INSERT INTO identities (id, email, password_hash, full_name, verified,
		                        two_factor_enabled, two_factor_method, permissions,
		                        refresh_token, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', 0, now(), now())`

	_, err := s.pool.Exec(ctx, query,
		identity.ID, NormalizeEmail(identity.Email), identity.PasswordHash, identity.FullName,
		identity.Verified, identity.TwoFactorEnabled, string(identity.TwoFactorMethod),
		identity.Permissions.Claims(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetVerified(ctx context.Context, id string, verified bool) error {
	return s.exec(ctx, id,
		`UPDATE identities SET verified = $2, updated_at = now() WHERE id = $1`, verified)
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.exec(ctx, id,
		`UPDATE identities SET password_hash = $2, updated_at = now() WHERE id = $1`, hash)
}

func (s *PostgresStore) SetTwoFactor(ctx context.Context, id string, enabled bool, method TwoFactorMethod) error {
	return s.exec(ctx, id,
		`UPDATE identities SET two_factor_enabled = $2, two_factor_method = $3, updated_at = now() WHERE id = $1`,
		enabled, string(method))
}

func (s *PostgresStore) SetPermissions(ctx context.Context, id string, perms permission.Set) error {
	return s.exec(ctx, id,
		`UPDATE identities SET permissions = $2, updated_at = now() WHERE id = $1`, perms.Claims())
}

func (s *PostgresStore) SaveRefreshToken(ctx context.Context, id, value string, expiresAt time.Time, expectedVersion uint32) error {
	query := `
		UPDATE identities
		SET refresh_token = $2, refresh_expires_at = $3, refresh_revoked_at = NULL,
		    token_version = token_version + 1, updated_at = now()
		WHERE id = $1 AND token_version = $4`

	tag, err := s.pool.Exec(ctx, query, id, value, expiresAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshToken(ctx context.Context, id, value string, at time.Time) error {
	if value == "" {
		return ErrRefreshMismatch
	}

	query := `
		UPDATE identities
		SET refresh_revoked_at = COALESCE(refresh_revoked_at, $3), updated_at = now()
		WHERE id = $1 AND refresh_token = $2`

	tag, err := s.pool.Exec(ctx, query, id, value, at)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrRefreshMismatch
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
