package store

import (
	"context"
	"errors"
	"time"

	"github.com/merchkit/identity/permission"
)

var (
	// ErrNotFound is returned when no identity matches the lookup key.
	ErrNotFound = errors.New("identity not found")
	// ErrDuplicateEmail is returned by Insert when the normalized email
	// is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrVersionConflict is returned by SaveRefreshToken when the
	// expected token version no longer matches the stored one: a
	// concurrent writer rotated the slot first.
	ErrVersionConflict = errors.New("refresh token version conflict")
	// ErrRefreshMismatch is returned by RevokeRefreshToken when the
	// presented value does not match the stored slot.
	ErrRefreshMismatch = errors.New("refresh token mismatch")
)

// Store is the durable credential-store contract. Every mutation is a
// single-record, single-step write: no partial mutation is ever
// reported as success. Implementations must be safe for concurrent use.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	GetByID(ctx context.Context, id string) (*Identity, error)
	// GetByRefreshToken looks an identity up by the stored refresh-token
	// value, regardless of its revocation or expiry state.
	GetByRefreshToken(ctx context.Context, value string) (*Identity, error)

	Insert(ctx context.Context, identity *Identity) error
	SetVerified(ctx context.Context, id string, verified bool) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetTwoFactor(ctx context.Context, id string, enabled bool, method TwoFactorMethod) error
	SetPermissions(ctx context.Context, id string, perms permission.Set) error

	// SaveRefreshToken writes a freshly issued value into the slot,
	// clearing any revocation marker and advancing TokenVersion. The
	// write only succeeds when the stored version still equals
	// expectedVersion.
	SaveRefreshToken(ctx context.Context, id, value string, expiresAt time.Time, expectedVersion uint32) error
	// RevokeRefreshToken stamps the revocation time when value matches
	// the stored slot. Revoking an already-revoked matching slot
	// succeeds, keeping logout idempotent.
	RevokeRefreshToken(ctx context.Context, id, value string, at time.Time) error

	Delete(ctx context.Context, id string) error
}
