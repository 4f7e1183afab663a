package secretcache

import (
	"context"
	"errors"
	"time"
)

// Purpose tags a one-time code with the flow it proves. Codes for
// different purposes never collide because the purpose is part of the
// cache key.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposeTwoFactorLogin    Purpose = "2fa_login"
	PurposePasswordReset     Purpose = "password_reset"
)

var (
	// ErrNotFound covers both a missing slot and an expired one; callers
	// cannot tell the difference.
	ErrNotFound = errors.New("secret not found")
	// ErrUnavailable indicates a backend failure, not an absent record.
	ErrUnavailable = errors.New("secret cache unavailable")
)

// Key addresses the single live slot for one identity and one purpose.
type Key struct {
	IdentityID string
	Purpose    Purpose
}

// Record is one stored one-time secret. The code itself is held only as
// a SHA-256 digest; the plaintext exists only in transit to the
// notification channel.
type Record struct {
	IdentityID string
	Email      string
	CodeHash   [32]byte
	CreatedAt  int64
	ExpiresAt  int64
}

// Expired reports whether the record's absolute TTL has elapsed at now.
func (r *Record) Expired(now time.Time) bool {
	return now.Unix() > r.ExpiresAt
}

// Cache is the ephemeral secret store contract.
type Cache interface {
	// Set writes the record under key, overwriting any prior slot and
	// resetting the TTL.
	Set(ctx context.Context, key Key, record *Record, ttl time.Duration) error
	// Get returns the live record for key, or ErrNotFound when the slot
	// is absent or expired. Reading never extends the TTL.
	Get(ctx context.Context, key Key) (*Record, error)
	// Remove deletes the slot for key. Removing an absent slot is not an
	// error.
	Remove(ctx context.Context, key Key) error
}
