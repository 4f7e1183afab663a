package store

import (
	"strings"
	"time"

	"github.com/merchkit/identity/permission"
)

// TwoFactorMethod names a second-factor delivery channel. Email is the
// only supported member today; the enumeration is open for future
// channels.
type TwoFactorMethod string

const (
	// TwoFactorNone marks an identity without a configured second factor.
	TwoFactorNone TwoFactorMethod = ""
	// TwoFactorEmail delivers login codes over the identity's verified
	// email address.
	TwoFactorEmail TwoFactorMethod = "email"
)

// ValidTwoFactorMethod reports whether m names a supported channel.
func ValidTwoFactorMethod(m TwoFactorMethod) bool {
	return m == TwoFactorEmail
}

// Identity is one durable account record. Exactly one refresh-token slot
// exists per identity: issuing a new token overwrites the slot, logout
// stamps RefreshRevokedAt while retaining the value so a revoked token
// stays distinguishable from one never issued.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Verified     bool

	TwoFactorEnabled bool
	TwoFactorMethod  TwoFactorMethod

	Permissions permission.Set

	RefreshToken     string
	RefreshExpiresAt time.Time
	RefreshRevokedAt *time.Time
	// TokenVersion increases on every refresh-slot write; writers must
	// present the version they read, which closes the concurrent-refresh
	// race.
	TokenVersion uint32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshTokenValid reports whether the stored slot accepts the
// presented value at now: present, value-matched, unrevoked, unexpired.
func (i *Identity) RefreshTokenValid(value string, now time.Time) bool {
	if i.RefreshToken == "" || value == "" || i.RefreshToken != value {
		return false
	}
	if i.RefreshRevokedAt != nil {
		return false
	}
	return now.Before(i.RefreshExpiresAt)
}

// Clone returns a deep copy safe to hand across goroutines.
func (i *Identity) Clone() *Identity {
	out := *i
	out.Permissions = i.Permissions.Clone()
	if i.RefreshRevokedAt != nil {
		at := *i.RefreshRevokedAt
		out.RefreshRevokedAt = &at
	}
	return &out
}

// NormalizeEmail canonicalizes an address for storage and lookup:
// trimmed and lower-cased. Uniqueness is enforced on the normalized
// form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
