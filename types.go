package identity

import (
	"github.com/merchkit/identity/permission"
	"github.com/merchkit/identity/store"
)

// RegisterRequest carries the inputs for creating a new identity.
type RegisterRequest struct {
	Email    string
	Password string
	FullName string
}

// RegisterResult reports the id assigned to a freshly created identity.
type RegisterResult struct {
	IdentityID string
}

// TokenPair is one signed access token plus the opaque refresh value
// that can mint its successor.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is the outcome of Login or VerifyTwoFactor. When
// TwoFactorPending is true no token material is present and the caller
// must complete the second factor; Method names the delivery channel
// the code was sent over.
type LoginResult struct {
	TokenPair
	IdentityID       string
	TwoFactorPending bool
	Method           store.TwoFactorMethod
}

// Principal is a validated access-token holder.
type Principal struct {
	IdentityID  string
	Email       string
	Permissions permission.Set
}

// HasPermission reports whether the principal's claims include p.
func (p *Principal) HasPermission(perm permission.Permission) bool {
	return p != nil && p.Permissions.Has(perm)
}
