package permission

import (
	"errors"
	"strings"
)

const policyMarker = "perm:"

// ErrDenied is the uniform authorization failure. It never distinguishes
// an unrecognized requirement from a missing claim, so callers cannot
// probe the policy structure through response differences.
var ErrDenied = errors.New("permission denied")

// Requirement is a resolved permission check. It is built once at route
// declaration and never re-parsed per request.
type Requirement struct {
	key   Permission
	valid bool
}

// Require declares a requirement for the given catalog permission.
// Requirements built from values outside the catalog are retained but
// deny every caller.
func Require(p Permission) Requirement {
	return Requirement{key: p, valid: Valid(p)}
}

// ParsePolicy resolves a marker-prefixed policy string ("perm:<key>")
// into a Requirement. The boolean reports whether the marker was
// present; the requirement's own validity is checked at authorization
// time so malformed keys deny rather than error.
func ParsePolicy(policy string) (Requirement, bool) {
	if !strings.HasPrefix(policy, policyMarker) {
		return Requirement{}, false
	}
	key := Permission(strings.TrimPrefix(policy, policyMarker))
	return Require(key), true
}

// Key returns the required permission identifier.
func (r Requirement) Key() Permission {
	return r.key
}

// Resolver checks resolved requirements against a caller's claim list.
// The zero value is ready to use.
type Resolver struct{}

// Authorize allows the call iff the requirement is recognized and the
// claims carry a matching permission. Every denial is ErrDenied.
func (Resolver) Authorize(claims []string, req Requirement) error {
	if !req.valid {
		return ErrDenied
	}
	for _, c := range claims {
		if Permission(c) == req.key {
			return nil
		}
	}
	return ErrDenied
}
