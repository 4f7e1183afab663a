package permission

import (
	"errors"
	"fmt"
	"sort"
)

// Permission is a single claim identifier, e.g. "order.view.any".
type Permission string

const (
	CategoryRead   Permission = "category.read"
	CategoryManage Permission = "category.manage"
	ProductRead    Permission = "product.read"
	ProductManage  Permission = "product.manage"
	CartManage     Permission = "cart.manage"
	OrderViewOwn   Permission = "order.view.own"
	OrderViewAny   Permission = "order.view.any"
	OrderManage    Permission = "order.manage"
	InvoiceRender  Permission = "invoice.render"
	UserManage     Permission = "user.manage"
	AnalyticsView  Permission = "analytics.view"
)

// ErrUnknownPermission is returned when a value outside the catalog is
// used on any write path.
var ErrUnknownPermission = errors.New("unknown permission")

var catalog = map[Permission]struct{}{
	CategoryRead:   {},
	CategoryManage: {},
	ProductRead:    {},
	ProductManage:  {},
	CartManage:     {},
	OrderViewOwn:   {},
	OrderViewAny:   {},
	OrderManage:    {},
	InvoiceRender:  {},
	UserManage:     {},
	AnalyticsView:  {},
}

// Valid reports whether p belongs to the closed catalog.
func Valid(p Permission) bool {
	_, ok := catalog[p]
	return ok
}

// All returns every catalog permission in lexical order.
func All() []Permission {
	out := make([]Permission, 0, len(catalog))
	for p := range catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultSet returns the permissions granted to every newly registered
// identity.
func DefaultSet() Set {
	s, err := NewSet(CategoryRead, ProductRead, CartManage, OrderViewOwn)
	if err != nil {
		// The default members are catalog constants; a failure here is a
		// programming error.
		panic(err)
	}
	return s
}

// Set is an ordered, deduplicated collection of catalog permissions.
// The zero value is an empty set.
type Set struct {
	members []Permission
}

// NewSet builds a Set from the given permissions, preserving first-seen
// order. It fails on any value outside the catalog.
func NewSet(perms ...Permission) (Set, error) {
	var s Set
	for _, p := range perms {
		if err := s.Add(p); err != nil {
			return Set{}, err
		}
	}
	return s, nil
}

// MustSet is NewSet for catalog constants known at compile time.
func MustSet(perms ...Permission) Set {
	s, err := NewSet(perms...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSet builds a Set from raw claim strings, failing on any value
// outside the catalog.
func ParseSet(claims []string) (Set, error) {
	var s Set
	for _, c := range claims {
		if err := s.Add(Permission(c)); err != nil {
			return Set{}, err
		}
	}
	return s, nil
}

// Add appends p unless already present. Values outside the catalog are
// rejected.
func (s *Set) Add(p Permission) error {
	if !Valid(p) {
		return fmt.Errorf("%w: %q", ErrUnknownPermission, p)
	}
	if s.Has(p) {
		return nil
	}
	s.members = append(s.members, p)
	return nil
}

// Remove drops p if present. Removing an absent member is a no-op.
func (s *Set) Remove(p Permission) {
	for i, m := range s.members {
		if m == p {
			s.members = append(s.members[:i:i], s.members[i+1:]...)
			return
		}
	}
}

// Has reports membership.
func (s Set) Has(p Permission) bool {
	for _, m := range s.members {
		if m == p {
			return true
		}
	}
	return false
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.members)
}

// Members returns the members in insertion order. The returned slice is
// a copy.
func (s Set) Members() []Permission {
	out := make([]Permission, len(s.members))
	copy(out, s.members)
	return out
}

// Claims returns the members as raw claim strings for token embedding.
func (s Set) Claims() []string {
	out := make([]string, len(s.members))
	for i, m := range s.members {
		out[i] = string(m)
	}
	return out
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	return Set{members: s.Members()}
}
