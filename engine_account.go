package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/merchkit/identity/permission"
	"github.com/merchkit/identity/store"
)

// GrantPermission adds a catalog permission to the identity's set.
// Granting an already-held permission succeeds.
func (e *Engine) GrantPermission(ctx context.Context, identityID string, perm permission.Permission) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.mutatePermissions(ctx, identityID, func(set *permission.Set) error {
		return set.Add(perm)
	})
}

// RevokePermission removes a permission from the identity's set.
// Revoking a permission the identity does not hold succeeds.
func (e *Engine) RevokePermission(ctx context.Context, identityID string, perm permission.Permission) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.mutatePermissions(ctx, identityID, func(set *permission.Set) error {
		set.Remove(perm)
		return nil
	})
}

func (e *Engine) mutatePermissions(ctx context.Context, identityID string, mutate func(*permission.Set) error) error {
	identity, err := e.store.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("lookup identity: %w", err)
	}

	set := identity.Permissions.Clone()
	if err := mutate(&set); err != nil {
		return err
	}

	if err := e.store.SetPermissions(ctx, identityID, set); err != nil {
		return fmt.Errorf("update permissions: %w", err)
	}

	e.emitAudit(ctx, AuditPermissionChange, identityID, identity.Email, true, nil)
	return nil
}

// DeleteIdentity removes the identity record. One-time codes left in
// the cache expire on their own; outstanding access tokens lapse at
// their fixed expiry, and refresh fails once the record is gone.
func (e *Engine) DeleteIdentity(ctx context.Context, identityID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	if err := e.store.Delete(ctx, identityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("delete identity: %w", err)
	}

	e.emitAudit(ctx, AuditIdentityDelete, identityID, "", true, nil)
	return nil
}
