package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/merchkit/identity/password"
	"github.com/merchkit/identity/secretcache"
	"github.com/merchkit/identity/store"
)

// RequestPasswordReset issues a reset code for the given address. It
// succeeds whether or not the address is registered; unknown addresses
// only pay a timing-equalizing delay, so the call cannot be used to
// probe for accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	identity, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.enumerationDelay()
			e.metricInc(MetricPasswordResetRequest)
			e.emitAudit(ctx, AuditPasswordResetRequest, "", email, false, ErrIdentityNotFound)
			return nil
		}
		return fmt.Errorf("lookup identity: %w", err)
	}

	if err := e.issueCode(ctx, identity, secretcache.PurposePasswordReset, e.config.Codes.ResetTTL); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, AuditPasswordResetRequest, identity.ID, identity.Email, true, nil)
	return nil
}

// ResetPassword replaces the password when the presented reset code
// matches the live one, consuming it. Failures leave the live code in
// place for another attempt within its TTL.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	identity, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, AuditPasswordReset, "", email, false, ErrCodeInvalid)
			return ErrCodeInvalid
		}
		return fmt.Errorf("lookup identity: %w", err)
	}

	match, err := e.checkCode(ctx, identity.ID, secretcache.PurposePasswordReset, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if !match {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, AuditPasswordReset, identity.ID, identity.Email, false, ErrCodeInvalid)
		return ErrCodeInvalid
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return ErrWeakPassword
		}
		return fmt.Errorf("hash password: %w", err)
	}

	if err := e.store.UpdatePasswordHash(ctx, identity.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	e.consumeCode(ctx, identity.ID, secretcache.PurposePasswordReset)

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, AuditPasswordReset, identity.ID, identity.Email, true, nil)
	return nil
}
