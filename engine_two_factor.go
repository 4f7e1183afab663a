package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/merchkit/identity/secretcache"
	"github.com/merchkit/identity/store"
)

// twoFactorBranch handles a password-authenticated login for an
// identity with two-factor enabled. No code: deliver one and report
// pending. Wrong code: report pending again, leaving the live code
// untouched so the holder can still complete within the TTL.
func (e *Engine) twoFactorBranch(ctx context.Context, identity *store.Identity, code string) (*LoginResult, error) {
	pending := &LoginResult{
		IdentityID:       identity.ID,
		TwoFactorPending: true,
		Method:           identity.TwoFactorMethod,
	}

	if code == "" {
		if err := e.issueCode(ctx, identity, secretcache.PurposeTwoFactorLogin, e.config.Codes.TwoFactorTTL); err != nil {
			return nil, err
		}
		e.metricInc(MetricTwoFactorPending)
		e.emitAudit(ctx, AuditLogin, identity.ID, identity.Email, true, nil)
		return pending, nil
	}

	match, err := e.checkCode(ctx, identity.ID, secretcache.PurposeTwoFactorLogin, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !match {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, AuditTwoFactor, identity.ID, identity.Email, false, ErrCodeInvalid)
		return pending, nil
	}

	return e.completeTwoFactor(ctx, identity)
}

// VerifyTwoFactor completes a pending two-factor login. Unlike the
// inline Login path it fails loudly: a wrong, expired, or missing code
// returns ErrUnauthorized. The live code survives failures.
func (e *Engine) VerifyTwoFactor(ctx context.Context, email, code string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	identity, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, AuditTwoFactor, "", email, false, ErrUnauthorized)
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if !identity.TwoFactorEnabled {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, AuditTwoFactor, identity.ID, identity.Email, false, ErrUnauthorized)
		return nil, ErrUnauthorized
	}

	match, err := e.checkCode(ctx, identity.ID, secretcache.PurposeTwoFactorLogin, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !match {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, AuditTwoFactor, identity.ID, identity.Email, false, ErrUnauthorized)
		return nil, ErrUnauthorized
	}

	return e.completeTwoFactor(ctx, identity)
}

func (e *Engine) completeTwoFactor(ctx context.Context, identity *store.Identity) (*LoginResult, error) {
	pair, err := e.issueTokens(ctx, identity)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, AuditTwoFactor, identity.ID, identity.Email, false, err)
		return nil, err
	}

	// The code outlives any failed issuance attempt above; it is spent
	// only once a token pair is actually out the door.
	e.consumeCode(ctx, identity.ID, secretcache.PurposeTwoFactorLogin)

	e.metricInc(MetricTwoFactorSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditTwoFactor, identity.ID, identity.Email, true, nil)
	return &LoginResult{
		TokenPair:  *pair,
		IdentityID: identity.ID,
		Method:     identity.TwoFactorMethod,
	}, nil
}

// EnableTwoFactor turns on second-factor login over the given channel.
// The identity must have a verified email first.
func (e *Engine) EnableTwoFactor(ctx context.Context, identityID string, method store.TwoFactorMethod) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if !store.ValidTwoFactorMethod(method) {
		return ErrTwoFactorMethod
	}

	identity, err := e.store.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("lookup identity: %w", err)
	}
	if !identity.Verified {
		return ErrEmailNotVerified
	}

	if err := e.store.SetTwoFactor(ctx, identityID, true, method); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}

	e.emitAudit(ctx, AuditTwoFactorToggle, identityID, identity.Email, true, nil)
	return nil
}

// DisableTwoFactor turns off second-factor login. Disabling an identity
// that never had it enabled succeeds.
func (e *Engine) DisableTwoFactor(ctx context.Context, identityID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	if err := e.store.SetTwoFactor(ctx, identityID, false, store.TwoFactorNone); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("disable two-factor: %w", err)
	}

	// Any pending login code is dead weight once the factor is off.
	e.consumeCode(ctx, identityID, secretcache.PurposeTwoFactorLogin)

	e.emitAudit(ctx, AuditTwoFactorToggle, identityID, "", true, nil)
	return nil
}
