package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/merchkit/identity/password"
	"github.com/merchkit/identity/permission"
	"github.com/merchkit/identity/secretcache"
	"github.com/merchkit/identity/store"
)

// Register creates an unverified identity with the default permission
// set and delivers a verification code. The email is taken
// case-insensitively; a duplicate fails with ErrEmailTaken.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email := store.NormalizeEmail(req.Email)
	if !plausibleEmail(email) {
		return nil, ErrInvalidEmail
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return nil, ErrWeakPassword
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity := &store.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Permissions:  permission.DefaultSet(),
	}

	if err := e.store.Insert(ctx, identity); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, AuditRegister, "", email, false, ErrEmailTaken)
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert identity: %w", err)
	}

	if err := e.issueCode(ctx, identity, secretcache.PurposeEmailVerification, e.config.Codes.VerificationTTL); err != nil {
		// The identity is committed; the caller can still recover with
		// ResendVerification.
		e.emitAudit(ctx, AuditRegister, identity.ID, email, false, err)
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditRegister, identity.ID, email, true, nil)
	return &RegisterResult{IdentityID: identity.ID}, nil
}

// VerifyEmail marks the identity verified when the presented code
// matches the live verification code, consuming it. Missing, expired,
// and wrong codes fail identically and leave the live code in place.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	identity, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricVerifyEmailFailure)
			e.emitAudit(ctx, AuditVerifyEmail, "", email, false, ErrCodeInvalid)
			return ErrCodeInvalid
		}
		return fmt.Errorf("lookup identity: %w", err)
	}

	match, err := e.checkCode(ctx, identity.ID, secretcache.PurposeEmailVerification, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if !match {
		e.metricInc(MetricVerifyEmailFailure)
		e.emitAudit(ctx, AuditVerifyEmail, identity.ID, identity.Email, false, ErrCodeInvalid)
		return ErrCodeInvalid
	}

	if err := e.store.SetVerified(ctx, identity.ID, true); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	e.consumeCode(ctx, identity.ID, secretcache.PurposeEmailVerification)

	e.metricInc(MetricVerifyEmailSuccess)
	e.emitAudit(ctx, AuditVerifyEmail, identity.ID, identity.Email, true, nil)
	return nil
}

// ResendVerification regenerates the verification code, overwriting any
// live one. Unknown addresses succeed after a timing-equalizing delay
// so the call cannot probe for registered emails.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	identity, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.enumerationDelay()
			e.emitAudit(ctx, AuditResendVerification, "", email, false, ErrIdentityNotFound)
			return nil
		}
		return fmt.Errorf("lookup identity: %w", err)
	}

	if identity.Verified {
		e.emitAudit(ctx, AuditResendVerification, identity.ID, identity.Email, false, ErrAlreadyVerified)
		return ErrAlreadyVerified
	}

	if err := e.issueCode(ctx, identity, secretcache.PurposeEmailVerification, e.config.Codes.VerificationTTL); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditResendVerification, identity.ID, identity.Email, true, nil)
	return nil
}

// plausibleEmail is a shape check, not RFC validation: one @ with
// something on both sides. Deliverability is proven by the
// verification code, not by parsing.
func plausibleEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}
