package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/merchkit/identity/internal"
	"github.com/merchkit/identity/notify"
	"github.com/merchkit/identity/password"
	"github.com/merchkit/identity/permission"
	"github.com/merchkit/identity/secretcache"
	"github.com/merchkit/identity/store"
	"github.com/merchkit/identity/token"
)

// Engine orchestrates the identity flows: registration, verification,
// login with optional email two-factor, token refresh and revocation,
// password reset, and access-token validation. Construct with Builder.
// Safe for concurrent use; per-identity operations are not serialized,
// concurrent refresh races are closed by the store's version check.
type Engine struct {
	config  Config
	store   store.Store
	cache   secretcache.Cache
	sender  notify.Sender
	logger  *zap.Logger
	hasher  *password.Hasher
	issuer  *token.Issuer
	audit   *auditDispatcher
	metrics *Metrics
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.issuer != nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType, identityID, email string, success bool, opErr error) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:  time.Now(),
		EventType:  eventType,
		IdentityID: identityID,
		Email:      email,
		IP:         clientIPFromContext(ctx),
		Success:    success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	e.audit.Emit(ctx, event)
}

// enumerationDelay equalizes response timing on unknown-email paths.
func (e *Engine) enumerationDelay() {
	min := e.config.Account.EnumerationDelayMin
	max := e.config.Account.EnumerationDelayMax
	if min <= 0 || max < min {
		return
	}
	time.Sleep(min + time.Duration(rand.Int63n(int64(max-min)+1)))
}

// issueCode generates a one-time code, caches its hash under the
// identity and purpose, and hands it to the sender. Delivery failure is
// logged and counted but never fails the operation; a cache failure
// does.
func (e *Engine) issueCode(ctx context.Context, identity *store.Identity, purpose secretcache.Purpose, ttl time.Duration) error {
	code, err := internal.NewCode(e.config.Codes.Digits)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	now := time.Now()
	record := &secretcache.Record{
		IdentityID: identity.ID,
		Email:      identity.Email,
		CodeHash:   internal.HashCode(code),
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
	key := secretcache.Key{IdentityID: identity.ID, Purpose: purpose}
	if err := e.cache.Set(ctx, key, record, ttl); err != nil {
		return fmt.Errorf("cache code: %w", err)
	}

	if err := e.sender.SendCode(ctx, identity.Email, code, string(purpose)); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.logger.Warn("one-time code delivery failed",
			zap.String("purpose", string(purpose)),
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}
	return nil
}

// checkCode reports whether the presented code matches the live cached
// one. The cached code is never removed here: consumption happens only
// on the success path of the calling flow.
func (e *Engine) checkCode(ctx context.Context, identityID string, purpose secretcache.Purpose, code string) (bool, error) {
	key := secretcache.Key{IdentityID: identityID, Purpose: purpose}
	record, err := e.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, secretcache.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read code: %w", err)
	}
	hash := internal.HashCode(code)
	return internal.CodeHashEqual(record.CodeHash, hash), nil
}

func (e *Engine) consumeCode(ctx context.Context, identityID string, purpose secretcache.Purpose) {
	key := secretcache.Key{IdentityID: identityID, Purpose: purpose}
	if err := e.cache.Remove(ctx, key); err != nil {
		e.logger.Warn("one-time code removal failed",
			zap.String("purpose", string(purpose)),
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
	}
}

// issueTokens signs an access token and rotates the refresh slot. The
// identity's TokenVersion guards the write: a concurrent rotation wins
// and this one fails uniformly.
func (e *Engine) issueTokens(ctx context.Context, identity *store.Identity) (*TokenPair, error) {
	access, err := e.issuer.Sign(identity.ID, identity.Email, identity.Permissions.Claims())
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := internal.NewRefreshValue()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(e.config.JWT.RefreshTTL)
	if err := e.store.SaveRefreshToken(ctx, identity.ID, refresh, expiresAt, identity.TokenVersion); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Login authenticates email+password. Unknown email and wrong password
// return the same error. With two-factor enabled and no code, a login
// code is delivered and a pending result returned; with a wrong code
// the result is pending again, revealing nothing about the live code.
func (e *Engine) Login(ctx context.Context, email, password, code string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	identity, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.enumerationDelay()
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditLogin, "", email, false, ErrInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	result, err := e.hasher.Verify(password, identity.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !result.Match {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, identity.ID, identity.Email, false, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if !identity.Verified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, identity.ID, identity.Email, false, ErrEmailNotVerified)
		return nil, ErrEmailNotVerified
	}

	if result.NeedsRehash && !e.config.Account.DisableHashUpgradeOnLogin {
		e.rehashPassword(ctx, identity.ID, password)
	}

	if identity.TwoFactorEnabled {
		return e.twoFactorBranch(ctx, identity, code)
	}

	pair, err := e.issueTokens(ctx, identity)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, identity.ID, identity.Email, false, err)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLogin, identity.ID, identity.Email, true, nil)
	return &LoginResult{TokenPair: *pair, IdentityID: identity.ID}, nil
}

// rehashPassword upgrades a stored hash to current parameters after a
// successful login. Best effort: failure only logs.
func (e *Engine) rehashPassword(ctx context.Context, identityID, plaintext string) {
	hash, err := e.hasher.Hash(plaintext)
	if err == nil {
		err = e.store.UpdatePasswordHash(ctx, identityID, hash)
	}
	if err != nil {
		e.logger.Warn("password rehash failed",
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
	}
}

// Refresh exchanges a live refresh token for a new pair, rotating the
// stored value. Absent, revoked, expired, and concurrently rotated
// tokens all fail the same way.
func (e *Engine) Refresh(ctx context.Context, refreshValue string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if refreshValue == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrUnauthorized
	}

	identity, err := e.store.GetByRefreshToken(ctx, refreshValue)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, AuditRefresh, "", "", false, ErrUnauthorized)
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if !identity.RefreshTokenValid(refreshValue, time.Now()) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefresh, identity.ID, identity.Email, false, ErrUnauthorized)
		return nil, ErrUnauthorized
	}

	pair, err := e.issueTokens(ctx, identity)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefresh, identity.ID, identity.Email, false, err)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefresh, identity.ID, identity.Email, true, nil)
	return pair, nil
}

// Logout revokes the identity's current refresh token. The value must
// match the stored slot; repeating a successful logout is a no-op.
func (e *Engine) Logout(ctx context.Context, identityID, refreshValue string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	err := e.store.RevokeRefreshToken(ctx, identityID, refreshValue, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrRefreshMismatch) {
			e.emitAudit(ctx, AuditLogout, identityID, "", false, ErrUnauthorized)
			return ErrUnauthorized
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, identityID, "", true, nil)
	return nil
}

// Authenticate validates an access token and returns its principal.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	claims, err := e.issuer.Parse(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	perms, err := permission.ParseSet(claims.Perms)
	if err != nil {
		// Claims are minted from the catalog; an unknown entry means the
		// token did not come from this engine's current catalog.
		return nil, ErrUnauthorized
	}

	return &Principal{
		IdentityID:  claims.Subject,
		Email:       claims.Email,
		Permissions: perms,
	}, nil
}
