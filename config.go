package identity

import (
	"errors"
	"time"

	"github.com/merchkit/identity/password"
	"github.com/merchkit/identity/token"
)

// Config is the engine configuration. Zero values are filled with the
// defaults below during Build; configure once and treat as immutable.
type Config struct {
	JWT      JWTConfig
	Password password.Config
	Codes    CodesConfig
	Account  AccountConfig
	Audit    AuditConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig carries token signing material and lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod token.SigningMethod // ed25519 (default) or hs256
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
ONE-TIME CODE CONFIG
====================================
*/

// CodesConfig controls one-time code generation and lifetimes per flow.
type CodesConfig struct {
	Digits          int
	VerificationTTL time.Duration
	TwoFactorTTL    time.Duration
	ResetTTL        time.Duration
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig tunes account-flow behavior.
type AccountConfig struct {
	// DisableHashUpgradeOnLogin skips rehashing a password after a
	// successful login when the stored hash was produced with weaker
	// parameters. Upgrading is on unless this is set, so a partially
	// filled Config keeps it.
	DisableHashUpgradeOnLogin bool
	// EnumerationDelayMin/Max bound the random delay added on
	// unknown-email paths so response timing does not reveal whether an
	// address is registered.
	EnumerationDelayMin time.Duration
	EnumerationDelayMax time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the caller when the
	// buffer is full. Dropped counts are visible via AuditDropped.
	DropIfFull bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: token.MethodEd25519,
			Issuer:        "merchkit-identity",
		},
		Password: password.DefaultConfig(),
		Codes: CodesConfig{
			Digits:          6,
			VerificationTTL: 5 * time.Minute,
			TwoFactorTTL:    5 * time.Minute,
			ResetTTL:        10 * time.Minute,
		},
		Account: AccountConfig{
			EnumerationDelayMin: 20 * time.Millisecond,
			EnumerationDelayMax: 40 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func mergeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.JWT.AccessTTL <= 0 {
		cfg.JWT.AccessTTL = def.JWT.AccessTTL
	}
	if cfg.JWT.RefreshTTL <= 0 {
		cfg.JWT.RefreshTTL = def.JWT.RefreshTTL
	}
	if cfg.JWT.SigningMethod == "" {
		cfg.JWT.SigningMethod = def.JWT.SigningMethod
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = def.JWT.Issuer
	}
	if cfg.Password == (password.Config{}) {
		cfg.Password = def.Password
	}
	if cfg.Codes.Digits == 0 {
		cfg.Codes.Digits = def.Codes.Digits
	}
	if cfg.Codes.VerificationTTL <= 0 {
		cfg.Codes.VerificationTTL = def.Codes.VerificationTTL
	}
	if cfg.Codes.TwoFactorTTL <= 0 {
		cfg.Codes.TwoFactorTTL = def.Codes.TwoFactorTTL
	}
	if cfg.Codes.ResetTTL <= 0 {
		cfg.Codes.ResetTTL = def.Codes.ResetTTL
	}
	if cfg.Account.EnumerationDelayMin <= 0 {
		cfg.Account.EnumerationDelayMin = def.Account.EnumerationDelayMin
	}
	if cfg.Account.EnumerationDelayMax < cfg.Account.EnumerationDelayMin {
		cfg.Account.EnumerationDelayMax = cfg.Account.EnumerationDelayMin + def.Account.EnumerationDelayMax - def.Account.EnumerationDelayMin
	}
	if cfg.Audit.BufferSize <= 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}

	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.JWT.AccessTTL >= cfg.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Codes.Digits < 4 || cfg.Codes.Digits > 10 {
		return errors.New("code digits must be between 4 and 10")
	}
	if cfg.Codes.VerificationTTL > time.Hour || cfg.Codes.TwoFactorTTL > time.Hour || cfg.Codes.ResetTTL > time.Hour {
		return errors.New("one-time code TTLs must not exceed one hour")
	}
	return nil
}
