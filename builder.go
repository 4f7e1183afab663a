package identity

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/merchkit/identity/notify"
	"github.com/merchkit/identity/password"
	"github.com/merchkit/identity/secretcache"
	"github.com/merchkit/identity/store"
	"github.com/merchkit/identity/token"
)

// Builder assembles an Engine. A credential store is mandatory; the
// one-time-code cache defaults to in-memory when neither WithCache nor
// WithRedis is given, the sender to notify.NopSender, the logger to a
// nop zap logger.
type Builder struct {
	config    Config
	store     store.Store
	cache     secretcache.Cache
	sender    notify.Sender
	logger    *zap.Logger
	auditSink AuditSink

	built bool
}

func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = mergeConfig(cfg)
	return b
}

func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithCache supplies the one-time-code cache directly.
func (b *Builder) WithCache(c secretcache.Cache) *Builder {
	b.cache = c
	return b
}

// WithRedis wires the one-time-code cache onto a Redis client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.cache = secretcache.NewRedisCache(client, "")
	return b
}

func (b *Builder) WithSender(s notify.Sender) *Builder {
	b.sender = s
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(token.Config{
		AccessTTL:     b.config.JWT.AccessTTL,
		SigningMethod: b.config.JWT.SigningMethod,
		PrivateKey:    b.config.JWT.PrivateKey,
		PublicKey:     b.config.JWT.PublicKey,
		Issuer:        b.config.JWT.Issuer,
		Audience:      b.config.JWT.Audience,
		Leeway:        b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	cache := b.cache
	if cache == nil {
		cache = secretcache.NewMemoryCache()
	}
	sender := b.sender
	if sender == nil {
		sender = notify.NopSender{}
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b.built = true

	return &Engine{
		config:  b.config,
		store:   b.store,
		cache:   cache,
		sender:  sender,
		logger:  logger,
		hasher:  hasher,
		issuer:  issuer,
		audit:   newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics: NewMetrics(),
	}, nil
}
