// Package identity is an embeddable identity and session engine for
// storefront backends: registration with email verification, login
// with optional email second factor, signed access tokens carrying
// permission claims, single-session refresh-token rotation, and
// one-time-code password reset.
//
// Build an Engine with the Builder, supplying a credential store and,
// optionally, a Redis client for the one-time-code cache:
//
//	engine, err := identity.New().
//		WithConfig(cfg).
//		WithStore(store.NewMemoryStore()).
//		WithRedis(redisClient).
//		WithSender(sender).
//		Build()
//
// All engine operations take a context and return sentinel errors from
// this package; see errors.go for the taxonomy.
package identity
