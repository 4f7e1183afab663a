// Package store defines the durable credential-store contract: identity
// records keyed by unique id, unique case-insensitive email, or the
// current refresh-token value, with single-record field-level updates.
// Two implementations ship: an in-memory store for tests and demos, and
// a PostgreSQL store backed by pgx.
package store
