// Package secretcache stores short-lived one-time code records keyed by
// (identity, purpose). The contract is deliberately narrow: Set
// unconditionally overwrites the single slot for its key, Get reports
// present or absent without extending the TTL, and Remove is idempotent.
// Once the TTL elapses a record is never returned again; backends may
// delete lazily on access rather than sweeping.
package secretcache
