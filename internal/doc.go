// Package internal holds cryptographic randomness helpers shared by the
// identity engine: one-time code generation and opaque refresh-token
// values. Nothing here is part of the public API.
package internal
