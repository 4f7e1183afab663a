// Package token signs and verifies the access tokens minted on login
// and refresh. Tokens are JWTs carrying the identity id as subject, the
// verified email, and the permission claims the holder may exercise.
package token
