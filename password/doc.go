// Package password provides one-way credential hashing with argon2id.
// Hashes are stored in PHC string format; verification additionally
// reports when a hash was produced with weaker-than-current parameters
// so callers can transparently rehash after a successful login.
package password
