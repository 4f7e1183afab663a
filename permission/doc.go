// Package permission defines the closed catalog of permission claims,
// ordered permission sets validated against that catalog, and the
// requirement/resolver pair used to gate request handling.
package permission
