// Package jwt verifies identity-provider ID tokens and, for local development
// and tests, issues them.
//
// Verification is strict: the signing algorithm is pinned, issuer and audience
// are checked when configured, key IDs are resolved against a fixed key set, and
// issued-at values too far in the future are rejected.
package jwt
