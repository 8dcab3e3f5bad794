// Package session provides the client session model, a compact binary snapshot
// encoding, and an optional Redis-backed snapshot store.
//
// # Binary encoding
//
// Snapshots are stored as a versioned binary blob (schema versions v1–v2) with
// forward migration on read. The encoder is append-only: new versions add fields
// but never reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Session] model, the [Role] enumeration, and the [Store]
// (Redis operations). It does NOT talk to the identity provider, fetch backend
// profiles, or decide when a session starts or ends. Those responsibilities
// belong to the Manager in the root package.
//
// # What this package must NOT do
//
//   - Import the root civix package, identity, profile, or transport.
//   - Store bearer credentials or ID tokens in [Session] fields.
package session
