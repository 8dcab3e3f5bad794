// Package civix manages the signed-in session of a Civix client: who is
// logged in, with which role and points, and which bearer credential the
// API transport attaches.
//
// A [Manager] is built with [Builder] and reconciles three sources:
//
//   - the identity provider ([IdentityProvider]), which reports sign-in and
//     sign-out and is authoritative for the user ID;
//   - the backend profile service ([ProfileService]), which supplies role,
//     points and display name after sign-in;
//   - an optional snapshot store ([SnapshotStore]), which remembers the last
//     confirmed session of the device.
//
// The Manager is the single writer of the session and of the
// [transport.Credential] passed to the API client. Logout clears local state
// before the remote sign-out starts, and nothing the network does afterwards
// can make the user appear signed in again.
//
// # What this package must NOT do
//
//   - Block a caller of Login, Logout or UpdateProfile on network I/O.
//   - Let a failed or slow profile fetch fail or delay a sign-in.
//   - Import any sub-package that re-imports civix.
package civix
