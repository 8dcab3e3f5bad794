// Package identity adapts identity providers to the auth-state listener
// contract used by the session manager.
//
// # Components
//
//   - [Emitter]: in-process provider. New listeners receive the current state
//     once the provider has reported it, then every change in order.
//   - [Verifier]: turns signed ID tokens into an [Identity].
//   - [Feed]: websocket client for a hosted auth-state stream; drives an
//     Emitter and forwards remote sign-out requests.
//
// # What this package must NOT do
//
//   - Fetch application profile data (role, points). Those belong to the
//     backend profile service.
//   - Keep session state beyond the last reported identity.
package identity
