// Package transport is the outbound HTTP client used to reach the Civix
// backend.
//
// The bearer credential lives in a [Credential] cell that is handed to
// [NewClient] explicitly. Every request made through the client reads the cell
// at send time, so a session change is visible to the next request without
// rebuilding the client.
//
// # What this package must NOT do
//
//   - Keep credentials in package-level variables.
//   - Interpret response bodies beyond JSON decoding and status mapping.
package transport
