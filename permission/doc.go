// Package permission maps Civix roles to capability bitmasks.
//
// # Capabilities
//
// A capability is a named action a screen may gate on ("ticket.assign",
// "technician.manage"). Capabilities are registered once in a [Registry],
// receive a stable bit position in a 64-bit [Mask], and are combined per role
// by a [RoleManager]. The registry and role manager are frozen before use.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. The backend
// remains the authority on what a user may actually do; these checks only
// decide what the client offers.
//
// # What this package must NOT do
//
//   - Access Redis, the network, or the identity provider.
//   - Import the root civix package.
package permission
