// Package audit implements async event dispatching for session lifecycle
// events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured record with event ID, timestamp, type, user, device, role, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit. That belongs to the session manager.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import the root civix package or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
