// Package session manages upstream messaging sessions: one registry entry
// and one live transport connection per end-user account.
//
// The package is organized around four cooperating pieces:
//   - Registry: the single source of truth mapping session ids to transport
//     handles, phone numbers and connection status.
//   - Broadcaster: per-session subscriber channels receiving lifecycle and
//     message envelopes.
//   - Manager: the connection state machine driving each session from its
//     transport event stream, including reconnection and pairing.
//   - ReconnectPolicy: the delay schedule applied between reconnect attempts.
package session
