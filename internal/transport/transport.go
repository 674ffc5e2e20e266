// Package transport defines the boundary to the upstream messaging network.
//
// The gateway treats the network client as an opaque collaborator: it dials a
// per-session connection, consumes a typed event stream, and issues send,
// pairing and logout commands. Wire protocol, encryption and multi-device
// credential sync all live behind this boundary.
package transport

import (
	"context"
	"strings"
	"time"
)

// DefaultDomain is the recipient domain applied to bare phone numbers.
const DefaultDomain = "s.whatsapp.net"

// DialOptions carry the identity and prior credentials for a session dial.
type DialOptions struct {
	SessionID   string
	PhoneNumber string
	// Credentials holds previously persisted authentication material.
	// Nil means the session has never paired.
	Credentials []byte
}

// Dialer establishes upstream connections, one per session.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Client, error)
}

// Client is one live connection to the upstream messaging network.
//
// Events delivers lifecycle and message events in the order the network
// emits them. The channel is closed when the connection is torn down.
type Client interface {
	Events() <-chan Event
	// Ready is closed once the connection can accept a pairing-code request.
	Ready() <-chan struct{}
	SendText(ctx context.Context, to string, text string) error
	RequestPairingCode(ctx context.Context, phoneNumber string) (string, error)
	Logout(ctx context.Context) error
	// Close tears the connection down without logging out. Safe to call
	// more than once.
	Close() error
}

// CloseReason classifies why the upstream connection closed.
type CloseReason int

const (
	// CloseReasonUnknown covers transient disconnects with no stated cause.
	CloseReasonUnknown CloseReason = iota
	// CloseReasonLoggedOut means the remote account unlinked this device.
	// Terminal: reconnecting is pointless until the user pairs again.
	CloseReasonLoggedOut
)

// Event is a lifecycle, message or credential notification from the
// upstream connection.
type Event interface {
	event()
}

// PairingEvent carries an out-of-band authentication artifact (QR payload
// or pairing reference) emitted before the connection is authenticated.
type PairingEvent struct {
	Data string
}

// OpenedEvent reports successful authentication of the connection.
type OpenedEvent struct{}

// ClosedEvent reports loss of the connection.
type ClosedEvent struct {
	Reason CloseReason
}

// MessageEvent reports a newly received message.
type MessageEvent struct {
	From string
	Body string
	// ExtendedBody holds the text of extended/quoted message payloads when
	// Body is empty.
	ExtendedBody string
	Timestamp    time.Time
	// FromSelf marks messages authored by the session's own account.
	FromSelf bool
	// Live distinguishes live notifications from history backfill.
	Live bool
}

// CredentialEvent reports updated authentication material that must be
// persisted for the next dial.
type CredentialEvent struct {
	Credentials []byte
}

func (PairingEvent) event()    {}
func (OpenedEvent) event()     {}
func (ClosedEvent) event()     {}
func (MessageEvent) event()    {}
func (CredentialEvent) event() {}

// PlainText extracts the best-effort text content of the message: the direct
// body when present, otherwise the extended/quoted body. Empty means the
// message carries nothing the gateway can forward.
func (m MessageEvent) PlainText() string {
	if body := strings.TrimSpace(m.Body); body != "" {
		return body
	}
	return strings.TrimSpace(m.ExtendedBody)
}

// NormalizeAddress resolves a recipient into a full network address. Values
// that already name a domain pass through verbatim; anything else is treated
// as a phone number and suffixed with domain.
func NormalizeAddress(to string, domain string) string {
	to = strings.TrimSpace(to)
	if to == "" {
		return ""
	}
	if strings.Contains(to, "@") {
		return to
	}
	if strings.TrimSpace(domain) == "" {
		domain = DefaultDomain
	}
	return to + "@" + domain
}

// NormalizePhone strips every non-digit rune from a raw phone number.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
