// Package loopback provides an in-process transport for development and
// offline paths. It simulates the upstream network: dials always succeed,
// pairing issues deterministic codes, and sent messages can be echoed back
// as inbound traffic so subscriber fan-out is observable without a real
// network account.
package loopback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/pairline/internal/transport"
)

// Dialer builds loopback clients.
type Dialer struct {
	// Echo replays every sent message as an inbound message from the
	// recipient. Useful for exercising the push channel end to end.
	Echo bool

	mu      sync.Mutex
	clients map[string]*Client
}

// NewDialer creates a loopback dialer with echo enabled.
func NewDialer() *Dialer {
	return &Dialer{Echo: true}
}

// Dial creates a connected loopback client for the session.
func (d *Dialer) Dial(_ context.Context, opts transport.DialOptions) (transport.Client, error) {
	if strings.TrimSpace(opts.SessionID) == "" {
		return nil, errors.New("session id is required")
	}

	c := &Client{
		sessionID: opts.SessionID,
		phone:     opts.PhoneNumber,
		echo:      d.Echo,
		events:    make(chan transport.Event, 16),
		ready:     make(chan struct{}),
	}

	d.mu.Lock()
	if d.clients == nil {
		d.clients = make(map[string]*Client)
	}
	d.clients[opts.SessionID] = c
	d.mu.Unlock()

	close(c.ready)
	if len(opts.Credentials) > 0 {
		c.emit(transport.OpenedEvent{})
	} else {
		c.emit(transport.PairingEvent{Data: "loopback-qr:" + opts.SessionID})
	}
	return c, nil
}

// Client is a single loopback connection.
type Client struct {
	sessionID string
	phone     string
	echo      bool

	events chan transport.Event
	ready  chan struct{}

	mu     sync.Mutex
	closed bool
}

// Events returns the event stream for this connection.
func (c *Client) Events() <-chan transport.Event { return c.events }

// Ready reports pairing readiness; loopback connections are always ready.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// SendText accepts an outbound message and, when echo is on, replays it as
// inbound traffic from the recipient.
func (c *Client) SendText(_ context.Context, to string, text string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient is required")
	}
	if !c.echo {
		return nil
	}
	c.emit(transport.MessageEvent{
		From:      to,
		Body:      text,
		Timestamp: time.Now().UTC(),
		Live:      true,
	})
	return nil
}

// RequestPairingCode issues a deterministic code for the phone number and
// completes the simulated login: credentials are emitted for persistence,
// then the connection opens.
func (c *Client) RequestPairingCode(_ context.Context, phoneNumber string) (string, error) {
	digits := transport.NormalizePhone(phoneNumber)
	if digits == "" {
		return "", errors.New("phone number is required")
	}

	sum := sha256.Sum256([]byte(c.sessionID + ":" + digits))
	code := strings.ToUpper(hex.EncodeToString(sum[:4]))

	c.emit(transport.CredentialEvent{
		Credentials: fmt.Appendf(nil, "loopback:%s:%s", c.sessionID, digits),
	})
	c.emit(transport.OpenedEvent{})
	return code[:4] + "-" + code[4:], nil
}

// Logout terminates the simulated account link.
func (c *Client) Logout(context.Context) error {
	c.emit(transport.ClosedEvent{Reason: transport.CloseReasonLoggedOut})
	return c.Close()
}

// Close shuts the event stream down. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

func (c *Client) emit(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
