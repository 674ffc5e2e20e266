package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/pairline/internal/storage"
	"github.com/louisbranch/pairline/internal/transport"
)

type sentMessage struct {
	to   string
	text string
}

type fakeClient struct {
	dialOpts transport.DialOptions

	mu        sync.Mutex
	events    chan transport.Event
	ready     chan struct{}
	sent      []sentMessage
	pairCode  string
	pairErr   error
	pairPhone string
	closed    bool
	loggedOut bool
}

func newFakeClient(opts transport.DialOptions) *fakeClient {
	return &fakeClient{
		dialOpts: opts,
		events:   make(chan transport.Event, 32),
		ready:    make(chan struct{}),
		pairCode: "ABCD-1234",
	}
}

func (c *fakeClient) Events() <-chan transport.Event { return c.events }
func (c *fakeClient) Ready() <-chan struct{}         { return c.ready }

func (c *fakeClient) SendText(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{to: to, text: text})
	return nil
}

func (c *fakeClient) RequestPairingCode(_ context.Context, phoneNumber string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairPhone = phoneNumber
	return c.pairCode, c.pairErr
}

func (c *fakeClient) Logout(context.Context) error {
	c.mu.Lock()
	c.loggedOut = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

func (c *fakeClient) emit(t *testing.T, ev transport.Event) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		t.Fatal("emit on closed fake client")
	}
	select {
	case c.events <- ev:
	default:
		t.Fatal("fake client event buffer full")
	}
}

func (c *fakeClient) sentMessages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) isLoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

type fakeDialer struct {
	mu       sync.Mutex
	clients  []*fakeClient
	failNext int
	pairErr  error
}

func (d *fakeDialer) Dial(_ context.Context, opts transport.DialOptions) (transport.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext != 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		return nil, errors.New("dial refused")
	}
	client := newFakeClient(opts)
	client.pairErr = d.pairErr
	d.clients = append(d.clients, client)
	return client, nil
}

// setFail makes the next n dials fail; n < 0 fails every dial.
func (d *fakeDialer) setFail(n int) {
	d.mu.Lock()
	d.failNext = n
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *fakeDialer) client(i int) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 {
		i = len(d.clients) + i
	}
	return d.clients[i]
}

type fakeCredentialStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{records: make(map[string][]byte)}
}

func (s *fakeCredentialStore) PutCredentials(_ context.Context, rec storage.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.SessionID] = rec.Credentials
	return nil
}

func (s *fakeCredentialStore) GetCredentials(_ context.Context, sessionID string) (storage.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.records[sessionID]
	if !ok {
		return storage.CredentialRecord{}, storage.ErrNotFound
	}
	return storage.CredentialRecord{SessionID: sessionID, Credentials: creds}, nil
}

func (s *fakeCredentialStore) DeleteCredentials(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}

func (s *fakeCredentialStore) get(sessionID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.records[sessionID]
	return creds, ok
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{}
	cfg.Dialer = dialer
	if cfg.PairingSettle <= 0 {
		cfg.PairingSettle = 20 * time.Millisecond
	}
	if cfg.Reconnect.Interval <= 0 {
		cfg.Reconnect.Interval = 10 * time.Millisecond
	}
	mgr, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return mgr, dialer
}

func credentialRecord(sessionID string, creds []byte) storage.CredentialRecord {
	return storage.CredentialRecord{SessionID: sessionID, Credentials: creds}
}

func openedEvent() transport.Event {
	return transport.OpenedEvent{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nextEnvelope(t *testing.T, ch chan Envelope) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
	return Envelope{}
}
