package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestManagerCreateSupersedes(t *testing.T) {
	mgr, dialer := newTestManager(t, Config{})
	ctx := context.Background()

	if err := mgr.Create(ctx, "alice", "15551230001"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := mgr.Create(ctx, "alice", "15551230001"); err != nil {
		t.Fatalf("second create: %v", err)
	}

	if got := dialer.dialCount(); got != 2 {
		t.Fatalf("dial count = %d, want 2", got)
	}
	if !dialer.client(0).isClosed() {
		t.Fatal("superseded handle was not closed")
	}
	if dialer.client(1).isClosed() {
		t.Fatal("live handle was closed")
	}
	if got := mgr.ActiveSessions(); got != 1 {
		t.Fatalf("ActiveSessions = %d, want 1", got)
	}
	if got := mgr.Status("alice"); got != StatusConnecting {
		t.Fatalf("status = %q, want %q", got, StatusConnecting)
	}
}

func TestManagerCreateRejectsBlankID(t *testing.T) {
	mgr, dialer := newTestManager(t, Config{})
	if err := mgr.Create(context.Background(), "  ", "15551230001"); err == nil {
		t.Fatal("blank session id was accepted")
	}
	if dialer.dialCount() != 0 {
		t.Fatal("blank session id reached the dialer")
	}
}

func TestManagerCreateUsesStoredCredentials(t *testing.T) {
	store := newFakeCredentialStore()
	creds := []byte("keys-for-alice")
	if err := store.PutCredentials(context.Background(), credentialRecord("alice", creds)); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	mgr, dialer := newTestManager(t, Config{Credentials: store})
	if err := mgr.Create(context.Background(), "alice", "15551230001"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if got := dialer.client(0).dialOpts.Credentials; !bytes.Equal(got, creds) {
		t.Fatalf("dial credentials = %q, want %q", got, creds)
	}
}

func TestManagerSend(t *testing.T) {
	mgr, dialer := newTestManager(t, Config{})
	ctx := context.Background()

	if err := mgr.Send(ctx, "ghost", "15551230002", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("send to unknown session: %v, want ErrSessionNotFound", err)
	}

	if err := mgr.Create(ctx, "alice", "15551230001"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mgr.Send(ctx, "alice", "15551230002", "hi"); !errors.Is(err, ErrSessionNotConnected) {
		t.Fatalf("send while connecting: %v, want ErrSessionNotConnected", err)
	}

	client := dialer.client(0)
	client.emit(t, openedEvent())
	waitFor(t, "connected status", func() bool { return mgr.Status("alice") == StatusConnected })

	if err := mgr.Send(ctx, "alice", "15551230002", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := mgr.Send(ctx, "alice", "group@g.us", "hello group"); err != nil {
		t.Fatalf("send to full address: %v", err)
	}

	sent := client.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].to != "15551230002@s.whatsapp.net" {
		t.Fatalf("bare recipient completed to %q", sent[0].to)
	}
	if sent[1].to != "group@g.us" {
		t.Fatalf("full address rewritten to %q", sent[1].to)
	}
}

func TestManagerDisconnect(t *testing.T) {
	store := newFakeCredentialStore()
	mgr, dialer := newTestManager(t, Config{Credentials: store})
	ctx := context.Background()

	if err := mgr.Create(ctx, "alice", "15551230001"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.PutCredentials(ctx, credentialRecord("alice", []byte("keys"))); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	ch := make(chan Envelope, 4)
	mgr.Subscribe("alice", ch)
	drainEnvelopes(ch) // drop the subscription snapshot

	if err := mgr.Disconnect(ctx, "alice"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	client := dialer.client(0)
	if !client.isLoggedOut() {
		t.Fatal("disconnect did not log the session out")
	}
	if !client.isClosed() {
		t.Fatal("disconnect did not close the handle")
	}
	if got := mgr.Status("alice"); got != StatusNotFound {
		t.Fatalf("status after disconnect = %q, want %q", got, StatusNotFound)
	}
	if _, ok := store.get("alice"); ok {
		t.Fatal("credentials survived disconnect")
	}

	env := nextEnvelope(t, ch)
	if env.Type != "connection" || env.Status != StatusLoggedOut {
		t.Fatalf("broadcast after disconnect = %+v", env)
	}

	if err := mgr.Disconnect(ctx, "alice"); err != nil {
		t.Fatalf("repeat disconnect: %v", err)
	}
}

func TestManagerSubscribeSnapshot(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	ch := make(chan Envelope, 1)
	mgr.Subscribe("ghost", ch)
	if len(ch) != 0 {
		t.Fatal("subscriber to an absent session received a snapshot")
	}
	mgr.Unsubscribe("ghost", ch)

	if err := mgr.Create(context.Background(), "alice", "15551230001"); err != nil {
		t.Fatalf("create: %v", err)
	}
	mgr.Subscribe("alice", ch)
	env := nextEnvelope(t, ch)
	if env.Type != "connection" || env.Status != StatusConnecting {
		t.Fatalf("snapshot = %+v, want connecting status", env)
	}
}

func drainEnvelopes(ch chan Envelope) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
