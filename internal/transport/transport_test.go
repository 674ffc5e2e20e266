package transport

import (
	"testing"
	"time"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name   string
		to     string
		domain string
		want   string
	}{
		{name: "bare number gains domain", to: "15551234567", domain: "s.whatsapp.net", want: "15551234567@s.whatsapp.net"},
		{name: "full address passes through", to: "15551234567@g.us", domain: "s.whatsapp.net", want: "15551234567@g.us"},
		{name: "empty domain falls back to default", to: "15551234567", domain: "", want: "15551234567@" + DefaultDomain},
		{name: "empty recipient stays empty", to: "  ", domain: "s.whatsapp.net", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAddress(tt.to, tt.domain); got != tt.want {
				t.Fatalf("NormalizeAddress(%q, %q) = %q, want %q", tt.to, tt.domain, got, tt.want)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "+1 (555) 123-4567", want: "15551234567"},
		{raw: "15551234567", want: "15551234567"},
		{raw: "abc", want: ""},
		{raw: "", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.raw); got != tt.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.raw, tt.want, got)
		}
	}
}

func TestMessageEventPlainText(t *testing.T) {
	tests := []struct {
		name string
		msg  MessageEvent
		want string
	}{
		{name: "direct body wins", msg: MessageEvent{Body: "hi", ExtendedBody: "quoted"}, want: "hi"},
		{name: "extended body as fallback", msg: MessageEvent{ExtendedBody: "quoted"}, want: "quoted"},
		{name: "whitespace body falls through", msg: MessageEvent{Body: "   ", ExtendedBody: "quoted"}, want: "quoted"},
		{name: "nothing extractable", msg: MessageEvent{Timestamp: time.Now()}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.PlainText(); got != tt.want {
				t.Fatalf("PlainText() = %q, want %q", got, tt.want)
			}
		})
	}
}
