package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"gitlab.bluewillows.net/root/dnsswitcher/pkg/routeros"
)

func TestTransport_DefaultPort(t *testing.T) {
	tests := map[Transport]int{
		TransportAPI:    8728,
		TransportAPISSL: 8729,
		TransportREST:   443,
		"":              8728,
	}
	for tr, want := range tests {
		if got := tr.DefaultPort(); got != want {
			t.Errorf("%q.DefaultPort() = %d, want %d", tr, got, want)
		}
	}
}

func TestDialConfig_Address(t *testing.T) {
	c := DialConfig{Transport: TransportAPISSL, Host: "192.168.88.1"}
	if got := c.address(); got != "192.168.88.1:8729" {
		t.Errorf("address() = %q", got)
	}
	c.Port = 9000
	if got := c.address(); got != "192.168.88.1:9000" {
		t.Errorf("address() = %q", got)
	}
}

func TestNewDialer_Errors(t *testing.T) {
	if _, err := NewDialer(DialConfig{Transport: TransportAPI}); err == nil {
		t.Error("expected error for missing host")
	}
	if _, err := NewDialer(DialConfig{Transport: "telnet", Host: "r"}); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestNewDialer_REST(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/system/identity/print" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"name": "MikroTik"}})
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())

	dial, err := NewDialer(DialConfig{
		Transport:     TransportREST,
		Host:          u.Hostname(),
		Port:          port,
		Username:      "admin",
		Password:      "secret",
		TLSSkipVerify: true,
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}

	s := NewSession(dial, WithLogger(quietLogger()))
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping over REST failed: %v", err)
	}
}

func TestNewDialer_APIUnreachable(t *testing.T) {
	dial, err := NewDialer(DialConfig{
		Transport: TransportAPI,
		Host:      "127.0.0.1",
		Port:      1,
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = dial(context.Background())
	if !routeros.IsChannelFailure(err) {
		t.Errorf("expected channel failure, got %v", err)
	}
}

func TestNewDialer_RESTUnreachable(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())
	server.Close()

	dial, err := NewDialer(DialConfig{
		Transport:     TransportREST,
		Host:          u.Hostname(),
		Port:          port,
		TLSSkipVerify: true,
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}

	if _, err := dial(context.Background()); !routeros.IsChannelFailure(err) {
		t.Fatalf("expected channel failure, got %v", err)
	}

	s := NewSession(dial, WithLogger(quietLogger()))
	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to fail")
	}
	if isConnected(s) {
		t.Error("session reports a connection to an unreachable router")
	}
}

func TestNewDialer_RESTUnauthorized(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())

	dial, err := NewDialer(DialConfig{
		Transport:     TransportREST,
		Host:          u.Hostname(),
		Port:          port,
		Username:      "admin",
		Password:      "wrong",
		TLSSkipVerify: true,
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}

	_, err = dial(context.Background())
	if !errors.Is(err, routeros.ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}
}
