package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func startTestHub(t *testing.T) *httptest.Server {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.UpgradeHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestClientTransportRelaysByRemoteUserID(t *testing.T) {
	srv := startTestHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := Dial(ctx, wsURL(srv.URL)+"/ws", "alice")
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer alice.Close()

	bob, err := Dial(ctx, wsURL(srv.URL)+"/ws", "bob")
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bob.Close()

	received := make(chan string, 1)
	bob.OnMessageReceive(func(fromUserID string, payload []byte) {
		received <- fromUserID
	})

	// Give both connections a moment to finish registering before sending.
	time.Sleep(50 * time.Millisecond)

	payload := []byte(`{"fromUserId":"alice","remoteUserId":"bob","message_action":"VideoCall"}`)
	if err := alice.SendMessage(ctx, "bob", payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case from := <-received:
		if from != "alice" {
			t.Fatalf("expected sender alice, got %s", from)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed message")
	}
}

func TestClientTransportDropsFrameToDisconnectedUser(t *testing.T) {
	srv := startTestHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := Dial(ctx, wsURL(srv.URL)+"/ws", "alice")
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer alice.Close()

	time.Sleep(50 * time.Millisecond)

	payload := []byte(`{"fromUserId":"alice","remoteUserId":"nobody","message_action":"VideoCall"}`)
	if err := alice.SendMessage(ctx, "nobody", payload); err != nil {
		t.Fatalf("send should not error locally, got: %v", err)
	}
}

func TestClientTransportCloseIsIdempotent(t *testing.T) {
	srv := startTestHub(t)
	ctx := context.Background()

	alice, err := Dial(ctx, wsURL(srv.URL)+"/ws", "alice")
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	_ = alice.Close()

	// A second Close must not panic (close of closed channel).
	if err := alice.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
