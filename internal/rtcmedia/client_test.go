package rtcmedia

import (
	"context"
	"testing"
	"time"

	"github.com/sebas/callengine/internal/callengine"
)

func TestClientJoinAndSubscribeExchangeMedia(t *testing.T) {
	room := NewRoom()
	alice := NewClient(room)
	bob := NewClient(room)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var aliceJoined, bobJoined []string
	alice.OnUserJoined(func(u string) { aliceJoined = append(aliceJoined, u) })
	bob.OnUserJoined(func(u string) { bobJoined = append(bobJoined, u) })

	if err := alice.Join(ctx, "room-1", "tok", "alice"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := bob.Join(ctx, "room-1", "tok", "bob"); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	if len(aliceJoined) != 1 || len(bobJoined) != 1 {
		t.Fatalf("unexpected joined notifications: alice=%v bob=%v", aliceJoined, bobJoined)
	}

	aliceTrack, err := alice.PublishVideo(ctx, callengine.VideoConfig{Width: 320, Height: 240, FPSHint: 15})
	if err != nil {
		t.Fatalf("alice publish: %v", err)
	}
	defer aliceTrack.Close()

	bobTrack, err := bob.Subscribe(ctx, "alice", "video")
	if err != nil {
		t.Fatalf("bob subscribe: %v", err)
	}
	defer bobTrack.Close()

	first := make(chan struct{})
	bobTrack.OnFirstFrameDecoded(func() { close(first) })

	select {
	case <-first:
	case <-ctx.Done():
		t.Fatal("timed out waiting for first frame")
	}

	if err := alice.Leave(ctx); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	if err := bob.Leave(ctx); err != nil {
		t.Fatalf("bob leave: %v", err)
	}
}

func TestClientSubscribeTimesOutWithoutPublisher(t *testing.T) {
	room := NewRoom()
	alice := NewClient(room)
	bob := NewClient(room)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := alice.Join(ctx, "room-2", "tok", "alice"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := bob.Join(ctx, "room-2", "tok", "bob"); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	shortCtx, shortCancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer shortCancel()
	if _, err := bob.Subscribe(shortCtx, "alice", "video"); err == nil {
		t.Fatal("expected Subscribe to time out when nobody has published")
	}
}
