package rtcmedia

import "testing"

func TestRoomJoinReturnsExistingPeer(t *testing.T) {
	room := NewRoom()
	alice := NewClient(room)
	alice.userID = "alice"
	bob := NewClient(room)
	bob.userID = "bob"

	if peer := room.join("call-1", alice); peer != nil {
		t.Fatalf("expected no peer for first joiner, got %v", peer)
	}
	if peer := room.join("call-1", bob); peer != alice {
		t.Fatalf("expected alice as bob's peer, got %v", peer)
	}
}

func TestRoomPeerOfExcludesSelf(t *testing.T) {
	room := NewRoom()
	alice := NewClient(room)
	alice.userID = "alice"
	bob := NewClient(room)
	bob.userID = "bob"
	room.join("call-1", alice)
	room.join("call-1", bob)

	if got := room.peerOf("call-1", "alice"); got != bob {
		t.Fatalf("expected bob, got %v", got)
	}
	if got := room.peerOf("call-1", "bob"); got != alice {
		t.Fatalf("expected alice, got %v", got)
	}
	// Re-running peerOf after both are already members must never return self.
	for i := 0; i < 10; i++ {
		if got := room.peerOf("call-1", "alice"); got == alice {
			t.Fatalf("peerOf returned self")
		}
	}
}

func TestRoomLeaveNotifiesRemainingPeer(t *testing.T) {
	room := NewRoom()
	alice := NewClient(room)
	alice.userID = "alice"
	bob := NewClient(room)
	bob.userID = "bob"
	room.join("call-1", alice)
	room.join("call-1", bob)

	peer := room.leave("call-1", alice)
	if peer != bob {
		t.Fatalf("expected bob as remaining peer, got %v", peer)
	}

	// Room should now be empty once bob also leaves.
	if peer := room.leave("call-1", bob); peer != nil {
		t.Fatalf("expected nil once room empties, got %v", peer)
	}
	if got := room.peerOf("call-1", "anyone"); got != nil {
		t.Fatalf("expected empty room after both left, got %v", got)
	}
}
