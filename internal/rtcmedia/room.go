// Package rtcmedia is the concrete callengine.MediaClient backed by
// pion/webrtc. It wires a real PeerConnection per joined user and performs
// SDP offer/answer and ICE candidate exchange the way session.go in the
// sibling petervdpas-goop2 repo does — OnNegotiationNeeded triggers the
// offer, a Signaler-shaped callback carries it to the peer, OnICECandidate
// carries candidates, pending candidates buffer until the remote
// description lands.
//
// Unlike goop2 (which relays SDP/ICE over a WebSocket the caller supplies),
// this package is a self-contained 1:1 media plane: a Room pairs the two
// Clients that join the same roomID and hands the session description
// exchange between them directly, in-process. That is a deliberate scope
// cut for this repository — the real media SFU/TURN infrastructure
// explicitly places out of scope as an external collaborator — while still
// exercising a genuine PeerConnection, real ICE/DTLS/SRTP, and real RTP flow
// between the two legs of a call. A production binding that talks to an
// actual multi-process media server is a drop-in replacement behind the
// same callengine.MediaClient interface.
package rtcmedia

import "sync"

// Room pairs the (at most two) Clients that join the same roomID, per
// a 1-to-1 call's scope. It is the signaling bus Client uses to exchange
// SDP offers/answers and ICE candidates with its peer.
type Room struct {
	mu      sync.Mutex
	members map[string]map[string]*Client // roomID -> userID -> Client
}

// NewRoom returns an empty Room. A single Room can host many concurrent
// call sessions, each isolated by its own roomID.
func NewRoom() *Room {
	return &Room{members: make(map[string]map[string]*Client)}
}

// join registers c under roomID and returns its peer, if one was already
// present. At most one peer is expected in a 1:1 call; if more than one is
// somehow present, the first found is used and the rest are ignored.
func (r *Room) join(roomID string, c *Client) *Client {
	r.mu.Lock()
	m, ok := r.members[roomID]
	if !ok {
		m = make(map[string]*Client)
		r.members[roomID] = m
	}
	var peer *Client
	for _, other := range m {
		peer = other
		break
	}
	m[c.userID] = c
	r.mu.Unlock()
	return peer
}

// peerOf returns the other member of roomID, if any, explicitly excluding
// userID itself.
func (r *Room) peerOf(roomID, userID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[roomID]
	if !ok {
		return nil
	}
	for id, c := range m {
		if id != userID {
			return c
		}
	}
	return nil
}

// leave unregisters c from roomID and returns its peer (if any) so the
// caller can notify it of the departure.
func (r *Room) leave(roomID string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[roomID]
	if !ok {
		return nil
	}
	delete(m, c.userID)
	if len(m) == 0 {
		delete(r.members, roomID)
		return nil
	}
	for _, other := range m {
		return other
	}
	return nil
}
