package callengine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MessageAction identifies the kind of signaling message carried by a
// CallMessage envelope.
type MessageAction string

const (
	ActionVideoCall MessageAction = "VideoCall"
	ActionAudioCall MessageAction = "AudioCall"
	ActionAccept    MessageAction = "Accept"
	ActionReject    MessageAction = "Reject"
	ActionCancel    MessageAction = "Cancel"
	ActionHangup    MessageAction = "Hangup"
)

// MessageOrigin records whether the engine produced a Reject/Cancel
// automatically (Internal: busy auto-reject, calling timeout) or the
// application issued it explicitly (External). Receivers branch on it to
// tell a busy peer from a deliberate rejection.
type MessageOrigin string

const (
	OriginExternal MessageOrigin = "External"
	OriginInternal MessageOrigin = "Internal"
)

// CallMessage is the wire envelope exchanged over a SignalingTransport. Field
// names and JSON tags are the on-the-wire vocabulary both peers agree on.
type CallMessage struct {
	CallID           string        `json:"callId"`
	FromUserID       string        `json:"fromUserId"`
	RemoteUserID     string        `json:"remoteUserId"`
	FromRoomID       string        `json:"fromRoomId"`
	MessageAction    MessageAction `json:"message_action"`
	RejectReason     string        `json:"rejectReason,omitempty"`
	RejectByInternal MessageOrigin `json:"rejectByInternal,omitempty"`
	CancelByInternal MessageOrigin `json:"cancelCallByInternal,omitempty"`
}

// Codec encodes/decodes CallMessage envelopes and owns callId generation and
// liveness: a callId is live from the moment a call enters StateCalling
// until it fully tears down back to StatePrepared.
type Codec struct {
	mu     sync.Mutex
	callID string
}

// NewCodec returns a Codec with no live callId.
func NewCodec() *Codec {
	return &Codec{}
}

// NewCallID mints and latches a fresh callId, returning it.
func (c *Codec) NewCallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callID = uuid.NewString()
	return c.callID
}

// SetCallID latches an externally-supplied callId (used when this side is
// the callee and the callId originates from the inbound message).
func (c *Codec) SetCallID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callID = id
}

// CallID returns the currently live callId, or "" if none.
func (c *Codec) CallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callID
}

// ClearCallID releases the live callId, e.g. on teardown back to StatePrepared.
func (c *Codec) ClearCallID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callID = ""
}

// Encode marshals msg to its wire form, stamping the currently live callId
// unless msg already carries one.
func (c *Codec) Encode(msg CallMessage) ([]byte, error) {
	if msg.CallID == "" {
		msg.CallID = c.CallID()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("callengine: encode message: %w", err)
	}
	return b, nil
}

// Decode unmarshals a wire payload into a CallMessage.
func (c *Codec) Decode(payload []byte) (CallMessage, error) {
	var msg CallMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return CallMessage{}, fmt.Errorf("callengine: decode message: %w", err)
	}
	return msg, nil
}
