package callengine

import "time"

// DefaultCallTimeout is used when PrepareConfig.CallTimeout is zero.
const DefaultCallTimeout = 30 * time.Second

// View is an opaque handle to a render target — a video surface, an audio
// sink, whatever the host platform provides. The engine never inspects a
// View's contents; it only Attaches/Detaches it at the right moments in the
// call lifecycle.
type View interface {
	// Attach mounts the view to receive the named track. trackKind is
	// "local" or "remote".
	Attach(trackKind string) error
	// Detach releases whatever Attach acquired. Safe to call on an
	// already-detached or nil-backed view.
	Detach()
}

// VideoConfig controls local video capture/publish parameters.
type VideoConfig struct {
	Width   int
	Height  int
	FPSHint int
}

// AudioConfig controls local audio capture/publish parameters.
type AudioConfig struct {
	SampleRate int
	Channels   int
}

// PrepareConfig is the argument to Engine.PrepareForCall.
type PrepareConfig struct {
	// RoomID scopes signaling and media-channel join to a call session.
	RoomID string
	// RTCToken authenticates the media-channel join. Treated as sensitive —
	// never logged in the clear.
	RTCToken string
	// LocalView and RemoteView are attached once the corresponding track is
	// ready to render; either may be nil, in which case that track is never
	// played to a view.
	LocalView  View
	RemoteView View

	// AutoAccept, when true, causes an inbound VideoCall/AudioCall to be
	// accepted immediately instead of waiting for a local Accept() call.
	AutoAccept bool

	// CallTimeout bounds how long the engine stays in StateCalling and
	// StateConnecting before emitting callingTimeout/remoteCallingTimeout and
	// reverting to StatePrepared. Zero means DefaultCallTimeout.
	CallTimeout time.Duration

	// FirstFrameWaitDisabled skips the recvRemoteFirstFrame rendezvous and
	// transitions straight to StateConnected as soon as the call enters
	// StateConnecting (Accept sent or received); media-channel join is not
	// awaited.
	FirstFrameWaitDisabled bool

	Video VideoConfig
	Audio AudioConfig
}

// merged overlays over on top of c: a field left at its zero value in over
// keeps c's value, so a partial PrepareConfig tweaks only what it names and
// the rest stays sticky
// across calls. The two booleans overwrite unconditionally — a Go struct
// literal cannot distinguish "unset" from "false" for them.
func (c PrepareConfig) merged(over PrepareConfig) PrepareConfig {
	out := c
	if over.RoomID != "" {
		out.RoomID = over.RoomID
	}
	if over.RTCToken != "" {
		out.RTCToken = over.RTCToken
	}
	if over.LocalView != nil {
		out.LocalView = over.LocalView
	}
	if over.RemoteView != nil {
		out.RemoteView = over.RemoteView
	}
	if over.CallTimeout != 0 {
		out.CallTimeout = over.CallTimeout
	}
	if over.Video != (VideoConfig{}) {
		out.Video = over.Video
	}
	if over.Audio != (AudioConfig{}) {
		out.Audio = over.Audio
	}
	out.AutoAccept = over.AutoAccept
	out.FirstFrameWaitDisabled = over.FirstFrameWaitDisabled
	return out
}

func (c PrepareConfig) callTimeout() time.Duration {
	if c.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return c.CallTimeout
}
