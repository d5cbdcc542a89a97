// Package callengine implements a 1-to-1 call signaling and media
// orchestration engine: a deterministic state machine that coordinates two
// peers through invitation, acceptance, media-channel join, first-frame
// rendezvous, and teardown.
package callengine

import "fmt"

// CallState is the call's lifecycle state. The zero value, StateIdle, is the
// engine's initial state.
type CallState int

const (
	// StateIdle is the initial state, and the state Destroy returns to.
	StateIdle CallState = iota
	// StatePrepared is the quiescent resting state after setup/teardown.
	StatePrepared
	// StateCalling is entered on call() (local invite) or an inbound
	// VideoCall/AudioCall (remote invite), before Accept/Reject/Cancel.
	StateCalling
	// StateConnecting is entered once Accept has been sent or received,
	// while the view-attach rendezvous is pending.
	StateConnecting
	// StateConnected is latched once the view-attach rendezvous completes.
	StateConnected
)

// String returns the human-readable name of the state.
func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrepared:
		return "prepared"
	case StateCalling:
		return "calling"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IsBusy reports whether the engine is already committed to a call.
func (s CallState) IsBusy() bool {
	return s == StateCalling || s == StateConnecting || s == StateConnected
}

// StateReason annotates every callStateChanged observation with why the
// transition happened.
type StateReason int

const (
	ReasonNone StateReason = iota
	ReasonLocalVideoCall
	ReasonLocalAudioCall
	ReasonRemoteVideoCall
	ReasonRemoteAudioCall
	ReasonLocalAccepted
	ReasonRemoteAccepted
	ReasonLocalRejected
	ReasonRemoteRejected
	ReasonRemoteCallBusy
	ReasonLocalCancel
	ReasonRemoteCancel
	ReasonLocalHangup
	ReasonRemoteHangup
	ReasonRecvRemoteFirstFrame
	ReasonCallingTimeout
)

// String returns the human-readable name of the reason.
func (r StateReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLocalVideoCall:
		return "localVideoCall"
	case ReasonLocalAudioCall:
		return "localAudioCall"
	case ReasonRemoteVideoCall:
		return "remoteVideoCall"
	case ReasonRemoteAudioCall:
		return "remoteAudioCall"
	case ReasonLocalAccepted:
		return "localAccepted"
	case ReasonRemoteAccepted:
		return "remoteAccepted"
	case ReasonLocalRejected:
		return "localRejected"
	case ReasonRemoteRejected:
		return "remoteRejected"
	case ReasonRemoteCallBusy:
		return "remoteCallBusy"
	case ReasonLocalCancel:
		return "localCancel"
	case ReasonRemoteCancel:
		return "remoteCancel"
	case ReasonLocalHangup:
		return "localHangup"
	case ReasonRemoteHangup:
		return "remoteHangup"
	case ReasonRecvRemoteFirstFrame:
		return "recvRemoteFirstFrame"
	case ReasonCallingTimeout:
		return "callingTimeout"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Event is a finer-grained observation than CallState.
type Event int

const (
	EventOnCalling Event = iota
	EventRemoteUserRecvCall
	EventLocalAccepted
	EventRemoteAccepted
	EventLocalRejected
	EventRemoteRejected
	EventRemoteCallBusy
	EventLocalCancelled
	EventRemoteCancelled
	EventLocalHangup
	EventRemoteHangup
	EventJoinRTCStart
	EventJoinRTCSuccessed
	EventLocalJoined
	EventRemoteJoined
	EventLocalLeft
	EventRemoteLeft
	EventPublishFirstLocalVideoFrame
	EventRecvRemoteFirstFrame
	EventCallingTimeout
	EventRemoteCallingTimeout
	EventStateMismatch
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventOnCalling:
		return "onCalling"
	case EventRemoteUserRecvCall:
		return "remoteUserRecvCall"
	case EventLocalAccepted:
		return "localAccepted"
	case EventRemoteAccepted:
		return "remoteAccepted"
	case EventLocalRejected:
		return "localRejected"
	case EventRemoteRejected:
		return "remoteRejected"
	case EventRemoteCallBusy:
		return "remoteCallBusy"
	case EventLocalCancelled:
		return "localCancelled"
	case EventRemoteCancelled:
		return "remoteCancelled"
	case EventLocalHangup:
		return "localHangup"
	case EventRemoteHangup:
		return "remoteHangup"
	case EventJoinRTCStart:
		return "joinRTCStart"
	case EventJoinRTCSuccessed:
		return "joinRTCSuccessed"
	case EventLocalJoined:
		return "localJoined"
	case EventRemoteJoined:
		return "remoteJoined"
	case EventLocalLeft:
		return "localLeft"
	case EventRemoteLeft:
		return "remoteLeft"
	case EventPublishFirstLocalVideoFrame:
		return "publishFirstLocalVideoFrame"
	case EventRecvRemoteFirstFrame:
		return "recvRemoteFirstFrame"
	case EventCallingTimeout:
		return "callingTimeout"
	case EventRemoteCallingTimeout:
		return "remoteCallingTimeout"
	case EventStateMismatch:
		return "stateMismatch"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// ErrorKind classifies a callError observation.
type ErrorKind int

const (
	// ErrorKindNormal is reserved; no engine path currently produces it.
	ErrorKindNormal ErrorKind = iota
	// ErrorKindRTC marks a failure from the media plane (join/publish/
	// subscribe/leave/track creation).
	ErrorKindRTC
	// ErrorKindMessage marks a failure from the signaling plane (sendMessage).
	ErrorKindMessage
)

// String returns the human-readable name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNormal:
		return "normal"
	case ErrorKindRTC:
		return "rtc"
	case ErrorKindMessage:
		return "message"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ErrorEvent names which command or path produced a callError observation.
type ErrorEvent int

const (
	ErrorEventRTCOccurError ErrorEvent = iota
	ErrorEventSendMessageFail
)

// String returns the human-readable name of the error event.
func (e ErrorEvent) String() string {
	switch e {
	case ErrorEventRTCOccurError:
		return "rtcOccurError"
	case ErrorEventSendMessageFail:
		return "sendMessageFail"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}
