package callengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sebas/callengine/internal/logger"
)

// EventInfo carries transition-specific detail on a CallStateChange: who is
// calling whom on the way into StateCalling, the reject reason on a remote
// rejection, and whether a remote cancel was engine-originated.
type EventInfo struct {
	RemoteUserID     string
	FromUserID       string
	RejectReason     string
	CancelByInternal MessageOrigin
}

// CallStateChange is the payload of a callStateChanged observation.
type CallStateChange struct {
	From   CallState
	To     CallState
	Reason StateReason
	Info   EventInfo
}

// Engine is a single 1-to-1 call's state machine. One Engine handles exactly
// one local user's view of exactly one call at a time; an invite from anyone
// other than the committed peer is auto-rejected as busy.
//
// Concurrency model: Engine is single-threaded and cooperative. All public
// methods and all transport/media callbacks take the same mutex; nothing
// yields mid-transition except at awaited I/O (SendMessage, media Join/
// Publish/Subscribe). A handler that resumes after an await re-checks the
// current state and short-circuits
// if the call it was working on is gone — there is no cancellation token.
type Engine struct {
	mu sync.Mutex

	localUserID string
	transport   SignalingTransport
	media       MediaClient

	state  CallState
	config PrepareConfig
	codec  *Codec
	info   *CallInfo

	remoteUserID string
	isVideo      bool

	rtcJoined  bool
	rtcJoining bool

	localTrack       Track
	remoteVideoTrack Track
	remoteAudioTrack Track

	gotFirstFrame bool

	cancelTimer *time.Timer

	unsubTransport func()
	unsubPresence  []func()

	stateSubs *subscribers[CallStateChange]
	eventSubs *subscribers[Event]
	errorSubs *subscribers[*CallError]
	infoSubs  *subscribers[[]Milestone]
}

// NewEngine wires an Engine against its signaling and media dependencies.
func NewEngine(localUserID string, transport SignalingTransport, media MediaClient) *Engine {
	return &Engine{
		localUserID: localUserID,
		transport:   transport,
		media:       media,
		state:       StateIdle,
		codec:       NewCodec(),
		info:        NewCallInfo(),
		stateSubs:   newSubscribers[CallStateChange](),
		eventSubs:   newSubscribers[Event](),
		errorSubs:   newSubscribers[*CallError](),
		infoSubs:    newSubscribers[[]Milestone](),
	}
}

// OnCallStateChanged, OnCallEvent, OnCallError, OnCallInfoChanged register
// observers on the engine's four observation streams. Each stream is
// independent; dispatch is synchronous FIFO.
func (e *Engine) OnCallStateChanged(fn func(CallStateChange)) (unsubscribe func()) {
	return e.stateSubs.Subscribe(fn)
}

func (e *Engine) OnCallEvent(fn func(Event)) (unsubscribe func()) {
	return e.eventSubs.Subscribe(fn)
}

func (e *Engine) OnCallError(fn func(*CallError)) (unsubscribe func()) {
	return e.errorSubs.Subscribe(fn)
}

func (e *Engine) OnCallInfoChanged(fn func([]Milestone)) (unsubscribe func()) {
	return e.infoSubs.Subscribe(fn)
}

// SetLogLevel adjusts the package-level logger's verbosity.
func (e *Engine) SetLogLevel(level string) {
	logger.SetLevel(level)
}

// GetCallID returns the currently live callId. It is non-empty exactly while
// state is StateCalling, StateConnecting, or StateConnected.
func (e *Engine) GetCallID() string {
	return e.codec.CallID()
}

// State returns the engine's current CallState.
func (e *Engine) State() CallState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PrepareForCall moves the engine from StateIdle (or a prior StatePrepared)
// into StatePrepared, merging cfg over any previously prepared config and
// subscribing to inbound signaling. Fails with a stateMismatch if a call is
// already in flight. Idempotent in StateIdle/StatePrepared.
func (e *Engine) PrepareForCall(ctx context.Context, cfg PrepareConfig) error {
	e.mu.Lock()
	if e.state.IsBusy() {
		state := e.state
		e.mu.Unlock()
		e.emitEvent(EventStateMismatch)
		return &StateMismatchError{Op: "prepareForCall", State: state}
	}
	if e.unsubTransport != nil {
		e.unsubTransport()
	}
	for _, u := range e.unsubPresence {
		u()
	}
	e.config = e.config.merged(cfg)
	from := e.state
	e.state = StatePrepared
	e.unsubTransport = e.transport.OnMessageReceive(e.handleInbound)
	// Presence/publish handlers are registered here, not at join time: the
	// remote side's join/publish can race with ours, and media-plane events
	// for this room must never be missed while we're still mid-handshake.
	e.unsubPresence = []func(){
		e.media.OnUserJoined(e.onMediaUserJoined),
		e.media.OnUserLeft(e.onMediaUserLeft),
		e.media.OnUserPublished(e.onMediaUserPublished),
		e.media.OnUserUnpublished(e.onMediaUserUnpublished),
	}
	e.mu.Unlock()

	logger.Info("callengine: prepared", "roomId", cfg.RoomID, "rtcToken", logger.Redact(cfg.RTCToken))
	e.emitState(from, StatePrepared, ReasonNone)
	return nil
}

// Call places an outbound invitation to remoteUserID. video selects
// VideoCall vs AudioCall. The media join/publish runs concurrently
// with the invite send; Call returns once both have resolved, with the
// first error if either failed.
func (e *Engine) Call(ctx context.Context, remoteUserID string, video bool) error {
	e.mu.Lock()
	if e.state != StatePrepared {
		state := e.state
		e.mu.Unlock()
		e.emitEvent(EventStateMismatch)
		return &StateMismatchError{Op: "call", State: state}
	}
	callID := e.codec.NewCallID()
	e.remoteUserID = remoteUserID
	e.isVideo = video
	from := e.state
	e.state = StateCalling
	e.info.Start(time.Now())
	roomID := e.config.RoomID
	e.mu.Unlock()

	action := ActionAudioCall
	reason := ReasonLocalAudioCall
	if video {
		action = ActionVideoCall
		reason = ReasonLocalVideoCall
	}

	e.emitStateInfo(from, StateCalling, reason, EventInfo{RemoteUserID: remoteUserID, FromUserID: e.localUserID})
	e.emitEvent(EventOnCalling)
	e.armCancelTimer(true)

	msg := CallMessage{
		CallID:        callID,
		FromUserID:    e.localUserID,
		RemoteUserID:  remoteUserID,
		FromRoomID:    roomID,
		MessageAction: action,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.send(gctx, remoteUserID, msg); err != nil {
			return err
		}
		// The invite was delivered; anything that tore the call down while
		// the send was in flight wins.
		e.mu.Lock()
		live := e.state == StateCalling && e.remoteUserID == remoteUserID
		if live {
			e.info.Record(MilestoneRemoteUserRecvCall, time.Now())
		}
		e.mu.Unlock()
		if live {
			e.emitEvent(EventRemoteUserRecvCall)
		}
		return nil
	})
	g.Go(func() error {
		return e.rtcJoinAndPublish(gctx)
	})
	return g.Wait()
}

// CancelCall aborts the pending outbound call. It has no state precondition:
// the transition and the localCancelled event always happen. The Cancel
// message (sent only when a remote user is committed) is handed to the
// transport before the media teardown starts, so the peer is not left to
// read this side's media-channel departure as a hangup. A send error takes
// precedence over a teardown error.
func (e *Engine) CancelCall(ctx context.Context) error {
	e.mu.Lock()
	remote := e.remoteUserID
	callID := e.codec.CallID()
	e.mu.Unlock()

	e.revertToPrepared(ReasonLocalCancel)
	e.emitEvent(EventLocalCancelled)

	var sendErr error
	if remote != "" {
		msg := CallMessage{
			CallID:           callID,
			FromUserID:       e.localUserID,
			RemoteUserID:     remote,
			MessageAction:    ActionCancel,
			CancelByInternal: OriginExternal,
		}
		sendErr = e.send(ctx, remote, msg)
	}
	teardownErr := e.teardownMedia(ctx)
	if sendErr != nil {
		return sendErr
	}
	return teardownErr
}

// Accept accepts the inbound invitation from remoteUserID. Precondition:
// StateCalling; the media channel was already joined on invite
// receipt, so Accept only sends the Accept message and runs the view-attach
// check, concurrently.
func (e *Engine) Accept(ctx context.Context, remoteUserID string) error {
	e.mu.Lock()
	if e.state != StateCalling {
		state := e.state
		e.mu.Unlock()
		e.emitEvent(EventStateMismatch)
		return &StateMismatchError{Op: "accept", State: state}
	}
	callID := e.codec.CallID()
	from := e.state
	e.state = StateConnecting
	e.info.Record(MilestoneAcceptCall, time.Now())
	e.mu.Unlock()

	e.emitEvent(EventLocalAccepted)
	e.emitState(from, StateConnecting, ReasonLocalAccepted)

	msg := CallMessage{CallID: callID, FromUserID: e.localUserID, RemoteUserID: remoteUserID, MessageAction: ActionAccept}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.send(gctx, remoteUserID, msg) })
	g.Go(func() error { e.checkAppendView(); return nil })
	return g.Wait()
}

// Reject declines the inbound invitation from remoteUserID. No state
// precondition. The Reject message carries
// rejectByInternal=External: the application, not the engine, declined.
func (e *Engine) Reject(ctx context.Context, remoteUserID, reason string) error {
	e.mu.Lock()
	callID := e.codec.CallID()
	e.mu.Unlock()

	e.revertToPrepared(ReasonLocalRejected)
	e.emitEvent(EventLocalRejected)

	msg := CallMessage{
		CallID:           callID,
		FromUserID:       e.localUserID,
		RemoteUserID:     remoteUserID,
		MessageAction:    ActionReject,
		RejectReason:     reason,
		RejectByInternal: OriginExternal,
	}
	sendErr := e.send(ctx, remoteUserID, msg)
	teardownErr := e.teardownMedia(ctx)
	if sendErr != nil {
		return sendErr
	}
	return teardownErr
}

// Hangup ends the call with remoteUserID. No state precondition.
func (e *Engine) Hangup(ctx context.Context, remoteUserID string) error {
	e.mu.Lock()
	callID := e.codec.CallID()
	e.mu.Unlock()

	e.revertToPrepared(ReasonLocalHangup)
	e.emitEvent(EventLocalHangup)

	msg := CallMessage{CallID: callID, FromUserID: e.localUserID, RemoteUserID: remoteUserID, MessageAction: ActionHangup}
	sendErr := e.send(ctx, remoteUserID, msg)
	teardownErr := e.teardownMedia(ctx)
	if sendErr != nil {
		return sendErr
	}
	return teardownErr
}

// Destroy unconditionally tears the engine down to StateIdle: stops and
// closes all tracks, leaves the media channel if joined (emitting localLeft),
// releases the signaling subscription, and resets per-call data. Idempotent.
// A media-side failure is emitted as a callError and returned.
func (e *Engine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	e.disarmCancelTimer()
	if e.unsubTransport != nil {
		e.unsubTransport()
		e.unsubTransport = nil
	}
	for _, u := range e.unsubPresence {
		u()
	}
	e.unsubPresence = nil
	from := e.state
	e.state = StateIdle
	e.remoteUserID = ""
	e.codec.ClearCallID()
	e.mu.Unlock()

	err := e.teardownMedia(ctx)
	e.info.Reset()

	if from != StateIdle {
		e.emitState(from, StateIdle, ReasonNone)
	}
	return err
}

// --- inbound signaling -----------------------------------------------------

func (e *Engine) handleInbound(fromUserID string, payload []byte) {
	msg, err := e.codec.Decode(payload)
	if err != nil {
		logger.Warn("callengine: dropping malformed message", "from", fromUserID, "err", err)
		return
	}

	switch msg.MessageAction {
	case ActionVideoCall, ActionAudioCall:
		e.handleInboundInvite(fromUserID, msg)
	case ActionAccept:
		e.handleInboundAccept(fromUserID, msg)
	case ActionReject:
		e.handleInboundReject(fromUserID, msg)
	case ActionCancel:
		e.handleInboundCancel(fromUserID, msg)
	case ActionHangup:
		e.handleInboundHangup(fromUserID, msg)
	default:
		logger.Warn("callengine: unknown message_action", "action", msg.MessageAction)
	}
}

// isCallingUser gates an inbound message: true while no peer is committed
// yet, or when the sender is the committed peer. This admits the first
// inbound invite — and, under glare, the committed peer's crossing invite —
// while rejecting interlopers.
func (e *Engine) isCallingUser(fromUserID string) bool {
	return e.remoteUserID == "" || e.remoteUserID == fromUserID
}

func (e *Engine) handleInboundInvite(fromUserID string, msg CallMessage) {
	e.mu.Lock()
	if !e.isCallingUser(fromUserID) {
		// Committed to a different peer: auto-reject as busy without
		// perturbing our own call. The engine, not the application, declined.
		e.mu.Unlock()
		busy := CallMessage{
			CallID:           msg.CallID,
			FromUserID:       e.localUserID,
			RemoteUserID:     fromUserID,
			MessageAction:    ActionReject,
			RejectReason:     "busy",
			RejectByInternal: OriginInternal,
		}
		_ = e.send(context.Background(), fromUserID, busy)
		logger.Info("callengine: rejecting inbound invite while busy", "from", fromUserID)
		return
	}
	if e.state != StatePrepared && e.state != StateCalling {
		// Same peer re-inviting after we already progressed; nothing to do.
		e.mu.Unlock()
		logger.Warn("callengine: ignoring invite in state", "from", fromUserID, "state", e.state)
		return
	}

	// Under glare both sides are in StateCalling with each other when the
	// crossing invite lands: the gate above admits it as a valid duplicate,
	// the callId adopts the sender's, and the calling->calling transition
	// below is suppressed as a self-transition.
	if e.state == StatePrepared {
		e.info.Start(time.Now())
	}
	e.codec.SetCallID(msg.CallID)
	e.remoteUserID = fromUserID
	e.isVideo = msg.MessageAction == ActionVideoCall
	if msg.FromRoomID != "" {
		e.config.RoomID = msg.FromRoomID
	}
	from := e.state
	e.state = StateCalling
	autoAccept := e.config.AutoAccept
	e.mu.Unlock()

	reason := ReasonRemoteAudioCall
	if msg.MessageAction == ActionVideoCall {
		reason = ReasonRemoteVideoCall
	}
	if from != StateCalling {
		e.emitStateInfo(from, StateCalling, reason, EventInfo{RemoteUserID: msg.RemoteUserID, FromUserID: fromUserID})
	}
	e.emitEvent(EventOnCalling)
	e.armCancelTimer(false)

	if err := e.rtcJoinAndPublish(context.Background()); err != nil {
		// Inbound path: no caller to rethrow to, the emitted callError is
		// the only observable.
		return
	}

	if autoAccept {
		_ = e.Accept(context.Background(), fromUserID)
	}
}

func (e *Engine) handleInboundAccept(fromUserID string, msg CallMessage) {
	e.mu.Lock()
	if e.state != StateCalling || !e.isCallingUser(fromUserID) {
		e.mu.Unlock()
		e.emitEvent(EventStateMismatch)
		return
	}
	from := e.state
	e.state = StateConnecting
	e.info.Record(MilestoneAcceptCall, time.Now())
	e.mu.Unlock()

	e.emitEvent(EventRemoteAccepted)
	e.emitState(from, StateConnecting, ReasonRemoteAccepted)
	e.checkAppendView()
}

// handleInboundReject tears media down before emitting the released state:
// a remote rejection is terminal, and observers must see StatePrepared only
// once the resources are actually gone.
func (e *Engine) handleInboundReject(fromUserID string, msg CallMessage) {
	e.mu.Lock()
	if e.state != StateCalling || !e.isCallingUser(fromUserID) {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	reason := ReasonRemoteRejected
	if msg.RejectByInternal == OriginInternal {
		reason = ReasonRemoteCallBusy
		e.emitEvent(EventRemoteCallBusy)
	}

	_ = e.teardownMedia(context.Background())
	e.revertToPreparedInfo(reason, EventInfo{RejectReason: msg.RejectReason})
	e.emitEvent(EventRemoteRejected)
}

// handleInboundCancel covers both an application cancel and an
// engine-originated one (the peer's calling timeout, which can land while
// we are already in StateConnecting).
func (e *Engine) handleInboundCancel(fromUserID string, msg CallMessage) {
	e.mu.Lock()
	if (e.state != StateCalling && e.state != StateConnecting) || !e.isCallingUser(fromUserID) {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.revertToPreparedInfo(ReasonRemoteCancel, EventInfo{CancelByInternal: msg.CancelByInternal})
	e.emitEvent(EventRemoteCancelled)
	_ = e.teardownMedia(context.Background())
}

func (e *Engine) handleInboundHangup(fromUserID string, msg CallMessage) {
	e.mu.Lock()
	if !e.state.IsBusy() || !e.isCallingUser(fromUserID) {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.revertToPrepared(ReasonRemoteHangup)
	e.emitEvent(EventRemoteHangup)
	_ = e.teardownMedia(context.Background())
}

// --- media plane ------------------------------------------------------------

// rtcJoinAndPublish joins the media channel and publishes the local track,
// concurrently. It is invoked from Call on the caller side and
// from the inbound invite handler on the callee side; under glare both can
// race, so a joining/joined latch makes the second invocation a no-op.
func (e *Engine) rtcJoinAndPublish(ctx context.Context) error {
	e.mu.Lock()
	if e.rtcJoined || e.rtcJoining {
		e.mu.Unlock()
		return nil
	}
	e.rtcJoining = true
	cfg := e.config
	video := e.isVideo
	e.mu.Unlock()

	e.emitEvent(EventJoinRTCStart)

	g, gctx := errgroup.WithContext(ctx)
	var localTrack Track
	g.Go(func() error {
		return e.media.Join(gctx, cfg.RoomID, cfg.RTCToken, e.localUserID)
	})
	g.Go(func() error {
		var err error
		if video {
			localTrack, err = e.media.PublishVideo(gctx, cfg.Video)
		} else {
			localTrack, err = e.media.PublishAudio(gctx, cfg.Audio)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		e.mu.Lock()
		e.rtcJoining = false
		e.mu.Unlock()
		wrapped := newRTCError(ErrorEventRTCOccurError, "join/publish failed", err)
		e.emitError(wrapped)
		return wrapped
	}

	e.mu.Lock()
	e.rtcJoining = false
	if !e.state.IsBusy() {
		// The call was torn down while the join was in flight; release what
		// we just acquired instead of latching it.
		e.mu.Unlock()
		if localTrack != nil {
			_ = localTrack.Stop()
			_ = localTrack.Close()
		}
		_ = e.media.Leave(ctx)
		return nil
	}
	e.rtcJoined = true
	e.localTrack = localTrack
	e.info.Record(MilestoneLocalUserJoinChannel, time.Now())
	e.mu.Unlock()

	if localTrack != nil {
		localTrack.OnFirstFrameDecoded(func() {
			e.emitEvent(EventPublishFirstLocalVideoFrame)
		})
	}

	e.emitEvent(EventJoinRTCSuccessed)
	e.emitEvent(EventLocalJoined)
	e.checkAppendView()
	return nil
}

func (e *Engine) onMediaUserJoined(userID string) {
	e.mu.Lock()
	if userID != e.remoteUserID || userID == "" {
		e.mu.Unlock()
		return
	}
	e.info.Record(MilestoneRemoteUserJoinChannel, time.Now())
	e.mu.Unlock()
	e.emitEvent(EventRemoteJoined)
}

// onMediaUserLeft treats a silent peer departure from the media channel as a
// hangup while a call is live (the conflation with abandonment is
// deliberate, see DESIGN.md).
func (e *Engine) onMediaUserLeft(userID string) {
	e.mu.Lock()
	if userID != e.remoteUserID || userID == "" {
		e.mu.Unlock()
		return
	}
	busy := e.state.IsBusy()
	e.mu.Unlock()

	e.emitEvent(EventRemoteLeft)
	if busy {
		e.revertToPrepared(ReasonRemoteHangup)
		e.emitEvent(EventRemoteHangup)
		_ = e.teardownMedia(context.Background())
	}
}

func (e *Engine) onMediaUserPublished(userID, kind string) {
	e.mu.Lock()
	if userID != e.remoteUserID || userID == "" {
		e.mu.Unlock()
		return
	}
	// The first-frame rendezvous watches the call's primary medium: the
	// video track on a video call, the audio track on an audio-only call.
	primary := (kind == "video") == e.isVideo
	e.mu.Unlock()

	track, err := e.media.Subscribe(context.Background(), userID, kind)
	if err != nil {
		e.emitError(newRTCError(ErrorEventRTCOccurError, "subscribe failed", err))
		return
	}

	e.mu.Lock()
	if kind == "video" {
		e.remoteVideoTrack = track
	} else {
		e.remoteAudioTrack = track
	}
	e.mu.Unlock()

	if primary {
		track.OnFirstFrameDecoded(func() {
			e.mu.Lock()
			already := e.gotFirstFrame
			e.gotFirstFrame = true
			if !already {
				e.info.Record(MilestoneRecvFirstFrame, time.Now())
			}
			e.mu.Unlock()
			if already {
				return
			}
			e.emitEvent(EventRecvRemoteFirstFrame)
			e.emitInfo()
			e.checkAppendView()
		})
	}

	// A track published after the call already connected (e.g. audio
	// arriving once the first video frame latched StateConnected) is picked
	// up by the attach pass inside checkAppendView.
	e.checkAppendView()
}

func (e *Engine) onMediaUserUnpublished(userID, kind string) {
	e.mu.Lock()
	if userID != e.remoteUserID || userID == "" {
		e.mu.Unlock()
		return
	}
	var track Track
	if kind == "video" {
		track = e.remoteVideoTrack
		e.remoteVideoTrack = nil
	} else {
		track = e.remoteAudioTrack
		e.remoteAudioTrack = nil
	}
	e.mu.Unlock()

	if track != nil {
		_ = track.Stop()
	}
	if err := e.media.Unsubscribe(context.Background(), userID, kind); err != nil {
		e.emitError(newRTCError(ErrorEventRTCOccurError, "unsubscribe failed", err))
	}
}

// checkAppendView is the view-attach rendezvous: the single
// point that latches StateConnected. It is reached from both the accept
// paths (local and remote) and the first-frame-decoded callback; exactly one
// invocation performs the transition, the others are neutered by the state
// check. After the transition it mounts the local and remote views and
// starts remote-audio playback, all idempotently.
func (e *Engine) checkAppendView() {
	e.mu.Lock()
	cfg := e.config
	transition := e.state == StateConnecting && (cfg.FirstFrameWaitDisabled || e.gotFirstFrame)
	var from CallState
	if transition {
		from = e.state
		e.state = StateConnected
		e.disarmCancelTimer()
	}
	connected := e.state == StateConnected
	local := e.localTrack
	remoteVideo := e.remoteVideoTrack
	remoteAudio := e.remoteAudioTrack
	e.mu.Unlock()

	if transition {
		e.emitState(from, StateConnected, ReasonRecvRemoteFirstFrame)
	}
	if !connected {
		return
	}

	if local != nil && cfg.LocalView != nil && !local.IsPlaying() {
		cfg.LocalView.Detach()
		if err := local.Play(cfg.LocalView); err != nil {
			e.emitError(newRTCError(ErrorEventRTCOccurError, "local playback failed", err))
		}
	}
	if remoteVideo != nil && cfg.RemoteView != nil && !remoteVideo.IsPlaying() {
		cfg.RemoteView.Detach()
		if err := remoteVideo.Play(cfg.RemoteView); err != nil {
			e.emitError(newRTCError(ErrorEventRTCOccurError, "remote video playback failed", err))
		}
	}
	if remoteAudio != nil && !remoteAudio.IsPlaying() {
		if err := remoteAudio.Play(nil); err != nil {
			e.emitError(newRTCError(ErrorEventRTCOccurError, "remote audio playback failed", err))
		}
	}
}

// teardownMedia stops and closes all held tracks and leaves the media
// channel if joined. Safe to call repeatedly; after the first call there is
// nothing left to release.
func (e *Engine) teardownMedia(ctx context.Context) error {
	e.mu.Lock()
	local := e.localTrack
	remoteVideo := e.remoteVideoTrack
	remoteAudio := e.remoteAudioTrack
	joined := e.rtcJoined
	e.localTrack = nil
	e.remoteVideoTrack = nil
	e.remoteAudioTrack = nil
	e.rtcJoined = false
	e.gotFirstFrame = false
	e.mu.Unlock()

	for _, t := range []Track{remoteAudio, remoteVideo, local} {
		if t != nil {
			_ = t.Stop()
			_ = t.Close()
		}
	}
	if !joined {
		return nil
	}
	if err := e.media.Leave(ctx); err != nil {
		wrapped := newRTCError(ErrorEventRTCOccurError, "leave failed", err)
		e.emitError(wrapped)
		return wrapped
	}
	e.emitEvent(EventLocalLeft)
	return nil
}

// --- timers -----------------------------------------------------------------

// armCancelTimer starts (or restarts) the calling timeout. The timer stays
// armed through StateCalling and StateConnecting and is disarmed only on
// reaching StateConnected or on teardown.
// isLocalOriginated selects which timeout event fires on expiry.
func (e *Engine) armCancelTimer(isLocalOriginated bool) {
	e.mu.Lock()
	if e.cancelTimer != nil {
		e.cancelTimer.Stop()
	}
	timeout := e.config.callTimeout()
	e.cancelTimer = time.AfterFunc(timeout, func() {
		e.onCallingTimeout(isLocalOriginated)
	})
	e.mu.Unlock()
}

// disarmCancelTimer must be called with e.mu held.
func (e *Engine) disarmCancelTimer() {
	if e.cancelTimer != nil {
		e.cancelTimer.Stop()
		e.cancelTimer = nil
	}
}

func (e *Engine) onCallingTimeout(wasLocal bool) {
	e.mu.Lock()
	if e.state != StateCalling && e.state != StateConnecting {
		e.mu.Unlock()
		return
	}
	remote := e.remoteUserID
	callID := e.codec.CallID()
	e.mu.Unlock()

	e.revertToPrepared(ReasonCallingTimeout)
	if wasLocal {
		e.emitEvent(EventCallingTimeout)
	} else {
		e.emitEvent(EventRemoteCallingTimeout)
	}

	// Send the Cancel before tearing down, as CancelCall does, so the peer
	// sees an engine-originated cancel rather than a media departure.
	ctx := context.Background()
	if remote != "" {
		msg := CallMessage{
			CallID:           callID,
			FromUserID:       e.localUserID,
			RemoteUserID:     remote,
			MessageAction:    ActionCancel,
			CancelByInternal: OriginInternal,
		}
		_ = e.send(ctx, remote, msg)
	}
	_ = e.teardownMedia(ctx)
}

// --- helpers ------------------------------------------------------------

func (e *Engine) send(ctx context.Context, userID string, msg CallMessage) error {
	payload, err := e.codec.Encode(msg)
	if err != nil {
		e.emitError(newMessageError(ErrorEventSendMessageFail, "encode failed", err))
		return err
	}
	if err := e.transport.SendMessage(ctx, userID, payload); err != nil {
		wrapped := newMessageError(ErrorEventSendMessageFail, fmt.Sprintf("sendMessage to %s failed", userID), err)
		e.emitError(wrapped)
		return wrapped
	}
	return nil
}

func (e *Engine) revertToPrepared(reason StateReason) {
	e.revertToPreparedInfo(reason, EventInfo{})
}

// revertToPreparedInfo returns the engine to StatePrepared, clears per-call
// identity, and closes out the milestone record. callId liveness is tied to
// state so it is cleared under the same lock hold.
func (e *Engine) revertToPreparedInfo(reason StateReason, info EventInfo) {
	e.mu.Lock()
	e.disarmCancelTimer()
	from := e.state
	e.state = StatePrepared
	e.remoteUserID = ""
	e.codec.ClearCallID()
	hadCall := from.IsBusy()
	if hadCall {
		e.info.Record(MilestoneEnd, time.Now())
	}
	e.mu.Unlock()

	if hadCall {
		report := e.info.Report()
		logger.Debug("callengine: call ended", "reason", reason, "total", report.Total)
	}
	e.info.Reset()

	if from != StatePrepared {
		e.emitStateInfo(from, StatePrepared, reason, info)
	}
}

func (e *Engine) emitState(from, to CallState, reason StateReason) {
	e.emitStateInfo(from, to, reason, EventInfo{})
}

func (e *Engine) emitStateInfo(from, to CallState, reason StateReason, info EventInfo) {
	if from == to {
		return
	}
	logger.Debug("callengine: state transition", "from", from, "to", to, "reason", reason)
	e.stateSubs.Emit(CallStateChange{From: from, To: to, Reason: reason, Info: info})
}

func (e *Engine) emitEvent(ev Event) {
	logger.Debug("callengine: event", "event", ev)
	e.eventSubs.Emit(ev)
}

func (e *Engine) emitError(err *CallError) {
	logger.Warn("callengine: error", "err", err)
	e.errorSubs.Emit(err)
}

func (e *Engine) emitInfo() {
	e.infoSubs.Emit(e.info.Snapshot())
}
