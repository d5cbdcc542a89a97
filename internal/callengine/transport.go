package callengine

import "context"

// SignalingTransport is the engine's external signaling dependency — a
// generic send/receive pair, not tied to any particular wire protocol
// internal/wstransport is the concrete WebSocket implementation.
type SignalingTransport interface {
	// SendMessage delivers payload to userID's signaling channel.
	SendMessage(ctx context.Context, userID string, payload []byte) error
	// OnMessageReceive registers fn to be called for every inbound message
	// addressed to the local user, returning an unsubscribe func.
	OnMessageReceive(fn func(fromUserID string, payload []byte)) (unsubscribe func())
}

// MediaClient is the engine's external media-plane dependency — join/leave a
// channel, publish/subscribe tracks, and observe peer presence and track
// lifecycle. internal/rtcmedia is the concrete WebRTC implementation.
type MediaClient interface {
	// Join connects to roomID's media channel authenticated by token.
	Join(ctx context.Context, roomID, token, userID string) error
	// Leave disconnects from the current media channel, if any.
	Leave(ctx context.Context) error
	// PublishVideo captures and publishes a local video track per cfg,
	// returning a Track the caller can Play/Stop on a View.
	PublishVideo(ctx context.Context, cfg VideoConfig) (Track, error)
	// PublishAudio captures and publishes a local audio track per cfg.
	PublishAudio(ctx context.Context, cfg AudioConfig) (Track, error)
	// Subscribe begins consuming remoteUserID's published track of kind
	// ("video" or "audio"), returning a Track the caller can Play on a View.
	Subscribe(ctx context.Context, remoteUserID, kind string) (Track, error)
	// Unsubscribe stops consuming remoteUserID's track of kind.
	Unsubscribe(ctx context.Context, remoteUserID, kind string) error

	// OnUserJoined/OnUserLeft/OnUserPublished/OnUserUnpublished register
	// presence and publish-lifecycle observers, each returning an
	// unsubscribe func.
	OnUserJoined(fn func(userID string)) (unsubscribe func())
	OnUserLeft(fn func(userID string)) (unsubscribe func())
	OnUserPublished(fn func(userID, kind string)) (unsubscribe func())
	OnUserUnpublished(fn func(userID, kind string)) (unsubscribe func())
}

// Track is a single published or subscribed media track.
type Track interface {
	// Play attaches the track to view for rendering/playback.
	Play(view View) error
	// Stop detaches the track from whatever view it was played to.
	Stop() error
	// Close releases the track's underlying resources. Safe to call after Stop.
	Close() error
	// IsPlaying reports whether Play has been called without a subsequent Stop.
	IsPlaying() bool
	// OnFirstFrameDecoded registers fn to fire once, the first time this
	// track decodes a frame (video) or receives audio data (audio). Used by
	// the view-attach rendezvous to detect recvRemoteFirstFrame.
	OnFirstFrameDecoded(fn func()) (unsubscribe func())
}
