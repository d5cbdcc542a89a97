package rtcmedia

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/sebas/callengine/internal/callengine"
	"github.com/sebas/callengine/internal/logger"
)

// Client is one user's media-plane session: it owns a single PeerConnection
// per join, created fresh on first use, and satisfies callengine.MediaClient.
//
// The engine calls Join and PublishVideo/PublishAudio concurrently (via
// errgroup, see engine.go's rtcJoinAndPublish) on the assumption
// that a real media SDK lets you start publishing without waiting on join
// to finish first. ensurePC lazily creates the PeerConnection so whichever
// of the two calls arrives first does the one-time setup; the other reuses
// it. Join is still the sole writer of userID/roomID/Room membership.
type Client struct {
	room *Room

	mu     sync.Mutex
	userID string
	roomID string
	peerID string
	pc     *webrtc.PeerConnection
	pcErr  error

	pendingCandidates []webrtc.ICECandidateInit
	remoteDescSet     bool

	localTracks  map[string]*localTrack          // kind -> our published track
	remoteTracks map[string]chan *webrtc.TrackRemote

	joinedSubs    *subs[string]
	leftSubs      *subs[string]
	publishedSubs *subs[[2]string]
	unpubSubs     *subs[[2]string]
}

// NewClient returns a Client whose sessions are brokered through room.
func NewClient(room *Room) *Client {
	return &Client{
		room:          room,
		localTracks:   make(map[string]*localTrack),
		remoteTracks:  make(map[string]chan *webrtc.TrackRemote),
		joinedSubs:    newSubs[string](),
		leftSubs:      newSubs[string](),
		publishedSubs: newSubs[[2]string](),
		unpubSubs:     newSubs[[2]string](),
	}
}

func newPeerConnectionAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("rtcmedia: register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("rtcmedia: register interceptors: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir)), nil
}

// ensurePC lazily creates this Client's PeerConnection and registers its
// callbacks, the first time either Join or a publish needs it.
func (c *Client) ensurePC() (*webrtc.PeerConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc != nil || c.pcErr != nil {
		return c.pc, c.pcErr
	}

	api, err := newPeerConnectionAPI()
	if err != nil {
		c.pcErr = err
		return nil, err
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		c.pcErr = fmt.Errorf("rtcmedia: new peer connection: %w", err)
		return nil, c.pcErr
	}

	pc.OnICECandidate(c.onICECandidate)
	pc.OnNegotiationNeeded(c.onNegotiationNeeded)
	pc.OnTrack(c.onTrack)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("rtcmedia: connection state", "state", state.String())
	})

	c.pc = pc
	return pc, nil
}

// Join registers this Client with the Room under roomID, creating its
// PeerConnection if a concurrent publish call hasn't already done so.
// token is accepted for interface parity with a production media SDK's
// authenticated join but is not checked by this in-process adapter.
// OnUserJoined observers hear only about the other member: when a peer is
// already in the room, each side is told of the other's userID; a Client is
// never notified of its own join.
func (c *Client) Join(ctx context.Context, roomID, token, userID string) error {
	if _, err := c.ensurePC(); err != nil {
		return err
	}

	c.mu.Lock()
	c.userID = userID
	c.roomID = roomID
	c.mu.Unlock()

	peer := c.room.join(roomID, c)
	if peer != nil {
		c.mu.Lock()
		c.peerID = peer.userID
		c.mu.Unlock()
		peer.mu.Lock()
		peer.peerID = userID
		peer.mu.Unlock()

		c.joinedSubs.Emit(peer.userID)
		peer.joinedSubs.Emit(userID)
	}
	return nil
}

// Leave closes the PeerConnection and unregisters from the Room, notifying
// the peer (if any) of the departure.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	pc := c.pc
	roomID := c.roomID
	c.pc = nil
	c.mu.Unlock()

	if roomID != "" {
		if peer := c.room.leave(roomID, c); peer != nil {
			peer.leftSubs.Emit(c.userID)
		}
	}
	if pc != nil {
		return pc.Close()
	}
	return nil
}

// PublishVideo creates and adds a local VP8 track, starting a writer
// goroutine that produces synthetic samples at cfg's frame rate (this
// adapter has no camera to capture from — see DESIGN.md).
func (c *Client) PublishVideo(ctx context.Context, cfg callengine.VideoConfig) (callengine.Track, error) {
	fps := cfg.FPSHint
	if fps <= 0 {
		fps = 30
	}
	return c.publish("video", webrtc.MimeTypeVP8, time.Second/time.Duration(fps), sampleSizeForResolution(cfg.Width, cfg.Height))
}

// PublishAudio creates and adds a local Opus track, starting a writer
// goroutine that produces synthetic samples at 20ms framing.
func (c *Client) PublishAudio(ctx context.Context, cfg callengine.AudioConfig) (callengine.Track, error) {
	return c.publish("audio", webrtc.MimeTypeOpus, 20*time.Millisecond, 160)
}

func sampleSizeForResolution(w, h int) int {
	if w <= 0 || h <= 0 {
		return 1500
	}
	// A placeholder payload sized roughly to resolution; real production
	// code would hand real encoded frames to WriteSample instead.
	n := (w * h) / 2000
	if n < 200 {
		n = 200
	}
	if n > 16000 {
		n = 16000
	}
	return n
}

func (c *Client) publish(kind, mime string, frameInterval time.Duration, sampleSize int) (callengine.Track, error) {
	pc, err := c.ensurePC()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("rtcmedia: new local track (%s): %w", kind, err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("rtcmedia: add track (%s): %w", kind, err)
	}
	go drainRTCP(sender)

	lt := newLocalTrack(kind, track, frameInterval, sampleSize)
	c.mu.Lock()
	c.localTracks[kind] = lt
	c.mu.Unlock()
	lt.start()
	return lt, nil
}

// Subscribe waits (bounded by ctx) for remoteUserID's track of kind to have
// arrived via OnTrack, then wraps it as a callengine.Track.
func (c *Client) Subscribe(ctx context.Context, remoteUserID, kind string) (callengine.Track, error) {
	ch := c.remoteTrackChan(kind)
	select {
	case tr := <-ch:
		rt := newRemoteTrack(kind, tr)
		rt.start()
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe is a no-op beyond bookkeeping: spec's Non-goals exclude
// renegotiation, so this adapter does not remove the underlying
// transceiver; a real media SDK binding would stop forwarding the track.
func (c *Client) Unsubscribe(ctx context.Context, remoteUserID, kind string) error {
	return nil
}

func (c *Client) remoteTrackChan(kind string) chan *webrtc.TrackRemote {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.remoteTracks[kind]
	if !ok {
		ch = make(chan *webrtc.TrackRemote, 1)
		c.remoteTracks[kind] = ch
	}
	return ch
}

func (c *Client) OnUserJoined(fn func(userID string)) func()       { return c.joinedSubs.Subscribe(fn) }
func (c *Client) OnUserLeft(fn func(userID string)) func()         { return c.leftSubs.Subscribe(fn) }
func (c *Client) OnUserPublished(fn func(userID, kind string)) func() {
	return c.publishedSubs.Subscribe(func(p [2]string) { fn(p[0], p[1]) })
}
func (c *Client) OnUserUnpublished(fn func(userID, kind string)) func() {
	return c.unpubSubs.Subscribe(func(p [2]string) { fn(p[0], p[1]) })
}

// --- pion callbacks -------------------------------------------------------

func (c *Client) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind := track.Kind().String()
	ch := c.remoteTrackChan(kind)
	select {
	case ch <- track:
	default:
	}
	c.mu.Lock()
	peerID := c.peerID
	c.mu.Unlock()
	c.publishedSubs.Emit([2]string{peerID, kind})
}

func (c *Client) onNegotiationNeeded() {
	c.mu.Lock()
	pc := c.pc
	roomID := c.roomID
	c.mu.Unlock()
	if pc == nil {
		return
	}

	go func() {
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			logger.Warn("rtcmedia: CreateOffer failed", "err", err)
			return
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			logger.Warn("rtcmedia: SetLocalDescription(offer) failed", "err", err)
			return
		}

		peer := c.room.peerOf(roomID, c.userID)
		if peer == nil {
			return
		}
		peer.handleOffer(offer)
	}()
}

func (c *Client) handleOffer(offer webrtc.SessionDescription) {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		logger.Warn("rtcmedia: SetRemoteDescription(offer) failed", "err", err)
		return
	}
	c.flushPendingCandidates()

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		logger.Warn("rtcmedia: CreateAnswer failed", "err", err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		logger.Warn("rtcmedia: SetLocalDescription(answer) failed", "err", err)
		return
	}

	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if peer := c.room.peerOf(roomID, c.userID); peer != nil {
		peer.handleAnswer(answer)
	}
}

func (c *Client) handleAnswer(answer webrtc.SessionDescription) {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		logger.Warn("rtcmedia: SetRemoteDescription(answer) failed", "err", err)
		return
	}
	c.flushPendingCandidates()
}

func (c *Client) onICECandidate(ice *webrtc.ICECandidate) {
	if ice == nil {
		return
	}
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	peer := c.room.peerOf(roomID, c.userID)
	if peer == nil {
		return
	}
	init := ice.ToJSON()
	peer.addRemoteCandidate(init)
}

func (c *Client) addRemoteCandidate(init webrtc.ICECandidateInit) {
	c.mu.Lock()
	pc := c.pc
	ready := c.remoteDescSet
	if !ready {
		c.pendingCandidates = append(c.pendingCandidates, init)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	if pc == nil {
		return
	}
	if err := pc.AddICECandidate(init); err != nil {
		logger.Warn("rtcmedia: AddICECandidate failed", "err", err)
	}
}

func (c *Client) flushPendingCandidates() {
	c.mu.Lock()
	c.remoteDescSet = true
	pending := c.pendingCandidates
	c.pendingCandidates = nil
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return
	}
	for _, init := range pending {
		if err := pc.AddICECandidate(init); err != nil {
			logger.Warn("rtcmedia: AddICECandidate (buffered) failed", "err", err)
		}
	}
}

// drainRTCP discards incoming RTCP on sender so its internal buffer never
// fills and blocks the write path.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
