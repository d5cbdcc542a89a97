package rtcmedia

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/sebas/callengine/internal/callengine"
	"github.com/sebas/callengine/internal/logger"
)

// localTrack wraps a locally published webrtc.TrackLocalStaticSample,
// satisfying callengine.Track. It has no camera/microphone to capture from
// in this adapter, so it synthesizes placeholder samples at the requested
// cadence — enough to drive real RTP/SRTP flow to the peer without a real
// encoder (see package doc in room.go).
type localTrack struct {
	kind     string
	track    *webrtc.TrackLocalStaticSample
	interval time.Duration
	payload  []byte

	mu       sync.Mutex
	stopCh   chan struct{}
	stopped  bool
	playing  bool
	view     callengine.View

	once      sync.Once
	firstSubs *subs[struct{}]
}

func newLocalTrack(kind string, track *webrtc.TrackLocalStaticSample, interval time.Duration, sampleSize int) *localTrack {
	return &localTrack{
		kind:      kind,
		track:     track,
		interval:  interval,
		payload:   make([]byte, sampleSize),
		stopCh:    make(chan struct{}),
		firstSubs: newSubs[struct{}](),
	}
}

func (t *localTrack) start() {
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				if err := t.track.WriteSample(media.Sample{Data: t.payload, Duration: t.interval}); err != nil {
					logger.Warn("rtcmedia: write sample failed", "kind", t.kind, "err", err)
					return
				}
				t.once.Do(func() { t.firstSubs.Emit(struct{}{}) })
			}
		}
	}()
}

func (t *localTrack) Play(view callengine.View) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return nil
	}
	if view != nil {
		if err := view.Attach("local"); err != nil {
			return err
		}
	}
	t.view = view
	t.playing = true
	return nil
}

func (t *localTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return nil
	}
	if t.view != nil {
		t.view.Detach()
	}
	t.playing = false
	return nil
}

func (t *localTrack) Close() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()
	close(t.stopCh)
	return nil
}

func (t *localTrack) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

func (t *localTrack) OnFirstFrameDecoded(fn func()) func() {
	return t.firstSubs.Subscribe(func(struct{}) { fn() })
}

// remoteTrack wraps a subscribed webrtc.TrackRemote, satisfying
// callengine.Track. "First frame decoded" is approximated by the first RTP
// packet successfully read off the track — this adapter does not decode
// media, so there is no real frame to inspect; the arrival of payload data
// is the observable analogue the engine's rendezvous needs.
type remoteTrack struct {
	kind  string
	track *webrtc.TrackRemote

	mu      sync.Mutex
	stopped bool
	playing bool
	view    callengine.View

	once      sync.Once
	firstSubs *subs[struct{}]
}

func newRemoteTrack(kind string, track *webrtc.TrackRemote) *remoteTrack {
	return &remoteTrack{kind: kind, track: track, firstSubs: newSubs[struct{}]()}
}

func (t *remoteTrack) start() {
	go func() {
		buf := make([]byte, 1500)
		for {
			t.mu.Lock()
			stopped := t.stopped
			t.mu.Unlock()
			if stopped {
				return
			}
			if _, _, err := t.track.Read(buf); err != nil {
				return
			}
			t.once.Do(func() { t.firstSubs.Emit(struct{}{}) })
		}
	}()
}

func (t *remoteTrack) Play(view callengine.View) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return nil
	}
	kind := "remote"
	if view != nil {
		if err := view.Attach(kind); err != nil {
			return err
		}
	}
	t.view = view
	t.playing = true
	return nil
}

func (t *remoteTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return nil
	}
	if t.view != nil {
		t.view.Detach()
	}
	t.playing = false
	return nil
}

func (t *remoteTrack) Close() error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return nil
}

func (t *remoteTrack) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

func (t *remoteTrack) OnFirstFrameDecoded(fn func()) func() {
	return t.firstSubs.Subscribe(func(struct{}) { fn() })
}
