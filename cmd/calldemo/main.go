// Command calldemo drives two callengine.Engines — a caller and a callee —
// through a full invite → accept → connect → hangup cycle over a real
// in-process WebSocket signaling relay and real (if synthetic-media)
// WebRTC PeerConnections: load flags, init the logger, print the banner,
// start the server, wait for either completion or a signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sebas/callengine/internal/banner"
	"github.com/sebas/callengine/internal/callengine"
	"github.com/sebas/callengine/internal/logger"
	"github.com/sebas/callengine/internal/rtcmedia"
	"github.com/sebas/callengine/internal/wstransport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8089", "address the demo's signaling relay listens on")
	logLevel := flag.String("loglevel", "info", "log level (debug, info, warn, error)")
	callTimeout := flag.Duration("call-timeout", 10*time.Second, "calling-state timeout before revert")
	video := flag.Bool("video", true, "place a video call instead of audio-only")
	flag.Parse()

	logger.Init(os.Stdout)
	logger.SetLevel(*logLevel)

	banner.Print("CALL ENGINE DEMO", []banner.ConfigLine{
		{Label: "Signaling addr", Value: *addr},
		{Label: "Log level", Value: *logLevel},
		{Label: "Call timeout", Value: callTimeout.String()},
		{Label: "Video", Value: fmt.Sprintf("%v", *video)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := wstransport.NewHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.UpgradeHandler())
	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("demo: signaling relay stopped", "err", err)
		}
	}()
	defer srv.Close()

	// Give the listener a moment to come up before dialing.
	time.Sleep(100 * time.Millisecond)

	wsURL := "ws://" + *addr + "/ws"
	aliceTransport, err := wstransport.Dial(ctx, wsURL, "alice")
	if err != nil {
		slog.Error("demo: dial alice", "err", err)
		os.Exit(1)
	}
	defer aliceTransport.Close()

	bobTransport, err := wstransport.Dial(ctx, wsURL, "bob")
	if err != nil {
		slog.Error("demo: dial bob", "err", err)
		os.Exit(1)
	}
	defer bobTransport.Close()

	room := rtcmedia.NewRoom()
	aliceMedia := rtcmedia.NewClient(room)
	bobMedia := rtcmedia.NewClient(room)

	alice := callengine.NewEngine("alice", aliceTransport, aliceMedia)
	bob := callengine.NewEngine("bob", bobTransport, bobMedia)

	logEngine("alice", alice)
	logEngine("bob", bob)

	done := make(chan struct{})
	bob.OnCallStateChanged(func(chg callengine.CallStateChange) {
		if chg.To == callengine.StateConnected {
			slog.Info("demo: bob connected, will hang up shortly")
			go func() {
				time.Sleep(1 * time.Second)
				if err := bob.Hangup(ctx, "alice"); err != nil {
					slog.Warn("demo: bob hangup failed", "err", err)
				}
			}()
		}
		if chg.To == callengine.StatePrepared && chg.From != callengine.StateIdle {
			close(done)
		}
	})

	bobCfg := callengine.PrepareConfig{
		RoomID:      "demo-room",
		RTCToken:    "demo-token",
		LocalView:   consoleView{owner: "bob", label: "local"},
		RemoteView:  consoleView{owner: "bob", label: "remote"},
		AutoAccept:  true,
		CallTimeout: *callTimeout,
		Video:       callengine.VideoConfig{Width: 640, Height: 480, FPSHint: 30},
		Audio:       callengine.AudioConfig{SampleRate: 48000, Channels: 1},
	}
	if err := bob.PrepareForCall(ctx, bobCfg); err != nil {
		slog.Error("demo: bob prepare failed", "err", err)
		os.Exit(1)
	}

	aliceCfg := bobCfg
	aliceCfg.LocalView = consoleView{owner: "alice", label: "local"}
	aliceCfg.RemoteView = consoleView{owner: "alice", label: "remote"}
	aliceCfg.AutoAccept = false
	if err := alice.PrepareForCall(ctx, aliceCfg); err != nil {
		slog.Error("demo: alice prepare failed", "err", err)
		os.Exit(1)
	}

	if err := alice.Call(ctx, "bob", *video); err != nil {
		slog.Error("demo: alice call failed", "err", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
		slog.Info("demo: call completed, shutting down")
	case sig := <-sigChan:
		slog.Info("demo: received signal, shutting down", "signal", sig)
	case <-time.After(30 * time.Second):
		slog.Warn("demo: timed out waiting for call to complete")
	}

	_ = alice.Destroy(ctx)
	_ = bob.Destroy(ctx)
}

func logEngine(name string, e *callengine.Engine) {
	e.OnCallStateChanged(func(chg callengine.CallStateChange) {
		slog.Info("demo: state changed", "engine", name, "from", chg.From.String(), "to", chg.To.String(), "reason", chg.Reason.String())
	})
	e.OnCallEvent(func(ev callengine.Event) {
		slog.Info("demo: event", "engine", name, "event", ev.String())
	})
	e.OnCallError(func(err *callengine.CallError) {
		slog.Warn("demo: call error", "engine", name, "err", err.Error())
	})
}

// consoleView is a callengine.View that just logs attach/detach — stands in
// for a real video surface/audio sink, which this demo has none of.
type consoleView struct {
	owner string
	label string
}

func (v consoleView) Attach(trackKind string) error {
	slog.Info("demo: view attached", "owner", v.owner, "view", v.label, "track", trackKind)
	return nil
}

func (v consoleView) Detach() {
	slog.Info("demo: view detached", "owner", v.owner, "view", v.label)
}
