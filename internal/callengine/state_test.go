package callengine

import "testing"

func TestCallStateString(t *testing.T) {
	cases := []struct {
		state CallState
		want  string
	}{
		{StateIdle, "idle"},
		{StatePrepared, "prepared"},
		{StateCalling, "calling"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{CallState(99), "unknown(99)"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("CallState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestCallStateIsBusy(t *testing.T) {
	cases := []struct {
		state CallState
		want  bool
	}{
		{StateIdle, false},
		{StatePrepared, false},
		{StateCalling, true},
		{StateConnecting, true},
		{StateConnected, true},
	}
	for _, tc := range cases {
		if got := tc.state.IsBusy(); got != tc.want {
			t.Errorf("CallState(%v).IsBusy() = %v, want %v", tc.state, got, tc.want)
		}
	}
}

func TestEventStringCoversAllConstants(t *testing.T) {
	events := []Event{
		EventOnCalling, EventRemoteUserRecvCall, EventLocalAccepted, EventRemoteAccepted,
		EventLocalRejected, EventRemoteRejected, EventRemoteCallBusy, EventLocalCancelled,
		EventRemoteCancelled, EventLocalHangup, EventRemoteHangup, EventJoinRTCStart,
		EventJoinRTCSuccessed, EventLocalJoined, EventRemoteJoined, EventLocalLeft,
		EventRemoteLeft, EventPublishFirstLocalVideoFrame, EventRecvRemoteFirstFrame,
		EventCallingTimeout, EventRemoteCallingTimeout, EventStateMismatch,
	}
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		s := ev.String()
		if s == "" {
			t.Errorf("Event %d produced an empty String()", ev)
		}
		if seen[s] {
			t.Errorf("Event %d produced duplicate String() %q", ev, s)
		}
		seen[s] = true
	}
	if got := Event(999).String(); got != "unknown(999)" {
		t.Errorf("Event(999).String() = %q, want unknown(999)", got)
	}
}

func TestErrorKindAndErrorEventString(t *testing.T) {
	if got := ErrorKindRTC.String(); got != "rtc" {
		t.Errorf("ErrorKindRTC.String() = %q, want rtc", got)
	}
	if got := ErrorKindMessage.String(); got != "message" {
		t.Errorf("ErrorKindMessage.String() = %q, want message", got)
	}
	if got := ErrorEventRTCOccurError.String(); got != "rtcOccurError" {
		t.Errorf("ErrorEventRTCOccurError.String() = %q, want rtcOccurError", got)
	}
	if got := ErrorEventSendMessageFail.String(); got != "sendMessageFail" {
		t.Errorf("ErrorEventSendMessageFail.String() = %q, want sendMessageFail", got)
	}
}
