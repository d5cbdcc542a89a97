package callengine

import (
	"testing"
	"time"
)

func TestCallInfoSnapshotPreservesOrder(t *testing.T) {
	ci := NewCallInfo()
	base := time.Unix(1700000000, 0)
	ci.Start(base)
	ci.Record(MilestoneRemoteUserRecvCall, base.Add(100*time.Millisecond))
	ci.Record(MilestoneAcceptCall, base.Add(500*time.Millisecond))

	got := ci.Snapshot()
	want := []Milestone{MilestoneStart, MilestoneRemoteUserRecvCall, MilestoneAcceptCall}
	if len(got) != len(want) {
		t.Fatalf("expected %d milestones, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("milestone %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestCallInfoResetClears(t *testing.T) {
	ci := NewCallInfo()
	ci.Start(time.Unix(0, 0))
	ci.Reset()
	if got := ci.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot after Reset, got %v", got)
	}
}

func TestCallInfoReportComputesGapsAndTotal(t *testing.T) {
	ci := NewCallInfo()
	base := time.Unix(1700000000, 0)
	ci.Start(base)
	ci.Record(MilestoneRemoteUserRecvCall, base.Add(200*time.Millisecond))
	ci.Record(MilestoneAcceptCall, base.Add(700*time.Millisecond))

	report := ci.Report()
	if report.Total != 700*time.Millisecond {
		t.Fatalf("expected total 700ms, got %v", report.Total)
	}
	key := MilestoneStart.String() + "->" + MilestoneRemoteUserRecvCall.String()
	if gap := report.Gaps[key]; gap != 200*time.Millisecond {
		t.Fatalf("expected %s gap of 200ms, got %v", key, gap)
	}
}

func TestCallInfoReportIgnoresDuplicateMilestones(t *testing.T) {
	ci := NewCallInfo()
	base := time.Unix(1700000000, 0)
	ci.Start(base)
	ci.Record(MilestoneAcceptCall, base.Add(time.Second))
	ci.Record(MilestoneAcceptCall, base.Add(2*time.Second)) // duplicate, should be ignored

	report := ci.Report()
	if report.Total != time.Second {
		t.Fatalf("expected total to use first occurrence only, got %v", report.Total)
	}
}

func TestCallInfoReportWithFewerThanTwoMilestones(t *testing.T) {
	ci := NewCallInfo()
	ci.Start(time.Unix(0, 0))
	report := ci.Report()
	if report.Total != 0 || len(report.Gaps) != 0 {
		t.Fatalf("expected zero-value report, got %+v", report)
	}
}

func TestMilestoneStringUnknown(t *testing.T) {
	if got := Milestone(99).String(); got != "unknown(99)" {
		t.Fatalf("expected unknown(99), got %q", got)
	}
}
