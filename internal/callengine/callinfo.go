package callengine

import (
	"fmt"
	"sync"
	"time"
)

// Milestone names a point on the call timeline that CallInfo records.
type Milestone int

const (
	MilestoneStart Milestone = iota
	MilestoneRemoteUserRecvCall
	MilestoneAcceptCall
	MilestoneLocalUserJoinChannel
	MilestoneRemoteUserJoinChannel
	MilestoneRecvFirstFrame
	MilestoneEnd
)

func (m Milestone) String() string {
	switch m {
	case MilestoneStart:
		return "start"
	case MilestoneRemoteUserRecvCall:
		return "remoteUserRecvCall"
	case MilestoneAcceptCall:
		return "acceptCall"
	case MilestoneLocalUserJoinChannel:
		return "localUserJoinChannel"
	case MilestoneRemoteUserJoinChannel:
		return "remoteUserJoinChannel"
	case MilestoneRecvFirstFrame:
		return "recvFirstFrame"
	case MilestoneEnd:
		return "end"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

type milestoneRecord struct {
	milestone Milestone
	at        time.Time
}

// CallInfo is an append-only collector of milestone timestamps for a single
// call, used to compute latency breakdowns (time-to-accept, time-to-first-
// frame, etc.).
type CallInfo struct {
	mu      sync.Mutex
	records []milestoneRecord
}

// NewCallInfo returns an empty collector.
func NewCallInfo() *CallInfo {
	return &CallInfo{}
}

// Start records MilestoneStart at now, clearing any prior records.
func (ci *CallInfo) Start(now time.Time) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.records = []milestoneRecord{{milestone: MilestoneStart, at: now}}
}

// Record appends a milestone at now. Duplicate milestones are recorded in
// order; Report() uses the first occurrence of each.
func (ci *CallInfo) Record(m Milestone, now time.Time) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.records = append(ci.records, milestoneRecord{milestone: m, at: now})
}

// Reset clears all records.
func (ci *CallInfo) Reset() {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.records = nil
}

// Snapshot returns the milestones recorded so far, in order.
func (ci *CallInfo) Snapshot() []Milestone {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	out := make([]Milestone, len(ci.records))
	for i, r := range ci.records {
		out[i] = r.milestone
	}
	return out
}

// LatencyReport is the inter-milestone duration breakdown produced by Report.
type LatencyReport struct {
	// Gaps maps "fromMilestone->toMilestone" to the elapsed duration between
	// the first occurrence of each, in recorded order.
	Gaps map[string]time.Duration
	// Total is the elapsed time between the first occurrences of the first
	// and the last distinct milestone; repeated milestones do not extend it.
	Total time.Duration
}

// Report computes the duration between each consecutive pair of distinct
// first-seen milestones, plus the total span. Returns a zero-value report if
// fewer than two milestones were recorded.
func (ci *CallInfo) Report() LatencyReport {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if len(ci.records) < 2 {
		return LatencyReport{Gaps: map[string]time.Duration{}}
	}

	seen := make(map[Milestone]time.Time)
	var ordered []milestoneRecord
	for _, r := range ci.records {
		if _, ok := seen[r.milestone]; ok {
			continue
		}
		seen[r.milestone] = r.at
		ordered = append(ordered, r)
	}

	gaps := make(map[string]time.Duration, len(ordered)-1)
	for i := 1; i < len(ordered); i++ {
		key := fmt.Sprintf("%s->%s", ordered[i-1].milestone, ordered[i].milestone)
		gaps[key] = ordered[i].at.Sub(ordered[i-1].at)
	}

	return LatencyReport{
		Gaps:  gaps,
		Total: ordered[len(ordered)-1].at.Sub(ordered[0].at),
	}
}
