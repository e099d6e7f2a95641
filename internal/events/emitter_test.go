package events

import (
	"testing"
	"time"

	"github.com/rtsforge/capturepoint/internal/capture"
	"github.com/rtsforge/capturepoint/internal/gamethread"
	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recording struct {
	NopListener
	name  string
	log   *[]string
	owner []core.OwnershipChange
	prog  []core.ProgressUpdate
	claim []core.ClaimZoneEvent
}

func (r *recording) OnOwnershipChanged(ev core.OwnershipChange) {
	r.owner = append(r.owner, ev)
	*r.log = append(*r.log, r.name+":owner")
}

func (r *recording) OnCaptureProgressUpdated(ev core.ProgressUpdate) {
	r.prog = append(r.prog, ev)
	*r.log = append(*r.log, r.name+":progress")
}

func (r *recording) OnWorkAreaEntered(ev core.ClaimZoneEvent) {
	r.claim = append(r.claim, ev)
}

func (r *recording) OnWorkAreaExited(ev core.ClaimZoneEvent) {
	r.claim = append(r.claim, ev)
}

type edgeRecorder struct {
	NopListener
	edges []string
	pings []core.ZoneID
	grant []core.ResourceGrant
	snaps []core.ZoneSnapshot
}

func (e *edgeRecorder) OnCaptureStarted(zone core.ZoneID, team core.TeamID) {
	e.edges = append(e.edges, "started")
}
func (e *edgeRecorder) OnCaptureCompleted(zone core.ZoneID, team core.TeamID) {
	e.edges = append(e.edges, "completed")
}
func (e *edgeRecorder) OnCaptureContested(zone core.ZoneID) {
	e.edges = append(e.edges, "contested")
}
func (e *edgeRecorder) OnCaptureLost(zone core.ZoneID, previous core.TeamID) {
	e.edges = append(e.edges, "lost")
}
func (e *edgeRecorder) OnPing(zone core.ZoneID) {
	e.pings = append(e.pings, zone)
}
func (e *edgeRecorder) OnResourceGranted(g core.ResourceGrant) {
	e.grant = append(e.grant, g)
}
func (e *edgeRecorder) OnZoneSnapshots(s []core.ZoneSnapshot) {
	e.snaps = append(e.snaps, s...)
}

type snapper struct {
	NopListener
	snapped map[core.ClaimZoneID]bool
	exited  []core.ClaimZoneID
}

func (s *snapper) IsWorkAreaSnapped(claim core.ClaimZoneID) bool { return s.snapped[claim] }
func (s *snapper) UnsnapWorkArea(claim core.ClaimZoneID)         { delete(s.snapped, claim) }
func (s *snapper) OnWorkAreaExited(ev core.ClaimZoneEvent) {
	// Unsnap runs before the exit notification.
	if !s.snapped[ev.Claim] {
		s.exited = append(s.exited, ev.Claim)
	}
}

func newEmitter(t *testing.T) (*Emitter, *gamethread.Tasks) {
	t.Helper()
	tasks, err := gamethread.NewTasks(nil)
	require.NoError(t, err)
	e, err := NewEmitter(tasks, nil)
	require.NoError(t, err)
	return e, tasks
}

func transition(oldOwner, newOwner core.TeamID, oldProgress, newProgress float64, nearby bool) capture.Transition {
	o := core.NewZoneStatus()
	o.OwningTeam = oldOwner
	o.Progress = oldProgress
	n := core.NewZoneStatus()
	n.OwningTeam = newOwner
	n.Progress = newProgress
	n.DominantTeam = 1
	n.TeamCounts = map[core.TeamID]int{1: 2}
	return capture.Transition{Old: o, New: n, UnitsNearby: nearby}
}

func TestSignalIsDeferred(t *testing.T) {
	e, tasks := newEmitter(t)
	var log []string
	r := &recording{name: "a", log: &log}
	e.Register(r)

	tr := transition(core.NoTeam, 1, 0.9, 1, true)
	e.Signal("z", tr, 7, time.Unix(100, 0))
	assert.Empty(t, log, "nothing is delivered before the drain")

	// Mutating the transition after signalling must not leak into the event.
	tr.New.TeamCounts[1] = 99

	assert.Equal(t, 1, tasks.Drain())
	assert.Equal(t, []string{"a:owner", "a:progress"}, log)
	require.Len(t, r.owner, 1)
	assert.Equal(t, core.OwnershipChange{Zone: "z", Time: time.Unix(100, 0), Tick: 7, OldTeam: core.NoTeam, NewTeam: 1, Progress: 1}, r.owner[0])
	require.Len(t, r.prog, 1)
	assert.Equal(t, 2, r.prog[0].TeamCounts[1])
	assert.Equal(t, core.TeamID(1), r.prog[0].DominantTeam)
}

func TestSignalThrottle(t *testing.T) {
	tests := []struct {
		name          string
		tr            capture.Transition
		wantOwner     int
		wantProgress  int
		wantScheduled int
	}{
		{"idle and still", transition(core.NoTeam, core.NoTeam, 0.5, 0.5, false), 0, 0, 0},
		{"small drift without units", transition(core.NoTeam, core.NoTeam, 0.5, 0.5005, false), 0, 0, 0},
		{"drift above epsilon", transition(core.NoTeam, core.NoTeam, 0.5, 0.49, false), 0, 1, 1},
		{"units nearby", transition(0, 0, 1, 1, true), 0, 1, 1},
		{"owner lost", transition(0, core.NoTeam, 0.0001, 0, false), 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, tasks := newEmitter(t)
			var log []string
			r := &recording{name: "a", log: &log}
			e.Register(r)

			e.Signal("z", tt.tr, 1, time.Time{})
			assert.Equal(t, tt.wantScheduled, tasks.Drain())
			assert.Len(t, r.owner, tt.wantOwner)
			assert.Len(t, r.prog, tt.wantProgress)
		})
	}
}

func TestListenersInRegistrationOrder(t *testing.T) {
	e, tasks := newEmitter(t)
	var log []string
	e.Register(&recording{name: "first", log: &log})
	e.Register(&recording{name: "second", log: &log})
	e.Register(nil)

	e.Signal("z", transition(core.NoTeam, 0, 0.9, 1, false), 1, time.Time{})
	tasks.Drain()
	assert.Equal(t, []string{"first:owner", "first:progress", "second:owner", "second:progress"}, log)
}

func TestClaimEvents(t *testing.T) {
	e, tasks := newEmitter(t)
	var log []string
	r := &recording{name: "a", log: &log}
	s := &snapper{snapped: map[core.ClaimZoneID]bool{"c1": true}}
	e.Register(r)
	e.Register(s)

	claim := core.ClaimZone{ID: "c1", Team: 2}
	e.ClaimEntered("z", claim, 3, time.Time{})
	e.ClaimExited("z", claim, 4, time.Time{})
	assert.Equal(t, 2, tasks.Drain())

	require.Len(t, r.claim, 2)
	assert.True(t, r.claim[0].Entered)
	assert.False(t, r.claim[1].Entered)
	assert.Equal(t, core.TeamID(2), r.claim[1].Team)
	assert.Equal(t, uint64(4), r.claim[1].Tick)

	assert.False(t, s.snapped["c1"])
	assert.Equal(t, []core.ClaimZoneID{"c1"}, s.exited)
}

func TestEdgesPingsAndGrants(t *testing.T) {
	e, tasks := newEmitter(t)
	er := &edgeRecorder{}
	var log []string
	e.Register(&recording{name: "plain", log: &log})
	e.Register(er)

	e.Edges([]core.Edge{
		{Zone: "z", Kind: core.EdgeLost, Team: 0},
		{Zone: "z", Kind: core.EdgeStarted, Team: 1},
	})
	e.Edges(nil)
	e.Ping("z")

	var paid []core.ResourceGrant
	grants := []core.ResourceGrant{{Zone: "z", Team: 1, Resource: "gold", Amount: 3}}
	e.Grants(grants, func(g []core.ResourceGrant) int {
		paid = append(paid, g...)
		return len(g)
	})
	e.Grants(nil, nil)
	e.Snapshots([]core.ZoneSnapshot{{Zone: "z", OwningTeam: 1, Progress: 1}})
	e.Snapshots(nil)

	assert.Equal(t, 4, tasks.Drain())
	assert.Equal(t, []string{"lost", "started"}, er.edges)
	assert.Equal(t, []core.ZoneID{"z"}, er.pings)
	assert.Equal(t, grants, paid)
	assert.Equal(t, grants, er.grant)
	require.Len(t, er.snaps, 1)
	assert.True(t, er.snaps[0].Captured())
}

func TestListenerReentryWaitsForNextDrain(t *testing.T) {
	e, tasks := newEmitter(t)
	var log []string
	reentrant := &reentrantListener{emitter: e, log: &log}
	e.Register(reentrant)

	e.Ping("z")
	assert.Equal(t, 1, tasks.Drain())
	assert.Equal(t, []string{"ping"}, log)
	assert.Equal(t, 1, tasks.Len())

	tasks.Drain()
	assert.Equal(t, []string{"ping", "ping"}, log)
}

type reentrantListener struct {
	NopListener
	emitter *Emitter
	log     *[]string
}

func (r *reentrantListener) OnPing(zone core.ZoneID) {
	*r.log = append(*r.log, "ping")
	if len(*r.log) == 1 {
		r.emitter.Ping(zone)
	}
}
