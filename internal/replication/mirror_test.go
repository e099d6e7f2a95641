package replication

import (
	"testing"
	"time"

	"github.com/rtsforge/capturepoint/internal/events"
	"github.com/rtsforge/capturepoint/internal/gamethread"
	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(zone core.ZoneID, owner core.TeamID, progress float64) core.ZoneSnapshot {
	state := core.StateNeutral
	if owner.Valid() {
		state = core.StateOwned
	}
	return core.ZoneSnapshot{Zone: zone, State: state, OwningTeam: owner, Progress: progress, CapturingTeam: core.NoTeam}
}

func TestMirrorPublishGetAll(t *testing.T) {
	m := NewMirror()
	_, ok := m.Get("a")
	assert.False(t, ok)

	m.Publish(snap("b", 1, 1), snap("a", core.NoTeam, 0.3))
	m.Publish(snap("a", core.NoTeam, 0.5))

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 0.5, got.Progress)

	all := m.All()
	require.Len(t, all, 2)
	assert.Equal(t, core.ZoneID("a"), all[0].Zone)
	assert.Equal(t, core.ZoneID("b"), all[1].Zone)

	m.Remove("b")
	assert.Len(t, m.All(), 1)
}

func TestSubscriptionDropsOldest(t *testing.T) {
	m := NewMirror()
	sub := m.Subscribe(2)

	m.Publish(snap("a", core.NoTeam, 0.1), snap("a", core.NoTeam, 0.2), snap("a", core.NoTeam, 0.3))

	first := <-sub.C()
	second := <-sub.C()
	assert.Equal(t, 0.2, first.Progress)
	assert.Equal(t, 0.3, second.Progress)
	assert.Equal(t, 1, sub.Dropped())

	sub.Close()
	_, open := <-sub.C()
	assert.False(t, open)

	sub.Close()
	m.Publish(snap("a", core.NoTeam, 0.4))
}

type configs map[core.ZoneID]core.ZoneConfig

func (c configs) ZoneConfig(zone core.ZoneID) (core.ZoneConfig, bool) {
	cfg, ok := c[zone]
	return cfg, ok
}

type claims []core.ClaimZone

func (c claims) ClaimZonesWithin(center core.Vec3, radius float64) []core.ClaimZone {
	return c
}

type claimLog struct {
	events.NopListener
	events []core.ClaimZoneEvent
}

func (l *claimLog) OnWorkAreaEntered(ev core.ClaimZoneEvent) { l.events = append(l.events, ev) }
func (l *claimLog) OnWorkAreaExited(ev core.ClaimZoneEvent)  { l.events = append(l.events, ev) }

func TestClientPassOnlyCapturedZones(t *testing.T) {
	tasks, err := gamethread.NewTasks(nil)
	require.NoError(t, err)
	emitter, err := events.NewEmitter(tasks, nil)
	require.NoError(t, err)
	log := &claimLog{}
	emitter.Register(log)

	m := NewMirror()
	m.Publish(snap("owned", 0, 1), snap("partial", 0, 0.5), snap("unknown", 0, 1))

	pass := &ClientPass{
		Mirror:  m,
		Configs: configs{"owned": {CaptureRadius: 10}, "partial": {CaptureRadius: 10}},
		Claims: claims{
			{ID: "c1", Team: 0, Tag: "capturepoint"},
			{ID: "c2", Team: 1, Tag: "CapturePoint"},
		},
		Emitter:    emitter,
		DefaultTag: core.DefaultTag,
	}

	assert.Equal(t, 1, pass.Run(1, time.Time{}))
	tasks.Drain()
	require.Len(t, log.events, 1)
	assert.Equal(t, core.ZoneID("owned"), log.events[0].Zone)
	assert.Equal(t, core.ClaimZoneID("c1"), log.events[0].Claim)
	assert.True(t, log.events[0].Entered)

	assert.Equal(t, 0, pass.Run(2, time.Time{}))

	m.Publish(snap("owned", core.NoTeam, 0))
	assert.Equal(t, 0, pass.Run(3, time.Time{}), "losing the zone clears without exit events")

	got, _ := m.Get("owned")
	assert.Equal(t, core.NoTeam, got.OwningTeam, "the client pass never writes the mirror")
}
