package influx

import (
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rtsforge/capturepoint/internal/events"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// Timeline writes capture events as points in BucketTimeline.
type Timeline struct {
	manager   *Manager
	matchName func() string
}

var (
	_ events.Listener      = (*Timeline)(nil)
	_ events.GrantListener = (*Timeline)(nil)
)

// NewTimeline returns a listener writing through m. matchName, when set,
// tags every point with the running match.
func NewTimeline(m *Manager, matchName func() string) *Timeline {
	return &Timeline{manager: m, matchName: matchName}
}

func (t *Timeline) tags(zone core.ZoneID) map[string]string {
	tags := map[string]string{"zone": string(zone)}
	if t.matchName != nil {
		if name := t.matchName(); name != "" {
			tags["match"] = name
		}
	}
	return tags
}

func (t *Timeline) write(p *influxdb2_write.Point) {
	if err := t.manager.WritePoint(BucketTimeline, p); err != nil {
		t.manager.Logger.Warn().Err(err).Str("measurement", p.Name()).Msg("Failed to write timeline point")
	}
}

func (t *Timeline) OnOwnershipChanged(ev core.OwnershipChange) {
	t.write(influxdb2.NewPoint("ownership", t.tags(ev.Zone), map[string]any{
		"oldTeam":  int(ev.OldTeam),
		"newTeam":  int(ev.NewTeam),
		"progress": ev.Progress,
		"tick":     int64(ev.Tick),
	}, ev.Time))
}

func (t *Timeline) OnCaptureProgressUpdated(ev core.ProgressUpdate) {
	units := 0
	for _, n := range ev.TeamCounts {
		units += n
	}
	t.write(influxdb2.NewPoint("progress", t.tags(ev.Zone), map[string]any{
		"dominantTeam": int(ev.DominantTeam),
		"progress":     ev.Progress,
		"units":        units,
	}, ev.Time))
}

func (t *Timeline) OnWorkAreaEntered(ev core.ClaimZoneEvent) { t.claim(ev) }
func (t *Timeline) OnWorkAreaExited(ev core.ClaimZoneEvent)  { t.claim(ev) }

func (t *Timeline) claim(ev core.ClaimZoneEvent) {
	tags := t.tags(ev.Zone)
	tags["claim"] = string(ev.Claim)
	t.write(influxdb2.NewPoint("claim", tags, map[string]any{
		"team":    int(ev.Team),
		"entered": ev.Entered,
	}, ev.Time))
}

func (t *Timeline) OnResourceGranted(g core.ResourceGrant) {
	tags := t.tags(g.Zone)
	tags["team"] = strconv.Itoa(int(g.Team))
	tags["resource"] = string(g.Resource)
	t.write(influxdb2.NewPoint("income", tags, map[string]any{
		"amount": g.Amount,
	}, g.Time))
}

// WritePerformance records one processor sample in BucketPerformance.
func (m *Manager) WritePerformance(perf core.TickPerformance) error {
	return m.WritePoint(BucketPerformance, influxdb2.NewPoint("processor", nil, map[string]any{
		"tick":          int64(perf.Tick),
		"zones":         perf.Zones,
		"units":         perf.Units,
		"pendingTasks":  perf.PendingTasks,
		"lastExecuteMs": perf.LastExecuteMs,
	}, perf.Time))
}
