package influx

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/rtsforge/capturepoint/internal/config"
	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachable() config.InfluxConfig {
	return config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "capture",
	}
}

func newBackupManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(unreachable(), zerolog.Nop(), path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	require.False(t, m.IsValid)
	return m, path
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestConnectDisabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.NoError(t, m.Close())
}

func TestWritePointWithoutBackup(t *testing.T) {
	m := NewManager(unreachable(), zerolog.Nop(), "")
	_, point, err := ProcessMetricData([]string{"b", "m", "field::int::n::1"})
	require.NoError(t, err)
	assert.Error(t, m.WritePoint("b", point))
}

func TestTimelineToBackup(t *testing.T) {
	m, path := newBackupManager(t)
	tl := NewTimeline(m, func() string { return "op_alpha" })
	at := time.Unix(1700000000, 0)

	tl.OnOwnershipChanged(core.OwnershipChange{Zone: "alpha", Time: at, Tick: 12, OldTeam: core.NoTeam, NewTeam: 1, Progress: 1})
	tl.OnCaptureProgressUpdated(core.ProgressUpdate{Zone: "alpha", Time: at, DominantTeam: 1, Progress: 0.5, TeamCounts: map[core.TeamID]int{1: 2, 2: 1}})
	tl.OnWorkAreaEntered(core.ClaimZoneEvent{Zone: "alpha", Claim: "c1", Time: at, Team: 1, Entered: true})
	tl.OnWorkAreaExited(core.ClaimZoneEvent{Zone: "alpha", Claim: "c1", Time: at, Team: 1})
	tl.OnResourceGranted(core.ResourceGrant{Zone: "alpha", Time: at, Team: 1, Resource: "gold", Amount: 5})
	require.NoError(t, m.WritePerformance(core.TickPerformance{Time: at, Tick: 12, Zones: 3, Units: 40}))
	require.NoError(t, m.Close())

	lines := readBackup(t, path)
	require.Len(t, lines, 6)

	assert.True(t, strings.HasPrefix(lines[0], BucketTimeline+" ownership,match=op_alpha,zone=alpha "))
	assert.Contains(t, lines[0], "newTeam=1i")
	assert.Contains(t, lines[0], "oldTeam=-1i")
	assert.Contains(t, lines[1], "units=3i")
	assert.Contains(t, lines[2], "claim=c1")
	assert.Contains(t, lines[2], "entered=true")
	assert.Contains(t, lines[3], "entered=false")
	assert.Contains(t, lines[4], "resource=gold")
	assert.Contains(t, lines[4], "amount=5")
	assert.True(t, strings.HasPrefix(lines[5], BucketPerformance+" processor "))
	assert.Contains(t, lines[5], "zones=3i")
}

func TestTimelineWithoutMatchName(t *testing.T) {
	m, path := newBackupManager(t)
	NewTimeline(m, nil).OnOwnershipChanged(core.OwnershipChange{Zone: "bravo", NewTeam: 2})
	require.NoError(t, m.Close())

	lines := readBackup(t, path)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "match=")
}

func TestProcessMetricData(t *testing.T) {
	tests := []struct {
		name       string
		data       []string
		wantBucket string
		wantErr    bool
		contains   []string
	}{
		{
			name:       "tags and fields",
			data:       []string{`"capture_custom"`, `"supply"`, `"tag::side::west"`, `"field::int::crates::4"`, `"field::float::ratio::0.5"`, `"field::string::note::ok"`},
			wantBucket: "capture_custom",
			contains:   []string{"supply,side=west", "crates=4i", "ratio=0.5", `note="ok"`},
		},
		{name: "too short", data: []string{"only"}, wantErr: true},
		{name: "bad int", data: []string{"b", "m", "field::int::n::x"}, wantErr: true},
		{name: "bad float", data: []string{"b", "m", "field::float::n::x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, point, err := ProcessMetricData(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			line := influxLine(point)
			for _, c := range tt.contains {
				assert.Contains(t, line, c)
			}
		})
	}
}

func influxLine(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}
