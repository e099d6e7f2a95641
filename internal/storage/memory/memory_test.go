package memory

import (
	"testing"
	"time"

	"github.com/rtsforge/capturepoint/internal/config"
	"github.com/rtsforge/capturepoint/internal/storage"
	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend      = (*Backend)(nil)
	_ storage.Exportable   = (*Backend)(nil)
	_ storage.ZoneRecorder = (*Backend)(nil)
)

func newMatch() *core.Match {
	return &core.Match{
		MatchName: "Ridge Assault",
		MapName:   "riverlands",
		Mode:      core.ModeAuthority,
		StartTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNew(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: "/tmp/test"})
	require.NotNil(t, b)
	assert.Equal(t, "/tmp/test", b.cfg.OutputDir)
	assert.NotNil(t, b.zones)
	assert.NoError(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestStartMatchResetsCollections(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartMatch(newMatch()))

	b.OnOwnershipChanged(core.OwnershipChange{Zone: "alpha", NewTeam: 1})
	require.NoError(t, b.RecordTickPerformance(core.TickPerformance{Tick: 1}))

	m := newMatch()
	m.MatchName = "Night Raid"
	require.NoError(t, b.StartMatch(m))

	assert.Equal(t, "Night Raid", b.match.MatchName)
	assert.Empty(t, b.zones)
	assert.Empty(t, b.performance)

	// The backend keeps its own copy of the match.
	m.MatchName = "changed"
	assert.Equal(t, "Night Raid", b.match.MatchName)
}

func TestEventsGroupedByZone(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartMatch(newMatch()))

	cfg := core.ZoneConfig{CaptureRadius: 15}
	require.NoError(t, b.RecordZone("alpha", cfg))
	b.OnOwnershipChanged(core.OwnershipChange{Zone: "alpha", Tick: 1, NewTeam: 1})
	b.OnCaptureProgressUpdated(core.ProgressUpdate{Zone: "alpha", Tick: 1, Progress: 1})
	b.OnWorkAreaEntered(core.ClaimZoneEvent{Zone: "alpha", Claim: "mine-1", Entered: true})
	b.OnWorkAreaExited(core.ClaimZoneEvent{Zone: "alpha", Claim: "mine-1"})
	b.OnResourceGranted(core.ResourceGrant{Zone: "alpha", Team: 1, Amount: 2})
	b.OnOwnershipChanged(core.OwnershipChange{Zone: "bravo", Tick: 2, NewTeam: 2})

	alpha, ok := b.GetZone("alpha")
	require.True(t, ok)
	require.NotNil(t, alpha.Config)
	assert.Equal(t, 15.0, alpha.Config.CaptureRadius)
	assert.Len(t, alpha.Ownership, 1)
	assert.Len(t, alpha.Progress, 1)
	assert.Len(t, alpha.Claims, 2)
	assert.Len(t, alpha.Grants, 1)

	bravo, ok := b.GetZone("bravo")
	require.True(t, ok)
	assert.Nil(t, bravo.Config, "zone only known through its events")
	assert.Len(t, bravo.Ownership, 1)

	_, ok = b.GetZone("charlie")
	assert.False(t, ok)
}

func TestSnapshotsKeepLatest(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartMatch(newMatch()))

	b.OnZoneSnapshots([]core.ZoneSnapshot{{Zone: "alpha", Progress: 0.2, Tick: 1}, {Zone: "bravo", Tick: 1}})
	b.OnZoneSnapshots([]core.ZoneSnapshot{{Zone: "alpha", Progress: 0.4, Tick: 2}})

	alpha, _ := b.GetZone("alpha")
	require.NotNil(t, alpha.Last)
	assert.Equal(t, 0.4, alpha.Last.Progress)
	bravo, _ := b.GetZone("bravo")
	require.NotNil(t, bravo.Last)
	assert.Equal(t, uint64(1), bravo.Last.Tick)
}

func TestEndMatchWithoutStart(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	assert.ErrorIs(t, b.EndMatch(), errNoMatch)
	assert.Empty(t, b.GetExportedFilePath())
}
