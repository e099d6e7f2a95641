package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rtsforge/capturepoint/internal/database"
	"github.com/rtsforge/capturepoint/internal/model"
	"github.com/rtsforge/capturepoint/internal/storage"
	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend      = (*Backend)(nil)
	_ storage.ZoneRecorder = (*Backend)(nil)
)

func newBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	b, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	return b
}

func TestEndMatchDumpsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.db")
	b := newBackend(t, Config{DumpPath: path})
	defer b.Close()

	m := core.Match{MatchName: "Ridge Assault", MapName: "riverlands", StartTime: time.Now().UTC()}
	require.NoError(t, b.StartMatch(&m))
	require.NoError(t, b.RecordZone("alpha", core.ZoneConfig{CaptureRadius: 15}))
	b.OnOwnershipChanged(core.OwnershipChange{Zone: "alpha", Tick: 3, OldTeam: core.NoTeam, NewTeam: 1})

	require.NoError(t, b.EndMatch())

	dump, err := database.OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)

	var matches []model.Match
	require.NoError(t, dump.Find(&matches).Error)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].EndTime.Valid)

	var owners []model.OwnershipEvent
	require.NoError(t, dump.Find(&owners).Error)
	require.Len(t, owners, 1)
	assert.Equal(t, 1, owners[0].NewTeam)

	var zones []model.Zone
	require.NoError(t, dump.Find(&zones).Error)
	assert.Len(t, zones, 1)
}

func TestDumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periodic.db")
	b := newBackend(t, Config{DumpPath: path, DumpInterval: 10 * time.Millisecond})
	defer b.Close()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDumpWithoutPath(t *testing.T) {
	b := newBackend(t, Config{})
	assert.NoError(t, b.Dump())
	assert.NoError(t, b.Close())
}

func TestCloseWritesFinalDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final.db")
	b := newBackend(t, Config{DumpPath: path, DumpInterval: time.Hour})

	m := core.Match{MatchName: "Ridge Assault", MapName: "riverlands", StartTime: time.Now().UTC()}
	require.NoError(t, b.StartMatch(&m))
	require.NoError(t, b.Close())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
