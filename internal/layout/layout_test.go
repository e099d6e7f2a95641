package layout

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rtsforge/capturepoint/internal/ticking"
	"github.com/rtsforge/capturepoint/internal/world"
	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const riverlands = `
map: riverlands
zones:
  - id: ford
    location: {x: 100, y: 200, z: 0}
    captureRadius: 15
    startRadius: 25
    captureTime: 8
    resourceGenerationInterval: 5
    resourceTypes: [gold, oil]
    resourceAmounts: [10, 2]
    legoTower: true
  - id: mill
    ticking: true
    location: {x: -50, y: 0, z: 0}
    captureRadius: 40
    recaptureTime: 4
    incomeInterval: 2s
claims:
  - id: farm
    location: {x: 110, y: 200, z: 0}
    team: 1
`

func writeLayout(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	l, err := Load(writeLayout(t, riverlands))
	require.NoError(t, err)

	assert.Equal(t, "riverlands", l.Map)
	require.Len(t, l.Zones, 2)

	ford := l.Zones[0]
	assert.Equal(t, core.ZoneID("ford"), ford.ID)
	assert.Equal(t, core.Vec3{X: 100, Y: 200}, ford.Location)
	assert.Equal(t, 25.0, ford.StartRadius)
	assert.Equal(t, []core.ResourceType{"gold", "oil"}, ford.ResourceTypes)
	assert.Equal(t, []float64{10, 2}, ford.ResourceAmounts)
	assert.True(t, ford.LegoTower)

	mill := l.Zones[1]
	assert.True(t, mill.Ticking)
	assert.Equal(t, 2*time.Second, mill.IncomeInterval)

	require.Len(t, l.Claims, 1)
	assert.Equal(t, core.TeamID(1), l.Claims[0].Team)
}

func TestLoadEmptyPath(t *testing.T) {
	l, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, l.Zones)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty id", "zones:\n  - captureRadius: 5\n"},
		{"duplicate id", "zones:\n  - id: a\n  - id: a\n"},
		{"negative radius", "zones:\n  - id: a\n    startRadius: -1\n"},
		{"ticking without radius", "zones:\n  - id: a\n    ticking: true\n"},
		{"claim without id", "claims:\n  - team: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeLayout(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidZone)
		})
	}

	_, err := Load(writeLayout(t, "zones: [unclosed"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	l, err := Load(writeLayout(t, riverlands))
	require.NoError(t, err)

	w := world.New()
	points, err := l.Apply(w, ticking.DefaultConfig())
	require.NoError(t, err)

	ford, ok := w.Zone("ford")
	require.True(t, ok)
	assert.True(t, ford.LegoTowerBuilt())
	assert.Equal(t, 8.0, ford.Config().CaptureTime)

	_, ok = w.Zone("mill")
	assert.False(t, ok, "ticking zones are not batched zones")

	require.Len(t, points, 1)
	assert.Equal(t, core.ZoneID("mill"), points[0].ID())

	claims := w.ClaimZonesWithin(core.Vec3{X: 100, Y: 200}, 15)
	require.Len(t, claims, 1)
	assert.Equal(t, core.DefaultTag, claims[0].Tag)
}

func TestPointConfigOverrides(t *testing.T) {
	base := ticking.DefaultConfig()
	z := Zone{ID: "p", ZoneConfig: core.ZoneConfig{CaptureRadius: 40, RecaptureTime: 4, IncomeInterval: 2 * time.Second}}

	cfg := z.pointConfig(base)
	assert.Equal(t, 40.0, cfg.CaptureRadius)
	assert.Equal(t, 4.0, cfg.RecaptureTime)
	assert.Equal(t, 2*time.Second, cfg.IncomeInterval)
	assert.Equal(t, base.CaptureTime, cfg.CaptureTime)
	assert.Equal(t, base.IncomeAmount, cfg.IncomeAmount)
	assert.False(t, cfg.Overlap)

	z.Overlap = true
	assert.True(t, z.pointConfig(base).Overlap)
}
