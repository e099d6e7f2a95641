package parser

import (
	"log/slog"
	"testing"

	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return NewParser(slog.Default(), "1.0.0", "2.0.0")
}

func TestParseIntFromFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"integer", "32", 32, false},
		{"negative", "-1", -1, false},
		{"float with decimals", "32.00", 32, false},
		{"fractional rejects", "10.99", 0, true},
		{"empty string", "", 0, true},
		{"non-numeric", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntFromFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"true": true, "TRUE": true, "1": true, "false": false, "0": false, "": false} {
		got, err := parseBool(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseBool("maybe")
	assert.Error(t, err)
}

func TestParseZone(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name    string
		input   []string
		wantErr bool
		check   func(t *testing.T, id core.ZoneID, cfg core.ZoneConfig)
	}{
		{
			name:  "full",
			input: []string{`"alpha"`, "100.5", "200", "0", "15", "20", "10", "12", "5", "gold;oil", "10;2.5", `"Outpost"`},
			check: func(t *testing.T, id core.ZoneID, cfg core.ZoneConfig) {
				assert.Equal(t, core.ZoneID("alpha"), id)
				assert.Equal(t, core.Vec3{X: 100.5, Y: 200}, cfg.Location)
				assert.Equal(t, 15.0, cfg.CaptureRadius)
				assert.Equal(t, 20.0, cfg.StartRadius)
				assert.Equal(t, 10.0, cfg.CaptureTime)
				assert.Equal(t, 12.0, cfg.RecaptureTime)
				assert.Equal(t, 5.0, cfg.ResourceGenerationInterval)
				assert.Equal(t, []core.ResourceType{"gold", "oil"}, cfg.ResourceTypes)
				assert.Equal(t, []float64{10, 2.5}, cfg.ResourceAmounts)
				assert.Equal(t, "Outpost", cfg.Tag)
			},
		},
		{
			name:  "engine array lists and no tag",
			input: []string{"beta", "0", "0", "0", "10", "10", "0", "0", "0", `["gold"]`, "[3]"},
			check: func(t *testing.T, id core.ZoneID, cfg core.ZoneConfig) {
				assert.Equal(t, []core.ResourceType{"gold"}, cfg.ResourceTypes)
				assert.Equal(t, []float64{3}, cfg.ResourceAmounts)
				assert.Empty(t, cfg.Tag)
			},
		},
		{
			name:  "mismatched lists are kept as sent",
			input: []string{"gamma", "0", "0", "0", "10", "10", "0", "0", "1", "gold;oil", "1"},
			check: func(t *testing.T, id core.ZoneID, cfg core.ZoneConfig) {
				assert.Equal(t, 1, cfg.ResourcePairs())
			},
		},
		{name: "bad radius", input: []string{"z", "0", "0", "0", "wide", "10", "0", "0", "0", "", ""}, wantErr: true},
		{name: "bad amount", input: []string{"z", "0", "0", "0", "10", "10", "0", "0", "0", "gold", "lots"}, wantErr: true},
		{name: "empty id", input: []string{`""`, "0", "0", "0", "10", "10", "0", "0", "0", "", ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, cfg, err := p.ParseZone(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, id, cfg)
		})
	}

	_, _, err := p.ParseZone([]string{"z", "0"})
	assert.ErrorIs(t, err, ErrArgCount)
}

func TestParseUnit(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name    string
		input   []string
		wantErr bool
		check   func(t *testing.T, u core.Unit)
	}{
		{
			name:  "combat unit",
			input: []string{`"u1"`, "1", "2", "3", "2.00", "true", "combat"},
			check: func(t *testing.T, u core.Unit) {
				assert.Equal(t, core.Unit{ID: "u1", Location: core.Vec3{X: 1, Y: 2, Z: 3}, Team: 2, Alive: true, Role: core.RoleCombat}, u)
			},
		},
		{
			name:  "empty role defaults to combat",
			input: []string{"u2", "0", "0", "0", "0", "1", ""},
			check: func(t *testing.T, u core.Unit) {
				assert.Equal(t, core.RoleCombat, u.Role)
				assert.Equal(t, core.TeamID(0), u.Team)
			},
		},
		{
			name:  "capture point marker",
			input: []string{"cp", "0", "0", "0", "1", "true", "worker", "true"},
			check: func(t *testing.T, u core.Unit) {
				assert.True(t, u.IsCapturePoint)
				assert.Equal(t, core.RoleWorker, u.Role)
			},
		},
		{
			name:  "negative team has no team",
			input: []string{"u3", "0", "0", "0", "-1", "false", "combat"},
			check: func(t *testing.T, u core.Unit) {
				assert.Equal(t, core.NoTeam, u.Team)
				assert.False(t, u.Alive)
			},
		},
		{name: "bad x", input: []string{"u", "east", "0", "0", "1", "true", "combat"}, wantErr: true},
		{name: "bad team", input: []string{"u", "0", "0", "0", "blue", "true", "combat"}, wantErr: true},
		{name: "bad alive", input: []string{"u", "0", "0", "0", "1", "yes", "combat"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := p.ParseUnit(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, u)
		})
	}

	_, err := p.ParseUnit([]string{"u"})
	assert.ErrorIs(t, err, ErrArgCount)
}

func TestParseClaimZone(t *testing.T) {
	p := newTestParser()

	cz, err := p.ParseClaimZone([]string{"c1", "5", "5", "0", "1"})
	require.NoError(t, err)
	assert.Equal(t, core.ClaimZone{ID: "c1", Location: core.Vec3{X: 5, Y: 5}, Team: 1, Tag: core.DefaultTag}, cz)

	cz, err = p.ParseClaimZone([]string{"c2", "0", "0", "0", "1", `"Farm"`})
	require.NoError(t, err)
	assert.Equal(t, "Farm", cz.Tag)

	_, err = p.ParseClaimZone([]string{"c3", "0", "0", "0", "x"})
	assert.Error(t, err)

	_, err = p.ParseClaimZone([]string{"c4"})
	assert.ErrorIs(t, err, ErrArgCount)
}

func TestParseMatch(t *testing.T) {
	p := newTestParser()

	m, err := p.ParseMatch([]string{`"Evening Skirmish"`, "riverlands"})
	require.NoError(t, err)
	assert.Equal(t, "Evening Skirmish", m.MatchName)
	assert.Equal(t, "riverlands", m.MapName)
	assert.Equal(t, core.ModeAuthority, m.Mode)
	assert.Equal(t, "1.0.0", m.ExtensionVersion)
	assert.Equal(t, "2.0.0", m.ExtensionBuild)
	assert.False(t, m.StartTime.IsZero())

	m, err = p.ParseMatch([]string{"m", "map", "Observer"})
	require.NoError(t, err)
	assert.Equal(t, core.ModeObserver, m.Mode)

	_, err = p.ParseMatch([]string{"m", "map", "spectator"})
	assert.Error(t, err)

	_, err = p.ParseMatch([]string{"m"})
	assert.ErrorIs(t, err, ErrArgCount)
}

func TestParseTowerAndID(t *testing.T) {
	p := newTestParser()

	id, built, err := p.ParseTower([]string{"alpha", "true"})
	require.NoError(t, err)
	assert.Equal(t, core.ZoneID("alpha"), id)
	assert.True(t, built)

	_, _, err = p.ParseTower([]string{"alpha", "built"})
	assert.Error(t, err)

	got, err := p.ParseID(":UNIT:REMOVE:", []string{`"u1"`})
	require.NoError(t, err)
	assert.Equal(t, "u1", got)

	_, err = p.ParseID(":UNIT:REMOVE:", nil)
	assert.ErrorIs(t, err, ErrArgCount)
	_, err = p.ParseID(":UNIT:REMOVE:", []string{""})
	assert.Error(t, err)
}

func TestParseZoneOverlap(t *testing.T) {
	p := newTestParser()

	zone, unit, err := p.ParseZoneEnter([]string{`"flag"`, "u1", "1", "2", "0", "1", "true", "worker"})
	require.NoError(t, err)
	assert.Equal(t, core.ZoneID("flag"), zone)
	assert.Equal(t, core.UnitID("u1"), unit.ID)
	assert.Equal(t, core.RoleWorker, unit.Role)

	_, _, err = p.ParseZoneEnter([]string{"flag", "u1"})
	assert.ErrorIs(t, err, ErrArgCount)
	_, _, err = p.ParseZoneEnter([]string{"flag", "u1", "1", "2", "0", "red", "true", "combat"})
	assert.Error(t, err)

	zone, id, err := p.ParseZoneLeave([]string{"flag", `"u1"`})
	require.NoError(t, err)
	assert.Equal(t, core.ZoneID("flag"), zone)
	assert.Equal(t, core.UnitID("u1"), id)

	_, _, err = p.ParseZoneLeave([]string{"flag"})
	assert.ErrorIs(t, err, ErrArgCount)
}

func TestParseBalance(t *testing.T) {
	p := newTestParser()

	team, resource, err := p.ParseBalance([]string{"1.00", `"gold"`})
	require.NoError(t, err)
	assert.Equal(t, core.TeamID(1), team)
	assert.Equal(t, core.ResourceType("gold"), resource)

	_, _, err = p.ParseBalance([]string{"1", ""})
	assert.Error(t, err)
	_, _, err = p.ParseBalance([]string{"1"})
	assert.ErrorIs(t, err, ErrArgCount)
}
