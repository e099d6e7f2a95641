// Package convert maps core capture types onto their GORM rows.
package convert

import (
	"encoding/json"
	"strconv"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/rtsforge/capturepoint/internal/model"
	"github.com/rtsforge/capturepoint/pkg/core"
	"gorm.io/datatypes"
)

// vec3ToPoint drops the height; zones are evaluated on the ground plane.
func vec3ToPoint(v core.Vec3) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: v.X, Y: v.Y}})
}

// PointToVec3 is the inverse of the conversion used for zone locations.
func PointToVec3(p geom.Point) core.Vec3 {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Vec3{}
	}
	return core.Vec3{X: coord.XY.X, Y: coord.XY.Y}
}

// CoreToMatch converts a core match. The map is resolved by the caller.
func CoreToMatch(m core.Match) model.Match {
	return model.Match{
		MatchName:        m.MatchName,
		Mode:             string(m.Mode),
		StartTime:        m.StartTime,
		ExtensionVersion: m.ExtensionVersion,
		ExtensionBuild:   m.ExtensionBuild,
	}
}

// CoreToZone converts a zone registration. The full config is kept as JSON.
func CoreToZone(id core.ZoneID, cfg core.ZoneConfig) (model.Zone, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return model.Zone{}, err
	}
	return model.Zone{
		ZoneID:        string(id),
		Location:      vec3ToPoint(cfg.Location),
		CaptureRadius: cfg.CaptureRadius,
		StartRadius:   cfg.StartRadius,
		Tag:           cfg.Tag,
		Config:        datatypes.JSON(raw),
	}, nil
}

// ZoneConfigFromJSON decodes the config stored with a zone row.
func ZoneConfigFromJSON(z model.Zone) (core.ZoneConfig, error) {
	var cfg core.ZoneConfig
	if len(z.Config) == 0 {
		return cfg, nil
	}
	err := json.Unmarshal(z.Config, &cfg)
	return cfg, err
}

func CoreToOwnershipEvent(ev core.OwnershipChange) model.OwnershipEvent {
	return model.OwnershipEvent{
		Time:     ev.Time,
		Tick:     ev.Tick,
		ZoneID:   string(ev.Zone),
		OldTeam:  int(ev.OldTeam),
		NewTeam:  int(ev.NewTeam),
		Progress: ev.Progress,
	}
}

// CoreToProgressSample stores the team counts as a JSON object keyed by team id.
func CoreToProgressSample(ev core.ProgressUpdate) model.ProgressSample {
	counts := make(map[string]int, len(ev.TeamCounts))
	for team, n := range ev.TeamCounts {
		counts[strconv.Itoa(int(team))] = n
	}
	raw, _ := json.Marshal(counts)
	return model.ProgressSample{
		Time:         ev.Time,
		Tick:         ev.Tick,
		ZoneID:       string(ev.Zone),
		DominantTeam: int(ev.DominantTeam),
		Progress:     ev.Progress,
		TeamCounts:   datatypes.JSON(raw),
	}
}

func CoreToResourceGrant(g core.ResourceGrant) model.ResourceGrant {
	return model.ResourceGrant{
		Time:     g.Time,
		Tick:     g.Tick,
		ZoneID:   string(g.Zone),
		Team:     int(g.Team),
		Resource: string(g.Resource),
		Amount:   g.Amount,
	}
}

func CoreToClaimZoneEvent(ev core.ClaimZoneEvent) model.ClaimZoneEvent {
	return model.ClaimZoneEvent{
		Time:    ev.Time,
		Tick:    ev.Tick,
		ZoneID:  string(ev.Zone),
		ClaimID: string(ev.Claim),
		Team:    int(ev.Team),
		Entered: ev.Entered,
	}
}

func CoreToZoneSnapshot(s core.ZoneSnapshot) model.ZoneSnapshot {
	return model.ZoneSnapshot{
		Time:          s.At,
		Tick:          s.Tick,
		ZoneID:        string(s.Zone),
		State:         uint8(s.State),
		OwningTeam:    int(s.OwningTeam),
		CapturingTeam: int(s.CapturingTeam),
		Progress:      s.Progress,
	}
}

func CoreToCapturePerformance(p core.TickPerformance) model.CapturePerformance {
	return model.CapturePerformance{
		Time:          p.Time,
		Tick:          p.Tick,
		Zones:         p.Zones,
		Units:         p.Units,
		PendingTasks:  p.PendingTasks,
		LastExecuteMs: p.LastExecuteMs,
	}
}
