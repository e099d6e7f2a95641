package v1

import (
	"sort"
	"time"

	"github.com/rtsforge/capturepoint/pkg/core"
)

// MatchData contains all the data needed to build an export
type MatchData struct {
	Match       *core.Match
	EndTime     time.Time
	Zones       map[core.ZoneID]*ZoneRecord
	Performance []core.TickPerformance
}

// ZoneRecord groups a zone with everything recorded for it. Config is nil
// for zones only known through their events.
type ZoneRecord struct {
	Config    *core.ZoneConfig
	Ownership []core.OwnershipChange
	Progress  []core.ProgressUpdate
	Claims    []core.ClaimZoneEvent
	Grants    []core.ResourceGrant
	Last      *core.ZoneSnapshot
}

// Build creates an Export from the match data
func Build(data *MatchData) Export {
	export := Export{
		Version:     FormatVersion,
		Zones:       make([]Zone, 0, len(data.Zones)),
		Income:      make([]Income, 0),
		Performance: make([][]any, 0, len(data.Performance)),
	}

	if m := data.Match; m != nil {
		export.ExtensionVersion = m.ExtensionVersion
		export.ExtensionBuild = m.ExtensionBuild
		export.MatchName = m.MatchName
		export.MapName = m.MapName
		export.Mode = string(m.Mode)
		export.StartTime = m.StartTime.UTC().Format(time.RFC3339)
		if !data.EndTime.IsZero() {
			export.EndTime = data.EndTime.UTC().Format(time.RFC3339)
			export.Duration = data.EndTime.Sub(m.StartTime).Seconds()
		}
	}

	ids := make([]core.ZoneID, 0, len(data.Zones))
	for id := range data.Zones {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	type incomeKey struct {
		team     core.TeamID
		resource core.ResourceType
	}
	totals := make(map[incomeKey]float64)

	var endTick uint64
	seen := func(tick uint64) {
		if tick > endTick {
			endTick = tick
		}
	}

	for _, id := range ids {
		record := data.Zones[id]
		zone := Zone{
			ID:         string(id),
			FinalOwner: int(core.NoTeam),
			Ownership:  make([][]any, 0, len(record.Ownership)),
			Progress:   make([][]any, 0, len(record.Progress)),
			Claims:     make([][]any, 0, len(record.Claims)),
			Grants:     make([][]any, 0, len(record.Grants)),
		}
		if cfg := record.Config; cfg != nil {
			zone.Location = [3]float64{cfg.Location.X, cfg.Location.Y, cfg.Location.Z}
			zone.CaptureRadius = cfg.CaptureRadius
			zone.StartRadius = cfg.StartRadius
			zone.Tag = cfg.Tag
		}

		for _, ev := range record.Ownership {
			zone.Ownership = append(zone.Ownership, []any{ev.Tick, int(ev.OldTeam), int(ev.NewTeam)})
			zone.FinalOwner = int(ev.NewTeam)
			seen(ev.Tick)
		}
		for _, ev := range record.Progress {
			zone.Progress = append(zone.Progress, []any{ev.Tick, int(ev.DominantTeam), ev.Progress})
			zone.FinalProgress = ev.Progress
			seen(ev.Tick)
		}
		for _, ev := range record.Claims {
			zone.Claims = append(zone.Claims, []any{ev.Tick, string(ev.Claim), int(ev.Team), boolToInt(ev.Entered)})
			seen(ev.Tick)
		}
		for _, g := range record.Grants {
			zone.Grants = append(zone.Grants, []any{g.Tick, int(g.Team), string(g.Resource), g.Amount})
			totals[incomeKey{g.Team, g.Resource}] += g.Amount
			seen(g.Tick)
		}

		// The last published snapshot is authoritative for the final state.
		if last := record.Last; last != nil {
			zone.FinalOwner = int(last.OwningTeam)
			zone.FinalProgress = last.Progress
			seen(last.Tick)
		}

		export.Zones = append(export.Zones, zone)
	}

	for key, total := range totals {
		export.Income = append(export.Income, Income{Team: int(key.team), Resource: string(key.resource), Total: total})
	}
	sort.Slice(export.Income, func(i, j int) bool {
		if export.Income[i].Team != export.Income[j].Team {
			return export.Income[i].Team < export.Income[j].Team
		}
		return export.Income[i].Resource < export.Income[j].Resource
	})

	for _, p := range data.Performance {
		export.Performance = append(export.Performance, []any{p.Tick, p.Zones, p.Units, p.PendingTasks, p.LastExecuteMs})
		seen(p.Tick)
	}

	export.EndTick = endTick
	return export
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
