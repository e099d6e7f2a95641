// Package spatial turns the live unit population into per-zone team counts.
package spatial

import (
	"runtime"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/sourcegraph/conc/pool"

	"github.com/rtsforge/capturepoint/pkg/core"
)

// DefaultParallelThreshold is the unit count above which CountZones splits work.
const DefaultParallelThreshold = 2048

// Counts maps a team to the number of its units inside a zone.
type Counts = map[core.TeamID]int

// Tables holds one Counts per zone.
type Tables map[core.ZoneID]Counts

// Target is a zone as the aggregator sees it.
type Target struct {
	Zone     core.ZoneID
	Location core.Vec3
	Radius   float64
}

// Eligible reports whether u may contribute to capture. Dead units, units
// without a team, worker and extractor roles and capture-point actors never
// count; the optional filter decides the rest.
func Eligible(u core.Unit, filter Filter) bool {
	if !u.Alive || u.IsCapturePoint || u.Role.Excluded() || !u.Team.Valid() {
		return false
	}
	return filter == nil || filter.Allow(u)
}

// Snapshot copies the units that are Eligible.
func Snapshot(units []core.Unit, filter Filter) []core.UnitSnapshot {
	out := make([]core.UnitSnapshot, 0, len(units))
	for _, u := range units {
		if Eligible(u, filter) {
			out = append(out, core.UnitSnapshot{Location: u.Location, Team: u.Team})
		}
	}
	return out
}

// Count buckets the units within radius of center by team. Distance is planar
// and compared squared, so no square root is taken.
func Count(units []core.UnitSnapshot, center core.Vec3, radius float64) Counts {
	counts := Counts{}
	countInto(counts, units, center, radius*radius)
	return counts
}

func countInto(counts Counts, units []core.UnitSnapshot, center core.Vec3, radiusSq float64) {
	c := geom.XY{X: center.X, Y: center.Y}
	for _, u := range units {
		d := geom.XY{X: u.Location.X, Y: u.Location.Y}.Sub(c)
		if d.Dot(d) <= radiusSq {
			counts[u.Team]++
		}
	}
}

// Dominant returns the team with the strictly greatest count and that count.
// A tie for the maximum, or no units at all, yields core.NoTeam; max is still
// reported so callers can tell a tie from an empty zone. Entries for invalid
// teams are ignored.
func Dominant(counts Counts) (team core.TeamID, max int) {
	team = core.NoTeam
	tied := false
	for t, n := range counts {
		if !t.Valid() {
			continue
		}
		switch {
		case n > max:
			max = n
			team = t
			tied = false
		case n == max && n > 0:
			tied = true
		}
	}
	if tied {
		return core.NoTeam, max
	}
	return team, max
}

// Present returns how many valid teams have at least one unit in the table.
func Present(counts Counts) int {
	n := 0
	for t, c := range counts {
		if c > 0 && t.Valid() {
			n++
		}
	}
	return n
}

// Aggregator counts units against many zones, optionally in parallel.
type Aggregator struct {
	// ParallelThreshold is the unit count at which work is split across
	// goroutines. Zero uses DefaultParallelThreshold, negative disables splitting.
	ParallelThreshold int
	// Workers caps the goroutines used. Zero means GOMAXPROCS.
	Workers int
}

// CountZones builds a table for every target. Every target gets an entry, even
// when empty. The result does not depend on whether the work was split.
func (a Aggregator) CountZones(units []core.UnitSnapshot, targets []Target) Tables {
	threshold := a.ParallelThreshold
	if threshold == 0 {
		threshold = DefaultParallelThreshold
	}
	workers := a.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	if threshold < 0 || len(units) < threshold || workers < 2 {
		return countChunk(units, targets)
	}

	chunkSize := (len(units) + workers - 1) / workers
	p := pool.NewWithResults[Tables]().WithMaxGoroutines(workers)
	for start := 0; start < len(units); start += chunkSize {
		chunk := units[start:min(start+chunkSize, len(units))]
		p.Go(func() Tables {
			return countChunk(chunk, targets)
		})
	}

	merged := emptyTables(targets)
	for _, partial := range p.Wait() {
		for zone, counts := range partial {
			dst := merged[zone]
			for team, n := range counts {
				dst[team] += n
			}
		}
	}
	return merged
}

func countChunk(units []core.UnitSnapshot, targets []Target) Tables {
	tables := emptyTables(targets)
	for _, t := range targets {
		countInto(tables[t.Zone], units, t.Location, t.Radius*t.Radius)
	}
	return tables
}

func emptyTables(targets []Target) Tables {
	tables := make(Tables, len(targets))
	for _, t := range targets {
		tables[t.Zone] = Counts{}
	}
	return tables
}
