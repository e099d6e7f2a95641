// Package income tracks what a fully captured zone pays out: the claim zones
// (work areas) sitting inside it and the periodic resource grants to its owner.
package income

import (
	"sort"

	"github.com/rtsforge/capturepoint/pkg/core"
)

// ClaimZoneSource answers radius queries for claim zones.
type ClaimZoneSource interface {
	ClaimZonesWithin(center core.Vec3, radius float64) []core.ClaimZone
}

// ClaimTracker remembers which claim zones were inside each captured zone on
// the previous pass.
type ClaimTracker struct {
	inside map[core.ZoneID]map[core.ClaimZoneID]core.ClaimZone
}

func NewClaimTracker() *ClaimTracker {
	return &ClaimTracker{inside: make(map[core.ZoneID]map[core.ClaimZoneID]core.ClaimZone)}
}

// Update diffs the claim zones within cfg.CaptureRadius that belong to owner
// and carry the zone's tag against the previous pass. A zone that is not
// captured has its set cleared without producing exits.
func (t *ClaimTracker) Update(zone core.ZoneID, owner core.TeamID, captured bool, cfg core.ZoneConfig, source ClaimZoneSource) (entered, exited []core.ClaimZone) {
	if !captured || !owner.Valid() || source == nil {
		delete(t.inside, zone)
		return nil, nil
	}

	current := make(map[core.ClaimZoneID]core.ClaimZone)
	for _, cz := range source.ClaimZonesWithin(cfg.Location, cfg.CaptureRadius) {
		if cz.Team != owner || !cfg.MatchesTag(cz.Tag) {
			continue
		}
		current[cz.ID] = cz
	}

	previous := t.inside[zone]
	for id, cz := range current {
		if _, ok := previous[id]; !ok {
			entered = append(entered, cz)
		}
	}
	for id, cz := range previous {
		if _, ok := current[id]; !ok {
			exited = append(exited, cz)
		}
	}
	t.inside[zone] = current

	sortClaims(entered)
	sortClaims(exited)
	return entered, exited
}

// Inside returns the claim zones currently tracked for zone, sorted by id.
func (t *ClaimTracker) Inside(zone core.ZoneID) []core.ClaimZone {
	out := make([]core.ClaimZone, 0, len(t.inside[zone]))
	for _, cz := range t.inside[zone] {
		out = append(out, cz)
	}
	sortClaims(out)
	return out
}

// Forget drops all state for a deregistered zone.
func (t *ClaimTracker) Forget(zone core.ZoneID) {
	delete(t.inside, zone)
}

func sortClaims(claims []core.ClaimZone) {
	sort.Slice(claims, func(i, j int) bool { return claims[i].ID < claims[j].ID })
}
