// Package world is the host-side model the capture core reads from: live units,
// registered capture zones, claim zones and the resource ledger.
//
// Handlers mutate it on the authoritative loop; the processor and observers read
// it. It satisfies the unit, zone, claim-zone and economy interfaces.
package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/peterstace/simplefeatures/rtree"
	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/sasha-s/go-deadlock"
)

// ErrUnknownZone is returned for operations on a zone that is not registered.
var ErrUnknownZone = errors.New("unknown zone")

// Zone is a live view of a registered capture zone. Reads go through the
// world lock, so a handle picked up at discovery sees later tower changes and
// knows when it was removed.
type Zone struct {
	w *World

	id      core.ZoneID
	cfg     core.ZoneConfig
	tower   bool
	pinged  int
	removed bool
}

func (z *Zone) ID() core.ZoneID { return z.id }

func (z *Zone) Config() core.ZoneConfig {
	z.w.mu.RLock()
	defer z.w.mu.RUnlock()
	return z.cfg
}

func (z *Zone) LegoTowerBuilt() bool {
	z.w.mu.RLock()
	defer z.w.mu.RUnlock()
	return z.tower
}

func (z *Zone) Pings() int {
	z.w.mu.RLock()
	defer z.w.mu.RUnlock()
	return z.pinged
}

// Removed reports whether the zone was deregistered after this handle was taken.
func (z *Zone) Removed() bool {
	z.w.mu.RLock()
	defer z.w.mu.RUnlock()
	return z.removed
}

// World stores everything the host reports.
type World struct {
	mu deadlock.RWMutex

	units  map[core.UnitID]core.Unit
	zones  map[core.ZoneID]*Zone
	claims map[core.ClaimZoneID]core.ClaimZone

	snapped map[core.ClaimZoneID]bool

	claimIndex *rtree.RTree
	claimIDs   []core.ClaimZoneID
	claimDirty bool

	ledger map[core.TeamID]map[core.ResourceType]float64

	// version increments on zone registration changes so the processor knows
	// to rediscover.
	version uint64
}

func New() *World {
	return &World{
		units:   make(map[core.UnitID]core.Unit),
		zones:   make(map[core.ZoneID]*Zone),
		claims:  make(map[core.ClaimZoneID]core.ClaimZone),
		snapped: make(map[core.ClaimZoneID]bool),
		ledger:  make(map[core.TeamID]map[core.ResourceType]float64),
	}
}

// Reset clears everything, as at the start of a new match.
func (w *World) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, z := range w.zones {
		z.removed = true
	}
	w.units = make(map[core.UnitID]core.Unit)
	w.zones = make(map[core.ZoneID]*Zone)
	w.claims = make(map[core.ClaimZoneID]core.ClaimZone)
	w.snapped = make(map[core.ClaimZoneID]bool)
	w.ledger = make(map[core.TeamID]map[core.ResourceType]float64)
	w.claimIndex = nil
	w.claimIDs = nil
	w.claimDirty = false
	w.version++
}

// Units

func (w *World) UpsertUnit(u core.Unit) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.units[u.ID] = u
}

func (w *World) RemoveUnit(id core.UnitID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.units, id)
}

// Units returns a copy of every live record, sorted by id.
func (w *World) Units() []core.Unit {
	w.mu.RLock()
	out := make([]core.Unit, 0, len(w.units))
	for _, u := range w.units {
		out = append(out, u)
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnitAlive reports whether a unit is known and alive.
func (w *World) UnitAlive(id core.UnitID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	u, ok := w.units[id]
	return ok && u.Alive
}

// Zones

// RegisterZone adds or replaces a capture zone. Re-registering keeps the tower flag.
func (w *World) RegisterZone(id core.ZoneID, cfg core.ZoneConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if z, ok := w.zones[id]; ok {
		z.cfg = cfg
	} else {
		w.zones[id] = &Zone{w: w, id: id, cfg: cfg}
	}
	w.version++
}

func (w *World) RemoveZone(id core.ZoneID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	z, ok := w.zones[id]
	if !ok {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownZone)
	}
	z.removed = true
	delete(w.zones, id)
	w.version++
	return nil
}

// SetLegoTowerBuilt sets the flag that freezes neutralization of a zone.
func (w *World) SetLegoTowerBuilt(id core.ZoneID, built bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	z, ok := w.zones[id]
	if !ok {
		return fmt.Errorf("tower %s: %w", id, ErrUnknownZone)
	}
	z.tower = built
	return nil
}

// Ping counts a ping against a zone.
func (w *World) Ping(id core.ZoneID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	z, ok := w.zones[id]
	if !ok {
		return fmt.Errorf("ping %s: %w", id, ErrUnknownZone)
	}
	z.pinged++
	return nil
}

// Zones returns every registered zone, sorted by id.
func (w *World) Zones() []core.ZoneHandle {
	w.mu.RLock()
	zones := make([]*Zone, 0, len(w.zones))
	for _, z := range w.zones {
		zones = append(zones, z)
	}
	w.mu.RUnlock()

	sort.Slice(zones, func(i, j int) bool { return zones[i].id < zones[j].id })
	out := make([]core.ZoneHandle, len(zones))
	for i, z := range zones {
		out[i] = z
	}
	return out
}

// Zone looks up one zone.
func (w *World) Zone(id core.ZoneID) (*Zone, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	z, ok := w.zones[id]
	return z, ok
}

// ZoneConfig returns a zone's spawn configuration.
func (w *World) ZoneConfig(id core.ZoneID) (core.ZoneConfig, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	z, ok := w.zones[id]
	if !ok {
		return core.ZoneConfig{}, false
	}
	return z.cfg, true
}

// Version changes whenever the set of zones changes.
func (w *World) Version() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.version
}

// Claim zones

func (w *World) UpsertClaimZone(cz core.ClaimZone) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.claims[cz.ID] = cz
	w.claimDirty = true
}

func (w *World) RemoveClaimZone(id core.ClaimZoneID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.claims, id)
	delete(w.snapped, id)
	w.claimDirty = true
}

// ClaimZonesWithin returns claim zones whose location lies within radius of
// center on the ground plane. The R-tree narrows candidates to the bounding
// square; the exact circle test follows.
func (w *World) ClaimZonesWithin(center core.Vec3, radius float64) []core.ClaimZone {
	if radius < 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rebuildClaimIndex()
	if w.claimIndex == nil {
		return nil
	}

	box := rtree.Box{
		MinX: center.X - radius,
		MinY: center.Y - radius,
		MaxX: center.X + radius,
		MaxY: center.Y + radius,
	}
	radiusSq := radius * radius

	var out []core.ClaimZone
	_ = w.claimIndex.RangeSearch(box, func(recordID int) error {
		cz := w.claims[w.claimIDs[recordID]]
		if core.DistSquared2D(cz.Location, center) <= radiusSq {
			out = append(out, cz)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) rebuildClaimIndex() {
	if !w.claimDirty {
		return
	}
	w.claimDirty = false
	if len(w.claims) == 0 {
		w.claimIndex = nil
		w.claimIDs = nil
		return
	}

	w.claimIDs = w.claimIDs[:0]
	items := make([]rtree.BulkItem, 0, len(w.claims))
	for id, cz := range w.claims {
		items = append(items, rtree.BulkItem{
			Box:      rtree.Box{MinX: cz.Location.X, MinY: cz.Location.Y, MaxX: cz.Location.X, MaxY: cz.Location.Y},
			RecordID: len(w.claimIDs),
		})
		w.claimIDs = append(w.claimIDs, id)
	}
	w.claimIndex = rtree.BulkLoad(items)
}

// SnapWorkArea marks a claim zone as snapped to a capture point.
func (w *World) SnapWorkArea(id core.ClaimZoneID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.claims[id]; ok {
		w.snapped[id] = true
	}
}

func (w *World) IsWorkAreaSnapped(id core.ClaimZoneID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapped[id]
}

func (w *World) UnsnapWorkArea(id core.ClaimZoneID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.snapped, id)
}

// Economy

// ModifyResource adds amount to a team's balance.
func (w *World) ModifyResource(resource core.ResourceType, team core.TeamID, amount float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ledger[team] == nil {
		w.ledger[team] = make(map[core.ResourceType]float64)
	}
	w.ledger[team][resource] += amount
}

// Balance returns a team's balance of one resource.
func (w *World) Balance(team core.TeamID, resource core.ResourceType) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ledger[team][resource]
}

// Balances returns a copy of the whole ledger.
func (w *World) Balances() map[core.TeamID]map[core.ResourceType]float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[core.TeamID]map[core.ResourceType]float64, len(w.ledger))
	for team, res := range w.ledger {
		inner := make(map[core.ResourceType]float64, len(res))
		for k, v := range res {
			inner[k] = v
		}
		out[team] = inner
	}
	return out
}

// Counts reports store sizes for the monitor.
func (w *World) Counts() (units, zones, claims int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.units), len(w.zones), len(w.claims)
}
