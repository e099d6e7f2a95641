// Package memory keeps a match in memory and exports it as JSON when the
// match ends.
package memory

import (
	"sync"
	"time"

	"github.com/rtsforge/capturepoint/internal/config"
	"github.com/rtsforge/capturepoint/internal/events"
	v1 "github.com/rtsforge/capturepoint/internal/storage/memory/export/v1"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// Backend stores match data in memory and exports to JSON
type Backend struct {
	events.NopListener

	cfg     config.MemoryConfig
	match   *core.Match
	endTime time.Time

	zones       map[core.ZoneID]*v1.ZoneRecord
	performance []core.TickPerformance

	lastExportPath     string
	lastExportMetadata core.ExportMetadata

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		zones: make(map[core.ZoneID]*v1.ZoneRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartMatch begins recording a new match
func (b *Backend) StartMatch(m *core.Match) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	match := *m
	b.match = &match
	b.endTime = time.Time{}
	b.zones = make(map[core.ZoneID]*v1.ZoneRecord)
	b.performance = nil
	return nil
}

// EndMatch finalizes and exports the match data
func (b *Backend) EndMatch() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.match == nil {
		return errNoMatch
	}
	b.endTime = time.Now().UTC()
	return b.exportJSON()
}

// zone returns the record for id, creating it. Callers hold mu.
func (b *Backend) zone(id core.ZoneID) *v1.ZoneRecord {
	record, ok := b.zones[id]
	if !ok {
		record = &v1.ZoneRecord{}
		b.zones[id] = record
	}
	return record
}

// RecordZone stores the zone definition.
func (b *Backend) RecordZone(id core.ZoneID, cfg core.ZoneConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.zone(id).Config = &cfg
	return nil
}

// GetZone returns the recorded zone, if any.
func (b *Backend) GetZone(id core.ZoneID) (*v1.ZoneRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	record, ok := b.zones[id]
	return record, ok
}

func (b *Backend) OnOwnershipChanged(ev core.OwnershipChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record := b.zone(ev.Zone)
	record.Ownership = append(record.Ownership, ev)
}

func (b *Backend) OnCaptureProgressUpdated(ev core.ProgressUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record := b.zone(ev.Zone)
	record.Progress = append(record.Progress, ev)
}

func (b *Backend) OnWorkAreaEntered(ev core.ClaimZoneEvent) { b.recordClaim(ev) }
func (b *Backend) OnWorkAreaExited(ev core.ClaimZoneEvent)  { b.recordClaim(ev) }

func (b *Backend) recordClaim(ev core.ClaimZoneEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record := b.zone(ev.Zone)
	record.Claims = append(record.Claims, ev)
}

func (b *Backend) OnResourceGranted(g core.ResourceGrant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record := b.zone(g.Zone)
	record.Grants = append(record.Grants, g)
}

// OnZoneSnapshots keeps only the latest snapshot of each zone.
func (b *Backend) OnZoneSnapshots(snaps []core.ZoneSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range snaps {
		snap := snaps[i]
		b.zone(snap.Zone).Last = &snap
	}
}

// RecordTickPerformance records a performance sample
func (b *Backend) RecordTickPerformance(p core.TickPerformance) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.performance = append(b.performance, p)
	return nil
}
