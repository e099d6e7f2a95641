// Package events turns capture transitions into listener callbacks. Every
// callback carries a value snapshot and runs on the authoritative loop, after
// the tick that produced it.
package events

import (
	"github.com/rtsforge/capturepoint/pkg/core"
)

// Listener receives the capture notifications every consumer cares about.
type Listener interface {
	OnOwnershipChanged(ev core.OwnershipChange)
	OnCaptureProgressUpdated(ev core.ProgressUpdate)
	OnWorkAreaEntered(ev core.ClaimZoneEvent)
	OnWorkAreaExited(ev core.ClaimZoneEvent)
}

// EdgeListener is implemented by listeners that want the state-entry events of
// always-ticking points.
type EdgeListener interface {
	OnCaptureStarted(zone core.ZoneID, team core.TeamID)
	OnCaptureCompleted(zone core.ZoneID, team core.TeamID)
	OnCaptureContested(zone core.ZoneID)
	OnCaptureLost(zone core.ZoneID, previous core.TeamID)
}

// GrantListener is implemented by listeners that record resource payouts.
type GrantListener interface {
	OnResourceGranted(grant core.ResourceGrant)
}

// SnapshotListener is implemented by listeners that record every published
// zone snapshot, such as storage backends.
type SnapshotListener interface {
	OnZoneSnapshots(snapshots []core.ZoneSnapshot)
}

// PingListener plays the ping effect on a zone.
type PingListener interface {
	OnPing(zone core.ZoneID)
}

// Snapper owns the snapped flag of work areas. A work area leaving a captured
// zone is unsnapped if it was snapped.
type Snapper interface {
	IsWorkAreaSnapped(claim core.ClaimZoneID) bool
	UnsnapWorkArea(claim core.ClaimZoneID)
}

// NopListener implements Listener with no-ops. Embed it to handle a subset.
type NopListener struct{}

func (NopListener) OnOwnershipChanged(core.OwnershipChange)      {}
func (NopListener) OnCaptureProgressUpdated(core.ProgressUpdate) {}
func (NopListener) OnWorkAreaEntered(core.ClaimZoneEvent)        {}
func (NopListener) OnWorkAreaExited(core.ClaimZoneEvent)         {}
