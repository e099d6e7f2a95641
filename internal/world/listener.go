package world

import (
	"github.com/rtsforge/capturepoint/internal/events"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// SnapListener keeps the snapped flag of work areas in step with capture
// events: a work area entering a captured zone snaps to it, and the emitter
// unsnaps it on exit.
type SnapListener struct {
	events.NopListener
	World *World
}

func (l SnapListener) OnWorkAreaEntered(ev core.ClaimZoneEvent) {
	l.World.SnapWorkArea(ev.Claim)
}

func (l SnapListener) IsWorkAreaSnapped(claim core.ClaimZoneID) bool {
	return l.World.IsWorkAreaSnapped(claim)
}

func (l SnapListener) UnsnapWorkArea(claim core.ClaimZoneID) {
	l.World.UnsnapWorkArea(claim)
}
