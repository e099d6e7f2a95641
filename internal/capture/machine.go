// Package capture implements the batched capture state machine: one pure update
// per zone per processor interval, driven by a team-count table.
package capture

import (
	"maps"
	"math"

	"github.com/rtsforge/capturepoint/internal/spatial"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// ProgressEpsilon is the smallest progress change worth reporting.
const ProgressEpsilon = 0.001

// snapEpsilon absorbs float drift when progress lands next to a bound.
const snapEpsilon = 1e-9

// Rules are the per-zone tuning values resolved for one update.
type Rules struct {
	// CaptureTime is seconds for an uncontested capture from 0 to 1. It also
	// sets the idle decay and recovery rate.
	CaptureTime float64
	// NeutralizeTime is seconds for an enemy to drive an owned zone from 1 to 0.
	NeutralizeTime float64
	// MinUnitsToCapture is the presence a dominant team needs to make progress.
	MinUnitsToCapture int
	// LegoTowerBuilt freezes neutralization while set.
	LegoTowerBuilt bool
}

// RulesFor resolves the rules for a zone, applying the fallbacks for
// non-positive capture and recapture times.
func RulesFor(cfg core.ZoneConfig, defaultCaptureTime float64, minUnits int, legoTowerBuilt bool) Rules {
	return Rules{
		CaptureTime:       cfg.EffectiveCaptureTime(defaultCaptureTime),
		NeutralizeTime:    cfg.NeutralizeTime(defaultCaptureTime),
		MinUnitsToCapture: minUnits,
		LegoTowerBuilt:    legoTowerBuilt,
	}
}

// Transition describes one update. Old and New are independent copies.
type Transition struct {
	Old         core.ZoneStatus
	New         core.ZoneStatus
	UnitsNearby bool
}

// OwnerChanged reports whether the owning team differs across the update.
func (t Transition) OwnerChanged() bool {
	return t.Old.OwningTeam != t.New.OwningTeam
}

// ProgressChanged reports a progress move larger than ProgressEpsilon.
func (t Transition) ProgressChanged() bool {
	return math.Abs(t.New.Progress-t.Old.Progress) > ProgressEpsilon
}

// ShouldReportProgress is the throttle for progress-updated notifications.
func (t Transition) ShouldReportProgress() bool {
	return t.UnitsNearby || t.OwnerChanged() || t.ProgressChanged()
}

// Advance applies one update of dt seconds to s using counts, and returns the
// transition. s.TeamCounts is replaced by a copy of counts.
func Advance(s *core.ZoneStatus, counts spatial.Counts, dt float64, r Rules) Transition {
	old := copyStatus(*s)

	if dt < 0 {
		dt = 0
	}
	s.TeamCounts = maps.Clone(counts)
	if s.TeamCounts == nil {
		s.TeamCounts = spatial.Counts{}
	}

	dominant, top := spatial.Dominant(counts)
	present := spatial.Present(counts)
	s.DominantTeam = dominant

	minUnits := max(r.MinUnitsToCapture, 1)

	switch {
	case present > 1 && !dominant.Valid():
		s.State = core.StateContested

	case dominant.Valid() && top >= minUnits:
		advanceDominant(s, dominant, dt, r)

	default:
		settleIdle(s, dt, r)
	}

	s.Progress = Clamp(s.Progress)

	return Transition{
		Old:         old,
		New:         copyStatus(*s),
		UnitsNearby: present > 0,
	}
}

func advanceDominant(s *core.ZoneStatus, dominant core.TeamID, dt float64, r Rules) {
	switch {
	case !s.OwningTeam.Valid():
		s.CapturingTeam = dominant
		s.Progress = Clamp(s.Progress + step(dt, r.CaptureTime))
		if s.Progress >= 1 {
			s.OwningTeam = dominant
			s.Progress = 1
			s.CapturingTeam = core.NoTeam
			s.State = core.StateOwned
			return
		}
		s.State = core.StateCapturing

	case s.OwningTeam == dominant:
		s.Progress = Clamp(s.Progress + step(dt, r.CaptureTime))
		s.CapturingTeam = core.NoTeam
		s.State = core.StateOwned

	default:
		if r.LegoTowerBuilt {
			// the owner keeps the zone and progress stays where it is
			s.CapturingTeam = core.NoTeam
			s.State = core.StateOwned
			return
		}
		s.CapturingTeam = dominant
		s.State = core.StateCapturing
		s.Progress = Clamp(s.Progress - step(dt, r.NeutralizeTime))
		if s.Progress <= 0 {
			s.Progress = 0
			s.OwningTeam = core.NoTeam
			s.State = core.StateNeutral
		}
	}
}

// settleIdle moves a zone nobody qualifies for back to a definite state.
func settleIdle(s *core.ZoneStatus, dt float64, r Rules) {
	rate := step(dt, r.CaptureTime)
	if !s.OwningTeam.Valid() {
		s.Progress = Clamp(s.Progress - rate)
		if s.Progress <= 0 {
			s.Progress = 0
			s.CapturingTeam = core.NoTeam
		}
		s.State = core.StateNeutral
		return
	}
	s.Progress = Clamp(s.Progress + rate)
	s.CapturingTeam = core.NoTeam
	s.State = core.StateOwned
}

// step converts elapsed seconds into a progress fraction. A non-positive
// duration completes immediately.
func step(dt, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	return dt / duration
}

// Clamp bounds progress to [0,1], snapping values within float drift of a
// bound onto it.
func Clamp(p float64) float64 {
	switch {
	case math.IsNaN(p), p < snapEpsilon:
		return 0
	case p > 1-snapEpsilon:
		return 1
	default:
		return p
	}
}

func copyStatus(s core.ZoneStatus) core.ZoneStatus {
	s.TeamCounts = maps.Clone(s.TeamCounts)
	return s
}
