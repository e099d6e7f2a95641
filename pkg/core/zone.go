// pkg/core/zone.go
package core

import (
	"strings"
	"time"
)

// NoTeam marks the absence of an owning, capturing or dominant team.
const NoTeam TeamID = -1

// DefaultTag is the claim-zone tag a capture point accepts when none is configured.
const DefaultTag = "CapturePoint"

// TeamID identifies a team. Negative values mean "no team".
type TeamID int

// Valid reports whether the id names a real team.
func (t TeamID) Valid() bool {
	return t >= 0
}

// ZoneID is the opaque, stable handle of a capture zone.
type ZoneID string

// ResourceType names an economy resource.
type ResourceType string

// ResourcePrimary is the resource the always-ticking point pays out.
const ResourcePrimary ResourceType = "primary"

// ZoneConfig is fixed once a zone is spawned.
type ZoneConfig struct {
	Location Vec3 `json:"location" yaml:"location"`

	// CaptureRadius bounds the claim-zone search of a captured zone.
	CaptureRadius float64 `json:"captureRadius" yaml:"captureRadius"`
	// StartRadius bounds unit aggregation. It need not equal CaptureRadius.
	StartRadius float64 `json:"startRadius" yaml:"startRadius"`

	CaptureTime   float64 `json:"captureTime" yaml:"captureTime"`
	RecaptureTime float64 `json:"recaptureTime" yaml:"recaptureTime"`

	MaxCapturingUnits int     `json:"maxCapturingUnits" yaml:"maxCapturingUnits"`
	MultiUnitBonus    float64 `json:"multiUnitBonus" yaml:"multiUnitBonus"`

	ResourceGenerationInterval float64        `json:"resourceGenerationInterval" yaml:"resourceGenerationInterval"`
	ResourceTypes              []ResourceType `json:"resourceTypes" yaml:"resourceTypes"`
	ResourceAmounts            []float64      `json:"resourceAmounts" yaml:"resourceAmounts"`

	Tag string `json:"tag" yaml:"tag"`

	IncomeInterval time.Duration `json:"incomeInterval" yaml:"incomeInterval"`
	IncomeAmount   float64       `json:"incomeAmount" yaml:"incomeAmount"`
}

// EffectiveCaptureTime returns CaptureTime, or fallback when it is not positive.
func (c ZoneConfig) EffectiveCaptureTime(fallback float64) float64 {
	if c.CaptureTime > 0 {
		return c.CaptureTime
	}
	return fallback
}

// NeutralizeTime returns RecaptureTime, falling back to the effective capture time.
func (c ZoneConfig) NeutralizeTime(fallback float64) float64 {
	if c.RecaptureTime > 0 {
		return c.RecaptureTime
	}
	return c.EffectiveCaptureTime(fallback)
}

// ResourcePairs returns the paired type/amount entries. Excess entries on either
// side are ignored.
func (c ZoneConfig) ResourcePairs() int {
	return min(len(c.ResourceTypes), len(c.ResourceAmounts))
}

// MatchesTag compares a claim-zone tag against the zone's tag, ignoring case.
func (c ZoneConfig) MatchesTag(tag string) bool {
	want := c.Tag
	if want == "" {
		want = DefaultTag
	}
	return strings.EqualFold(want, tag)
}

// ZoneHandle is a registered zone as the processor sees it. Config and the
// tower flag are read live so host overrides take effect on the next pass.
type ZoneHandle interface {
	ID() ZoneID
	Config() ZoneConfig
	LegoTowerBuilt() bool
}

// CaptureState is the display state of a zone.
type CaptureState uint8

const (
	StateNeutral CaptureState = iota
	StateCapturing
	StateContested
	StateOwned
)

func (s CaptureState) String() string {
	switch s {
	case StateNeutral:
		return "neutral"
	case StateCapturing:
		return "capturing"
	case StateContested:
		return "contested"
	case StateOwned:
		return "owned"
	default:
		return "unknown"
	}
}

// ZoneStatus is the mutable state the authoritative side keeps per zone.
type ZoneStatus struct {
	State         CaptureState
	OwningTeam    TeamID
	CapturingTeam TeamID
	Progress      float64
	DominantTeam  TeamID
	TeamCounts    map[TeamID]int

	TimeSinceResourceTick float64
	LegoTowerBuilt        bool
}

// NewZoneStatus returns the initial Neutral state.
func NewZoneStatus() ZoneStatus {
	return ZoneStatus{
		State:         StateNeutral,
		OwningTeam:    NoTeam,
		CapturingTeam: NoTeam,
		DominantTeam:  NoTeam,
		TeamCounts:    map[TeamID]int{},
	}
}

// Captured reports whether the zone is owned and fully captured.
func (s ZoneStatus) Captured() bool {
	return s.OwningTeam.Valid() && s.Progress >= 1
}

// Snapshot copies the replicated fields.
func (s ZoneStatus) Snapshot(zone ZoneID, captureTime float64) ZoneSnapshot {
	return ZoneSnapshot{
		Zone:          zone,
		State:         s.State,
		OwningTeam:    s.OwningTeam,
		Progress:      s.Progress,
		CapturingTeam: s.CapturingTeam,
		CaptureTime:   captureTime,
	}
}

// ZoneSnapshot is the read-only view pushed to observers.
type ZoneSnapshot struct {
	Zone          ZoneID       `json:"zone"`
	State         CaptureState `json:"state"`
	OwningTeam    TeamID       `json:"owningTeam"`
	Progress      float64      `json:"progress"`
	CapturingTeam TeamID       `json:"capturingTeam"`
	CaptureTime   float64      `json:"captureTime"`
	Tick          uint64       `json:"tick"`
	At            time.Time    `json:"at"`
}

// Captured mirrors ZoneStatus.Captured for observers.
func (s ZoneSnapshot) Captured() bool {
	return s.OwningTeam.Valid() && s.Progress >= 1
}
