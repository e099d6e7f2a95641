// pkg/core/events.go
package core

import (
	"time"
)

// OwnershipChange records a zone changing hands, including losses to neutral.
type OwnershipChange struct {
	Zone     ZoneID    `json:"zone"`
	Time     time.Time `json:"time"`
	Tick     uint64    `json:"tick"`
	OldTeam  TeamID    `json:"oldTeam"`
	NewTeam  TeamID    `json:"newTeam"`
	Progress float64   `json:"progress"`
}

// ProgressUpdate is a throttled progress report for a zone.
type ProgressUpdate struct {
	Zone         ZoneID         `json:"zone"`
	Time         time.Time      `json:"time"`
	Tick         uint64         `json:"tick"`
	DominantTeam TeamID         `json:"dominantTeam"`
	Progress     float64        `json:"progress"`
	TeamCounts   map[TeamID]int `json:"teamCounts"`
}

// ResourceGrant is one payout from a captured zone to its owner.
type ResourceGrant struct {
	Zone     ZoneID       `json:"zone"`
	Time     time.Time    `json:"time"`
	Tick     uint64       `json:"tick"`
	Team     TeamID       `json:"team"`
	Resource ResourceType `json:"resource"`
	Amount   float64      `json:"amount"`
}

// ClaimZoneEvent records a claim zone entering or leaving a captured zone's radius.
type ClaimZoneEvent struct {
	Zone    ZoneID      `json:"zone"`
	Claim   ClaimZoneID `json:"claim"`
	Time    time.Time   `json:"time"`
	Tick    uint64      `json:"tick"`
	Team    TeamID      `json:"team"`
	Entered bool        `json:"entered"`
}

// TickPerformance is sampled by the monitor.
type TickPerformance struct {
	Time          time.Time `json:"time"`
	Tick          uint64    `json:"tick"`
	Zones         int       `json:"zones"`
	Units         int       `json:"units"`
	PendingTasks  int       `json:"pendingTasks"`
	LastExecuteMs float32   `json:"lastExecuteMs"`
}

// EdgeKind names a state-entry event of the always-ticking point.
type EdgeKind uint8

const (
	EdgeStarted EdgeKind = iota + 1
	EdgeCompleted
	EdgeContested
	EdgeLost
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeStarted:
		return "started"
	case EdgeCompleted:
		return "completed"
	case EdgeContested:
		return "contested"
	case EdgeLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Edge fires once on the tick a state is entered. Team is the capturing team
// for started/completed and the previous owner for lost.
type Edge struct {
	Zone ZoneID
	Kind EdgeKind
	Team TeamID
}
