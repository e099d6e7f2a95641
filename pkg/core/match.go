// pkg/core/match.go
package core

import "time"

// Mode selects which side of the replication boundary a process runs on.
type Mode string

const (
	// ModeAuthority computes capture state and owns the truth.
	ModeAuthority Mode = "authority"
	// ModeObserver only mirrors replicated snapshots.
	ModeObserver Mode = "observer"
)

// Match is one recorded game session on a map.
type Match struct {
	ID               uint      `json:"id"`
	MatchName        string    `json:"matchName"`
	MapName          string    `json:"mapName"`
	Mode             Mode      `json:"mode"`
	StartTime        time.Time `json:"startTime"`
	ExtensionVersion string    `json:"extensionVersion"`
	ExtensionBuild   string    `json:"extensionBuild"`
}

// ExportMetadata describes a finished match export.
type ExportMetadata struct {
	MapName       string
	MatchName     string
	MatchDuration float64
	Zones         int
	Ownerships    int
}
