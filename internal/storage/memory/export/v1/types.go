// Package v1 contains the v1 export format for recorded matches.
package v1

// FormatVersion is written into every export.
const FormatVersion = "1"

// Export is the root JSON structure for v1 format
type Export struct {
	Version          string  `json:"version"`
	ExtensionVersion string  `json:"extensionVersion"`
	ExtensionBuild   string  `json:"extensionBuild"`
	MatchName        string  `json:"matchName"`
	MapName          string  `json:"mapName"`
	Mode             string  `json:"mode"`
	StartTime        string  `json:"startTime"`
	EndTime          string  `json:"endTime"`
	Duration         float64 `json:"duration"`
	EndTick          uint64  `json:"endTick"`
	Zones            []Zone  `json:"zones"`
	// Income holds the payout totals per team and resource.
	Income []Income `json:"income"`
	// Performance rows: [tick, zones, units, pendingTasks, lastExecuteMs]
	Performance [][]any `json:"performance"`
}

// Zone is one capture zone with its timelines. Timeline rows are compact
// arrays keyed by tick:
//
//	ownership: [tick, oldTeam, newTeam]
//	progress:  [tick, dominantTeam, progress]
//	claims:    [tick, claimId, team, entered]
//	grants:    [tick, team, resource, amount]
type Zone struct {
	ID            string     `json:"id"`
	Location      [3]float64 `json:"location"`
	CaptureRadius float64    `json:"captureRadius"`
	StartRadius   float64    `json:"startRadius"`
	Tag           string     `json:"tag,omitempty"`
	FinalOwner    int        `json:"finalOwner"`
	FinalProgress float64    `json:"finalProgress"`
	Ownership     [][]any    `json:"ownership"`
	Progress      [][]any    `json:"progress"`
	Claims        [][]any    `json:"claims"`
	Grants        [][]any    `json:"grants"`
}

// Income is a team's total of one resource over the match.
type Income struct {
	Team     int     `json:"team"`
	Resource string  `json:"resource"`
	Total    float64 `json:"total"`
}
