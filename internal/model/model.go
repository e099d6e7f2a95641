package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Map{},
	&Match{},
	&Zone{},
	&OwnershipEvent{},
	&ProgressSample{},
	&ResourceGrant{},
	&ClaimZoneEvent{},
	&ZoneSnapshot{},
	&CapturePerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// CapturePerformance is one row of processor health, written by the monitor
type CapturePerformance struct {
	Time          time.Time `json:"time" gorm:"type:timestamptz;index:idx_perf_time"`
	MatchID       uint      `json:"matchId" gorm:"index:idx_perf_match_id"`
	Match         Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick          uint64    `json:"tick"`
	Zones         int       `json:"zones"`
	Units         int       `json:"units"`
	PendingTasks  int       `json:"pendingTasks"`
	LastExecuteMs float32   `json:"lastExecuteMs"`
}

func (*CapturePerformance) TableName() string {
	return "capture_performances"
}

////////////////////////
// MATCH MODELS
////////////////////////

// Map is a playable map. Matches on the same map share the row.
type Map struct {
	gorm.Model
	MapName string  `json:"mapName" gorm:"size:127;uniqueIndex"`
	Matches []Match `json:"-"`
}

func (*Map) TableName() string {
	return "maps"
}

// GetOrInsert loads the map by name, creating it if missing.
func (m *Map) GetOrInsert(db *gorm.DB) (created bool, err error) {
	var existing Map
	err = db.Where("map_name = ?", m.MapName).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			err = db.Create(m).Error
			return true, err
		}
		return false, err
	}
	*m = existing
	return false, nil
}

// Match is one recorded game session
type Match struct {
	gorm.Model
	MatchName        string       `json:"matchName" gorm:"size:200"`
	Mode             string       `json:"mode" gorm:"size:16"`
	StartTime        time.Time    `json:"matchStart" gorm:"type:timestamptz;index:idx_match_start"`
	EndTime          sql.NullTime `json:"matchEnd" gorm:"type:timestamptz"`
	MapID            uint
	Map              Map    `gorm:"foreignkey:MapID"`
	ExtensionVersion string `json:"extensionVersion" gorm:"size:64;default:1.0.0"`
	ExtensionBuild   string `json:"extensionBuild" gorm:"size:64"`

	Zones           []Zone
	OwnershipEvents []OwnershipEvent
	ResourceGrants  []ResourceGrant
}

func (*Match) TableName() string {
	return "matches"
}

// Zone is a capture zone as first seen in a match.
// Uses composite primary key (MatchID, ZoneID).
type Zone struct {
	MatchID       uint           `json:"matchId" gorm:"primaryKey;autoIncrement:false"`
	Match         Match          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	ZoneID        string         `json:"zoneId" gorm:"primaryKey;size:127"`
	Location      geom.Point     `json:"location"`
	CaptureRadius float64        `json:"captureRadius"`
	StartRadius   float64        `json:"startRadius"`
	Tag           string         `json:"tag" gorm:"size:64"`
	Config        datatypes.JSON `json:"config"`
}

func (*Zone) TableName() string {
	return "zones"
}

////////////////////////
// EVENT MODELS
////////////////////////

// OwnershipEvent is a change of owning team
type OwnershipEvent struct {
	ID       uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time     time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID  uint      `json:"matchId" gorm:"index:idx_ownership_match_id"`
	Match    Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick     uint64    `json:"tick" gorm:"index:idx_ownership_tick"`
	ZoneID   string    `json:"zoneId" gorm:"size:127;index:idx_ownership_zone_id"`
	OldTeam  int       `json:"oldTeam"`
	NewTeam  int       `json:"newTeam"`
	Progress float64   `json:"progress"`
}

func (*OwnershipEvent) TableName() string {
	return "ownership_events"
}

// ProgressSample is one progress notification
type ProgressSample struct {
	ID           uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time      `json:"time" gorm:"type:timestamptz;"`
	MatchID      uint           `json:"matchId" gorm:"index:idx_progress_match_id"`
	Match        Match          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick         uint64         `json:"tick"`
	ZoneID       string         `json:"zoneId" gorm:"size:127;index:idx_progress_zone_id"`
	DominantTeam int            `json:"dominantTeam"`
	Progress     float64        `json:"progress"`
	TeamCounts   datatypes.JSON `json:"teamCounts"`
}

func (*ProgressSample) TableName() string {
	return "progress_samples"
}

// ResourceGrant is one payout from a captured zone
type ResourceGrant struct {
	ID       uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time     time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID  uint      `json:"matchId" gorm:"index:idx_grant_match_id"`
	Match    Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick     uint64    `json:"tick"`
	ZoneID   string    `json:"zoneId" gorm:"size:127"`
	Team     int       `json:"team" gorm:"index:idx_grant_team"`
	Resource string    `json:"resource" gorm:"size:64"`
	Amount   float64   `json:"amount"`
}

func (*ResourceGrant) TableName() string {
	return "resource_grants"
}

// ClaimZoneEvent is a claim zone entering or leaving a captured zone
type ClaimZoneEvent struct {
	ID      uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time    time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID uint      `json:"matchId" gorm:"index:idx_claim_match_id"`
	Match   Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick    uint64    `json:"tick"`
	ZoneID  string    `json:"zoneId" gorm:"size:127"`
	ClaimID string    `json:"claimId" gorm:"size:127"`
	Team    int       `json:"team"`
	Entered bool      `json:"entered"`
}

func (*ClaimZoneEvent) TableName() string {
	return "claim_zone_events"
}

// ZoneSnapshot is a published zone state
type ZoneSnapshot struct {
	ID            uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time          time.Time `json:"time" gorm:"type:timestamptz;"`
	MatchID       uint      `json:"matchId" gorm:"index:idx_snapshot_match_id"`
	Match         Match     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MatchID;"`
	Tick          uint64    `json:"tick" gorm:"index:idx_snapshot_tick"`
	ZoneID        string    `json:"zoneId" gorm:"size:127"`
	State         uint8     `json:"state"`
	OwningTeam    int       `json:"owningTeam"`
	CapturingTeam int       `json:"capturingTeam"`
	Progress      float64   `json:"progress"`
}

func (*ZoneSnapshot) TableName() string {
	return "zone_snapshots"
}
