// pkg/core/unit.go
package core

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// DistSquared2D is the squared distance on the ground plane, ignoring Z.
func DistSquared2D(a, b Vec3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// Role classifies what a unit does.
type Role string

const (
	RoleCombat    Role = "combat"
	RoleWorker    Role = "worker"
	RoleExtractor Role = "extractor"
)

// Excluded reports whether units with this role never count toward capture.
func (r Role) Excluded() bool {
	return r == RoleWorker || r == RoleExtractor
}

// UnitID identifies a live unit.
type UnitID string

// Unit is the host's live record of a unit.
type Unit struct {
	ID             UnitID `json:"id"`
	Location       Vec3   `json:"location"`
	Team           TeamID `json:"team"`
	Alive          bool   `json:"alive"`
	Role           Role   `json:"role"`
	IsCapturePoint bool   `json:"isCapturePoint"`
}

// UnitSnapshot is the part of a unit the aggregator needs. It is rebuilt every pass.
type UnitSnapshot struct {
	Location Vec3
	Team     TeamID
}

// ClaimZoneID identifies a claim/work area.
type ClaimZoneID string

// ClaimZone is an external work area that must sit inside an owned capture point.
type ClaimZone struct {
	ID       ClaimZoneID `json:"id"`
	Location Vec3        `json:"location"`
	Team     TeamID      `json:"team"`
	Tag      string      `json:"tag"`
}
