// Package ticking implements the always-ticking capture point: a single zone
// that tracks the units inside it and advances on a fixed 10 Hz cadence,
// without the batched processor's discovery pass.
package ticking

import (
	"sync"
	"time"

	"github.com/rtsforge/capturepoint/internal/capture"
	"github.com/rtsforge/capturepoint/internal/spatial"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// Config tunes one point.
type Config struct {
	TickInterval      time.Duration
	CaptureTime       float64
	RecaptureTime     float64
	MultiUnitBonus    float64
	MaxCapturingUnits int
	CaptureRadius     float64
	IncomeInterval    time.Duration
	IncomeAmount      float64
	// IdleDecay makes an empty zone settle like the batched processor does.
	// Off, an empty zone holds its progress.
	IdleDecay bool
	// Overlap means the host reports entries and exits itself. Membership is
	// then pruned each frame instead of rebuilt from the capture radius.
	Overlap bool
}

// DefaultConfig returns the stock point tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:      100 * time.Millisecond,
		CaptureTime:       10,
		MultiUnitBonus:    0.5,
		MaxCapturingUnits: 3,
		CaptureRadius:     300,
		IncomeInterval:    5 * time.Second,
		IncomeAmount:      1,
	}
}

// Result collects what one Advance produced. The caller delivers it.
type Result struct {
	Edges  []core.Edge
	Grants []core.ResourceGrant
	Ticks  int
}

// Point is a self-contained capture zone.
type Point struct {
	mu sync.Mutex

	id       core.ZoneID
	location core.Vec3
	cfg      Config
	palette  Palette
	filter   spatial.Filter

	members map[core.UnitID]core.TeamID

	owner     core.TeamID
	capturing core.TeamID
	progress  float64
	contested bool
	legoTower bool

	accumulator   time.Duration
	incomeElapsed time.Duration
}

// NewPoint creates a neutral point at location.
func NewPoint(id core.ZoneID, location core.Vec3, cfg Config) *Point {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Point{
		id:        id,
		location:  location,
		cfg:       cfg,
		palette:   DefaultPalette(),
		members:   make(map[core.UnitID]core.TeamID),
		owner:     core.NoTeam,
		capturing: core.NoTeam,
	}
}

// ID returns the zone handle.
func (p *Point) ID() core.ZoneID {
	return p.id
}

// SetPalette replaces the colour strategy.
func (p *Point) SetPalette(palette Palette) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.palette = palette
}

// SetLegoTowerBuilt toggles the flag that freezes neutralization.
func (p *Point) SetLegoTowerBuilt(built bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.legoTower = built
}

// SetFilter installs the eligibility filter shared with the processor.
func (p *Point) SetFilter(f spatial.Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = f
}

// Overlap reports whether the host drives membership through Enter and Leave.
func (p *Point) Overlap() bool {
	return p.cfg.Overlap
}

// Enter records a unit inside the zone. Ineligible units are ignored.
func (p *Point) Enter(u core.Unit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !spatial.Eligible(u, p.filter) {
		return
	}
	p.members[u.ID] = u.Team
}

// Leave forgets a unit.
func (p *Point) Leave(id core.UnitID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members, id)
}

// Sync rebuilds membership from the live population using the capture radius.
// Hosts without overlap callbacks call it once per frame.
func (p *Point) Sync(units []core.Unit) {
	radiusSq := p.cfg.CaptureRadius * p.cfg.CaptureRadius

	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.members)
	for _, u := range units {
		if !spatial.Eligible(u, p.filter) {
			continue
		}
		if core.DistSquared2D(u.Location, p.location) <= radiusSq {
			p.members[u.ID] = u.Team
		}
	}
}

// Prune drops members whose current state in units is no longer eligible and
// refreshes the team of the rest. Members absent from units are kept.
func (p *Point) Prune(units []core.Unit) {
	byID := make(map[core.UnitID]core.Unit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.members {
		u, ok := byID[id]
		if !ok {
			continue
		}
		if !spatial.Eligible(u, p.filter) {
			delete(p.members, id)
			continue
		}
		p.members[id] = u.Team
	}
}

// Advance consumes frame time and runs as many fixed ticks as fit.
func (p *Point) Advance(frame time.Duration) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res Result
	p.accumulator += frame
	for p.accumulator >= p.cfg.TickInterval {
		p.accumulator -= p.cfg.TickInterval
		p.tick(p.cfg.TickInterval, &res)
		res.Ticks++
	}
	return res
}

// Tick runs one step of dt regardless of the cadence.
func (p *Point) Tick(dt time.Duration) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res Result
	p.tick(dt, &res)
	res.Ticks = 1
	return res
}

func (p *Point) tick(dt time.Duration, res *Result) {
	p.accrueIncome(dt, res)

	counts := p.counts()
	if len(counts) == 0 {
		p.contested = false
		if p.cfg.IdleDecay {
			p.settleIdle(dt.Seconds())
		}
		return
	}

	dominant, top := spatial.Dominant(counts)
	if !dominant.Valid() {
		if !p.contested {
			p.contested = true
			res.Edges = append(res.Edges, core.Edge{Zone: p.id, Kind: core.EdgeContested, Team: core.NoTeam})
		}
		return
	}
	p.contested = false

	speed := p.speed(top)
	delta := stepFraction(dt.Seconds(), p.cfg.CaptureTime) * speed

	switch {
	case !p.owner.Valid():
		if p.capturing != dominant {
			p.capturing = dominant
			p.progress = 0
			res.Edges = append(res.Edges, core.Edge{Zone: p.id, Kind: core.EdgeStarted, Team: dominant})
		}
		p.progress = capture.Clamp(p.progress + delta)
		if p.progress >= 1 {
			p.complete(dominant, res)
		}

	case p.owner == dominant:
		p.capturing = core.NoTeam
		p.progress = capture.Clamp(p.progress + delta)

	default:
		if p.legoTower {
			p.capturing = core.NoTeam
			return
		}
		p.capturing = dominant
		neutralize := stepFraction(dt.Seconds(), p.neutralizeTime()) * speed
		p.progress = capture.Clamp(p.progress - neutralize)
		if p.progress <= 0 {
			p.lose(res)
			p.capturing = dominant
			res.Edges = append(res.Edges, core.Edge{Zone: p.id, Kind: core.EdgeStarted, Team: dominant})
		}
	}
}

func (p *Point) complete(team core.TeamID, res *Result) {
	p.owner = team
	p.progress = 1
	p.capturing = core.NoTeam
	p.incomeElapsed = 0
	res.Edges = append(res.Edges, core.Edge{Zone: p.id, Kind: core.EdgeCompleted, Team: team})
}

func (p *Point) lose(res *Result) {
	previous := p.owner
	p.owner = core.NoTeam
	p.progress = 0
	p.capturing = core.NoTeam
	p.incomeElapsed = 0
	res.Edges = append(res.Edges, core.Edge{Zone: p.id, Kind: core.EdgeLost, Team: previous})
}

func (p *Point) settleIdle(dt float64) {
	rate := stepFraction(dt, p.cfg.CaptureTime)
	if !p.owner.Valid() {
		p.progress = capture.Clamp(p.progress - rate)
		if p.progress <= 0 {
			p.capturing = core.NoTeam
		}
		return
	}
	p.capturing = core.NoTeam
	p.progress = capture.Clamp(p.progress + rate)
}

// accrueIncome pays IncomeAmount of the primary resource every IncomeInterval
// while the point is owned.
func (p *Point) accrueIncome(dt time.Duration, res *Result) {
	if !p.owner.Valid() || p.cfg.IncomeInterval <= 0 || p.cfg.IncomeAmount == 0 {
		return
	}
	p.incomeElapsed += dt
	for p.incomeElapsed >= p.cfg.IncomeInterval {
		p.incomeElapsed -= p.cfg.IncomeInterval
		res.Grants = append(res.Grants, core.ResourceGrant{
			Zone:     p.id,
			Team:     p.owner,
			Resource: core.ResourcePrimary,
			Amount:   p.cfg.IncomeAmount,
		})
	}
}

func (p *Point) counts() spatial.Counts {
	counts := spatial.Counts{}
	for _, team := range p.members {
		counts[team]++
	}
	return counts
}

// speed is the multi-unit capture multiplier: 1 + (min(n, max) - 1) * bonus.
func (p *Point) speed(units int) float64 {
	if units <= 0 {
		return 0
	}
	effective := units
	if p.cfg.MaxCapturingUnits > 0 {
		effective = min(units, p.cfg.MaxCapturingUnits)
	}
	return 1 + float64(effective-1)*p.cfg.MultiUnitBonus
}

func (p *Point) neutralizeTime() float64 {
	if p.cfg.RecaptureTime > 0 {
		return p.cfg.RecaptureTime
	}
	return p.cfg.CaptureTime
}

func stepFraction(dt, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	return dt / duration
}

// State derives the display state from the authoritative fields.
func (p *Point) State() core.CaptureState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state()
}

func (p *Point) state() core.CaptureState {
	switch {
	case p.contested:
		return core.StateContested
	case p.capturing.Valid() && len(p.members) > 0:
		return core.StateCapturing
	case p.owner.Valid():
		return core.StateOwned
	default:
		return core.StateNeutral
	}
}

// OwningTeam returns the owner, or core.NoTeam.
func (p *Point) OwningTeam() core.TeamID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

// CapturingTeam returns the team currently capturing or neutralizing.
func (p *Point) CapturingTeam() core.TeamID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capturing
}

// Progress returns capture progress in [0,1].
func (p *Point) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Snapshot returns the replicated view.
func (p *Point) Snapshot() core.ZoneSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return core.ZoneSnapshot{
		Zone:          p.id,
		State:         p.state(),
		OwningTeam:    p.owner,
		Progress:      p.progress,
		CapturingTeam: p.capturing,
		CaptureTime:   p.cfg.CaptureTime,
	}
}

// WidgetVisible reports whether a progress widget should be shown: while
// capturing or contested, or while owned with enemies holding the zone.
func (p *Point) WidgetVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state() {
	case core.StateCapturing, core.StateContested:
		return true
	case core.StateOwned:
		if len(p.members) == 0 {
			return false
		}
		dominant, _ := spatial.Dominant(p.counts())
		return dominant != p.owner
	default:
		return false
	}
}

// ProgressColor picks the display token for the current state.
func (p *Point) ProgressColor() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state() {
	case core.StateContested:
		return p.palette.Contested()
	case core.StateCapturing:
		return p.palette.ColorFor(p.capturing)
	case core.StateOwned:
		return p.palette.ColorFor(p.owner)
	default:
		return p.palette.Neutral()
	}
}
