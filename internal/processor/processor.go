// Package processor runs the batched capture pass: once per execution interval
// it snapshots live units, aggregates them against every registered zone,
// advances each zone's state machine and schedules the resulting notifications.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rtsforge/capturepoint/internal/capture"
	"github.com/rtsforge/capturepoint/internal/events"
	"github.com/rtsforge/capturepoint/internal/income"
	"github.com/rtsforge/capturepoint/internal/replication"
	"github.com/rtsforge/capturepoint/internal/spatial"
	"github.com/rtsforge/capturepoint/internal/ticking"
	"github.com/rtsforge/capturepoint/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/rtsforge/capturepoint/internal/processor"

// ErrReentrant is returned when Execute is called while a pass is running.
var ErrReentrant = errors.New("capture processor is already executing")

// UnitSource lists live units.
type UnitSource interface {
	Units() []core.Unit
}

// ZoneSource lists registered zones.
type ZoneSource interface {
	Zones() []core.ZoneHandle
}

// versioned sources let the processor notice registration changes on its own.
type versioned interface {
	Version() uint64
}

// removable handles report deregistration between discovery and use.
type removable interface {
	Removed() bool
}

// Config holds the processor tuning.
type Config struct {
	Mode                  core.Mode
	ExecutionInterval     time.Duration
	DefaultCaptureTime    float64
	MinUnitsToCapture     int
	Tag                   string
	ParallelThreshold     int
	Workers               int
	ClientRefreshInterval time.Duration
	Debug                 bool
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Mode:               core.ModeAuthority,
		ExecutionInterval:  200 * time.Millisecond,
		DefaultCaptureTime: 5,
		MinUnitsToCapture:  1,
		Tag:                core.DefaultTag,
		ParallelThreshold:  spatial.DefaultParallelThreshold,
	}
}

// Dependencies are the collaborators the processor reads and writes through.
// Any of Units, Zones, Claims and Economy may be nil; the dependent step is
// then skipped.
type Dependencies struct {
	Units   UnitSource
	Zones   ZoneSource
	Claims  income.ClaimZoneSource
	Economy income.Economy
	Filter  spatial.Filter
	Emitter *events.Emitter
	Mirror  *replication.Mirror
	// Configs resolves zone configs on observers. Defaults to a lookup over Zones.
	Configs replication.ConfigLookup
	Logger  *slog.Logger
}

type zoneEntry struct {
	handle core.ZoneHandle
	status core.ZoneStatus
}

// Processor is the single mutation path for batched zones.
type Processor struct {
	cfg  Config
	deps Dependencies

	logger    *slog.Logger
	agg       spatial.Aggregator
	tracker   *income.ClaimTracker
	generator income.Generator
	client    *replication.ClientPass

	mu     sync.RWMutex
	zones  []*zoneEntry
	byID   map[core.ZoneID]*zoneEntry
	points []*ticking.Point

	rediscover    atomic.Bool
	sourceVersion uint64

	accumulator       time.Duration
	clientAccumulator time.Duration
	tick              atomic.Uint64
	running           atomic.Bool

	lastExecute atomic.Int64
	unitCount   atomic.Int64

	now func() time.Time

	executeDuration metric.Float64Histogram
	passes          metric.Int64Counter
}

// New creates a processor. Zones are discovered on the first pass.
func New(cfg Config, deps Dependencies) (*Processor, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Tag == "" {
		cfg.Tag = core.DefaultTag
	}
	if cfg.Mode == "" {
		cfg.Mode = core.ModeAuthority
	}

	p := &Processor{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		agg: spatial.Aggregator{
			ParallelThreshold: cfg.ParallelThreshold,
			Workers:           cfg.Workers,
		},
		tracker:   income.NewClaimTracker(),
		generator: income.Generator{Economy: deps.Economy},
		byID:      make(map[core.ZoneID]*zoneEntry),
		now:       time.Now,
	}
	p.rediscover.Store(true)

	configs := deps.Configs
	if configs == nil {
		configs = zoneConfigs{p}
	}
	p.client = &replication.ClientPass{
		Mirror:     deps.Mirror,
		Configs:    configs,
		Claims:     deps.Claims,
		Emitter:    deps.Emitter,
		DefaultTag: cfg.Tag,
	}

	m := otel.Meter(instrumentationName)
	var err error
	p.executeDuration, err = m.Float64Histogram(
		"capture.execute.duration",
		metric.WithDescription("Duration of a capture pass"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating execute histogram: %w", err)
	}
	p.passes, err = m.Int64Counter(
		"capture.passes",
		metric.WithDescription("Capture passes executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pass counter: %w", err)
	}

	return p, nil
}

// Rediscover schedules zone discovery before the next pass.
func (p *Processor) Rediscover() {
	p.rediscover.Store(true)
}

// Mode reports which side of the replication boundary the processor runs on.
func (p *Processor) Mode() core.Mode {
	return p.cfg.Mode
}

// AddPoint attaches an always-ticking point. Points advance on every Execute
// call at their own fixed cadence and publish through the same mirror. The
// point shares the processor's unit filter.
func (p *Processor) AddPoint(pt *ticking.Point) {
	if p.deps.Filter != nil {
		pt.SetFilter(p.deps.Filter)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = append(p.points, pt)
}

// ClearPoints detaches every always-ticking point.
func (p *Processor) ClearPoints() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = nil
}

// Points returns the attached always-ticking points.
func (p *Processor) Points() []*ticking.Point {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*ticking.Point(nil), p.points...)
}

// Point finds an attached always-ticking point by id.
func (p *Processor) Point(id core.ZoneID) (*ticking.Point, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pt := range p.points {
		if pt.ID() == id {
			return pt, true
		}
	}
	return nil, false
}

// Execute consumes frame time. Once the execution interval has accumulated, it
// runs one pass over the whole accumulated time, so a slow frame becomes one
// larger step rather than several catch-up passes.
func (p *Processor) Execute(dt time.Duration) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer p.running.Store(false)

	if dt < 0 {
		dt = 0
	}

	var units []core.Unit
	if p.deps.Units != nil {
		units = p.deps.Units.Units()
	}
	p.advancePoints(dt, units)

	p.accumulator += dt
	if p.accumulator < p.cfg.ExecutionInterval {
		return nil
	}
	step := p.accumulator
	p.accumulator = 0

	start := time.Now()
	tick := p.tick.Add(1)

	if p.needsDiscovery() {
		p.discover()
	}

	switch p.cfg.Mode {
	case core.ModeObserver:
		p.observerPass(step, tick)
	default:
		p.authorityPass(step, units, tick)
	}

	elapsed := time.Since(start)
	p.lastExecute.Store(int64(elapsed))
	mode := attribute.String("mode", string(p.cfg.Mode))
	p.executeDuration.Record(context.Background(), float64(elapsed.Microseconds())/1000, metric.WithAttributes(mode))
	p.passes.Add(context.Background(), 1, metric.WithAttributes(mode))
	return nil
}

func (p *Processor) needsDiscovery() bool {
	if p.rediscover.Load() {
		return true
	}
	if v, ok := p.deps.Zones.(versioned); ok {
		return v.Version() != p.sourceVersion
	}
	return false
}

// discover reconciles the zone list with the source. Existing zones keep their
// state; vanished zones are forgotten everywhere.
func (p *Processor) discover() {
	p.rediscover.Store(false)
	if p.deps.Zones == nil {
		p.logger.Debug("no zone source, skipping discovery")
		return
	}
	if v, ok := p.deps.Zones.(versioned); ok {
		p.sourceVersion = v.Version()
	}

	handles := p.deps.Zones.Zones()

	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[core.ZoneID]*zoneEntry, len(handles))
	zones := make([]*zoneEntry, 0, len(handles))
	for _, h := range handles {
		if h == nil {
			continue
		}
		entry, ok := p.byID[h.ID()]
		if ok {
			entry.handle = h
		} else {
			entry = &zoneEntry{handle: h, status: core.NewZoneStatus()}
		}
		next[h.ID()] = entry
		zones = append(zones, entry)
	}

	for id := range p.byID {
		if _, ok := next[id]; !ok {
			p.tracker.Forget(id)
			if p.deps.Mirror != nil {
				p.deps.Mirror.Remove(id)
			}
			p.logger.Debug("zone dropped", "zone", id)
		}
	}

	p.byID = next
	p.zones = zones
	p.logger.Debug("zones discovered", "count", len(zones))
}

func (p *Processor) authorityPass(step time.Duration, units []core.Unit, tick uint64) {
	if p.deps.Units == nil {
		p.logger.Debug("no unit source, skipping capture pass", "tick", tick)
		return
	}

	secs := step.Seconds()
	at := p.now()

	snap := spatial.Snapshot(units, p.deps.Filter)
	p.unitCount.Store(int64(len(snap)))

	p.mu.Lock()
	defer p.mu.Unlock()

	live := make([]*zoneEntry, 0, len(p.zones))
	targets := make([]spatial.Target, 0, len(p.zones))
	for _, z := range p.zones {
		if r, ok := z.handle.(removable); ok && r.Removed() {
			continue
		}
		cfg := z.handle.Config()
		live = append(live, z)
		targets = append(targets, spatial.Target{Zone: z.handle.ID(), Location: cfg.Location, Radius: cfg.StartRadius})
	}

	tables := p.agg.CountZones(snap, targets)

	snapshots := make([]core.ZoneSnapshot, 0, len(live))
	for _, z := range live {
		id := z.handle.ID()
		cfg := z.handle.Config()
		if cfg.Tag == "" {
			cfg.Tag = p.cfg.Tag
		}
		rules := capture.RulesFor(cfg, p.cfg.DefaultCaptureTime, p.cfg.MinUnitsToCapture, z.handle.LegoTowerBuilt())

		tr := capture.Advance(&z.status, tables[id], secs, rules)
		if p.deps.Emitter != nil {
			p.deps.Emitter.Signal(id, tr, tick, at)
		}

		if grants := p.generator.Accrue(id, &z.status, cfg, secs); len(grants) > 0 {
			for i := range grants {
				grants[i].Time = at
				grants[i].Tick = tick
			}
			if p.deps.Emitter != nil {
				p.deps.Emitter.Grants(grants, p.generator.Pay)
			}
		}

		entered, exited := p.tracker.Update(id, z.status.OwningTeam, z.status.Captured(), cfg, p.deps.Claims)
		if p.deps.Emitter != nil {
			for _, cz := range entered {
				p.deps.Emitter.ClaimEntered(id, cz, tick, at)
			}
			for _, cz := range exited {
				p.deps.Emitter.ClaimExited(id, cz, tick, at)
			}
		}

		s := z.status.Snapshot(id, rules.CaptureTime)
		s.Tick = tick
		s.At = at
		snapshots = append(snapshots, s)

		if p.cfg.Debug {
			p.logger.Debug("zone tick",
				"zone", id,
				"state", z.status.State.String(),
				"owner", int(z.status.OwningTeam),
				"capturing", int(z.status.CapturingTeam),
				"dominant", int(z.status.DominantTeam),
				"progress", z.status.Progress,
				"counts", len(z.status.TeamCounts),
			)
		}
	}

	if p.deps.Mirror != nil {
		p.deps.Mirror.Publish(snapshots...)
	}
	if p.deps.Emitter != nil {
		p.deps.Emitter.Snapshots(snapshots)
	}
}

// observerPass runs the client derivation at its own refresh interval. Zero
// means every pass.
func (p *Processor) observerPass(step time.Duration, tick uint64) {
	p.clientAccumulator += step
	if p.cfg.ClientRefreshInterval > 0 && p.clientAccumulator < p.cfg.ClientRefreshInterval {
		return
	}
	p.clientAccumulator = 0

	n := p.client.Run(tick, p.now())
	if p.cfg.Debug {
		p.logger.Debug("client pass", "tick", tick, "claimEvents", n)
	}
}

func (p *Processor) advancePoints(dt time.Duration, units []core.Unit) {
	p.mu.RLock()
	points := append([]*ticking.Point(nil), p.points...)
	p.mu.RUnlock()
	if len(points) == 0 || p.cfg.Mode == core.ModeObserver {
		return
	}

	at := p.now()
	tick := p.tick.Load()
	for _, pt := range points {
		switch {
		case p.deps.Units == nil:
		case pt.Overlap():
			pt.Prune(units)
		default:
			pt.Sync(units)
		}
		res := pt.Advance(dt)
		if res.Ticks == 0 {
			continue
		}
		for i := range res.Grants {
			res.Grants[i].Time = at
			res.Grants[i].Tick = tick
		}
		if p.deps.Emitter != nil {
			p.deps.Emitter.Edges(res.Edges)
			p.deps.Emitter.Grants(res.Grants, p.generator.Pay)
		}
		if p.deps.Mirror != nil {
			s := pt.Snapshot()
			s.Tick = tick
			s.At = at
			p.deps.Mirror.Publish(s)
		}
	}
}

// CurrentState returns a zone's state. Unknown zones read as Neutral.
func (p *Processor) CurrentState(zone core.ZoneID) core.CaptureState {
	if s, ok := p.status(zone); ok {
		return s.State
	}
	return core.StateNeutral
}

// OwningTeam returns a zone's owner, or core.NoTeam.
func (p *Processor) OwningTeam(zone core.ZoneID) core.TeamID {
	if s, ok := p.status(zone); ok {
		return s.OwningTeam
	}
	return core.NoTeam
}

// CaptureProgress returns a zone's progress in [0,1].
func (p *Processor) CaptureProgress(zone core.ZoneID) float64 {
	if s, ok := p.status(zone); ok {
		return s.Progress
	}
	return 0
}

// IsCaptured reports whether a zone is owned and fully captured.
func (p *Processor) IsCaptured(zone core.ZoneID) bool {
	if s, ok := p.status(zone); ok {
		return s.OwningTeam.Valid() && s.Progress >= 1
	}
	return false
}

// status reads the authoritative state, or the mirror on observers.
func (p *Processor) status(zone core.ZoneID) (core.ZoneSnapshot, bool) {
	if p.cfg.Mode != core.ModeObserver {
		p.mu.RLock()
		entry, ok := p.byID[zone]
		var s core.ZoneSnapshot
		if ok {
			s = entry.status.Snapshot(zone, 0)
		}
		p.mu.RUnlock()
		if ok {
			return s, true
		}
	}
	if p.deps.Mirror != nil {
		return p.deps.Mirror.Get(zone)
	}
	return core.ZoneSnapshot{}, false
}

// Stats is a point-in-time view for the monitor.
type Stats struct {
	Tick        uint64
	Zones       int
	Points      int
	Units       int
	LastExecute time.Duration
}

func (p *Processor) Stats() Stats {
	p.mu.RLock()
	zones, points := len(p.zones), len(p.points)
	p.mu.RUnlock()
	return Stats{
		Tick:        p.tick.Load(),
		Zones:       zones,
		Points:      points,
		Units:       int(p.unitCount.Load()),
		LastExecute: time.Duration(p.lastExecute.Load()),
	}
}

// zoneConfigs resolves configs from the discovered handles.
type zoneConfigs struct {
	p *Processor
}

func (z zoneConfigs) ZoneConfig(id core.ZoneID) (core.ZoneConfig, bool) {
	z.p.mu.RLock()
	entry, ok := z.p.byID[id]
	z.p.mu.RUnlock()
	if !ok {
		return core.ZoneConfig{}, false
	}
	return entry.handle.Config(), true
}
