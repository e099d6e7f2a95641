// Package handlers binds host commands to the world, the processor and the
// storage backend.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rtsforge/capturepoint/internal/dispatcher"
	"github.com/rtsforge/capturepoint/internal/events"
	"github.com/rtsforge/capturepoint/internal/gamethread"
	"github.com/rtsforge/capturepoint/internal/match"
	"github.com/rtsforge/capturepoint/internal/parser"
	"github.com/rtsforge/capturepoint/internal/replication"
	"github.com/rtsforge/capturepoint/internal/storage"
	"github.com/rtsforge/capturepoint/internal/ticking"
	"github.com/rtsforge/capturepoint/internal/world"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// Buffer sizes for the high-frequency commands.
const (
	unitStateBuffer  = 10000
	unitRemoveBuffer = 1000
	claimStateBuffer = 2000
	claimRemoveBuf   = 500
)

// Rediscoverer is the part of the processor the handlers drive.
type Rediscoverer interface {
	Rediscover()
	Mode() core.Mode
}

// PointFinder is implemented by processors that host always-ticking points.
type PointFinder interface {
	Point(id core.ZoneID) (*ticking.Point, bool)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	World     *world.World
	Processor Rediscoverer
	Emitter   *events.Emitter
	Mirror    *replication.Mirror
	Tasks     *gamethread.Tasks
	Parser    *parser.Parser
	Match     *match.Context
	Logger    *slog.Logger

	Version   string
	BuildDate string
}

// Service provides handler methods for processing host commands
type Service struct {
	deps    Dependencies
	logger  *slog.Logger
	backend storage.Backend
	onStart []func(core.Match)
	onEnd   []func()
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Match == nil {
		deps.Match = match.NewContext()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger, deps.Version, deps.BuildDate)
	}
	return &Service{deps: deps, logger: deps.Logger}
}

// SetBackend sets the storage backend for match start/end handling
func (s *Service) SetBackend(b storage.Backend) {
	s.backend = b
}

// OnMatchStart adds a hook run after the world is reset for a new match, for
// example to load the map's zone layout.
func (s *Service) OnMatchStart(fn func(core.Match)) {
	s.onStart = append(s.onStart, fn)
}

// OnMatchEnd adds a hook run after the backend has finished the match.
func (s *Service) OnMatchEnd(fn func()) {
	s.onEnd = append(s.onEnd, fn)
}

// MatchContext returns the match context
func (s *Service) MatchContext() *match.Context {
	return s.deps.Match
}

// RegisterHandlers registers all host commands with the dispatcher. Commands
// that mutate the world are deferred to the authoritative loop.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	tasks := dispatcher.Deferred(s.deps.Tasks)

	d.Register(":VERSION:", s.handleVersion)
	d.Register(":SNAPSHOT:", s.handleSnapshot)
	d.Register(":BALANCE:", s.handleBalance)

	// Lifecycle
	d.Register(":INIT:", s.handleInit, tasks, dispatcher.Logged())
	d.Register(":END:", s.handleEnd, tasks, dispatcher.Logged())

	// Zones
	d.Register(":ZONE:REGISTER:", s.handleZoneRegister, tasks, dispatcher.Logged())
	d.Register(":ZONE:REMOVE:", s.handleZoneRemove, tasks, dispatcher.Logged())
	d.Register(":ZONE:TOWER:", s.handleZoneTower, tasks, dispatcher.Logged())
	d.Register(":ZONE:PING:", s.handleZonePing, tasks, dispatcher.Logged())
	d.Register(":ZONE:ENTER:", s.handleZoneEnter, tasks)
	d.Register(":ZONE:LEAVE:", s.handleZoneLeave, tasks)

	// High-frequency state
	d.Register(":UNIT:STATE:", s.handleUnitState, dispatcher.Buffered(unitStateBuffer), tasks)
	d.Register(":UNIT:REMOVE:", s.handleUnitRemove, dispatcher.Buffered(unitRemoveBuffer), tasks)
	d.Register(":CLAIM:STATE:", s.handleClaimState, dispatcher.Buffered(claimStateBuffer), tasks)
	d.Register(":CLAIM:REMOVE:", s.handleClaimRemove, dispatcher.Buffered(claimRemoveBuf), tasks)
}

func (s *Service) handleVersion(e dispatcher.Event) (any, error) {
	return []string{s.deps.Version, s.deps.BuildDate}, nil
}

// handleSnapshot returns one zone's snapshot as JSON, or every zone's when no
// id is given.
func (s *Service) handleSnapshot(e dispatcher.Event) (any, error) {
	if s.deps.Mirror == nil {
		return nil, fmt.Errorf("no replication mirror")
	}
	if len(e.Args) == 0 {
		return marshal(s.deps.Mirror.All())
	}
	id, err := s.deps.Parser.ParseID(e.Command, e.Args)
	if err != nil {
		return nil, err
	}
	snap, ok := s.deps.Mirror.Get(core.ZoneID(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", world.ErrUnknownZone, id)
	}
	return marshal(snap)
}

// handleBalance returns a team's stockpile of one resource.
func (s *Service) handleBalance(e dispatcher.Event) (any, error) {
	team, resource, err := s.deps.Parser.ParseBalance(e.Args)
	if err != nil {
		return nil, err
	}
	return s.deps.World.Balance(team, resource), nil
}

func (s *Service) handleInit(e dispatcher.Event) (any, error) {
	m, err := s.deps.Parser.ParseMatch(e.Args)
	if err != nil {
		return nil, err
	}
	if s.deps.Processor != nil && s.deps.Processor.Mode() != m.Mode {
		s.logger.Warn("match mode differs from the processor mode, the processor mode wins",
			"match", m.Mode, "processor", s.deps.Processor.Mode())
		m.Mode = s.deps.Processor.Mode()
	}

	s.deps.World.Reset()
	if s.deps.Mirror != nil {
		for _, snap := range s.deps.Mirror.All() {
			s.deps.Mirror.Remove(snap.Zone)
		}
	}
	if s.deps.Processor != nil {
		s.deps.Processor.Rediscover()
	}

	if s.backend != nil {
		if err := s.backend.StartMatch(&m); err != nil {
			return nil, fmt.Errorf("starting match in storage: %w", err)
		}
	}
	s.deps.Match.SetMatch(m)
	for _, fn := range s.onStart {
		fn(m)
	}
	s.logger.Info("match started", "match", m.MatchName, "map", m.MapName, "mode", m.Mode, "id", m.ID)
	return "ok", nil
}

func (s *Service) handleEnd(e dispatcher.Event) (any, error) {
	if !s.deps.Match.Active() {
		return nil, fmt.Errorf("no match running")
	}
	s.deps.Match.End()

	if s.backend != nil {
		if err := s.backend.EndMatch(); err != nil {
			return nil, fmt.Errorf("ending match in storage: %w", err)
		}
		s.logger.Info("match saved to storage backend")
	}
	for _, fn := range s.onEnd {
		fn()
	}
	return "ok", nil
}

func (s *Service) handleZoneRegister(e dispatcher.Event) (any, error) {
	id, cfg, err := s.deps.Parser.ParseZone(e.Args)
	if err != nil {
		return nil, err
	}
	s.deps.World.RegisterZone(id, cfg)
	if rec, ok := s.backend.(storage.ZoneRecorder); ok {
		if err := rec.RecordZone(id, cfg); err != nil {
			s.logger.Error("failed to record zone", "zone", id, "error", err)
		}
	}
	if s.deps.Processor != nil {
		s.deps.Processor.Rediscover()
	}
	return "ok", nil
}

func (s *Service) handleZoneRemove(e dispatcher.Event) (any, error) {
	id, err := s.deps.Parser.ParseID(e.Command, e.Args)
	if err != nil {
		return nil, err
	}
	if err := s.deps.World.RemoveZone(core.ZoneID(id)); err != nil {
		return nil, err
	}
	if s.deps.Processor != nil {
		s.deps.Processor.Rediscover()
	}
	return "ok", nil
}

func (s *Service) handleZoneTower(e dispatcher.Event) (any, error) {
	id, built, err := s.deps.Parser.ParseTower(e.Args)
	if err != nil {
		return nil, err
	}
	err = s.deps.World.SetLegoTowerBuilt(id, built)
	if errors.Is(err, world.ErrUnknownZone) {
		if pt, ok := s.point(id); ok {
			pt.SetLegoTowerBuilt(built)
			return "ok", nil
		}
	}
	return "ok", err
}

// handleZoneEnter records a host overlap event on an always-ticking point.
// The unit's state is refreshed in the world as well.
func (s *Service) handleZoneEnter(e dispatcher.Event) (any, error) {
	id, unit, err := s.deps.Parser.ParseZoneEnter(e.Args)
	if err != nil {
		return nil, err
	}
	pt, ok := s.point(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", world.ErrUnknownZone, id)
	}
	s.deps.World.UpsertUnit(unit)
	pt.Enter(unit)
	return "ok", nil
}

func (s *Service) handleZoneLeave(e dispatcher.Event) (any, error) {
	id, unit, err := s.deps.Parser.ParseZoneLeave(e.Args)
	if err != nil {
		return nil, err
	}
	pt, ok := s.point(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", world.ErrUnknownZone, id)
	}
	pt.Leave(unit)
	return "ok", nil
}

func (s *Service) point(id core.ZoneID) (*ticking.Point, bool) {
	finder, ok := s.deps.Processor.(PointFinder)
	if !ok {
		return nil, false
	}
	return finder.Point(id)
}

func (s *Service) handleZonePing(e dispatcher.Event) (any, error) {
	id, err := s.deps.Parser.ParseID(e.Command, e.Args)
	if err != nil {
		return nil, err
	}
	zone := core.ZoneID(id)
	if err := s.deps.World.Ping(zone); err != nil {
		return nil, err
	}
	if s.deps.Emitter != nil {
		s.deps.Emitter.Ping(zone)
	}
	return "ok", nil
}

func (s *Service) handleUnitState(e dispatcher.Event) (any, error) {
	unit, err := s.deps.Parser.ParseUnit(e.Args)
	if err != nil {
		return nil, err
	}
	s.deps.World.UpsertUnit(unit)
	return nil, nil
}

func (s *Service) handleUnitRemove(e dispatcher.Event) (any, error) {
	id, err := s.deps.Parser.ParseID(e.Command, e.Args)
	if err != nil {
		return nil, err
	}
	s.deps.World.RemoveUnit(core.UnitID(id))
	return nil, nil
}

func (s *Service) handleClaimState(e dispatcher.Event) (any, error) {
	cz, err := s.deps.Parser.ParseClaimZone(e.Args)
	if err != nil {
		return nil, err
	}
	s.deps.World.UpsertClaimZone(cz)
	return nil, nil
}

func (s *Service) handleClaimRemove(e dispatcher.Event) (any, error) {
	id, err := s.deps.Parser.ParseID(e.Command, e.Args)
	if err != nil {
		return nil, err
	}
	s.deps.World.RemoveClaimZone(core.ClaimZoneID(id))
	return nil, nil
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshalling snapshot: %w", err)
	}
	return string(b), nil
}
