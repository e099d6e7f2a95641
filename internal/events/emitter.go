package events

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/rtsforge/capturepoint/internal/capture"
	"github.com/rtsforge/capturepoint/internal/gamethread"
	"github.com/rtsforge/capturepoint/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/rtsforge/capturepoint/internal/events"

// Emitter schedules listener callbacks on the game-thread queue.
type Emitter struct {
	tasks  *gamethread.Tasks
	logger *slog.Logger

	mu        sync.RWMutex
	listeners []Listener

	delivered metric.Int64Counter
}

// NewEmitter creates an emitter that posts to tasks.
func NewEmitter(tasks *gamethread.Tasks, logger *slog.Logger) (*Emitter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	delivered, err := otel.Meter(instrumentationName).Int64Counter(
		"capture.events.delivered",
		metric.WithDescription("Capture notifications delivered to listeners"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating delivered counter: %w", err)
	}
	return &Emitter{tasks: tasks, logger: logger, delivered: delivered}, nil
}

// Register adds a listener. Listeners are called in registration order.
func (e *Emitter) Register(l Listener) {
	if l == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Emitter) snapshot() []Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Listener(nil), e.listeners...)
}

// Signal schedules the notifications a transition calls for: ownership when the
// owner differs, progress when units were nearby, the owner changed or progress
// moved by more than capture.ProgressEpsilon.
func (e *Emitter) Signal(zone core.ZoneID, tr capture.Transition, tick uint64, at time.Time) {
	var ownership *core.OwnershipChange
	if tr.OwnerChanged() {
		ownership = &core.OwnershipChange{
			Zone:     zone,
			Time:     at,
			Tick:     tick,
			OldTeam:  tr.Old.OwningTeam,
			NewTeam:  tr.New.OwningTeam,
			Progress: tr.New.Progress,
		}
	}
	var progress *core.ProgressUpdate
	if tr.ShouldReportProgress() {
		progress = &core.ProgressUpdate{
			Zone:         zone,
			Time:         at,
			Tick:         tick,
			DominantTeam: tr.New.DominantTeam,
			Progress:     tr.New.Progress,
			TeamCounts:   maps.Clone(tr.New.TeamCounts),
		}
	}
	if ownership == nil && progress == nil {
		return
	}

	e.tasks.Post(func() {
		for _, l := range e.snapshot() {
			if ownership != nil {
				l.OnOwnershipChanged(*ownership)
			}
			if progress != nil {
				l.OnCaptureProgressUpdated(*progress)
			}
		}
		if ownership != nil {
			e.count("ownership_changed")
		}
		if progress != nil {
			e.count("progress_updated")
		}
	})
}

// ClaimEntered schedules a work-area-entered notification.
func (e *Emitter) ClaimEntered(zone core.ZoneID, claim core.ClaimZone, tick uint64, at time.Time) {
	ev := claimEvent(zone, claim, tick, at, true)
	e.tasks.Post(func() {
		for _, l := range e.snapshot() {
			l.OnWorkAreaEntered(ev)
		}
		e.count("work_area_entered")
	})
}

// ClaimExited schedules a work-area-exited notification. Snappers holding the
// work area snapped are asked to release it first.
func (e *Emitter) ClaimExited(zone core.ZoneID, claim core.ClaimZone, tick uint64, at time.Time) {
	ev := claimEvent(zone, claim, tick, at, false)
	e.tasks.Post(func() {
		for _, l := range e.snapshot() {
			if s, ok := l.(Snapper); ok && s.IsWorkAreaSnapped(ev.Claim) {
				s.UnsnapWorkArea(ev.Claim)
			}
			l.OnWorkAreaExited(ev)
		}
		e.count("work_area_exited")
	})
}

// Grants schedules payout notifications. The economy itself is paid by the
// caller inside the same task so listeners see grants after they land.
func (e *Emitter) Grants(grants []core.ResourceGrant, pay func([]core.ResourceGrant) int) {
	if len(grants) == 0 {
		return
	}
	grants = append([]core.ResourceGrant(nil), grants...)
	e.tasks.Post(func() {
		if pay != nil {
			if n := pay(grants); n == 0 {
				e.logger.Debug("resource grants skipped, no economy", "grants", len(grants))
			}
		}
		for _, l := range e.snapshot() {
			if gl, ok := l.(GrantListener); ok {
				for _, g := range grants {
					gl.OnResourceGranted(g)
				}
			}
		}
		e.count("resource_granted")
	})
}

// Edges schedules the state-entry events of an always-ticking point.
func (e *Emitter) Edges(edges []core.Edge) {
	if len(edges) == 0 {
		return
	}
	edges = append([]core.Edge(nil), edges...)
	e.tasks.Post(func() {
		for _, l := range e.snapshot() {
			el, ok := l.(EdgeListener)
			if !ok {
				continue
			}
			for _, edge := range edges {
				switch edge.Kind {
				case core.EdgeStarted:
					el.OnCaptureStarted(edge.Zone, edge.Team)
				case core.EdgeCompleted:
					el.OnCaptureCompleted(edge.Zone, edge.Team)
				case core.EdgeContested:
					el.OnCaptureContested(edge.Zone)
				case core.EdgeLost:
					el.OnCaptureLost(edge.Zone, edge.Team)
				}
			}
		}
		for _, edge := range edges {
			e.count("capture_" + edge.Kind.String())
		}
	})
}

// Snapshots schedules delivery of published snapshots to snapshot listeners.
func (e *Emitter) Snapshots(snapshots []core.ZoneSnapshot) {
	if len(snapshots) == 0 {
		return
	}
	snapshots = append([]core.ZoneSnapshot(nil), snapshots...)
	e.tasks.Post(func() {
		for _, l := range e.snapshot() {
			if sl, ok := l.(SnapshotListener); ok {
				sl.OnZoneSnapshots(snapshots)
			}
		}
	})
}

// Ping schedules the ping effect for a zone.
func (e *Emitter) Ping(zone core.ZoneID) {
	e.tasks.Post(func() {
		for _, l := range e.snapshot() {
			if pl, ok := l.(PingListener); ok {
				pl.OnPing(zone)
			}
		}
		e.count("ping")
	})
}

func (e *Emitter) count(event string) {
	e.delivered.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", event)))
}

func claimEvent(zone core.ZoneID, claim core.ClaimZone, tick uint64, at time.Time, entered bool) core.ClaimZoneEvent {
	return core.ClaimZoneEvent{
		Zone:    zone,
		Claim:   claim.ID,
		Time:    at,
		Tick:    tick,
		Team:    claim.Team,
		Entered: entered,
	}
}
