// Package gormstore implements the storage.Backend interface on GORM, with
// internal write queues drained by a background DB writer goroutine.
package gormstore

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rtsforge/capturepoint/internal/config"
	"github.com/rtsforge/capturepoint/internal/database"
	"github.com/rtsforge/capturepoint/internal/events"
	"github.com/rtsforge/capturepoint/internal/gamethread"
	"github.com/rtsforge/capturepoint/internal/model"
	"github.com/rtsforge/capturepoint/internal/model/convert"
	"github.com/rtsforge/capturepoint/pkg/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFlushInterval is how often the writer drains the queues.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB is used as is when set. Otherwise Init connects to postgres with DBConfig.
	DB            *gorm.DB
	DBConfig      config.DBConfig
	Logger        zerolog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Ownership   *gamethread.Queue[model.OwnershipEvent]
	Progress    *gamethread.Queue[model.ProgressSample]
	Grants      *gamethread.Queue[model.ResourceGrant]
	Claims      *gamethread.Queue[model.ClaimZoneEvent]
	Snapshots   *gamethread.Queue[model.ZoneSnapshot]
	Performance *gamethread.Queue[model.CapturePerformance]
}

func newQueues() *queues {
	return &queues{
		Ownership:   gamethread.NewQueue[model.OwnershipEvent](),
		Progress:    gamethread.NewQueue[model.ProgressSample](),
		Grants:      gamethread.NewQueue[model.ResourceGrant](),
		Claims:      gamethread.NewQueue[model.ClaimZoneEvent](),
		Snapshots:   gamethread.NewQueue[model.ZoneSnapshot](),
		Performance: gamethread.NewQueue[model.CapturePerformance](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	events.NopListener

	deps    Dependencies
	log     zerolog.Logger
	queues  *queues
	matchID atomic.Uint64

	// writeMu serialises queue flushes between the writer and EndMatch.
	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		log:    deps.Logger.With().Str("component", "gormstore").Logger(),
		queues: newQueues(),
	}
}

// Init connects when no DB was injected, migrates the schema and starts the
// DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres(b.deps.DBConfig, b.log)
		if err != nil {
			return err
		}
		b.deps.DB = db
	}

	if err := database.Migrate(b.deps.DB, b.log); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.runWriter()
	return nil
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	b.Flush()
	return nil
}

// MatchID returns the id of the running match, 0 when none.
func (b *Backend) MatchID() uint {
	return uint(b.matchID.Load())
}

// StartMatch gets or inserts the map, then inserts the match and assigns
// its id back to m.
func (b *Backend) StartMatch(m *core.Match) error {
	db := b.deps.DB

	gormMap := model.Map{MapName: m.MapName}
	created, err := gormMap.GetOrInsert(db)
	if err != nil {
		return fmt.Errorf("failed to get or insert map: %w", err)
	}
	if created {
		b.log.Info().Str("map", m.MapName).Msg("New map registered")
	}

	gormMatch := convert.CoreToMatch(*m)
	gormMatch.MapID = gormMap.ID
	if err := db.Create(&gormMatch).Error; err != nil {
		return fmt.Errorf("failed to insert new match: %w", err)
	}

	m.ID = gormMatch.ID
	b.matchID.Store(uint64(gormMatch.ID))
	b.log.Info().Uint("matchId", gormMatch.ID).Str("match", m.MatchName).Msg("Match started")
	return nil
}

// EndMatch writes the queues and stamps the match end time.
func (b *Backend) EndMatch() error {
	id := b.MatchID()
	if id == 0 {
		return fmt.Errorf("no match started")
	}
	b.Flush()

	end := sql.NullTime{Time: time.Now().UTC(), Valid: true}
	if err := b.deps.DB.Model(&model.Match{}).Where("id = ?", id).Update("end_time", end).Error; err != nil {
		return fmt.Errorf("failed to update match end time: %w", err)
	}
	b.matchID.Store(0)
	b.log.Info().Uint("matchId", id).Msg("Match ended")
	return nil
}

// RecordZone upserts the zone definition synchronously. A zone registered
// again in the same match replaces the earlier row.
func (b *Backend) RecordZone(id core.ZoneID, cfg core.ZoneConfig) error {
	matchID := b.MatchID()
	if matchID == 0 {
		return fmt.Errorf("no match started")
	}
	zone, err := convert.CoreToZone(id, cfg)
	if err != nil {
		return fmt.Errorf("failed to encode zone config: %w", err)
	}
	zone.MatchID = matchID
	return b.deps.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&zone).Error
}

// OnOwnershipChanged converts and queues an ownership change.
func (b *Backend) OnOwnershipChanged(ev core.OwnershipChange) {
	if id := b.MatchID(); id != 0 {
		row := convert.CoreToOwnershipEvent(ev)
		row.MatchID = id
		b.queues.Ownership.Push(row)
	}
}

// OnCaptureProgressUpdated converts and queues a progress sample.
func (b *Backend) OnCaptureProgressUpdated(ev core.ProgressUpdate) {
	if id := b.MatchID(); id != 0 {
		row := convert.CoreToProgressSample(ev)
		row.MatchID = id
		b.queues.Progress.Push(row)
	}
}

func (b *Backend) OnWorkAreaEntered(ev core.ClaimZoneEvent) { b.pushClaim(ev) }
func (b *Backend) OnWorkAreaExited(ev core.ClaimZoneEvent)  { b.pushClaim(ev) }

func (b *Backend) pushClaim(ev core.ClaimZoneEvent) {
	if id := b.MatchID(); id != 0 {
		row := convert.CoreToClaimZoneEvent(ev)
		row.MatchID = id
		b.queues.Claims.Push(row)
	}
}

// OnResourceGranted converts and queues a payout.
func (b *Backend) OnResourceGranted(g core.ResourceGrant) {
	if id := b.MatchID(); id != 0 {
		row := convert.CoreToResourceGrant(g)
		row.MatchID = id
		b.queues.Grants.Push(row)
	}
}

// OnZoneSnapshots converts and queues one row per zone.
func (b *Backend) OnZoneSnapshots(snaps []core.ZoneSnapshot) {
	id := b.MatchID()
	if id == 0 || len(snaps) == 0 {
		return
	}
	rows := make([]model.ZoneSnapshot, len(snaps))
	for i, s := range snaps {
		rows[i] = convert.CoreToZoneSnapshot(s)
		rows[i].MatchID = id
	}
	b.queues.Snapshots.Push(rows...)
}

// RecordTickPerformance converts and queues a performance row.
func (b *Backend) RecordTickPerformance(p core.TickPerformance) error {
	id := b.MatchID()
	if id == 0 {
		return nil
	}
	row := convert.CoreToCapturePerformance(p)
	row.MatchID = id
	b.queues.Performance.Push(row)
	return nil
}

// Pending returns the number of queued rows.
func (b *Backend) Pending() int {
	q := b.queues
	return q.Ownership.Len() + q.Progress.Len() + q.Grants.Len() +
		q.Claims.Len() + q.Snapshots.Len() + q.Performance.Len()
}

// Flush writes every queue now. It returns the number of rows written.
func (b *Backend) Flush() int {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	db, log := b.deps.DB, b.log
	n := 0
	n += writeQueue(db, b.queues.Ownership, "ownership events", log)
	n += writeQueue(db, b.queues.Progress, "progress samples", log)
	n += writeQueue(db, b.queues.Grants, "resource grants", log)
	n += writeQueue(db, b.queues.Claims, "claim zone events", log)
	n += writeQueue(db, b.queues.Snapshots, "zone snapshots", log)
	n += writeQueue(db, b.queues.Performance, "performance rows", log)
	return n
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *gamethread.Queue[T], name string, log zerolog.Logger) int {
	if q.Len() == 0 {
		return 0
	}

	items := q.TakeAll()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error().Err(err).Str("queue", name).Int("count", len(items)).Msg("Error writing queue")
		tx.Rollback()
		q.Push(items...)
		return 0
	}
	if err := tx.Commit().Error; err != nil {
		log.Error().Err(err).Str("queue", name).Msg("Error committing queue")
		q.Push(items...)
		return 0
	}
	return len(items)
}

// runWriter periodically drains the queues into the DB until Close.
func (b *Backend) runWriter() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if n := b.Flush(); n > 0 {
				b.log.Debug().Int("rows", n).Msg("Wrote queued rows")
			}
		}
	}
}
