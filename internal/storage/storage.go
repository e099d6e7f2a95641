package storage

import (
	"github.com/rtsforge/capturepoint/internal/events"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// Backend is the interface all storage implementations must satisfy. Backends
// are registered with the event emitter, so every callback runs on the
// authoritative loop after the tick that produced it.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Match management
	StartMatch(match *core.Match) error
	EndMatch() error

	// Capture events
	events.Listener
	events.GrantListener
	events.SnapshotListener

	// Performance
	RecordTickPerformance(p core.TickPerformance) error
}

// Exportable is an optional interface for backends that write a match file
// to disk when the match ends.
type Exportable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.ExportMetadata
}

// ZoneRecorder is an optional interface for backends that keep the
// definition of every zone registered during a match.
type ZoneRecorder interface {
	RecordZone(id core.ZoneID, cfg core.ZoneConfig) error
}
