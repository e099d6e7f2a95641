// Package websocket streams capture events to an observer server.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/rtsforge/capturepoint/pkg/streaming"
	"golang.org/x/time/rate"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
	// SnapshotsPerSecond caps snapshot batches; 0 sends every batch.
	SnapshotsPerSecond float64
}

// Backend streams match data over WebSocket. It implements storage.Backend
// but not storage.Exportable.
type Backend struct {
	conn    *connection
	cfg     Config
	limiter *rate.Limiter
	skipped atomic.Uint64
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		conn: newConnection(logger.With("component", "websocket")),
		cfg:  cfg,
	}
	if cfg.SnapshotsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.SnapshotsPerSecond), 1)
	}
	return b
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	env, err := streaming.NewEnvelope(msgType, payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		b.conn.logger.Error("Failed to encode message", "type", msgType, "error", err)
		return
	}
	b.conn.send(data)
}

// StartMatch sends the match and waits for the server ack.
func (b *Backend) StartMatch(m *core.Match) error {
	data, err := marshalEnvelope(streaming.TypeStartMatch, streaming.StartMatchPayload{Match: m})
	if err != nil {
		return err
	}
	b.conn.setStart(data)
	return b.conn.sendAndWait(data, streaming.TypeStartMatch, ackTimeout)
}

// EndMatch sends end_match and waits for the server ack.
func (b *Backend) EndMatch() error {
	data, err := marshalEnvelope(streaming.TypeEndMatch, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndMatch, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.setStart(nil)
	return err
}

func (b *Backend) OnOwnershipChanged(ev core.OwnershipChange) {
	b.sendEnvelope(streaming.TypeOwnershipChanged, ev)
}

func (b *Backend) OnCaptureProgressUpdated(ev core.ProgressUpdate) {
	b.sendEnvelope(streaming.TypeProgressUpdated, ev)
}

func (b *Backend) OnWorkAreaEntered(ev core.ClaimZoneEvent) {
	b.sendEnvelope(streaming.TypeClaimZone, ev)
}

func (b *Backend) OnWorkAreaExited(ev core.ClaimZoneEvent) {
	b.sendEnvelope(streaming.TypeClaimZone, ev)
}

func (b *Backend) OnResourceGranted(g core.ResourceGrant) {
	b.sendEnvelope(streaming.TypeResourceGrant, g)
}

// OnZoneSnapshots sends the batch unless the snapshot rate limit is spent.
// Skipped batches are not resent: the next one carries the newer state.
func (b *Backend) OnZoneSnapshots(snaps []core.ZoneSnapshot) {
	if len(snaps) == 0 {
		return
	}
	if b.limiter != nil && !b.limiter.Allow() {
		b.skipped.Add(1)
		return
	}
	b.sendEnvelope(streaming.TypeZoneSnapshot, streaming.ZoneSnapshotPayload{Snapshots: snaps})
}

// RecordTickPerformance is a no-op; performance stays on the server side.
func (b *Backend) RecordTickPerformance(core.TickPerformance) error {
	return nil
}

// Stats reports snapshot batches skipped by the rate limit and messages
// dropped because the send buffer was full.
func (b *Backend) Stats() (skipped, dropped uint64) {
	return b.skipped.Load(), b.conn.dropped.Load()
}
