package streaming

import (
	"encoding/json"

	"github.com/rtsforge/capturepoint/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartMatch       = "start_match"
	TypeEndMatch         = "end_match"
	TypeZoneSnapshot     = "zone_snapshot"
	TypeOwnershipChanged = "ownership_changed"
	TypeProgressUpdated  = "progress_updated"
	TypeResourceGrant    = "resource_grant"
	TypeClaimZone        = "claim_zone"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartMatchPayload carries the match being streamed.
type StartMatchPayload struct {
	Match *core.Match `json:"match"`
}

// ZoneSnapshotPayload carries one batch of published snapshots.
type ZoneSnapshotPayload struct {
	Snapshots []core.ZoneSnapshot `json:"snapshots"`
}

// NewEnvelope marshals payload under the given message type.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}
