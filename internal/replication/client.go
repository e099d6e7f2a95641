package replication

import (
	"time"

	"github.com/rtsforge/capturepoint/internal/events"
	"github.com/rtsforge/capturepoint/internal/income"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// ConfigLookup resolves a zone's spawn configuration on the observer.
type ConfigLookup interface {
	ZoneConfig(zone core.ZoneID) (core.ZoneConfig, bool)
}

// ClientPass is the observer derivation: claim-zone enter/exit for mirrored
// zones that are fully captured. It reads the mirror and never writes to it.
type ClientPass struct {
	Mirror  *Mirror
	Configs ConfigLookup
	Claims  ClaimSource
	Emitter *events.Emitter
	// DefaultTag applies to zones registered without a tag.
	DefaultTag string

	tracker *income.ClaimTracker
}

// ClaimSource is the observer's claim-zone query.
type ClaimSource = income.ClaimZoneSource

// Run derives claim events for every mirrored zone and returns how many
// events it scheduled.
func (c *ClientPass) Run(tick uint64, at time.Time) int {
	if c.tracker == nil {
		c.tracker = income.NewClaimTracker()
	}
	if c.Mirror == nil || c.Configs == nil {
		return 0
	}

	scheduled := 0
	for _, snap := range c.Mirror.All() {
		cfg, ok := c.Configs.ZoneConfig(snap.Zone)
		if !ok {
			c.tracker.Forget(snap.Zone)
			continue
		}
		if cfg.Tag == "" {
			cfg.Tag = c.DefaultTag
		}

		entered, exited := c.tracker.Update(snap.Zone, snap.OwningTeam, snap.Captured(), cfg, c.Claims)
		if c.Emitter == nil {
			continue
		}
		for _, cz := range entered {
			c.Emitter.ClaimEntered(snap.Zone, cz, tick, at)
		}
		for _, cz := range exited {
			c.Emitter.ClaimExited(snap.Zone, cz, tick, at)
		}
		scheduled += len(entered) + len(exited)
	}
	return scheduled
}
