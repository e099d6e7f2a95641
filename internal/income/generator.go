package income

import (
	"github.com/rtsforge/capturepoint/pkg/core"
)

// Economy receives resource payouts.
type Economy interface {
	ModifyResource(resource core.ResourceType, team core.TeamID, amount float64)
}

// Generator runs the per-zone resource timer kept in ZoneStatus.
type Generator struct {
	Economy Economy
}

// Accrue advances the zone's resource timer by dt and returns the grants due.
// The timer resets while the zone is not fully captured, and does nothing when
// the generation interval is not positive. Mismatched type/amount lists pay the
// shorter length; zero amounts are skipped.
func (g Generator) Accrue(zone core.ZoneID, s *core.ZoneStatus, cfg core.ZoneConfig, dt float64) []core.ResourceGrant {
	if !s.Captured() {
		s.TimeSinceResourceTick = 0
		return nil
	}
	if cfg.ResourceGenerationInterval <= 0 {
		return nil
	}

	s.TimeSinceResourceTick += dt
	if s.TimeSinceResourceTick < cfg.ResourceGenerationInterval {
		return nil
	}

	pairs := cfg.ResourcePairs()
	var grants []core.ResourceGrant
	for i := 0; i < pairs; i++ {
		amount := cfg.ResourceAmounts[i]
		if amount == 0 {
			continue
		}
		grants = append(grants, core.ResourceGrant{
			Zone:     zone,
			Team:     s.OwningTeam,
			Resource: cfg.ResourceTypes[i],
			Amount:   amount,
		})
	}
	if pairs > 0 {
		s.TimeSinceResourceTick = 0
	}
	return grants
}

// Pay hands grants to the economy. A nil economy skips the payout.
func (g Generator) Pay(grants []core.ResourceGrant) int {
	if g.Economy == nil {
		return 0
	}
	for _, grant := range grants {
		g.Economy.ModifyResource(grant.Resource, grant.Team, grant.Amount)
	}
	return len(grants)
}
