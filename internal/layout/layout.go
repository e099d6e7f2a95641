// Package layout loads a map's capture zones from YAML.
package layout

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rtsforge/capturepoint/internal/ticking"
	"github.com/rtsforge/capturepoint/pkg/core"
	"gopkg.in/yaml.v3"
)

// ErrInvalidZone is returned for zone definitions that cannot be registered.
var ErrInvalidZone = errors.New("invalid zone")

// Layout lists the zones of one map.
type Layout struct {
	Map    string           `yaml:"map"`
	Zones  []Zone           `yaml:"zones"`
	Claims []core.ClaimZone `yaml:"claims,omitempty"`
}

// Zone is one zone definition. Ticking zones become always-ticking points
// instead of batched zones. Overlap hands a ticking zone's membership to the
// host's :ZONE:ENTER: and :ZONE:LEAVE: commands.
type Zone struct {
	ID              core.ZoneID `yaml:"id"`
	Ticking         bool        `yaml:"ticking"`
	LegoTower       bool        `yaml:"legoTower"`
	Overlap         bool        `yaml:"overlap"`
	core.ZoneConfig `yaml:",inline"`
}

// Registrar is the part of the world a layout is applied to.
type Registrar interface {
	RegisterZone(id core.ZoneID, cfg core.ZoneConfig)
	SetLegoTowerBuilt(id core.ZoneID, built bool) error
	UpsertClaimZone(cz core.ClaimZone)
}

// Load reads and validates a layout file. An empty path yields an empty layout.
func Load(path string) (*Layout, error) {
	l := &Layout{}
	if strings.TrimSpace(path) == "" {
		return l, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, l); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Validate checks ids and radii.
func (l *Layout) Validate() error {
	seen := make(map[core.ZoneID]bool, len(l.Zones))
	for i, z := range l.Zones {
		if z.ID == "" {
			return fmt.Errorf("zone %d: empty id: %w", i, ErrInvalidZone)
		}
		if seen[z.ID] {
			return fmt.Errorf("zone %s: duplicate id: %w", z.ID, ErrInvalidZone)
		}
		seen[z.ID] = true
		if z.CaptureRadius < 0 || z.StartRadius < 0 {
			return fmt.Errorf("zone %s: negative radius: %w", z.ID, ErrInvalidZone)
		}
		if z.Ticking && z.CaptureRadius == 0 {
			return fmt.Errorf("zone %s: ticking zone needs a capture radius: %w", z.ID, ErrInvalidZone)
		}
	}
	for i, cz := range l.Claims {
		if cz.ID == "" {
			return fmt.Errorf("claim %d: empty id: %w", i, ErrInvalidZone)
		}
	}
	return nil
}

// Apply registers the batched zones and claim zones with reg and returns the
// always-ticking points, configured from base with per-zone overrides.
func (l *Layout) Apply(reg Registrar, base ticking.Config) ([]*ticking.Point, error) {
	var points []*ticking.Point
	for _, z := range l.Zones {
		if z.Ticking {
			pt := ticking.NewPoint(z.ID, z.Location, z.pointConfig(base))
			pt.SetLegoTowerBuilt(z.LegoTower)
			points = append(points, pt)
			continue
		}
		reg.RegisterZone(z.ID, z.ZoneConfig)
		if z.LegoTower {
			if err := reg.SetLegoTowerBuilt(z.ID, true); err != nil {
				return points, err
			}
		}
	}
	for _, cz := range l.Claims {
		if cz.Tag == "" {
			cz.Tag = core.DefaultTag
		}
		reg.UpsertClaimZone(cz)
	}
	return points, nil
}

func (z Zone) pointConfig(base ticking.Config) ticking.Config {
	cfg := base
	cfg.CaptureRadius = z.CaptureRadius
	if z.CaptureTime > 0 {
		cfg.CaptureTime = z.CaptureTime
	}
	if z.RecaptureTime > 0 {
		cfg.RecaptureTime = z.RecaptureTime
	}
	if z.MultiUnitBonus > 0 {
		cfg.MultiUnitBonus = z.MultiUnitBonus
	}
	if z.MaxCapturingUnits > 0 {
		cfg.MaxCapturingUnits = z.MaxCapturingUnits
	}
	if z.IncomeInterval > 0 {
		cfg.IncomeInterval = z.IncomeInterval
	}
	if z.IncomeAmount > 0 {
		cfg.IncomeAmount = z.IncomeAmount
	}
	if z.Overlap {
		cfg.Overlap = true
	}
	return cfg
}
