package parser

import (
	"fmt"
	"strconv"

	"github.com/rtsforge/capturepoint/internal/util"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// ParseZone parses :ZONE:REGISTER: args:
//
//	0 id, 1-3 x y z, 4 captureRadius, 5 startRadius, 6 captureTime,
//	7 recaptureTime, 8 generationInterval, 9 resource types, 10 amounts, 11 tag
//
// The tag is optional. Lists use "a;b" or the engine array form.
func (p *Parser) ParseZone(data []string) (core.ZoneID, core.ZoneConfig, error) {
	var cfg core.ZoneConfig
	if err := need(":ZONE:REGISTER:", data, 11); err != nil {
		return "", cfg, err
	}
	data = util.CleanArgs(data)

	id := core.ZoneID(data[0])
	if id == "" {
		return "", cfg, fmt.Errorf(":ZONE:REGISTER: empty id")
	}

	loc, err := parseVec3(data[1], data[2], data[3])
	if err != nil {
		return id, cfg, err
	}
	cfg.Location = loc

	floats := []struct {
		name string
		dst  *float64
		src  string
	}{
		{"captureRadius", &cfg.CaptureRadius, data[4]},
		{"startRadius", &cfg.StartRadius, data[5]},
		{"captureTime", &cfg.CaptureTime, data[6]},
		{"recaptureTime", &cfg.RecaptureTime, data[7]},
		{"generationInterval", &cfg.ResourceGenerationInterval, data[8]},
	}
	for _, f := range floats {
		v, err := strconv.ParseFloat(f.src, 64)
		if err != nil {
			return id, cfg, fmt.Errorf("error converting %s: %w", f.name, err)
		}
		*f.dst = v
	}

	for _, t := range util.SplitList(data[9]) {
		cfg.ResourceTypes = append(cfg.ResourceTypes, core.ResourceType(t))
	}
	for _, a := range util.SplitList(data[10]) {
		amount, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return id, cfg, fmt.Errorf("error converting resource amount: %w", err)
		}
		cfg.ResourceAmounts = append(cfg.ResourceAmounts, amount)
	}
	if len(cfg.ResourceTypes) != len(cfg.ResourceAmounts) {
		p.logger.Warn("resource lists differ in length, extra entries are ignored",
			"zone", id, "types", len(cfg.ResourceTypes), "amounts", len(cfg.ResourceAmounts))
	}

	if len(data) > 11 {
		cfg.Tag = data[11]
	}

	return id, cfg, nil
}

// ParseTower parses :ZONE:TOWER: args: id, built.
func (p *Parser) ParseTower(data []string) (core.ZoneID, bool, error) {
	if err := need(":ZONE:TOWER:", data, 2); err != nil {
		return "", false, err
	}
	data = util.CleanArgs(data)

	built, err := parseBool(data[1])
	if err != nil {
		return "", false, fmt.Errorf("error converting built: %w", err)
	}
	return core.ZoneID(data[0]), built, nil
}

// ParseBalance parses :BALANCE: args: team, resource.
func (p *Parser) ParseBalance(data []string) (core.TeamID, core.ResourceType, error) {
	if err := need(":BALANCE:", data, 2); err != nil {
		return core.NoTeam, "", err
	}
	data = util.CleanArgs(data)

	team, err := parseTeam(data[0])
	if err != nil {
		return core.NoTeam, "", err
	}
	if data[1] == "" {
		return team, "", fmt.Errorf(":BALANCE: empty resource")
	}
	return team, core.ResourceType(data[1]), nil
}

// ParseZoneEnter parses :ZONE:ENTER: args: zone id followed by the
// :UNIT:STATE: fields of the unit that entered.
func (p *Parser) ParseZoneEnter(data []string) (core.ZoneID, core.Unit, error) {
	if err := need(":ZONE:ENTER:", data, 8); err != nil {
		return "", core.Unit{}, err
	}
	zone := core.ZoneID(util.CleanArgs(data[:1])[0])
	if zone == "" {
		return "", core.Unit{}, fmt.Errorf(":ZONE:ENTER: empty zone id")
	}
	unit, err := p.ParseUnit(data[1:])
	if err != nil {
		return "", core.Unit{}, fmt.Errorf(":ZONE:ENTER: %w", err)
	}
	return zone, unit, nil
}

// ParseZoneLeave parses :ZONE:LEAVE: args: zone id, unit id.
func (p *Parser) ParseZoneLeave(data []string) (core.ZoneID, core.UnitID, error) {
	if err := need(":ZONE:LEAVE:", data, 2); err != nil {
		return "", "", err
	}
	data = util.CleanArgs(data)
	if data[0] == "" || data[1] == "" {
		return "", "", fmt.Errorf(":ZONE:LEAVE: empty id")
	}
	return core.ZoneID(data[0]), core.UnitID(data[1]), nil
}
