package parser

import (
	"fmt"

	"github.com/rtsforge/capturepoint/internal/util"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// ParseUnit parses :UNIT:STATE: args:
//
//	0 id, 1-3 x y z, 4 team, 5 alive, 6 role, 7 isCapturePoint
//
// isCapturePoint is optional. An empty role counts as combat.
func (p *Parser) ParseUnit(data []string) (core.Unit, error) {
	var unit core.Unit
	if err := need(":UNIT:STATE:", data, 7); err != nil {
		return unit, err
	}
	data = util.CleanArgs(data)

	unit.ID = core.UnitID(data[0])
	if unit.ID == "" {
		return unit, fmt.Errorf(":UNIT:STATE: empty id")
	}

	loc, err := parseVec3(data[1], data[2], data[3])
	if err != nil {
		return unit, err
	}
	unit.Location = loc

	if unit.Team, err = parseTeam(data[4]); err != nil {
		return unit, err
	}

	if unit.Alive, err = parseBool(data[5]); err != nil {
		return unit, fmt.Errorf("error converting alive: %w", err)
	}

	unit.Role = core.Role(data[6])
	if unit.Role == "" {
		unit.Role = core.RoleCombat
	}

	if len(data) > 7 {
		if unit.IsCapturePoint, err = parseBool(data[7]); err != nil {
			return unit, fmt.Errorf("error converting isCapturePoint: %w", err)
		}
	}

	return unit, nil
}

// ParseClaimZone parses :CLAIM:STATE: args: 0 id, 1-3 x y z, 4 team, 5 tag.
// The tag is optional and defaults to the capture-point tag.
func (p *Parser) ParseClaimZone(data []string) (core.ClaimZone, error) {
	var cz core.ClaimZone
	if err := need(":CLAIM:STATE:", data, 5); err != nil {
		return cz, err
	}
	data = util.CleanArgs(data)

	cz.ID = core.ClaimZoneID(data[0])
	if cz.ID == "" {
		return cz, fmt.Errorf(":CLAIM:STATE: empty id")
	}

	loc, err := parseVec3(data[1], data[2], data[3])
	if err != nil {
		return cz, err
	}
	cz.Location = loc

	if cz.Team, err = parseTeam(data[4]); err != nil {
		return cz, err
	}

	cz.Tag = core.DefaultTag
	if len(data) > 5 && data[5] != "" {
		cz.Tag = data[5]
	}

	return cz, nil
}
