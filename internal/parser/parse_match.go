package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/rtsforge/capturepoint/internal/util"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// ParseMatch parses :INIT: args: matchName, mapName and an optional mode.
func (p *Parser) ParseMatch(data []string) (core.Match, error) {
	var match core.Match
	if err := need(":INIT:", data, 2); err != nil {
		return match, err
	}
	data = util.CleanArgs(data)

	match.MatchName = data[0]
	match.MapName = data[1]
	match.Mode = core.ModeAuthority
	if len(data) > 2 && data[2] != "" {
		switch mode := core.Mode(strings.ToLower(data[2])); mode {
		case core.ModeAuthority, core.ModeObserver:
			match.Mode = mode
		default:
			return match, fmt.Errorf("error converting mode: unknown mode %q", data[2])
		}
	}
	match.StartTime = time.Now().UTC()
	match.ExtensionVersion = p.extensionVersion
	match.ExtensionBuild = p.extensionBuild

	return match, nil
}
