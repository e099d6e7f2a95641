package ticking

import "github.com/rtsforge/capturepoint/pkg/core"

// Palette maps teams to display tokens. Hosts supply their own; the core never
// interprets the token.
type Palette interface {
	ColorFor(team core.TeamID) string
	Neutral() string
	Contested() string
}

// MapPalette looks a team up in Teams, then falls back to the team 0 / team 1
// defaults, then to neutral.
type MapPalette struct {
	Teams          map[core.TeamID]string
	Team0          string
	Team1          string
	NeutralColor   string
	ContestedColor string
}

// DefaultPalette returns the stock colours.
func DefaultPalette() MapPalette {
	return MapPalette{
		Teams:          map[core.TeamID]string{},
		Team0:          "#2f6fdf",
		Team1:          "#df2f2f",
		NeutralColor:   "#b3b3b3",
		ContestedColor: "#f2c12e",
	}
}

func (p MapPalette) ColorFor(team core.TeamID) string {
	if c, ok := p.Teams[team]; ok {
		return c
	}
	switch team {
	case 0:
		return p.Team0
	case 1:
		return p.Team1
	default:
		return p.NeutralColor
	}
}

func (p MapPalette) Neutral() string {
	return p.NeutralColor
}

func (p MapPalette) Contested() string {
	return p.ContestedColor
}
