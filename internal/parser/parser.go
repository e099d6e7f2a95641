// Package parser converts the host's []string command arguments into core types.
// It has no dependencies beyond a logger and never touches world state.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rtsforge/capturepoint/internal/util"
	"github.com/rtsforge/capturepoint/pkg/core"
)

// ErrArgCount is returned when a command carries fewer arguments than it needs.
var ErrArgCount = errors.New("wrong number of arguments")

// parseIntFromFloat parses a string that may be an integer ("3") or a float
// ("3.00"). The engine's scripting layer has only floats, so ids and teams
// often arrive with decimals.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1":
		return true, nil
	case "false", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("parseBool: %q is not a boolean", s)
}

func parseVec3(x, y, z string) (core.Vec3, error) {
	var v core.Vec3
	var err error
	if v.X, err = strconv.ParseFloat(x, 64); err != nil {
		return v, fmt.Errorf("error converting x: %w", err)
	}
	if v.Y, err = strconv.ParseFloat(y, 64); err != nil {
		return v, fmt.Errorf("error converting y: %w", err)
	}
	if v.Z, err = strconv.ParseFloat(z, 64); err != nil {
		return v, fmt.Errorf("error converting z: %w", err)
	}
	return v, nil
}

func parseTeam(s string) (core.TeamID, error) {
	team, err := parseIntFromFloat(s)
	if err != nil {
		return core.NoTeam, fmt.Errorf("error converting team: %w", err)
	}
	if team < 0 {
		return core.NoTeam, nil
	}
	return core.TeamID(team), nil
}

func need(command string, data []string, n int) error {
	if len(data) < n {
		return fmt.Errorf("%s: got %d, need %d: %w", command, len(data), n, ErrArgCount)
	}
	return nil
}

// Parser provides pure []string -> core struct conversion.
type Parser struct {
	logger           *slog.Logger
	extensionVersion string
	extensionBuild   string
}

// NewParser creates a parser. The version strings are stamped on parsed matches.
func NewParser(logger *slog.Logger, extensionVersion, extensionBuild string) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:           logger,
		extensionVersion: extensionVersion,
		extensionBuild:   extensionBuild,
	}
}

// ParseID parses a single id argument.
func (p *Parser) ParseID(command string, data []string) (string, error) {
	if err := need(command, data, 1); err != nil {
		return "", err
	}
	id := util.CleanArgs(data)[0]
	if id == "" {
		return "", fmt.Errorf("%s: empty id", command)
	}
	return id, nil
}
