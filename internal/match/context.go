// Package match holds the match currently being played.
package match

import (
	"sync"

	"github.com/rtsforge/capturepoint/pkg/core"
)

// Context holds the current match and the latest processed tick.
type Context struct {
	mu     sync.RWMutex
	match  core.Match
	active bool
	tick   uint64
}

// NewContext creates a Context with no match loaded.
func NewContext() *Context {
	return &Context{
		match: core.Match{MatchName: "No match loaded", Mode: core.ModeAuthority},
	}
}

// GetMatch returns a copy of the current match.
func (c *Context) GetMatch() core.Match {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.match
}

// SetMatch makes m the current match and resets the tick.
func (c *Context) SetMatch(m core.Match) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.match = m
	c.active = true
	c.tick = 0
}

// End marks the current match finished. The match stays readable.
func (c *Context) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
}

// Active reports whether a match is running.
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Context) SetTick(tick uint64) {
	c.mu.Lock()
	c.tick = tick
	c.mu.Unlock()
}

func (c *Context) Tick() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tick
}
