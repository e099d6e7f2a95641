package match

import (
	"sync"
	"testing"

	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestContextDefaults(t *testing.T) {
	ctx := NewContext()

	m := ctx.GetMatch()
	assert.Equal(t, "No match loaded", m.MatchName)
	assert.Equal(t, core.ModeAuthority, m.Mode)
	assert.False(t, ctx.Active())
}

func TestContextLifecycle(t *testing.T) {
	ctx := NewContext()
	ctx.SetTick(40)

	ctx.SetMatch(core.Match{ID: 3, MatchName: "ranked", Mode: core.ModeObserver})
	assert.True(t, ctx.Active())
	assert.Equal(t, uint64(0), ctx.Tick(), "a new match starts at tick 0")
	assert.Equal(t, uint(3), ctx.GetMatch().ID)

	ctx.End()
	assert.False(t, ctx.Active())
	assert.Equal(t, "ranked", ctx.GetMatch().MatchName)
}

func TestContextThreadSafe(t *testing.T) {
	ctx := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx.SetTick(uint64(i))
			_ = ctx.GetMatch()
			_ = ctx.Tick()
		}(i)
	}
	wg.Wait()
}
