package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockTick(t *testing.T) {
	base := time.Unix(1000, 0)
	current := base
	c := &Clock{now: func() time.Time { return current }}

	c.Start()
	current = base.Add(250 * time.Millisecond)
	elapsed, delta := c.Tick()
	assert.InDelta(t, 0.25, elapsed, 1e-9)
	assert.InDelta(t, 0.25, delta, 1e-9)

	current = base.Add(400 * time.Millisecond)
	elapsed, delta = c.Tick()
	assert.InDelta(t, 0.4, elapsed, 1e-9)
	assert.InDelta(t, 0.15, delta, 1e-9)

	c.Start()
	elapsed, delta = c.Tick()
	assert.Zero(t, elapsed)
	assert.Zero(t, delta)
}
