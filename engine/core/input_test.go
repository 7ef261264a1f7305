package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputKeyTransitions(t *testing.T) {
	bus := NewEventBus()
	pressed := 0
	bus.Register(EVENT_CODE_KEY_PRESSED, t, func(ctx EventContext, _ interface{}) bool {
		assert.Equal(t, KEY_R, ctx.Data.(*KeyEvent).KeyCode)
		pressed++
		return true
	})

	in := NewInput(bus)
	in.ProcessKey(KEY_R, true)
	in.ProcessKey(KEY_R, true)
	assert.Equal(t, 1, pressed, "repeated state does not fire")
	assert.True(t, in.KeyPressed(KEY_R))

	in.Update(0.016)
	assert.True(t, in.IsKeyDown(KEY_R))
	assert.False(t, in.KeyPressed(KEY_R), "held key is not a new press")

	in.ProcessKey(KEY_R, false)
	assert.True(t, in.IsKeyUp(KEY_R))
}

func TestInputMouseDeltaAndWheel(t *testing.T) {
	in := NewInput(nil)
	in.ProcessMouseMove(100, 50)
	in.Update(0)

	in.ProcessMouseMove(110, 45)
	in.ProcessMouseWheel(2)
	in.ProcessMouseWheel(-1)
	in.ProcessButton(BUTTON_MIDDLE, true)

	dx, dy := in.MouseDelta()
	assert.Equal(t, int32(10), dx)
	assert.Equal(t, int32(-5), dy)
	assert.Equal(t, int32(1), in.WheelDelta())
	assert.True(t, in.IsButtonDown(BUTTON_MIDDLE))
	assert.False(t, in.WasButtonDown(BUTTON_MIDDLE))

	in.Update(0)
	dx, dy = in.MouseDelta()
	assert.Zero(t, dx)
	assert.Zero(t, dy)
	assert.Zero(t, in.WheelDelta())
	assert.True(t, in.WasButtonDown(BUTTON_MIDDLE))
}
