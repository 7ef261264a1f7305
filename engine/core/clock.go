package core

import "time"

// Clock measures frame-to-frame time for the main loop.
type Clock struct {
	now func() time.Time

	start time.Time
	last  time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Start resets the clock. The first Tick after Start reports the time since Start.
func (c *Clock) Start() {
	c.start = c.now()
	c.last = c.start
}

/**
 * @brief Advances the clock to the current time.
 * @return seconds since Start, and seconds since the previous Tick (or Start).
 */
func (c *Clock) Tick() (float64, float64) {
	t := c.now()
	delta := t.Sub(c.last).Seconds()
	c.last = t
	return t.Sub(c.start).Seconds(), delta
}
