package admission

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const window = time.Second

// Controller is a token bucket that refills to full capacity once per
// one-second window. Windows are aligned to the controller's creation time
// and unused permits do not carry over.
type Controller struct {
	mu          sync.Mutex
	clock       clock.PassiveClock
	enabled     bool
	capacity    int64
	tokens      int64
	windowStart time.Time
}

// New returns a Controller admitting up to maxPerSec events per window. When
// enabled is false every call to TryAdmit succeeds.
func New(maxPerSec int, enabled bool, clk clock.PassiveClock) *Controller {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if maxPerSec < 0 {
		maxPerSec = 0
	}
	return &Controller{
		clock:       clk,
		enabled:     enabled,
		capacity:    int64(maxPerSec),
		tokens:      int64(maxPerSec),
		windowStart: clk.Now(),
	}
}

// TryAdmit takes one permit without blocking.
func (c *Controller) TryAdmit() bool {
	if !c.enabled {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.refill()
	if c.tokens == 0 {
		return false
	}
	c.tokens--
	return true
}

// Available returns the permits left in the current window.
func (c *Controller) Available() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refill()
	return c.tokens
}

func (c *Controller) Enabled() bool {
	return c.enabled
}

func (c *Controller) Capacity() int64 {
	return c.capacity
}

// refill must be called with mu held.
func (c *Controller) refill() {
	elapsed := c.clock.Since(c.windowStart)
	if elapsed < window {
		return
	}
	c.windowStart = c.windowStart.Add(elapsed.Truncate(window))
	c.tokens = c.capacity
}
