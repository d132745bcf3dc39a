package admission

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestTryAdmitBoundsRate(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(1000, 0))
	c := New(100, true, clk)

	admitted, rejected := 0, 0
	for i := 0; i < 250; i++ {
		if c.TryAdmit() {
			admitted++
		} else {
			rejected++
		}
	}
	assert.Equal(t, 100, admitted)
	assert.Equal(t, 150, rejected)
	assert.Equal(t, int64(0), c.Available())
}

func TestRefillOncePerWindow(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(1000, 0))
	c := New(10, true, clk)

	for i := 0; i < 10; i++ {
		require.True(t, c.TryAdmit())
	}
	require.False(t, c.TryAdmit())

	clk.SetTime(clk.Now().Add(999 * time.Millisecond))
	assert.False(t, c.TryAdmit(), "no refill before the window ends")

	clk.SetTime(clk.Now().Add(time.Millisecond))
	assert.Equal(t, int64(10), c.Available())
	assert.True(t, c.TryAdmit())
}

func TestNoCarryOver(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(1000, 0))
	c := New(5, true, clk)

	// idle for several windows, then burst
	clk.SetTime(clk.Now().Add(10 * time.Second))
	admitted := 0
	for i := 0; i < 20; i++ {
		if c.TryAdmit() {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)
}

func TestWindowsStayAligned(t *testing.T) {
	start := time.Unix(1000, 0)
	clk := clocktesting.NewFakePassiveClock(start)
	c := New(3, true, clk)

	clk.SetTime(start.Add(1500 * time.Millisecond))
	for i := 0; i < 3; i++ {
		require.True(t, c.TryAdmit())
	}
	require.False(t, c.TryAdmit())

	// the second window ends at start+2s, not start+2.5s
	clk.SetTime(start.Add(2 * time.Second))
	assert.True(t, c.TryAdmit())
}

func TestDisabledAlwaysAdmits(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(1000, 0))
	c := New(1, false, clk)

	for i := 0; i < 1000; i++ {
		require.True(t, c.TryAdmit())
	}
	assert.False(t, c.Enabled())
	assert.Equal(t, int64(1), c.Available(), "budget is not consulted when disabled")
}

func TestZeroCapacityRejects(t *testing.T) {
	c := New(0, true, clocktesting.NewFakePassiveClock(time.Unix(1000, 0)))
	assert.False(t, c.TryAdmit())
}

func TestConcurrentAdmission(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(1000, 0))
	c := New(1000, true, clk)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if c.TryAdmit() {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), admitted.Load())
}

func BenchmarkTryAdmit(b *testing.B) {
	c := New(b.N+1, true, nil)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.TryAdmit()
		}
	})
}
