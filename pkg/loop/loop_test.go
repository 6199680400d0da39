package loop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsInPostOrder(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	require.NoError(t, l.Call(func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopAfterFunc(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	t.Run("Fires", func(t *testing.T) {
		fired := make(chan struct{})
		l.AfterFunc(10*time.Millisecond, func() { close(fired) })
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timer did not fire")
		}
	})

	t.Run("StoppedNeverRuns", func(t *testing.T) {
		var ran bool
		var tm Timer
		require.NoError(t, l.Call(func() {
			tm = l.AfterFunc(5*time.Millisecond, func() { ran = true })
		}))
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, l.Call(func() {
			// The timer may already sit in the queue; Stop must still win.
			tm.Stop()
		}))
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, l.Call(func() {}))
		// The callback could legitimately have run before Stop was called;
		// what matters is that a stop after firing reports false.
		if ran {
			assert.False(t, tm.Stop())
		}
	})

	t.Run("StopBeforeFire", func(t *testing.T) {
		var ran bool
		var tm Timer
		require.NoError(t, l.Call(func() {
			tm = l.AfterFunc(50*time.Millisecond, func() { ran = true })
			assert.True(t, tm.Stop())
		}))
		time.Sleep(80 * time.Millisecond)
		require.NoError(t, l.Call(func() {}))
		assert.False(t, ran)
	})
}

func TestLoopStop(t *testing.T) {
	l := New()
	l.Start()

	var ran bool
	l.Post(func() { ran = true })
	l.Stop()
	assert.True(t, ran)

	// Posts after stop are dropped and Call reports the loop is gone.
	l.Post(func() { t.Error("ran after stop") })
	assert.ErrorIs(t, l.Call(func() {}), ErrStopped)

	// Stop is idempotent.
	l.Stop()
}

func TestManual(t *testing.T) {
	t.Run("DrainRunsNestedPosts", func(t *testing.T) {
		m := NewManual()
		var order []string
		m.Post(func() {
			order = append(order, "a")
			m.Post(func() { order = append(order, "c") })
		})
		m.Post(func() { order = append(order, "b") })

		assert.Equal(t, 3, m.Drain())
		assert.Equal(t, []string{"a", "b", "c"}, order)
	})

	t.Run("TimersFireInDeadlineOrder", func(t *testing.T) {
		m := NewManual()
		var order []string
		m.AfterFunc(3*time.Second, func() { order = append(order, "3s") })
		m.AfterFunc(1*time.Second, func() { order = append(order, "1s") })
		m.AfterFunc(2*time.Second, func() { order = append(order, "2s") })

		m.Advance(1500 * time.Millisecond)
		assert.Equal(t, []string{"1s"}, order)
		assert.Equal(t, 2, m.PendingTimers())

		m.Advance(10 * time.Second)
		assert.Equal(t, []string{"1s", "2s", "3s"}, order)
		assert.Equal(t, 0, m.PendingTimers())
	})

	t.Run("TimerArmedByTimerFiresWithinAdvance", func(t *testing.T) {
		m := NewManual()
		var fired []time.Duration
		start := m.Now()
		m.AfterFunc(time.Second, func() {
			fired = append(fired, m.Now().Sub(start))
			m.AfterFunc(time.Second, func() {
				fired = append(fired, m.Now().Sub(start))
			})
		})
		m.Advance(5 * time.Second)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fired)
		assert.Equal(t, 5*time.Second, m.Now().Sub(start))
	})

	t.Run("Stop", func(t *testing.T) {
		m := NewManual()
		var ran bool
		tm := m.AfterFunc(time.Second, func() { ran = true })
		assert.True(t, tm.Stop())
		assert.False(t, tm.Stop())
		m.Advance(2 * time.Second)
		assert.False(t, ran)
	})

	t.Run("NextDeadline", func(t *testing.T) {
		m := NewManual()
		_, ok := m.NextDeadline()
		assert.False(t, ok)

		m.AfterFunc(4*time.Second, func() {})
		m.Advance(time.Second)
		d, ok := m.NextDeadline()
		require.True(t, ok)
		assert.Equal(t, 3*time.Second, d)
	})

	t.Run("CallDrainsFirst", func(t *testing.T) {
		m := NewManual()
		var order []string
		m.Post(func() { order = append(order, "posted") })
		require.NoError(t, m.Call(func() { order = append(order, "call") }))
		assert.Equal(t, []string{"posted", "call"}, order)
	})
}
