package clock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheduleFiresAtDueCycle(t *testing.T) {
	w := NewWheel()
	var fired []uint32
	w.RegisterEventFunc("evt", func(param uint32) { fired = append(fired, param) })

	w.Schedule("evt", 100, 7)
	w.Advance(50)
	require.Empty(t, fired)

	w.Advance(50)
	require.Equal(t, []uint32{7}, fired)
}

func TestRescheduleReplacesPending(t *testing.T) {
	w := NewWheel()
	var fired []uint32
	w.RegisterEventFunc("evt", func(param uint32) { fired = append(fired, param) })

	w.Schedule("evt", 10, 1)
	w.Schedule("evt", 10, 2)
	w.Advance(10)
	require.Equal(t, []uint32{2}, fired)
}

func TestCancelRemovesPending(t *testing.T) {
	w := NewWheel()
	fired := false
	w.RegisterEventFunc("evt", func(param uint32) { fired = true })

	w.Schedule("evt", 10, 0)
	w.Cancel("evt")
	w.Advance(20)
	require.False(t, fired)
}

func TestEventsFireInScheduleOrderOnSameCycle(t *testing.T) {
	w := NewWheel()
	var order []string
	w.RegisterEventFunc("a", func(uint32) { order = append(order, "a") })
	w.RegisterEventFunc("b", func(uint32) { order = append(order, "b") })

	w.Schedule("a", 5, 0)
	w.Schedule("b", 5, 0)
	w.Advance(5)
	require.Equal(t, []string{"a", "b"}, order)
}

func TestRecurringCatchUpReschedulesItself(t *testing.T) {
	w := NewWheel()
	ticks := 0
	var tick EventFunc
	tick = func(uint32) {
		ticks++
		w.Schedule("tick", 4096, 0)
	}
	w.RegisterEventFunc("tick", tick)
	w.Schedule("tick", 4096, 0)

	w.Advance(4096 * 3)
	require.Equal(t, 3, ticks)
}
