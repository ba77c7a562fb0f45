package fifo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPopRoundTrip(t *testing.T) {
	f := New[int16](8)
	samples := []int16{1, 2, 3, 4, 5, 6, 7}
	for _, s := range samples {
		require.True(t, f.Push(s))
	}
	require.True(t, f.IsFull() == false, "one slot of margin should remain free of max capacity usage in this test")

	for _, want := range samples {
		got, ok := f.Pop()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	require.True(t, f.IsEmpty())
}

func TestFullFIFORejectsPush(t *testing.T) {
	f := New[uint16](4)
	for i := 0; i < 4; i++ {
		require.True(t, f.Push(uint16(i)))
	}
	require.True(t, f.IsFull())
	require.False(t, f.Push(99))
}

func TestEmptyFIFOPopFails(t *testing.T) {
	f := New[uint16](2)
	_, ok := f.Pop()
	require.False(t, ok)
}

func TestClearResetsState(t *testing.T) {
	f := New[uint16](4)
	f.Push(1)
	f.Push(2)
	f.Clear()
	require.True(t, f.IsEmpty())
	require.Equal(t, 0, f.Len())
	_, ok := f.Pop()
	require.False(t, ok)
}

func TestWrapAround(t *testing.T) {
	f := New[uint16](4)
	for i := 0; i < 4; i++ {
		f.Push(uint16(i))
	}
	f.Pop()
	f.Pop()
	f.Push(10)
	f.Push(11)
	var got []uint16
	for !f.IsEmpty() {
		v, _ := f.Pop()
		got = append(got, v)
	}
	require.Equal(t, []uint16{2, 3, 10, 11}, got)
}
