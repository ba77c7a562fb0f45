package ucode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nitro-dsp-hle/internal/clock"
	"nitro-dsp-hle/internal/membus"
)

func newTestGraphics() (*Graphics, *membus.FlatHostBus, *clock.Wheel) {
	data := &membus.BankTable{}
	for i := 0; i < membus.BankCount; i++ {
		var bank [membus.BankSize]byte
		data.MapBank(i, &bank)
	}
	bus := membus.NewFlatHostBus(1 << 20)
	sub := NewSubstrate(bus, data, nil, nil, 0)
	sched := clock.NewWheel()
	gr := NewGraphics(sub, sched, 0)
	// Start writes the pipe descriptors; draining REP2's initial reply fires
	// INIT_DONE, whose post is drained as well.
	gr.Start()
	gr.RecvData(0)
	gr.RecvData(1)
	gr.RecvData(2)
	gr.RecvData(2)
	return gr, bus, sched
}

func sendScaleCmd(gr *Graphics, srcAddr, dstAddr uint32, filter, stride, height, scaleW, scaleH, rectX, rectY, rectW, rectH uint16) {
	words := []uint16{
		uint16(srcAddr), uint16(srcAddr >> 16),
		uint16(dstAddr), uint16(dstAddr >> 16),
		filter, stride, height, scaleW, scaleH, rectX, rectY, rectW, rectH, 0,
	}
	gr.WritePipe(7, words)
	gr.SendData(0, 1)
}

func sendYUVCmd(gr *Graphics, length, srcAddr, dstAddr uint32) {
	words := []uint16{
		uint16(length), uint16(length >> 16),
		uint16(srcAddr), uint16(srcAddr >> 16),
		uint16(dstAddr), uint16(dstAddr >> 16),
	}
	gr.WritePipe(7, words)
	gr.SendData(0, 2)
}

func TestGraphicsYUVMidrangeIdentity(t *testing.T) {
	gr, bus, sched := newTestGraphics()
	bus.Write8(0x1000, 128)
	bus.Write8(0x1001, 128)
	bus.Write8(0x1002, 128)
	bus.Write8(0x1003, 128)

	sendYUVCmd(gr, 4, 0x1000, 0x2000)
	sched.Advance(24*2 + 200)

	require.Equal(t, uint16(1), gr.RecvData(1))
	want := uint16(0x8000 | (16 << 0) | (16 << 5) | (16 << 10))
	word := bus.Read32(0x2000)
	require.Equal(t, want, uint16(word))
	require.Equal(t, want, uint16(word>>16))
}

// A solid-color source is the one input for which bilinear blending at
// scale=1000 is exactly identity at every destination pixel regardless of
// the -2 step bias: all four sampled neighbors equal the same color, and
// the fractional weights on each axis always sum to exactly 0x400.
func TestGraphicsBilinearIdentityAtScale1000(t *testing.T) {
	gr, bus, sched := newTestGraphics()
	const w, h = 4, 4
	solid := packRGB555(5, 10, 20)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bus.Write16(0x1000+uint32(y*w+x)*2, solid)
		}
	}

	sendScaleCmd(gr, 0x1000, 0x2000, filterBilinear, w, h, 1000, 1000, 0, 0, w, h)
	sched.Advance(4*w*h + 58*w*h + 200)

	require.Equal(t, uint16(1), gr.RecvData(1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			got := bus.Read16(0x2000 + uint32(y*w+x)*2)
			require.Equal(t, solid, got)
		}
	}
}

func TestGraphicsOneThirdRectW3Accepted(t *testing.T) {
	gr, _, _ := newTestGraphics()
	sendScaleCmd(gr, 0x1000, 0x2000, filterOneThird, 3, 3, 0, 0, 0, 0, 3, 3)
	require.Equal(t, 1, gr.CmdState, "a rect width/height that is a multiple of 3 must be accepted")
}

func TestGraphicsOneThirdRectW4Rejected(t *testing.T) {
	gr, _, _ := newTestGraphics()
	sendScaleCmd(gr, 0x1000, 0x2000, filterOneThird, 4, 4, 0, 0, 0, 0, 4, 4)
	require.Equal(t, 0, gr.CmdState)
	require.Equal(t, uint16(0), gr.RecvData(1), "a non-multiple-of-3 rect must be rejected with REP1 <- 0")
}

func TestGraphicsBilinearRectW8192Accepted(t *testing.T) {
	gr, _, _ := newTestGraphics()
	sendScaleCmd(gr, 0x1000, 0x2000, filterBilinear, 8192, 1, 1000, 1000, 0, 0, 8192, 1)
	require.Equal(t, 1, gr.CmdState)
}

func TestGraphicsBilinearRectW8193Rejected(t *testing.T) {
	gr, _, _ := newTestGraphics()
	sendScaleCmd(gr, 0x1000, 0x2000, filterBilinear, 8193, 1, 1000, 1000, 0, 0, 8193, 1)
	require.Equal(t, 0, gr.CmdState)
	require.Equal(t, uint16(0), gr.RecvData(1))
}

func TestGraphicsBicubicRectW4096Accepted(t *testing.T) {
	gr, _, _ := newTestGraphics()
	sendScaleCmd(gr, 0x1000, 0x2000, filterBicubic, 4096, 1, 1000, 1000, 0, 0, 4096, 1)
	require.Equal(t, 1, gr.CmdState)
}

func TestGraphicsBicubicRectW4097Rejected(t *testing.T) {
	gr, _, _ := newTestGraphics()
	sendScaleCmd(gr, 0x1000, 0x2000, filterBicubic, 4097, 1, 1000, 1000, 0, 0, 4097, 1)
	require.Equal(t, 0, gr.CmdState)
	require.Equal(t, uint16(0), gr.RecvData(1))
}

func TestGraphicsUnknownCommandRejectedSynchronously(t *testing.T) {
	gr, _, _ := newTestGraphics()
	gr.SendData(0, 99)
	require.Equal(t, uint16(0), gr.RecvData(1))
}
