package ucode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nitro-dsp-hle/internal/membus"
)

func newTestSubstrate() (*Substrate, *membus.BankTable) {
	data := &membus.BankTable{}
	for i := 0; i < membus.BankCount; i++ {
		var bank [membus.BankSize]byte
		data.MapBank(i, &bank)
	}
	bus := membus.NewFlatHostBus(1 << 20)
	return NewSubstrate(bus, data, nil, nil, 0x40), data
}

func TestStartWritesPipeDescriptorsAndInitialReplies(t *testing.T) {
	s, data := newTestSubstrate()
	s.Start()

	for i := 0; i < 16; i++ {
		require.Equal(t, uint16(PipeBufferAddr+0x100*uint32(i)), data.ReadWord(PipeMonitorAddr+uint32(i*5)))
		require.Equal(t, uint16(0x0200), data.ReadWord(PipeMonitorAddr+uint32(i*5+1)))
	}

	require.Equal(t, uint16(1), s.RecvData(0))
	require.Equal(t, uint16(1), s.RecvData(1))
	// Draining REP2's initial "1" fires INIT_DONE, which immediately posts
	// PIPE_MONITOR_ADDR as the next REP2 value.
	require.Equal(t, uint16(1), s.RecvData(2))
	require.Equal(t, uint16(PipeMonitorAddr), s.RecvData(2))
}

func TestRecvDataNotReadyReturnsZero(t *testing.T) {
	s, _ := newTestSubstrate()
	require.Equal(t, uint16(0), s.RecvData(0))
}

func TestSendDataSetsCmdRegAndWrittenFlag(t *testing.T) {
	s, _ := newTestSubstrate()
	s.SendData(0, 0x1234)
	require.True(t, s.CmdWritten[0])
	require.Equal(t, uint16(0x1234), s.CmdReg[0])
}

func TestSendDataDropsWhenSlotFull(t *testing.T) {
	s, _ := newTestSubstrate()
	s.SendData(0, 1)
	s.SendData(0, 2)
	require.Equal(t, uint16(1), s.CmdReg[0], "second write must be dropped while the slot is still full")
}

func TestExitSequence(t *testing.T) {
	s, _ := newTestSubstrate()
	s.SendData(2, 0x8000)
	require.True(t, s.Exit)
	require.Equal(t, uint16(0x8000), s.RecvData(2))

	s.SendData(0, 99)
	require.True(t, s.CmdWritten[0], "the written flag is always set, even in exit state")
	require.Equal(t, uint16(99), s.CmdReg[0])
}

func TestPipeWriteReadRoundTrip(t *testing.T) {
	s, _ := newTestSubstrate()
	s.setPipeWord(3, 0, uint16(0x3000))
	s.setPipeWord(3, 1, 0x0010) // 8 words
	s.setPipeWord(3, 2, 0)
	s.setPipeWord(3, 3, 0)
	s.setPipeWord(3, 4, 3)

	written := s.WritePipe(3, []uint16{10, 20, 30, 40, 50, 60, 70})
	require.Equal(t, 7, written, "all 7 words fit in the 8-word ring")

	got := s.ReadPipe(3, 7)
	require.Equal(t, []uint16{10, 20, 30, 40, 50, 60, 70}, got)
}

func TestPipeWrapTogglesPhaseBit(t *testing.T) {
	s, _ := newTestSubstrate()
	// A 4-word ring (8 bytes), pre-positioned one slot before the wrap
	// point so a short write has to cross it mid-series.
	s.setPipeWord(5, 0, uint16(0x3100))
	s.setPipeWord(5, 1, 0x0008)
	s.setPipeWord(5, 2, 6) // rd/wr start at word index 3 (byte offset 6), one word before the wrap point
	s.setPipeWord(5, 3, 6)
	s.setPipeWord(5, 4, 5)
	require.Equal(t, uint16(0), s.GetPipeLength(5), "rd == wr, same phase, starts empty")

	written := s.WritePipe(5, []uint16{100, 200})
	require.Equal(t, 2, written)
	require.Equal(t, uint16(2), s.GetPipeLength(5))

	p3 := s.pipeWord(5, 3)
	require.Less(t, p3&0x7FFF, uint16(0x0008), "write pointer must stay within [0, pipe[1])")
	require.Equal(t, uint16(0x8000), p3&0x8000, "wrapping must flip the write phase bit")

	got := s.ReadPipe(5, 2)
	require.Equal(t, []uint16{100, 200}, got)
}

func TestPipeLengthWithPhaseFlipVsSamePhase(t *testing.T) {
	s, _ := newTestSubstrate()
	s.setPipeWord(6, 1, 0x0100)
	s.setPipeWord(6, 2, 0)
	s.setPipeWord(6, 3, 0)
	require.Equal(t, uint16(0), s.GetPipeLength(6), "rd == wr, same phase, is empty")

	s.setPipeWord(6, 2, 0x8000) // phase flip, same byte offset
	require.Equal(t, uint16(0x80), s.GetPipeLength(6), "rd == wr with differing phase is full")
}

func TestSemaphoreMaskGatesIRQ(t *testing.T) {
	s, _ := newTestSubstrate()
	raised := false
	s.IrqSem = func() { raised = true }

	s.MaskSemaphore(0x8000)
	s.setSemaphoreOut(0x8000)
	require.False(t, raised)
	require.Equal(t, uint16(0x8000), s.GetSemaphore())

	s.MaskSemaphore(0)
	s.SemaphoreOut = 0
	s.setSemaphoreOut(0x8000)
	require.True(t, raised)
}

func TestSemClearClearsBits(t *testing.T) {
	s, _ := newTestSubstrate()
	s.SemaphoreOut = 0xFFFF
	s.ClearSemaphore(0x00FF)
	require.Equal(t, uint16(0xFF00), s.GetSemaphore())
}

func TestAudioPlayDrainsFIFOAndSignalsCompletion(t *testing.T) {
	s, _ := newTestSubstrate()
	s.Bus.Write16(0x100, uint16(int16(100)))
	s.Bus.Write16(0x102, uint16(int16(200)))

	s.AudioOutAddr = 0x100
	s.AudioOutLength = 2
	s.AudioPlaying = true
	s.audioOutAdvance()

	require.False(t, s.AudioPlaying)
	var out [2]int16
	s.SampleClock(&out, 0)
	require.Equal(t, int16(100), out[0])
	require.Equal(t, int16(100), out[1])
}

func TestHalveRule(t *testing.T) {
	require.Equal(t, int16(50), halve(100))
	require.Equal(t, int16(-50), halve(-100))
	require.Equal(t, int16(0), halve(1))
}
