// Package ucode implements the host-visible DSP protocol substrate every
// concrete microcode (AAC, G.711, Graphics) builds on, plus the three
// concrete microcodes themselves.
package ucode

import (
	"nitro-dsp-hle/internal/debug"
	"nitro-dsp-hle/internal/fifo"
	"nitro-dsp-hle/internal/membus"
	"nitro-dsp-hle/internal/mic"
)

// Fixed DSP data-memory addresses, word-addressed.
const (
	PipeMonitorAddr uint32 = 0x0800
	PipeBufferAddr  uint32 = 0x1000
	MicBufferAddr   uint32 = 0x2000
)

// ReplyCallbackKind tags the deferred action fired when the host drains a
// reply register that had one installed.
type ReplyCallbackKind int

const (
	ReplyNone ReplyCallbackKind = iota
	ReplyInitDone
	ReplyAudioPlayDone
	ReplyMicCmdDone
)

// ReplyCallback is the small tagged union the substrate stores per reply
// slot; only REP2 ever has one installed by the concrete ucodes in this
// system, but the mechanism is generic across all three slots.
type ReplyCallback struct {
	Kind  ReplyCallbackKind
	Param uint32
}

// Ucode classes, used to build the savestate identity (class<<16)|version.
const (
	ClassAAC = iota
	ClassGraphics
	ClassG711
)

// Ucode is the shared contract the dispatcher holds a boxed instance of.
// Composition, not inheritance: every concrete type embeds *Substrate for
// the shared plumbing and overrides Reset/SendData for its own protocol.
type Ucode interface {
	ID() uint32
	Reset()
	Start()
	SendData(index int, val uint16)
	RecvData(index int) uint16
	SampleClock(out *[2]int16, in int16)
}

// Substrate holds every piece of state and behavior common to all three
// concrete ucodes: command/reply registers, pipe rings, semaphores,
// audio-out mixing and mic-in capture.
type Substrate struct {
	Bus    membus.Bus     // host CPU memory
	Data   *membus.BankTable // DSP data-memory window (pipes, mic ring, scratch)
	Mic    mic.Source
	Logger *debug.Logger

	// UcodeVersion distinguishes the early DSi sound app AAC variant
	// (-1), which ignores the audio halve flag.
	UcodeVersion int32

	CmdReg       [3]uint16
	CmdWritten   [3]bool
	ReplyReg     [3]uint16
	ReplyWritten [3]bool
	ReplyCb      [3]ReplyCallback

	SemaphoreIn   uint16
	SemaphoreOut  uint16
	SemaphoreMask uint16

	Exit bool

	AudioPlaying   bool
	AudioOutHalve  bool
	AudioOutAddr   uint32
	AudioOutLength uint32
	AudioOutFIFO   *fifo.FIFO[int16]

	MicSampling bool
	MicInFIFO   *fifo.FIFO[int16]

	IrqRep0 func()
	IrqRep1 func()
	IrqRep2 func()
	IrqSem  func()
}

// NewSubstrate wires a fresh substrate against its collaborators. bus and
// data must not be nil; micSource and logger may be nil.
func NewSubstrate(bus membus.Bus, data *membus.BankTable, micSource mic.Source, logger *debug.Logger, version int32) *Substrate {
	return &Substrate{
		Bus:          bus,
		Data:         data,
		Mic:          micSource,
		Logger:       logger,
		UcodeVersion: version,
		AudioOutFIFO: fifo.New[int16](16),
		MicInFIFO:    fifo.New[int16](8),
	}
}

// SubstrateState is the gob-serializable snapshot of everything Substrate
// itself owns. It excludes Bus, Data, Mic, Logger, and the Irq* callbacks,
// which are wiring supplied fresh by whoever reconstructs the ucode.
type SubstrateState struct {
	UcodeVersion int32

	CmdReg       [3]uint16
	CmdWritten   [3]bool
	ReplyReg     [3]uint16
	ReplyWritten [3]bool
	ReplyCb      [3]ReplyCallback

	SemaphoreIn   uint16
	SemaphoreOut  uint16
	SemaphoreMask uint16

	Exit bool

	AudioPlaying   bool
	AudioOutHalve  bool
	AudioOutAddr   uint32
	AudioOutLength uint32
	AudioOutFIFO   fifo.FIFO[int16]

	MicSampling bool
	MicInFIFO   fifo.FIFO[int16]
}

// SaveState captures the substrate's own fields, independent of whichever
// concrete ucode embeds it.
func (s *Substrate) SaveState() SubstrateState {
	return SubstrateState{
		UcodeVersion:   s.UcodeVersion,
		CmdReg:         s.CmdReg,
		CmdWritten:     s.CmdWritten,
		ReplyReg:       s.ReplyReg,
		ReplyWritten:   s.ReplyWritten,
		ReplyCb:        s.ReplyCb,
		SemaphoreIn:    s.SemaphoreIn,
		SemaphoreOut:   s.SemaphoreOut,
		SemaphoreMask:  s.SemaphoreMask,
		Exit:           s.Exit,
		AudioPlaying:   s.AudioPlaying,
		AudioOutHalve:  s.AudioOutHalve,
		AudioOutAddr:   s.AudioOutAddr,
		AudioOutLength: s.AudioOutLength,
		AudioOutFIFO:   *s.AudioOutFIFO,
		MicSampling:    s.MicSampling,
		MicInFIFO:      *s.MicInFIFO,
	}
}

// LoadState restores previously saved substrate fields in place. The
// caller must have already wired Bus/Data/Mic/Logger/Irq* on s.
func (s *Substrate) LoadState(st SubstrateState) {
	s.UcodeVersion = st.UcodeVersion
	s.CmdReg = st.CmdReg
	s.CmdWritten = st.CmdWritten
	s.ReplyReg = st.ReplyReg
	s.ReplyWritten = st.ReplyWritten
	s.ReplyCb = st.ReplyCb
	s.SemaphoreIn = st.SemaphoreIn
	s.SemaphoreOut = st.SemaphoreOut
	s.SemaphoreMask = st.SemaphoreMask
	s.Exit = st.Exit
	s.AudioPlaying = st.AudioPlaying
	s.AudioOutHalve = st.AudioOutHalve
	s.AudioOutAddr = st.AudioOutAddr
	s.AudioOutLength = st.AudioOutLength
	*s.AudioOutFIFO = st.AudioOutFIFO
	s.MicSampling = st.MicSampling
	*s.MicInFIFO = st.MicInFIFO
}

// SubstrateRef returns s itself. It exists so code holding a boxed Ucode
// interface value (which only promises ID/Reset/Start/SendData/RecvData/
// SampleClock) can still reach the shared substrate fields — semaphores,
// pipes, reply-written flags — that the MMIO front-end needs but the
// narrow interface does not expose.
func (s *Substrate) SubstrateRef() *Substrate { return s }

func (s *Substrate) logf(level debug.LogLevel, format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.LogDSPf(level, format, args...)
	}
}

// Reset zeroes all substrate state. It does not touch DSP memory; Start
// does that once the ucode is actually released from reset.
func (s *Substrate) Reset() {
	s.Exit = false
	s.CmdReg = [3]uint16{}
	s.CmdWritten = [3]bool{}
	s.ReplyReg = [3]uint16{}
	s.ReplyWritten = [3]bool{}
	s.ReplyCb = [3]ReplyCallback{}
	s.SemaphoreIn = 0
	s.SemaphoreOut = 0
	s.SemaphoreMask = 0
	s.AudioPlaying = false
	s.AudioOutHalve = false
	s.AudioOutAddr = 0
	s.AudioOutLength = 0
	s.AudioOutFIFO.Clear()
	s.MicSampling = false
	s.MicInFIFO.Clear()
}

// Start writes the 16 pipe-ring descriptors and posts the three initial
// replies, installing the INIT_DONE callback on REP2 the way a freshly
// released DSP core announces itself to the host.
func (s *Substrate) Start() {
	for i := 0; i < 16; i++ {
		s.setPipeWord(i, 0, uint16(PipeBufferAddr+0x100*uint32(i)))
		s.setPipeWord(i, 1, 0x0200)
		s.setPipeWord(i, 2, 0)
		s.setPipeWord(i, 3, 0)
		s.setPipeWord(i, 4, uint16(i))
	}
	s.SendReply(0, 1)
	s.SendReply(1, 1)
	s.SendReply(2, 1)
	s.SetReplyReadCallback(2, ReplyInitDone, 0)
}

// SendData is the host-side command write. Concrete ucodes call this
// first, then layer their own per-index parameter collection on top.
func (s *Substrate) SendData(index int, val uint16) {
	if s.CmdWritten[index] {
		s.logf(debug.LogLevelWarning, "dropped write to CMD%d = %04X: slot still full", index, val)
		return
	}
	s.CmdReg[index] = val
	s.CmdWritten[index] = true

	if s.Exit {
		return
	}

	if index == 2 {
		switch val {
		case 0x8000:
			s.SendReply(2, 0x8000)
			s.Exit = true
		case 0x0005:
			s.tryStartAudioCmd()
		}
		s.CmdWritten[2] = false
	}
}

// RecvData is the host-side reply read. A not-ready register returns 0
// rather than blocking, per the protocol's no-stall rule.
func (s *Substrate) RecvData(index int) uint16 {
	if !s.ReplyWritten[index] {
		return 0
	}
	val := s.ReplyReg[index]
	s.ReplyWritten[index] = false

	cb := s.ReplyCb[index]
	if cb.Kind != ReplyNone {
		s.ReplyCb[index] = ReplyCallback{}
		s.fireReplyCallback(cb)
	}
	return val
}

// SendReply is the DSP-side reply post; it raises the matching IRQ line
// unconditionally (gating by the host's REPn-enable bits is the MMIO
// front-end's job, not the substrate's).
func (s *Substrate) SendReply(index int, val uint16) {
	if s.ReplyWritten[index] {
		s.logf(debug.LogLevelWarning, "dropped reply write to REP%d = %04X: slot still full", index, val)
		return
	}
	s.ReplyReg[index] = val
	s.ReplyWritten[index] = true
	switch index {
	case 0:
		if s.IrqRep0 != nil {
			s.IrqRep0()
		}
	case 1:
		if s.IrqRep1 != nil {
			s.IrqRep1()
		}
	case 2:
		if s.IrqRep2 != nil {
			s.IrqRep2()
		}
	}
}

// SetReplyReadCallback installs a deferred action to fire the next time
// the host drains reg index. If the reply is not currently pending (the
// host already has nothing to read), the callback fires immediately, the
// same way the original posts INIT_DONE's effects right away when REP2
// happens to already be empty.
func (s *Substrate) SetReplyReadCallback(index int, kind ReplyCallbackKind, param uint32) {
	s.ReplyCb[index] = ReplyCallback{Kind: kind, Param: param}
	if !s.ReplyWritten[index] {
		cb := s.ReplyCb[index]
		s.ReplyCb[index] = ReplyCallback{}
		s.fireReplyCallback(cb)
	}
}

func (s *Substrate) fireReplyCallback(cb ReplyCallback) {
	switch cb.Kind {
	case ReplyInitDone:
		s.SendReply(2, uint16(PipeMonitorAddr))
		s.setSemaphoreOut(0x8000)
	case ReplyAudioPlayDone:
		s.WritePipe(4, []uint16{0x0000, 0x1200, uint16(cb.Param >> 16), uint16(cb.Param)})
	case ReplyMicCmdDone:
		s.WritePipe(4, []uint16{uint16(cb.Param >> 16), uint16(cb.Param), uint16(MicBufferAddr >> 16), uint16(MicBufferAddr)})
	}
}

// GetSemaphore returns the DSP-to-host semaphore bitmap.
func (s *Substrate) GetSemaphore() uint16 { return s.SemaphoreOut }

// SetSemaphore ORs bits into the host-to-DSP semaphore.
func (s *Substrate) SetSemaphore(val uint16) { s.SemaphoreIn |= val }

// ClearSemaphore clears the named bits of the DSP-to-host semaphore.
func (s *Substrate) ClearSemaphore(val uint16) { s.SemaphoreOut &^= val }

// MaskSemaphore replaces the DSP-to-host semaphore mask.
func (s *Substrate) MaskSemaphore(val uint16) { s.SemaphoreMask = val }

func (s *Substrate) setSemaphoreOut(val uint16) {
	s.SemaphoreOut |= val
	if s.SemaphoreOut&^s.SemaphoreMask != 0 {
		if s.IrqSem != nil {
			s.IrqSem()
		}
	}
}

// halve implements the audio-out halving rule: s/2 rounded toward zero.
// A negative value gets +1 (its sign bit) before the arithmetic shift.
func halve(s int16) int16 {
	return (s + int16(uint16(s)>>15)) >> 1
}

func (s *Substrate) audioOutAdvance() {
	for !s.AudioOutFIFO.IsFull() {
		sample := int16(s.Bus.Read16(s.AudioOutAddr))
		if s.AudioOutHalve && s.UcodeVersion != -1 {
			sample = halve(sample)
		}
		s.AudioOutFIFO.Push(sample)
		s.AudioOutFIFO.Push(sample)
		s.AudioOutAddr += 2
		s.AudioOutLength--
		if s.AudioOutLength == 0 {
			s.AudioPlaying = false
			s.SetReplyReadCallback(2, ReplyAudioPlayDone, s.AudioOutLength)
			break
		}
	}
}

// micInAdvance drains the mic capture FIFO into the DSP data-memory ring.
// The write-position wrap uses a 0x3FFF mask while the header declares
// length 0x1000 words; this mismatch is in the original and is preserved
// deliberately rather than "fixed" to 0x0FFF.
func (s *Substrate) micInAdvance() {
	wrpos := s.Data.ReadWord(MicBufferAddr + 2)
	for !s.MicInFIFO.IsEmpty() {
		val, _ := s.MicInFIFO.Pop()
		addr := MicBufferAddr + 3 + uint32(wrpos&0x3FFF)
		s.Data.WriteWord(addr, uint16(val))
		wrpos = (wrpos + 1) & 0x3FFF
	}
	s.Data.WriteWord(MicBufferAddr+2, wrpos)
}

// SampleClock runs once per I2S tick: feeds a mic sample in, advances
// audio playback if needed, and pops one stereo frame out.
func (s *Substrate) SampleClock(out *[2]int16, in int16) {
	if s.MicSampling && !s.MicInFIFO.IsFull() {
		s.MicInFIFO.Push(in)
		if s.MicInFIFO.IsFull() {
			s.micInAdvance()
		}
	}
	if s.AudioOutFIFO.IsEmpty() && s.AudioPlaying {
		s.audioOutAdvance()
	}
	if s.AudioOutFIFO.IsEmpty() {
		out[0], out[1] = 0, 0
		return
	}
	l, _ := s.AudioOutFIFO.Pop()
	r, _ := s.AudioOutFIFO.Pop()
	out[0], out[1] = l, r
}

func (s *Substrate) tryStartAudioCmd() {
	if s.GetPipeLength(5) < 8 {
		return
	}
	p := s.ReadPipe(5, 8)
	cmd := uint32(p[0])<<16 | uint32(p[1])
	addr := uint32(p[2])<<16 | uint32(p[3])
	length := uint32(p[4])<<16 | uint32(p[5])
	cmdtype := (cmd >> 12) & 0xF
	cmdaction := (cmd >> 8) & 0xF

	if cmdtype == 1 && cmdaction == 1 {
		s.AudioOutHalve = (cmd>>1)&1 != 0
		s.AudioOutAddr = addr
		s.AudioOutLength = length
		s.AudioPlaying = true
		if s.AudioOutFIFO.IsEmpty() {
			s.audioOutAdvance()
		}
		return
	}

	if cmdtype == 2 {
		switch cmdaction {
		case 1:
			s.MicSampling = true
			s.MicInFIFO.Clear()
			if s.Mic != nil {
				s.Mic.Start(mic.ConsumerDSiDSP)
			}
		case 2:
			if s.Mic != nil {
				s.Mic.Stop(mic.ConsumerDSiDSP)
			}
			s.MicSampling = false
		}
		if cmdaction == 1 || cmdaction == 2 {
			s.Data.WriteWord(MicBufferAddr, uint16(MicBufferAddr+3))
			s.Data.WriteWord(MicBufferAddr+1, 0x1000)
			s.Data.WriteWord(MicBufferAddr+2, 0)
			for i := uint32(0); i < 0x1000; i++ {
				s.Data.WriteWord(MicBufferAddr+3+i, 0)
			}
			s.SetReplyReadCallback(2, ReplyMicCmdDone, cmd)
		}
	}
}
