package ucode

import (
	"nitro-dsp-hle/internal/aacbackend"
	"nitro-dsp-hle/internal/clock"
)

const eventAACFinish = "dsp.aac.finish"

const (
	aacIdle = iota
	aacCollectingParams
	aacExecuting
)

var aacFreqTable = [9]uint32{48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000}

// AAC implements the AAC decode ucode: a 10-word parameter collector that
// builds an ADTS frame and drives the external decoder.
type AAC struct {
	*Substrate
	Scheduler clock.Scheduler
	Backend   aacbackend.Backend

	CmdState      int
	CmdIndex      uint16
	CmdParamCount int
	CmdParams     [10]uint16

	FrameBuf    [1707]byte // 7-byte ADTS header + up to 1700 bytes of frame data
	LeftOutput  [1024]int16
	RightOutput [1024]int16

	handle    aacbackend.Handle
	initCount int
	version   int32
}

// NewAAC wires an AAC ucode instance against its collaborators, opening the
// backend decoder once up front the way the hardware's ucode constructor
// does (the decoder handle exists well before its first Init call).
func NewAAC(sub *Substrate, sched clock.Scheduler, backend aacbackend.Backend, version int32) *AAC {
	a := &AAC{Substrate: sub, Scheduler: sched, Backend: backend, version: version}
	sched.RegisterEventFunc(eventAACFinish, func(param uint32) { a.FinishCmd(param) })
	if backend != nil {
		a.handle, _ = backend.Open(aacbackend.Config{ObjectType: "LC", SampleRate: 48000, Format: "S16"})
	}
	return a
}

func (a *AAC) ID() uint32 { return uint32(ClassAAC)<<16 | uint32(uint16(a.version)) }

// AACState is the gob-serializable snapshot of AAC's own fields, on top of
// its embedded Substrate's state.
type AACState struct {
	Substrate SubstrateState

	CmdState      int
	CmdIndex      uint16
	CmdParamCount int
	CmdParams     [10]uint16

	FrameBuf    [1707]byte
	LeftOutput  [1024]int16
	RightOutput [1024]int16

	InitCount int
	Version   int32
}

// SaveState captures AAC's full state, including the embedded substrate's.
// The decoder handle itself is not serialized; Load reopens the backend.
func (a *AAC) SaveState() AACState {
	return AACState{
		Substrate:     a.Substrate.SaveState(),
		CmdState:      a.CmdState,
		CmdIndex:      a.CmdIndex,
		CmdParamCount: a.CmdParamCount,
		CmdParams:     a.CmdParams,
		FrameBuf:      a.FrameBuf,
		LeftOutput:    a.LeftOutput,
		RightOutput:   a.RightOutput,
		InitCount:     a.initCount,
		Version:       a.version,
	}
}

// LoadState restores a previously saved AAC snapshot. The backend is
// reopened against the restored version rather than unmarshaled, since a
// decoder handle is not meaningfully serializable.
func (a *AAC) LoadState(st AACState) {
	a.Substrate.LoadState(st.Substrate)
	a.CmdState = st.CmdState
	a.CmdIndex = st.CmdIndex
	a.CmdParamCount = st.CmdParamCount
	a.CmdParams = st.CmdParams
	a.FrameBuf = st.FrameBuf
	a.LeftOutput = st.LeftOutput
	a.RightOutput = st.RightOutput
	a.initCount = st.InitCount
	a.version = st.Version
	if a.Backend != nil {
		a.handle, _ = a.Backend.Open(aacbackend.Config{ObjectType: "LC", SampleRate: 48000, Format: "S16"})
	}
}

// Reset clears the command collector and scratch buffers on top of the
// substrate's own reset.
func (a *AAC) Reset() {
	a.Substrate.Reset()
	a.CmdState = aacIdle
	a.CmdIndex = 0
	a.CmdParamCount = 0
	a.CmdParams = [10]uint16{}
	a.FrameBuf = [1707]byte{}
	a.LeftOutput = [1024]int16{}
	a.RightOutput = [1024]int16{}
}

// SendData layers AAC's CMD1 parameter collection on top of the shared
// substrate write path.
func (a *AAC) SendData(index int, val uint16) {
	a.Substrate.SendData(index, val)

	switch index {
	case 1:
		a.recvCmdWord()
	case 2:
		a.CmdWritten[2] = false
	}
}

// recvCmdWord feeds the latest CMD1 write into the parameter collector.
func (a *AAC) recvCmdWord() {
	val := a.CmdReg[1]

	switch a.CmdState {
	case aacIdle:
		if val == 1 {
			a.CmdState = aacCollectingParams
			a.CmdIndex = val
			a.CmdParamCount = 0
		}
	case aacCollectingParams:
		a.CmdParams[a.CmdParamCount] = val
		a.CmdParamCount++
		if a.CmdParamCount == 10 {
			a.CmdState = aacExecuting
			a.cmdDecodeFrame()
		}
	default:
		// EXECUTING: leave the value pending in CMD1 (CmdWritten[1] stays
		// set); FinishCmd consumes it once the decode completes.
		return
	}
	a.CmdWritten[1] = false
}

// cmdDecodeFrame validates the collected parameters, builds the ADTS
// frame, runs the external decoder, and schedules completion.
func (a *AAC) cmdDecodeFrame() {
	framelen := a.CmdParams[0]
	freq := uint32(a.CmdParams[1])<<16 | uint32(a.CmdParams[2])
	chanCount := a.CmdParams[3]
	frameAddr := uint32(a.CmdParams[4])<<16 | uint32(a.CmdParams[5])
	leftAddr := uint32(a.CmdParams[6])<<16 | uint32(a.CmdParams[7])
	rightAddr := uint32(a.CmdParams[8])<<16 | uint32(a.CmdParams[9])

	fail := framelen == 0 || framelen > 1700
	if chanCount != 1 && chanCount != 2 {
		fail = true
	}
	if frameAddr == 0 || leftAddr == 0 {
		fail = true
	}
	if chanCount != 1 && rightAddr == 0 {
		fail = true
	}

	freqnum := uint16(0xF)
	for i, f := range aacFreqTable {
		if freq == f {
			freqnum = uint16(3 + i)
			break
		}
	}
	if freqnum == 0xF {
		fail = true
	}

	if fail {
		a.Scheduler.Schedule(eventAACFinish, 256, 1)
		return
	}

	totallen := uint32(framelen) + 7
	const rsv = 0x7FF
	a.FrameBuf[0] = 0xFF
	a.FrameBuf[1] = 0xF1
	a.FrameBuf[2] = byte(0x40 | (freqnum << 2) | (chanCount >> 2))
	a.FrameBuf[3] = byte((chanCount << 6) | uint16(totallen>>11))
	a.FrameBuf[4] = byte(totallen >> 3)
	a.FrameBuf[5] = byte((totallen << 5) | (rsv >> 6))
	a.FrameBuf[6] = byte((rsv & 0x3F) << 2)

	for i := uint16(0); i < framelen; i++ {
		a.FrameBuf[7+i] = a.Bus.Read8(frameAddr + uint32(i))
	}

	// The hardware only ever calls the decoder's init routine on the
	// second frame it ever sees, and never again afterward, even if the
	// sample rate or channel count changes on a later frame. Decode still
	// runs on every frame including the first, before init has ever run.
	if a.initCount < 2 {
		if a.initCount == 1 && a.Backend != nil && a.handle != nil {
			a.Backend.Init(a.handle, a.FrameBuf[:totallen])
		}
		a.initCount++
	}

	if a.Backend != nil && a.handle != nil {
		if samples, ok := a.Backend.Decode(a.handle, a.FrameBuf[:totallen]); ok {
			// Both channels are written unconditionally regardless of the
			// channel-count parameter; this matches the hardware's
			// observed behavior even for mono frames.
			l := leftAddr
			r := rightAddr
			for i := 0; i < 1024; i++ {
				a.Bus.Write16(l, uint16(samples[2*i]))
				a.Bus.Write16(r, uint16(samples[2*i+1]))
				l += 2
				r += 2
			}
		}
	}

	a.Scheduler.Schedule(eventAACFinish, 115000, 0)
}

// FinishCmd completes the pending decode, posting the result code on
// REP0 and immediately consuming any command that was pipelined in while
// the decode was executing.
func (a *AAC) FinishCmd(param uint32) {
	a.CmdState = aacIdle
	a.CmdParamCount = 0
	a.SendReply(0, uint16(param))

	if a.CmdWritten[1] {
		a.recvCmdWord()
	}
}
