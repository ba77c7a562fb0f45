package ucode

import "nitro-dsp-hle/internal/clock"

const eventG711Finish = "dsp.g711.finish"

var g711SegTableALaw = [8]int16{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}
var g711SegTableULaw = [8]int16{0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF}

// G711 implements the A-law/μ-law companding ucode. Commands arrive as an
// 8-word block queued on pipe 7 and are dispatched through CMD2 ← 7.
type G711 struct {
	*Substrate
	Scheduler clock.Scheduler

	CmdState  int // 0 = idle, 1 = running
	CmdParams [8]uint16
}

// NewG711 wires a G711 ucode instance against its collaborators.
func NewG711(sub *Substrate, sched clock.Scheduler, version int32) *G711 {
	sub.UcodeVersion = version
	g := &G711{Substrate: sub, Scheduler: sched}
	sched.RegisterEventFunc(eventG711Finish, func(param uint32) { g.FinishCmd(param) })
	return g
}

func (g *G711) ID() uint32 { return uint32(ClassG711)<<16 | uint32(uint16(g.UcodeVersion)) }

// G711State is the gob-serializable snapshot of G711's own fields, on top
// of its embedded Substrate's state.
type G711State struct {
	Substrate SubstrateState
	CmdState  int
	CmdParams [8]uint16
}

func (g *G711) SaveState() G711State {
	return G711State{Substrate: g.Substrate.SaveState(), CmdState: g.CmdState, CmdParams: g.CmdParams}
}

func (g *G711) LoadState(st G711State) {
	g.Substrate.LoadState(st.Substrate)
	g.CmdState = st.CmdState
	g.CmdParams = st.CmdParams
}

func (g *G711) Reset() {
	g.Substrate.Reset()
	g.CmdState = 0
	g.CmdParams = [8]uint16{}
}

// SendData layers G711's pipe-7 command trigger on top of the shared
// substrate write path.
func (g *G711) SendData(index int, val uint16) {
	g.Substrate.SendData(index, val)

	if index == 2 {
		if val == 7 {
			g.TryStartCmd()
		}
		g.CmdWritten[2] = false
	}
}

// TryStartCmd dequeues the next 8-word command block from pipe 7, if one
// is fully queued and the ucode is idle, and schedules its completion.
func (g *G711) TryStartCmd() {
	if g.CmdState != 0 {
		return
	}
	if g.GetPipeLength(7) < 8 {
		return
	}

	params := g.ReadPipe(7, 8)
	copy(g.CmdParams[:], params)

	cmd := uint32(g.CmdParams[0])<<16 | uint32(g.CmdParams[1])
	length := uint32(g.CmdParams[6])<<16 | uint32(g.CmdParams[7])
	action := (cmd >> 8) & 0xF
	cmdtype := cmd & 0xFF

	var cmdtime uint64
	switch {
	case cmdtype != 1 && cmdtype != 2:
		cmdtime = 1000
	case action == 1:
		cmdtime = 31 * uint64(length)
	default:
		cmdtime = 14 * uint64(length)
	}

	g.CmdState = 1
	g.Scheduler.Schedule(eventG711Finish, 200+cmdtime, 0)
}

// FinishCmd runs the matching companding routine, echoes the processed
// length on pipe 6, and immediately tries to start the next command.
func (g *G711) FinishCmd(param uint32) {
	if g.CmdState != 1 {
		return
	}

	cmd := uint32(g.CmdParams[0])<<16 | uint32(g.CmdParams[1])
	action := (cmd >> 8) & 0xF
	cmdtype := cmd & 0xFF

	switch {
	case action == 1 && cmdtype == 1:
		g.cmdEncodeALaw()
	case action == 1 && cmdtype == 2:
		g.cmdEncodeULaw()
	case action != 1 && cmdtype == 1:
		g.cmdDecodeALaw()
	case action != 1 && cmdtype == 2:
		g.cmdDecodeULaw()
		// any other (type, action) pairing is a silent no-op; the response
		// still reports the requested length as processed.
	}

	g.WritePipe(6, []uint16{g.CmdParams[6], g.CmdParams[7]})

	g.CmdState = 0
	g.TryStartCmd()
}

func (g *G711) cmdEncodeALaw() {
	srcAddr := uint32(g.CmdParams[2])<<16 | uint32(g.CmdParams[3])
	dstAddr := uint32(g.CmdParams[4])<<16 | uint32(g.CmdParams[5])
	length := uint32(g.CmdParams[6])<<16 | uint32(g.CmdParams[7])

	for i := uint32(0); i < length; i++ {
		val16 := int16(g.Bus.Read16(srcAddr))

		val := val16 >> 3
		var xorByte int16
		if val > 0 {
			xorByte = 0xD5
		} else {
			val ^= -1
			xorByte = 0x55
		}

		seg := 8
		for s := 0; s < 8; s++ {
			if val <= g711SegTableALaw[s] {
				seg = s
				break
			}
		}

		var out int16
		if seg < 8 {
			tmp := int16(seg) << 4
			shift := seg
			if shift == 0 {
				shift = 1
			}
			out = tmp | ((val >> uint(shift)) & 0xF)
		} else {
			out = 0x7F
		}
		out ^= xorByte

		g.Bus.Write8(dstAddr, byte(out))
		srcAddr += 2
		dstAddr++
	}
}

func (g *G711) cmdEncodeULaw() {
	srcAddr := uint32(g.CmdParams[2])<<16 | uint32(g.CmdParams[3])
	dstAddr := uint32(g.CmdParams[4])<<16 | uint32(g.CmdParams[5])
	length := uint32(g.CmdParams[6])<<16 | uint32(g.CmdParams[7])

	for i := uint32(0); i < length; i++ {
		val16 := int16(g.Bus.Read16(srcAddr))

		val := val16 >> 2
		var xorByte int16
		if val > 0 {
			xorByte = 0xFF
		} else {
			val = (val ^ -1) + 1
			xorByte = 0x7F
		}

		if val > 0x1FDF {
			val = 0x1FDF
		}
		val += 0x21

		seg := 8
		for s := 0; s < 8; s++ {
			if val <= g711SegTableULaw[s] {
				seg = s
				break
			}
		}

		var out int16
		if seg < 8 {
			tmp := int16(seg) << 4
			shift := seg + 1
			out = tmp | ((val >> uint(shift)) & 0xF)
		} else {
			out = 0x7F
		}
		out ^= xorByte

		g.Bus.Write8(dstAddr, byte(out))
		srcAddr += 2
		dstAddr++
	}
}

func (g *G711) cmdDecodeALaw() {
	srcAddr := uint32(g.CmdParams[2])<<16 | uint32(g.CmdParams[3])
	dstAddr := uint32(g.CmdParams[4])<<16 | uint32(g.CmdParams[5])
	length := uint32(g.CmdParams[6])<<16 | uint32(g.CmdParams[7])

	for i := uint32(0); i < length; i++ {
		b := int8(g.Bus.Read8(srcAddr))
		b ^= 0x55

		val16 := (int16(b&0xF) << 4) + 8
		shift := (b >> 4) & 7
		if shift != 0 {
			val16 = (val16 + 0x100) << uint(shift-1)
		}
		if b < 0 {
			val16 = -val16
		}

		g.Bus.Write16(dstAddr, uint16(val16))
		srcAddr++
		dstAddr += 2
	}
}

func (g *G711) cmdDecodeULaw() {
	srcAddr := uint32(g.CmdParams[2])<<16 | uint32(g.CmdParams[3])
	dstAddr := uint32(g.CmdParams[4])<<16 | uint32(g.CmdParams[5])
	length := uint32(g.CmdParams[6])<<16 | uint32(g.CmdParams[7])

	for i := uint32(0); i < length; i++ {
		b := ^int8(g.Bus.Read8(srcAddr))

		val16 := (int16(b&0xF) << 3) + 0x84
		shift := (b >> 4) & 7
		val16 = 0x84 - (val16 << uint(shift))
		if b < 0 {
			val16 = -val16
		}

		g.Bus.Write16(dstAddr, uint16(val16))
		srcAddr++
		dstAddr += 2
	}
}
