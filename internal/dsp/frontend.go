package dsp

import (
	"nitro-dsp-hle/internal/clock"
	"nitro-dsp-hle/internal/membus"
	"nitro-dsp-hle/internal/ucode"
)

// Register byte offsets within the mirrored 0x40-byte window.
const (
	RegPDATA  uint32 = 0x00
	RegPADR   uint32 = 0x04
	RegPCFG   uint32 = 0x08
	RegPSTS   uint32 = 0x0C
	RegPSEM   uint32 = 0x10
	RegPMASK  uint32 = 0x14
	RegPCLEAR uint32 = 0x18
	RegSEM    uint32 = 0x1C
	RegCMD0   uint32 = 0x20
	RegREP0   uint32 = 0x24
	RegCMD1   uint32 = 0x28
	RegREP1   uint32 = 0x2C
	RegCMD2   uint32 = 0x30
	RegREP2   uint32 = 0x34

	windowSize uint32 = 0x40
)

// PCFG bit layout.
const (
	pcfgResetHold   = 1 << 0
	pcfgAutoIncr    = 1 << 1
	pcfgBurstShift  = 2
	pcfgBurstMask   = 0x3 << pcfgBurstShift
	pcfgStart       = 1 << 4
	pcfgRepIRQShift = 9
	pcfgRepIRQMask  = 0x7 << pcfgRepIRQShift
	pcfgSpaceShift  = 12
	pcfgSpaceMask   = 0x7 << pcfgSpaceShift
)

// Memory-space selectors, PCFG bits 12-14.
const (
	spaceData int = iota
	spaceMMIO
	_
	_
	_
	spaceProgram
	_
	spaceAHBM
)

// burstLength maps PCFG's 2-bit burst field to the DMA-fetch prime count;
// -1 stands for "infinite" (keeps refilling until cancelled).
var burstLength = [4]int{1, 8, 16, -1}

// FrontEnd is the host-visible register bank. It owns clock catch-up, the
// DMA-fetch FIFO behind PDATA, and start/stop of the active ucode driven
// by PCFG's reset-hold bit.
type FrontEnd struct {
	Active     ucode.Ucode
	Dispatcher *Dispatcher
	Scheduler  clock.Scheduler

	Data    *membus.BankTable
	Program *membus.BankTable

	SCFG bool // host-side "DSP enabled" gate; start_dsp only fires while set

	pcfg  uint16
	padr  uint32
	dma   fifo16
	dmaOn bool

	semSticky bool

	lastCatchUp uint64
}

// fifo16 is the 16-entry PDATA read-FIFO. It is a plain ring rather than
// internal/fifo.FIFO[T] because priming logic needs to see remaining
// budget (dmaLen) alongside fill state, which a generic bounded queue
// does not expose.
type fifo16 struct {
	buf        [16]uint16
	head, tail int
	count      int
	dmaLen     int // remaining words to fetch; -1 means unbounded
}

func (f *fifo16) isFull() bool  { return f.count == len(f.buf) }
func (f *fifo16) isEmpty() bool { return f.count == 0 }

func (f *fifo16) push(v uint16) bool {
	if f.isFull() {
		return false
	}
	f.buf[f.tail] = v
	f.tail = (f.tail + 1) % len(f.buf)
	f.count++
	return true
}

func (f *fifo16) pop() (uint16, bool) {
	if f.isEmpty() {
		return 0, false
	}
	v := f.buf[f.head]
	f.head = (f.head + 1) % len(f.buf)
	f.count--
	return v, true
}

func (f *fifo16) flush() {
	*f = fifo16{}
}

// NewFrontEnd wires a front-end against its dispatcher and DSP-visible
// memory windows. prog is the 256 KiB program window the dispatcher CRCs
// on start; data is the 256 KiB data window pipes and scratch live in.
// The DSP starts held in reset (PCFG[0] set), so the first write that
// clears PCFG[0] starts it.
func NewFrontEnd(dispatcher *Dispatcher, sched clock.Scheduler, prog, data *membus.BankTable) *FrontEnd {
	return &FrontEnd{Dispatcher: dispatcher, Scheduler: sched, Program: prog, Data: data, pcfg: pcfgResetHold}
}

// catchUp advances the DSP clock to cycle "now", firing any scheduler
// callbacks whose due time has arrived. Every MMIO access runs this
// first, per §5's ordering guarantee.
func (fe *FrontEnd) catchUp(now uint64) {
	if now <= fe.lastCatchUp {
		return
	}
	fe.Scheduler.Advance(now - fe.lastCatchUp)
	fe.lastCatchUp = now
}

// periodicCatchUp advances the clock by a fixed tick regardless of any
// register access, mirroring the donor's 4096-cycle scheduler callback
// that keeps completions from stalling during long host idle stretches.
func (fe *FrontEnd) periodicCatchUp() {
	fe.catchUp(fe.Scheduler.Now() + 4096)
}

func space(pcfg uint16) int {
	return int((pcfg & pcfgSpaceMask) >> pcfgSpaceShift)
}

func (fe *FrontEnd) bankFor(pcfg uint16) *membus.BankTable {
	switch space(pcfg) {
	case spaceProgram:
		return fe.Program
	default:
		return fe.Data
	}
}

// primeDMA arms the fetch FIFO per PCFG's burst-length field and eagerly
// fills it until full or the burst budget is exhausted.
func (fe *FrontEnd) primeDMA() {
	burst := burstLength[(fe.pcfg&pcfgBurstMask)>>pcfgBurstShift]
	fe.dma.dmaLen = burst
	fe.dmaOn = true
	fe.refillDMA()
}

func (fe *FrontEnd) refillDMA() {
	if !fe.dmaOn {
		return
	}
	bank := fe.bankFor(fe.pcfg)
	for !fe.dma.isFull() {
		if fe.dma.dmaLen == 0 {
			fe.dmaOn = false
			return
		}
		fe.dma.push(bank.ReadWord(fe.padr))
		fe.padr++
		if fe.pcfg&pcfgAutoIncr == 0 {
			fe.padr--
		}
		if fe.dma.dmaLen > 0 {
			fe.dma.dmaLen--
		}
	}
}

// Read16 services a 16-bit MMIO read at a byte offset within the
// register window (after folding any 0x40-periodic mirror).
func (fe *FrontEnd) Read16(now uint64, offset uint32) uint16 {
	fe.catchUp(now)
	offset %= windowSize

	switch offset {
	case RegPDATA:
		v, ok := fe.dma.pop()
		if ok {
			fe.refillDMA()
		}
		return v
	case RegPCFG:
		return fe.pcfg
	case RegPSTS:
		return fe.status()
	case RegPSEM:
		return 0 // PSEM write-only from the host's perspective on readback of its own write target; DSP semaphore reads go through SEM
	case RegPMASK:
		return fe.activeMask()
	case RegSEM:
		return fe.activeSemaphore()
	case RegCMD0, RegCMD1, RegCMD2:
		return 0 // command registers are write-only from the host side
	case RegREP0:
		return fe.recvReply(0)
	case RegREP1:
		return fe.recvReply(1)
	case RegREP2:
		return fe.recvReply(2)
	default:
		return 0
	}
}

// Write16 services a 16-bit MMIO write at a byte offset within the
// register window.
func (fe *FrontEnd) Write16(now uint64, offset uint32, value uint16) {
	fe.catchUp(now)
	offset %= windowSize

	switch offset {
	case RegPDATA:
		if fe.pcfg&pcfgStart != 0 {
			fe.dma.push(value)
		}
	case RegPADR:
		fe.padr = uint32(value)
	case RegPCFG:
		fe.writePCFG(value)
	case RegPSEM:
		fe.setSemaphore(value)
	case RegPMASK:
		fe.setMask(value)
	case RegPCLEAR:
		fe.clearSemaphore(value)
	case RegCMD0:
		fe.sendCmd(0, value)
	case RegCMD1:
		fe.sendCmd(1, value)
	case RegCMD2:
		fe.sendCmd(2, value)
	}
}

// Read8/Write8 narrow the 16-bit register file to the subset of
// registers §4.5 says tolerate byte access.
func (fe *FrontEnd) Read8(now uint64, offset uint32) uint8 {
	offset %= windowSize
	base := offset &^ 1
	hi := offset&1 != 0
	switch base {
	case RegPCFG, RegPSTS, RegPSEM, RegPMASK, RegSEM:
		v := fe.Read16(now, base)
		if hi {
			return uint8(v >> 8)
		}
		return uint8(v)
	default:
		return 0
	}
}

func (fe *FrontEnd) Write8(now uint64, offset uint32, value uint8) {
	offset %= windowSize
	base := offset &^ 1
	hi := offset&1 != 0
	if base != RegPCFG {
		return
	}
	fe.catchUp(now)
	cur := fe.pcfg
	if hi {
		cur = cur&0x00FF | uint16(value)<<8
	} else {
		cur = cur&0xFF00 | uint16(value)
	}
	fe.writePCFG(cur)
}

// Read32/Write32 alias the 16-bit register at the aligned offset; the
// high 16 bits are not meaningful on either direction.
func (fe *FrontEnd) Read32(now uint64, offset uint32) uint32 {
	return uint32(fe.Read16(now, offset&^3))
}

func (fe *FrontEnd) Write32(now uint64, offset uint32, value uint32) {
	fe.Write16(now, offset&^3, uint16(value))
}

func (fe *FrontEnd) writePCFG(value uint16) {
	prev := fe.pcfg
	fe.pcfg = value

	if prev&pcfgResetHold != 0 && value&pcfgResetHold == 0 {
		fe.startDSP()
	} else if prev&pcfgResetHold == 0 && value&pcfgResetHold != 0 {
		fe.stopDSP()
	}

	if value&pcfgStart != 0 && prev&pcfgStart == 0 {
		fe.primeDMA()
	} else if value&pcfgStart == 0 && prev&pcfgStart != 0 {
		fe.dma.dmaLen = 0
		fe.dmaOn = false
		fe.dma.flush()
	}
}

// startDSP is PCFG[0]'s falling-edge action: resolve the uploaded program
// against the dispatcher's known-ucode table and start the match.
func (fe *FrontEnd) startDSP() {
	if !fe.SCFG {
		return
	}
	u, _ := fe.Dispatcher.Resolve(fe.Scheduler, fe.wireIrqs)
	fe.Active = u
}

// wireIrqs hooks a freshly built substrate's IRQ posts back into the
// front-end's host-visible sticky state, before Reset/Start run against
// it. Start's INIT_DONE semaphore post happens later, when the host drains
// REP2's initial reply. The substrate calls IrqSem after every semaphore
// post that leaves an unmasked bit set (see Substrate.setSemaphoreOut),
// so the front-end never has to re-derive that gating itself.
func (fe *FrontEnd) wireIrqs(sub *ucode.Substrate) {
	sub.IrqSem = func() { fe.semSticky = true }
}

// stopDSP is PCFG[0]'s rising-edge action: destroy the current ucode
// instance.
func (fe *FrontEnd) stopDSP() {
	fe.Active = nil
}

func (fe *FrontEnd) status() uint16 {
	var v uint16
	if !fe.dma.isEmpty() {
		v |= 1 << 0
	}
	if fe.dma.isFull() {
		v |= 1 << 5
	}
	if !fe.dma.isEmpty() {
		v |= 1 << 6
	}
	v |= 1 << 8 // write FIFO (command registers) is always immediately drained
	if fe.semSticky {
		v |= 1 << 9
	}
	v |= fe.replyPendingBits() << 10
	v |= fe.cmdNonEmptyBits() << 13
	return v
}

// replyPendingBits reports which REPn slots hold a value the host has not
// yet drained, by reading the active substrate's ReplyWritten flags
// directly rather than through RecvData (which would consume the reply).
func (fe *FrontEnd) replyPendingBits() uint16 {
	sub, ok := fe.substrate()
	if !ok {
		return 0
	}
	var v uint16
	for i, written := range sub.ReplyWritten {
		if written {
			v |= 1 << uint(i)
		}
	}
	return v
}

// cmdNonEmptyBits mirrors the three CMDn slots' fullness, read straight
// off the active substrate's own CmdWritten flags.
func (fe *FrontEnd) cmdNonEmptyBits() uint16 {
	sub, ok := fe.substrate()
	if !ok {
		return 0
	}
	var v uint16
	for i, written := range sub.CmdWritten {
		if written {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (fe *FrontEnd) sendCmd(index int, value uint16) {
	if fe.Active != nil {
		fe.Active.SendData(index, value)
	}
}

func (fe *FrontEnd) recvReply(index int) uint16 {
	if fe.Active == nil {
		return 0
	}
	return fe.Active.RecvData(index)
}

func (fe *FrontEnd) setSemaphore(value uint16) {
	if sub, ok := fe.substrate(); ok {
		sub.SetSemaphore(value)
	}
}

func (fe *FrontEnd) setMask(value uint16) {
	if sub, ok := fe.substrate(); ok {
		sub.MaskSemaphore(value)
	}
}

func (fe *FrontEnd) clearSemaphore(value uint16) {
	if sub, ok := fe.substrate(); ok {
		sub.ClearSemaphore(value)
		if sub.GetSemaphore() == 0 {
			fe.semSticky = false
		}
	}
}

// activeSemaphore reads SEM, a plain register with no side effects; the
// sticky PSTS bit is set only by the substrate's own IrqSem post (wired
// in wireIrqs), which fires whenever a semaphore post leaves an unmasked
// bit set.
func (fe *FrontEnd) activeSemaphore() uint16 {
	if sub, ok := fe.substrate(); ok {
		return sub.GetSemaphore()
	}
	return 0
}

func (fe *FrontEnd) activeMask() uint16 {
	if sub, ok := fe.substrate(); ok {
		return sub.SemaphoreMask
	}
	return 0
}

// substrate exposes the active ucode's embedded Substrate for the
// semaphore accessors, which the narrow Ucode interface does not carry.
// Every concrete ucode this front-end dispatches embeds *Substrate, so
// the type assertion always succeeds for a real ucode; it only fails
// when no ucode is active.
func (fe *FrontEnd) substrate() (*ucode.Substrate, bool) {
	type hasSubstrate interface {
		SubstrateRef() *ucode.Substrate
	}
	if s, ok := fe.Active.(hasSubstrate); ok {
		return s.SubstrateRef(), true
	}
	return nil, false
}
