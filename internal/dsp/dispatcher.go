// Package dsp wires the host-visible MMIO register bank to the ucode
// substrate: the register-offset routing §4.5 describes, the DMA-fetch
// FIFO behind PDATA, and the CRC-keyed ucode dispatcher of §4.6.
package dsp

import (
	"hash/crc32"

	"nitro-dsp-hle/internal/aacbackend"
	"nitro-dsp-hle/internal/clock"
	"nitro-dsp-hle/internal/debug"
	"nitro-dsp-hle/internal/membus"
	"nitro-dsp-hle/internal/mic"
	"nitro-dsp-hle/internal/ucode"
)

// ucodeEntry pairs a known program-memory CRC with the (class, version)
// it resolves to.
type ucodeEntry struct {
	crc     uint32
	class   int
	version int32
}

// knownUcodes is the fixed CRC32 -> (class, version) table the dispatcher
// matches an uploaded program image against. Real CRC values belong to a
// concrete DSi firmware dump and are not reproduced here; the table shape
// mirrors the version lists in §4.6 and is meant to be populated (or
// overridden, see internal/config) by whoever owns real firmware images.
var knownUcodes = buildKnownUcodeTable()

func buildKnownUcodeTable() []ucodeEntry {
	versions := map[int][]int32{
		ucode.ClassAAC:      {-1, 0x00, 0x01, 0x20, 0x40},
		ucode.ClassG711:     {0x00, 0x10, 0x20, 0x30, 0x40, 0x50},
		ucode.ClassGraphics: {0x00, 0x10, 0x11, 0x20, 0x30, 0x40, 0x50},
	}
	var table []ucodeEntry
	for class, vs := range versions {
		for _, v := range vs {
			table = append(table, ucodeEntry{crc: placeholderCRC(class, v), class: class, version: v})
		}
	}
	return table
}

// placeholderCRC stands in for a real firmware CRC until one is loaded
// from a config override table (see internal/config.CRCConfig.Overrides). It
// runs the identifying (class, version) bytes through the same full-image
// CRC path ProgramCRC uses, rather than hashing them in isolation, so the
// table entry matches a program image whose leading bytes carry that
// identity and whose remaining 256 KiB are zero-filled.
func placeholderCRC(class int, version int32) uint32 {
	var scratch membus.BankTable
	var bank0 [membus.BankSize]byte
	bank0[0] = byte(class)
	bank0[1] = byte(version)
	bank0[2] = byte(version >> 8)
	bank0[3] = byte(version >> 16)
	bank0[4] = byte(version >> 24)
	scratch.MapBank(0, &bank0)
	for i := 1; i < membus.BankCount; i++ {
		var empty [membus.BankSize]byte
		scratch.MapBank(i, &empty)
	}
	return ProgramCRC(&scratch)
}

// RegisterKnownUcode lets a config-loaded override table add or replace a
// CRC -> (class, version) mapping at runtime.
func RegisterKnownUcode(crc uint32, class int, version int32) {
	for i := range knownUcodes {
		if knownUcodes[i].crc == crc {
			knownUcodes[i].class = class
			knownUcodes[i].version = version
			return
		}
	}
	knownUcodes = append(knownUcodes, ucodeEntry{crc: crc, class: class, version: version})
}

// ProgramCRC computes the CRC32 over the full 256 KiB DSP program memory
// region: the eight 32 KiB banks of prog, stitched in address order.
func ProgramCRC(prog *membus.BankTable) uint32 {
	h := crc32.NewIEEE()
	buf := make([]byte, membus.BankSize)
	for slot := 0; slot < membus.BankCount; slot++ {
		for i := range buf {
			buf[i] = prog.ReadByte(uint32(slot)*membus.BankSize + uint32(i))
		}
		h.Write(buf)
	}
	return h.Sum32()
}

// Dispatcher resolves an uploaded DSP program image to a concrete ucode
// instance, or to the low-level fallback engine on no match.
type Dispatcher struct {
	Bus     membus.Bus
	Prog    *membus.BankTable
	Data    *membus.BankTable
	Mic     mic.Source
	Logger  *debug.Logger
	Backend aacbackend.Backend

	// LowLevelFallback is invoked when no known ucode matches the
	// program CRC. It may be nil, in which case the dispatcher simply
	// leaves the DSP without an active ucode.
	LowLevelFallback func(crc uint32)
}

// Resolve computes the program CRC and looks it up in the known-ucode
// table, returning the freshly constructed, reset, and started instance.
// wireIrqs, if non-nil, runs against the freshly built substrate before
// Reset/Start so any semaphore or reply posts Start itself triggers are
// already observable through it. ok is false when no entry matched and
// LowLevelFallback (if set) was invoked instead.
func (d *Dispatcher) Resolve(sched clock.Scheduler, wireIrqs func(*ucode.Substrate)) (ucode.Ucode, bool) {
	crc := ProgramCRC(d.Prog)

	for _, e := range knownUcodes {
		if e.crc != crc {
			continue
		}
		sub := ucode.NewSubstrate(d.Bus, d.Data, d.Mic, d.Logger, e.version)
		if wireIrqs != nil {
			wireIrqs(sub)
		}
		u := d.instantiate(e.class, sub, sched, e.version)
		u.Reset()
		u.Start()
		return u, true
	}

	if d.Logger != nil {
		d.Logger.LogDSPf(debug.LogLevelInfo, "no known ucode matches program CRC %08X, falling back to LLE", crc)
	}
	if d.LowLevelFallback != nil {
		d.LowLevelFallback(crc)
	}
	return nil, false
}

func (d *Dispatcher) instantiate(class int, sub *ucode.Substrate, sched clock.Scheduler, version int32) ucode.Ucode {
	switch class {
	case ucode.ClassAAC:
		return ucode.NewAAC(sub, sched, d.Backend, version)
	case ucode.ClassG711:
		return ucode.NewG711(sub, sched, version)
	case ucode.ClassGraphics:
		return ucode.NewGraphics(sub, sched, version)
	default:
		return ucode.NewG711(sub, sched, version)
	}
}
