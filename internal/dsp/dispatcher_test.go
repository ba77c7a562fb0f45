package dsp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nitro-dsp-hle/internal/clock"
	"nitro-dsp-hle/internal/membus"
	"nitro-dsp-hle/internal/ucode"
)

func newBankTable() *membus.BankTable {
	t := &membus.BankTable{}
	for i := 0; i < membus.BankCount; i++ {
		var bank [membus.BankSize]byte
		t.MapBank(i, &bank)
	}
	return t
}

func TestProgramCRCMatchesKnownG711Entry(t *testing.T) {
	prog := newBankTable()
	want := placeholderCRC(ucode.ClassG711, 0x20)
	prog.WriteByte(0, byte(ucode.ClassG711))
	prog.WriteByte(1, byte(int32(0x20)))
	prog.WriteByte(2, byte(int32(0x20)>>8))
	prog.WriteByte(3, byte(int32(0x20)>>16))
	prog.WriteByte(4, byte(int32(0x20)>>24))

	got := ProgramCRC(prog)
	require.Equal(t, want, got, "CRC must be computed over the bank contents that encode the matching table entry")
}

func TestDispatcherResolvesKnownCRCToConcreteUcode(t *testing.T) {
	prog := newBankTable()
	prog.WriteByte(0, byte(ucode.ClassGraphics))
	prog.WriteByte(1, byte(int32(0x10)))
	prog.WriteByte(2, byte(int32(0x10)>>8))
	prog.WriteByte(3, byte(int32(0x10)>>16))
	prog.WriteByte(4, byte(int32(0x10)>>24))

	data := newBankTable()
	bus := membus.NewFlatHostBus(1 << 16)
	d := &Dispatcher{Bus: bus, Prog: prog, Data: data}

	sched := clock.NewWheel()
	u, ok := d.Resolve(sched, nil)
	require.True(t, ok)
	require.NotNil(t, u)
	require.Equal(t, uint32(ucode.ClassGraphics)<<16|uint32(uint16(0x10)), u.ID())
}

func TestDispatcherFallsBackOnUnknownCRC(t *testing.T) {
	prog := newBankTable()
	// An all-zero image is AAC version 0x00's placeholder entry, so mark
	// byte 0 with a class no entry uses.
	prog.WriteByte(0, 0xFF)
	data := newBankTable()
	bus := membus.NewFlatHostBus(1 << 16)

	fellBack := false
	d := &Dispatcher{
		Bus: bus, Prog: prog, Data: data,
		LowLevelFallback: func(crc uint32) { fellBack = true },
	}

	sched := clock.NewWheel()
	u, ok := d.Resolve(sched, nil)
	require.False(t, ok)
	require.Nil(t, u)
	require.True(t, fellBack, "an unmatched CRC must invoke the low-level fallback hook")
}

func TestRegisterKnownUcodeAddsOverrideEntry(t *testing.T) {
	prog := newBankTable()
	data := newBankTable()
	bus := membus.NewFlatHostBus(1 << 16)

	prog.WriteByte(0, 0xEF)
	prog.WriteByte(1, 0xBE)
	prog.WriteByte(2, 0xAD)
	prog.WriteByte(3, 0xDE)
	// The CRC the dispatcher computes is over the whole program window, not
	// a literal encoding of an override key; register the actual CRC of
	// this program image rather than hand-crafting bytes to match a
	// chosen constant.
	crc := ProgramCRC(prog)
	RegisterKnownUcode(crc, ucode.ClassAAC, 0x77)

	d := &Dispatcher{Bus: bus, Prog: prog, Data: data}
	sched := clock.NewWheel()
	u, ok := d.Resolve(sched, nil)
	require.True(t, ok)
	require.Equal(t, uint32(ucode.ClassAAC)<<16|uint32(uint16(0x77)), u.ID())
}
