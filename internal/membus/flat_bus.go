package membus

import "encoding/binary"

// FlatHostBus is a reference Bus implementation backed by one contiguous
// byte slice, suitable for a test harness or a simple host-CPU stand-in.
// A real integration supplies its own Bus wired to the host's actual
// memory map; this module never assumes a flat address space beyond this
// reference implementation.
type FlatHostBus struct {
	Mem []byte
}

// NewFlatHostBus allocates a zero-filled host memory region of the given size.
func NewFlatHostBus(size uint32) *FlatHostBus {
	return &FlatHostBus{Mem: make([]byte, size)}
}

func (b *FlatHostBus) Read8(addr uint32) uint8 {
	if int(addr) >= len(b.Mem) {
		return 0
	}
	return b.Mem[addr]
}

func (b *FlatHostBus) Write8(addr uint32, value uint8) {
	if int(addr) >= len(b.Mem) {
		return
	}
	b.Mem[addr] = value
}

func (b *FlatHostBus) Read16(addr uint32) uint16 {
	if int(addr)+2 > len(b.Mem) {
		return 0
	}
	return binary.LittleEndian.Uint16(b.Mem[addr:])
}

func (b *FlatHostBus) Write16(addr uint32, value uint16) {
	if int(addr)+2 > len(b.Mem) {
		return
	}
	binary.LittleEndian.PutUint16(b.Mem[addr:], value)
}

func (b *FlatHostBus) Read32(addr uint32) uint32 {
	if int(addr)+4 > len(b.Mem) {
		return 0
	}
	return binary.LittleEndian.Uint32(b.Mem[addr:])
}

func (b *FlatHostBus) Write32(addr uint32, value uint32) {
	if int(addr)+4 > len(b.Mem) {
		return
	}
	binary.LittleEndian.PutUint32(b.Mem[addr:], value)
}
