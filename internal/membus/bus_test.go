package membus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmappedBankReadsZero(t *testing.T) {
	var t1 BankTable
	require.Equal(t, uint8(0), t1.ReadByte(0x1234))
	require.Equal(t, uint16(0), t1.ReadWord(0x10))
}

func TestMappedBankRoundTrip(t *testing.T) {
	var tbl BankTable
	var bank [BankSize]byte
	tbl.MapBank(2, &bank)

	addr := uint32(2*BankSize + 10)
	tbl.WriteByte(addr, 0xAB)
	require.Equal(t, uint8(0xAB), tbl.ReadByte(addr))
}

func TestWriteWordLittleEndian(t *testing.T) {
	var tbl BankTable
	var bank [BankSize]byte
	tbl.MapBank(0, &bank)

	tbl.WriteWord(5, 0x1234)
	require.Equal(t, uint16(0x1234), tbl.ReadWord(5))
	require.Equal(t, uint8(0x34), tbl.ReadByte(10))
	require.Equal(t, uint8(0x12), tbl.ReadByte(11))
}

func TestFlatHostBusOutOfRangeReadsZero(t *testing.T) {
	b := NewFlatHostBus(16)
	require.Equal(t, uint8(0), b.Read8(100))
	require.Equal(t, uint32(0), b.Read32(15))
}

func TestFlatHostBusRoundTrip(t *testing.T) {
	b := NewFlatHostBus(16)
	b.Write32(0, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), b.Read32(0))
	b.Write16(8, 0xCAFE)
	require.Equal(t, uint16(0xCAFE), b.Read16(8))
}
