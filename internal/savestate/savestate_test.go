package savestate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nitro-dsp-hle/internal/clock"
	"nitro-dsp-hle/internal/membus"
	"nitro-dsp-hle/internal/ucode"
)

func newG711(t *testing.T) *ucode.G711 {
	t.Helper()
	data := &membus.BankTable{}
	for i := 0; i < membus.BankCount; i++ {
		var bank [membus.BankSize]byte
		data.MapBank(i, &bank)
	}
	bus := membus.NewFlatHostBus(1 << 16)
	sub := ucode.NewSubstrate(bus, data, nil, nil, 0x20)
	sched := clock.NewWheel()
	return ucode.NewG711(sub, sched, 0x20)
}

func TestEncodeDecodeRoundTripsG711State(t *testing.T) {
	g := newG711(t)
	g.SendData(2, 0) // exercise a benign register write so state is non-zero
	g.CmdState = 1
	g.CmdParams = [8]uint16{1, 2, 3, 4, 5, 6, 7, 8}

	snap := SaveG711(g)
	data, err := Encode(snap)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, snap.Identity, decoded.Identity)

	restored := newG711(t)
	require.NoError(t, LoadInto(decoded, nil, restored, nil))
	require.Equal(t, g.CmdState, restored.CmdState)
	require.Equal(t, g.CmdParams, restored.CmdParams)
}

func TestLoadIntoRejectsMismatchedTarget(t *testing.T) {
	g := newG711(t)
	snap := SaveG711(g)

	err := LoadInto(snap, nil, nil, nil)
	require.Error(t, err)
	var mismatch ErrUnknownIdentity
	require.ErrorAs(t, err, &mismatch)
}

func TestClassOfRoundTripsIdentityPacking(t *testing.T) {
	class, version := ClassOf(uint32(ucode.ClassGraphics)<<16 | uint32(uint16(0x30)))
	require.Equal(t, ucode.ClassGraphics, class)
	require.Equal(t, int32(0x30), version)
}
