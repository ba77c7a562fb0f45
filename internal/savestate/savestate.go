// Package savestate serializes and restores the DSP core's active ucode,
// mirroring the donor's gob-based SaveState/LoadState pair but keyed on
// ucode identity first, per §6.5: the (class<<16)|version tag is written
// and read before the type-specific payload, so load can instantiate the
// matching ucode before deserializing into it.
package savestate

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"nitro-dsp-hle/internal/ucode"
)

func init() {
	gob.Register(ucode.AACState{})
	gob.Register(ucode.G711State{})
	gob.Register(ucode.GraphicsState{})
}

// Version is the snapshot format's own version, independent of any
// ucode's identity version field.
const Version uint16 = 1

// Snapshot is the on-disk/on-wire representation of one DSP core state.
type Snapshot struct {
	FormatVersion uint16

	// HasUcode is false when the core was running the low-level engine
	// (no ucode identity resolved) at the time of the save.
	HasUcode bool
	Identity uint32

	// Payload holds whichever concrete *State value matches Identity's
	// class, boxed as an interface so gob can carry any of the three.
	Payload interface{}
}

// SaveAAC, SaveG711, and SaveGraphics each box one concrete ucode's own
// State type into a Snapshot. There is no single shared "Saver" interface
// here because Go does not let AAC.SaveState's concrete AACState return
// type satisfy an interface { SaveState() interface{} } — a caller that
// knows which concrete type it holds calls the matching one directly.

func SaveAAC(a *ucode.AAC) Snapshot {
	return Snapshot{FormatVersion: Version, HasUcode: true, Identity: a.ID(), Payload: a.SaveState()}
}

func SaveG711(g *ucode.G711) Snapshot {
	return Snapshot{FormatVersion: Version, HasUcode: true, Identity: g.ID(), Payload: g.SaveState()}
}

func SaveGraphics(gr *ucode.Graphics) Snapshot {
	return Snapshot{FormatVersion: Version, HasUcode: true, Identity: gr.ID(), Payload: gr.SaveState()}
}

// NoUcode records a snapshot taken while the low-level engine, not any
// ucode, was active.
func NoUcode() Snapshot {
	return Snapshot{FormatVersion: Version}
}

// LoadInto restores snap's payload into whichever of a/g/gr matches the
// snapshot's class; exactly one of the three should be non-nil, selected
// by the caller from snap.Identity via ClassOf beforehand. Returns
// ErrUnknownIdentity if none of the supplied targets match.
func LoadInto(snap Snapshot, a *ucode.AAC, g *ucode.G711, gr *ucode.Graphics) error {
	if !snap.HasUcode {
		return nil
	}
	class, _ := ClassOf(snap.Identity)
	switch class {
	case ucode.ClassAAC:
		st, ok := snap.Payload.(ucode.AACState)
		if !ok || a == nil {
			return ErrUnknownIdentity{Identity: snap.Identity}
		}
		a.LoadState(st)
	case ucode.ClassG711:
		st, ok := snap.Payload.(ucode.G711State)
		if !ok || g == nil {
			return ErrUnknownIdentity{Identity: snap.Identity}
		}
		g.LoadState(st)
	case ucode.ClassGraphics:
		st, ok := snap.Payload.(ucode.GraphicsState)
		if !ok || gr == nil {
			return ErrUnknownIdentity{Identity: snap.Identity}
		}
		gr.LoadState(st)
	default:
		return ErrUnknownIdentity{Identity: snap.Identity}
	}
	return nil
}

// Encode gob-serializes a snapshot to bytes.
func Encode(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("savestate: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a previously encoded snapshot.
func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("savestate: decode: %w", err)
	}
	return snap, nil
}

// ClassOf splits a ucode identity into its class and version parts, the
// same packing AAC.ID/G711.ID/Graphics.ID use.
func ClassOf(identity uint32) (class int, version int32) {
	return int(identity >> 16), int32(int16(uint16(identity)))
}

// ErrUnknownIdentity is returned by a loader when a snapshot's ucode
// identity does not resolve to any of this core's known classes. Per
// §7's savestate-mismatch handling, the caller decides whether to abort
// the load.
type ErrUnknownIdentity struct {
	Identity uint32
}

func (e ErrUnknownIdentity) Error() string {
	return fmt.Sprintf("savestate: ucode identity %08X does not resolve to a known class", e.Identity)
}
