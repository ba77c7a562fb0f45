// Command ucodeid reports the CRC32 the dispatcher computes over a 256 KiB
// DSP program image, the key internal/dsp.Dispatcher.Resolve looks up on a
// PCFG reset-hold falling edge. It does not print a class or version.
package main

import (
	"fmt"
	"os"

	"nitro-dsp-hle/internal/dsp"
	"nitro-dsp-hle/internal/membus"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: ucodeid <program-image.bin>")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ucodeid: %v\n", err)
		os.Exit(1)
	}

	prog := loadProgram(data)
	crc := dsp.ProgramCRC(prog)
	fmt.Printf("program CRC32: %08X\n", crc)
}

// loadProgram stamps a raw program-image file across the eight 32 KiB
// banks the dispatcher CRCs, truncating or zero-padding to fit.
func loadProgram(data []byte) *membus.BankTable {
	var t membus.BankTable
	for slot := 0; slot < membus.BankCount; slot++ {
		var bank [membus.BankSize]byte
		start := slot * membus.BankSize
		if start < len(data) {
			end := start + membus.BankSize
			if end > len(data) {
				end = len(data)
			}
			copy(bank[:], data[start:end])
		}
		t.MapBank(slot, &bank)
	}
	return &t
}
