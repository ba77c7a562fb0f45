// Command dsphlehost is a standalone harness for the DSP HLE core: it
// loads a program image into the DSP program window, releases reset, and
// reports what the dispatcher resolved, the way a real host would drive
// PCFG during boot. It exists for manual exercising and CRC inspection,
// not as a full console frontend.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nitro-dsp-hle/internal/clock"
	"nitro-dsp-hle/internal/config"
	"nitro-dsp-hle/internal/debug"
	"nitro-dsp-hle/internal/dsp"
	"nitro-dsp-hle/internal/membus"
	"nitro-dsp-hle/internal/ucode"
)

func main() {
	programPath := flag.String("program", "", "Path to a DSP program image")
	configPath := flag.String("config", "", "Path to a dsphle.toml config file")
	logLevel := flag.Bool("log", false, "Enable DSP component logging")
	watch := flag.Bool("watch", false, "Watch -config for changes and live-reapply the logger's minimum level")
	flag.Parse()

	if *programPath == "" {
		fmt.Println("Usage: dsphlehost -program <path-to-image>")
		fmt.Println("  -program <path>   DSP program image to load")
		fmt.Println("  -config <path>    Optional dsphle.toml config file")
		fmt.Println("  -log              Enable DSP component logging")
		fmt.Println("  -watch            Watch -config and live-reapply its logger level")
		os.Exit(1)
	}
	if *watch && *configPath == "" {
		fmt.Fprintln(os.Stderr, "dsphlehost: -watch requires -config")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dsphlehost: config: %v\n", err)
		os.Exit(1)
	}
	applyCRCOverrides(cfg)

	logger := debug.NewLogger(cfg.Logging.MaxEntries)
	logger.SetComponentEnabled(debug.ComponentDSP, *logLevel)
	logger.SetMinLevel(parseLogLevel(cfg.Logging.Level))

	if *watch {
		_, _, err := config.NewWatcher(*configPath, func(c *config.Config) {
			if c == nil {
				fmt.Fprintln(os.Stderr, "dsphlehost: config reload failed, keeping the previous logger level")
				return
			}
			logger.SetMinLevel(parseLogLevel(c.Logging.Level))
			fmt.Printf("dsphlehost: reloaded %s, logger level now %s\n", *configPath, c.Logging.Level)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "dsphlehost: watch: %v\n", err)
			os.Exit(1)
		}
	}

	programData, err := os.ReadFile(*programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dsphlehost: %v\n", err)
		os.Exit(1)
	}

	prog := newBankTable()
	stampProgram(prog, programData)
	data := newBankTable()
	bus := membus.NewFlatHostBus(1 << 24)

	sched := clock.NewWheel()
	dispatcher := &dsp.Dispatcher{Bus: bus, Prog: prog, Data: data, Logger: logger}
	front := dsp.NewFrontEnd(dispatcher, sched, prog, data)
	front.SCFG = true

	front.Write16(0, dsp.RegPCFG, 1) // hold reset
	front.Write16(1, dsp.RegPCFG, 0) // release: triggers start_dsp

	if front.Active == nil {
		fmt.Println("no known ucode matched; dispatcher would fall back to the low-level engine")
	} else {
		fmt.Printf("resolved ucode identity: %08X\n", front.Active.ID())
	}

	if !*watch {
		return
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	fmt.Println("watching config for changes, press Ctrl+C to exit")
	<-sigCh
}

// parseLogLevel maps a config file's logging.level string onto the
// debug package's LogLevel scale, defaulting to Warning on anything it
// doesn't recognize rather than rejecting the config outright.
func parseLogLevel(level string) debug.LogLevel {
	switch level {
	case "none":
		return debug.LogLevelNone
	case "error":
		return debug.LogLevelError
	case "warning":
		return debug.LogLevelWarning
	case "info":
		return debug.LogLevelInfo
	case "debug":
		return debug.LogLevelDebug
	case "trace":
		return debug.LogLevelTrace
	default:
		return debug.LogLevelWarning
	}
}

// applyCRCOverrides feeds any config-supplied CRC table entries into the
// dispatcher's known-ucode table before the first program is resolved.
func applyCRCOverrides(cfg *config.Config) {
	for _, o := range cfg.CRC.Overrides {
		class, ok := classByName(o.Class)
		if !ok {
			fmt.Fprintf(os.Stderr, "dsphlehost: ignoring CRC override with unknown class %q\n", o.Class)
			continue
		}
		var crc uint32
		if _, err := fmt.Sscanf(o.CRC32, "%X", &crc); err != nil {
			fmt.Fprintf(os.Stderr, "dsphlehost: ignoring malformed CRC override %q\n", o.CRC32)
			continue
		}
		dsp.RegisterKnownUcode(crc, class, o.Version)
	}
}

func classByName(name string) (int, bool) {
	switch name {
	case "aac":
		return ucode.ClassAAC, true
	case "graphics":
		return ucode.ClassGraphics, true
	case "g711":
		return ucode.ClassG711, true
	default:
		return 0, false
	}
}

func newBankTable() *membus.BankTable {
	t := &membus.BankTable{}
	for i := 0; i < membus.BankCount; i++ {
		var bank [membus.BankSize]byte
		t.MapBank(i, &bank)
	}
	return t
}

func stampProgram(t *membus.BankTable, data []byte) {
	for i, b := range data {
		t.WriteByte(uint32(i), b)
	}
}
