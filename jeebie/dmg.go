package jeebie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/cpu"
	"github.com/valerio/jeebie-core/jeebie/disasm"
	"github.com/valerio/jeebie-core/jeebie/memory"
	"github.com/valerio/jeebie-core/jeebie/romfile"
	"github.com/valerio/jeebie-core/jeebie/serial"
	"github.com/valerio/jeebie-core/jeebie/state"
	"github.com/valerio/jeebie-core/jeebie/timing"
)

// ErrFaulted is returned when snapshotting a session whose CPU has failed.
var ErrFaulted = errors.New("jeebie: session has faulted")

// DMG is one emulation session: a cartridge plugged into the CPU, the bus
// and the clock that drives them. It is not safe for concurrent use.
type DMG struct {
	cpu    *cpu.CPU
	mem    *memory.MMU
	cart   *memory.Cartridge
	serial *serial.LogSink
	clock  timing.Clock

	cartDigest uint64
	logger     *slog.Logger
	trace      bool
	faulted    bool
}

// New creates a session for the given cartridge image.
// A malformed image fails with an error matching memory.ErrMalformedCartridge.
func New(rom []byte, opts ...Option) (*DMG, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	cart, err := memory.NewCartridge(rom)
	if err != nil {
		return nil, err
	}

	d := &DMG{
		cart:       cart,
		mem:        memory.NewWithCartridge(cart),
		cartDigest: state.Digest(rom),
		logger:     cfg.logger,
		trace:      cfg.trace,
	}
	d.mem.SetLogger(cfg.logger)

	if cfg.useSerial {
		sinkOpts := append([]serial.LogSinkOption{serial.WithLogger(cfg.logger)}, cfg.serial...)
		d.serial = serial.NewLogSink(func() { d.mem.RequestInterrupt(addr.SerialInterrupt) }, sinkOpts...)
		cfg.devices = append(cfg.devices, attachment{addr.SB, addr.SC, d.serial})
	}
	for _, a := range cfg.devices {
		if err := d.mem.Attach(a.first, a.last, a.dev); err != nil {
			return nil, fmt.Errorf("attaching device at 0x%04X-0x%04X: %w", a.first, a.last, err)
		}
	}
	for _, hook := range cfg.hooks {
		d.mem.AddTickHook(hook)
	}

	if cfg.boot != nil {
		if err := d.mem.LoadBootROM(cfg.boot); err != nil {
			return nil, err
		}
		d.cpu = cpu.NewAtReset(d.mem)
	} else {
		d.mem.SkipBoot()
		d.cpu = cpu.New(d.mem)
	}

	d.logger.Info("cartridge loaded",
		"title", cart.Title(),
		"type", fmt.Sprintf("0x%02X", cart.Type()),
		"controller", cart.Controller().String(),
		"rom_banks", cart.ROMBanks(),
		"ram_banks", cart.RAMBanks(),
		"boot_rom", cfg.boot != nil)

	return d, nil
}

// NewWithFile creates a session from a ROM file, unpacking archives as needed.
func NewWithFile(path string, opts ...Option) (*DMG, error) {
	rom, err := romfile.Load(path)
	if err != nil {
		return nil, err
	}

	d, err := New(rom, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Step runs one CPU step (an instruction, an interrupt dispatch or an idle
// slot) and returns the cycles it took. After an illegal opcode every call
// fails with the same error.
func (d *DMG) Step() (int, error) {
	if d.trace && d.cpu.Err() == nil && d.logger.Enabled(context.Background(), slog.LevelDebug) {
		d.traceInstruction()
	}

	cycles, err := d.cpu.Step(&d.clock)
	if err != nil && !d.faulted {
		d.faulted = true
		d.logger.Error("cpu fault", "error", err, "cycles", d.clock.Cycles())
	}
	return cycles, err
}

func (d *DMG) traceInstruction() {
	pc := d.cpu.GetPC()
	line := disasm.DisassembleAt(pc, d.mem)
	d.logger.Debug("exec",
		"pc", fmt.Sprintf("0x%04X", pc),
		"instr", line.Instruction,
		"mode", d.cpu.Mode().String(),
		"af", fmt.Sprintf("0x%04X", d.cpu.Registers().AF()),
		"cycles", d.clock.Cycles())
}

// RunCycles steps until at least n cycles have elapsed and returns the
// cycles actually run, which overshoot n by at most one step.
func (d *DMG) RunCycles(n int) (int, error) {
	ran := 0
	for ran < n {
		cycles, err := d.Step()
		if err != nil {
			return ran, err
		}
		ran += cycles
	}
	return ran, nil
}

// RunFrame runs for one frame worth of cycles.
func (d *DMG) RunFrame() (int, error) {
	return d.RunCycles(timing.CyclesPerFrame)
}

// RequestInterrupt raises an interrupt on behalf of an external collaborator.
func (d *DMG) RequestInterrupt(source addr.Interrupt) {
	d.mem.RequestInterrupt(source)
}

// Wake resumes a CPU in STOP mode, as a button press does.
func (d *DMG) Wake() {
	d.cpu.Wake()
}

func (d *DMG) CPU() *cpu.CPU                { return d.cpu }
func (d *DMG) MMU() *memory.MMU             { return d.mem }
func (d *DMG) Cartridge() *memory.Cartridge { return d.cart }
func (d *DMG) Clock() *timing.Clock         { return &d.clock }

// Serial returns the serial sink installed by WithSerialLog, or nil.
func (d *DMG) Serial() *serial.LogSink { return d.serial }

// Err returns the fault that stopped the CPU, if any.
func (d *DMG) Err() error { return d.cpu.Err() }
