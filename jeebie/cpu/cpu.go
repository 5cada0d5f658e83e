package cpu

import (
	"fmt"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
	"github.com/valerio/jeebie-core/jeebie/interrupt"
	"github.com/valerio/jeebie-core/jeebie/state"
	"github.com/valerio/jeebie-core/jeebie/timing"
)

// Bus provides the interface for component communication
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	Tick(cycles int)
	PendingInterrupts() uint8
	ClearInterrupt(source addr.Interrupt)
}

// Flag is one of the 4 possible flags used in the flag register (high part of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// Mode is the execution state of the CPU.
type Mode uint8

const (
	Running Mode = iota
	// Halted waits for an enabled interrupt to be requested.
	Halted
	// Stopped only resumes through Wake.
	Stopped
)

func (m Mode) String() string {
	switch m {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

const (
	// dispatchCycles is the cost of servicing an interrupt: two wait states,
	// pushing PC and loading the vector.
	dispatchCycles = 20
	// idleCycles is what one step costs while halted or stopped.
	idleCycles = 4
)

// CPU is the SM83 core. It executes one instruction (or one interrupt
// dispatch) per Step and reports how many cycles it took.
type CPU struct {
	// registers
	a  uint8
	f  uint8
	b  uint8
	c  uint8
	d  uint8
	e  uint8
	h  uint8
	l  uint8
	sp uint16
	pc uint16

	// metadata
	interruptsEnabled bool
	eiPending         bool // EI delay: interrupts enable after next instruction
	mode              Mode
	currentOpcode     uint16
	cycles            uint64

	// haltBug makes the next opcode fetch read the byte after HALT without
	// advancing PC, so that byte is executed twice.
	haltBug bool

	// branched is set by conditional instructions when the condition holds.
	branched bool

	// err is the fault that stopped execution, returned by every later Step.
	err error

	bus Bus
}

// New returns a CPU in the state the DMG boot ROM hands over to the cartridge.
func New(bus Bus) *CPU {
	cpu := &CPU{
		bus: bus,
	}

	cpu.setAF(0x01B0)
	cpu.setBC(0x0013)
	cpu.setDE(0x00D8)
	cpu.setHL(0x014D)
	cpu.sp = 0xFFFE
	cpu.pc = 0x0100

	return cpu
}

// NewAtReset returns a CPU with every register cleared and PC at 0x0000,
// ready to run a boot ROM.
func NewAtReset(bus Bus) *CPU {
	return &CPU{
		bus: bus,
	}
}

// Step executes a single instruction, or services a pending interrupt, then
// advances the clock and ticks the bus by the cycles taken.
// Once an illegal opcode is hit the CPU stays failed and the same error is
// returned on every call.
func (c *CPU) Step(clk *timing.Clock) (int, error) {
	if c.err != nil {
		return 0, c.err
	}

	if c.mode == Stopped {
		clk.Advance(idleCycles)
		return idleCycles, nil
	}

	pending := c.bus.PendingInterrupts()

	if c.mode == Halted && pending == 0 {
		return c.finish(clk, idleCycles), nil
	}

	if c.interruptsEnabled && pending != 0 {
		return c.finish(clk, c.dispatch(pending)), nil
	}

	// waking from HALT with IME clear resumes execution without dispatching
	c.mode = Running

	cycles, err := c.execute()
	if err != nil {
		c.err = err
		return 0, err
	}

	return c.finish(clk, cycles), nil
}

func (c *CPU) finish(clk *timing.Clock, cycles int) int {
	c.cycles += uint64(cycles)
	clk.Advance(cycles)
	c.bus.Tick(cycles)
	return cycles
}

// dispatch services the highest priority pending interrupt.
func (c *CPU) dispatch(pending uint8) int {
	source, _ := interrupt.Highest(pending)

	c.interruptsEnabled = false
	c.eiPending = false
	c.mode = Running

	// EI followed by a bugged HALT returns to the HALT itself.
	if c.haltBug {
		c.haltBug = false
		c.pc--
	}

	c.pushStack(c.pc)
	c.bus.ClearInterrupt(source)
	c.pc = interrupt.Vector(source)

	return dispatchCycles
}

// execute fetches, decodes and runs the instruction at PC.
func (c *CPU) execute() (int, error) {
	address := c.pc
	opcode := c.fetch()

	in := &table[opcode]
	if opcode == 0xCB {
		in = &cbTable[c.fetch()]
	}

	if in.exec == nil {
		return 0, &IllegalOpcodeError{Opcode: opcode, Address: address}
	}

	c.currentOpcode = in.Opcode
	c.branched = false
	eiWasPending := c.eiPending

	in.exec(c)

	// EI takes effect once the instruction after it has completed,
	// unless that instruction was DI.
	if eiWasPending && c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	if c.branched {
		return in.TakenCycles, nil
	}
	return in.Cycles, nil
}

// Wake leaves STOP mode, as a joypad press does on hardware.
func (c *CPU) Wake() {
	if c.mode == Stopped {
		c.mode = Running
	}
}

// fetch returns the byte pointed to by PC and advances it.
// Right after a bugged HALT the first fetch leaves PC in place.
func (c *CPU) fetch() uint8 {
	n := c.bus.Read(c.pc)
	if c.haltBug {
		c.haltBug = false
	} else {
		c.pc++
	}
	return n
}

// fetchWord reads a little endian immediate ('nn' in mnemonics).
func (c *CPU) fetchWord() uint16 {
	low := c.fetch()
	high := c.fetch()
	return bit.Combine(high, low)
}

// fetchSigned reads a signed immediate offset ('e' in mnemonics).
func (c *CPU) fetchSigned() int8 {
	return int8(c.fetch())
}

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &^= uint8(flag)
}

func (c CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

// flagToBit will return 1 if the passed flag is set, 0 otherwise
func (c CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}

	return 0
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if !condition {
		c.resetFlag(flag)
		return
	}

	c.setFlag(flag)
}

func (c *CPU) setBC(value uint16) {
	c.b = bit.High(value)
	c.c = bit.Low(value)
}

func (c CPU) getBC() uint16 {
	return bit.Combine(c.b, c.c)
}

func (c *CPU) setDE(value uint16) {
	c.d = bit.High(value)
	c.e = bit.Low(value)
}

func (c CPU) getDE() uint16 {
	return bit.Combine(c.d, c.e)
}

func (c *CPU) setHL(value uint16) {
	c.h = bit.High(value)
	c.l = bit.Low(value)
}

func (c CPU) getHL() uint16 {
	return bit.Combine(c.h, c.l)
}

func (c *CPU) setAF(value uint16) {
	c.a = bit.High(value)
	// F register lower 4 bits must be 0
	c.f = bit.Low(value) & 0xF0
}

func (c CPU) getAF() uint16 {
	return bit.Combine(c.a, c.f)
}

// Debug getter methods for register display
func (c *CPU) GetA() uint8       { return c.a }
func (c *CPU) GetF() uint8       { return c.f }
func (c *CPU) GetB() uint8       { return c.b }
func (c *CPU) GetC() uint8       { return c.c }
func (c *CPU) GetD() uint8       { return c.d }
func (c *CPU) GetE() uint8       { return c.e }
func (c *CPU) GetH() uint8       { return c.h }
func (c *CPU) GetL() uint8       { return c.l }
func (c *CPU) GetSP() uint16     { return c.sp }
func (c *CPU) GetPC() uint16     { return c.pc }
func (c *CPU) GetCycles() uint64 { return c.cycles }

// Interrupt and mode getters
func (c *CPU) GetIME() bool   { return c.interruptsEnabled }
func (c *CPU) Mode() Mode     { return c.mode }
func (c *CPU) IsHalted() bool { return c.mode == Halted }
func (c *CPU) Err() error     { return c.err }

// ClearFault drops a sticky execution error so Step runs again.
func (c *CPU) ClearFault() { c.err = nil }

// CurrentOpcode returns the last executed opcode, 0xCBxx for prefixed ones.
func (c *CPU) CurrentOpcode() uint16 { return c.currentOpcode }

// GetFlagString returns a human-readable representation of the flag register
func (c *CPU) GetFlagString() string {
	flags := []byte("----")
	for i, flag := range []Flag{zeroFlag, subFlag, halfCarryFlag, carryFlag} {
		if c.isSetFlag(flag) {
			flags[i] = "ZNHC"[i]
		}
	}
	return string(flags)
}

// Save writes registers and execution state. A failed CPU can't be saved
// meaningfully, the fault itself is not part of the state.
func (c *CPU) Save(s *state.State) {
	s.Write16(c.getAF())
	s.Write16(c.getBC())
	s.Write16(c.getDE())
	s.Write16(c.getHL())
	s.Write16(c.sp)
	s.Write16(c.pc)
	s.WriteBool(c.interruptsEnabled)
	s.WriteBool(c.eiPending)
	s.Write8(uint8(c.mode))
	s.WriteBool(c.haltBug)
	s.Write16(c.currentOpcode)
	s.Write64(c.cycles)
}

func (c *CPU) Load(s *state.State) {
	c.setAF(s.Read16())
	c.setBC(s.Read16())
	c.setDE(s.Read16())
	c.setHL(s.Read16())
	c.sp = s.Read16()
	c.pc = s.Read16()
	c.interruptsEnabled = s.ReadBool()
	c.eiPending = s.ReadBool()
	c.mode = Mode(s.Read8())
	c.haltBug = s.ReadBool()
	c.currentOpcode = s.Read16()
	c.cycles = s.Read64()
}
