package memory

import (
	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
	"github.com/valerio/jeebie-core/jeebie/state"
)

// tacLookup maps TAC input clock select (bits 1–0) to the bit position
// of the 16‑bit internal divider used as the timer's clock source.
//
//	00 -> bit 9  (4096 Hz, every 1024 cycles)
//	01 -> bit 3  (262144 Hz, every 16 cycles)
//	10 -> bit 5  (65536 Hz, every 64 cycles)
//	11 -> bit 7  (16384 Hz, every 256 cycles)
var tacLookup = [4]uint16{9, 3, 5, 7}

// PostBootDivider is the internal divider value once the DMG boot ROM hands over.
const PostBootDivider uint16 = 0xABCC

// Timer implements DIV/TIMA/TMA/TAC.
//
// TIMA is clocked by the falling edge of (TAC enable AND selected divider bit).
// The signal is recomputed after every divider step and after every DIV or TAC
// write, so resetting DIV or changing TAC while the signal is high produces the
// same spurious increment the hardware does.
type Timer struct {
	divider uint16 // DIV is the upper 8 bits
	signal  bool

	tima byte
	tma  byte
	tac  byte

	// IRQ requester callback, called on TIMA overflow
	requestInterrupt func()
}

// NewTimer returns a timer wired to the given interrupt requester.
func NewTimer(irq func()) *Timer {
	return &Timer{requestInterrupt: irq}
}

// SetSeed initializes the internal divider counter without clocking TIMA.
func (t *Timer) SetSeed(seed uint16) {
	t.divider = seed
	t.signal = t.currentSignal()
}

// Tick advances the divider one cycle at a time.
func (t *Timer) Tick(cycles int) {
	for range cycles {
		t.divider++
		t.update()
	}
}

func (t *Timer) currentSignal() bool {
	return bit.IsSet(2, t.tac) && bit.IsSet16(tacLookup[t.tac&0x03], t.divider)
}

func (t *Timer) update() {
	signal := t.currentSignal()
	if t.signal && !signal {
		t.incrementTIMA()
	}
	t.signal = signal
}

func (t *Timer) incrementTIMA() {
	t.tima++
	if t.tima != 0 {
		return
	}
	t.tima = t.tma
	if t.requestInterrupt != nil {
		t.requestInterrupt()
	}
}

// Divider returns the full 16 bit internal counter.
func (t *Timer) Divider() uint16 { return t.divider }

func (t *Timer) Read(address uint16) byte {
	switch address {
	case addr.DIV:
		return byte(t.divider >> 8)
	case addr.TIMA:
		return t.tima
	case addr.TMA:
		return t.tma
	case addr.TAC:
		return t.tac | 0xF8
	default:
		return 0xFF
	}
}

func (t *Timer) Write(address uint16, value byte) {
	switch address {
	case addr.DIV:
		t.divider = 0
		t.update()
	case addr.TIMA:
		t.tima = value
	case addr.TMA:
		t.tma = value
	case addr.TAC:
		t.tac = value & 0x07
		t.update()
	}
}

func (t *Timer) Save(s *state.State) {
	s.Write16(t.divider)
	s.WriteBool(t.signal)
	s.Write8(t.tima)
	s.Write8(t.tma)
	s.Write8(t.tac)
}

func (t *Timer) Load(s *state.State) {
	t.divider = s.Read16()
	t.signal = s.ReadBool()
	t.tima = s.Read8()
	t.tma = s.Read8()
	t.tac = s.Read8() & 0x07
}
