package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/memory"
	"github.com/valerio/jeebie-core/jeebie/timing"
)

// newProgram loads code into work RAM and points PC at it.
func newProgram(code ...uint8) (*CPU, *memory.MMU) {
	mmu := memory.New()
	for i, b := range code {
		mmu.Write(0xC000+uint16(i), b)
	}
	cpu := New(mmu)
	cpu.pc = 0xC000
	return cpu, mmu
}

func mustStep(t *testing.T, cpu *CPU, clk *timing.Clock) int {
	t.Helper()
	cycles, err := cpu.Step(clk)
	require.NoError(t, err)
	return cycles
}

func TestInterruptHandling(t *testing.T) {
	t.Run("interrupts disabled by default", func(t *testing.T) {
		cpu, mmu := newProgram(0x00)
		clk := &timing.Clock{}

		mmu.Write(addr.IF, 0x01)
		mmu.Write(addr.IE, 0x01)

		assert.Equal(t, 4, mustStep(t, cpu, clk))
		assert.Equal(t, uint16(0xC001), cpu.pc)
		assert.Equal(t, uint8(0xE1), mmu.Read(addr.IF), "request stays latched")
	})

	t.Run("dispatch pushes PC and jumps to the vector", func(t *testing.T) {
		cpu, mmu := newProgram(0x00)
		clk := &timing.Clock{}
		cpu.interruptsEnabled = true

		mmu.Write(addr.IE, 0x04)
		mmu.RequestInterrupt(addr.TimerInterrupt)

		assert.Equal(t, 20, mustStep(t, cpu, clk))
		assert.Equal(t, uint64(20), clk.Cycles())
		assert.Equal(t, uint16(0x0050), cpu.pc)
		assert.Equal(t, uint16(0xFFFC), cpu.sp)
		assert.Equal(t, uint8(0xC0), mmu.Read(0xFFFD))
		assert.Equal(t, uint8(0x00), mmu.Read(0xFFFC))
		assert.False(t, cpu.interruptsEnabled)
		assert.Equal(t, uint8(0xE0), mmu.Read(addr.IF), "dispatched source is acknowledged")
	})

	t.Run("interrupt priority order", func(t *testing.T) {
		cpu, mmu := newProgram(0x00)
		clk := &timing.Clock{}
		cpu.interruptsEnabled = true

		mmu.Write(addr.IE, 0x1F)
		mmu.RequestInterrupt(addr.TimerInterrupt)
		mmu.RequestInterrupt(addr.VBlankInterrupt)

		mustStep(t, cpu, clk)
		assert.Equal(t, uint16(0x40), cpu.pc)
		assert.Equal(t, uint8(0xE4), mmu.Read(addr.IF))

		cpu.interruptsEnabled = true
		mustStep(t, cpu, clk)
		assert.Equal(t, uint16(0x50), cpu.pc, "lower priority source on the next boundary")
		assert.Equal(t, uint16(0x40), cpu.popStack())
		assert.Equal(t, uint8(0xE0), mmu.Read(addr.IF))
	})

	t.Run("disabled sources are not dispatched", func(t *testing.T) {
		cpu, mmu := newProgram(0x00)
		clk := &timing.Clock{}
		cpu.interruptsEnabled = true

		mmu.Write(addr.IE, 0x01)
		mmu.RequestInterrupt(addr.SerialInterrupt)

		assert.Equal(t, 4, mustStep(t, cpu, clk))
		assert.Equal(t, uint16(0xC001), cpu.pc)
	})

	t.Run("EI enables interrupts with delay", func(t *testing.T) {
		// EI, NOP, NOP
		cpu, mmu := newProgram(0xFB, 0x00, 0x00)
		clk := &timing.Clock{}

		mmu.Write(addr.IE, 0x01)
		mmu.RequestInterrupt(addr.VBlankInterrupt)

		mustStep(t, cpu, clk)
		assert.False(t, cpu.interruptsEnabled)
		assert.True(t, cpu.eiPending)

		mustStep(t, cpu, clk)
		assert.Equal(t, uint16(0xC002), cpu.pc, "the instruction after EI runs first")
		assert.True(t, cpu.interruptsEnabled)

		assert.Equal(t, 20, mustStep(t, cpu, clk))
		assert.Equal(t, uint16(0x40), cpu.pc)
		assert.Equal(t, uint16(0xC002), cpu.popStack())
	})

	t.Run("DI cancels a pending EI", func(t *testing.T) {
		// EI, DI, NOP
		cpu, mmu := newProgram(0xFB, 0xF3, 0x00)
		clk := &timing.Clock{}

		mmu.Write(addr.IE, 0x01)
		mmu.RequestInterrupt(addr.VBlankInterrupt)

		for range 3 {
			mustStep(t, cpu, clk)
		}
		assert.False(t, cpu.interruptsEnabled)
		assert.Equal(t, uint16(0xC003), cpu.pc)
	})

	t.Run("DI disables interrupts immediately", func(t *testing.T) {
		cpu, _ := newProgram(0xF3)
		cpu.interruptsEnabled = true

		mustStep(t, cpu, &timing.Clock{})
		assert.False(t, cpu.interruptsEnabled)
	})

	t.Run("RETI enables interrupts and returns", func(t *testing.T) {
		cpu, mmu := newProgram(0xD9)
		clk := &timing.Clock{}
		cpu.sp = 0xFFFE
		cpu.pushStack(0xC150)

		assert.Equal(t, 16, mustStep(t, cpu, clk))
		assert.True(t, cpu.interruptsEnabled, "no delay after RETI")
		assert.Equal(t, uint16(0xC150), cpu.pc)

		mmu.Write(addr.IE, 0x02)
		mmu.RequestInterrupt(addr.LCDSTATInterrupt)
		mustStep(t, cpu, clk)
		assert.Equal(t, uint16(0x48), cpu.pc)
	})
}

func TestHalt(t *testing.T) {
	t.Run("halted CPU idles until an interrupt is pending", func(t *testing.T) {
		// HALT, INC A
		cpu, mmu := newProgram(0x76, 0x3C)
		clk := &timing.Clock{}
		a := cpu.a

		mustStep(t, cpu, clk)
		assert.Equal(t, Halted, cpu.Mode())
		assert.Equal(t, uint16(0xC001), cpu.pc)

		for range 10 {
			assert.Equal(t, 4, mustStep(t, cpu, clk))
		}
		assert.Equal(t, uint16(0xC001), cpu.pc)
		assert.Equal(t, uint64(44), clk.Cycles())
		assert.Equal(t, uint8(0x00), mmu.Read(addr.DIV), "components keep ticking")

		mmu.Write(addr.IE, 0x10)
		mmu.RequestInterrupt(addr.JoypadInterrupt)

		// IME is clear, so the CPU resumes without dispatching
		assert.Equal(t, 4, mustStep(t, cpu, clk))
		assert.Equal(t, Running, cpu.Mode())
		assert.Equal(t, a+1, cpu.a)
		assert.Equal(t, uint16(0xC002), cpu.pc)
		assert.Equal(t, uint8(0xF0), mmu.Read(addr.IF))
	})

	t.Run("halted CPU dispatches with IME set", func(t *testing.T) {
		cpu, mmu := newProgram(0x76, 0x00)
		clk := &timing.Clock{}
		cpu.interruptsEnabled = true

		mustStep(t, cpu, clk)
		mustStep(t, cpu, clk)
		assert.True(t, cpu.IsHalted())

		mmu.Write(addr.IE, 0x04)
		mmu.RequestInterrupt(addr.TimerInterrupt)

		assert.Equal(t, 20, mustStep(t, cpu, clk))
		assert.Equal(t, Running, cpu.Mode())
		assert.Equal(t, uint16(0x50), cpu.pc)
		assert.Equal(t, uint16(0xC001), cpu.popStack())
	})

	t.Run("halt bug repeats the next byte", func(t *testing.T) {
		// HALT, INC A, NOP
		cpu, mmu := newProgram(0x76, 0x3C, 0x00)
		clk := &timing.Clock{}
		cpu.a = 0

		mmu.Write(addr.IE, 0x01)
		mmu.RequestInterrupt(addr.VBlankInterrupt)

		mustStep(t, cpu, clk)
		assert.Equal(t, Running, cpu.Mode(), "HALT is skipped with IME clear and a pending interrupt")
		assert.True(t, cpu.haltBug)

		mustStep(t, cpu, clk)
		assert.Equal(t, uint8(1), cpu.a)
		assert.Equal(t, uint16(0xC001), cpu.pc, "fetch did not advance PC")

		mustStep(t, cpu, clk)
		assert.Equal(t, uint8(2), cpu.a, "INC A executed twice")
		assert.Equal(t, uint16(0xC002), cpu.pc)
	})

	t.Run("halt bug reads the repeated byte as operand", func(t *testing.T) {
		// HALT, LD B,n with n = 0x04 (INC B)
		cpu, mmu := newProgram(0x76, 0x06, 0x04)
		clk := &timing.Clock{}

		mmu.Write(addr.IE, 0x01)
		mmu.RequestInterrupt(addr.VBlankInterrupt)

		mustStep(t, cpu, clk)
		mustStep(t, cpu, clk)
		assert.Equal(t, uint8(0x06), cpu.b, "opcode byte read again as the immediate")
		assert.Equal(t, uint16(0xC002), cpu.pc)

		mustStep(t, cpu, clk)
		assert.Equal(t, uint8(0x07), cpu.b)
	})

	t.Run("EI before a bugged HALT returns to the HALT", func(t *testing.T) {
		// EI, HALT, NOP
		cpu, mmu := newProgram(0xFB, 0x76, 0x00)
		clk := &timing.Clock{}

		mmu.Write(addr.IE, 0x01)
		mmu.RequestInterrupt(addr.VBlankInterrupt)

		mustStep(t, cpu, clk)
		mustStep(t, cpu, clk)
		assert.True(t, cpu.interruptsEnabled)

		assert.Equal(t, 20, mustStep(t, cpu, clk))
		assert.Equal(t, uint16(0x40), cpu.pc)
		assert.False(t, cpu.haltBug)
		assert.Equal(t, uint16(0xC001), cpu.popStack())
	})
}

func TestStop(t *testing.T) {
	// STOP, 0x00, INC A
	cpu, mmu := newProgram(0x10, 0x00, 0x3C)
	clk := &timing.Clock{}
	mmu.Write(addr.TAC, 0x05)
	mmu.Tick(0x1234)
	require.NotEqual(t, uint8(0), mmu.Read(addr.DIV))

	assert.Equal(t, 4, mustStep(t, cpu, clk))
	assert.Equal(t, Stopped, cpu.Mode())
	assert.Equal(t, uint16(0xC002), cpu.pc)
	assert.Equal(t, uint8(0), mmu.Read(addr.DIV))

	tima := mmu.Read(addr.TIMA)
	for range 100 {
		assert.Equal(t, 4, mustStep(t, cpu, clk))
	}
	assert.Equal(t, uint16(0xC002), cpu.pc)
	assert.Equal(t, tima, mmu.Read(addr.TIMA), "nothing is ticked while stopped")
	assert.Equal(t, uint64(404), clk.Cycles(), "the clock still advances")

	mmu.Write(addr.IE, 0x1F)
	mmu.RequestInterrupt(addr.JoypadInterrupt)
	mustStep(t, cpu, clk)
	assert.Equal(t, Stopped, cpu.Mode(), "interrupts do not leave STOP")

	cpu.Wake()
	a := cpu.a
	mustStep(t, cpu, clk)
	assert.Equal(t, Running, cpu.Mode())
	assert.Equal(t, a+1, cpu.a)
}
