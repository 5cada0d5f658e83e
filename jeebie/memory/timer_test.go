package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/state"
)

func newCountingTimer() (*Timer, *int) {
	irqs := 0
	return NewTimer(func() { irqs++ }), &irqs
}

func TestTimer_Rates(t *testing.T) {
	testCases := []struct {
		desc string
		tac  uint8
		rate int
	}{
		{desc: "4096 Hz", tac: 0x04, rate: 1024},
		{desc: "262144 Hz", tac: 0x05, rate: 16},
		{desc: "65536 Hz", tac: 0x06, rate: 64},
		{desc: "16384 Hz", tac: 0x07, rate: 256},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			timer, _ := newCountingTimer()
			timer.Write(addr.TAC, tC.tac)

			timer.Tick(tC.rate - 1)
			assert.Equal(t, uint8(0), timer.Read(addr.TIMA))
			timer.Tick(1)
			assert.Equal(t, uint8(1), timer.Read(addr.TIMA))
			timer.Tick(tC.rate * 9)
			assert.Equal(t, uint8(10), timer.Read(addr.TIMA))
		})
	}
}

func TestTimer_Disabled(t *testing.T) {
	timer, irqs := newCountingTimer()
	timer.Write(addr.TAC, 0x01)
	timer.Tick(4096)
	assert.Equal(t, uint8(0), timer.Read(addr.TIMA))
	assert.Equal(t, 0, *irqs)
	assert.Equal(t, uint8(0x10), timer.Read(addr.DIV), "DIV runs regardless of TAC")
}

func TestTimer_Overflow(t *testing.T) {
	testCases := []struct {
		desc string
		tma  uint8
		tac  uint8
		rate int
	}{
		{desc: "reload 0", tma: 0x00, tac: 0x05, rate: 16},
		{desc: "reload 0xF0", tma: 0xF0, tac: 0x05, rate: 16},
		{desc: "reload 0xFF", tma: 0xFF, tac: 0x06, rate: 64},
		{desc: "reload 0x80 slow clock", tma: 0x80, tac: 0x04, rate: 1024},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			timer, irqs := newCountingTimer()
			timer.Write(addr.TMA, tC.tma)
			timer.Write(addr.TIMA, tC.tma)
			timer.Write(addr.TAC, tC.tac)

			timer.Tick(tC.rate * (256 - int(tC.tma)))
			assert.Equal(t, 1, *irqs)
			assert.Equal(t, tC.tma, timer.Read(addr.TIMA), "reloaded from TMA immediately")
		})
	}
}

func TestTimer_DivResetGlitch(t *testing.T) {
	timer, _ := newCountingTimer()
	timer.Write(addr.TAC, 0x05)

	timer.Tick(8) // selected bit 3 is now high
	timer.Write(addr.DIV, 0x12)
	assert.Equal(t, uint8(1), timer.Read(addr.TIMA), "falling edge from the reset")
	assert.Equal(t, uint8(0), timer.Read(addr.DIV))
	assert.Equal(t, uint16(0), timer.Divider())

	timer.Tick(4) // bit 3 low
	timer.Write(addr.DIV, 0x00)
	assert.Equal(t, uint8(1), timer.Read(addr.TIMA), "no edge while the bit is low")
}

func TestTimer_TACChangeGlitch(t *testing.T) {
	testCases := []struct {
		desc string
		tac  uint8
		want uint8
	}{
		{desc: "disable while high", tac: 0x01, want: 1},
		{desc: "select a low bit", tac: 0x04, want: 1},
		{desc: "select another high bit", tac: 0x07, want: 0},
		{desc: "same selection", tac: 0x05, want: 0},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			timer, _ := newCountingTimer()
			timer.Write(addr.TAC, 0x05)
			timer.SetSeed(0x0088) // bits 3 and 7 high, bit 9 low
			timer.Write(addr.TAC, tC.tac)
			assert.Equal(t, tC.want, timer.Read(addr.TIMA))
		})
	}
}

func TestTimer_Registers(t *testing.T) {
	timer, _ := newCountingTimer()
	timer.SetSeed(PostBootDivider)

	assert.Equal(t, uint8(0xAB), timer.Read(addr.DIV))
	assert.Equal(t, uint8(0xF8), timer.Read(addr.TAC))
	timer.Write(addr.TAC, 0xFE)
	assert.Equal(t, uint8(0xFE), timer.Read(addr.TAC), "only 3 bits are stored")
	timer.Write(addr.TMA, 0x42)
	assert.Equal(t, uint8(0x42), timer.Read(addr.TMA))
}

func TestTimer_SaveLoad(t *testing.T) {
	timer, _ := newCountingTimer()
	timer.Write(addr.TAC, 0x06)
	timer.Write(addr.TMA, 0x33)
	timer.Tick(1000)

	s := state.New()
	timer.Save(s)

	restored, _ := newCountingTimer()
	restored.Load(state.FromBytes(s.Bytes()))

	assert.Equal(t, timer.Divider(), restored.Divider())
	for _, a := range []uint16{addr.DIV, addr.TIMA, addr.TMA, addr.TAC} {
		assert.Equal(t, timer.Read(a), restored.Read(a))
	}

	timer.Tick(500)
	restored.Tick(500)
	assert.Equal(t, timer.Read(addr.TIMA), restored.Read(addr.TIMA))
}
