package interrupt

import (
	"fmt"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/state"
)

const (
	// sourceMask covers the five implemented sources.
	sourceMask uint8 = 0x1F
	// unusedIF are the IF bits that always read back as 1.
	unusedIF uint8 = 0xE0

	baseVector uint16 = 0x40
)

// Controller holds the interrupt enable (IE) and interrupt flag (IF) masks.
// The master enable flag (IME) is owned by the CPU.
type Controller struct {
	enable uint8
	flag   uint8
}

// New returns a controller with nothing enabled or requested.
func New() *Controller {
	return &Controller{}
}

// Request latches the source's bit in IF.
func (c *Controller) Request(source addr.Interrupt) {
	c.flag |= uint8(source) & sourceMask
}

// Clear drops the source's bit from IF, used when the CPU dispatches it.
func (c *Controller) Clear(source addr.Interrupt) {
	c.flag &^= uint8(source)
}

// Pending returns the sources both enabled and requested.
func (c *Controller) Pending() uint8 {
	return c.enable & c.flag & sourceMask
}

// Highest returns the highest priority source present in mask.
// The boolean is false when mask has no source bits.
func Highest(mask uint8) (addr.Interrupt, bool) {
	for _, source := range addr.Interrupts {
		if mask&uint8(source) != 0 {
			return source, true
		}
	}
	return 0, false
}

// Vector returns the handler address for a source: 0x40, 0x48, 0x50, 0x58, 0x60.
func Vector(source addr.Interrupt) uint16 {
	for i, s := range addr.Interrupts {
		if s == source {
			return baseVector + uint16(i)*8
		}
	}
	panic(fmt.Sprintf("unknown interrupt source: 0x%02X", uint8(source)))
}

// ReadIF returns IF with the unused upper bits set.
func (c *Controller) ReadIF() uint8 { return c.flag | unusedIF }

// WriteIF overwrites IF, software can both request and cancel sources this way.
func (c *Controller) WriteIF(value uint8) { c.flag = value & sourceMask }

func (c *Controller) ReadIE() uint8 { return c.enable }

// WriteIE stores all 8 bits, only the lower 5 take part in dispatch.
func (c *Controller) WriteIE(value uint8) { c.enable = value }

// Read serves IF and IE for the memory bus.
func (c *Controller) Read(address uint16) uint8 {
	switch address {
	case addr.IF:
		return c.ReadIF()
	case addr.IE:
		return c.ReadIE()
	default:
		return 0xFF
	}
}

// Write serves IF and IE for the memory bus.
func (c *Controller) Write(address uint16, value uint8) {
	switch address {
	case addr.IF:
		c.WriteIF(value)
	case addr.IE:
		c.WriteIE(value)
	}
}

func (c *Controller) Save(s *state.State) {
	s.Write8(c.enable)
	s.Write8(c.flag)
}

func (c *Controller) Load(s *state.State) {
	c.enable = s.Read8()
	c.flag = s.Read8() & sourceMask
}
