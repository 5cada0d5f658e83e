package cpu

// Registers is a copy of the register file, used by debuggers and tests.
type Registers struct {
	A, F, B, C, D, E, H, L uint8
	SP, PC                 uint16
}

func (r Registers) AF() uint16 { return uint16(r.A)<<8 | uint16(r.F) }
func (r Registers) BC() uint16 { return uint16(r.B)<<8 | uint16(r.C) }
func (r Registers) DE() uint16 { return uint16(r.D)<<8 | uint16(r.E) }
func (r Registers) HL() uint16 { return uint16(r.H)<<8 | uint16(r.L) }

// Registers returns the current register values.
func (c *CPU) Registers() Registers {
	return Registers{
		A:  c.a,
		F:  c.f,
		B:  c.b,
		C:  c.c,
		D:  c.d,
		E:  c.e,
		H:  c.h,
		L:  c.l,
		SP: c.sp,
		PC: c.pc,
	}
}

// SetRegisters overwrites the register file. The low nibble of F always reads 0.
func (c *CPU) SetRegisters(r Registers) {
	c.a, c.f = r.A, r.F&0xF0
	c.b, c.c = r.B, r.C
	c.d, c.e = r.D, r.E
	c.h, c.l = r.H, r.L
	c.sp, c.pc = r.SP, r.PC
}
