package cpu

import (
	"fmt"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
)

// hlIndirect is the register index that addresses memory at HL instead of a register.
const hlIndirect = 6

// register resolves an operand index as encoded in opcodes: B, C, D, E, H, L, (HL), A.
func (c *CPU) register(i uint8) *uint8 {
	switch i {
	case 0:
		return &c.b
	case 1:
		return &c.c
	case 2:
		return &c.d
	case 3:
		return &c.e
	case 4:
		return &c.h
	case 5:
		return &c.l
	case 7:
		return &c.a
	}
	panic(fmt.Sprintf("cpu: operand %d is not a register", i))
}

func (c *CPU) operand(i uint8) uint8 {
	if i == hlIndirect {
		return c.bus.Read(c.getHL())
	}
	return *c.register(i)
}

func (c *CPU) setOperand(i uint8, value uint8) {
	if i == hlIndirect {
		c.bus.Write(c.getHL(), value)
		return
	}
	*c.register(i) = value
}

// modify applies a read-modify-write operation to an operand.
func (c *CPU) modify(i uint8, op func(*CPU, *uint8)) {
	if i == hlIndirect {
		value := c.bus.Read(c.getHL())
		op(c, &value)
		c.bus.Write(c.getHL(), value)
		return
	}
	op(c, c.register(i))
}

// pair resolves a 16 bit operand index: BC, DE, HL, SP.
func (c *CPU) pair(p uint8) uint16 {
	switch p {
	case 0:
		return c.getBC()
	case 1:
		return c.getDE()
	case 2:
		return c.getHL()
	default:
		return c.sp
	}
}

func (c *CPU) setPair(p uint8, value uint16) {
	switch p {
	case 0:
		c.setBC(value)
	case 1:
		c.setDE(value)
	case 2:
		c.setHL(value)
	default:
		c.sp = value
	}
}

// stackPair is pair for PUSH and POP, where index 3 is AF.
func (c *CPU) stackPair(p uint8) uint16 {
	if p == 3 {
		return c.getAF()
	}
	return c.pair(p)
}

func (c *CPU) setStackPair(p uint8, value uint16) {
	if p == 3 {
		c.setAF(value)
		return
	}
	c.setPair(p, value)
}

// condition evaluates a branch condition index: NZ, Z, NC, C.
func (c *CPU) condition(cc uint8) bool {
	switch cc {
	case 0:
		return !c.isSetFlag(zeroFlag)
	case 1:
		return c.isSetFlag(zeroFlag)
	case 2:
		return !c.isSetFlag(carryFlag)
	default:
		return c.isSetFlag(carryFlag)
	}
}

func (c *CPU) pushStack(value uint16) {
	c.sp--
	c.bus.Write(c.sp, bit.High(value))
	c.sp--
	c.bus.Write(c.sp, bit.Low(value))
}

func (c *CPU) popStack() uint16 {
	low := c.bus.Read(c.sp)
	c.sp++
	high := c.bus.Read(c.sp)
	c.sp++

	return bit.Combine(high, low)
}

func (c *CPU) inc(r *uint8) {
	*r++

	c.setFlagToCondition(zeroFlag, *r == 0)
	c.setFlagToCondition(halfCarryFlag, *r&0xF == 0)
	c.resetFlag(subFlag)
}

func (c *CPU) dec(r *uint8) {
	*r--

	c.setFlagToCondition(zeroFlag, *r == 0)
	c.setFlagToCondition(halfCarryFlag, *r&0xF == 0xF)
	c.setFlag(subFlag)
}

// shifted sets the flags shared by every rotate and shift: Z from the result,
// N and H cleared, C from the bit shifted out.
func (c *CPU) shifted(result uint8, carry bool) {
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, carry)
}

func (c *CPU) rlc(r *uint8) {
	value := *r
	*r = value<<1 | value>>7
	c.shifted(*r, value&0x80 != 0)
}

func (c *CPU) rrc(r *uint8) {
	value := *r
	*r = value>>1 | value<<7
	c.shifted(*r, value&0x01 != 0)
}

func (c *CPU) rl(r *uint8) {
	value := *r
	*r = value<<1 | c.flagToBit(carryFlag)
	c.shifted(*r, value&0x80 != 0)
}

func (c *CPU) rr(r *uint8) {
	value := *r
	*r = value>>1 | c.flagToBit(carryFlag)<<7
	c.shifted(*r, value&0x01 != 0)
}

func (c *CPU) sla(r *uint8) {
	value := *r
	*r = value << 1
	c.shifted(*r, value&0x80 != 0)
}

// sra keeps bit 7 in place.
func (c *CPU) sra(r *uint8) {
	value := *r
	*r = value>>1 | value&0x80
	c.shifted(*r, value&0x01 != 0)
}

func (c *CPU) srl(r *uint8) {
	value := *r
	*r = value >> 1
	c.shifted(*r, value&0x01 != 0)
}

func (c *CPU) swap(r *uint8) {
	*r = bit.Swap(*r)
	c.shifted(*r, false)
}

// accumulator forms of the rotates always clear Z.
func (c *CPU) rotateA(op func(*CPU, *uint8)) {
	op(c, &c.a)
	c.resetFlag(zeroFlag)
}

func (c *CPU) testBit(index, value uint8) {
	c.setFlagToCondition(zeroFlag, !bit.IsSet(index, value))
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
}

// addToA sets the result of adding value and carry to A, while setting all relevant flags.
func (c *CPU) addToA(value, carry uint8) {
	a := c.a
	c.a = a + value + carry

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, bit.HalfCarryAdd(a, value, carry))
	c.setFlagToCondition(carryFlag, bit.CarryAdd(a, value, carry))
}

// subFromA computes A - value - carry and sets all flags, without storing the result.
func (c *CPU) subFromA(value, carry uint8) uint8 {
	a := c.a
	result := a - value - carry

	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, bit.HalfCarrySub(a, value, carry))
	c.setFlagToCondition(carryFlag, bit.CarrySub(a, value, carry))

	return result
}

func (c *CPU) add(value uint8) { c.addToA(value, 0) }
func (c *CPU) adc(value uint8) { c.addToA(value, c.flagToBit(carryFlag)) }
func (c *CPU) sub(value uint8) { c.a = c.subFromA(value, 0) }
func (c *CPU) sbc(value uint8) { c.a = c.subFromA(value, c.flagToBit(carryFlag)) }
func (c *CPU) cp(value uint8)  { c.subFromA(value, 0) }

func (c *CPU) and(value uint8) {
	c.a &= value
	c.f = uint8(halfCarryFlag)
	c.setFlagToCondition(zeroFlag, c.a == 0)
}

func (c *CPU) xor(value uint8) {
	c.a ^= value
	c.f = 0
	c.setFlagToCondition(zeroFlag, c.a == 0)
}

func (c *CPU) or(value uint8) {
	c.a |= value
	c.f = 0
	c.setFlagToCondition(zeroFlag, c.a == 0)
}

// addToHL sets the result of adding a 16 bit value to HL, while setting relevant flags.
func (c *CPU) addToHL(value uint16) {
	hl := c.getHL()
	result := uint32(hl) + uint32(value)

	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, (hl&0xFFF)+(value&0xFFF) > 0xFFF)
	c.setFlagToCondition(carryFlag, result > 0xFFFF)

	c.setHL(uint16(result))
}

// offsetSP returns SP plus a signed offset. Flags come from the unsigned
// addition of the offset to the low byte of SP, Z and N are cleared.
func (c *CPU) offsetSP(e int8) uint16 {
	low, offset := bit.Low(c.sp), uint8(e)

	c.f = 0
	c.setFlagToCondition(halfCarryFlag, bit.HalfCarryAdd(low, offset, 0))
	c.setFlagToCondition(carryFlag, bit.CarryAdd(low, offset, 0))

	return c.sp + uint16(int16(e))
}

// daa adjusts A back to packed BCD after an addition or subtraction.
func (c *CPU) daa() {
	a := c.a
	carry := c.isSetFlag(carryFlag)

	if c.isSetFlag(subFlag) {
		if c.isSetFlag(halfCarryFlag) {
			a -= 0x06
		}
		if carry {
			a -= 0x60
		}
	} else {
		if carry || a > 0x99 {
			a += 0x60
			carry = true
		}
		if c.isSetFlag(halfCarryFlag) || a&0x0F > 0x09 {
			a += 0x06
		}
	}

	c.a = a
	c.setFlagToCondition(zeroFlag, a == 0)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, carry)
}

// jr performs a relative jump using the signed immediate when cond holds.
func (c *CPU) jr(cond bool) {
	e := c.fetchSigned()
	if cond {
		c.pc += uint16(int16(e))
		c.branched = true
	}
}

// jp performs an absolute jump using the immediate word when cond holds.
func (c *CPU) jp(cond bool) {
	nn := c.fetchWord()
	if cond {
		c.pc = nn
		c.branched = true
	}
}

func (c *CPU) call(cond bool) {
	nn := c.fetchWord()
	if cond {
		c.pushStack(c.pc)
		c.pc = nn
		c.branched = true
	}
}

func (c *CPU) ret(cond bool) {
	if cond {
		c.pc = c.popStack()
		c.branched = true
	}
}

func (c *CPU) rst(vector uint16) {
	c.pushStack(c.pc)
	c.pc = vector
}

// halt enters HALT mode. With IME clear and an interrupt already pending the
// CPU does not halt, and the next opcode fetch fails to advance PC.
func (c *CPU) halt() {
	if !c.interruptsEnabled && c.bus.PendingInterrupts() != 0 {
		c.haltBug = true
		return
	}
	c.mode = Halted
}

// stop consumes the padding byte, resets the divider and enters STOP mode.
func (c *CPU) stop() {
	c.fetch()
	c.bus.Write(addr.DIV, 0)
	c.mode = Stopped
}
