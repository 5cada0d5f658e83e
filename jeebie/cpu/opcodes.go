package cpu

import (
	"fmt"

	"github.com/valerio/jeebie-core/jeebie/bit"
)

// Instruction describes one opcode: Opcode is 0xCBxx for prefixed ones,
// Length counts opcode and immediate bytes, Cycles is the cost in clock
// cycles and TakenCycles the cost when a conditional branch is taken.
//
// Flags is the effect on Z, N, H and C in that order: the flag letter when
// computed from the result, 0 or 1 when forced, '-' when left unchanged.
//
// Mnemonic operands use d8/d16 for immediates, a8/a16 for immediate
// addresses and r8 for signed offsets.
type Instruction struct {
	Opcode      uint16
	Mnemonic    string
	Length      int
	Cycles      int
	TakenCycles int
	Flags       string
	exec        func(*CPU)
}

// Legal reports whether the opcode exists on the SM83.
func (in Instruction) Legal() bool {
	return in.exec != nil
}

var (
	table   [256]Instruction
	cbTable [256]Instruction
)

// Lookup returns the descriptor of an unprefixed opcode.
func Lookup(opcode uint8) Instruction { return table[opcode] }

// LookupCB returns the descriptor of a 0xCB prefixed opcode.
func LookupCB(opcode uint8) Instruction { return cbTable[opcode] }

// IllegalOpcodes lists the opcodes that lock up the CPU.
var IllegalOpcodes = [...]uint8{0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD}

var (
	registerNames  = [8]string{"B", "C", "D", "E", "H", "L", "(HL)", "A"}
	pairNames      = [4]string{"BC", "DE", "HL", "SP"}
	stackPairNames = [4]string{"BC", "DE", "HL", "AF"}
	conditionNames = [4]string{"NZ", "Z", "NC", "C"}
)

// aluOps is the order of the 8 bit arithmetic group, shared by 0x80-0xBF and
// the immediate forms at 0xC6, 0xCE, ... 0xFE.
var aluOps = [8]struct {
	prefix string
	flags  string
	exec   func(*CPU, uint8)
}{
	{"ADD A,", "Z0HC", (*CPU).add},
	{"ADC A,", "Z0HC", (*CPU).adc},
	{"SUB ", "Z1HC", (*CPU).sub},
	{"SBC A,", "Z1HC", (*CPU).sbc},
	{"AND ", "Z010", (*CPU).and},
	{"XOR ", "Z000", (*CPU).xor},
	{"OR ", "Z000", (*CPU).or},
	{"CP ", "Z1HC", (*CPU).cp},
}

func define(opcode uint8, mnemonic string, length, cycles int, flags string, exec func(*CPU)) {
	table[opcode] = Instruction{
		Opcode:      uint16(opcode),
		Mnemonic:    mnemonic,
		Length:      length,
		Cycles:      cycles,
		TakenCycles: cycles,
		Flags:       flags,
		exec:        exec,
	}
}

func defineBranch(opcode uint8, mnemonic string, length, cycles, taken int, exec func(*CPU)) {
	define(opcode, mnemonic, length, cycles, "----", exec)
	table[opcode].TakenCycles = taken
}

// cost returns the cycles of an instruction, more when it goes through (HL).
func cost(operand uint8, register, memory int) int {
	if operand == hlIndirect {
		return memory
	}
	return register
}

func init() {
	defineLoads()
	defineArithmetic()
	defineControl()
	defineMisc()
	initCB()

	for _, op := range IllegalOpcodes {
		table[op] = Instruction{Opcode: uint16(op), Mnemonic: "ILLEGAL", Length: 1, Flags: "----"}
	}
}

func defineLoads() {
	for dst := range uint8(8) {
		// LD r, n
		define(0x06|dst<<3, fmt.Sprintf("LD %s,d8", registerNames[dst]), 2, cost(dst, 8, 12), "----", func(c *CPU) {
			c.setOperand(dst, c.fetch())
		})

		// LD r, r' (0x76 would be LD (HL),(HL), the slot is taken by HALT)
		for src := range uint8(8) {
			if dst == hlIndirect && src == hlIndirect {
				continue
			}
			cycles := 4
			if dst == hlIndirect || src == hlIndirect {
				cycles = 8
			}
			define(0x40|dst<<3|src, fmt.Sprintf("LD %s,%s", registerNames[dst], registerNames[src]), 1, cycles, "----", func(c *CPU) {
				c.setOperand(dst, c.operand(src))
			})
		}
	}

	for p := range uint8(4) {
		// LD rr, nn
		define(0x01|p<<4, fmt.Sprintf("LD %s,d16", pairNames[p]), 3, 12, "----", func(c *CPU) {
			c.setPair(p, c.fetchWord())
		})
		// PUSH rr
		define(0xC5|p<<4, "PUSH "+stackPairNames[p], 1, 16, "----", func(c *CPU) {
			c.pushStack(c.stackPair(p))
		})
		// POP rr
		flags := "----"
		if p == 3 {
			flags = "ZNHC"
		}
		define(0xC1|p<<4, "POP "+stackPairNames[p], 1, 12, flags, func(c *CPU) {
			c.setStackPair(p, c.popStack())
		})
	}

	//LD (BC), A
	//#0x02:
	define(0x02, "LD (BC),A", 1, 8, "----", func(c *CPU) { c.bus.Write(c.getBC(), c.a) })
	//LD (DE), A
	//#0x12:
	define(0x12, "LD (DE),A", 1, 8, "----", func(c *CPU) { c.bus.Write(c.getDE(), c.a) })
	//LD A, (BC)
	//#0x0A:
	define(0x0A, "LD A,(BC)", 1, 8, "----", func(c *CPU) { c.a = c.bus.Read(c.getBC()) })
	//LD A, (DE)
	//#0x1A:
	define(0x1A, "LD A,(DE)", 1, 8, "----", func(c *CPU) { c.a = c.bus.Read(c.getDE()) })

	//LDI (HL), A
	//#0x22:
	define(0x22, "LD (HL+),A", 1, 8, "----", func(c *CPU) {
		c.bus.Write(c.getHL(), c.a)
		c.setHL(c.getHL() + 1)
	})
	//LDI A, (HL)
	//#0x2A:
	define(0x2A, "LD A,(HL+)", 1, 8, "----", func(c *CPU) {
		c.a = c.bus.Read(c.getHL())
		c.setHL(c.getHL() + 1)
	})
	//LDD (HL), A
	//#0x32:
	define(0x32, "LD (HL-),A", 1, 8, "----", func(c *CPU) {
		c.bus.Write(c.getHL(), c.a)
		c.setHL(c.getHL() - 1)
	})
	//LDD A, (HL)
	//#0x3A:
	define(0x3A, "LD A,(HL-)", 1, 8, "----", func(c *CPU) {
		c.a = c.bus.Read(c.getHL())
		c.setHL(c.getHL() - 1)
	})

	//LD (nn), SP
	//#0x08:
	define(0x08, "LD (a16),SP", 3, 20, "----", func(c *CPU) {
		address := c.fetchWord()
		c.bus.Write(address, bit.Low(c.sp))
		c.bus.Write(address+1, bit.High(c.sp))
	})

	//LDH (n), A
	//#0xE0:
	define(0xE0, "LDH (a8),A", 2, 12, "----", func(c *CPU) {
		c.bus.Write(0xFF00|uint16(c.fetch()), c.a)
	})
	//LDH A, (n)
	//#0xF0:
	define(0xF0, "LDH A,(a8)", 2, 12, "----", func(c *CPU) {
		c.a = c.bus.Read(0xFF00 | uint16(c.fetch()))
	})
	//LD (C), A
	//#0xE2:
	define(0xE2, "LD (C),A", 1, 8, "----", func(c *CPU) { c.bus.Write(0xFF00|uint16(c.c), c.a) })
	//LD A, (C)
	//#0xF2:
	define(0xF2, "LD A,(C)", 1, 8, "----", func(c *CPU) { c.a = c.bus.Read(0xFF00 | uint16(c.c)) })

	//LD (nn), A
	//#0xEA:
	define(0xEA, "LD (a16),A", 3, 16, "----", func(c *CPU) { c.bus.Write(c.fetchWord(), c.a) })
	//LD A, (nn)
	//#0xFA:
	define(0xFA, "LD A,(a16)", 3, 16, "----", func(c *CPU) { c.a = c.bus.Read(c.fetchWord()) })

	//LD HL, SP+n
	//#0xF8:
	define(0xF8, "LD HL,SP+r8", 2, 12, "00HC", func(c *CPU) { c.setHL(c.offsetSP(c.fetchSigned())) })
	//LD SP, HL
	//#0xF9:
	define(0xF9, "LD SP,HL", 1, 8, "----", func(c *CPU) { c.sp = c.getHL() })
}

func defineArithmetic() {
	for r := range uint8(8) {
		// INC r
		define(0x04|r<<3, "INC "+registerNames[r], 1, cost(r, 4, 12), "Z0H-", func(c *CPU) {
			c.modify(r, (*CPU).inc)
		})
		// DEC r
		define(0x05|r<<3, "DEC "+registerNames[r], 1, cost(r, 4, 12), "Z1H-", func(c *CPU) {
			c.modify(r, (*CPU).dec)
		})
	}

	for kind, op := range aluOps {
		k := uint8(kind)
		for src := range uint8(8) {
			define(0x80|k<<3|src, op.prefix+registerNames[src], 1, cost(src, 4, 8), op.flags, func(c *CPU) {
				op.exec(c, c.operand(src))
			})
		}
		// ALU A, n
		define(0xC6|k<<3, op.prefix+"d8", 2, 8, op.flags, func(c *CPU) {
			op.exec(c, c.fetch())
		})
	}

	for p := range uint8(4) {
		// INC rr
		define(0x03|p<<4, "INC "+pairNames[p], 1, 8, "----", func(c *CPU) {
			c.setPair(p, c.pair(p)+1)
		})
		// DEC rr
		define(0x0B|p<<4, "DEC "+pairNames[p], 1, 8, "----", func(c *CPU) {
			c.setPair(p, c.pair(p)-1)
		})
		// ADD HL, rr
		define(0x09|p<<4, "ADD HL,"+pairNames[p], 1, 8, "-0HC", func(c *CPU) {
			c.addToHL(c.pair(p))
		})
	}

	//ADD SP, n
	//#0xE8:
	define(0xE8, "ADD SP,r8", 2, 16, "00HC", func(c *CPU) { c.sp = c.offsetSP(c.fetchSigned()) })

	//DAA
	//#0x27:
	define(0x27, "DAA", 1, 4, "Z-0C", (*CPU).daa)
	//CPL
	//#0x2F:
	define(0x2F, "CPL", 1, 4, "-11-", func(c *CPU) {
		c.a = ^c.a
		c.setFlag(subFlag)
		c.setFlag(halfCarryFlag)
	})
	//SCF
	//#0x37:
	define(0x37, "SCF", 1, 4, "-001", func(c *CPU) {
		c.resetFlag(subFlag)
		c.resetFlag(halfCarryFlag)
		c.setFlag(carryFlag)
	})
	//CCF
	//#0x3F:
	define(0x3F, "CCF", 1, 4, "-00C", func(c *CPU) {
		c.resetFlag(subFlag)
		c.resetFlag(halfCarryFlag)
		c.setFlagToCondition(carryFlag, !c.isSetFlag(carryFlag))
	})

	//RLCA
	//#0x07:
	define(0x07, "RLCA", 1, 4, "000C", func(c *CPU) { c.rotateA((*CPU).rlc) })
	//RRCA
	//#0x0F:
	define(0x0F, "RRCA", 1, 4, "000C", func(c *CPU) { c.rotateA((*CPU).rrc) })
	//RLA
	//#0x17:
	define(0x17, "RLA", 1, 4, "000C", func(c *CPU) { c.rotateA((*CPU).rl) })
	//RRA
	//#0x1F:
	define(0x1F, "RRA", 1, 4, "000C", func(c *CPU) { c.rotateA((*CPU).rr) })
}

func defineControl() {
	for cc := range uint8(4) {
		name := conditionNames[cc]
		// JR cc, n
		defineBranch(0x20|cc<<3, "JR "+name+",r8", 2, 8, 12, func(c *CPU) { c.jr(c.condition(cc)) })
		// RET cc
		defineBranch(0xC0|cc<<3, "RET "+name, 1, 8, 20, func(c *CPU) { c.ret(c.condition(cc)) })
		// JP cc, nn
		defineBranch(0xC2|cc<<3, "JP "+name+",a16", 3, 12, 16, func(c *CPU) { c.jp(c.condition(cc)) })
		// CALL cc, nn
		defineBranch(0xC4|cc<<3, "CALL "+name+",a16", 3, 12, 24, func(c *CPU) { c.call(c.condition(cc)) })
	}

	for n := range uint8(8) {
		vector := uint16(n) << 3
		// RST n
		define(0xC7|n<<3, fmt.Sprintf("RST %02XH", vector), 1, 16, "----", func(c *CPU) { c.rst(vector) })
	}

	//JR n
	//#0x18:
	define(0x18, "JR r8", 2, 12, "----", func(c *CPU) { c.jr(true) })
	//JP nn
	//#0xC3:
	define(0xC3, "JP a16", 3, 16, "----", func(c *CPU) { c.jp(true) })
	//JP (HL)
	//#0xE9:
	define(0xE9, "JP (HL)", 1, 4, "----", func(c *CPU) { c.pc = c.getHL() })
	//CALL nn
	//#0xCD:
	define(0xCD, "CALL a16", 3, 24, "----", func(c *CPU) { c.call(true) })
	//RET
	//#0xC9:
	define(0xC9, "RET", 1, 16, "----", func(c *CPU) { c.ret(true) })
	//RETI
	//#0xD9:
	define(0xD9, "RETI", 1, 16, "----", func(c *CPU) {
		c.ret(true)
		c.interruptsEnabled = true
		c.eiPending = false
	})
}

func defineMisc() {
	//NOP
	//#0x00:
	define(0x00, "NOP", 1, 4, "----", func(*CPU) {})
	//STOP
	//#0x10:
	define(0x10, "STOP", 2, 4, "----", (*CPU).stop)
	//HALT
	//#0x76:
	define(0x76, "HALT", 1, 4, "----", (*CPU).halt)
	//DI
	//#0xF3:
	define(0xF3, "DI", 1, 4, "----", func(c *CPU) {
		c.interruptsEnabled = false
		c.eiPending = false
	})
	//EI
	//#0xFB:
	define(0xFB, "EI", 1, 4, "----", func(c *CPU) { c.eiPending = true })
	// the prefix is decoded by Step together with the following byte
	define(0xCB, "PREFIX CB", 1, 4, "----", func(*CPU) {})
}
