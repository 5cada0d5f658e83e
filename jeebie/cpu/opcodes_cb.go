package cpu

import (
	"fmt"

	"github.com/valerio/jeebie-core/jeebie/bit"
)

// shiftOps is the order of the rotate and shift group at 0xCB00-0xCB3F.
var shiftOps = [8]struct {
	name string
	exec func(*CPU, *uint8)
}{
	{"RLC", (*CPU).rlc},
	{"RRC", (*CPU).rrc},
	{"RL", (*CPU).rl},
	{"RR", (*CPU).rr},
	{"SLA", (*CPU).sla},
	{"SRA", (*CPU).sra},
	{"SWAP", (*CPU).swap},
	{"SRL", (*CPU).srl},
}

func defineCB(opcode uint8, mnemonic string, cycles int, flags string, exec func(*CPU)) {
	cbTable[opcode] = Instruction{
		Opcode:      0xCB00 | uint16(opcode),
		Mnemonic:    mnemonic,
		Length:      2,
		Cycles:      cycles,
		TakenCycles: cycles,
		Flags:       flags,
		exec:        exec,
	}
}

// initCB fills the prefixed table. Every entry is decoded from its bits:
// 7-6 select the group, 5-3 the operation or bit index, 2-0 the operand.
func initCB() {
	for i := range 256 {
		op := uint8(i)
		r := op & 0x07
		y := (op >> 3) & 0x07
		name := registerNames[r]

		switch op >> 6 {
		case 0:
			shift := shiftOps[y]
			flags := "Z00C"
			if shift.name == "SWAP" {
				flags = "Z000"
			}
			defineCB(op, shift.name+" "+name, cost(r, 8, 16), flags, func(c *CPU) {
				c.modify(r, shift.exec)
			})
		case 1:
			// BIT only reads its operand
			defineCB(op, fmt.Sprintf("BIT %d,%s", y, name), cost(r, 8, 12), "Z01-", func(c *CPU) {
				c.testBit(y, c.operand(r))
			})
		case 2:
			defineCB(op, fmt.Sprintf("RES %d,%s", y, name), cost(r, 8, 16), "----", func(c *CPU) {
				c.modify(r, func(_ *CPU, v *uint8) { *v = bit.Reset(y, *v) })
			})
		case 3:
			defineCB(op, fmt.Sprintf("SET %d,%s", y, name), cost(r, 8, 16), "----", func(c *CPU) {
				c.modify(r, func(_ *CPU, v *uint8) { *v = bit.Set(y, *v) })
			})
		}
	}
}
