package disasm

import (
	"fmt"
	"strings"

	"github.com/valerio/jeebie-core/jeebie/bit"
	"github.com/valerio/jeebie-core/jeebie/cpu"
)

// Reader is the part of the bus the disassembler needs.
type Reader interface {
	Read(address uint16) uint8
}

// DisassemblyLine represents a single disassembled instruction
type DisassemblyLine struct {
	Address     uint16
	Instruction string
	Length      int
	Bytes       []uint8
}

// DisassembleAt disassembles the instruction at the given program counter.
// Immediate placeholders in the mnemonic are replaced by the operand bytes.
func DisassembleAt(pc uint16, mem Reader) DisassemblyLine {
	opcode := mem.Read(pc)
	in := cpu.Lookup(opcode)
	if opcode == 0xCB {
		in = cpu.LookupCB(mem.Read(pc + 1))
	}

	raw := make([]uint8, in.Length)
	for i := range raw {
		raw[i] = mem.Read(pc + uint16(i))
	}

	text := in.Mnemonic
	if !in.Legal() {
		text = fmt.Sprintf("DB $%02X", opcode)
	}

	return DisassemblyLine{
		Address:     pc,
		Instruction: substitute(text, pc, raw),
		Length:      in.Length,
		Bytes:       raw,
	}
}

// substitute fills in the operand placeholders of a mnemonic.
func substitute(mnemonic string, pc uint16, raw []uint8) string {
	switch {
	case strings.Contains(mnemonic, "d16"), strings.Contains(mnemonic, "a16"):
		nn := fmt.Sprintf("$%04X", bit.Combine(raw[2], raw[1]))
		return strings.NewReplacer("d16", nn, "a16", nn).Replace(mnemonic)
	case strings.Contains(mnemonic, "SP+r8"):
		return strings.Replace(mnemonic, "SP+r8", fmt.Sprintf("SP%+d", int8(raw[1])), 1)
	case strings.Contains(mnemonic, "SP,r8"):
		return strings.Replace(mnemonic, "r8", fmt.Sprintf("%+d", int8(raw[1])), 1)
	case strings.Contains(mnemonic, "r8"):
		// relative jumps show their target
		target := pc + 2 + uint16(int16(int8(raw[1])))
		return strings.Replace(mnemonic, "r8", fmt.Sprintf("$%04X", target), 1)
	case strings.Contains(mnemonic, "a8"):
		return strings.Replace(mnemonic, "a8", fmt.Sprintf("$FF%02X", raw[1]), 1)
	case strings.Contains(mnemonic, "d8"):
		return strings.Replace(mnemonic, "d8", fmt.Sprintf("$%02X", raw[1]), 1)
	}
	return mnemonic
}

// DisassembleRange disassembles multiple instructions starting from the given PC
func DisassembleRange(startPC uint16, count int, mem Reader) []DisassemblyLine {
	lines := make([]DisassemblyLine, 0, count)
	pc := startPC

	for range count {
		line := DisassembleAt(pc, mem)
		lines = append(lines, line)
		pc += uint16(line.Length)
	}

	return lines
}

// FormatDisassemblyLine formats a disassembly line for display
func FormatDisassemblyLine(line DisassemblyLine, isCurrentPC bool) string {
	prefix := " "
	if isCurrentPC {
		prefix = ">"
	}

	hex := make([]string, len(line.Bytes))
	for i, b := range line.Bytes {
		hex[i] = fmt.Sprintf("%02X", b)
	}

	return fmt.Sprintf("%s0x%04X: %-8s  %s", prefix, line.Address, strings.Join(hex, " "), line.Instruction)
}
