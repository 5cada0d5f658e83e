package cpu

import (
	"errors"
	"fmt"
)

// ErrIllegalOpcode matches every IllegalOpcodeError with errors.Is.
var ErrIllegalOpcode = errors.New("illegal opcode")

// IllegalOpcodeError is returned by Step when the CPU fetches one of the
// opcodes the SM83 does not define. It is fatal: the CPU locks up.
type IllegalOpcodeError struct {
	Opcode  uint8
	Address uint16
}

func (e *IllegalOpcodeError) Error() string {
	return fmt.Sprintf("illegal opcode 0x%02X at 0x%04X", e.Opcode, e.Address)
}

func (e *IllegalOpcodeError) Is(target error) bool {
	return target == ErrIllegalOpcode
}
