package state

import (
	"encoding/binary"
	"errors"
)

// ErrShortState is reported when a component reads past the end of the state.
var ErrShortState = errors.New("state: truncated state data")

// State is a flat little-endian byte stream that components append their
// fields to on save and consume in the same order on load.
type State struct {
	raw          []byte
	readPosition int
	err          error
}

// Stater is implemented by every component that can be saved and restored.
type Stater interface {
	Load(*State)
	Save(*State)
}

// New creates an empty state, ready to be written.
func New() *State {
	return &State{
		raw: make([]byte, 0, 0x4000),
	}
}

// FromBytes creates a state that reads back the given bytes.
func FromBytes(raw []byte) *State {
	return &State{
		raw: raw,
	}
}

func (s *State) Write8(value uint8) {
	s.raw = append(s.raw, value)
}

func (s *State) Write16(value uint16) {
	s.raw = binary.LittleEndian.AppendUint16(s.raw, value)
}

func (s *State) Write32(value uint32) {
	s.raw = binary.LittleEndian.AppendUint32(s.raw, value)
}

func (s *State) Write64(value uint64) {
	s.raw = binary.LittleEndian.AppendUint64(s.raw, value)
}

func (s *State) WriteBool(value bool) {
	if value {
		s.raw = append(s.raw, 1)
	} else {
		s.raw = append(s.raw, 0)
	}
}

// WriteData writes a length-prefixed byte slice.
func (s *State) WriteData(data []byte) {
	s.Write32(uint32(len(data)))
	s.raw = append(s.raw, data...)
}

// take returns the next n bytes, or nil once the stream is exhausted.
// After the first short read every later read returns zero values.
func (s *State) take(n int) []byte {
	if s.err != nil {
		return nil
	}
	if n < 0 || s.readPosition+n > len(s.raw) {
		s.err = ErrShortState
		return nil
	}
	b := s.raw[s.readPosition : s.readPosition+n]
	s.readPosition += n
	return b
}

func (s *State) Read8() uint8 {
	b := s.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (s *State) Read16() uint16 {
	b := s.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (s *State) Read32() uint32 {
	b := s.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (s *State) Read64() uint64 {
	b := s.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (s *State) ReadBool() bool {
	return s.Read8() != 0
}

// ReadData reads a length-prefixed slice written by WriteData into p.
// The stored length must match len(p) exactly.
func (s *State) ReadData(p []byte) {
	n := int(s.Read32())
	if s.err != nil {
		return
	}
	if n != len(p) {
		s.err = ErrShortState
		return
	}
	b := s.take(n)
	if b == nil {
		return
	}
	copy(p, b)
}

// Err returns the first error hit while reading, if any.
func (s *State) Err() error {
	return s.err
}

// Remaining returns the number of bytes not yet consumed.
func (s *State) Remaining() int {
	return len(s.raw) - s.readPosition
}

func (s *State) Bytes() []byte {
	return s.raw
}
