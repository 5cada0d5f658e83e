package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/cespare/xxhash"
)

const (
	// Version is bumped whenever the layout of any component's state changes.
	Version uint8 = 1

	headerSize = 4 + 1 + 8 + 8

	// MaxPayload bounds the decompressed payload Decode accepts.
	MaxPayload = 1 << 20
)

var magic = [4]byte{'J', 'B', 'S', 'T'}

var (
	// ErrBadSnapshot is returned for data that is not a snapshot, or that is corrupted.
	ErrBadSnapshot = errors.New("state: invalid snapshot")
	// ErrCartridgeMismatch is returned when a snapshot was taken with a different cartridge.
	ErrCartridgeMismatch = errors.New("state: snapshot belongs to a different cartridge")
)

// Digest identifies a cartridge image inside a snapshot.
func Digest(rom []byte) uint64 {
	return xxhash.Sum64(rom)
}

// Encode wraps a raw state payload into a snapshot:
//
//	magic "JBST" | version | cartridge digest | payload digest | brotli(payload)
//
// The cartridge itself is never stored, restoring requires the same image.
func Encode(cartDigest uint64, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(payload)/4)

	buf.Write(magic[:])
	buf.WriteByte(Version)
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], cartDigest)
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], xxhash.Sum64(payload))
	buf.Write(scratch[:])

	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode validates a snapshot produced by Encode and returns its payload.
func Decode(cartDigest uint64, data []byte) ([]byte, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], magic[:]) {
		return nil, ErrBadSnapshot
	}
	if v := data[4]; v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, v)
	}
	if got := binary.LittleEndian.Uint64(data[5:13]); got != cartDigest {
		return nil, ErrCartridgeMismatch
	}
	want := binary.LittleEndian.Uint64(data[13:21])

	r := brotli.NewReader(bytes.NewReader(data[headerSize:]))
	payload, err := io.ReadAll(io.LimitReader(r, MaxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload larger than %d bytes", ErrBadSnapshot, MaxPayload)
	}
	if xxhash.Sum64(payload) != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrBadSnapshot)
	}

	return payload, nil
}
