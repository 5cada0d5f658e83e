package state

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_ReadsBackInOrder(t *testing.T) {
	s := New()
	s.Write8(0xAB)
	s.Write16(0x1234)
	s.Write32(0xDEADBEEF)
	s.Write64(0x0102030405060708)
	s.WriteBool(true)
	s.WriteData([]byte{1, 2, 3})

	r := FromBytes(s.Bytes())
	assert.Equal(t, uint8(0xAB), r.Read8())
	assert.Equal(t, uint16(0x1234), r.Read16())
	assert.Equal(t, uint32(0xDEADBEEF), r.Read32())
	assert.Equal(t, uint64(0x0102030405060708), r.Read64())
	assert.True(t, r.ReadBool())

	data := make([]byte, 3)
	r.ReadData(data)
	assert.Equal(t, []byte{1, 2, 3}, data)

	require.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
}

func TestState_ShortRead(t *testing.T) {
	r := FromBytes([]byte{0x01})
	assert.Equal(t, uint16(0), r.Read16())
	assert.ErrorIs(t, r.Err(), ErrShortState)

	// sticky: later reads keep failing even if they would fit
	assert.Equal(t, uint8(0), r.Read8())
	assert.ErrorIs(t, r.Err(), ErrShortState)
}

func TestState_DataLengthMismatch(t *testing.T) {
	s := New()
	s.WriteData([]byte{1, 2, 3, 4})

	r := FromBytes(s.Bytes())
	r.ReadData(make([]byte, 2))
	assert.ErrorIs(t, r.Err(), ErrShortState)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	rom := bytes.Repeat([]byte{0x3C}, 0x8000)
	payload := bytes.Repeat([]byte("registers and ram "), 512)

	encoded, err := Encode(Digest(rom), payload)
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(payload), "payload should compress")

	decoded, err := Decode(Digest(rom), encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestSnapshot_Rejects(t *testing.T) {
	rom := []byte{1, 2, 3}
	encoded, err := Encode(Digest(rom), []byte("payload"))
	require.NoError(t, err)
	oversized, err := Encode(Digest(rom), make([]byte, MaxPayload+1))
	require.NoError(t, err)

	testCases := []struct {
		desc    string
		data    func() []byte
		digest  uint64
		wantErr error
	}{
		{
			desc:    "not a snapshot",
			data:    func() []byte { return []byte("hello world, not a snapshot") },
			digest:  Digest(rom),
			wantErr: ErrBadSnapshot,
		},
		{
			desc:    "too short",
			data:    func() []byte { return encoded[:8] },
			digest:  Digest(rom),
			wantErr: ErrBadSnapshot,
		},
		{
			desc: "unknown version",
			data: func() []byte {
				c := bytes.Clone(encoded)
				c[4] = Version + 1
				return c
			},
			digest:  Digest(rom),
			wantErr: ErrBadSnapshot,
		},
		{
			desc:    "different cartridge",
			data:    func() []byte { return encoded },
			digest:  Digest([]byte{9, 9, 9}),
			wantErr: ErrCartridgeMismatch,
		},
		{
			desc: "payload checksum",
			data: func() []byte {
				c := bytes.Clone(encoded)
				c[13] ^= 0xFF
				return c
			},
			digest:  Digest(rom),
			wantErr: ErrBadSnapshot,
		},
		{
			desc:    "payload over the size limit",
			data:    func() []byte { return oversized },
			digest:  Digest(rom),
			wantErr: ErrBadSnapshot,
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			_, err := Decode(tC.digest, tC.data())
			assert.ErrorIs(t, err, tC.wantErr)
		})
	}
}
