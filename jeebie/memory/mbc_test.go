package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/jeebie-core/jeebie/state"
	"github.com/valerio/jeebie-core/jeebie/timing"
)

// makeROM builds a header-valid image where the first two bytes of every bank
// hold the bank number (low, high).
func makeROM(cartType, romCode, ramCode uint8) []byte {
	banks := 2 << romCode
	rom := make([]byte, banks*romBankSize)
	for b := range banks {
		rom[b*romBankSize] = uint8(b)
		rom[b*romBankSize+1] = uint8(b >> 8)
	}
	copy(rom[titleAddress:], "TESTCART")
	rom[cartridgeTypeAddress] = cartType
	rom[romSizeAddress] = romCode
	rom[ramSizeAddress] = ramCode
	rom[headerChecksumAddress] = HeaderChecksum(rom)
	return rom
}

func newController(t *testing.T, cartType, romCode, ramCode uint8) *BankController {
	t.Helper()
	cart, err := NewCartridge(makeROM(cartType, romCode, ramCode))
	require.NoError(t, err)
	return NewBankController(cart)
}

func bankAt(m *BankController, address uint16) int {
	return int(m.Read(address)) | int(m.Read(address+1))<<8
}

func TestNoMBC(t *testing.T) {
	m := newController(t, 0x00, 0x00, 0x00)

	assert.Equal(t, 0, bankAt(m, 0x0000))
	assert.Equal(t, 1, bankAt(m, 0x4000))

	m.Write(0x2000, 0x05)
	assert.Equal(t, 1, bankAt(m, 0x4000), "ROM only carts have no bank register")
	assert.Equal(t, uint8(0xFF), m.Read(0xA000), "no RAM")
}

func TestNoMBC_WithRAM(t *testing.T) {
	m := newController(t, 0x08, 0x00, 0x02)

	m.Write(0xA123, 0x42)
	assert.Equal(t, uint8(0x42), m.Read(0xA123), "RAM is always enabled without a controller")
}

func TestMBC1_ROMBanking(t *testing.T) {
	testCases := []struct {
		desc  string
		write uint8
		want  int
	}{
		{desc: "bank 0 maps to 1", write: 0x00, want: 1},
		{desc: "bank 1", write: 0x01, want: 1},
		{desc: "bank 5", write: 0x05, want: 5},
		{desc: "upper bits ignored", write: 0xE3, want: 3},
		{desc: "bank beyond size wraps", write: 0x1F, want: 0x1F % 8},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			m := newController(t, 0x01, 0x02, 0x00) // 8 banks
			m.Write(0x2000, tC.write)
			assert.Equal(t, tC.want, m.ROMBank())
			assert.Equal(t, tC.want, bankAt(m, 0x4000))
			assert.Equal(t, 0, bankAt(m, 0x0000))
		})
	}
}

func TestMBC1_UpperBits(t *testing.T) {
	m := newController(t, 0x01, 0x06, 0x00) // 128 banks

	m.Write(0x2000, 0x02)
	m.Write(0x4000, 0x02)
	assert.Equal(t, 0x42, bankAt(m, 0x4000), "bank2 applies to the switchable window in either mode")
	assert.Equal(t, 0, bankAt(m, 0x0000), "mode 0 keeps bank 0 fixed")

	m.Write(0x6000, 0x01)
	assert.Equal(t, 0x40, bankAt(m, 0x0000), "mode 1 moves the low window")
	assert.Equal(t, 0x42, bankAt(m, 0x4000))

	m.Write(0x2000, 0x00)
	assert.Equal(t, 0x41, bankAt(m, 0x4000), "bank 0x40 is not reachable through the high window")
}

func TestMBC1_RAM(t *testing.T) {
	m := newController(t, 0x03, 0x02, 0x03) // 4 RAM banks

	assert.Equal(t, uint8(0xFF), m.Read(0xA000), "disabled RAM reads 0xFF")
	m.Write(0xA000, 0x11)
	m.Write(0x0000, 0x0A)
	assert.True(t, m.RAMEnabled())
	assert.Equal(t, uint8(0x00), m.Read(0xA000), "write while disabled is dropped")

	m.Write(0xA000, 0x11)
	m.Write(0x6000, 0x01)
	m.Write(0x4000, 0x02)
	assert.Equal(t, 2, m.RAMBank())
	m.Write(0xA000, 0x22)

	m.Write(0x6000, 0x00)
	assert.Equal(t, 0, m.RAMBank(), "mode 0 always uses RAM bank 0")
	assert.Equal(t, uint8(0x11), m.Read(0xA000))

	m.Write(0x6000, 0x01)
	assert.Equal(t, uint8(0x22), m.Read(0xA000))

	m.Write(0x0000, 0x1A)
	assert.True(t, m.RAMEnabled(), "only the low nibble is checked")
	m.Write(0x0000, 0x00)
	assert.False(t, m.RAMEnabled())
	assert.Equal(t, uint8(0xFF), m.Read(0xA000))
}

func TestMBC2(t *testing.T) {
	m := newController(t, 0x05, 0x03, 0x00) // 16 banks

	m.Write(0x0100, 0x03)
	assert.Equal(t, 3, bankAt(m, 0x4000), "address bit 8 set selects the ROM bank")
	m.Write(0x2100, 0x00)
	assert.Equal(t, 1, bankAt(m, 0x4000))

	m.Write(0x0000, 0x0A)
	assert.True(t, m.RAMEnabled(), "address bit 8 clear selects RAM enable")
	assert.Equal(t, 1, bankAt(m, 0x4000), "RAM enable does not touch the bank")

	m.Write(0xA005, 0xAB)
	assert.Equal(t, uint8(0xFB), m.Read(0xA005), "only the low nibble is stored")
	assert.Equal(t, uint8(0xFB), m.Read(0xA205), "the 512 byte array repeats")
	assert.Len(t, m.RAM(), 512)
}

func TestMBC3_Banking(t *testing.T) {
	m := newController(t, 0x13, 0x06, 0x03) // 128 banks, 4 RAM banks

	m.Write(0x2000, 0x00)
	assert.Equal(t, 1, m.ROMBank())
	m.Write(0x2000, 0x7F)
	assert.Equal(t, 0x7F, bankAt(m, 0x4000))
	m.Write(0x2000, 0xFF)
	assert.Equal(t, 0x7F, m.ROMBank(), "7 bit register")

	m.Write(0x0000, 0x0A)
	m.Write(0x4000, 0x01)
	m.Write(0xA000, 0x55)
	m.Write(0x4000, 0x00)
	assert.Equal(t, uint8(0x00), m.Read(0xA000))
	m.Write(0x4000, 0x01)
	assert.Equal(t, uint8(0x55), m.Read(0xA000))

	m.Write(0x4000, 0x05)
	assert.Equal(t, 1, m.RAMBank(), "invalid selectors are ignored")
}

func TestMBC3_RTC(t *testing.T) {
	m := newController(t, 0x10, 0x02, 0x03)
	m.Write(0x0000, 0x0A)

	m.Tick(timing.CPUFrequency * 61)

	m.Write(0x4000, rtcSeconds)
	assert.Equal(t, -1, m.RAMBank())
	assert.Equal(t, uint8(0), m.Read(0xA000), "not latched yet")

	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	assert.Equal(t, uint8(1), m.Read(0xA000))
	m.Write(0x4000, rtcMinutes)
	assert.Equal(t, uint8(1), m.Read(0xA000))

	m.Tick(timing.CPUFrequency)
	m.Write(0x4000, rtcSeconds)
	assert.Equal(t, uint8(1), m.Read(0xA000), "latched values hold until the next latch")

	m.Write(0x6000, 0x01)
	assert.Equal(t, uint8(1), m.Read(0xA000), "latch requires a 0 then 1 sequence")
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	assert.Equal(t, uint8(2), m.Read(0xA000))
}

func TestMBC3_RTCHaltAndDayCarry(t *testing.T) {
	m := newController(t, 0x10, 0x02, 0x03)
	m.Write(0x0000, 0x0A)

	m.Write(0x4000, rtcDaysHigh)
	m.Write(0xA000, rtcHalt)
	m.Tick(timing.CPUFrequency * 5)
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	m.Write(0x4000, rtcSeconds)
	assert.Equal(t, uint8(0), m.Read(0xA000), "halted clock does not advance")

	m.Write(0xA000, 59)
	m.Write(0x4000, rtcMinutes)
	m.Write(0xA000, 59)
	m.Write(0x4000, rtcHours)
	m.Write(0xA000, 23)
	m.Write(0x4000, rtcDaysLow)
	m.Write(0xA000, 0xFF)
	m.Write(0x4000, rtcDaysHigh)
	m.Write(0xA000, 0x01)

	m.Tick(timing.CPUFrequency)
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	assert.Equal(t, uint8(0x80), m.Read(0xA000), "day counter wraps and sets carry")
	m.Write(0x4000, rtcDaysLow)
	assert.Equal(t, uint8(0x00), m.Read(0xA000))
	m.Write(0x4000, rtcHours)
	assert.Equal(t, uint8(0x00), m.Read(0xA000))
}

func TestMBC5(t *testing.T) {
	m := newController(t, 0x1B, 0x08, 0x04) // 512 banks, 16 RAM banks

	m.Write(0x2000, 0x00)
	assert.Equal(t, 0, bankAt(m, 0x4000), "bank 0 is selectable on MBC5")

	m.Write(0x2000, 0x34)
	m.Write(0x3000, 0x01)
	assert.Equal(t, 0x134, bankAt(m, 0x4000), "9 bit bank number")
	m.Write(0x3000, 0x00)
	assert.Equal(t, 0x34, bankAt(m, 0x4000))

	m.Write(0x0000, 0x1A)
	assert.False(t, m.RAMEnabled(), "enable requires exactly 0x0A")
	m.Write(0x0000, 0x0A)
	assert.True(t, m.RAMEnabled())

	m.Write(0x4000, 0x0F)
	assert.Equal(t, 15, m.RAMBank())
	m.Write(0xBFFF, 0x99)
	assert.Equal(t, uint8(0x99), m.RAM()[15*ramBankSize+0x1FFF])
}

func TestMBC5_Rumble(t *testing.T) {
	m := newController(t, 0x1D, 0x02, 0x03)

	m.Write(0x4000, 0x0A)
	assert.True(t, m.Rumble())
	assert.Equal(t, 2, m.RAMBank(), "bit 3 drives the motor, not the bank")
	m.Write(0x4000, 0x02)
	assert.False(t, m.Rumble())
}

func TestBankController_SaveLoad(t *testing.T) {
	cart, err := NewCartridge(makeROM(0x10, 0x04, 0x03))
	require.NoError(t, err)

	m := NewBankController(cart)
	m.Write(0x0000, 0x0A)
	m.Write(0x2000, 0x1D)
	m.Write(0x4000, 0x02)
	m.Write(0xA010, 0x77)
	m.Tick(timing.CPUFrequency*3 + 100)
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)

	s := state.New()
	m.Save(s)

	restored := NewBankController(cart)
	r := state.FromBytes(s.Bytes())
	restored.Load(r)
	require.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
	assert.Equal(t, m, restored)
}
