package memory

import (
	"github.com/valerio/jeebie-core/jeebie/state"
	"github.com/valerio/jeebie-core/jeebie/timing"
)

// RTC register selectors written to 0x4000-0x5FFF on MBC3.
const (
	rtcSeconds uint8 = 0x08 + iota
	rtcMinutes
	rtcHours
	rtcDaysLow
	rtcDaysHigh
)

// BankController maps the cartridge windows (0x0000-0x7FFF ROM, 0xA000-0xBFFF RAM)
// onto the cartridge image. One type covers every supported chip, selected by
// kind; the chip specific rules live in the switch statements below.
//
// Register usage per kind:
//   - MBC1: bank1 = 5 bit ROM bank, bank2 = 2 bit upper ROM / RAM bank, mode = banking mode
//   - MBC2: bank1 = 4 bit ROM bank, RAM is the built-in 512x4 bit array
//   - MBC3: bank1 = 7 bit ROM bank, bank2 = RAM bank (0-3) or RTC register (8-C)
//   - MBC5: bank1 = 9 bit ROM bank, bank2 = 4 bit RAM bank
type BankController struct {
	kind     ControllerKind
	rom      []byte
	ram      []byte
	romBanks int
	ramBanks int

	ramEnabled bool
	bank1      uint16
	bank2      uint8
	mode       uint8

	hasRumble bool
	rumble    bool

	hasRTC bool
	rtc    rtc
}

// NewBankController selects and initializes the controller declared by the cartridge header.
func NewBankController(cart *Cartridge) *BankController {
	m := &BankController{
		kind:      cart.Controller(),
		rom:       cart.Data(),
		romBanks:  cart.ROMBanks(),
		ramBanks:  cart.RAMBanks(),
		bank1:     1,
		hasRumble: cart.HasRumble(),
		hasRTC:    cart.HasRTC(),
	}

	switch m.kind {
	case MBC2:
		m.ram = make([]byte, 512)
	default:
		m.ram = make([]byte, m.ramBanks*ramBankSize)
	}

	// boards without a controller have their RAM wired straight to the bus
	if m.kind == NoMBC {
		m.ramEnabled = len(m.ram) > 0
	}

	return m
}

// Kind returns the controller chip type.
func (m *BankController) Kind() ControllerKind { return m.kind }

// RAMEnabled reports whether cartridge RAM is currently accessible.
func (m *BankController) RAMEnabled() bool { return m.ramEnabled }

// Rumble reports the rumble motor state on MBC5 rumble carts.
func (m *BankController) Rumble() bool { return m.rumble }

// RAM exposes cartridge RAM, for battery save persistence by the host.
func (m *BankController) RAM() []byte { return m.ram }

// ROMBank returns the bank currently mapped at 0x4000-0x7FFF, after masking
// to the number of banks on the cartridge.
func (m *BankController) ROMBank() int {
	var bank int
	switch m.kind {
	case NoMBC:
		bank = 1
	case MBC1:
		bank = int(m.bank2)<<5 | int(m.bank1)
	default:
		bank = int(m.bank1)
	}
	return bank % m.romBanks
}

// zeroBank returns the bank mapped at 0x0000-0x3FFF.
// Only MBC1 in mode 1 can move it, using the upper bank bits.
func (m *BankController) zeroBank() int {
	if m.kind == MBC1 && m.mode == 1 {
		return (int(m.bank2) << 5) % m.romBanks
	}
	return 0
}

// RAMBank returns the RAM bank mapped at 0xA000-0xBFFF, or -1 when the
// window currently shows an RTC register.
func (m *BankController) RAMBank() int {
	switch m.kind {
	case MBC1:
		if m.mode == 0 || m.ramBanks == 0 {
			return 0
		}
		return int(m.bank2) % m.ramBanks
	case MBC3:
		if m.bank2 >= rtcSeconds {
			return -1
		}
		if m.ramBanks == 0 {
			return 0
		}
		return int(m.bank2&0x03) % m.ramBanks
	case MBC5:
		if m.ramBanks == 0 {
			return 0
		}
		return int(m.bank2) % m.ramBanks
	default:
		return 0
	}
}

// romOffset maps an address in 0x0000-0x7FFF to an offset in the image.
func (m *BankController) romOffset(address uint16) int {
	bank := m.zeroBank()
	if address >= 0x4000 {
		bank = m.ROMBank()
	}
	return bank*romBankSize + int(address&0x3FFF)
}

// ramOffset maps an address in 0xA000-0xBFFF to an offset in cartridge RAM,
// false when nothing is mapped there.
func (m *BankController) ramOffset(address uint16) (int, bool) {
	if !m.ramEnabled || len(m.ram) == 0 {
		return 0, false
	}
	if m.kind == MBC2 {
		return int(address & 0x01FF), true
	}
	bank := m.RAMBank()
	if bank < 0 {
		return 0, false
	}
	return bank*ramBankSize + int(address&0x1FFF), true
}

func (m *BankController) Read(address uint16) uint8 {
	switch {
	case address <= 0x7FFF:
		return m.rom[m.romOffset(address)]
	case address >= 0xA000 && address <= 0xBFFF:
		if m.kind == MBC3 && m.ramEnabled && m.hasRTC && m.bank2 >= rtcSeconds {
			return m.rtc.read(m.bank2)
		}
		offset, ok := m.ramOffset(address)
		if !ok {
			return 0xFF
		}
		if m.kind == MBC2 {
			return m.ram[offset] | 0xF0
		}
		return m.ram[offset]
	default:
		return 0xFF
	}
}

func (m *BankController) Write(address uint16, value uint8) {
	switch {
	case address <= 0x7FFF:
		m.writeRegister(address, value)
	case address >= 0xA000 && address <= 0xBFFF:
		if m.kind == MBC3 && m.ramEnabled && m.hasRTC && m.bank2 >= rtcSeconds {
			m.rtc.write(m.bank2, value)
			return
		}
		offset, ok := m.ramOffset(address)
		if !ok {
			return
		}
		if m.kind == MBC2 {
			value &= 0x0F
		}
		m.ram[offset] = value
	}
}

func (m *BankController) writeRegister(address uint16, value uint8) {
	switch m.kind {
	case NoMBC:
		// no registers, writes to ROM are ignored

	case MBC1:
		switch {
		case address <= 0x1FFF:
			m.ramEnabled = value&0x0F == 0x0A
		case address <= 0x3FFF:
			m.bank1 = uint16(value & 0x1F)
			if m.bank1 == 0 {
				m.bank1 = 1
			}
		case address <= 0x5FFF:
			m.bank2 = value & 0x03
		default:
			m.mode = value & 0x01
		}

	case MBC2:
		if address > 0x3FFF {
			return
		}
		// address bit 8 selects the register
		if address&0x0100 == 0 {
			m.ramEnabled = value&0x0F == 0x0A
			return
		}
		m.bank1 = uint16(value & 0x0F)
		if m.bank1 == 0 {
			m.bank1 = 1
		}

	case MBC3:
		switch {
		case address <= 0x1FFF:
			m.ramEnabled = value&0x0F == 0x0A
		case address <= 0x3FFF:
			m.bank1 = uint16(value & 0x7F)
			if m.bank1 == 0 {
				m.bank1 = 1
			}
		case address <= 0x5FFF:
			if value <= 0x03 || (value >= rtcSeconds && value <= rtcDaysHigh) {
				m.bank2 = value
			}
		default:
			m.rtc.writeLatch(value)
		}

	case MBC5:
		switch {
		case address <= 0x1FFF:
			m.ramEnabled = value == 0x0A
		case address <= 0x2FFF:
			m.bank1 = m.bank1&0x100 | uint16(value)
		case address <= 0x3FFF:
			m.bank1 = m.bank1&0xFF | uint16(value&0x01)<<8
		case address <= 0x5FFF:
			if m.hasRumble {
				m.rumble = value&0x08 != 0
				m.bank2 = value & 0x07
			} else {
				m.bank2 = value & 0x0F
			}
		}
	}
}

// Tick advances the MBC3 real time clock by emulated cycles.
func (m *BankController) Tick(cycles int) {
	if m.hasRTC {
		m.rtc.tick(cycles)
	}
}

func (m *BankController) Save(s *state.State) {
	s.Write8(uint8(m.kind))
	s.WriteBool(m.ramEnabled)
	s.Write16(m.bank1)
	s.Write8(m.bank2)
	s.Write8(m.mode)
	s.WriteBool(m.rumble)
	s.WriteData(m.ram)
	m.rtc.save(s)
}

func (m *BankController) Load(s *state.State) {
	_ = s.Read8() // kind, fixed by the cartridge
	m.ramEnabled = s.ReadBool()
	m.bank1 = s.Read16()
	m.bank2 = s.Read8()
	m.mode = s.Read8()
	m.rumble = s.ReadBool()
	s.ReadData(m.ram)
	m.rtc.load(s)
}

// rtc is the MBC3 real time clock. It counts emulated cycles, so it runs at
// the emulated speed and stays deterministic across snapshots.
type rtc struct {
	live    [5]uint8
	latched [5]uint8
	cycles  int
	latch   uint8 // last value written to the latch register
}

const rtcHalt uint8 = 1 << 6

func (r *rtc) tick(cycles int) {
	if r.live[4]&rtcHalt != 0 {
		return
	}
	r.cycles += cycles
	for r.cycles >= timing.CPUFrequency {
		r.cycles -= timing.CPUFrequency
		r.advanceSecond()
	}
}

func (r *rtc) advanceSecond() {
	r.live[0]++
	if r.live[0] != 60 {
		r.live[0] &= 0x3F
		return
	}
	r.live[0] = 0
	r.live[1]++
	if r.live[1] != 60 {
		r.live[1] &= 0x3F
		return
	}
	r.live[1] = 0
	r.live[2]++
	if r.live[2] != 24 {
		r.live[2] &= 0x1F
		return
	}
	r.live[2] = 0

	days := (uint16(r.live[4]&0x01)<<8 | uint16(r.live[3])) + 1
	if days > 0x1FF {
		days = 0
		r.live[4] |= 0x80 // day counter carry, sticky until cleared by software
	}
	r.live[3] = uint8(days)
	r.live[4] = r.live[4]&0xFE | uint8(days>>8)&0x01
}

// writeLatch copies the live registers into the readable ones on a 0 -> 1 sequence.
func (r *rtc) writeLatch(value uint8) {
	if r.latch == 0x00 && value == 0x01 {
		r.latched = r.live
	}
	r.latch = value
}

func (r *rtc) read(reg uint8) uint8 {
	v := r.latched[reg-rtcSeconds]
	switch reg {
	case rtcSeconds, rtcMinutes:
		return v & 0x3F
	case rtcHours:
		return v & 0x1F
	case rtcDaysHigh:
		return v & 0xC1
	default:
		return v
	}
}

func (r *rtc) write(reg uint8, value uint8) {
	if reg == rtcSeconds {
		r.cycles = 0
	}
	r.live[reg-rtcSeconds] = value
	r.latched[reg-rtcSeconds] = value
}

func (r *rtc) save(s *state.State) {
	for _, v := range r.live {
		s.Write8(v)
	}
	for _, v := range r.latched {
		s.Write8(v)
	}
	s.Write32(uint32(r.cycles))
	s.Write8(r.latch)
}

func (r *rtc) load(s *state.State) {
	for i := range r.live {
		r.live[i] = s.Read8()
	}
	for i := range r.latched {
		r.latched[i] = s.Read8()
	}
	r.cycles = int(s.Read32())
	r.latch = s.Read8()
}
