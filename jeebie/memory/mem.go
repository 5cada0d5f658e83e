package memory

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/interrupt"
	"github.com/valerio/jeebie-core/jeebie/state"
)

var (
	// ErrOwnedRegister is returned when attaching a device over a register the core owns.
	ErrOwnedRegister = errors.New("memory: address is owned by the core")
	// ErrAddressInUse is returned when attaching a device over another device.
	ErrAddressInUse = errors.New("memory: address already has a device attached")
	// ErrNotIO is returned when attaching a device outside the I/O window.
	ErrNotIO = errors.New("memory: address is outside the I/O window")
)

// IODevice is an external collaborator owning some I/O registers
// (picture unit, audio unit, joypad, serial port).
type IODevice interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
}

// Ticker is implemented by collaborators that need to advance with the CPU.
// Tick receives the same cycle count the timer does, once per CPU step.
type Ticker interface {
	Tick(cycles int)
}

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM // includes the unusable area
	regionIO  // includes HRAM and IE
)

// regionMap resolves the high byte of an address to its region.
var regionMap = func() (m [256]memRegion) {
	for i := range m {
		switch {
		case i <= 0x7F:
			m[i] = regionROM
		case i <= 0x9F:
			m[i] = regionVRAM
		case i <= 0xBF:
			m[i] = regionExtRAM
		case i <= 0xDF:
			m[i] = regionWRAM
		case i <= 0xFD:
			m[i] = regionEcho
		case i == 0xFE:
			m[i] = regionOAM
		default:
			m[i] = regionIO
		}
	}
	return m
}()

// unmappedIO lists I/O addresses with no register on the DMG. They read as 0xFF
// and ignore writes unless a device is attached over them.
var unmappedIO = func() (m [0x80]bool) {
	for _, r := range [][2]uint16{
		{0xFF03, 0xFF03},
		{0xFF08, 0xFF0E},
		{0xFF15, 0xFF15},
		{0xFF1F, 0xFF1F},
		{0xFF27, 0xFF2F},
		{0xFF4C, 0xFF7F},
	} {
		for a := r[0]; a <= r[1]; a++ {
			m[a-addr.IOStart] = true
		}
	}
	m[addr.BootOff-addr.IOStart] = false
	return m
}()

// isOwned reports whether an I/O address is handled by the bus itself.
func isOwned(address uint16) bool {
	switch {
	case address >= addr.DIV && address <= addr.TAC:
		return true
	case address == addr.IF, address == addr.DMA, address == addr.BootOff:
		return true
	default:
		return false
	}
}

// MMU is the memory bus: it owns the address map and routes every access
// to RAM, the bank controller, the timer, the interrupt controller or an
// attached I/O device.
type MMU struct {
	cart *Cartridge
	mbc  *BankController

	vram [0x2000]byte
	wram [0x2000]byte
	oam  [0xA0]byte
	hram [0x7F]byte
	// io backs every I/O register no device is attached to
	io  [0x80]byte
	dma byte

	boot        []byte
	bootEnabled bool

	timer      *Timer
	interrupts *interrupt.Controller

	devices [0x80]IODevice
	tickers []Ticker
	hooks   []func(cycles int)

	logger *slog.Logger
}

// New creates a new memory unit with no cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in: ROM and
// cartridge RAM read as 0xFF.
func New() *MMU {
	mmu := &MMU{
		interrupts: interrupt.New(),
		logger:     slog.Default(),
	}
	mmu.timer = NewTimer(func() { mmu.interrupts.Request(addr.TimerInterrupt) })
	return mmu
}

// NewWithCartridge creates a new memory unit with the provided cartridge loaded.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart
	mmu.mbc = NewBankController(cart)
	return mmu
}

// SetLogger replaces the logger used for diagnostics.
func (m *MMU) SetLogger(logger *slog.Logger) {
	m.logger = logger
}

// LoadBootROM overlays a boot image on 0x0000-0x00FF until 0xFF50 is written.
func (m *MMU) LoadBootROM(boot []byte) error {
	if len(boot) != int(addr.BootROMEnd)+1 {
		return fmt.Errorf("boot ROM must be %d bytes, got %d", addr.BootROMEnd+1, len(boot))
	}
	m.boot = append([]byte(nil), boot...)
	m.bootEnabled = true
	return nil
}

// BootROMActive reports whether the boot ROM overlay is still mapped.
func (m *MMU) BootROMActive() bool { return m.bootEnabled }

// Attach routes the I/O addresses first-last (inclusive) to dev.
// If dev also implements Ticker it is ticked on every step.
func (m *MMU) Attach(first, last uint16, dev IODevice) error {
	if first > last || first < addr.IOStart || last > addr.IOEnd {
		return fmt.Errorf("%w: 0x%04X-0x%04X", ErrNotIO, first, last)
	}
	for a := first; a <= last; a++ {
		if isOwned(a) {
			return fmt.Errorf("%w: 0x%04X", ErrOwnedRegister, a)
		}
		if m.devices[a-addr.IOStart] != nil {
			return fmt.Errorf("%w: 0x%04X", ErrAddressInUse, a)
		}
	}
	for a := first; a <= last; a++ {
		m.devices[a-addr.IOStart] = dev
	}
	if t, ok := dev.(Ticker); ok {
		m.addTicker(t)
	}
	return nil
}

func (m *MMU) addTicker(t Ticker) {
	for _, existing := range m.tickers {
		if existing == t {
			return
		}
	}
	m.tickers = append(m.tickers, t)
}

// AddTickHook registers a function called with the elapsed cycles of every step.
func (m *MMU) AddTickHook(hook func(cycles int)) {
	m.hooks = append(m.hooks, hook)
}

// Tick advances everything that runs alongside the CPU.
func (m *MMU) Tick(cycles int) {
	m.timer.Tick(cycles)
	if m.mbc != nil {
		m.mbc.Tick(cycles)
	}
	for _, t := range m.tickers {
		t.Tick(cycles)
	}
	for _, hook := range m.hooks {
		hook(cycles)
	}
}

// SkipBoot puts the I/O registers and the divider in the state the DMG
// boot ROM leaves them in.
func (m *MMU) SkipBoot() {
	for _, r := range postBootIO {
		m.Write(r.address, r.value)
	}
	m.timer.SetSeed(PostBootDivider)
	m.interrupts.WriteIF(0x01)
	m.bootEnabled = false
}

var postBootIO = []struct {
	address uint16
	value   byte
}{
	{addr.P1, 0xCF},
	{addr.SC, 0x7E},
	{addr.TIMA, 0x00},
	{addr.TMA, 0x00},
	{addr.TAC, 0x00},
	{addr.NR10, 0x80},
	{addr.NR11, 0xBF},
	{addr.NR12, 0xF3},
	{addr.NR14, 0xBF},
	{addr.NR21, 0x3F},
	{addr.NR22, 0x00},
	{addr.NR24, 0xBF},
	{addr.NR30, 0x7F},
	{addr.NR31, 0xFF},
	{addr.NR32, 0x9F},
	{addr.NR33, 0xBF},
	{addr.NR41, 0xFF},
	{addr.NR42, 0x00},
	{addr.NR43, 0x00},
	{addr.NR44, 0xBF},
	{addr.NR50, 0x77},
	{addr.NR51, 0xF3},
	{addr.NR52, 0xF1},
	{addr.LCDC, 0x91},
	{addr.STAT, 0x85},
	{addr.SCY, 0x00},
	{addr.SCX, 0x00},
	{addr.LYC, 0x00},
	{addr.BGP, 0xFC},
	{addr.OBP0, 0xFF},
	{addr.OBP1, 0xFF},
	{addr.WY, 0x00},
	{addr.WX, 0x00},
	{addr.IE, 0x00},
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(source addr.Interrupt) {
	m.interrupts.Request(source)
}

// PendingInterrupts returns the sources both enabled and requested.
func (m *MMU) PendingInterrupts() uint8 {
	return m.interrupts.Pending()
}

// ClearInterrupt acknowledges a dispatched interrupt.
func (m *MMU) ClearInterrupt(source addr.Interrupt) {
	m.interrupts.Clear(source)
}

func (m *MMU) Cartridge() *Cartridge             { return m.cart }
func (m *MMU) BankController() *BankController   { return m.mbc }
func (m *MMU) Timer() *Timer                     { return m.timer }
func (m *MMU) Interrupts() *interrupt.Controller { return m.interrupts }

func (m *MMU) Read(address uint16) byte {
	switch regionMap[address>>8] {
	case regionROM:
		if m.bootEnabled && address <= addr.BootROMEnd {
			return m.boot[address]
		}
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionExtRAM:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		return m.vram[address-addr.VRAMStart]
	case regionWRAM:
		return m.wram[address-addr.WRAMStart]
	case regionEcho:
		return m.wram[address-addr.EchoStart]
	case regionOAM:
		if address <= addr.OAMEnd {
			return m.oam[address-addr.OAMStart]
		}
		return 0xFF
	default:
		return m.readIO(address)
	}
}

func (m *MMU) readIO(address uint16) byte {
	switch {
	case address == addr.IE:
		return m.interrupts.ReadIE()
	case address >= addr.HRAMStart:
		return m.hram[address-addr.HRAMStart]
	case address >= addr.DIV && address <= addr.TAC:
		return m.timer.Read(address)
	case address == addr.IF:
		return m.interrupts.ReadIF()
	case address == addr.DMA:
		return m.dma
	case address == addr.BootOff:
		return 0xFF
	}

	i := address - addr.IOStart
	if dev := m.devices[i]; dev != nil {
		return dev.Read(address)
	}
	if unmappedIO[i] {
		return 0xFF
	}
	return m.io[i]
}

func (m *MMU) Write(address uint16, value byte) {
	switch regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			m.logger.Debug("write to cartridge space with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		m.vram[address-addr.VRAMStart] = value
	case regionWRAM:
		m.wram[address-addr.WRAMStart] = value
	case regionEcho:
		m.wram[address-addr.EchoStart] = value
	case regionOAM:
		if address <= addr.OAMEnd {
			m.oam[address-addr.OAMStart] = value
		}
	default:
		m.writeIO(address, value)
	}
}

func (m *MMU) writeIO(address uint16, value byte) {
	switch {
	case address == addr.IE:
		m.interrupts.WriteIE(value)
		return
	case address >= addr.HRAMStart:
		m.hram[address-addr.HRAMStart] = value
		return
	case address >= addr.DIV && address <= addr.TAC:
		m.timer.Write(address, value)
		return
	case address == addr.IF:
		m.interrupts.WriteIF(value)
		return
	case address == addr.DMA:
		m.dma = value
		m.transferOAM(uint16(value) << 8)
		return
	case address == addr.BootOff:
		if value != 0 && m.bootEnabled {
			m.bootEnabled = false
			m.logger.Debug("boot ROM disabled")
		}
		return
	}

	i := address - addr.IOStart
	if dev := m.devices[i]; dev != nil {
		dev.Write(address, value)
		return
	}
	if !unmappedIO[i] {
		m.io[i] = value
	}
}

// transferOAM copies 160 bytes from source into OAM in one go.
func (m *MMU) transferOAM(source uint16) {
	for i := range uint16(len(m.oam)) {
		m.oam[i] = m.Read(source + i)
	}
}

// Save writes RAM, I/O latches, timer, interrupt and bank controller state.
// Attached devices keep their own state.
func (m *MMU) Save(s *state.State) {
	s.WriteData(m.vram[:])
	s.WriteData(m.wram[:])
	s.WriteData(m.oam[:])
	s.WriteData(m.hram[:])
	s.WriteData(m.io[:])
	s.Write8(m.dma)
	s.WriteBool(m.bootEnabled)
	m.timer.Save(s)
	m.interrupts.Save(s)
	s.WriteBool(m.mbc != nil)
	if m.mbc != nil {
		m.mbc.Save(s)
	}
}

func (m *MMU) Load(s *state.State) {
	s.ReadData(m.vram[:])
	s.ReadData(m.wram[:])
	s.ReadData(m.oam[:])
	s.ReadData(m.hram[:])
	s.ReadData(m.io[:])
	m.dma = s.Read8()
	m.bootEnabled = s.ReadBool() && m.boot != nil
	m.timer.Load(s)
	m.interrupts.Load(s)
	if s.ReadBool() && m.mbc != nil {
		m.mbc.Load(s)
	}
}
