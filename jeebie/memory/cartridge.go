package memory

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"
)

// ErrMalformedCartridge is returned when a cartridge image can't be loaded.
var ErrMalformedCartridge = errors.New("malformed cartridge")

const (
	titleAddress          = 0x134
	titleLength           = 16
	cgbFlagAddress        = 0x143
	cartridgeTypeAddress  = 0x147
	romSizeAddress        = 0x148
	ramSizeAddress        = 0x149
	versionNumberAddress  = 0x14C
	headerChecksumAddress = 0x14D
	globalChecksumAddress = 0x14E

	// headerEnd is the minimum image length that contains a full header.
	headerEnd = 0x150

	romBankSize = 0x4000
	ramBankSize = 0x2000
)

// ControllerKind identifies the bank controller chip on a cartridge.
type ControllerKind uint8

const (
	NoMBC ControllerKind = iota
	MBC1
	MBC2
	MBC3
	MBC5
)

func (k ControllerKind) String() string {
	switch k {
	case NoMBC:
		return "ROM"
	case MBC1:
		return "MBC1"
	case MBC2:
		return "MBC2"
	case MBC3:
		return "MBC3"
	case MBC5:
		return "MBC5"
	default:
		return fmt.Sprintf("ControllerKind(%d)", uint8(k))
	}
}

type cartFeatures struct {
	kind    ControllerKind
	ram     bool
	battery bool
	rtc     bool
	rumble  bool
}

// cartridgeTypes maps the header type byte to the hardware on the cartridge.
var cartridgeTypes = map[uint8]cartFeatures{
	0x00: {kind: NoMBC},
	0x01: {kind: MBC1},
	0x02: {kind: MBC1, ram: true},
	0x03: {kind: MBC1, ram: true, battery: true},
	0x05: {kind: MBC2},
	0x06: {kind: MBC2, battery: true},
	0x08: {kind: NoMBC, ram: true},
	0x09: {kind: NoMBC, ram: true, battery: true},
	0x0F: {kind: MBC3, rtc: true, battery: true},
	0x10: {kind: MBC3, rtc: true, ram: true, battery: true},
	0x11: {kind: MBC3},
	0x12: {kind: MBC3, ram: true},
	0x13: {kind: MBC3, ram: true, battery: true},
	0x19: {kind: MBC5},
	0x1A: {kind: MBC5, ram: true},
	0x1B: {kind: MBC5, ram: true, battery: true},
	0x1C: {kind: MBC5, rumble: true},
	0x1D: {kind: MBC5, rumble: true, ram: true},
	0x1E: {kind: MBC5, rumble: true, ram: true, battery: true},
}

// ramBankCounts maps the header RAM size byte to 8KB bank counts.
// 0x01 is an unofficial 2KB size, rounded up to one bank.
var ramBankCounts = map[uint8]int{
	0x00: 0,
	0x01: 1,
	0x02: 1,
	0x03: 4,
	0x04: 16,
	0x05: 8,
}

// Cartridge is a validated cartridge image and the metadata read from its header.
type Cartridge struct {
	data           []byte
	title          string
	cartType       uint8
	features       cartFeatures
	romBanks       int
	ramBanks       int
	version        uint8
	cgb            bool
	headerChecksum uint8
	globalChecksum uint16
}

// HeaderChecksum computes the header checksum over 0x134-0x14C, the value the
// boot ROM compares with the byte at 0x14D.
func HeaderChecksum(data []byte) uint8 {
	var x uint8
	for _, b := range data[titleAddress:headerChecksumAddress] {
		x = x - b - 1
	}
	return x
}

// NewCartridge validates and parses a cartridge image. Every header problem found
// is reported, wrapped in ErrMalformedCartridge.
func NewCartridge(data []byte) (*Cartridge, error) {
	if len(data) < headerEnd {
		return nil, fmt.Errorf("%w: image is %d bytes, shorter than the 0x%X byte header", ErrMalformedCartridge, len(data), headerEnd)
	}

	var errs *multierror.Error

	cart := &Cartridge{
		data:           make([]byte, len(data)),
		title:          cleanTitle(data[titleAddress : titleAddress+titleLength]),
		cartType:       data[cartridgeTypeAddress],
		version:        data[versionNumberAddress],
		cgb:            data[cgbFlagAddress]&0x80 != 0,
		headerChecksum: data[headerChecksumAddress],
		globalChecksum: uint16(data[globalChecksumAddress])<<8 | uint16(data[globalChecksumAddress+1]),
	}
	copy(cart.data, data)

	features, ok := cartridgeTypes[cart.cartType]
	if !ok {
		errs = multierror.Append(errs, fmt.Errorf("unsupported cartridge type 0x%02X", cart.cartType))
	}
	cart.features = features

	romCode := data[romSizeAddress]
	if romCode > 0x08 {
		errs = multierror.Append(errs, fmt.Errorf("invalid ROM size code 0x%02X", romCode))
	} else {
		cart.romBanks = 2 << romCode
		if want := cart.romBanks * romBankSize; len(data) < want {
			errs = multierror.Append(errs, fmt.Errorf("image is %d bytes, header declares %d", len(data), want))
		}
	}

	ramCode := data[ramSizeAddress]
	banks, ok := ramBankCounts[ramCode]
	if !ok {
		errs = multierror.Append(errs, fmt.Errorf("invalid RAM size code 0x%02X", ramCode))
	}
	cart.ramBanks = banks
	if features.kind == MBC2 || !features.ram {
		// MBC2 RAM is built into the controller, other boards without RAM ignore the field
		cart.ramBanks = 0
	}

	if sum := HeaderChecksum(data); sum != cart.headerChecksum {
		errs = multierror.Append(errs, fmt.Errorf("header checksum is 0x%02X, computed 0x%02X", cart.headerChecksum, sum))
	}

	if errs != nil {
		errs.ErrorFormat = joinErrors
		return nil, fmt.Errorf("%w: %w", ErrMalformedCartridge, errs)
	}

	return cart, nil
}

func joinErrors(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// cleanTitle turns the raw header title into something printable. Newer
// cartridges reuse the last title bytes for manufacturer and CGB flags, so
// the title stops at the first NUL or non-printable byte.
func cleanTitle(raw []byte) string {
	var sb strings.Builder
	for _, b := range raw {
		r := rune(b)
		if r == 0 || r > unicode.MaxASCII || !unicode.IsPrint(r) {
			break
		}
		sb.WriteRune(r)
	}

	title := strings.TrimSpace(sb.String())
	if title == "" {
		return "(Untitled)"
	}
	return title
}

func (c *Cartridge) Title() string              { return c.title }
func (c *Cartridge) Type() uint8                { return c.cartType }
func (c *Cartridge) Controller() ControllerKind { return c.features.kind }
func (c *Cartridge) ROMBanks() int              { return c.romBanks }
func (c *Cartridge) RAMBanks() int              { return c.ramBanks }
func (c *Cartridge) HasBattery() bool           { return c.features.battery }
func (c *Cartridge) HasRTC() bool               { return c.features.rtc }
func (c *Cartridge) HasRumble() bool            { return c.features.rumble }
func (c *Cartridge) Version() uint8             { return c.version }
func (c *Cartridge) IsCGB() bool                { return c.cgb }
func (c *Cartridge) GlobalChecksum() uint16     { return c.globalChecksum }
func (c *Cartridge) Data() []byte               { return c.data }
