package timing

import "github.com/valerio/jeebie-core/jeebie/state"

// Constants for Game Boy timing
const (
	CPUFrequency      = 4194304
	CyclesPerScanline = 456
	ScanlinesPerFrame = 154
	CyclesPerFrame    = CyclesPerScanline * ScanlinesPerFrame
)

// Clock counts elapsed machine cycles since the session was created or restored.
// It only moves forward.
type Clock struct {
	cycles uint64
}

// Advance moves the clock forward by the given number of cycles.
func (c *Clock) Advance(cycles int) {
	if cycles > 0 {
		c.cycles += uint64(cycles)
	}
}

// Cycles returns the total elapsed cycles.
func (c *Clock) Cycles() uint64 { return c.cycles }

// Frame returns how many full frames have elapsed.
func (c *Clock) Frame() uint64 { return c.cycles / CyclesPerFrame }

// Scanline returns the scanline (0-153) the current cycle falls into.
func (c *Clock) Scanline() int {
	return int(c.cycles%CyclesPerFrame) / CyclesPerScanline
}

// Seconds returns the emulated time in seconds.
func (c *Clock) Seconds() float64 {
	return float64(c.cycles) / CPUFrequency
}

func (c *Clock) Save(s *state.State) {
	s.Write64(c.cycles)
}

func (c *Clock) Load(s *state.State) {
	c.cycles = s.Read64()
}
