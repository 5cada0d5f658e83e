package jeebie

import (
	"log/slog"

	"github.com/valerio/jeebie-core/jeebie/memory"
	"github.com/valerio/jeebie-core/jeebie/serial"
)

// Option configures a session at construction.
type Option func(*config)

type attachment struct {
	first, last uint16
	dev         memory.IODevice
}

type config struct {
	boot      []byte
	devices   []attachment
	hooks     []func(cycles int)
	serial    []serial.LogSinkOption
	useSerial bool
	logger    *slog.Logger
	trace     bool
}

// WithBootROM runs the given 256 byte boot image from address 0 instead of
// starting with the registers it would leave behind.
func WithBootROM(boot []byte) Option {
	return func(c *config) { c.boot = boot }
}

// WithIODevice forwards the I/O addresses first-last (inclusive) to dev.
// Devices implementing memory.Ticker are ticked after every step.
func WithIODevice(first, last uint16, dev memory.IODevice) Option {
	return func(c *config) { c.devices = append(c.devices, attachment{first, last, dev}) }
}

// WithTickHook calls hook with the cycles taken by every step.
func WithTickHook(hook func(cycles int)) Option {
	return func(c *config) { c.hooks = append(c.hooks, hook) }
}

// WithSerialLog attaches a serial.LogSink to SB/SC, wired to the serial interrupt.
func WithSerialLog(opts ...serial.LogSinkOption) Option {
	return func(c *config) {
		c.useSerial = true
		c.serial = append(c.serial, opts...)
	}
}

// WithLogger sets the logger used by the session and the bus.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithTrace logs every executed instruction at debug level.
func WithTrace() Option {
	return func(c *config) { c.trace = true }
}
