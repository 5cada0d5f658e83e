package serial

import (
	"bytes"
	"log/slog"

	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/bit"
)

const (
	// transferCycles is how long the internal clock takes to shift out one byte.
	transferCycles = 4096

	// noPeer is what SB holds after a transfer with nothing on the other end.
	noPeer byte = 0xFF

	controlStart    = 7
	controlInternal = 0
)

// LogSink is a serial port with nothing connected to it. Every byte the game
// sends is kept as text and logged one line at a time, which is how test ROMs
// report their results.
type LogSink struct {
	data, control byte

	// remaining counts down the cycles left in the current transfer, zero when idle.
	remaining int
	instant   bool

	onComplete func()
	logger     *slog.Logger

	pending    []byte
	transcript bytes.Buffer
}

type LogSinkOption func(*LogSink)

// WithFixedTiming makes transfers take transferCycles instead of completing
// as soon as they start.
func WithFixedTiming() LogSinkOption { return func(s *LogSink) { s.instant = false } }

// WithLogger sets the logger completed lines are written to.
func WithLogger(logger *slog.Logger) LogSinkOption { return func(s *LogSink) { s.logger = logger } }

// NewLogSink builds a sink. onComplete runs at the end of every transfer and
// is normally wired to the serial interrupt request.
func NewLogSink(onComplete func(), opts ...LogSinkOption) *LogSink {
	s := &LogSink{
		onComplete: onComplete,
		instant:    true,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

func (s *LogSink) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return s.data
	case addr.SC:
		// bits 1-6 are unused on the DMG
		return s.control | 0x7E
	}
	return 0xFF
}

func (s *LogSink) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		s.data = value
	case addr.SC:
		s.control = value
		if s.remaining == 0 && bit.IsSet(controlStart, value) && bit.IsSet(controlInternal, value) {
			s.start()
		}
	}
}

func (s *LogSink) Tick(cycles int) {
	if s.remaining == 0 {
		return
	}
	s.remaining -= cycles
	if s.remaining <= 0 {
		s.finish()
	}
}

func (s *LogSink) Reset() {
	s.data, s.control = 0, 0
	s.remaining = 0
	s.pending = s.pending[:0]
	s.transcript.Reset()
}

// Output returns every byte sent so far, as text.
func (s *LogSink) Output() string {
	return s.transcript.String()
}

// Flush logs a partially buffered line, if any.
func (s *LogSink) Flush() {
	if len(s.pending) == 0 {
		return
	}
	s.logger.Info("serial", "line", string(s.pending))
	s.pending = s.pending[:0]
}

func (s *LogSink) start() {
	s.record(s.data)
	if s.instant {
		s.finish()
		return
	}
	s.remaining = transferCycles
}

func (s *LogSink) record(b byte) {
	switch b {
	case 0:
		s.Flush()
	case '\n', '\r':
		s.transcript.WriteByte(b)
		s.Flush()
	default:
		s.transcript.WriteByte(b)
		s.pending = append(s.pending, b)
	}
}

func (s *LogSink) finish() {
	s.remaining = 0
	s.data = noPeer
	s.control = bit.Reset(controlStart, s.control)
	if s.onComplete != nil {
		s.onComplete()
	}
}
