package monitor

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/jeebie-core/jeebie"
	"github.com/valerio/jeebie-core/jeebie/memory"
)

func newSession(t *testing.T, logger *slog.Logger, code ...byte) *jeebie.DMG {
	t.Helper()
	rom := make([]byte, 0x8000)
	copy(rom[0x100:], code)
	rom[0x14D] = memory.HeaderChecksum(rom)

	d, err := jeebie.New(rom, jeebie.WithLogger(logger))
	require.NoError(t, err)
	return d
}

func newScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	screen.SetSize(120, 40)
	t.Cleanup(screen.Fini)
	return screen
}

// screenText returns the visible characters of the screen, one string per row.
func screenText(screen tcell.SimulationScreen) []string {
	cells, w, h := screen.GetContents()
	rows := make([]string, h)
	for y := range h {
		var sb strings.Builder
		for x := range w {
			runes := cells[y*w+x].Runes
			if len(runes) == 0 {
				sb.WriteRune(' ')
				continue
			}
			sb.WriteRune(runes[0])
		}
		rows[y] = sb.String()
	}
	return rows
}

func contains(rows []string, text string) bool {
	for _, row := range rows {
		if strings.Contains(row, text) {
			return true
		}
	}
	return false
}

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestMonitor_Draw(t *testing.T) {
	buf := NewLogBuffer(16)
	level := &slog.LevelVar{}
	logger := slog.New(NewLogBufferHandler(buf, level))
	screen := newScreen(t)
	d := newSession(t, logger, 0x3E, 0x42)

	m := New(screen, d, buf, level)
	m.Draw()

	rows := screenText(screen)
	assert.True(t, contains(rows, "Status: PAUSED  CPU: running"))
	assert.True(t, contains(rows, "SP: 0xFFFE  PC: 0x0100"))
	assert.True(t, contains(rows, ">0x0100: 3E 42     LD A,$42"))
	assert.True(t, contains(rows, "NoMBC"))
	assert.True(t, contains(rows, "[INF] cartridge loaded"))
	assert.True(t, contains(rows, "q:quit"))
}

func TestMonitor_Keys(t *testing.T) {
	buf := NewLogBuffer(16)
	level := &slog.LevelVar{}
	screen := newScreen(t)
	d := newSession(t, slog.New(NewLogBufferHandler(buf, level)), 0x00, 0x00, 0x00, 0xD3)

	m := New(screen, d, buf, level)

	m.HandleKey(key('s'))
	assert.Equal(t, uint16(0x0101), d.CPU().GetPC())

	m.HandleKey(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone))
	assert.Equal(t, uint16(0x0102), d.CPU().GetPC())

	m.HandleKey(key('p'))
	require.NotNil(t, m.saved)

	m.HandleKey(key('f'))
	require.Error(t, m.fault, "frame stops on the illegal opcode")
	assert.False(t, m.running)

	m.HandleKey(key(' '))
	assert.False(t, m.running, "a faulted session can't run")

	m.Draw()
	assert.True(t, contains(screenText(screen), "illegal opcode 0xD3 at 0x0103"))

	m.HandleKey(key('r'))
	assert.NoError(t, m.fault)
	assert.Equal(t, uint16(0x0102), d.CPU().GetPC())

	m.HandleKey(key('-'))
	assert.Equal(t, slog.LevelDebug, level.Level())
	m.HandleKey(key('+'))
	m.HandleKey(key('+'))
	assert.Equal(t, slog.LevelWarn, level.Level())

	m.HandleKey(key('q'))
	assert.True(t, m.quit)
}

func TestMonitor_Run(t *testing.T) {
	screen := newScreen(t)
	d := newSession(t, slog.New(NewLogBufferHandler(NewLogBuffer(4), slog.LevelError)))

	m := New(screen, d, nil, nil)
	screen.InjectKey(tcell.KeyRune, 's', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 's', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	require.NoError(t, m.Run())
	assert.Equal(t, uint16(0x0102), d.CPU().GetPC())
}

func TestLogBuffer(t *testing.T) {
	buf := NewLogBuffer(3)
	logger := slog.New(NewLogBufferHandler(buf, slog.LevelInfo)).With("component", "mmu")

	logger.Debug("hidden")
	for _, msg := range []string{"one", "two", "three", "four"} {
		logger.Info(msg, "n", len(msg))
	}

	recent := buf.GetRecent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "four component=mmu n=4", recent[0].Message)
	assert.Equal(t, "two component=mmu n=3", recent[2].Message)
	assert.Len(t, buf.GetRecent(1), 1)

	logger.WithGroup("bus").Info("grouped", "addr", "0xFF00")
	assert.Equal(t, "grouped component=mmu bus.addr=0xFF00", buf.GetRecent(1)[0].Message)

	assert.Contains(t, FormatLogEntry(recent[0]), "[INF] four")

	buf.Clear()
	assert.Empty(t, buf.GetRecent(0))
}
