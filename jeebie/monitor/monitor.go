// Package monitor is an interactive terminal stepper for a session: it shows
// registers, interrupt and timer state, the bank controller and the code
// around PC, and lets the user step, run and snapshot.
package monitor

import (
	"fmt"
	"log/slog"

	"github.com/gdamore/tcell/v2"
	"github.com/valerio/jeebie-core/jeebie/addr"
	"github.com/valerio/jeebie-core/jeebie/cpu"
	"github.com/valerio/jeebie-core/jeebie/disasm"
	"github.com/valerio/jeebie-core/jeebie/memory"
	"github.com/valerio/jeebie-core/jeebie/timing"
)

const (
	registerWidth = 46
	disasmHeight  = 12
	helpText      = "s:step  f:frame  space:run/pause  w:wake  p:snapshot  r:restore  +/-:log level  q:quit"
)

// Session is what the monitor drives.
type Session interface {
	Step() (int, error)
	RunFrame() (int, error)
	Wake()
	Snapshot() ([]byte, error)
	Restore([]byte) error
	CPU() *cpu.CPU
	MMU() *memory.MMU
	Clock() *timing.Clock
}

// Monitor draws a session on a tcell screen and maps keys to session commands.
type Monitor struct {
	screen   tcell.Screen
	session  Session
	logs     *LogBuffer
	logLevel *slog.LevelVar
	limiter  timing.Limiter

	running bool
	quit    bool
	fault   error
	saved   []byte
}

// New creates a monitor. screen must already be initialized; logs and level
// are the buffer and level the session's logger writes through.
func New(screen tcell.Screen, session Session, logs *LogBuffer, level *slog.LevelVar) *Monitor {
	return &Monitor{
		screen:   screen,
		session:  session,
		logs:     logs,
		logLevel: level,
		limiter:  timing.NewNoOpLimiter(),
	}
}

// SetLimiter paces free running mode.
func (m *Monitor) SetLimiter(l timing.Limiter) {
	m.limiter = l
}

// Run processes input until the user quits. The session only advances on
// request, or every frame while free running.
func (m *Monitor) Run() error {
	m.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	m.Draw()

	for !m.quit {
		if m.running {
			for m.screen.HasPendingEvent() {
				m.handleEvent(m.screen.PollEvent())
			}
			if !m.quit && m.running {
				m.frame()
				m.limiter.WaitForNextFrame()
			}
		} else {
			m.handleEvent(m.screen.PollEvent())
		}
		m.Draw()
	}
	return m.fault
}

func (m *Monitor) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case nil:
		// screen finalized
		m.quit = true
	case *tcell.EventKey:
		m.HandleKey(ev)
	case *tcell.EventResize:
		m.screen.Sync()
	}
}

// HandleKey applies one key press.
func (m *Monitor) HandleKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		m.quit = true
		return
	case tcell.KeyRight:
		m.step()
		return
	case tcell.KeyRune:
	default:
		return
	}

	switch ev.Rune() {
	case 'q':
		m.quit = true
	case 's':
		m.step()
	case 'f':
		m.frame()
	case ' ':
		m.running = !m.running && m.fault == nil
		m.limiter.Reset()
	case 'w':
		m.session.Wake()
		slog.Info("woken from STOP")
	case 'p':
		if data, err := m.session.Snapshot(); err != nil {
			slog.Warn("snapshot failed", "error", err)
		} else {
			m.saved = data
		}
	case 'r':
		if m.saved == nil {
			slog.Warn("no snapshot taken yet")
		} else if err := m.session.Restore(m.saved); err != nil {
			slog.Warn("restore failed", "error", err)
		} else {
			m.fault = nil
		}
	case '+':
		m.changeLogLevel(1)
	case '-':
		m.changeLogLevel(-1)
	}
}

func (m *Monitor) step() {
	if m.fault != nil {
		return
	}
	if _, err := m.session.Step(); err != nil {
		m.stopOn(err)
	}
}

func (m *Monitor) frame() {
	if m.fault != nil {
		return
	}
	if _, err := m.session.RunFrame(); err != nil {
		m.stopOn(err)
	}
}

func (m *Monitor) stopOn(err error) {
	m.fault = err
	m.running = false
}

var logLevels = []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

func (m *Monitor) changeLogLevel(direction int) {
	if m.logLevel == nil {
		return
	}
	current := 0
	for i, l := range logLevels {
		if l == m.logLevel.Level() {
			current = i
		}
	}
	next := min(max(current+direction, 0), len(logLevels)-1)
	m.logLevel.Set(logLevels[next])
}

// Draw renders every pane.
func (m *Monitor) Draw() {
	m.screen.Clear()
	w, h := m.screen.Size()

	lines := m.statusLines()
	for i, line := range lines {
		m.print(0, i, registerWidth, line, tcell.StyleDefault.Foreground(tcell.ColorBlue))
	}

	c := m.session.CPU()
	pc := c.GetPC()
	for i, line := range disasm.DisassembleRange(pc, disasmHeight, m.session.MMU()) {
		style := tcell.StyleDefault
		if i == 0 {
			style = style.Foreground(tcell.ColorYellow).Bold(true)
		}
		m.print(registerWidth+1, i, w-registerWidth-1, disasm.FormatDisassemblyLine(line, i == 0), style)
	}

	logTop := max(len(lines), disasmHeight) + 1
	for x := range w {
		m.screen.SetContent(x, logTop-1, '─', nil, tcell.StyleDefault.Foreground(tcell.ColorGray))
	}
	m.drawLogs(logTop, w, h-1)

	m.print(0, h-1, w, helpText, tcell.StyleDefault.Foreground(tcell.ColorGray))
	m.screen.Show()
}

func (m *Monitor) statusLines() []string {
	c := m.session.CPU()
	mmu := m.session.MMU()
	clk := m.session.Clock()
	r := c.Registers()

	status := "PAUSED"
	switch {
	case m.fault != nil:
		status = "FAULT"
	case m.running:
		status = "RUNNING"
	}

	ime := "OFF"
	if c.GetIME() {
		ime = "ON"
	}

	lines := []string{
		fmt.Sprintf("Status: %s  CPU: %s", status, c.Mode()),
		fmt.Sprintf("A: 0x%02X  F: 0x%02X  %s", r.A, r.F, c.GetFlagString()),
		fmt.Sprintf("B: 0x%02X  C: 0x%02X", r.B, r.C),
		fmt.Sprintf("D: 0x%02X  E: 0x%02X", r.D, r.E),
		fmt.Sprintf("H: 0x%02X  L: 0x%02X", r.H, r.L),
		fmt.Sprintf("SP: 0x%04X  PC: 0x%04X", r.SP, r.PC),
		fmt.Sprintf("IME: %s  IE: 0x%02X  IF: 0x%02X", ime, mmu.Read(addr.IE), mmu.Read(addr.IF)),
		fmt.Sprintf("DIV: 0x%02X  TIMA: 0x%02X  TMA: 0x%02X  TAC: 0x%02X",
			mmu.Read(addr.DIV), mmu.Read(addr.TIMA), mmu.Read(addr.TMA), mmu.Read(addr.TAC)),
		fmt.Sprintf("Cycles: %d", clk.Cycles()),
		fmt.Sprintf("Frame: %d  Line: %d", clk.Frame(), clk.Scanline()),
	}

	if mbc := mmu.BankController(); mbc != nil {
		lines = append(lines, fmt.Sprintf("%s  ROM: %d  RAM: %d", mbc.Kind(), mbc.ROMBank(), mbc.RAMBank()))
	}
	if m.fault != nil {
		lines = append(lines, m.fault.Error())
	}
	return lines
}

func (m *Monitor) drawLogs(top, width, bottom int) {
	if m.logs == nil || bottom <= top {
		return
	}

	level := slog.LevelDebug
	if m.logLevel != nil {
		level = m.logLevel.Level()
	}

	y := top
	for _, entry := range m.logs.GetRecent(0) {
		if y >= bottom {
			break
		}
		if entry.Level < level {
			continue
		}

		style := tcell.StyleDefault.Foreground(tcell.ColorBlue)
		switch entry.Level {
		case slog.LevelDebug:
			style = tcell.StyleDefault.Foreground(tcell.ColorGray)
		case slog.LevelWarn:
			style = tcell.StyleDefault.Foreground(tcell.ColorYellow)
		case slog.LevelError:
			style = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
		}
		m.print(0, y, width, FormatLogEntry(entry), style)
		y++
	}
}

// print writes text at x, y, cut to width cells.
func (m *Monitor) print(x, y, width int, text string, style tcell.Style) {
	for _, ch := range text {
		if width <= 0 {
			return
		}
		m.screen.SetContent(x, y, ch, nil, style)
		x++
		width--
	}
}
