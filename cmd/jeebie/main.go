package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/urfave/cli"
	"github.com/valerio/jeebie-core/jeebie"
	"github.com/valerio/jeebie-core/jeebie/monitor"
	"github.com/valerio/jeebie-core/jeebie/romfile"
	"github.com/valerio/jeebie-core/jeebie/timing"
	"golang.org/x/term"
)

func main() {
	app := cli.NewApp()
	app.Name = "Jeebie"
	app.Description = "A Game Boy CPU, memory and timer core"
	app.Usage = "jeebie [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "rom",
			Usage:  "Path to the ROM file (.gb, .gbc, .gz, .xz, .zip, .7z)",
			EnvVar: "JEEBIE_ROM",
		},
		cli.StringFlag{
			Name:   "boot-rom",
			Usage:  "Path to a 256 byte DMG boot ROM to run before the cartridge",
			EnvVar: "JEEBIE_BOOT_ROM",
		},
		cli.IntFlag{
			Name:   "frames",
			Usage:  "Number of frames to run headless",
			EnvVar: "JEEBIE_FRAMES",
		},
		cli.IntFlag{
			Name:   "cycles",
			Usage:  "Number of clock cycles to run headless",
			EnvVar: "JEEBIE_CYCLES",
		},
		cli.BoolFlag{
			Name:   "realtime",
			Usage:  "Pace emulation at hardware speed",
			EnvVar: "JEEBIE_REALTIME",
		},
		cli.StringFlag{
			Name:   "load-state",
			Usage:  "Restore a snapshot before running",
			EnvVar: "JEEBIE_LOAD_STATE",
		},
		cli.StringFlag{
			Name:   "save-state",
			Usage:  "Write a snapshot when the run ends",
			EnvVar: "JEEBIE_SAVE_STATE",
		},
		cli.BoolFlag{
			Name:   "trace",
			Usage:  "Log every executed instruction (needs --log-level debug)",
			EnvVar: "JEEBIE_TRACE",
		},
		cli.BoolFlag{
			Name:   "monitor",
			Usage:  "Open the interactive terminal monitor",
			EnvVar: "JEEBIE_MONITOR",
		},
		cli.StringFlag{
			Name:   "log-level",
			Usage:  "Minimum log level: debug, info, warn, error",
			Value:  "info",
			EnvVar: "JEEBIE_LOG_LEVEL",
		},
		cli.BoolFlag{
			Name:   "serial-log",
			Usage:  "Log bytes sent over the serial port, as test ROMs print their results there",
			EnvVar: "JEEBIE_SERIAL_LOG",
		},
	}
	app.Action = runEmulator

	err := app.Run(os.Args)
	if err != nil {
		slog.Error("Error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	level := &slog.LevelVar{}
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	var logs *monitor.LogBuffer
	if c.Bool("monitor") {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("--monitor needs an interactive terminal")
		}
		logs = monitor.NewLogBuffer(200)
		slog.SetDefault(slog.New(monitor.NewLogBufferHandler(logs, level)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	opts := []jeebie.Option{jeebie.WithLogger(slog.Default())}
	if c.Bool("trace") {
		opts = append(opts, jeebie.WithTrace())
	}
	if c.Bool("serial-log") {
		opts = append(opts, jeebie.WithSerialLog())
	}
	if path := c.String("boot-rom"); path != "" {
		boot, err := romfile.Load(path)
		if err != nil {
			return fmt.Errorf("loading boot ROM: %w", err)
		}
		opts = append(opts, jeebie.WithBootROM(boot))
	}

	emu, err := jeebie.NewWithFile(romPath, opts...)
	if err != nil {
		return err
	}

	if path := c.String("load-state"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := emu.Restore(data); err != nil {
			return fmt.Errorf("restoring %s: %w", path, err)
		}
	}

	limiter := timing.NewNoOpLimiter()
	if c.Bool("realtime") {
		limiter = timing.NewFrameLimiter(1)
	}

	if c.Bool("monitor") {
		err = runMonitor(emu, logs, level, limiter)
	} else {
		err = runHeadless(emu, c.Int("frames"), c.Int("cycles"), limiter)
	}

	if s := emu.Serial(); s != nil {
		s.Flush()
	}

	if path := c.String("save-state"); path != "" {
		if serr := saveState(emu, path); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return err
}

func runMonitor(emu *jeebie.DMG, logs *monitor.LogBuffer, level *slog.LevelVar, limiter timing.Limiter) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	defer screen.Fini()

	m := monitor.New(screen, emu, logs, level)
	m.SetLimiter(limiter)
	return m.Run()
}

func runHeadless(emu *jeebie.DMG, frames, cycles int, limiter timing.Limiter) error {
	if frames <= 0 && cycles <= 0 {
		return errors.New("headless mode requires --frames or --cycles with a positive value")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Running headless mode", "frames", frames, "cycles", cycles)

	for i := 0; i < frames; i++ {
		if ctx.Err() != nil {
			slog.Warn("Interrupted", "frame", i)
			return nil
		}
		if _, err := emu.RunFrame(); err != nil {
			return err
		}
		limiter.WaitForNextFrame()

		if (i+1)%60 == 0 {
			slog.Debug("Frame progress", "completed", i+1, "total", frames)
		}
	}

	for ran := 0; ran < cycles; {
		if ctx.Err() != nil {
			slog.Warn("Interrupted", "cycles", ran)
			return nil
		}
		n, err := emu.RunCycles(min(cycles-ran, timing.CyclesPerFrame))
		ran += n
		if err != nil {
			return err
		}
		limiter.WaitForNextFrame()
	}

	cpu := emu.CPU()
	slog.Info("Headless execution completed",
		"cycles", emu.Clock().Cycles(),
		"pc", fmt.Sprintf("0x%04X", cpu.GetPC()),
		"mode", cpu.Mode().String(),
		"flags", cpu.GetFlagString())

	if s := emu.Serial(); s != nil {
		if out := strings.TrimSpace(s.Output()); out != "" {
			fmt.Println(out)
		}
	}
	return nil
}

func saveState(emu *jeebie.DMG, path string) error {
	data, err := emu.Snapshot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	slog.Info("Saved snapshot", "path", path, "bytes", len(data))
	return nil
}
