package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"go-cvbridge/bridge"
	"go-cvbridge/config"
	"go-cvbridge/debug"
	"go-cvbridge/engine"
	"go-cvbridge/hw"
	"go-cvbridge/midi"
	"go-cvbridge/theme"
	"go-cvbridge/tui"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/go-cvbridge/config.json)")
	serialDev := flag.String("serial", "", "CV board serial device (overrides config)")
	headless := flag.Bool("headless", false, "run without the monitor UI")
	debugLog := flag.Bool("debug", false, "write a debug log")
	debugPath := flag.String("debug-log", "", "debug log path (default ~/.config/go-cvbridge/debug.log)")
	flag.Parse()

	if *debugLog || *debugPath != "" {
		if err := debug.Enable(*debugPath); err != nil {
			fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
		}
		defer debug.Disable()
	}

	if err := run(*configPath, *serialDev, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, serialDev string, headless bool) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serialDev != "" {
		cfg.Serial.Device = serialDev
	}

	// Engine and mapping table
	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	eng, err := engine.New(opts)
	if err != nil {
		return err
	}
	slots, degraded := cfg.SlotTable()
	if degraded > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d unreadable slots reset to noop\n", degraded)
		debug.Log("main", "%d slot words degraded to noop", degraded)
	}
	eng.SetSlots(slots[:])

	// Send path
	assignments, err := cfg.Assignments()
	if err != nil {
		return err
	}
	sender, err := engine.NewSender(len(assignments), cfg.SendOptions())
	if err != nil {
		return err
	}
	for i, a := range assignments {
		if err := sender.Assign(i, a); err != nil {
			return err
		}
	}

	// CV board
	var board hw.Driver
	if cfg.Serial.Device != "" {
		s, err := hw.Open(cfg.Serial.Device, cfg.Serial.Baud, len(assignments))
		if err != nil {
			return err
		}
		board = s
	} else {
		board = hw.NewVirtual(len(assignments))
		debug.Log("main", "no serial device, using virtual board")
	}
	defer board.Close()

	// MIDI transports (handles hot-plug)
	deviceMgr := midi.NewDeviceManager(cfg.Ports.Exclude)

	manager := bridge.NewManager(eng, sender, board, deviceMgr)
	manager.SetInput(deviceMgr.Records())
	manager.SetTickPeriod(cfg.TickPeriod())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ports outlive the tick loop so its final note-offs get out
	portCtx, portCancel := context.WithCancel(context.Background())
	go deviceMgr.Run(portCtx)

	managerDone := make(chan struct{})
	go func() {
		manager.Run(ctx)
		close(managerDone)
	}()
	defer func() {
		cancel()
		<-managerDone
		portCancel()
	}()

	if headless {
		fmt.Println("go-cvbridge running headless. Ctrl+C to exit.")
		<-ctx.Done()
		return nil
	}

	palette, err := theme.Load(cfg.UI.Palette)
	if err != nil {
		return fmt.Errorf("load palette: %w", err)
	}
	m := tui.NewModel(manager, deviceMgr, theme.New(palette))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
