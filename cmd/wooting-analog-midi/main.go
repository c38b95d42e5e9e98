package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Paul1365972/wooting-analog-midi/analog"
	"github.com/Paul1365972/wooting-analog-midi/engine"
	"github.com/Paul1365972/wooting-analog-midi/mapping"
	"github.com/Paul1365972/wooting-analog-midi/note"
)

// -------------------- Logger --------------------

// logger is the process-wide structured logger. Safe to use before
// initLogger is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Options --------------------

type options struct {
	serial   string
	baud     int
	evdev    string
	port     int
	portName string
	virtual  bool
	list     bool
	mapping  string
	rate     float64
}

// -------------------- Main --------------------

func main() {
	var opts options
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	flag.StringVar(&opts.serial, "serial", "/dev/ttyACM0", "serial device of the analog bridge")
	flag.IntVar(&opts.baud, "baud", 115200, "serial baud rate")
	flag.StringVar(&opts.evdev, "evdev", "", "input device for the binary fallback source (e.g. /dev/input/event3)")
	flag.IntVar(&opts.port, "port", 0, "MIDI output port number to connect to")
	flag.StringVar(&opts.portName, "port-name", "", "connect to the first MIDI output whose name contains this")
	flag.BoolVar(&opts.virtual, "virtual", false, "expose a virtual MIDI output port instead of connecting")
	flag.BoolVar(&opts.list, "list", false, "list MIDI output ports and exit")
	flag.StringVar(&opts.mapping, "mapping", "", "YAML mapping file (built-in layout when empty)")
	flag.Float64Var(&opts.rate, "rate", engine.DefaultPollRate, "poll rate in Hz")
	flag.Parse()

	initLogger(*debug)
	logger.Info("wooting-analog-midi starting",
		"serial", opts.serial, "baud", opts.baud, "rate_hz", opts.rate, "debug", *debug)

	if err := run(opts); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// -------------------- Wiring --------------------

func run(opts options) error {
	if opts.rate <= 0 {
		return fmt.Errorf("poll rate must be positive, got %v", opts.rate)
	}

	out, err := note.NewOutput()
	if err != nil {
		return err
	}
	defer out.Close()

	ports, err := out.Refresh()
	if err != nil {
		return err
	}
	if opts.list {
		fmt.Println("MIDI output ports:")
		if len(ports) == 0 {
			fmt.Println("  (none)")
		}
		for _, p := range ports {
			fmt.Printf("  [%d] %s\n", p.Number, p.Name)
		}
		return nil
	}

	switch {
	case opts.virtual:
		err = out.SelectVirtual(note.PortName)
	case opts.portName != "":
		err = out.SelectNamed(opts.portName)
	case len(ports) > 0:
		err = out.Select(opts.port)
	default:
		err = fmt.Errorf("no MIDI output ports available (try -virtual)")
	}
	if err != nil {
		return err
	}

	cfg := engine.DefaultLayout()
	if opts.mapping != "" {
		cfg, err = mapping.Load(opts.mapping)
		if err != nil {
			return err
		}
	}

	src, err := openSource(opts)
	if err != nil {
		return err
	}
	defer src.Close()

	eng := engine.New(src)
	eng.BindSink(out.Sink())
	if err := eng.SetConfig(cfg); err != nil {
		return err
	}
	// Runs before the source and output close, so the final note-off flush
	// still has a live connection.
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error("engine: close failed", "err", err)
		}
	}()

	logger.Info("wooting-analog-midi running",
		"rate_hz", opts.rate,
		"keys", len(cfg.Keys),
		"mapping", opts.mapping,
	)
	return pollLoop(eng, opts.rate)
}

// openSource picks the analog bridge unless the evdev fallback was asked
// for.
func openSource(opts options) (analog.Source, error) {
	if opts.evdev != "" {
		return openEvdev(opts.evdev)
	}
	return analog.OpenSerial(opts.serial, opts.baud)
}

// -------------------- Poll loop --------------------

// pollLoop drives the engine at a fixed rate until a signal arrives or a
// tick fails. Shutdown is only observed between ticks; a tick that has
// started always completes.
func pollLoop(eng *engine.Engine, rateHz float64) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rateHz))
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	ticks := 0
	reportAt := time.Now()
	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s.String())
			return nil
		case <-ticker.C:
			if err := eng.Poll(); err != nil {
				return fmt.Errorf("poll: %w", err)
			}
			ticks++
			if elapsed := time.Since(reportAt); elapsed >= time.Second {
				logger.Info("polling", "rate_hz", fmt.Sprintf("%.2f", float64(ticks)/elapsed.Seconds()))
				ticks = 0
				reportAt = time.Now()
			}
		}
	}
}
