package note

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// PortName is the name registered with the MIDI subsystem when a virtual
// output port is opened.
const PortName = "wooting-analog-midi"

// ErrPortOutOfRange is returned by Select when the option index does not
// match the last Refresh.
var ErrPortOutOfRange = errors.New("midi: port option out of range")

// PortOption is one selectable MIDI output destination.
type PortOption struct {
	Number int
	Name   string
}

// Output owns the MIDI driver, the discovered port options, and at most one
// open connection. Selecting a destination always closes the previous
// connection before the new one is opened, so no two are held at once.
type Output struct {
	mu      sync.Mutex
	drv     *rtmididrv.Driver
	logger  *slog.Logger
	options []drivers.Out
	conn    drivers.Out
}

// NewOutput initializes the underlying rtmidi driver. Call Close when done.
func NewOutput() (*Output, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return &Output{drv: drv, logger: slog.Default()}, nil
}

// Refresh re-enumerates the available output ports. The returned option
// numbers stay valid until the next Refresh.
func (o *Output) Refresh() ([]PortOption, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	outs, err := o.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("list midi outputs: %w", err)
	}
	o.options = outs

	opts := make([]PortOption, len(outs))
	names := make([]string, len(outs))
	for i, out := range outs {
		opts[i] = PortOption{Number: i, Name: out.String()}
		names[i] = out.String()
	}
	o.logger.Debug("midi: outputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return opts, nil
}

// Select connects to the port option with the given number, closing any
// previous connection first.
func (o *Output) Select(option int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if option < 0 || option >= len(o.options) {
		return fmt.Errorf("%w: %d of %d", ErrPortOutOfRange, option, len(o.options))
	}
	o.closeConn()

	out := o.options[option]
	if err := out.Open(); err != nil {
		return fmt.Errorf("open %q: %w", out.String(), err)
	}
	o.conn = out
	o.logger.Info("midi: connected", "device", out.String())
	return nil
}

// SelectNamed connects to the first port whose name contains sub
// (case-insensitive).
func (o *Output) SelectNamed(sub string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, out := range o.options {
		if !containsCI(out.String(), sub) {
			continue
		}
		o.closeConn()
		if err := out.Open(); err != nil {
			return fmt.Errorf("open %q: %w", out.String(), err)
		}
		o.conn = out
		o.logger.Info("midi: connected", "device", out.String())
		return nil
	}
	return fmt.Errorf("no midi output matching %q", sub)
}

// SelectVirtual exposes a fresh virtual output port instead of claiming an
// existing one.
func (o *Output) SelectVirtual(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closeConn()
	out, err := o.drv.OpenVirtualOut(name)
	if err != nil {
		return fmt.Errorf("open virtual port %q: %w", name, err)
	}
	o.conn = out
	o.logger.Info("midi: virtual port open", "device", name)
	return nil
}

// Sink returns a transmitting Sink for the open connection, or nil when no
// destination is bound.
func (o *Output) Sink() Sink {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		return nil
	}
	return portSink{out: o.conn}
}

// Close shuts down the active connection and the rtmidi driver.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeConn()
	return o.drv.Close()
}

func (o *Output) closeConn() {
	if o.conn == nil {
		return
	}
	_ = o.conn.Close()
	o.logger.Info("midi: connection closed", "device", o.conn.String())
	o.conn = nil
}

// portSink transmits through an open gomidi output port.
type portSink struct {
	out drivers.Out
}

func (s portSink) NoteOn(n NoteID, velocity float32, ch Channel) error {
	return s.out.Send(noteOnMessage(n, velocity, ch))
}

func (s portSink) NoteOff(n NoteID, velocity float32, ch Channel) error {
	return s.out.Send(noteOffMessage(n, velocity, ch))
}

func (s portSink) PolyphonicAftertouch(n NoteID, pressure float32, ch Channel) error {
	return s.out.Send(aftertouchMessage(n, pressure, ch))
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
