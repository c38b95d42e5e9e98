// Package engine turns per-key analog depth snapshots into MIDI note
// events. It owns the live configuration, one signal state per configured
// key, and the per-tick orchestration: the enable toggle, modifier pitch
// shifting, and safe mid-flight reconfiguration.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Paul1365972/wooting-analog-midi/analog"
	"github.com/Paul1365972/wooting-analog-midi/note"
)

const (
	// DefaultPollRate is the tick cadence the engine is tuned for, in Hz.
	// The caller owns the timer; Poll itself never sleeps.
	DefaultPollRate = 200

	// readBufferMax caps how many per-key entries one snapshot may carry.
	readBufferMax = 40
)

// ErrNotConnected is returned by Poll while no output sink is bound.
var ErrNotConnected = errors.New("engine: no MIDI output bound")

// Engine drives the per-key state machines. All exported methods are safe
// for concurrent use; each runs to completion under one lock, so a poll
// tick and a reconfiguration can never interleave partially.
type Engine struct {
	mu     sync.Mutex
	source analog.Source
	sink   note.Sink

	config Config
	states map[analog.KeyCode]*keyState
	order  []analog.KeyCode // configured keys, sorted, fixes emission order

	enabled         bool
	enabledKeyState bool

	now    func() time.Time
	logger *slog.Logger
}

// New creates an engine reading from source, disabled, with no keys
// configured and no sink bound. The source and the MIDI output stay owned
// by the caller.
func New(source analog.Source) *Engine {
	return &Engine{
		source: source,
		config: DefaultConfig(),
		states: map[analog.KeyCode]*keyState{},
		now:    time.Now,
		logger: slog.Default(),
	}
}

// BindSink attaches the transmitting sink. Binding nil detaches it and
// makes Poll fail until a new one is attached.
func (e *Engine) BindSink(s note.Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = s
}

// Poll processes one analog snapshot: it resolves the enable toggle, then
// feeds every configured key its current depth in ascending key-code order.
// A read or send failure aborts the tick; keys not yet visited keep their
// previous state and catch up on the next tick.
func (e *Engine) Poll() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sink == nil {
		return ErrNotConnected
	}

	snapshot, err := e.source.ReadSnapshot(readBufferMax)
	if err != nil {
		return fmt.Errorf("read analog snapshot: %w", err)
	}

	togglePressed := anyPressed(snapshot, e.config.ToggleKeys)
	if togglePressed != e.enabledKeyState {
		e.enabledKeyState = togglePressed
		if togglePressed {
			e.enabled = !e.enabled
			if e.enabled {
				e.logger.Info("engine: enabled")
			} else {
				e.logger.Info("engine: disabled")
			}
		}
	}
	if !e.enabled {
		return nil
	}

	modifierHeld := anyPressed(snapshot, e.config.ModifierKeys)

	now := e.now()
	for _, code := range e.order {
		cfg := e.config.Keys[code]
		state := e.states[code]

		var shifted int8
		if modifierHeld {
			shifted = cfg.ShiftAmount
		}

		wasPressed := state.pressed
		if err := state.update(cfg, snapshot[code], shifted, now, e.sink); err != nil {
			return fmt.Errorf("key %s: %w", code, err)
		}
		if state.pressed != wasPressed {
			eff, _ := state.effectiveNote(cfg.Note)
			if state.pressed {
				e.logger.Debug("engine: note on", "key", code, "note", eff, "velocity", state.velocity)
			} else {
				e.logger.Debug("engine: note off", "key", code, "note", eff)
			}
		}
	}
	return nil
}

// SetConfig swaps the live configuration. Keys sounding under the old
// configuration are released first, with the old note, channel and last
// velocity. The swap happens even when a release fails to send; the first
// failure is returned after every key has been attempted.
func (e *Engine) SetConfig(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.releaseAll()

	e.config = cfg
	e.states = make(map[analog.KeyCode]*keyState, len(cfg.Keys))
	e.order = e.order[:0]
	for code, kc := range cfg.Keys {
		e.states[code] = &keyState{}
		e.order = append(e.order, code)
		if kc.Threshold < kc.ActuationPoint {
			e.logger.Warn("engine: threshold below actuation point",
				"key", code, "threshold", kc.Threshold, "actuation_point", kc.ActuationPoint)
		}
	}
	sort.Slice(e.order, func(i, j int) bool { return e.order[i] < e.order[j] })

	e.logger.Info("engine: configuration applied",
		"keys", len(cfg.Keys), "toggle_keys", len(cfg.ToggleKeys), "modifier_keys", len(cfg.ModifierKeys))
	return err
}

// Close releases anything still sounding and detaches the sink. The analog
// source and the MIDI output are closed by their owner, not here.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.releaseAll()
	e.sink = nil
	return err
}

// releaseAll sends a note-off for every pressed key. Every key is
// attempted; the first failure is reported. With no sink bound there is
// nothing to release.
func (e *Engine) releaseAll() error {
	if e.sink == nil {
		return nil
	}
	var first error
	for _, code := range e.order {
		state := e.states[code]
		if !state.pressed {
			continue
		}
		state.pressed = false
		cfg := e.config.Keys[code]
		eff, ok := state.effectiveNote(cfg.Note)
		if !ok {
			continue
		}
		if err := e.sink.NoteOff(eff, state.velocity, cfg.Channel); err != nil && first == nil {
			first = fmt.Errorf("release key %s: %w", code, err)
		}
	}
	return first
}

func anyPressed(snapshot analog.Snapshot, keys []analog.KeyCode) bool {
	for _, code := range keys {
		if snapshot[code] > 0 {
			return true
		}
	}
	return false
}
