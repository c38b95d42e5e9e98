package engine

import (
	"github.com/Paul1365972/wooting-analog-midi/analog"
	"github.com/Paul1365972/wooting-analog-midi/note"
)

// KeyConfig tunes how one physical key translates into notes.
type KeyConfig struct {
	// Note is the MIDI note emitted before any shift is applied.
	Note    note.NoteID
	Channel note.Channel

	// ActuationPoint is the depth at or below which the key counts as
	// released. Threshold is the depth above which the note triggers and
	// should not be below ActuationPoint.
	ActuationPoint float32
	Threshold      float32

	// VelocityScale converts travel speed into note-on velocity. Higher
	// values reward slower presses with full velocity.
	VelocityScale float32

	// Aftertouch sends polyphonic pressure while the note is held.
	Aftertouch bool

	// ShiftAmount is the semitone offset applied while a modifier key is
	// held down.
	ShiftAmount int8
}

// DefaultKeyConfig is the stock per-key tuning: middle C on channel 0,
// trigger at 80% travel, shift one octave up.
func DefaultKeyConfig() KeyConfig {
	return KeyConfig{
		Note:           60,
		Channel:        0,
		ActuationPoint: 0.0,
		Threshold:      0.8,
		VelocityScale:  5.0,
		Aftertouch:     true,
		ShiftAmount:    12,
	}
}

// Config is the complete tunable state the engine runs against.
type Config struct {
	// ToggleKeys flip the engine between enabled and disabled on each
	// press. ModifierKeys apply the per-key ShiftAmount while held.
	ToggleKeys   []analog.KeyCode
	ModifierKeys []analog.KeyCode

	Keys map[analog.KeyCode]KeyConfig
}

// DefaultConfig has the shift keys as modifiers and no keys mapped.
func DefaultConfig() Config {
	return Config{
		ModifierKeys: []analog.KeyCode{analog.KeyLeftShift, analog.KeyRightShift},
		Keys:         map[analog.KeyCode]KeyConfig{},
	}
}

// DefaultLayout maps the upper QWERTY rows to a chromatic run starting at
// middle C, the digit row supplying the sharps, with F12 as the toggle.
func DefaultLayout() Config {
	cfg := DefaultConfig()
	cfg.ToggleKeys = []analog.KeyCode{analog.KeyF12}

	row := []analog.KeyCode{
		analog.KeyQ, analog.Key2, analog.KeyW, analog.KeyE, analog.KeyR,
		analog.Key5, analog.KeyT, analog.Key6, analog.KeyY, analog.Key7,
		analog.KeyU, analog.KeyI, analog.Key9, analog.KeyO, analog.Key0,
		analog.KeyP,
	}
	for i, code := range row {
		kc := DefaultKeyConfig()
		kc.Note = 60 + note.NoteID(i)
		cfg.Keys[code] = kc
	}
	return cfg
}
