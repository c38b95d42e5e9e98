// Package mapping loads keyboard layouts from YAML files and turns them
// into engine configurations.
package mapping

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/Paul1365972/wooting-analog-midi/analog"
	"github.com/Paul1365972/wooting-analog-midi/engine"
	"github.com/Paul1365972/wooting-analog-midi/note"
)

// File is the YAML schema of a mapping file:
//
//	toggle_keys: [f12]
//	modifier_keys: [left_shift, right_shift]
//	defaults:
//	  threshold: 0.6
//	  aftertouch: false
//	keys:
//	  q: {note: 60}
//	  2: {note: 61, channel: 1}
//
// Per-key fields left out fall back to the defaults section, which itself
// falls back to the stock per-key tuning. Key lists left out keep the stock
// lists; an explicitly empty list clears one.
type File struct {
	ToggleKeys   []string              `yaml:"toggle_keys"`
	ModifierKeys []string              `yaml:"modifier_keys"`
	Defaults     *KeySetting           `yaml:"defaults"`
	Keys         map[string]KeySetting `yaml:"keys"`
}

// KeySetting is a partial per-key entry; nil fields inherit.
type KeySetting struct {
	Note           *int     `yaml:"note"`
	Channel        *int     `yaml:"channel"`
	ActuationPoint *float32 `yaml:"actuation_point"`
	Threshold      *float32 `yaml:"threshold"`
	VelocityScale  *float32 `yaml:"velocity_scale"`
	Aftertouch     *bool    `yaml:"aftertouch"`
	ShiftAmount    *int     `yaml:"shift_amount"`
}

// Load reads a mapping file and builds the engine configuration it
// describes.
func Load(path string) (engine.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return engine.Config{}, fmt.Errorf("mapping %s: %w", path, err)
	}
	return cfg, nil
}

// Parse builds the engine configuration described by YAML data.
func Parse(data []byte) (engine.Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return engine.Config{}, fmt.Errorf("parse yaml: %w", err)
	}

	base := engine.DefaultKeyConfig()
	if f.Defaults != nil {
		if err := apply(&base, *f.Defaults); err != nil {
			return engine.Config{}, fmt.Errorf("defaults: %w", err)
		}
	}

	cfg := engine.DefaultConfig()
	if f.ToggleKeys != nil {
		codes, err := parseKeyList(f.ToggleKeys)
		if err != nil {
			return engine.Config{}, fmt.Errorf("toggle_keys: %w", err)
		}
		cfg.ToggleKeys = codes
	}
	if f.ModifierKeys != nil {
		codes, err := parseKeyList(f.ModifierKeys)
		if err != nil {
			return engine.Config{}, fmt.Errorf("modifier_keys: %w", err)
		}
		cfg.ModifierKeys = codes
	}

	// Key names sorted so a broken file always reports the same entry.
	names := make([]string, 0, len(f.Keys))
	for name := range f.Keys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		code, err := analog.ParseKeyName(name)
		if err != nil {
			return engine.Config{}, fmt.Errorf("keys: %w", err)
		}
		kc := base
		if err := apply(&kc, f.Keys[name]); err != nil {
			return engine.Config{}, fmt.Errorf("key %s: %w", name, err)
		}
		cfg.Keys[code] = kc
	}
	return cfg, nil
}

func parseKeyList(names []string) ([]analog.KeyCode, error) {
	codes := make([]analog.KeyCode, 0, len(names))
	for _, name := range names {
		code, err := analog.ParseKeyName(name)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func apply(dst *engine.KeyConfig, s KeySetting) error {
	if s.Note != nil {
		if *s.Note < 0 || *s.Note > 127 {
			return fmt.Errorf("note %d outside 0..127", *s.Note)
		}
		dst.Note = note.NoteID(*s.Note)
	}
	if s.Channel != nil {
		if *s.Channel < 0 || *s.Channel > 15 {
			return fmt.Errorf("channel %d outside 0..15", *s.Channel)
		}
		dst.Channel = note.Channel(*s.Channel)
	}
	if s.ActuationPoint != nil {
		if *s.ActuationPoint < 0 || *s.ActuationPoint > 1 {
			return fmt.Errorf("actuation_point %v outside 0..1", *s.ActuationPoint)
		}
		dst.ActuationPoint = *s.ActuationPoint
	}
	if s.Threshold != nil {
		if *s.Threshold < 0 || *s.Threshold > 1 {
			return fmt.Errorf("threshold %v outside 0..1", *s.Threshold)
		}
		dst.Threshold = *s.Threshold
	}
	if s.VelocityScale != nil {
		if *s.VelocityScale <= 0 {
			return fmt.Errorf("velocity_scale %v must be positive", *s.VelocityScale)
		}
		dst.VelocityScale = *s.VelocityScale
	}
	if s.Aftertouch != nil {
		dst.Aftertouch = *s.Aftertouch
	}
	if s.ShiftAmount != nil {
		if *s.ShiftAmount < math.MinInt8 || *s.ShiftAmount > math.MaxInt8 {
			return fmt.Errorf("shift_amount %d outside %d..%d", *s.ShiftAmount, math.MinInt8, math.MaxInt8)
		}
		dst.ShiftAmount = int8(*s.ShiftAmount)
	}
	return nil
}
